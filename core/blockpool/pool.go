// Package blockpool implements an in-memory cache of unconnected orphan
// blocks, plus the assembly of a Fork from an incoming block back through
// its orphan ancestors.
//
// Orphans are evicted after a fixed expiration, kept here as an
// expiration-ordered map scan since the prune/expire paths only need
// "older than X", not a fully sorted structure.
package blockpool

import (
	"sync"
	"time"

	"github.com/noxproject/forkd/common/hash"
	"github.com/noxproject/forkd/core/block"
	"github.com/noxproject/forkd/core/fork"
)

// DefaultExpiration is how long an orphan may sit unconnected before it is
// evicted on the next EvictExpired pass.
const DefaultExpiration = 10 * time.Minute

type entry struct {
	block      *block.Block
	expiration time.Time
}

// Pool is the block pool collaborator consumed by the organizer. It is
// internally synchronized: it is mutated by the organizer (Add on
// insufficient work, Remove/Add/Prune on reorganize) and by callers feeding
// orphan blocks in concurrently with GetPath lookups.
type Pool struct {
	mu         sync.Mutex
	byHash     map[hash.Hash]*entry
	expiration time.Duration

	mirror Mirror
}

// Mirror optionally persists orphans so a restart does not lose blocks
// that are close to completing a fork. A nil Mirror disables persistence;
// the in-memory pool remains the source of truth either way.
type Mirror interface {
	Put(blk *block.Block, ttl time.Duration) error
	Delete(h hash.Hash) error
	Close() error
}

// restorer is implemented by a Mirror that can enumerate its persisted
// entries, so New can reload them without widening the Mirror interface
// every caller must satisfy.
type restorer interface {
	All() ([]*block.Block, error)
}

// New constructs a Pool with the given orphan expiration and an optional
// persistence Mirror (may be nil). If mirror also implements All (as
// BadgerMirror does), its persisted orphans are loaded back into the pool
// immediately, so a restart does not lose blocks that were close to
// completing a fork.
func New(expiration time.Duration, mirror Mirror) *Pool {
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	p := &Pool{
		byHash:     make(map[hash.Hash]*entry),
		expiration: expiration,
		mirror:     mirror,
	}
	if r, ok := mirror.(restorer); ok {
		if blocks, err := r.All(); err == nil {
			p.restore(blocks)
		}
	}
	return p
}

// restore seeds the pool directly from previously persisted entries,
// without re-mirroring them (they are already in the store they came
// from).
func (p *Pool) restore(blocks []*block.Block) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, blk := range blocks {
		if blk == nil {
			continue
		}
		p.byHash[blk.Hash] = &entry{block: blk, expiration: time.Now().Add(p.expiration)}
	}
}

// Add inserts a single orphan block into the pool.
func (p *Pool) Add(blk *block.Block) {
	if blk == nil {
		return
	}
	p.mu.Lock()
	p.byHash[blk.Hash] = &entry{block: blk, expiration: time.Now().Add(p.expiration)}
	p.mu.Unlock()

	if p.mirror != nil {
		_ = p.mirror.Put(blk, p.expiration)
	}
}

// AddList inserts every block in blocks into the pool.
func (p *Pool) AddList(blocks []*block.Block) {
	for _, blk := range blocks {
		p.Add(blk)
	}
}

// Remove evicts every block in blocks from the pool, by hash.
func (p *Pool) Remove(blocks []*block.Block) {
	p.mu.Lock()
	for _, blk := range blocks {
		if blk == nil {
			continue
		}
		delete(p.byHash, blk.Hash)
	}
	p.mu.Unlock()

	if p.mirror != nil {
		for _, blk := range blocks {
			if blk == nil {
				continue
			}
			_ = p.mirror.Delete(blk.Hash)
		}
	}
}

// Prune evicts every orphan whose recorded height is at or below h: those
// blocks' parents can never again be reached once the confirmed chain has
// advanced past h. Height is taken
// from the block's existing ValidationState, when present; orphans whose
// height was never recorded (no ancestor chain to the confirmed store was
// ever established) are left alone.
func (p *Pool) Prune(h uint64) {
	p.mu.Lock()
	var doomed []hash.Hash
	for hh, e := range p.byHash {
		if e.block.Validation != nil && e.block.Validation.Height != 0 && e.block.Validation.Height <= h {
			doomed = append(doomed, hh)
		}
	}
	for _, hh := range doomed {
		delete(p.byHash, hh)
	}
	p.mu.Unlock()

	if p.mirror != nil {
		for _, hh := range doomed {
			_ = p.mirror.Delete(hh)
		}
	}
}

// EvictExpired removes every orphan whose expiration has passed.
func (p *Pool) EvictExpired(now time.Time) {
	p.mu.Lock()
	var doomed []hash.Hash
	for hh, e := range p.byHash {
		if now.After(e.expiration) {
			doomed = append(doomed, hh)
		}
	}
	for _, hh := range doomed {
		delete(p.byHash, hh)
	}
	p.mu.Unlock()

	if p.mirror != nil {
		for _, hh := range doomed {
			_ = p.mirror.Delete(hh)
		}
	}
}

// Len reports the number of orphans currently held.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byHash)
}

// GetPath assembles the longest chain of orphan blocks culminating in
// blk, walking tip-to-root: blk itself is pushed first, then each orphan
// whose Hash matches the current front's PreviousBlockHash, stopping when
// no such orphan is found in the pool. It returns an empty fork if blk
// already exists in the pool. It never fails; the caller determines
// separately whether the walk's stop point anchors into the confirmed
// chain.
func (p *Pool) GetPath(blk *block.Block) *fork.Fork {
	f := fork.New()
	if blk == nil {
		return f
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byHash[blk.Hash]; exists {
		return f
	}

	if !f.PushFront(blk) {
		return f
	}
	for {
		e, ok := p.byHash[f.Hash()]
		if !ok {
			return f
		}
		if !f.PushFront(e.block) {
			return f
		}
	}
}
