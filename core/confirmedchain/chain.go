// Package confirmedchain implements the persistent, confirmed block store
// consumed by the organizer, backed by coreos/bbolt.
//
// bbolt was picked over the pack's other storage options because the
// confirmed chain needs a single ordered, durably-linearizable write path
// for Reorganize, which maps directly onto one bbolt.Update transaction;
// badger is reserved for the orphan pool's TTL-bearing cache role instead
// (core/blockpool).
package confirmedchain

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"math/big"

	bbolt "github.com/coreos/bbolt"
	"github.com/pkg/errors"

	"github.com/noxproject/forkd/common/hash"
	"github.com/noxproject/forkd/common/work"
	"github.com/noxproject/forkd/core/block"
	"github.com/noxproject/forkd/core/fork"
)

var (
	bucketHeights = []byte("heights")
	bucketHashes  = []byte("hashes")
	bucketMeta    = []byte("meta")
	keyTip        = []byte("tip")
)

// record is the on-disk representation of one confirmed block: just enough
// to reconstruct an outgoing block list and to answer the contextual
// accessor queries the Fork also answers for the candidate branch.
type record struct {
	Hash              hash.Hash
	PreviousBlockHash hash.Hash
	Bits              uint32
	Version           int32
	TimestampUnix     int64
	DifficultyDecimal string
}

// Chain is the confirmed block store collaborator. It is mutated only by
// Reorganize, and only while the organizer holds its submission mutex.
type Chain struct {
	db *bbolt.DB
}

// Open opens (initializing if necessary) a Chain at path.
func Open(path string) (*Chain, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open confirmed chain store")
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketHeights, bucketHashes, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initialize confirmed chain buckets")
	}
	return &Chain{db: db}, nil
}

// Close releases the underlying bbolt handle.
func (c *Chain) Close() error {
	return c.db.Close()
}

// BeginWrites toggles bbolt's NoSync flag on, deferring fsync for the
// organizer's lifetime — the "coarse flush lock" held when
// Config.FlushPerReorg is false.
func (c *Chain) BeginWrites() error {
	c.db.NoSync = true
	return nil
}

// EndWrites restores per-commit fsync and forces a final sync, releasing
// the coarse flush lock acquired by BeginWrites.
func (c *Chain) EndWrites() error {
	c.db.NoSync = false
	return c.db.Sync()
}

func heightKey(h uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, h)
	return buf
}

// GetBlockExists reports whether hash exists anywhere in the confirmed
// chain. This probes the *entire* chain, not just the region beyond a
// fork point — the documented bug-compatible behavior of the organizer's
// duplicate gate. GetBlockExistsAfter implements the corrected
// alternative.
func (c *Chain) GetBlockExists(h hash.Hash) bool {
	exists := false
	_ = c.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketHashes).Get(h.Bytes())
		exists = v != nil
		return nil
	})
	return exists
}

// GetBlockExistsAfter reports whether hash exists in the confirmed chain
// at a height strictly greater than afterHeight. This is the corrected
// S3 duplicate check enabled by Config.StrictForkPointCheck.
func (c *Chain) GetBlockExistsAfter(h hash.Hash, afterHeight uint64) bool {
	exists := false
	_ = c.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketHashes).Get(h.Bytes())
		if v == nil || len(v) != 8 {
			return nil
		}
		height := binary.BigEndian.Uint64(v)
		exists = height > afterHeight
		return nil
	})
	return exists
}

// GetHeight returns the height of the confirmed block identified by hash,
// and false if it is unknown.
func (c *Chain) GetHeight(h hash.Hash) (uint64, bool) {
	var height uint64
	found := false
	_ = c.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketHashes).Get(h.Bytes())
		if v == nil || len(v) != 8 {
			return nil
		}
		height = binary.BigEndian.Uint64(v)
		found = true
		return nil
	})
	return height, found
}

// tipLocked returns the current confirmed tip height, or 0 with ok=false
// when the chain is empty. Must be called with an open bbolt transaction.
func tipLocked(tx *bbolt.Tx) (uint64, bool) {
	v := tx.Bucket(bucketMeta).Get(keyTip)
	if v == nil || len(v) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(v), true
}

// TipHeight returns the current confirmed tip height (0 when empty).
func (c *Chain) TipHeight() uint64 {
	var h uint64
	_ = c.db.View(func(tx *bbolt.Tx) error {
		h, _ = tipLocked(tx)
		return nil
	})
	return h
}

func getRecord(tx *bbolt.Tx, height uint64) (*record, bool) {
	v := tx.Bucket(bucketHeights).Get(heightKey(height))
	if v == nil {
		return nil, false
	}
	var r record
	if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&r); err != nil {
		return nil, false
	}
	return &r, true
}

func recordToBlock(r *record) *block.Block {
	w := work.Zero()
	if r.DifficultyDecimal != "" {
		if bi, ok := new(big.Int).SetString(r.DifficultyDecimal, 10); ok {
			w = work.NewFromBigInt(bi)
		}
	}
	return &block.Block{
		Hash:              r.Hash,
		PreviousBlockHash: r.PreviousBlockHash,
		Bits:              r.Bits,
		Version:           r.Version,
		Difficulty:        w,
		Validation:        &block.ValidationState{},
	}
}

// GetForkDifficulty sums the per-block difficulty of confirmed blocks at
// heights >= fromHeight, stopping early once the running sum exceeds max:
// the candidate fork cannot possibly win once its own work bound is
// exceeded, so the store need not fully score a long main chain. Returns
// a zero sum with ok=true when fromHeight is beyond the tip (the fork
// extends the tip directly, so there is nothing confirmed left to sum).
// ok is false only when a height in [fromHeight, tip] is missing from the
// store, which the caller treats as a failed query.
func (c *Chain) GetForkDifficulty(max *work.Work, fromHeight uint64) (*work.Work, bool) {
	var out *work.Work
	ok := false
	_ = c.db.View(func(tx *bbolt.Tx) error {
		tip, has := tipLocked(tx)
		if !has || fromHeight > tip {
			out, ok = work.Zero(), true
			return nil
		}
		sum := work.Zero()
		for h := fromHeight; h <= tip; h++ {
			r, found := getRecord(tx, h)
			if !found {
				return nil
			}
			sum = sum.Add(recordToBlock(r).Difficulty)
			if sum.Cmp(max) > 0 {
				break
			}
		}
		out, ok = sum, true
		return nil
	})
	return out, ok
}

// Reorganize atomically pops confirmed blocks from height
// f.ParentHeight()+1 upward into the returned outgoing list, pushes f's
// blocks in order, and — when flush is true — syncs to disk before
// returning. On success the confirmed tip equals f.Top().
func (c *Chain) Reorganize(f *fork.Fork, flush bool) (outgoing []*block.Block, err error) {
	err = c.db.Update(func(tx *bbolt.Tx) error {
		tip, has := tipLocked(tx)
		if has {
			for h := f.ParentHeight() + 1; h <= tip; h++ {
				r, found := getRecord(tx, h)
				if !found {
					return errors.Errorf("confirmed chain: missing record at height %d during reorganize", h)
				}
				outgoing = append(outgoing, recordToBlock(r))
				if err := tx.Bucket(bucketHeights).Delete(heightKey(h)); err != nil {
					return err
				}
				if err := tx.Bucket(bucketHashes).Delete(r.Hash.Bytes()); err != nil {
					return err
				}
			}
		}

		for i := 0; i < f.Size(); i++ {
			h := f.HeightAt(i)
			b := f.BlockAt(i)
			r := record{
				Hash:              b.Hash,
				PreviousBlockHash: b.PreviousBlockHash,
				Bits:              b.Bits,
				Version:           b.Version,
				TimestampUnix:     b.Timestamp.Unix(),
			}
			if b.Difficulty != nil {
				r.DifficultyDecimal = b.Difficulty.String()
			}
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(r); err != nil {
				return err
			}
			if err := tx.Bucket(bucketHeights).Put(heightKey(h), buf.Bytes()); err != nil {
				return err
			}
			hv := make([]byte, 8)
			binary.BigEndian.PutUint64(hv, h)
			if err := tx.Bucket(bucketHashes).Put(b.Hash.Bytes(), hv); err != nil {
				return err
			}
		}

		return tx.Bucket(bucketMeta).Put(keyTip, heightKey(f.TopHeight()))
	})
	if err != nil {
		return nil, err
	}
	if flush {
		if err := c.db.Sync(); err != nil {
			return outgoing, err
		}
	}
	return outgoing, nil
}
