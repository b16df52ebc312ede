// Package fork implements the immutable-after-assembly candidate branch:
// an ordered sequence of blocks that extends a known point in the
// confirmed chain, plus the contextual queries the validator consults
// while it evaluates that candidate branch.
package fork

import (
	"sync"

	mapset "github.com/deckarep/golang-set"

	"github.com/noxproject/forkd/common/hash"
	"github.com/noxproject/forkd/common/work"
	"github.com/noxproject/forkd/core/block"
)

// Fork is an ordered candidate branch [b0, b1, ..., bn-1] that extends the
// confirmed chain at parentHeight. It is single-writer (the assembling
// organizer) until push_front assembly completes, thereafter a read-only
// view shared by (possibly concurrent) validator workers.
type Fork struct {
	blocks       []*block.Block
	parentHeight uint64

	dupOnce    sync.Once
	dupTxHash  mapset.Set // tx hashes occurring >=2 times in the fork
	dupOutpt   mapset.Set // outpoints referenced by >=2 inputs in the fork
}

// outpointKey is the comparable identity of an Outpoint, usable as a
// mapset element (Outpoint itself carries a non-comparable Output.Script).
type outpointKey struct {
	TxHash hash.Hash
	Index  uint32
}

// New constructs an empty Fork with a capacity hint of one block: most
// forks assemble to a single block before the organizer evaluates them.
func New() *Fork {
	return &Fork{blocks: make([]*block.Block, 0, 1)}
}

// Empty reports whether the fork holds no blocks.
func (f *Fork) Empty() bool {
	return len(f.blocks) == 0
}

// Size returns the number of blocks in the fork.
func (f *Fork) Size() int {
	return len(f.blocks)
}

// PushFront prepends blk to the fork. It succeeds only if the fork is
// empty or blk.Hash equals the current front block's PreviousBlockHash.
// On success it returns true; otherwise the fork is left unchanged and
// false is returned.
//
// Assembly proceeds tip-to-root: the caller prepends the incoming tip
// first, then each earlier orphan, stopping when the next prepend would
// fail — which signals that the walk has reached the confirmed store.
func (f *Fork) PushFront(blk *block.Block) bool {
	if blk == nil {
		return false
	}
	if len(f.blocks) > 0 && f.blocks[0].PreviousBlockHash != blk.Hash {
		return false
	}
	f.blocks = append([]*block.Block{blk}, f.blocks...)
	return true
}

// SetHeight records the confirmed height the fork extends. It must be
// called after assembly completes and before any height-projecting query.
func (f *Fork) SetHeight(parentHeight uint64) {
	f.parentHeight = parentHeight
}

// ParentHeight returns the confirmed height the fork extends.
func (f *Fork) ParentHeight() uint64 {
	return f.parentHeight
}

// Top returns the fork's tip block, or nil when the fork is empty.
func (f *Fork) Top() *block.Block {
	if f.Empty() {
		return nil
	}
	return f.blocks[len(f.blocks)-1]
}

// TopHeight returns parentHeight+size; it is meaningless (but still
// parentHeight) when the fork is empty.
func (f *Fork) TopHeight() uint64 {
	return f.parentHeight + uint64(len(f.blocks))
}

// Hash returns the fork's parent hash: the front block's PreviousBlockHash,
// or the null hash when the fork is empty.
func (f *Fork) Hash() hash.Hash {
	if f.Empty() {
		return hash.ZeroHash
	}
	return f.blocks[0].PreviousBlockHash
}

// Height is an alias for ParentHeight.
func (f *Fork) Height() uint64 {
	return f.parentHeight
}

// IndexOf converts an absolute height to a fork-relative slice index.
// The caller must guarantee h > ParentHeight().
func (f *Fork) IndexOf(h uint64) int {
	return int(h - f.parentHeight - 1)
}

// HeightAt converts a fork-relative slice index to an absolute height.
func (f *Fork) HeightAt(i int) uint64 {
	return f.parentHeight + uint64(i) + 1
}

// BlockAt returns the block at fork-relative index i, or nil if i is out
// of range.
func (f *Fork) BlockAt(i int) *block.Block {
	if i < 0 || i >= len(f.blocks) {
		return nil
	}
	return f.blocks[i]
}

// Difficulty returns the 256-bit sum of every block's per-block difficulty.
func (f *Fork) Difficulty() *work.Work {
	total := work.Zero()
	for _, b := range f.blocks {
		total = total.Add(b.Difficulty)
	}
	return total
}

// GetBits returns the bits field of the block at height h and true when
// ParentHeight() < h <= TopHeight(); otherwise it returns false and leaves
// out untouched.
func (f *Fork) GetBits(h uint64, out *uint32) bool {
	b := f.blockForHeight(h)
	if b == nil {
		return false
	}
	*out = b.Bits
	return true
}

// GetVersion mirrors GetBits for the block's version field.
func (f *Fork) GetVersion(h uint64, out *int32) bool {
	b := f.blockForHeight(h)
	if b == nil {
		return false
	}
	*out = b.Version
	return true
}

// GetTimestamp mirrors GetBits for the block's timestamp.
func (f *Fork) GetTimestamp(h uint64, out *int64) bool {
	b := f.blockForHeight(h)
	if b == nil {
		return false
	}
	*out = b.Timestamp.Unix()
	return true
}

// GetBlockHash mirrors GetBits for the block's hash.
func (f *Fork) GetBlockHash(h uint64, out *hash.Hash) bool {
	b := f.blockForHeight(h)
	if b == nil {
		return false
	}
	*out = b.Hash
	return true
}

func (f *Fork) blockForHeight(h uint64) *block.Block {
	if h <= f.parentHeight || h > f.TopHeight() {
		return nil
	}
	return f.blocks[f.IndexOf(h)]
}

// ensureDuplicateSets lazily builds the "occurs at least twice" sets the
// fork consults from PopulateTx and PopulateSpent. The fork is treated as
// immutable for this purpose once assembly has handed it to the
// validator.
func (f *Fork) ensureDuplicateSets() {
	f.dupOnce.Do(func() {
		seenOnceTx := mapset.NewSet()
		dupTx := mapset.NewSet()
		seenOnceOut := mapset.NewSet()
		dupOut := mapset.NewSet()

		for _, b := range f.blocks {
			for _, tx := range b.Transactions {
				if seenOnceTx.Contains(tx.Hash) {
					dupTx.Add(tx.Hash)
				} else {
					seenOnceTx.Add(tx.Hash)
				}
				for _, in := range tx.Inputs {
					if in.IsCoinbaseInput() {
						continue
					}
					k := outpointKey{TxHash: in.PreviousOutpoint.TxHash, Index: in.PreviousOutpoint.Index}
					if seenOnceOut.Contains(k) {
						dupOut.Add(k)
					} else {
						seenOnceOut.Add(k)
					}
				}
			}
		}

		f.dupTxHash = dupTx
		f.dupOutpt = dupOut
	})
}

// PopulateTx reports whether the fork contains two or more transactions
// with hash txHash. One occurrence is the candidate transaction the
// validator already found; a second occurrence inside the candidate
// branch itself is a BIP30 concern.
func (f *Fork) PopulateTx(txHash hash.Hash) (duplicate bool) {
	f.ensureDuplicateSets()
	return f.dupTxHash.Contains(txHash)
}

// PopulateSpent reports whether outpoint is referenced by two or more
// inputs within the fork. One occurrence is the candidate spend being
// evaluated; a second is a conflict within the branch.
func (f *Fork) PopulateSpent(outpoint block.Outpoint) (spent, confirmed bool) {
	f.ensureDuplicateSets()
	dup := f.dupOutpt.Contains(outpointKey{TxHash: outpoint.TxHash, Index: outpoint.Index})
	return dup, dup
}

// PopulatePrevout searches the fork from tip toward root for the
// transaction whose hash equals outpoint.TxHash and whose outputs contain
// outpoint.Index, and populates the outpoint's Cache (and, for a coinbase
// transaction, Height) in place. The null outpoint (coinbase input) is a
// no-op that resets the outpoint's mutable fields.
//
// The tip-first search order is required so that the most recent
// redefinition of a colliding transaction hash wins, the BIP30 tie-break.
// Do not "optimize" this into a hash index without preserving that order.
func (f *Fork) PopulatePrevout(outpoint *block.Outpoint) {
	if outpoint == nil {
		return
	}
	if outpoint.TxHash.IsZero() {
		outpoint.Reset()
		return
	}

	for i := len(f.blocks) - 1; i >= 0; i-- {
		b := f.blocks[i]
		for txIdx, tx := range b.Transactions {
			if tx.Hash != outpoint.TxHash {
				continue
			}
			if int(outpoint.Index) >= len(tx.Outputs) {
				continue
			}
			outpoint.Cache = tx.Outputs[outpoint.Index]
			if txIdx == 0 {
				outpoint.Height = block.HeightTag{Specified: true, Height: f.HeightAt(i)}
			} else {
				outpoint.Height = block.NotSpecified
			}
			return
		}
	}
}
