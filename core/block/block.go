// Package block defines the minimal block and transaction model consumed
// by the fork organizer. Consensus rule enforcement lives behind the
// Validator interface; only the shape needed to assemble and query a Fork
// is modeled here.
package block

import (
	"time"

	"github.com/noxproject/forkd/common/hash"
	"github.com/noxproject/forkd/common/work"
)

// Output is a single transaction output: an amount paid to some opaque
// locking script. Script semantics are out of scope; only identity and
// presence matter to Fork.PopulatePrevout.
type Output struct {
	Value  int64
	Script []byte
}

// Input references a prior output this transaction spends. A nil
// PreviousOutpoint marks the coinbase input of the containing transaction.
type Input struct {
	PreviousOutpoint *Outpoint
}

// Transaction is an opaque-payload transaction; only its identity, inputs
// and outputs are consulted by the Fork's contextual queries.
type Transaction struct {
	Hash    hash.Hash
	Inputs  []Input
	Outputs []Output
}

// Block is a header plus an ordered sequence of transactions, shared
// immutably between the pool, the fork, the validator and the confirmed
// store. ValidationState is the one field mutated post-construction, and is
// owned by whichever pipeline stage is currently advancing the block.
type Block struct {
	Hash               hash.Hash
	PreviousBlockHash  hash.Hash
	Bits               uint32
	Version            int32
	Timestamp          time.Time
	Difficulty         *work.Work
	Transactions       []*Transaction

	Validation *ValidationState
}

// ValidationState is the interior-mutable side-cell attached to a block as
// it advances through the submission pipeline. Only one stage writes to it
// at a time, by the pipeline's sequential discipline.
type ValidationState struct {
	Height      uint64
	Err         error
	CheckedAt   time.Time
	AcceptedAt  time.Time
	ConnectedAt time.Time
}

// NewBlock constructs a Block with an attached, zeroed ValidationState.
func NewBlock(h, prev hash.Hash, bits uint32, version int32, ts time.Time, difficulty *work.Work, txs []*Transaction) *Block {
	return &Block{
		Hash:              h,
		PreviousBlockHash: prev,
		Bits:              bits,
		Version:           version,
		Timestamp:         ts,
		Difficulty:        difficulty,
		Transactions:      txs,
		Validation:        &ValidationState{},
	}
}

// Outpoint identifies a transaction output: (tx hash, output index), plus
// the mutable validation fields the fork populates during contextual
// queries.
type Outpoint struct {
	TxHash hash.Hash
	Index  uint32

	Cache     Output
	Height    HeightTag
	Spent     bool
	Confirmed bool
}

// HeightTag carries a block height that may be "not specified", for
// PopulatePrevout's coinbase handling.
type HeightTag struct {
	Specified bool
	Height    uint64
}

// NotSpecified is the zero-value HeightTag: no height recorded.
var NotSpecified = HeightTag{}

// IsCoinbaseInput reports whether in has no previous outpoint, the null
// outpoint coinbase marker.
func (in Input) IsCoinbaseInput() bool {
	return in.PreviousOutpoint == nil
}

// Reset clears an Outpoint's mutable validation fields back to their
// not-yet-populated state, used by PopulatePrevout's no-op path for
// coinbase inputs.
func (o *Outpoint) Reset() {
	o.Cache = Output{}
	o.Height = NotSpecified
	o.Spent = false
	o.Confirmed = false
}
