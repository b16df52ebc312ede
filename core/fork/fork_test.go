package fork

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noxproject/forkd/common/hash"
	"github.com/noxproject/forkd/common/work"
	"github.com/noxproject/forkd/core/block"
)

func mkBlock(h, prev hash.Hash, difficulty uint64) *block.Block {
	return block.NewBlock(h, prev, 0, 1, time.Unix(0, 0), work.NewFromUint64(difficulty), nil)
}

func TestNewIsEmpty(t *testing.T) {
	f := New()
	assert.True(t, f.Empty())
	assert.Equal(t, 0, f.Size())
	assert.Equal(t, hash.ZeroHash, f.Hash())
}

func TestPushFrontAssemblesTipToRoot(t *testing.T) {
	root := hash.MustHexToHash("01")
	a := hash.MustHexToHash("02")
	b := hash.MustHexToHash("03")

	blkA := mkBlock(a, root, 1)
	blkB := mkBlock(b, a, 1)

	f := New()
	require.True(t, f.PushFront(blkB))
	require.True(t, f.PushFront(blkA))

	assert.False(t, f.Empty())
	assert.Equal(t, 2, f.Size())
	assert.Equal(t, root, f.Hash())
	assert.Equal(t, blkB, f.Top())
}

func TestPushFrontRejectsMismatchedParent(t *testing.T) {
	root := hash.MustHexToHash("01")
	a := hash.MustHexToHash("02")
	unrelated := hash.MustHexToHash("ff")

	blkA := mkBlock(a, root, 1)
	f := New()
	require.True(t, f.PushFront(blkA))

	stray := mkBlock(hash.MustHexToHash("04"), unrelated, 1)
	assert.False(t, f.PushFront(stray))
	assert.Equal(t, 1, f.Size())
}

func TestPushFrontRejectsNil(t *testing.T) {
	f := New()
	assert.False(t, f.PushFront(nil))
}

func TestHeightAccessors(t *testing.T) {
	root := hash.MustHexToHash("01")
	a := hash.MustHexToHash("02")
	b := hash.MustHexToHash("03")

	f := New()
	require.True(t, f.PushFront(mkBlock(b, a, 1)))
	require.True(t, f.PushFront(mkBlock(a, root, 1)))
	f.SetHeight(10)

	assert.Equal(t, uint64(10), f.ParentHeight())
	assert.Equal(t, uint64(10), f.Height())
	assert.Equal(t, uint64(12), f.TopHeight())
	assert.Equal(t, 0, f.IndexOf(11))
	assert.Equal(t, 1, f.IndexOf(12))
	assert.Equal(t, uint64(11), f.HeightAt(0))
	assert.Equal(t, uint64(12), f.HeightAt(1))
}

func TestBlockAtOutOfRange(t *testing.T) {
	f := New()
	assert.Nil(t, f.BlockAt(0))
	assert.Nil(t, f.BlockAt(-1))
}

func TestDifficultySumsEveryBlock(t *testing.T) {
	root := hash.MustHexToHash("01")
	a := hash.MustHexToHash("02")
	b := hash.MustHexToHash("03")

	f := New()
	require.True(t, f.PushFront(mkBlock(b, a, 5)))
	require.True(t, f.PushFront(mkBlock(a, root, 7)))

	assert.Equal(t, 0, f.Difficulty().Cmp(work.NewFromUint64(12)))
}

func TestGetBitsVersionTimestampHashBounds(t *testing.T) {
	root := hash.MustHexToHash("01")
	a := hash.MustHexToHash("02")

	blk := mkBlock(a, root, 1)
	blk.Bits = 0x1d00ffff
	blk.Version = 3

	f := New()
	require.True(t, f.PushFront(blk))
	f.SetHeight(100)

	var bits uint32
	assert.True(t, f.GetBits(101, &bits))
	assert.Equal(t, uint32(0x1d00ffff), bits)
	assert.False(t, f.GetBits(100, &bits))
	assert.False(t, f.GetBits(102, &bits))

	var version int32
	assert.True(t, f.GetVersion(101, &version))
	assert.Equal(t, int32(3), version)

	var ts int64
	assert.True(t, f.GetTimestamp(101, &ts))

	var bh hash.Hash
	assert.True(t, f.GetBlockHash(101, &bh))
	assert.Equal(t, a, bh)
}

func TestPopulateTxFindsIntraForkDuplicate(t *testing.T) {
	root := hash.MustHexToHash("01")
	a := hash.MustHexToHash("02")
	b := hash.MustHexToHash("03")
	txHash := hash.MustHexToHash("aa")

	blkA := mkBlock(a, root, 1)
	blkA.Transactions = []*block.Transaction{{Hash: txHash}}

	blkB := mkBlock(b, a, 1)
	blkB.Transactions = []*block.Transaction{{Hash: txHash}}

	f := New()
	require.True(t, f.PushFront(blkB))
	require.True(t, f.PushFront(blkA))

	assert.True(t, f.PopulateTx(txHash))
	assert.False(t, f.PopulateTx(hash.MustHexToHash("bb")))
}

func TestPopulateSpentFindsIntraForkConflict(t *testing.T) {
	root := hash.MustHexToHash("01")
	a := hash.MustHexToHash("02")
	b := hash.MustHexToHash("03")
	spentTxHash := hash.MustHexToHash("cc")
	outpoint := block.Outpoint{TxHash: spentTxHash, Index: 0}

	blkA := mkBlock(a, root, 1)
	blkA.Transactions = []*block.Transaction{{
		Hash:   hash.MustHexToHash("dd"),
		Inputs: []block.Input{{PreviousOutpoint: &outpoint}},
	}}
	blkB := mkBlock(b, a, 1)
	blkB.Transactions = []*block.Transaction{{
		Hash:   hash.MustHexToHash("ee"),
		Inputs: []block.Input{{PreviousOutpoint: &outpoint}},
	}}

	f := New()
	require.True(t, f.PushFront(blkB))
	require.True(t, f.PushFront(blkA))

	spent, confirmed := f.PopulateSpent(outpoint)
	assert.True(t, spent)
	assert.True(t, confirmed)
}

func TestPopulateSpentIgnoresCoinbaseInputs(t *testing.T) {
	root := hash.MustHexToHash("01")
	a := hash.MustHexToHash("02")

	blkA := mkBlock(a, root, 1)
	blkA.Transactions = []*block.Transaction{{
		Hash:   hash.MustHexToHash("dd"),
		Inputs: []block.Input{{PreviousOutpoint: nil}},
	}}

	f := New()
	require.True(t, f.PushFront(blkA))

	spent, confirmed := f.PopulateSpent(block.Outpoint{TxHash: hash.ZeroHash, Index: 0})
	assert.False(t, spent)
	assert.False(t, confirmed)
}

func TestPopulatePrevoutFindsTipmostRedefinitionFirst(t *testing.T) {
	root := hash.MustHexToHash("01")
	a := hash.MustHexToHash("02")
	b := hash.MustHexToHash("03")
	txHash := hash.MustHexToHash("aa")

	blkA := mkBlock(a, root, 1)
	blkA.Transactions = []*block.Transaction{{
		Hash:    txHash,
		Outputs: []block.Output{{Value: 1}},
	}}
	blkB := mkBlock(b, a, 1)
	blkB.Transactions = []*block.Transaction{{
		Hash:    txHash,
		Outputs: []block.Output{{Value: 2}},
	}}

	f := New()
	require.True(t, f.PushFront(blkB))
	require.True(t, f.PushFront(blkA))
	f.SetHeight(5)

	op := &block.Outpoint{TxHash: txHash, Index: 0}
	f.PopulatePrevout(op)

	assert.Equal(t, int64(2), op.Cache.Value)
}

func TestPopulatePrevoutResetsNullOutpoint(t *testing.T) {
	f := New()
	op := &block.Outpoint{TxHash: hash.ZeroHash, Index: 0, Spent: true, Confirmed: true}
	f.PopulatePrevout(op)

	assert.False(t, op.Spent)
	assert.False(t, op.Confirmed)
	assert.Equal(t, block.Output{}, op.Cache)
}

func TestPopulatePrevoutRecordsCoinbaseHeightTag(t *testing.T) {
	root := hash.MustHexToHash("01")
	a := hash.MustHexToHash("02")
	txHash := hash.MustHexToHash("aa")

	blkA := mkBlock(a, root, 1)
	blkA.Transactions = []*block.Transaction{{
		Hash:    txHash,
		Outputs: []block.Output{{Value: 1}},
	}}

	f := New()
	require.True(t, f.PushFront(blkA))
	f.SetHeight(5)

	op := &block.Outpoint{TxHash: txHash, Index: 0}
	f.PopulatePrevout(op)

	assert.True(t, op.Height.Specified)
	assert.Equal(t, uint64(6), op.Height.Height)
}

func TestPopulatePrevoutNotFound(t *testing.T) {
	root := hash.MustHexToHash("01")
	a := hash.MustHexToHash("02")

	blkA := mkBlock(a, root, 1)
	f := New()
	require.True(t, f.PushFront(blkA))

	op := &block.Outpoint{TxHash: hash.MustHexToHash("ff"), Index: 0}
	before := *op
	f.PopulatePrevout(op)
	assert.Equal(t, before, *op)
}
