package blockpool

import (
	"bytes"
	"encoding/gob"
	"math/big"
	"time"

	"github.com/dgraph-io/badger"

	"github.com/noxproject/forkd/common/hash"
	"github.com/noxproject/forkd/common/work"
	"github.com/noxproject/forkd/core/block"
)

// BadgerMirror is a Mirror implementation backed by dgraph-io/badger,
// chosen over bbolt for this role because it suits high-churn,
// TTL-bearing key/value workloads better than a copy-on-write b+tree.
type BadgerMirror struct {
	db *badger.DB
}

// gobBlock is the serialized form stored in badger; Block itself is not
// gob-friendly as-is because of the work.Work wrapper, so the wire-shape
// here flattens just the fields GetPath/PushFront need to reconstruct a
// usable orphan after a restart.
type gobBlock struct {
	Hash, PreviousBlockHash hash.Hash
	Bits                    uint32
	Version                 int32
	TimestampUnix           int64
	DifficultyDecimal       string
	Height                  uint64
}

// OpenBadgerMirror opens (creating if necessary) a badger store at dir for
// orphan persistence.
func OpenBadgerMirror(dir string) (*BadgerMirror, error) {
	opt := badger.DefaultOptions
	opt.Dir = dir
	opt.ValueDir = dir
	db, err := badger.Open(opt)
	if err != nil {
		return nil, err
	}
	return &BadgerMirror{db: db}, nil
}

// Put implements Mirror.
func (m *BadgerMirror) Put(blk *block.Block, ttl time.Duration) error {
	gb := gobBlock{
		Hash:              blk.Hash,
		PreviousBlockHash: blk.PreviousBlockHash,
		Bits:              blk.Bits,
		Version:           blk.Version,
		TimestampUnix:     blk.Timestamp.Unix(),
	}
	if blk.Difficulty != nil {
		gb.DifficultyDecimal = blk.Difficulty.String()
	}
	if blk.Validation != nil {
		gb.Height = blk.Validation.Height
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gb); err != nil {
		return err
	}

	return m.db.Update(func(txn *badger.Txn) error {
		return txn.SetWithTTL(blk.Hash.Bytes(), buf.Bytes(), ttl)
	})
}

// Delete implements Mirror.
func (m *BadgerMirror) Delete(h hash.Hash) error {
	return m.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(h.Bytes())
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// Close releases the underlying badger handles.
func (m *BadgerMirror) Close() error {
	return m.db.Close()
}

// All decodes and returns every orphan currently persisted in the mirror,
// for restoring the in-memory Pool on startup. Entries badger has already
// expired via their TTL are simply absent from the scan; there is nothing
// further to prune.
func (m *BadgerMirror) All() ([]*block.Block, error) {
	var blocks []*block.Block
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var gb gobBlock
			if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&gb); err != nil {
				return err
			}
			blk := block.NewBlock(gb.Hash, gb.PreviousBlockHash, gb.Bits, gb.Version, time.Unix(gb.TimestampUnix, 0), work.Zero(), nil)
			if gb.DifficultyDecimal != "" {
				if n, ok := new(big.Int).SetString(gb.DifficultyDecimal, 10); ok {
					blk.Difficulty = work.NewFromBigInt(n)
				}
			}
			blk.Validation.Height = gb.Height
			blocks = append(blocks, blk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}
