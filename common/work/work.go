// Package work implements the 256-bit accumulated-work scalar used to
// compare the fork against the competing segment of the confirmed chain.
// It wraps math/big rather than hand-rolling fixed-width arithmetic.
package work

import "math/big"

// Work is a non-negative 256-bit accumulated-work scalar.
type Work struct {
	v big.Int
}

// Zero returns the zero Work value.
func Zero() *Work {
	return &Work{}
}

// NewFromUint64 builds a Work from a single block's difficulty scalar.
func NewFromUint64(n uint64) *Work {
	w := &Work{}
	w.v.SetUint64(n)
	return w
}

// NewFromBigInt copies n into a new Work. n must be non-negative.
func NewFromBigInt(n *big.Int) *Work {
	w := &Work{}
	if n != nil {
		w.v.Set(n)
	}
	return w
}

// Add returns a new Work equal to w+other; neither operand is mutated.
func (w *Work) Add(other *Work) *Work {
	out := &Work{}
	out.v.Add(&w.v, &other.v)
	return out
}

// Cmp compares w to other: -1 if w<other, 0 if equal, +1 if w>other.
func (w *Work) Cmp(other *Work) int {
	return w.v.Cmp(&other.v)
}

// BigInt returns a copy of the underlying big.Int.
func (w *Work) BigInt() *big.Int {
	return new(big.Int).Set(&w.v)
}

// String renders the decimal representation of the scalar.
func (w *Work) String() string {
	return w.v.String()
}
