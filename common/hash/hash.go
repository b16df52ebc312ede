// Copyright 2017-2018 The qitmeer developers

// Package hash implements the 32-byte block/transaction identifier used
// throughout the fork organizer. Hashing algorithms themselves are a
// crypto-primitive concern and are out of scope here; this package only
// carries the already-computed digest around.
package hash

import (
	"encoding/hex"
	"fmt"
)

// HashSize is the number of bytes in a block or transaction hash.
const HashSize = 32

// MaxHashStringSize is the maximum length of a Hash hash string.
const MaxHashStringSize = HashSize * 2

// ErrHashStrSize describes an error that indicates the caller specified a
// hash string that has too many characters.
var ErrHashStrSize = fmt.Errorf("max hash string length is %v bytes", MaxHashStringSize)

// Hash is a 32-byte block or transaction identifier.
type Hash [HashSize]byte

// ZeroHash is the zero value of a Hash; it represents "no parent" for the
// genesis block and the empty Fork.
var ZeroHash = Hash{}

// String returns the Hash as the hexadecimal string of the byte-reversed
// hash, matching the convention used by the chains this design descends
// from.
func (h Hash) String() string {
	for i := 0; i < HashSize/2; i++ {
		h[i], h[HashSize-1-i] = h[HashSize-1-i], h[i]
	}
	return hex.EncodeToString(h[:])
}

// Bytes returns the hash as a byte slice. The receiver is a copy, so the
// slice does not share storage with the caller's Hash.
func (h Hash) Bytes() []byte { return h[:] }

// CloneBytes returns a copy of the bytes which represent the hash as a byte
// slice.
func (h *Hash) CloneBytes() []byte {
	newHash := make([]byte, HashSize)
	copy(newHash, h[:])
	return newHash
}

// SetBytes sets the bytes which represent the hash. An error is returned if
// the number of bytes passed in is not HashSize.
func (h *Hash) SetBytes(newHash []byte) error {
	if len(newHash) != HashSize {
		return fmt.Errorf("invalid hash length of %v, want %v", len(newHash), HashSize)
	}
	copy(h[:], newHash)
	return nil
}

// IsEqual returns true if target is the same as h. Two nil hashes are
// considered equal.
func (h *Hash) IsEqual(target *Hash) bool {
	if h == nil && target == nil {
		return true
	}
	if h == nil || target == nil {
		return false
	}
	return *h == *target
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// NewHash returns a new Hash from a byte slice. An error is returned if the
// number of bytes passed in is not HashSize.
func NewHash(newHash []byte) (*Hash, error) {
	var h Hash
	if err := h.SetBytes(newHash); err != nil {
		return nil, err
	}
	return &h, nil
}

// NewHashFromStr creates a Hash from a byte-reversed hexadecimal string.
func NewHashFromStr(s string) (*Hash, error) {
	ret := new(Hash)
	if err := Decode(ret, s); err != nil {
		return nil, err
	}
	return ret, nil
}

// Decode decodes the byte-reversed hexadecimal string encoding of a Hash
// into dst.
func Decode(dst *Hash, src string) error {
	if len(src) > MaxHashStringSize {
		return ErrHashStrSize
	}

	var srcBytes []byte
	if len(src)%2 == 0 {
		srcBytes = []byte(src)
	} else {
		srcBytes = make([]byte, 1+len(src))
		srcBytes[0] = '0'
		copy(srcBytes[1:], src)
	}

	var reversedHash Hash
	_, err := hex.Decode(reversedHash[HashSize-hex.DecodedLen(len(srcBytes)):], srcBytes)
	if err != nil {
		return err
	}

	for i, b := range reversedHash[:HashSize/2] {
		dst[i], dst[HashSize-1-i] = reversedHash[HashSize-1-i], b
	}
	return nil
}

// MustHexToHash converts a (forward, non byte-reversed) hex string to a
// Hash. It panics on invalid input; it exists for building literal hashes in
// tests and fixtures.
func MustHexToHash(s string) Hash {
	data, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}

	var h Hash
	if len(data) > len(h) {
		data = data[len(data)-HashSize:]
	}
	copy(h[HashSize-len(data):], data)
	return h
}
