package stablehash

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
)

const (
	// KeySize is the required key length in bytes. Keys are used as-is;
	// no derivation or stretching is performed.
	KeySize = 16

	// Size is the digest length in bytes.
	Size = 8

	// BlockSize is the SipHash compression block size in bytes.
	BlockSize = 8
)

// SipHash-2-4 initialization constants ("somepseudorandomlygeneratedbytes").
const (
	sipC0 = 0x736f6d6570736575
	sipC1 = 0x646f72616e646f6d
	sipC2 = 0x6c7967656e657261
	sipC3 = 0x7465646279746573
)

// Hash is a streaming SipHash-2-4 session. It implements hash.Hash64.
//
// A Hash is not safe for concurrent use; fork independent continuations
// with Clone instead of sharing one session across goroutines.
type Hash struct {
	v0, v1, v2, v3 uint64
	k0, k1         uint64
	buf            [BlockSize]byte
	n              int    // pending bytes in buf, always < BlockSize
	length         uint64 // total bytes written
}

var _ hash.Hash64 = (*Hash)(nil)

// New returns a SipHash-2-4 session keyed with the given 16-byte key.
func New(key []byte) (*Hash, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeyLength, len(key))
	}
	h := &Hash{
		k0: binary.LittleEndian.Uint64(key[0:8]),
		k1: binary.LittleEndian.Uint64(key[8:16]),
	}
	h.Reset()
	return h, nil
}

// Reset restores the session to its initial state for the same key.
func (h *Hash) Reset() {
	h.v0 = sipC0 ^ h.k0
	h.v1 = sipC1 ^ h.k1
	h.v2 = sipC2 ^ h.k0
	h.v3 = sipC3 ^ h.k1
	h.n = 0
	h.length = 0
}

// Write absorbs data into the session. Chunking is irrelevant: any split of
// the same byte stream across Write calls yields the same digest. The error
// is always nil.
func (h *Hash) Write(p []byte) (int, error) {
	written := len(p)
	h.length += uint64(written)

	if h.n > 0 {
		c := copy(h.buf[h.n:], p)
		h.n += c
		p = p[c:]
		if h.n == BlockSize {
			h.compress(binary.LittleEndian.Uint64(h.buf[:]))
			h.n = 0
		}
	}

	for len(p) >= BlockSize {
		h.compress(binary.LittleEndian.Uint64(p))
		p = p[BlockSize:]
	}

	if len(p) > 0 {
		h.n = copy(h.buf[:], p)
	}
	return written, nil
}

// Sum64 finalizes and returns the 64-bit digest. It operates on a snapshot,
// so the session remains updatable and repeated calls are consistent.
func (h *Hash) Sum64() uint64 {
	s := *h

	// Final block: 0-7 leftover bytes, zero padding, and the total message
	// length mod 256 in the top byte.
	var tail [BlockSize]byte
	copy(tail[:], s.buf[:s.n])
	tail[BlockSize-1] = byte(s.length)
	s.compress(binary.LittleEndian.Uint64(tail[:]))

	s.v2 ^= 0xff
	s.round()
	s.round()
	s.round()
	s.round()
	return s.v0 ^ s.v1 ^ s.v2 ^ s.v3
}

// Sum appends the 8 digest bytes, big-endian, to b. Does not modify the
// session state.
func (h *Hash) Sum(b []byte) []byte {
	return binary.BigEndian.AppendUint64(b, h.Sum64())
}

// Hex returns the digest as a fixed-width lowercase hex string of the
// big-endian digest bytes.
func (h *Hash) Hex() string {
	var d [Size]byte
	binary.BigEndian.PutUint64(d[:], h.Sum64())
	return hex.EncodeToString(d[:])
}

// Clone returns an independent session with identical state. Subsequent
// writes to either session do not affect the other.
func (h *Hash) Clone() *Hash {
	dup := *h
	return &dup
}

// Size returns the digest length in bytes.
func (h *Hash) Size() int { return Size }

// BlockSize returns the compression block size in bytes.
func (h *Hash) BlockSize() int { return BlockSize }

// compress absorbs one 8-byte little-endian block: 2 rounds per block
// (the "2" in SipHash-2-4).
func (h *Hash) compress(m uint64) {
	h.v3 ^= m
	h.round()
	h.round()
	h.v0 ^= m
}

// round is the SipRound permutation. The rotation constants and their order
// are the compatibility contract with every other conforming implementation.
func (h *Hash) round() {
	v0, v1, v2, v3 := h.v0, h.v1, h.v2, h.v3

	v0 += v1
	v1 = v1<<13 | v1>>(64-13)
	v1 ^= v0
	v0 = v0<<32 | v0>>(64-32)

	v2 += v3
	v3 = v3<<16 | v3>>(64-16)
	v3 ^= v2

	v0 += v3
	v3 = v3<<21 | v3>>(64-21)
	v3 ^= v0

	v2 += v1
	v1 = v1<<17 | v1>>(64-17)
	v1 ^= v2
	v2 = v2<<32 | v2>>(64-32)

	h.v0, h.v1, h.v2, h.v3 = v0, v1, v2, v3
}
