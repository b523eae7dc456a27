// Package stablehash computes deterministic, keyed 64-bit digests of
// arbitrary nested Go values.
//
// Values are first converted to a canonical byte sequence (see Encode):
// maps and Sets encode identically regardless of insertion or iteration
// order, integers of any width and precision share one representation, and
// every distinct value has a distinct encoding. The sequence is then fed to
// a keyed pseudorandom function, SipHash-2-4 by default, so digests are
// reproducible across processes and platforms yet unpredictable without the
// key, which protects hash-based structures against flooding attacks.
//
// The canonical byte layout and the SipHash round constants are a wire
// contract: digests are stable across releases unless the documented tag
// table changes, and interoperate with any conforming implementation.
//
// Typical use:
//
//	d, err := stablehash.Sum(map[string]any{"a": 1, "b": []any{2, 3}}, key)
//	if err != nil {
//		return err
//	}
//	partition := d.Uint64() % uint64(shards)
//
// For incremental hashing of raw bytes, use New and the hash.Hash64 it
// returns; for canonical bytes without hashing, use Encode.
package stablehash

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Algo selects the keyed PRF consuming the canonical byte sequence. All
// algorithms share the same canonical encoder front end.
type Algo string

const (
	// AlgoSipHash24 is SipHash-2-4, the default.
	AlgoSipHash24 Algo = "siphash24"

	// AlgoBLAKE2b is BLAKE2b in keyed MAC mode, truncated to 64 bits.
	AlgoBLAKE2b Algo = "blake2b"
)

// Digest is a finalized 64-bit digest in canonical (big-endian) byte order.
type Digest [Size]byte

// Bytes returns the digest as a copy of its 8 big-endian bytes.
func (d Digest) Bytes() []byte {
	b := d
	return b[:]
}

// Hex returns the digest as a fixed-width lowercase hex string.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// Uint64 returns the digest as a platform-independent unsigned integer.
func (d Digest) Uint64() uint64 {
	return binary.BigEndian.Uint64(d[:])
}

// Sum computes the SipHash-2-4 digest of value under the given 16-byte key.
func Sum(value any, key []byte) (Digest, error) {
	return SumAlgo(value, key, AlgoSipHash24)
}

// SumAlgo computes the digest of value under the given 16-byte key with the
// selected algorithm. The value is canonicalized once and fed through one
// fresh hashing session; on any error no digest is returned.
func SumAlgo(value any, key []byte, algo Algo) (Digest, error) {
	return sumEncoder(defaultEncoder, value, key, algo)
}

// SumEncoder is SumAlgo with a caller-configured Encoder, for callers that
// need the coercion hook or fallback control.
func SumEncoder(enc *Encoder, value any, key []byte, algo Algo) (Digest, error) {
	return sumEncoder(enc, value, key, algo)
}

func sumEncoder(enc *Encoder, value any, key []byte, algo Algo) (Digest, error) {
	encoded, err := enc.Encode(value)
	if err != nil {
		return Digest{}, err
	}

	var d Digest
	switch algo {
	case AlgoSipHash24:
		h, err := New(key)
		if err != nil {
			return Digest{}, err
		}
		h.Write(encoded)
		binary.BigEndian.PutUint64(d[:], h.Sum64())
		return d, nil

	case AlgoBLAKE2b:
		// blake2b accepts keys up to 64 bytes; hold it to the same
		// 16-byte contract so keys stay interchangeable across algos.
		if len(key) != KeySize {
			return Digest{}, fmt.Errorf("%w: got %d bytes", ErrInvalidKeyLength, len(key))
		}
		h, err := blake2b.New(Size, key)
		if err != nil {
			return Digest{}, err
		}
		h.Write(encoded)
		h.Sum(d[:0])
		return d, nil

	default:
		return Digest{}, fmt.Errorf("%w: %q", ErrUnknownAlgo, algo)
	}
}
