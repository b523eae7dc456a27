package stablehash

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
)

// Tag bytes of the canonical wire format. Together with the length-prefix
// layout and the unordered-collection sort rule they form a versioned
// contract: changing any of them changes every digest ever produced.
const (
	tagNull     = 'N' // no payload
	tagBool     = 'B' // 1 byte, 0x00 or 0x01
	tagInt      = 'I' // length + minimal big-endian magnitude, value >= 0
	tagNegInt   = 'J' // length + minimal big-endian magnitude of -value
	tagFloat    = 'F' // 8-byte big-endian IEEE-754 bit pattern
	tagStr      = 'S' // length + UTF-8 bytes
	tagBytes    = 'Y' // length + raw bytes
	tagSequence = 'L' // count + element encodings in order
	tagSet      = 'E' // count + sorted length-prefixed element encodings
	tagMapping  = 'D' // count + sorted length-prefixed key/value encodings
	tagFallback = 'O' // length + type name, count + named field encodings
)

// Set marks a slice as an unordered collection: element order never affects
// the encoding. A plain slice is order-sensitive.
type Set []any

// CoerceFunc converts a foreign scalar (for example a fixed-width numeric
// wrapper from another library, or an opaque type like time.Time) to a value
// this package encodes natively. Returning false leaves the value untouched.
type CoerceFunc func(v any) (any, bool)

// Encoder converts a value tree into its canonical byte sequence. The zero
// configuration (as used by Encode) coerces nothing and falls back to
// exported struct fields for types with no direct encoding.
type Encoder struct {
	coerce     CoerceFunc
	noFallback bool
}

// EncoderOption configures an Encoder.
type EncoderOption func(*Encoder)

// WithCoerce installs the scalar coercion hook, applied to every value
// before kind dispatch. This is the extension point for third-party scalar
// types; the hook runs once per node, not to a fixed point.
func WithCoerce(fn CoerceFunc) EncoderOption {
	return func(e *Encoder) { e.coerce = fn }
}

// WithoutFallback disables struct field extraction, so any value without a
// direct canonical encoding fails with UnsupportedTypeError.
func WithoutFallback() EncoderOption {
	return func(e *Encoder) { e.noFallback = true }
}

// NewEncoder returns an Encoder with the given options applied.
func NewEncoder(opts ...EncoderOption) *Encoder {
	e := &Encoder{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEncoder = NewEncoder()

// Encode returns the canonical byte sequence for v using the default
// Encoder.
//
// The encoding is deterministic: semantically equal values produce identical
// bytes regardless of construction or insertion order, and no two distinct
// values share an encoding. Each value is one tag byte followed by its
// payload; variable-length payloads carry an 8-byte big-endian length or
// count prefix:
//
//	nil, nil pointers          tagNull
//	bool                       tagBool + 0x00/0x01
//	int/uint kinds, *big.Int   tagInt or tagNegInt + minimal magnitude
//	float32, float64           tagFloat + big-endian IEEE-754 bits
//	string                     tagStr + UTF-8 bytes
//	[]byte, [N]byte            tagBytes + raw bytes
//	slices, arrays             tagSequence + elements in order
//	Set                        tagSet + element encodings, sorted
//	maps                       tagMapping + pair encodings, sorted by key
//	structs                    tagFallback + type name + exported fields
//
// Unordered collections encode each element (or key-then-value pair)
// independently, sort the resulting byte strings lexicographically, and
// concatenate them length-prefixed, which removes all iteration-order
// dependence. Integer magnitudes are minimal big-endian bytes (zero is one
// 0x00 byte), so arbitrary precision is supported and int(1), uint8(1) and
// big.NewInt(1) all encode identically. Float and Int carry distinct tags,
// so 1 and 1.0 never collide.
func Encode(v any) ([]byte, error) {
	return defaultEncoder.Encode(v)
}

// Encode returns the canonical byte sequence for v.
func (e *Encoder) Encode(v any) ([]byte, error) {
	return e.AppendEncode(nil, v)
}

// AppendEncode appends the canonical byte sequence for v to dst and returns
// the extended buffer.
func (e *Encoder) AppendEncode(dst []byte, v any) ([]byte, error) {
	s := &encodeState{enc: e, visited: make(map[identity]struct{})}
	return s.append(dst, v)
}

// identity names one container object for cycle detection. Slices carry
// their length so that a subslice sharing a base array with an ancestor is
// not mistaken for that ancestor.
type identity struct {
	ptr uintptr
	len int
}

// encodeState is the per-call state of one Encode invocation. The visited
// set tracks container identities along the current path only: containers
// are added on entry and removed on exit, so sibling reuse of one object is
// allowed while ancestor reuse is a cycle.
type encodeState struct {
	enc     *Encoder
	visited map[identity]struct{}
}

func (s *encodeState) enter(id identity, t reflect.Type) error {
	if _, ok := s.visited[id]; ok {
		return fmt.Errorf("%w: %s contains itself", ErrCyclicStructure, t)
	}
	s.visited[id] = struct{}{}
	return nil
}

func (s *encodeState) exit(id identity) {
	delete(s.visited, id)
}

func (s *encodeState) append(dst []byte, v any) ([]byte, error) {
	if s.enc.coerce != nil {
		if coerced, ok := s.enc.coerce(v); ok {
			v = coerced
		}
	}
	if v == nil {
		return append(dst, tagNull), nil
	}

	switch x := v.(type) {
	case bool:
		return appendBool(dst, x), nil
	case int:
		return appendInt64(dst, int64(x)), nil
	case int8:
		return appendInt64(dst, int64(x)), nil
	case int16:
		return appendInt64(dst, int64(x)), nil
	case int32:
		return appendInt64(dst, int64(x)), nil
	case int64:
		return appendInt64(dst, x), nil
	case uint:
		return appendUint64(dst, uint64(x)), nil
	case uint8:
		return appendUint64(dst, uint64(x)), nil
	case uint16:
		return appendUint64(dst, uint64(x)), nil
	case uint32:
		return appendUint64(dst, uint64(x)), nil
	case uint64:
		return appendUint64(dst, x), nil
	case float32:
		return appendFloat(dst, float64(x)), nil
	case float64:
		return appendFloat(dst, x), nil
	case string:
		return appendString(dst, x), nil
	case []byte:
		return appendBytes(dst, x), nil
	case *big.Int:
		if x == nil {
			return append(dst, tagNull), nil
		}
		return appendBigInt(dst, x), nil
	case big.Int:
		return appendBigInt(dst, &x), nil
	case Set:
		return s.appendSet(dst, x)
	}

	return s.appendReflect(dst, reflect.ValueOf(v))
}

// appendReflect handles named types and containers that the concrete-type
// switch does not cover.
func (s *encodeState) appendReflect(dst []byte, v reflect.Value) ([]byte, error) {
	t := v.Type()
	switch v.Kind() {
	case reflect.Bool:
		return appendBool(dst, v.Bool()), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return appendInt64(dst, v.Int()), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return appendUint64(dst, v.Uint()), nil

	case reflect.Float32, reflect.Float64:
		return appendFloat(dst, v.Float()), nil

	case reflect.String:
		return appendString(dst, v.String()), nil

	case reflect.Pointer:
		if v.IsNil() {
			return append(dst, tagNull), nil
		}
		id := identity{ptr: v.Pointer()}
		if err := s.enter(id, t); err != nil {
			return nil, err
		}
		dst, err := s.append(dst, v.Elem().Interface())
		s.exit(id)
		return dst, err

	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return appendBytes(dst, v.Bytes()), nil
		}
		return s.appendSequence(dst, v)

	case reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			raw := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(raw), v)
			return appendBytes(dst, raw), nil
		}
		return s.appendSequence(dst, v)

	case reflect.Map:
		return s.appendMapping(dst, v)

	case reflect.Struct:
		if s.enc.noFallback {
			return nil, &UnsupportedTypeError{Type: t}
		}
		return s.appendFallback(dst, v)

	default:
		return nil, &UnsupportedTypeError{Type: t}
	}
}

// appendSequence encodes a slice or array in element order.
func (s *encodeState) appendSequence(dst []byte, v reflect.Value) ([]byte, error) {
	n := v.Len()
	if v.Kind() == reflect.Slice && n > 0 {
		id := identity{ptr: v.Pointer(), len: n}
		if err := s.enter(id, v.Type()); err != nil {
			return nil, err
		}
		defer s.exit(id)
	}

	dst = append(dst, tagSequence)
	dst = appendLength(dst, n)
	var err error
	for i := 0; i < n; i++ {
		dst, err = s.append(dst, v.Index(i).Interface())
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// appendSet encodes each element into its own buffer, sorts the buffers by
// lexicographic byte order, and concatenates them length-prefixed.
func (s *encodeState) appendSet(dst []byte, set Set) ([]byte, error) {
	if len(set) > 0 {
		v := reflect.ValueOf(set)
		id := identity{ptr: v.Pointer(), len: len(set)}
		if err := s.enter(id, v.Type()); err != nil {
			return nil, err
		}
		defer s.exit(id)
	}

	chunks := make([][]byte, 0, len(set))
	for _, item := range set {
		chunk, err := s.append(nil, item)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return bytes.Compare(chunks[i], chunks[j]) < 0
	})

	dst = append(dst, tagSet)
	dst = appendLength(dst, len(chunks))
	for _, chunk := range chunks {
		dst = appendLength(dst, len(chunk))
		dst = append(dst, chunk...)
	}
	return dst, nil
}

// appendMapping encodes each key and value into their own buffers, sorts
// the pairs by encoded key bytes (encoded value as tie-break), and
// concatenates them length-prefixed. Insertion and iteration order of the
// map never affect the result.
func (s *encodeState) appendMapping(dst []byte, v reflect.Value) ([]byte, error) {
	n := v.Len()
	if n > 0 {
		id := identity{ptr: v.Pointer()}
		if err := s.enter(id, v.Type()); err != nil {
			return nil, err
		}
		defer s.exit(id)
	}

	type pair struct {
		key, val []byte
	}
	pairs := make([]pair, 0, n)
	iter := v.MapRange()
	for iter.Next() {
		key, err := s.append(nil, iter.Key().Interface())
		if err != nil {
			return nil, err
		}
		val, err := s.append(nil, iter.Value().Interface())
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair{key: key, val: val})
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if c := bytes.Compare(pairs[i].key, pairs[j].key); c != 0 {
			return c < 0
		}
		return bytes.Compare(pairs[i].val, pairs[j].val) < 0
	})

	dst = append(dst, tagMapping)
	dst = appendLength(dst, len(pairs))
	for _, p := range pairs {
		dst = appendLength(dst, len(p.key))
		dst = append(dst, p.key...)
		dst = appendLength(dst, len(p.val))
		dst = append(dst, p.val...)
	}
	return dst, nil
}

// appendFallback encodes a struct as its fully-qualified type name followed
// by the exported fields in declaration order. Declaration order is part of
// the type's identity, so no sorting is needed for determinism.
func (s *encodeState) appendFallback(dst []byte, v reflect.Value) ([]byte, error) {
	t := v.Type()
	name := t.String()

	dst = append(dst, tagFallback)
	dst = appendLength(dst, len(name))
	dst = append(dst, name...)

	exported := 0
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			exported++
		}
	}
	dst = appendLength(dst, exported)

	var err error
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		dst = appendLength(dst, len(f.Name))
		dst = append(dst, f.Name...)
		dst, err = s.append(dst, v.Field(i).Interface())
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// appendLength appends an 8-byte big-endian length or count prefix.
func appendLength(dst []byte, n int) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(n))
}

func appendBool(dst []byte, b bool) []byte {
	if b {
		return append(dst, tagBool, 0x01)
	}
	return append(dst, tagBool, 0x00)
}

func appendInt64(dst []byte, x int64) []byte {
	neg := x < 0
	u := uint64(x)
	if neg {
		u = -u
	}
	return appendMagnitude(dst, neg, magnitude64(u))
}

func appendUint64(dst []byte, u uint64) []byte {
	return appendMagnitude(dst, false, magnitude64(u))
}

func appendBigInt(dst []byte, x *big.Int) []byte {
	mag := x.Bytes()
	if len(mag) == 0 {
		mag = []byte{0}
	}
	return appendMagnitude(dst, x.Sign() < 0, mag)
}

func appendMagnitude(dst []byte, neg bool, mag []byte) []byte {
	tag := byte(tagInt)
	if neg {
		tag = tagNegInt
	}
	dst = append(dst, tag)
	dst = appendLength(dst, len(mag))
	return append(dst, mag...)
}

// magnitude64 returns the minimal big-endian byte representation of u.
// Zero is one 0x00 byte so that the magnitude is never empty.
func magnitude64(u uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], u)
	i := 0
	for i < len(b)-1 && b[i] == 0 {
		i++
	}
	return b[i:]
}

func appendFloat(dst []byte, f float64) []byte {
	dst = append(dst, tagFloat)
	return binary.BigEndian.AppendUint64(dst, math.Float64bits(f))
}

func appendString(dst []byte, s string) []byte {
	dst = append(dst, tagStr)
	dst = appendLength(dst, len(s))
	return append(dst, s...)
}

func appendBytes(dst []byte, b []byte) []byte {
	dst = append(dst, tagBytes)
	dst = appendLength(dst, len(b))
	return append(dst, b...)
}
