package stablehash

import (
	"encoding/hex"
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type myInt int

type point struct {
	X, Y   int
	hidden string
}

func TestEncodeScalarLayout(t *testing.T) {
	tests := []struct {
		name  string
		value any
		hex   string
	}{
		{"nil", nil, "4e"},
		{"true", true, "4201"},
		{"false", false, "4200"},
		{"zero", 0, "49000000000000000100"},
		{"one", 1, "49000000000000000101"},
		{"byte max", 255, "490000000000000001ff"},
		{"two bytes", 256, "4900000000000000020100"},
		{"minus one", -1, "4a000000000000000101"},
		{"min int64", int64(math.MinInt64), "4a00000000000000088000000000000000"},
		{"float 1.5", 1.5, "463ff8000000000000"},
		{"empty string", "", "530000000000000000"},
		{"string a", "a", "53000000000000000161"},
		{"empty bytes", []byte{}, "590000000000000000"},
		{"bytes", []byte{0x01, 0x02}, "5900000000000000020102"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.hex, hex.EncodeToString(got))
		})
	}
}

func TestEncodeNumericEquivalence(t *testing.T) {
	one, err := Encode(1)
	require.NoError(t, err)

	for _, v := range []any{int8(1), int64(1), uint(1), uint8(1), uint64(1), myInt(1), big.NewInt(1), *big.NewInt(1)} {
		got, err := Encode(v)
		require.NoError(t, err)
		assert.Equal(t, one, got, "%T(1) should encode like int(1)", v)
	}

	minusFive, err := Encode(-5)
	require.NoError(t, err)
	bigMinusFive, err := Encode(big.NewInt(-5))
	require.NoError(t, err)
	assert.Equal(t, minusFive, bigMinusFive)

	// uint64 values above MaxInt64 round-trip through the same magnitude
	// encoding as big integers.
	maxU64, err := Encode(uint64(math.MaxUint64))
	require.NoError(t, err)
	bigMaxU64, ok := new(big.Int).SetString("18446744073709551615", 10)
	require.True(t, ok)
	gotBig, err := Encode(bigMaxU64)
	require.NoError(t, err)
	assert.Equal(t, maxU64, gotBig)

	// Arbitrary precision: values wider than 64 bits still encode.
	huge, ok := new(big.Int).SetString("340282366920938463463374607431768211456", 10) // 2^128
	require.True(t, ok)
	gotHuge, err := Encode(huge)
	require.NoError(t, err)
	assert.Len(t, gotHuge, 1+8+17)
}

func TestEncodeTypeDistinctness(t *testing.T) {
	encode := func(v any) []byte {
		b, err := Encode(v)
		require.NoError(t, err)
		return b
	}

	assert.NotEqual(t, encode(1), encode(1.0), "int and float must not collide")
	assert.NotEqual(t, encode("1"), encode([]byte("1")), "string and bytes must not collide")
	assert.NotEqual(t, encode(0), encode(false))
	assert.NotEqual(t, encode(nil), encode(""))
	assert.NotEqual(t, encode(Set{1, 2}), encode([]any{1, 2}), "set and sequence must not collide")
	assert.NotEqual(t, encode([]any{}), encode(map[string]any{}))
}

func TestEncodeMappingOrderIndependence(t *testing.T) {
	m1 := map[string]any{}
	m1["a"] = 1
	m1["b"] = 2
	m1["c"] = 3

	m2 := map[string]any{}
	m2["c"] = 3
	m2["b"] = 2
	m2["a"] = 1

	e1, err := Encode(m1)
	require.NoError(t, err)
	e2, err := Encode(m2)
	require.NoError(t, err)
	assert.Equal(t, e1, e2)

	// The map's Go type does not leak into the encoding; only the entries do.
	typed, err := Encode(map[string]int{"a": 1, "b": 2, "c": 3})
	require.NoError(t, err)
	assert.Equal(t, e1, typed)
	anyKeys, err := Encode(map[any]any{"a": 1, "b": 2, "c": 3})
	require.NoError(t, err)
	assert.Equal(t, e1, anyKeys)
}

func TestEncodeSetOrderIndependence(t *testing.T) {
	e1, err := Encode(Set{1, 2, 3})
	require.NoError(t, err)
	e2, err := Encode(Set{3, 2, 1})
	require.NoError(t, err)
	assert.Equal(t, e1, e2)

	single, err := Encode(Set{1})
	require.NoError(t, err)
	doubled, err := Encode(Set{1, 1})
	require.NoError(t, err)
	assert.NotEqual(t, single, doubled, "duplicate elements are preserved")
}

func TestEncodeSequenceOrderSensitive(t *testing.T) {
	e1, err := Encode([]any{1, 2})
	require.NoError(t, err)
	e2, err := Encode([]any{2, 1})
	require.NoError(t, err)
	assert.NotEqual(t, e1, e2)

	fromArray, err := Encode([2]int{1, 2})
	require.NoError(t, err)
	fromSlice, err := Encode([]int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, fromSlice, fromArray)
}

func TestEncodeNilContainers(t *testing.T) {
	nilSlice, err := Encode([]any(nil))
	require.NoError(t, err)
	emptySlice, err := Encode([]any{})
	require.NoError(t, err)
	assert.Equal(t, emptySlice, nilSlice)

	nilMap, err := Encode(map[string]int(nil))
	require.NoError(t, err)
	emptyMap, err := Encode(map[string]int{})
	require.NoError(t, err)
	assert.Equal(t, emptyMap, nilMap)

	var p *int
	nullEnc, err := Encode(nil)
	require.NoError(t, err)
	ptrEnc, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, nullEnc, ptrEnc)

	five := 5
	deref, err := Encode(&five)
	require.NoError(t, err)
	direct, err := Encode(5)
	require.NoError(t, err)
	assert.Equal(t, direct, deref, "pointers encode as their pointee")
}

func TestEncodeByteArray(t *testing.T) {
	fromArray, err := Encode([3]byte{1, 2, 3})
	require.NoError(t, err)
	fromSlice, err := Encode([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, fromSlice, fromArray)
}

func TestEncodeDeterminism(t *testing.T) {
	value := map[string]any{
		"ints":    []any{1, -2, big.NewInt(3)},
		"nested":  map[string]any{"x": Set{"a", "b"}, "y": nil},
		"floats":  []float64{0.5, -0.5},
		"payload": []byte{0xde, 0xad},
	}
	first, err := Encode(value)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Encode(value)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestEncodeFallbackStruct(t *testing.T) {
	e1, err := Encode(point{X: 1, Y: 2, hidden: "ignored"})
	require.NoError(t, err)
	e2, err := Encode(point{X: 1, Y: 2, hidden: "also ignored"})
	require.NoError(t, err)
	assert.Equal(t, e1, e2, "unexported fields do not affect the encoding")

	e3, err := Encode(point{X: 9, Y: 2})
	require.NoError(t, err)
	assert.NotEqual(t, e1, e3)

	// The type name is part of the fallback encoding.
	type otherPoint struct{ X, Y int }
	e4, err := Encode(otherPoint{X: 1, Y: 2})
	require.NoError(t, err)
	assert.NotEqual(t, e1, e4)
}

func TestEncodeWithoutFallback(t *testing.T) {
	enc := NewEncoder(WithoutFallback())
	_, err := enc.Encode(point{X: 1, Y: 2})
	require.ErrorIs(t, err, ErrUnsupportedType)

	var ute *UnsupportedTypeError
	require.ErrorAs(t, err, &ute)
	assert.Equal(t, "stablehash.point", ute.Type.String())
}

func TestEncodeCoerceHook(t *testing.T) {
	// complex128 has no canonical encoding of its own.
	_, err := Encode(complex(1.5, 0))
	require.ErrorIs(t, err, ErrUnsupportedType)

	enc := NewEncoder(WithCoerce(func(v any) (any, bool) {
		if c, ok := v.(complex128); ok && imag(c) == 0 {
			return real(c), true
		}
		return nil, false
	}))
	got, err := enc.Encode(complex(1.5, 0))
	require.NoError(t, err)
	want, err := Encode(1.5)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// The hook reaches nested values too.
	nested, err := enc.Encode([]any{complex(1.5, 0)})
	require.NoError(t, err)
	wantNested, err := Encode([]any{1.5})
	require.NoError(t, err)
	assert.Equal(t, wantNested, nested)
}

func TestEncodeUnsupportedTypes(t *testing.T) {
	for _, v := range []any{make(chan int), func() {}, complex(1, 2)} {
		_, err := Encode(v)
		assert.ErrorIs(t, err, ErrUnsupportedType, "%T", v)
	}
}

func TestEncodeCycleRejection(t *testing.T) {
	t.Run("slice", func(t *testing.T) {
		s := make([]any, 1)
		s[0] = s
		_, err := Encode(s)
		require.ErrorIs(t, err, ErrCyclicStructure)
	})

	t.Run("set", func(t *testing.T) {
		s := make(Set, 1)
		s[0] = s
		_, err := Encode(s)
		require.ErrorIs(t, err, ErrCyclicStructure)
	})

	t.Run("map", func(t *testing.T) {
		m := map[string]any{}
		m["self"] = m
		_, err := Encode(m)
		require.ErrorIs(t, err, ErrCyclicStructure)
	})

	t.Run("transitive", func(t *testing.T) {
		inner := map[string]any{}
		outer := map[string]any{"inner": inner}
		inner["outer"] = outer
		_, err := Encode(outer)
		require.ErrorIs(t, err, ErrCyclicStructure)
	})

	t.Run("pointer", func(t *testing.T) {
		type node struct {
			Name string
			Next *node
		}
		a := &node{Name: "a"}
		b := &node{Name: "b", Next: a}
		a.Next = b
		_, err := Encode(a)
		require.ErrorIs(t, err, ErrCyclicStructure)
	})
}

func TestEncodeSiblingReuseAllowed(t *testing.T) {
	shared := []any{1, 2}
	got, err := Encode([]any{shared, shared})
	require.NoError(t, err)

	// Repeated but distinct equal substructures are not deduplicated.
	want, err := Encode([]any{[]any{1, 2}, []any{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAppendEncode(t *testing.T) {
	enc := NewEncoder()
	got, err := enc.AppendEncode([]byte{0xaa, 0xbb}, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xbb, tagBool, 0x01}, got)
}
