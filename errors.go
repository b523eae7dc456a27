package stablehash

import (
	"errors"
	"fmt"
	"reflect"
)

// Sentinel errors. All are fatal per call: no partial or best-effort digest
// is ever produced, so a returned digest is always computed from a fully
// canonicalized value.
var (
	// ErrInvalidKeyLength indicates a key that is not exactly 16 bytes.
	ErrInvalidKeyLength = errors.New("stablehash: key must be exactly 16 bytes")

	// ErrUnsupportedType indicates a value with no canonical encoding and
	// no usable fallback field mapping.
	ErrUnsupportedType = errors.New("stablehash: unsupported type")

	// ErrCyclicStructure indicates a container that contains itself,
	// directly or transitively, along one encoding path.
	ErrCyclicStructure = errors.New("stablehash: cyclic structure")

	// ErrUnknownAlgo indicates an algorithm selector this package does not
	// implement.
	ErrUnknownAlgo = errors.New("stablehash: unknown algorithm")
)

// UnsupportedTypeError reports the Go type that could not be canonicalized.
// It matches ErrUnsupportedType under errors.Is.
type UnsupportedTypeError struct {
	Type reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	if e.Type == nil {
		return ErrUnsupportedType.Error()
	}
	return fmt.Sprintf("%v: %s", ErrUnsupportedType, e.Type)
}

func (e *UnsupportedTypeError) Unwrap() error { return ErrUnsupportedType }
