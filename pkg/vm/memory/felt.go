package memory

import (
	f "github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

// Felt is an element of the Cairo prime field (2^251 + 17*2^192 + 1). It is
// a thin alias over the gnark-crypto stark-curve field element, giving the
// rest of the VM a short name while keeping the arithmetic (Montgomery
// reduction, constant-time ops) implemented by the ecc library.
type Felt = f.Element

// FeltFromDecString parses a base-10 string into a Felt, panicking on a
// malformed literal. Used for constants compiled into the VM, never for
// untrusted input.
func FeltFromDecString(s string) Felt {
	var e f.Element
	if _, err := e.SetString(s); err != nil {
		panic(err)
	}
	return e
}

// FeltFromUint64 builds a Felt from a small unsigned integer.
func FeltFromUint64(v uint64) Felt {
	var e f.Element
	e.SetUint64(v)
	return e
}
