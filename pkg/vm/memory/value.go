package memory

import (
	"fmt"

	f "github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

// valueKind tags which variant of MemoryValue is populated. The zero value
// (unknownValue) represents an unwritten cell.
type valueKind uint8

const (
	unknownValue valueKind = iota
	feltValue
	addressValue
)

// MemoryValue is either a field element or a memory address (spec.md §3,
// `V = F | A`). The VM never coerces between the two: every accessor that
// needs one kind fails with a typed error when given the other.
type MemoryValue struct {
	kind    valueKind
	felt    Felt
	address MemoryAddress
}

// UnknownValue represents an unwritten memory cell.
var UnknownValue = MemoryValue{}

func MemoryValueFromFieldElement(value *f.Element) MemoryValue {
	return MemoryValue{kind: feltValue, felt: *value}
}

func MemoryValueFromMemoryAddress(address *MemoryAddress) MemoryValue {
	return MemoryValue{kind: addressValue, address: *address}
}

func MemoryValueFromSegmentAndOffset(segmentIndex int64, offset uint64) MemoryValue {
	return MemoryValue{kind: addressValue, address: MemoryAddress{SegmentIndex: segmentIndex, Offset: offset}}
}

// MemoryValueFromUint builds a field-element MemoryValue from an unsigned
// integer of any width, matching the teacher's generics-based convenience
// constructor.
func MemoryValueFromUint[T ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64](v T) MemoryValue {
	var felt f.Element
	felt.SetUint64(uint64(v))
	return MemoryValue{kind: feltValue, felt: felt}
}

func MemoryValueFromInt[T ~int | ~int8 | ~int16 | ~int32 | ~int64](v T) MemoryValue {
	var felt f.Element
	if v < 0 {
		felt.SetUint64(uint64(-v))
		felt.Neg(&felt)
	} else {
		felt.SetUint64(uint64(v))
	}
	return MemoryValue{kind: feltValue, felt: felt}
}

// EmptyMemoryValueAsFelt returns the zero value tagged as a field element,
// used as the accumulator for arithmetic between two known field elements.
func EmptyMemoryValueAsFelt() MemoryValue {
	return MemoryValue{kind: feltValue}
}

// EmptyMemoryValueAsAddress returns the zero value tagged as an address,
// used as the accumulator when at least one operand is an address.
func EmptyMemoryValueAsAddress() MemoryValue {
	return MemoryValue{kind: addressValue}
}

// EmptyMemoryValueAs picks the felt or address tag depending on asAddress,
// mirroring the teacher's `res := mem.EmptyMemoryValueAs(...)` call sites.
func EmptyMemoryValueAs(asAddress bool) MemoryValue {
	if asAddress {
		return EmptyMemoryValueAsAddress()
	}
	return EmptyMemoryValueAsFelt()
}

func (mv *MemoryValue) Known() bool {
	return mv.kind != unknownValue
}

func (mv *MemoryValue) IsAddress() bool {
	return mv.kind == addressValue
}

func (mv *MemoryValue) IsFelt() bool {
	return mv.kind == feltValue
}

func (mv *MemoryValue) ToFieldElement() (*Felt, error) {
	if mv.kind != feltValue {
		return nil, fmt.Errorf("expected field element, got %s", mv.String())
	}
	return &mv.felt, nil
}

func (mv *MemoryValue) ToMemoryAddress() (*MemoryAddress, error) {
	if mv.kind != addressValue {
		return nil, fmt.Errorf("expected relocatable, got %s", mv.String())
	}
	return &mv.address, nil
}

// MemoryAddress is a convenience alias used by hint code that prefers a
// value receiver over the pointer-returning ToMemoryAddress.
func (mv MemoryValue) MemoryAddress() (MemoryAddress, error) {
	if mv.kind != addressValue {
		return UnknownAddress, fmt.Errorf("expected relocatable, got %s", mv.String())
	}
	return mv.address, nil
}

func (mv *MemoryValue) Uint64() (uint64, error) {
	felt, err := mv.ToFieldElement()
	if err != nil {
		return 0, err
	}
	if !felt.IsUint64() {
		return 0, fmt.Errorf("felt %s does not fit in a uint64", felt.String())
	}
	return felt.Uint64(), nil
}

func (mv *MemoryValue) Equal(other *MemoryValue) bool {
	if mv.kind != other.kind {
		return false
	}
	switch mv.kind {
	case feltValue:
		return mv.felt.Equal(&other.felt)
	case addressValue:
		return mv.address.Equal(&other.address)
	default:
		return true
	}
}

func (mv MemoryValue) String() string {
	switch mv.kind {
	case feltValue:
		return mv.felt.String()
	case addressValue:
		return mv.address.String()
	default:
		return "<unknown>"
	}
}

// Add writes lhs+rhs into mv, following the address-arithmetic restrictions
// of spec.md §4.1: Felt+Felt, Address+Felt and Felt+Address are legal,
// Address+Address is RelocatableAdd.
func (mv *MemoryValue) Add(lhs, rhs *MemoryValue) error {
	switch {
	case lhs.IsFelt() && rhs.IsFelt():
		var sum f.Element
		sum.Add(&lhs.felt, &rhs.felt)
		*mv = MemoryValue{kind: feltValue, felt: sum}
		return nil
	case lhs.IsAddress() && rhs.IsFelt():
		var addr MemoryAddress
		if err := addr.Add(&lhs.address, &rhs.felt); err != nil {
			return err
		}
		*mv = MemoryValue{kind: addressValue, address: addr}
		return nil
	case lhs.IsFelt() && rhs.IsAddress():
		var addr MemoryAddress
		if err := addr.Add(&rhs.address, &lhs.felt); err != nil {
			return err
		}
		*mv = MemoryValue{kind: addressValue, address: addr}
		return nil
	default:
		return fmt.Errorf("relocatable + relocatable: %s + %s", lhs.String(), rhs.String())
	}
}

// Sub writes lhs-rhs into mv. Address-Address yields a Felt (the unsigned
// offset difference); Address-Felt yields an Address; Felt-Felt yields a
// Felt. Felt-Address is not defined.
func (mv *MemoryValue) Sub(lhs, rhs *MemoryValue) error {
	switch {
	case lhs.IsFelt() && rhs.IsFelt():
		var diff f.Element
		diff.Sub(&lhs.felt, &rhs.felt)
		*mv = MemoryValue{kind: feltValue, felt: diff}
		return nil
	case lhs.IsAddress() && rhs.IsFelt():
		var negated f.Element
		negated.Neg(&rhs.felt)
		var addr MemoryAddress
		if err := addr.Add(&lhs.address, &negated); err != nil {
			return err
		}
		*mv = MemoryValue{kind: addressValue, address: addr}
		return nil
	case lhs.IsAddress() && rhs.IsAddress():
		diff, err := lhs.address.SubAddress(&rhs.address)
		if err != nil {
			return err
		}
		var felt f.Element
		felt.SetUint64(diff)
		*mv = MemoryValue{kind: feltValue, felt: felt}
		return nil
	default:
		return fmt.Errorf("cannot subtract %s from %s", rhs.String(), lhs.String())
	}
}

// Mul writes lhs*rhs into mv. Only Felt*Felt is defined (spec.md §4.1,
// `PureValue`).
func (mv *MemoryValue) Mul(lhs, rhs *MemoryValue) error {
	if !lhs.IsFelt() || !rhs.IsFelt() {
		return fmt.Errorf("multiplication is only defined between field elements: %s * %s", lhs.String(), rhs.String())
	}
	var prod f.Element
	prod.Mul(&lhs.felt, &rhs.felt)
	*mv = MemoryValue{kind: feltValue, felt: prod}
	return nil
}

// Div writes lhs/rhs (lhs * rhs^-1) into mv. Only defined for nonzero Felts.
func (mv *MemoryValue) Div(lhs, rhs *MemoryValue) error {
	if !lhs.IsFelt() || !rhs.IsFelt() {
		return fmt.Errorf("division is only defined between field elements: %s / %s", lhs.String(), rhs.String())
	}
	if rhs.felt.IsZero() {
		return fmt.Errorf("division by zero")
	}
	var inv, quot f.Element
	inv.Inverse(&rhs.felt)
	quot.Mul(&lhs.felt, &inv)
	*mv = MemoryValue{kind: feltValue, felt: quot}
	return nil
}

// Relocate rewrites an address-valued cell through the relocation table,
// leaving field-element cells untouched. Used by Memory.RelocateMemory.
func (mv MemoryValue) Relocate(rules map[int64]MemoryAddress) (MemoryValue, error) {
	if mv.kind != addressValue {
		return mv, nil
	}
	resolved, err := mv.address.Relocate(rules)
	if err != nil {
		return MemoryValue{}, err
	}
	return MemoryValueFromMemoryAddress(&resolved), nil
}
