package memory

import (
	"errors"
	"fmt"

	"github.com/cairo-vm/cairo-vm-go/pkg/safemath"
)

// MemoryAddress is a (segment_index, offset) pair. A negative SegmentIndex
// denotes a temporary segment, addressable only until relocation merges it
// into a real segment (spec.md §3). Ordering is only meaningful within a
// single segment; comparing across segments is a programming error.
type MemoryAddress struct {
	SegmentIndex int64
	Offset       uint64
}

// UnknownAddress is returned alongside errors where no address is known.
var UnknownAddress = MemoryAddress{}

func (address *MemoryAddress) IsTemporary() bool {
	return address.SegmentIndex < 0
}

// Relocate resolves a temporary segment index against a relocation table,
// translating `|index|-1` into the real destination plus offset.
func (address MemoryAddress) Relocate(rules map[int64]MemoryAddress) (MemoryAddress, error) {
	if !address.IsTemporary() {
		return address, nil
	}
	dst, ok := rules[address.SegmentIndex]
	if !ok {
		return UnknownAddress, fmt.Errorf("no relocation rule for temporary segment %d", -address.SegmentIndex-1)
	}
	return MemoryAddress{SegmentIndex: dst.SegmentIndex, Offset: dst.Offset + address.Offset}, nil
}

func (address *MemoryAddress) Equal(other *MemoryAddress) bool {
	if address == nil || other == nil {
		return address == other
	}
	return address.SegmentIndex == other.SegmentIndex && address.Offset == other.Offset
}

func (address *MemoryAddress) String() string {
	return fmt.Sprintf("%d:%d", address.SegmentIndex, address.Offset)
}

// Add adds a Felt offset to the address, failing if the resulting offset
// cannot be represented as a usize (spec.md §4.1, `OffsetTooLarge`).
func (address *MemoryAddress) Add(base *MemoryAddress, value *Felt) error {
	if !value.IsUint64() {
		// a field element p-k stands for -k: step back when that stays
		// at or above offset 0.
		var negated Felt
		negated.Neg(value)
		if !negated.IsUint64() || negated.Uint64() > base.Offset {
			return fmt.Errorf("offset too large: %s", value.String())
		}
		address.SegmentIndex = base.SegmentIndex
		address.Offset = base.Offset - negated.Uint64()
		return nil
	}
	delta := value.Uint64()
	newOffset := base.Offset + delta
	if newOffset < base.Offset {
		return errors.New("offset overflow")
	}
	address.SegmentIndex = base.SegmentIndex
	address.Offset = newOffset
	return nil
}

// AddOffset adds a small signed offset (as used by op1 address computation),
// failing with OffsetNegative when the result would be negative.
func (address *MemoryAddress) AddOffset(base *MemoryAddress, offset int16) error {
	newOffset, overflow := safemath.SafeOffset(base.Offset, offset)
	if overflow {
		return fmt.Errorf("offset negative or overflowing: %d + %d", base.Offset, offset)
	}
	address.SegmentIndex = base.SegmentIndex
	address.Offset = newOffset
	return nil
}

// SubAddress computes the unsigned difference between two addresses in the
// same segment (spec.md §4.1, `A - A`). Fails with DiffIndexSub across
// segments.
func (address *MemoryAddress) SubAddress(other *MemoryAddress) (uint64, error) {
	if address.SegmentIndex != other.SegmentIndex {
		return 0, fmt.Errorf("cannot subtract addresses of different segments: %d, %d", address.SegmentIndex, other.SegmentIndex)
	}
	if address.Offset < other.Offset {
		return 0, fmt.Errorf("relocatable subtraction offset underflow: %d - %d", address.Offset, other.Offset)
	}
	return address.Offset - other.Offset, nil
}
