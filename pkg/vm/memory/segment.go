package memory

import (
	"fmt"

	"github.com/cairo-vm/cairo-vm-go/pkg/safemath"
)

// ValidationRule is a function-like object invoked on every successful
// insert into the segment it is installed on (spec.md §3). A failing rule
// rolls the insert back to "unwritten".
type ValidationRule interface {
	Validate(memory *Memory, address MemoryAddress, value *MemoryValue) error
}

// ValidationRuleFunc adapts a plain function to ValidationRule.
type ValidationRuleFunc func(memory *Memory, address MemoryAddress, value *MemoryValue) error

func (f ValidationRuleFunc) Validate(memory *Memory, address MemoryAddress, value *MemoryValue) error {
	return f(memory, address, value)
}

// AutoDeductionRule is called on a read miss against the segment it is
// installed on. It receives only the address and a read-only capability
// over memory, never a back-reference to the segment or builtin that owns
// it — this is the indirection that breaks the memory/builtin reference
// cycle described in spec.md §9.
type AutoDeductionRule interface {
	DeduceMemoryCell(address MemoryAddress, memory *Memory) (*MemoryValue, error)
}

// Segment is a sparse, monotonically growing vector of optional cells,
// plus the bookkeeping spec.md §3 assigns to it: known/used size, public
// memory offsets, validation rules and auto-deduction hooks.
type Segment struct {
	Data      []MemoryValue
	accessed  []bool
	LastIndex int

	// KnownSize, when set, is the segment's size as declared up front
	// (e.g. the program segment's bytecode length). Used during
	// finalization to distinguish "never written" from "not yet grown".
	KnownSize *uint64
	// usedSize is populated by an explicit Memory.ComputeEffectiveSizes pass.
	usedSize *uint64

	PublicMemoryOffsets []uint64

	validationRules    []ValidationRule
	autoDeductionRules []AutoDeductionRule
}

func EmptySegment() *Segment {
	return &Segment{
		Data:      make([]MemoryValue, 0, 100),
		accessed:  make([]bool, 0, 100),
		LastIndex: -1,
	}
}

func EmptySegmentWithCapacity(capacity int) *Segment {
	return &Segment{
		Data:      make([]MemoryValue, 0, capacity),
		accessed:  make([]bool, 0, capacity),
		LastIndex: -1,
	}
}

func EmptySegmentWithLength(length int) *Segment {
	return &Segment{
		Data:      make([]MemoryValue, length),
		accessed:  make([]bool, length),
		LastIndex: length - 1,
	}
}

// Len returns the effective size of the segment: the rightmost index that
// has been written or read (a read of an unwritten cell counts too) + 1.
func (segment *Segment) Len() uint64 {
	return uint64(segment.LastIndex + 1)
}

// RealLen returns the real backing-array length, which may exceed Len due
// to amortized growth.
func (segment *Segment) RealLen() uint64 {
	return uint64(len(segment.Data))
}

// AddValidationRule installs a rule run on every future insert. It is not
// retroactively applied; callers that load memory in bulk before adding
// rules should call Memory.RunValidationRules afterwards.
func (segment *Segment) AddValidationRule(rule ValidationRule) {
	segment.validationRules = append(segment.validationRules, rule)
}

func (segment *Segment) AddAutoDeductionRule(rule AutoDeductionRule) {
	segment.autoDeductionRules = append(segment.autoDeductionRules, rule)
}

// write performs the write-once-with-consistency insert described in
// spec.md §3: writing v to a cell already holding v' succeeds iff v == v'.
func (segment *Segment) write(offset uint64, value *MemoryValue) error {
	if offset >= segment.RealLen() {
		segment.growTo(offset + 1)
	}
	if offset >= segment.Len() {
		segment.LastIndex = int(offset)
	}

	cell := &segment.Data[offset]
	if cell.Known() && !cell.Equal(value) {
		return fmt.Errorf(
			"inconsistent memory: old value %s, new value %s at offset %d",
			cell.String(), value.String(), offset,
		)
	}
	*cell = *value
	return nil
}

func (segment *Segment) markAccessed(offset uint64) {
	if offset >= uint64(len(segment.accessed)) {
		return
	}
	segment.accessed[offset] = true
}

func (segment *Segment) peek(offset uint64) MemoryValue {
	if offset >= segment.RealLen() {
		segment.growTo(offset + 1)
	}
	if offset >= segment.Len() {
		segment.LastIndex = int(offset)
	}
	return segment.Data[offset]
}

// growTo increases the segment's allocated space, amortizing growth by
// doubling. Panics if asked to shrink — that would indicate a logic error
// in the caller, not a recoverable condition.
func (segment *Segment) growTo(newSize uint64) {
	if len(segment.Data) > int(newSize) {
		panic(fmt.Sprintf("cannot decrease segment size: %d -> %d", len(segment.Data), newSize))
	}

	target := safemath.Max(newSize, uint64(len(segment.Data)*2))
	if target == 0 {
		target = newSize
	}

	newData := make([]MemoryValue, target)
	copy(newData, segment.Data)
	segment.Data = newData

	newAccessed := make([]bool, target)
	copy(newAccessed, segment.accessed)
	segment.accessed = newAccessed
}

// SetUsedSize records the result of an explicit effective-size pass.
func (segment *Segment) SetUsedSize(size uint64) {
	segment.usedSize = &size
}

// UsedSize returns the explicit used size if computed, else the segment's
// natural length.
func (segment *Segment) UsedSize() uint64 {
	if segment.usedSize != nil {
		return *segment.usedSize
	}
	return segment.Len()
}

// CountHoles returns how many offsets within [0, size) were never marked
// accessed.
func (segment *Segment) CountHoles(size uint64) uint64 {
	var holes uint64
	for i := uint64(0); i < size; i++ {
		if i >= uint64(len(segment.accessed)) || !segment.accessed[i] {
			holes++
		}
	}
	return holes
}

func (segment *Segment) String() string {
	header := fmt.Sprintf("real len: %d real cap: %d len: %d\n", len(segment.Data), cap(segment.Data), segment.Len())
	start := 0
	if int(segment.Len())-5 > 0 {
		start = int(segment.Len()) - 5
	}
	for i := start; i < len(segment.Data); i++ {
		if segment.Data[i].Known() {
			header += fmt.Sprintf("[%d]-> %s\n", i, segment.Data[i].String())
		}
	}
	return header
}
