// Package builtins implements the Cairo VM's typed coprocessors (spec.md
// §4.4): hash, bitwise, range-check, EC-op, signature, keccak and poseidon.
// Each owns one memory segment, auto-deduces its output cells from its
// input cells on read miss, and validates its inputs at write time.
package builtins

import (
	"fmt"

	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

// BuiltinRunner is the capability surface the engine and the runner need
// from every builtin (spec.md §4.4). Implementations also satisfy
// memory.AutoDeductionRule, which is how they hook into Memory's read-miss
// path without memory holding a back-reference to the builtin itself
// (spec.md §9).
type BuiltinRunner interface {
	memory.AutoDeductionRule

	String() string
	CellsPerInstance() uint64
	NInputCells() uint64
	// Ratio returns the configured steps-per-instance, or (0, false) when
	// the builtin is unratioed (e.g. the output builtin).
	Ratio() (uint64, bool)
	Included() bool

	// Base returns the segment index this builtin was bound to; set once
	// by the runner during initialization.
	Base() int64
	SetBase(segmentIndex int64)

	// AddValidationRule installs this builtin's per-cell invariant checks
	// (e.g. range-check bound, signature binding) onto its own segment.
	AddValidationRule(memory *memory.Memory) error

	GetUsedCells(memory *memory.Memory) (uint64, error)
	GetUsedInstances(memory *memory.Memory) (uint64, error)
	GetAllocatedMemoryUnits(currentStep uint64) (uint64, error)

	// FinalStack checks the caller-written pointer against the expected
	// used-instances accounting and returns the corrected stack pointer
	// (spec.md §4.4, the "final-stack handshake").
	FinalStack(memory *memory.Memory, stackPointerAddr memory.MemoryAddress) (memory.MemoryAddress, error)
}

// base is embedded by every concrete builtin to share the Base/SetBase
// bookkeeping and the final-stack handshake logic.
type base struct {
	segmentIndex int64
	stopPointer  *memory.MemoryAddress
}

func (b *base) Base() int64 { return b.segmentIndex }

func (b *base) SetBase(segmentIndex int64) { b.segmentIndex = segmentIndex }

// finalStack implements the handshake common to every builtin: the caller
// writes, just below the stack pointer passed in, the builtin's final
// pointer; finalStack checks that pointer minus the segment's base equals
// usedInstances*cellsPerInstance cells, then returns the corrected
// (decremented) caller stack pointer.
func finalStack(
	b *base,
	name string,
	cellsPerInstance uint64,
	mem *memory.Memory,
	usedInstances uint64,
	stackPointerAddr memory.MemoryAddress,
) (memory.MemoryAddress, error) {
	if stackPointerAddr.Offset == 0 {
		return memory.UnknownAddress, fmt.Errorf("%s builtin: empty stack", name)
	}
	pointerBefore := memory.MemoryAddress{SegmentIndex: stackPointerAddr.SegmentIndex, Offset: stackPointerAddr.Offset - 1}
	value, err := mem.ReadFromAddress(&pointerBefore)
	if err != nil {
		return memory.UnknownAddress, fmt.Errorf("%s builtin: reading stop pointer: %w", name, err)
	}
	stopPointer, err := value.ToMemoryAddress()
	if err != nil {
		return memory.UnknownAddress, fmt.Errorf("%s builtin: stop pointer is not an address: %w", name, err)
	}
	if stopPointer.SegmentIndex != b.segmentIndex {
		return memory.UnknownAddress, fmt.Errorf(
			"%s builtin: invalid stop pointer segment: expected %d, got %d",
			name, b.segmentIndex, stopPointer.SegmentIndex,
		)
	}
	expected := usedInstances * cellsPerInstance
	if stopPointer.Offset != expected {
		return memory.UnknownAddress, fmt.Errorf(
			"%s builtin: invalid stop pointer: expected offset %d, got %d",
			name, expected, stopPointer.Offset,
		)
	}
	b.stopPointer = stopPointer
	return pointerBefore, nil
}

// segmentLen returns the builtin's segment's effective length, i.e. the
// number of cells written so far.
func segmentLen(mem *memory.Memory, segmentIndex int64) (uint64, error) {
	if segmentIndex < 0 || int(segmentIndex) >= len(mem.Segments) {
		return 0, fmt.Errorf("builtin segment %d not allocated", segmentIndex)
	}
	return mem.Segments[segmentIndex].Len(), nil
}

// allocatedUnits computes how many memory units a ratioed builtin may use
// given the number of steps taken so far: ceil(currentStep / ratio)
// instances, each cellsPerInstance cells wide. An unratioed builtin (ratio
// == 0) has no bound derived this way.
func allocatedUnits(ratio, currentStep, cellsPerInstance uint64) (uint64, error) {
	if ratio == 0 {
		return 0, fmt.Errorf("builtin has no ratio: allocation is layout-driven, not step-driven")
	}
	instances := (currentStep + ratio - 1) / ratio
	return instances * cellsPerInstance, nil
}
