// Package memory implements the Cairo VM's segmented, write-once,
// nondeterministic memory (spec.md §3, §4.2): real and temporary segments,
// validation rules, auto-deduction hooks, and the relocation pass that
// collapses temporary segments into real ones after a run.
package memory

import (
	"fmt"

	f "github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

const (
	ProgramSegment = iota
	ExecutionSegment
)

// Memory holds two parallel arenas: real segments (non-negative indices)
// and temporary segments (negative indices, stored as |index|-1), plus the
// relocation-rules table applied once at relocation time.
type Memory struct {
	Segments          []*Segment
	TemporarySegments []*Segment
	relocationRules   map[int64]MemoryAddress
}

func InitializeEmptyMemory() *Memory {
	return &Memory{
		Segments:        make([]*Segment, 0, 4),
		relocationRules: make(map[int64]MemoryAddress),
	}
}

// AllocateSegment creates a new real segment pre-populated with data and
// returns its index.
func (memory *Memory) AllocateSegment(data []*f.Element) (int, error) {
	newSegment := EmptySegmentWithLength(len(data))
	for i := range data {
		memVal := MemoryValueFromFieldElement(data[i])
		if err := newSegment.write(uint64(i), &memVal); err != nil {
			return 0, err
		}
	}
	memory.Segments = append(memory.Segments, newSegment)
	return len(memory.Segments) - 1, nil
}

// AllocateEmptySegment creates a new, empty real segment and returns its
// index (spec.md §4.2, `add_segment`).
func (memory *Memory) AllocateEmptySegment() int {
	memory.Segments = append(memory.Segments, EmptySegment())
	return len(memory.Segments) - 1
}

// AllocateTemporarySegment creates a new temporary segment and returns its
// address as (negative_index, 0); negative_index encodes `-(n+1)` for the
// n-th temporary segment (spec.md §4.2, `add_temporary_segment`).
func (memory *Memory) AllocateTemporarySegment() MemoryAddress {
	memory.TemporarySegments = append(memory.TemporarySegments, EmptySegment())
	index := int64(-len(memory.TemporarySegments))
	return MemoryAddress{SegmentIndex: index, Offset: 0}
}

func (memory *Memory) segmentFor(segmentIndex int64) (*Segment, error) {
	if segmentIndex >= 0 {
		if uint64(segmentIndex) >= uint64(len(memory.Segments)) {
			return nil, fmt.Errorf("unallocated segment at index %d", segmentIndex)
		}
		return memory.Segments[segmentIndex], nil
	}
	tempIndex := -segmentIndex - 1
	if uint64(tempIndex) >= uint64(len(memory.TemporarySegments)) {
		return nil, fmt.Errorf("unallocated temporary segment at index %d", tempIndex)
	}
	return memory.TemporarySegments[tempIndex], nil
}

// Write inserts a value at (segmentIndex, offset) with write-once
// consistency, then runs every validation rule installed on that segment.
func (memory *Memory) Write(segmentIndex int64, offset uint64, value *MemoryValue) error {
	segment, err := memory.segmentFor(segmentIndex)
	if err != nil {
		return err
	}
	if err := segment.write(offset, value); err != nil {
		return err
	}
	segment.markAccessed(offset)
	address := MemoryAddress{SegmentIndex: segmentIndex, Offset: offset}
	for _, rule := range segment.validationRules {
		if err := rule.Validate(memory, address, value); err != nil {
			// roll back to unwritten: the cell is only ever observed
			// through Write/Insert, so clearing it here is safe.
			segment.Data[offset] = MemoryValue{}
			return fmt.Errorf("validation failed at %s: %w", address.String(), err)
		}
	}
	return nil
}

func (memory *Memory) WriteToAddress(address *MemoryAddress, value *MemoryValue) error {
	return memory.Write(address.SegmentIndex, address.Offset, value)
}

// Insert is an alias of Write matching the spec's `insert(addr, value)`
// naming; kept distinct from Write so callers can express either the
// address-first or segment/offset-first call style.
func (memory *Memory) Insert(address MemoryAddress, value MemoryValue) error {
	return memory.Write(address.SegmentIndex, address.Offset, &value)
}

// Read returns the value at (segmentIndex, offset), auto-deducing and
// persisting it on a miss by invoking the segment's auto-deduction hooks
// in order; the first hook to return a value wins.
func (memory *Memory) Read(segmentIndex int64, offset uint64) (MemoryValue, error) {
	segment, err := memory.segmentFor(segmentIndex)
	if err != nil {
		return MemoryValue{}, err
	}

	cell := segment.peek(offset)
	if cell.Known() {
		segment.markAccessed(offset)
		return cell, nil
	}

	address := MemoryAddress{SegmentIndex: segmentIndex, Offset: offset}
	for _, hook := range segment.autoDeductionRules {
		deduced, err := hook.DeduceMemoryCell(address, memory)
		if err != nil {
			return MemoryValue{}, fmt.Errorf("auto-deduction at %s: %w", address.String(), err)
		}
		if deduced == nil {
			continue
		}
		if err := memory.Write(segmentIndex, offset, deduced); err != nil {
			return MemoryValue{}, err
		}
		segment.markAccessed(offset)
		return *deduced, nil
	}

	segment.markAccessed(offset)
	return MemoryValue{}, nil
}

func (memory *Memory) ReadFromAddress(address *MemoryAddress) (MemoryValue, error) {
	return memory.Read(address.SegmentIndex, address.Offset)
}

// MarkAccessed records that a deterministic step touched address, for the
// purpose of spec.md §4.2's memory-holes accounting. It is independent of
// whether the step read or wrote the cell.
func (memory *Memory) MarkAccessed(address MemoryAddress) {
	segment, err := memory.segmentFor(address.SegmentIndex)
	if err != nil {
		return
	}
	segment.markAccessed(address.Offset)
}

// Get mirrors the spec's `get(addr) -> Option<V>`: nil means an unwritten,
// non-deducible cell; any other result means the cell is known.
func (memory *Memory) Get(address MemoryAddress) (*MemoryValue, error) {
	value, err := memory.ReadFromAddress(&address)
	if err != nil {
		return nil, err
	}
	if !value.Known() {
		return nil, nil
	}
	return &value, nil
}

// Peek reads without triggering auto-deduction or marking the cell
// accessed; used by operand deduction to probe a cell's current state.
func (memory *Memory) Peek(segmentIndex int64, offset uint64) (MemoryValue, error) {
	segment, err := memory.segmentFor(segmentIndex)
	if err != nil {
		return MemoryValue{}, err
	}
	return segment.peek(offset), nil
}

func (memory *Memory) PeekFromAddress(address *MemoryAddress) (MemoryValue, error) {
	return memory.Peek(address.SegmentIndex, address.Offset)
}

// GetInteger reads a cell and asserts it is a field element.
func (memory *Memory) GetInteger(address MemoryAddress) (*Felt, error) {
	value, err := memory.ReadFromAddress(&address)
	if err != nil {
		return nil, err
	}
	return value.ToFieldElement()
}

// GetRelocatable reads a cell and asserts it is an address.
func (memory *Memory) GetRelocatable(address MemoryAddress) (*MemoryAddress, error) {
	value, err := memory.ReadFromAddress(&address)
	if err != nil {
		return nil, err
	}
	return value.ToMemoryAddress()
}

// GetRange reads up to n cells starting at address, stopping (without
// error) at the first unwritten cell.
func (memory *Memory) GetRange(address MemoryAddress, n uint64) ([]*MemoryValue, error) {
	values := make([]*MemoryValue, 0, n)
	for i := uint64(0); i < n; i++ {
		cellAddr := address
		cellAddr.Offset += i
		value, err := memory.Get(cellAddr)
		if err != nil {
			return nil, err
		}
		if value == nil {
			break
		}
		values = append(values, value)
	}
	return values, nil
}

// GetContinuousRange reads exactly n cells starting at address, failing on
// any gap (spec.md §4.2, `GetRangeGap`).
func (memory *Memory) GetContinuousRange(address MemoryAddress, n uint64) ([]MemoryValue, error) {
	values := make([]MemoryValue, n)
	for i := uint64(0); i < n; i++ {
		cellAddr := address
		cellAddr.Offset += i
		value, err := memory.Get(cellAddr)
		if err != nil {
			return nil, err
		}
		if value == nil {
			return nil, fmt.Errorf("gap in continuous range at %s", cellAddr.String())
		}
		values[i] = *value
	}
	return values, nil
}

// AddValidationRule installs a rule run on every future insert into the
// given segment.
func (memory *Memory) AddValidationRule(segmentIndex int64, rule ValidationRule) error {
	segment, err := memory.segmentFor(segmentIndex)
	if err != nil {
		return err
	}
	segment.AddValidationRule(rule)
	return nil
}

// AddAutoDeductionRule installs an auto-deduction hook for the given
// segment, invoked in installation order on every read miss.
func (memory *Memory) AddAutoDeductionRule(segmentIndex int64, rule AutoDeductionRule) error {
	segment, err := memory.segmentFor(segmentIndex)
	if err != nil {
		return err
	}
	segment.AddAutoDeductionRule(rule)
	return nil
}

// RunValidationRules re-runs every installed validation rule over every
// written cell; used after a bulk load that bypassed Write's per-insert
// validation.
func (memory *Memory) RunValidationRules() error {
	for segIdx, segment := range memory.Segments {
		if len(segment.validationRules) == 0 {
			continue
		}
		for offset := uint64(0); offset < segment.Len(); offset++ {
			cell := segment.Data[offset]
			if !cell.Known() {
				continue
			}
			address := MemoryAddress{SegmentIndex: int64(segIdx), Offset: offset}
			for _, rule := range segment.validationRules {
				if err := rule.Validate(memory, address, &cell); err != nil {
					return fmt.Errorf("validation failed at %s: %w", address.String(), err)
				}
			}
		}
	}
	return nil
}

// AddRelocationRule registers that temporary segment src (offset must be 0)
// relocates to dst. Fails if src is not a fresh temporary-segment base or
// already has a rule installed (spec.md §4.2).
func (memory *Memory) AddRelocationRule(src, dst MemoryAddress) error {
	if !src.IsTemporary() {
		return fmt.Errorf("relocation rule source must be a temporary segment, got %s", src.String())
	}
	if src.Offset != 0 {
		return fmt.Errorf("relocation rule source must be a segment base, got offset %d", src.Offset)
	}
	if _, exists := memory.relocationRules[src.SegmentIndex]; exists {
		return fmt.Errorf("relocation rule already exists for segment %d", src.SegmentIndex)
	}
	memory.relocationRules[src.SegmentIndex] = dst
	return nil
}

// RelocateMemory applies every relocation rule to every stored address
// (keys and values), then appends each temporary segment onto its
// destination segment in order, validating write-once-consistency at
// every merge. After this call no stored value references a negative
// segment, and the temporary segments are left empty.
func (memory *Memory) RelocateMemory() error {
	if len(memory.relocationRules) == 0 && len(memory.TemporarySegments) == 0 {
		return nil
	}

	// relocate in-place cells of real segments that hold addresses into
	// now-relocated temporary segments.
	for _, segment := range memory.Segments {
		for offset := uint64(0); offset < segment.Len(); offset++ {
			cell := segment.Data[offset]
			if !cell.IsAddress() || !cell.address.IsTemporary() {
				continue
			}
			relocated, err := cell.Relocate(memory.relocationRules)
			if err != nil {
				return err
			}
			segment.Data[offset] = relocated
		}
	}

	for tempIdx, segment := range memory.TemporarySegments {
		srcSegmentIndex := int64(-(tempIdx + 1))
		dst, ok := memory.relocationRules[srcSegmentIndex]
		if !ok {
			if segment.Len() == 0 {
				continue
			}
			return fmt.Errorf("temporary segment %d has no relocation rule", tempIdx)
		}
		for offset := uint64(0); offset < segment.Len(); offset++ {
			cell := segment.Data[offset]
			if !cell.Known() {
				continue
			}
			relocated, err := cell.Relocate(memory.relocationRules)
			if err != nil {
				return err
			}
			dstAddr := MemoryAddress{SegmentIndex: dst.SegmentIndex, Offset: dst.Offset + offset}
			if err := memory.WriteToAddress(&dstAddr, &relocated); err != nil {
				return fmt.Errorf("merging temporary segment %d: %w", tempIdx, err)
			}
		}
		// the segment's cells now live in the destination segment; clear
		// it so a second RelocateMemory call is a no-op.
		*segment = *EmptySegment()
	}

	memory.relocationRules = make(map[int64]MemoryAddress)
	return nil
}

// GetMemoryHoles returns the total, over every real segment, of the
// offsets within the segment's known size (or, when none is set, its used
// size) that were never marked accessed by a read, a write or MarkAccessed.
func (memory *Memory) GetMemoryHoles() uint64 {
	var holes uint64
	for _, segment := range memory.Segments {
		size := segment.UsedSize()
		if segment.KnownSize != nil {
			size = *segment.KnownSize
		}
		holes += segment.CountHoles(size)
	}
	return holes
}

// ComputeEffectiveSizes records each segment's effective (used) size,
// matching the Rust `memory_segments.rs` `compute_effective_sizes` pass
// used before relocation and public-input generation.
func (memory *Memory) ComputeEffectiveSizes() {
	for _, segment := range memory.Segments {
		segment.SetUsedSize(segment.Len())
	}
}
