package zero

import (
	"encoding/json"
	"fmt"

	VM "github.com/cairo-vm/cairo-vm-go/pkg/vm"
	"github.com/cairo-vm/cairo-vm-go/pkg/vm/builtins"
	f "github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

// PublicMemoryEntry is one (address, value) pair the prover's public input
// must commit to, tagged with the page it belongs to (spec.md §6).
type PublicMemoryEntry struct {
	Address uint64 `json:"address"`
	Page    uint64 `json:"page"`
	Value   string `json:"value,omitempty"`
}

// MemorySegmentRange is the linear [begin, stop) address range a named
// memory segment occupies in the relocated address space.
type MemorySegmentRange struct {
	BeginAddr uint64 `json:"begin_addr"`
	StopPtr   uint64 `json:"stop_ptr"`
}

// PublicInput is the AIR public input document a STARK prover consumes
// alongside the relocated trace and memory (spec.md §6): the layout name,
// the range-check builtin's observed bounds, the step count, every memory
// segment's linear range, and the public-memory (address, page, value)
// triples.
type PublicInput struct {
	Layout         string                        `json:"layout"`
	RcMin          uint64                        `json:"rc_min"`
	RcMax          uint64                        `json:"rc_max"`
	NSteps         uint64                        `json:"n_steps"`
	MemorySegments map[string]MemorySegmentRange `json:"memory_segments"`
	PublicMemory   []PublicMemoryEntry           `json:"public_memory"`
}

// BuildPublicInput derives the public input document for a finished,
// trace-enabled run, grounded on air_public_input.rs's PublicInput::new:
// program/execution ranges come from the first and last relocated trace
// entries, builtin ranges come from each builtin's own segment, rc_min/
// rc_max come from the range-check builtin's observed 16-bit limb bounds,
// and the public-memory set is every segment's cells marked public at
// allocation time (the program segment's bytecode, plus anything a
// builtin or hint explicitly flags).
func (runner *ZeroRunner) BuildPublicInput() (*PublicInput, error) {
	if !runner.runFinished {
		return nil, &VM.RunNotFinishedError{}
	}

	relocatedMemory, err := runner.memoryManager.RelocateMemory()
	if err != nil {
		return nil, fmt.Errorf("building public input: %w", err)
	}
	relocatedTrace, err := runner.vm.ExecutionTrace(runner.memoryManager.SegmentOffset(VM.ExecutionSegment))
	if err != nil {
		return nil, fmt.Errorf("building public input: %w", err)
	}
	if len(relocatedTrace) == 0 {
		return nil, fmt.Errorf("building public input: trace is empty")
	}
	first, last := relocatedTrace[0], relocatedTrace[len(relocatedTrace)-1]

	segments := map[string]MemorySegmentRange{
		"program":   {BeginAddr: first.Pc, StopPtr: last.Pc},
		"execution": {BeginAddr: first.Ap, StopPtr: last.Ap},
	}
	for _, b := range runner.builtinRunners {
		used, err := b.GetUsedCells(runner.memory())
		if err != nil {
			return nil, fmt.Errorf("building public input: builtin %s: %w", b.String(), err)
		}
		begin := runner.memoryManager.SegmentOffset(b.Base())
		segments[b.String()] = MemorySegmentRange{BeginAddr: begin, StopPtr: begin + used}
	}

	var rcMin, rcMax uint64
	for _, b := range runner.builtinRunners {
		if rc, ok := b.(*builtins.RangeCheck); ok {
			rcMin, rcMax, _ = rc.GetRangeCheckUsage()
			break
		}
	}

	return &PublicInput{
		Layout:         runner.layoutName,
		RcMin:          rcMin,
		RcMax:          rcMax,
		NSteps:         uint64(len(relocatedTrace)),
		MemorySegments: segments,
		PublicMemory:   publicMemoryEntries(runner, relocatedMemory),
	}, nil
}

// publicMemoryEntries walks every segment's recorded public offsets
// (populated at allocation time; the program segment's entire bytecode is
// always public) and resolves each to its relocated linear address and
// value.
func publicMemoryEntries(runner *ZeroRunner, relocated []*f.Element) []PublicMemoryEntry {
	var entries []PublicMemoryEntry
	for segIdx, segment := range runner.memory().Segments {
		for _, offset := range segment.PublicMemoryOffsets {
			linear := runner.memoryManager.SegmentOffset(int64(segIdx)) + offset
			entry := PublicMemoryEntry{Address: linear, Page: uint64(segIdx)}
			if linear >= 1 && linear <= uint64(len(relocated)) && relocated[linear-1] != nil {
				entry.Value = relocated[linear-1].String()
			}
			entries = append(entries, entry)
		}
	}
	return entries
}

// EncodePublicInput renders p as pretty-printed JSON for writing to disk,
// matching air_public_input.rs's PublicInput::write.
func EncodePublicInput(p *PublicInput) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}
