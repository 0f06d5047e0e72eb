package memory

import (
	f "github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

// MemoryManager owns the VM's memory plus the bookkeeping needed to turn
// it into the prover-facing relocated memory artifact (spec.md §6).
type MemoryManager struct {
	Memory *Memory
	// segmentsOffsets[i] is the 1-based linear offset of segment i once
	// relocated, computed right before RelocateMemory runs.
	segmentsOffsets []uint64
}

func CreateMemoryManager() *MemoryManager {
	return &MemoryManager{
		Memory: InitializeEmptyMemory(),
	}
}

// RelocateMemory merges temporary segments and returns the relocated
// memory as a dense array indexed by the 1-based linear address (spec.md
// §6): `relocated[i]` is the value stored at linear address i+1, or nil
// for an address that was never written ("holes explicitly").
func (manager *MemoryManager) RelocateMemory() ([]*f.Element, error) {
	manager.Memory.ComputeEffectiveSizes()
	manager.buildSegmentOffsets()

	if err := manager.Memory.RelocateMemory(); err != nil {
		return nil, err
	}

	totalSize := uint64(0)
	if len(manager.segmentsOffsets) > 0 {
		totalSize = manager.segmentsOffsets[len(manager.segmentsOffsets)-1]
	}

	relocated := make([]*f.Element, totalSize)
	for segIdx, segment := range manager.Memory.Segments {
		base := manager.segmentsOffsets[segIdx]
		for offset := uint64(0); offset < segment.UsedSize(); offset++ {
			cell := segment.Data[offset]
			if !cell.Known() {
				continue
			}
			linear := base + offset
			if linear == 0 || linear > totalSize {
				continue
			}
			var value f.Element
			if cell.IsFelt() {
				value = cell.felt
			} else {
				// An address surviving relocation with no further
				// temporary segments to resolve is encoded as its
				// linear address, matching the Rust encoder.
				value.SetUint64(manager.segmentsOffsets[cell.address.SegmentIndex] + cell.address.Offset)
			}
			relocated[linear-1] = &value
		}
	}
	return relocated, nil
}

// buildSegmentOffsets assigns each real segment a 1-based base offset in
// the final linear address space, in segment-index order.
func (manager *MemoryManager) buildSegmentOffsets() {
	offsets := make([]uint64, len(manager.Memory.Segments)+1)
	running := uint64(1)
	for i, segment := range manager.Memory.Segments {
		offsets[i] = running
		running += segment.UsedSize()
	}
	offsets[len(manager.Memory.Segments)] = running
	manager.segmentsOffsets = offsets
}

// SegmentOffset returns the 1-based linear base of a real segment; only
// valid after RelocateMemory has run.
func (manager *MemoryManager) SegmentOffset(segmentIndex int64) uint64 {
	return manager.segmentsOffsets[segmentIndex]
}
