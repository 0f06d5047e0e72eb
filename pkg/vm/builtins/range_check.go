package builtins

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

const RangeCheckName = "range_check"

// RangeCheckNBits is the width the range-check builtin enforces: every
// cell written to its segment must satisfy 0 <= value < 2^128 (spec.md
// §4.4).
const RangeCheckNBits = 128

// RangeCheck is a single-cell-per-instance builtin: every write is its own
// instance, validated on insert rather than deduced on read.
type RangeCheck struct {
	base
	ratio    uint64
	included bool

	minLimb *uint64
	maxLimb *uint64
}

func NewRangeCheck(ratio uint64, included bool) *RangeCheck {
	return &RangeCheck{ratio: ratio, included: included}
}

func (r *RangeCheck) String() string { return RangeCheckName }

func (r *RangeCheck) CellsPerInstance() uint64 { return 1 }

func (r *RangeCheck) NInputCells() uint64 { return 1 }

func (r *RangeCheck) Ratio() (uint64, bool) { return r.ratio, r.ratio != 0 }

func (r *RangeCheck) Included() bool { return r.included }

// DeduceMemoryCell never deduces: every cell of this builtin's segment is
// written directly by the program or a hint, not inferred.
func (r *RangeCheck) DeduceMemoryCell(address memory.MemoryAddress, mem *memory.Memory) (*memory.MemoryValue, error) {
	return nil, nil
}

func (r *RangeCheck) AddValidationRule(mem *memory.Memory) error {
	return mem.AddValidationRule(r.Base(), memory.ValidationRuleFunc(
		func(mem *memory.Memory, address memory.MemoryAddress, value *memory.MemoryValue) error {
			felt, err := value.ToFieldElement()
			if err != nil {
				return fmt.Errorf("range_check: %w", err)
			}
			var bound, limbBound uint256.Int
			bound.Lsh(uint256.NewInt(1), RangeCheckNBits)
			limbBound.Lsh(uint256.NewInt(1), 16)

			bytes := felt.Bytes()
			var asUint256 uint256.Int
			asUint256.SetBytes(bytes[:])
			if asUint256.Cmp(&bound) >= 0 {
				return fmt.Errorf("range_check: value %s out of range [0, 2^%d)", felt.String(), RangeCheckNBits)
			}

			low := new(uint256.Int).Mod(&asUint256, &limbBound).Uint64()
			r.observeLimb(low)
			return nil
		},
	))
}

func (r *RangeCheck) observeLimb(limb uint64) {
	if r.minLimb == nil || limb < *r.minLimb {
		r.minLimb = &limb
	}
	if r.maxLimb == nil || limb > *r.maxLimb {
		r.maxLimb = &limb
	}
}

// GetRangeCheckUsage reports the observed 16-bit limb bounds, needed by the
// proof-mode parameter derivation (spec.md §4.4).
func (r *RangeCheck) GetRangeCheckUsage() (min, max uint64, ok bool) {
	if r.minLimb == nil || r.maxLimb == nil {
		return 0, 0, false
	}
	return *r.minLimb, *r.maxLimb, true
}

func (r *RangeCheck) GetUsedCells(mem *memory.Memory) (uint64, error) {
	segment, err := segmentLen(mem, r.Base())
	if err != nil {
		return 0, err
	}
	return segment, nil
}

func (r *RangeCheck) GetUsedInstances(mem *memory.Memory) (uint64, error) {
	return r.GetUsedCells(mem)
}

func (r *RangeCheck) GetAllocatedMemoryUnits(currentStep uint64) (uint64, error) {
	return allocatedUnits(r.ratio, currentStep, r.CellsPerInstance())
}

func (r *RangeCheck) FinalStack(mem *memory.Memory, stackPointerAddr memory.MemoryAddress) (memory.MemoryAddress, error) {
	used, err := r.GetUsedInstances(mem)
	if err != nil {
		return memory.UnknownAddress, err
	}
	return finalStack(&r.base, RangeCheckName, r.CellsPerInstance(), mem, used, stackPointerAddr)
}
