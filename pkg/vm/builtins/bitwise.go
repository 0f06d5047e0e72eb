package builtins

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

const BitwiseName = "bitwise"

// bitwiseCellsPerInstance is x, y, x&y, x^y, x|y (spec.md §4.4).
const bitwiseCellsPerInstance = 5
const bitwiseInputCells = 2

// BitwiseTotalNBits bounds the width of the two inputs; both x and y must
// fit this many bits.
const BitwiseTotalNBits = 251

// Bitwise deduces x&y, x^y and x|y from the two input cells of the same
// instance.
type Bitwise struct {
	base
	ratio    uint64
	included bool
}

func NewBitwise(ratio uint64, included bool) *Bitwise {
	return &Bitwise{ratio: ratio, included: included}
}

func (b *Bitwise) String() string { return BitwiseName }

func (b *Bitwise) CellsPerInstance() uint64 { return bitwiseCellsPerInstance }

func (b *Bitwise) NInputCells() uint64 { return bitwiseInputCells }

func (b *Bitwise) Ratio() (uint64, bool) { return b.ratio, b.ratio != 0 }

func (b *Bitwise) Included() bool { return b.included }

func (b *Bitwise) DeduceMemoryCell(address memory.MemoryAddress, mem *memory.Memory) (*memory.MemoryValue, error) {
	indexInInstance := address.Offset % bitwiseCellsPerInstance
	if indexInInstance < bitwiseInputCells {
		return nil, nil
	}

	instanceBase := address.Offset - indexInInstance
	xAddr := memory.MemoryAddress{SegmentIndex: address.SegmentIndex, Offset: instanceBase}
	yAddr := memory.MemoryAddress{SegmentIndex: address.SegmentIndex, Offset: instanceBase + 1}

	xValue, err := mem.PeekFromAddress(&xAddr)
	if err != nil || !xValue.Known() {
		return nil, err
	}
	yValue, err := mem.PeekFromAddress(&yAddr)
	if err != nil || !yValue.Known() {
		return nil, err
	}

	xFelt, err := xValue.ToFieldElement()
	if err != nil {
		return nil, fmt.Errorf("bitwise: x: %w", err)
	}
	yFelt, err := yValue.ToFieldElement()
	if err != nil {
		return nil, fmt.Errorf("bitwise: y: %w", err)
	}

	x, err := boundedUint256(xFelt, BitwiseTotalNBits)
	if err != nil {
		return nil, fmt.Errorf("bitwise: x: %w", err)
	}
	y, err := boundedUint256(yFelt, BitwiseTotalNBits)
	if err != nil {
		return nil, fmt.Errorf("bitwise: y: %w", err)
	}

	var result uint256.Int
	switch indexInInstance {
	case 2:
		result.And(x, y)
	case 3:
		result.Xor(x, y)
	case 4:
		result.Or(x, y)
	}

	var felt memory.Felt
	bytes := result.Bytes32()
	felt.SetBytes(bytes[:])
	mv := memory.MemoryValueFromFieldElement(&felt)
	return &mv, nil
}

func boundedUint256(felt *memory.Felt, nBits uint) (*uint256.Int, error) {
	bytes := felt.Bytes()
	var value uint256.Int
	value.SetBytes(bytes[:])
	var bound uint256.Int
	bound.Lsh(uint256.NewInt(1), nBits)
	if value.Cmp(&bound) >= 0 {
		return nil, fmt.Errorf("value %s does not fit in %d bits", felt.String(), nBits)
	}
	return &value, nil
}

func (b *Bitwise) AddValidationRule(mem *memory.Memory) error {
	return nil
}

func (b *Bitwise) GetUsedCells(mem *memory.Memory) (uint64, error) {
	return segmentLen(mem, b.Base())
}

func (b *Bitwise) GetUsedInstances(mem *memory.Memory) (uint64, error) {
	cells, err := b.GetUsedCells(mem)
	if err != nil {
		return 0, err
	}
	return (cells + bitwiseCellsPerInstance - 1) / bitwiseCellsPerInstance, nil
}

func (b *Bitwise) GetAllocatedMemoryUnits(currentStep uint64) (uint64, error) {
	return allocatedUnits(b.ratio, currentStep, b.CellsPerInstance())
}

func (b *Bitwise) FinalStack(mem *memory.Memory, stackPointerAddr memory.MemoryAddress) (memory.MemoryAddress, error) {
	used, err := b.GetUsedInstances(mem)
	if err != nil {
		return memory.UnknownAddress, err
	}
	return finalStack(&b.base, BitwiseName, b.CellsPerInstance(), mem, used, stackPointerAddr)
}
