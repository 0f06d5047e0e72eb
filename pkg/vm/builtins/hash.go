package builtins

import (
	"fmt"

	junofelt "github.com/NethermindEth/juno/core/felt"
	junocrypto "github.com/NethermindEth/juno/core/crypto"

	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

const HashName = "pedersen"

// hashCellsPerInstance is x, y, h (spec.md §4.4).
const hashCellsPerInstance = 3
const hashInputCells = 2

// Hash deduces h = Pedersen(x, y) for each (x, y, h) instance, delegating
// the actual hash to juno's StarkNet-curve Pedersen implementation. juno's
// felt.Felt and this package's Felt are both thin wrappers over the same
// stark-curve field element representation, so the conversion is a plain
// byte round-trip rather than a reinterpretation.
type Hash struct {
	base
	ratio    uint64
	included bool
}

func NewHash(ratio uint64, included bool) *Hash {
	return &Hash{ratio: ratio, included: included}
}

func (h *Hash) String() string { return HashName }

func (h *Hash) CellsPerInstance() uint64 { return hashCellsPerInstance }

func (h *Hash) NInputCells() uint64 { return hashInputCells }

func (h *Hash) Ratio() (uint64, bool) { return h.ratio, h.ratio != 0 }

func (h *Hash) Included() bool { return h.included }

func (h *Hash) DeduceMemoryCell(address memory.MemoryAddress, mem *memory.Memory) (*memory.MemoryValue, error) {
	indexInInstance := address.Offset % hashCellsPerInstance
	if indexInInstance != 2 {
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
		return nil, fmt.Errorf("pedersen: x: %w", err)
	}
	yFelt, err := yValue.ToFieldElement()
	if err != nil {
		return nil, fmt.Errorf("pedersen: y: %w", err)
	}

	digest := junocrypto.Pedersen(toJunoFelt(xFelt), toJunoFelt(yFelt))
	result := fromJunoFelt(digest)
	mv := memory.MemoryValueFromFieldElement(&result)
	return &mv, nil
}

func (h *Hash) AddValidationRule(mem *memory.Memory) error { return nil }

func (h *Hash) GetUsedCells(mem *memory.Memory) (uint64, error) {
	return segmentLen(mem, h.Base())
}

func (h *Hash) GetUsedInstances(mem *memory.Memory) (uint64, error) {
	cells, err := h.GetUsedCells(mem)
	if err != nil {
		return 0, err
	}
	return (cells + hashCellsPerInstance - 1) / hashCellsPerInstance, nil
}

func (h *Hash) GetAllocatedMemoryUnits(currentStep uint64) (uint64, error) {
	return allocatedUnits(h.ratio, currentStep, h.CellsPerInstance())
}

func (h *Hash) FinalStack(mem *memory.Memory, stackPointerAddr memory.MemoryAddress) (memory.MemoryAddress, error) {
	used, err := h.GetUsedInstances(mem)
	if err != nil {
		return memory.UnknownAddress, err
	}
	return finalStack(&h.base, HashName, h.CellsPerInstance(), mem, used, stackPointerAddr)
}

// toJunoFelt/fromJunoFelt convert between this module's Felt (gnark-crypto
// stark-curve fp.Element) and juno's felt.Felt, elements of the same
// 252-bit field, through their big-endian byte encodings.
func toJunoFelt(value *memory.Felt) *junofelt.Felt {
	bytes := value.Bytes()
	var out junofelt.Felt
	out.SetBytes(bytes[:])
	return &out
}

func fromJunoFelt(value *junofelt.Felt) memory.Felt {
	bytes := value.Bytes()
	var out memory.Felt
	out.SetBytes(bytes[:])
	return out
}
