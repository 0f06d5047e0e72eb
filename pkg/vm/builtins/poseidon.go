package builtins

import (
	"fmt"

	junocrypto "github.com/NethermindEth/juno/core/crypto"
	junofelt "github.com/NethermindEth/juno/core/felt"

	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

const PoseidonName = "poseidon"

// poseidonCellsPerInstance is the 3-word Hades state before the permutation
// followed by the 3-word state after it (spec.md §4.4, "fixed-size state
// transformations").
const poseidonCellsPerInstance = 6
const poseidonInputCells = 3

type Poseidon struct {
	base
	ratio    uint64
	included bool
}

func NewPoseidon(ratio uint64, included bool) *Poseidon {
	return &Poseidon{ratio: ratio, included: included}
}

func (p *Poseidon) String() string { return PoseidonName }

func (p *Poseidon) CellsPerInstance() uint64 { return poseidonCellsPerInstance }

func (p *Poseidon) NInputCells() uint64 { return poseidonInputCells }

func (p *Poseidon) Ratio() (uint64, bool) { return p.ratio, p.ratio != 0 }

func (p *Poseidon) Included() bool { return p.included }

func (p *Poseidon) DeduceMemoryCell(address memory.MemoryAddress, mem *memory.Memory) (*memory.MemoryValue, error) {
	indexInInstance := address.Offset % poseidonCellsPerInstance
	if indexInInstance < poseidonInputCells {
		return nil, nil
	}

	instanceBase := address.Offset - indexInInstance
	inputs := make([]*junofelt.Felt, poseidonInputCells)
	for i := 0; i < poseidonInputCells; i++ {
		addr := memory.MemoryAddress{SegmentIndex: address.SegmentIndex, Offset: instanceBase + uint64(i)}
		value, err := mem.PeekFromAddress(&addr)
		if err != nil || !value.Known() {
			return nil, err
		}
		felt, err := value.ToFieldElement()
		if err != nil {
			return nil, fmt.Errorf("poseidon: input %d: %w", i, err)
		}
		inputs[i] = toJunoFelt(felt)
	}

	state := [3]*junofelt.Felt{inputs[0], inputs[1], inputs[2]}
	junocrypto.PoseidonPermutation(&state)

	outIndex := indexInInstance - poseidonInputCells
	result := fromJunoFelt(state[outIndex])
	mv := memory.MemoryValueFromFieldElement(&result)
	return &mv, nil
}

func (p *Poseidon) AddValidationRule(mem *memory.Memory) error { return nil }

func (p *Poseidon) GetUsedCells(mem *memory.Memory) (uint64, error) {
	return segmentLen(mem, p.Base())
}

func (p *Poseidon) GetUsedInstances(mem *memory.Memory) (uint64, error) {
	cells, err := p.GetUsedCells(mem)
	if err != nil {
		return 0, err
	}
	return (cells + poseidonCellsPerInstance - 1) / poseidonCellsPerInstance, nil
}

func (p *Poseidon) GetAllocatedMemoryUnits(currentStep uint64) (uint64, error) {
	return allocatedUnits(p.ratio, currentStep, p.CellsPerInstance())
}

func (p *Poseidon) FinalStack(mem *memory.Memory, stackPointerAddr memory.MemoryAddress) (memory.MemoryAddress, error) {
	used, err := p.GetUsedInstances(mem)
	if err != nil {
		return memory.UnknownAddress, err
	}
	return finalStack(&p.base, PoseidonName, p.CellsPerInstance(), mem, used, stackPointerAddr)
}
