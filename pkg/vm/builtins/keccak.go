package builtins

import (
	"fmt"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

const KeccakName = "keccak"

// keccakCellsPerInstance is 8 input words of 200 bits each, followed by 8
// output words of 200 bits each: the 1600-bit keccak-f state split into
// eight AIR-sized limbs (spec.md §4.4, "fixed-size state transformations").
const keccakCellsPerInstance = 16
const keccakInputCells = 8
const keccakWordBits = 200

type Keccak struct {
	base
	ratio    uint64
	included bool
}

func NewKeccak(ratio uint64, included bool) *Keccak {
	return &Keccak{ratio: ratio, included: included}
}

func (k *Keccak) String() string { return KeccakName }

func (k *Keccak) CellsPerInstance() uint64 { return keccakCellsPerInstance }

func (k *Keccak) NInputCells() uint64 { return keccakInputCells }

func (k *Keccak) Ratio() (uint64, bool) { return k.ratio, k.ratio != 0 }

func (k *Keccak) Included() bool { return k.included }

func (k *Keccak) DeduceMemoryCell(address memory.MemoryAddress, mem *memory.Memory) (*memory.MemoryValue, error) {
	indexInInstance := address.Offset % keccakCellsPerInstance
	if indexInInstance < keccakInputCells {
		return nil, nil
	}

	instanceBase := address.Offset - indexInInstance
	words := make([]*big.Int, keccakInputCells)
	for i := 0; i < keccakInputCells; i++ {
		addr := memory.MemoryAddress{SegmentIndex: address.SegmentIndex, Offset: instanceBase + uint64(i)}
		value, err := mem.PeekFromAddress(&addr)
		if err != nil || !value.Known() {
			return nil, err
		}
		felt, err := value.ToFieldElement()
		if err != nil {
			return nil, fmt.Errorf("keccak: input %d: %w", i, err)
		}
		bound := new(big.Int).Lsh(big.NewInt(1), keccakWordBits)
		asInt := feltToBigInt(felt)
		if asInt.Cmp(bound) >= 0 {
			return nil, fmt.Errorf("keccak: input %d does not fit in %d bits", i, keccakWordBits)
		}
		words[i] = asInt
	}

	state := packKeccakState(words)
	sha3.KeccakF1600(&state)
	outputs := unpackKeccakState(&state)

	outIndex := indexInInstance - keccakInputCells
	var result memory.Felt
	bigIntToFelt(&result, outputs[outIndex])
	mv := memory.MemoryValueFromFieldElement(&result)
	return &mv, nil
}

// packKeccakState concatenates the eight 200-bit input words (low-word
// first) into the 1600-bit state as 25 little-endian 64-bit lanes.
func packKeccakState(words []*big.Int) [25]uint64 {
	var bits big.Int
	for i := len(words) - 1; i >= 0; i-- {
		bits.Lsh(&bits, keccakWordBits)
		bits.Or(&bits, words[i])
	}
	var state [25]uint64
	mask := new(big.Int).SetUint64(^uint64(0))
	var lane big.Int
	for i := 0; i < 25; i++ {
		lane.And(&bits, mask)
		state[i] = lane.Uint64()
		bits.Rsh(&bits, 64)
	}
	return state
}

func unpackKeccakState(state *[25]uint64) []*big.Int {
	var bits big.Int
	for i := 24; i >= 0; i-- {
		bits.Lsh(&bits, 64)
		var lane big.Int
		lane.SetUint64(state[i])
		bits.Or(&bits, &lane)
	}
	wordMask := new(big.Int).Lsh(big.NewInt(1), keccakWordBits)
	wordMask.Sub(wordMask, big.NewInt(1))
	outputs := make([]*big.Int, keccakInputCells)
	for i := 0; i < keccakInputCells; i++ {
		word := new(big.Int).And(&bits, wordMask)
		outputs[i] = word
		bits.Rsh(&bits, keccakWordBits)
	}
	return outputs
}

func feltToBigInt(felt *memory.Felt) *big.Int {
	bytes := felt.Bytes()
	return new(big.Int).SetBytes(bytes[:])
}

func bigIntToFelt(out *memory.Felt, value *big.Int) {
	out.SetBytes(value.Bytes())
}

func (k *Keccak) AddValidationRule(mem *memory.Memory) error { return nil }

func (k *Keccak) GetUsedCells(mem *memory.Memory) (uint64, error) {
	return segmentLen(mem, k.Base())
}

func (k *Keccak) GetUsedInstances(mem *memory.Memory) (uint64, error) {
	cells, err := k.GetUsedCells(mem)
	if err != nil {
		return 0, err
	}
	return (cells + keccakCellsPerInstance - 1) / keccakCellsPerInstance, nil
}

func (k *Keccak) GetAllocatedMemoryUnits(currentStep uint64) (uint64, error) {
	return allocatedUnits(k.ratio, currentStep, k.CellsPerInstance())
}

func (k *Keccak) FinalStack(mem *memory.Memory, stackPointerAddr memory.MemoryAddress) (memory.MemoryAddress, error) {
	used, err := k.GetUsedInstances(mem)
	if err != nil {
		return memory.UnknownAddress, err
	}
	return finalStack(&k.base, KeccakName, k.CellsPerInstance(), mem, used, stackPointerAddr)
}
