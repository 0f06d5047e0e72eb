package builtins

import "github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"

const OutputName = "output"

// Output has no deduction or validation: it is a plain append-only segment
// the program writes its public output into. It is unratioed: its size is
// whatever the program wrote, not a function of step count.
type Output struct {
	base
	included bool
}

func NewOutput(included bool) *Output {
	return &Output{included: included}
}

func (o *Output) String() string { return OutputName }

func (o *Output) CellsPerInstance() uint64 { return 1 }

func (o *Output) NInputCells() uint64 { return 1 }

func (o *Output) Ratio() (uint64, bool) { return 0, false }

func (o *Output) Included() bool { return o.included }

func (o *Output) DeduceMemoryCell(address memory.MemoryAddress, mem *memory.Memory) (*memory.MemoryValue, error) {
	return nil, nil
}

func (o *Output) AddValidationRule(mem *memory.Memory) error { return nil }

func (o *Output) GetUsedCells(mem *memory.Memory) (uint64, error) {
	return segmentLen(mem, o.Base())
}

func (o *Output) GetUsedInstances(mem *memory.Memory) (uint64, error) {
	return o.GetUsedCells(mem)
}

func (o *Output) GetAllocatedMemoryUnits(currentStep uint64) (uint64, error) {
	return allocatedUnits(0, currentStep, o.CellsPerInstance())
}

func (o *Output) FinalStack(mem *memory.Memory, stackPointerAddr memory.MemoryAddress) (memory.MemoryAddress, error) {
	used, err := o.GetUsedInstances(mem)
	if err != nil {
		return memory.UnknownAddress, err
	}
	return finalStack(&o.base, OutputName, o.CellsPerInstance(), mem, used, stackPointerAddr)
}
