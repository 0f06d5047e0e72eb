package builtins

import (
	"fmt"

	starkcurve "github.com/consensys/gnark-crypto/ecc/stark-curve"

	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

const EcOpName = "ec_op"

// ecOpCellsPerInstance is Px, Py, Qx, Qy, m, Rx, Ry (spec.md §4.4).
const ecOpCellsPerInstance = 7
const ecOpInputCells = 5

// EcOpScalarLimitBits bounds m: m must be strictly less than 2^250.
const EcOpScalarLimitBits = 250

type EcOp struct {
	base
	ratio    uint64
	included bool
}

func NewEcOp(ratio uint64, included bool) *EcOp {
	return &EcOp{ratio: ratio, included: included}
}

func (e *EcOp) String() string { return EcOpName }

func (e *EcOp) CellsPerInstance() uint64 { return ecOpCellsPerInstance }

func (e *EcOp) NInputCells() uint64 { return ecOpInputCells }

func (e *EcOp) Ratio() (uint64, bool) { return e.ratio, e.ratio != 0 }

func (e *EcOp) Included() bool { return e.included }

func (e *EcOp) DeduceMemoryCell(address memory.MemoryAddress, mem *memory.Memory) (*memory.MemoryValue, error) {
	indexInInstance := address.Offset % ecOpCellsPerInstance
	if indexInInstance < ecOpInputCells {
		return nil, nil
	}

	instanceBase := address.Offset - indexInInstance
	cell := func(offset uint64) (*memory.Felt, error) {
		addr := memory.MemoryAddress{SegmentIndex: address.SegmentIndex, Offset: instanceBase + offset}
		value, err := mem.PeekFromAddress(&addr)
		if err != nil {
			return nil, err
		}
		if !value.Known() {
			return nil, nil
		}
		return value.ToFieldElement()
	}

	px, err := cell(0)
	if err != nil || px == nil {
		return nil, err
	}
	py, err := cell(1)
	if err != nil || py == nil {
		return nil, err
	}
	qx, err := cell(2)
	if err != nil || qx == nil {
		return nil, err
	}
	qy, err := cell(3)
	if err != nil || qy == nil {
		return nil, err
	}
	m, err := cell(4)
	if err != nil || m == nil {
		return nil, err
	}

	if !bounded(m, EcOpScalarLimitBits) {
		return nil, fmt.Errorf("ec_op: scalar m exceeds limit of 2^%d", EcOpScalarLimitBits)
	}

	p := starkcurve.G1Affine{X: *px, Y: *py}
	if !p.IsOnCurve() {
		return nil, fmt.Errorf("ec_op: point P is not on curve")
	}
	q := starkcurve.G1Affine{X: *qx, Y: *qy}
	if !q.IsOnCurve() {
		return nil, fmt.Errorf("ec_op: point Q is not on curve")
	}

	r, err := ecOpScalarMulAdd(&p, &q, m)
	if err != nil {
		return nil, err
	}

	var result memory.Felt
	if indexInInstance == 5 {
		result = r.X
	} else {
		result = r.Y
	}
	mv := memory.MemoryValueFromFieldElement(&result)
	return &mv, nil
}

// ecOpScalarMulAdd computes P + m*Q via an explicit double-and-add
// schedule, checking for a same-x collision at every step, since the AIR
// this builtin feeds cannot witness the point-doubling exception (spec.md
// §4.4).
func ecOpScalarMulAdd(p, q *starkcurve.G1Affine, m *memory.Felt) (*starkcurve.G1Affine, error) {
	acc := *p
	addend := *q
	scalar := feltToBigInt(m)
	bits := scalar.BitLen()
	for i := 0; i < bits; i++ {
		if scalar.Bit(i) == 1 {
			if acc.X.Equal(&addend.X) {
				return nil, fmt.Errorf("ec_op: SameXCoordinate at bit %d", i)
			}
			acc.Add(&acc, &addend)
		}
		var doubled starkcurve.G1Affine
		doubled.Double(&addend)
		addend = doubled
	}
	return &acc, nil
}

func bounded(felt *memory.Felt, nBits int) bool {
	return feltToBigInt(felt).BitLen() <= nBits
}

func (e *EcOp) AddValidationRule(mem *memory.Memory) error { return nil }

func (e *EcOp) GetUsedCells(mem *memory.Memory) (uint64, error) {
	return segmentLen(mem, e.Base())
}

func (e *EcOp) GetUsedInstances(mem *memory.Memory) (uint64, error) {
	cells, err := e.GetUsedCells(mem)
	if err != nil {
		return 0, err
	}
	return (cells + ecOpCellsPerInstance - 1) / ecOpCellsPerInstance, nil
}

func (e *EcOp) GetAllocatedMemoryUnits(currentStep uint64) (uint64, error) {
	return allocatedUnits(e.ratio, currentStep, e.CellsPerInstance())
}

func (e *EcOp) FinalStack(mem *memory.Memory, stackPointerAddr memory.MemoryAddress) (memory.MemoryAddress, error) {
	used, err := e.GetUsedInstances(mem)
	if err != nil {
		return memory.UnknownAddress, err
	}
	return finalStack(&e.base, EcOpName, e.CellsPerInstance(), mem, used, stackPointerAddr)
}
