// Package hinter resolves compiled-program references into memory cells at
// run time, and hosts the stateful pieces a hint needs beyond memory: the
// execution-scope stack (spec.md §4.6).
package hinter

import (
	"fmt"

	"github.com/cairo-vm/cairo-vm-go/pkg/parsers/zero"
	"github.com/cairo-vm/cairo-vm-go/pkg/safemath"
	VM "github.com/cairo-vm/cairo-vm-go/pkg/vm"
	mem "github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

// Reference is a compiled, ap-tracking-correctable handle onto a memory
// cell or an immediate value, the form a reference takes once the
// dispatcher's compile phase has finished with it.
type Reference interface {
	fmt.Stringer

	Get(vm *VM.VirtualMachine) (mem.MemoryAddress, error)
	Resolve(vm *VM.VirtualMachine) (mem.MemoryValue, error)
	ApplyApTracking(hint, ref zero.ApTracking) Reference
}

// CellRefer is a Reference that can be nudged by a constant offset, used
// when desugaring struct member access (`ids.point.x` becomes the point
// reference plus the member's offset).
type CellRefer interface {
	AddOffset(int16) CellRefer
}

// ApCellRef is `[ap + offset]`'s address, before dereferencing.
type ApCellRef int16

func (ap ApCellRef) String() string { return fmt.Sprintf("ApCellRef(%d)", int16(ap)) }

func (ap ApCellRef) Get(vm *VM.VirtualMachine) (mem.MemoryAddress, error) {
	res, overflow := safemath.SafeOffset(vm.Context.Ap, int16(ap))
	if overflow {
		return mem.UnknownAddress, fmt.Errorf("overflow %d + %d", vm.Context.Ap, int16(ap))
	}
	return mem.MemoryAddress{SegmentIndex: VM.ExecutionSegment, Offset: res}, nil
}

func (ap ApCellRef) Resolve(vm *VM.VirtualMachine) (mem.MemoryValue, error) {
	return mem.UnknownValue, fmt.Errorf("cannot resolve ApCellRef %s directly, wrap in Deref", ap)
}

// ApplyApTracking corrects an ap-relative reference for the difference
// between the ap state the hint was compiled under and the ap state of
// the reference it targets; references from mismatched tracking groups
// are left untouched since the compiler never related them.
func (ap ApCellRef) ApplyApTracking(hint, ref zero.ApTracking) Reference {
	if hint.Group != ref.Group {
		return ap
	}
	return ApCellRef(int16(ap) - int16(hint.Offset-ref.Offset))
}

func (ap ApCellRef) AddOffset(offset int16) CellRefer {
	return ApCellRef(int16(ap) + offset)
}

// FpCellRef is `[fp + offset]`'s address, before dereferencing. Unlike ap,
// fp is stable across a function body, so it never needs tracking
// correction.
type FpCellRef int16

func (fp FpCellRef) String() string { return fmt.Sprintf("FpCellRef(%d)", int16(fp)) }

func (fp FpCellRef) Get(vm *VM.VirtualMachine) (mem.MemoryAddress, error) {
	res, overflow := safemath.SafeOffset(vm.Context.Fp, int16(fp))
	if overflow {
		return mem.UnknownAddress, fmt.Errorf("overflow %d + %d", vm.Context.Fp, int16(fp))
	}
	return mem.MemoryAddress{SegmentIndex: VM.ExecutionSegment, Offset: res}, nil
}

func (fp FpCellRef) Resolve(vm *VM.VirtualMachine) (mem.MemoryValue, error) {
	return mem.UnknownValue, fmt.Errorf("cannot resolve FpCellRef %s directly, wrap in Deref", fp)
}

func (fp FpCellRef) ApplyApTracking(hint, ref zero.ApTracking) Reference { return fp }

func (fp FpCellRef) AddOffset(offset int16) CellRefer {
	return FpCellRef(int16(fp) + offset)
}

// Deref is `[cell]`: one memory indirection from a register-relative
// address.
type Deref struct {
	Deref Reference
}

func (deref Deref) String() string { return "Deref" }

func (deref Deref) Get(vm *VM.VirtualMachine) (mem.MemoryAddress, error) {
	return deref.Deref.Get(vm)
}

func (deref Deref) Resolve(vm *VM.VirtualMachine) (mem.MemoryValue, error) {
	address, err := deref.Get(vm)
	if err != nil {
		return mem.UnknownValue, fmt.Errorf("get cell address: %w", err)
	}
	return vm.Memory.ReadFromAddress(&address)
}

func (deref Deref) ApplyApTracking(hint, ref zero.ApTracking) Reference {
	deref.Deref = deref.Deref.ApplyApTracking(hint, ref)
	return deref
}

// DoubleDeref is `[[cell] + offset]`: the cell holds an address, and the
// final value lives at that address plus a constant offset (e.g.
// `ids.ptr.field` when ptr is a pointer parameter).
type DoubleDeref struct {
	Deref  Deref
	Offset int16
}

func (dderef DoubleDeref) String() string { return "DoubleDeref" }

func (dderef DoubleDeref) Get(vm *VM.VirtualMachine) (mem.MemoryAddress, error) {
	lhs, err := dderef.Deref.Resolve(vm)
	if err != nil {
		return mem.UnknownAddress, fmt.Errorf("get lhs address: %w", err)
	}

	address, err := lhs.MemoryAddress()
	if err != nil {
		return mem.UnknownAddress, err
	}

	newOffset, overflow := safemath.SafeOffset(address.Offset, dderef.Offset)
	if overflow {
		return mem.UnknownAddress, fmt.Errorf("overflow %d + %d", address.Offset, dderef.Offset)
	}
	return mem.MemoryAddress{SegmentIndex: address.SegmentIndex, Offset: newOffset}, nil
}

func (dderef DoubleDeref) Resolve(vm *VM.VirtualMachine) (mem.MemoryValue, error) {
	addr, err := dderef.Get(vm)
	if err != nil {
		return mem.UnknownValue, err
	}
	value, err := vm.Memory.ReadFromAddress(&addr)
	if err != nil {
		return mem.UnknownValue, fmt.Errorf("read result at %s: %w", addr.String(), err)
	}
	return value, nil
}

func (dderef DoubleDeref) ApplyApTracking(hint, ref zero.ApTracking) Reference {
	dderef.Deref = dderef.Deref.ApplyApTracking(hint, ref).(Deref)
	return dderef
}

// Immediate is a compile-time constant embedded directly in the hint's
// reference table, never backed by a memory cell.
type Immediate mem.Felt

func (imm Immediate) String() string { return "Immediate" }

func (imm Immediate) Get(vm *VM.VirtualMachine) (mem.MemoryAddress, error) {
	return mem.UnknownAddress, fmt.Errorf("cannot get an address from an immediate value")
}

func (imm Immediate) Resolve(vm *VM.VirtualMachine) (mem.MemoryValue, error) {
	felt := mem.Felt(imm)
	return mem.MemoryValueFromFieldElement(&felt), nil
}

func (imm Immediate) ApplyApTracking(hint, ref zero.ApTracking) Reference { return imm }

// Operator is the arithmetic BinaryOp combines its operands with.
type Operator uint8

const (
	Add Operator = iota
	Mul
)

// BinaryOp represents a reference compiled from an expression like
// `ids.x + ids.y`; only addition and multiplication appear in compiled
// references (subtraction and division are normalized to addition of a
// negation / multiplication by an inverse at compile time).
type BinaryOp struct {
	Operator Operator
	Lhs      Reference
	Rhs      Reference
}

func (bop BinaryOp) String() string { return "BinaryOperator" }

func (bop BinaryOp) Get(vm *VM.VirtualMachine) (mem.MemoryAddress, error) {
	return mem.UnknownAddress, fmt.Errorf("cannot get an address from a binary operation operand")
}

func (bop BinaryOp) Resolve(vm *VM.VirtualMachine) (mem.MemoryValue, error) {
	lhs, err := bop.Lhs.Resolve(vm)
	if err != nil {
		return mem.UnknownValue, fmt.Errorf("resolve lhs operand: %w", err)
	}
	rhs, err := bop.Rhs.Resolve(vm)
	if err != nil {
		return mem.UnknownValue, fmt.Errorf("resolve rhs operand: %w", err)
	}

	switch bop.Operator {
	case Add:
		mv := mem.EmptyMemoryValueAs(lhs.IsAddress() || rhs.IsAddress())
		err := mv.Add(&lhs, &rhs)
		return mv, err
	case Mul:
		mv := mem.EmptyMemoryValueAsFelt()
		err := mv.Mul(&lhs, &rhs)
		return mv, err
	default:
		return mem.UnknownValue, fmt.Errorf("unknown binary operator: %d", bop.Operator)
	}
}

func (bop BinaryOp) ApplyApTracking(hint, ref zero.ApTracking) Reference {
	bop.Lhs = bop.Lhs.ApplyApTracking(hint, ref)
	bop.Rhs = bop.Rhs.ApplyApTracking(hint, ref)
	return bop
}
