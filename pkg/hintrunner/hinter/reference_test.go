package hinter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairo-vm/cairo-vm-go/pkg/hintrunner/hinter"
	"github.com/cairo-vm/cairo-vm-go/pkg/parsers/zero"
	VM "github.com/cairo-vm/cairo-vm-go/pkg/vm"
	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

func newTestVM(t *testing.T) *VM.VirtualMachine {
	t.Helper()
	mem := memory.InitializeEmptyMemory()
	mem.AllocateEmptySegment() // program segment
	mem.AllocateEmptySegment() // execution segment
	vm, err := VM.NewVirtualMachine(VM.Context{Ap: 5, Fp: 3}, mem, VM.VirtualMachineConfig{})
	require.NoError(t, err)
	return vm
}

func TestApCellRefGet(t *testing.T) {
	vm := newTestVM(t)
	ref := hinter.ApCellRef(2)

	addr, err := ref.Get(vm)
	require.NoError(t, err)
	assert.Equal(t, memory.MemoryAddress{SegmentIndex: VM.ExecutionSegment, Offset: 7}, addr)
}

func TestFpCellRefGet(t *testing.T) {
	vm := newTestVM(t)
	ref := hinter.FpCellRef(-1)

	addr, err := ref.Get(vm)
	require.NoError(t, err)
	assert.Equal(t, memory.MemoryAddress{SegmentIndex: VM.ExecutionSegment, Offset: 2}, addr)
}

func TestDerefResolve(t *testing.T) {
	vm := newTestVM(t)
	value := memory.MemoryValueFromUint(uint64(77))
	require.NoError(t, vm.Memory.Write(VM.ExecutionSegment, 5, &value))

	ref := hinter.Deref{Deref: hinter.ApCellRef(0)}
	resolved, err := ref.Resolve(vm)
	require.NoError(t, err)

	got, err := resolved.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(77), got)
}

func TestDoubleDerefResolve(t *testing.T) {
	vm := newTestVM(t)
	pointee := memory.MemoryAddress{SegmentIndex: VM.ExecutionSegment, Offset: 20}
	pointer := memory.MemoryValueFromMemoryAddress(&pointee)
	require.NoError(t, vm.Memory.Write(VM.ExecutionSegment, 5, &pointer))

	field := memory.MemoryValueFromUint(uint64(9))
	require.NoError(t, vm.Memory.Write(VM.ExecutionSegment, 21, &field))

	ref := hinter.DoubleDeref{Deref: hinter.Deref{Deref: hinter.ApCellRef(0)}, Offset: 1}
	resolved, err := ref.Resolve(vm)
	require.NoError(t, err)

	got, err := resolved.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), got)
}

func TestImmediateResolve(t *testing.T) {
	vm := newTestVM(t)
	felt := memory.FeltFromUint64(123)
	ref := hinter.Immediate(felt)

	resolved, err := ref.Resolve(vm)
	require.NoError(t, err)
	got, err := resolved.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(123), got)

	_, err = ref.Get(vm)
	assert.Error(t, err)
}

func TestBinaryOpAdd(t *testing.T) {
	vm := newTestVM(t)
	a := memory.MemoryValueFromUint(uint64(3))
	b := memory.MemoryValueFromUint(uint64(4))
	require.NoError(t, vm.Memory.Write(VM.ExecutionSegment, 5, &a))
	require.NoError(t, vm.Memory.Write(VM.ExecutionSegment, 6, &b))

	bop := hinter.BinaryOp{
		Operator: hinter.Add,
		Lhs:      hinter.Deref{Deref: hinter.ApCellRef(0)},
		Rhs:      hinter.Deref{Deref: hinter.ApCellRef(1)},
	}
	resolved, err := bop.Resolve(vm)
	require.NoError(t, err)
	got, err := resolved.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got)
}

func TestApCellRefApplyApTrackingSameGroup(t *testing.T) {
	ref := hinter.ApCellRef(5)
	corrected := ref.ApplyApTracking(zero.ApTracking{Group: 1, Offset: 10}, zero.ApTracking{Group: 1, Offset: 6})
	assert.Equal(t, hinter.ApCellRef(1), corrected)
}

func TestApCellRefApplyApTrackingDifferentGroupUnchanged(t *testing.T) {
	ref := hinter.ApCellRef(5)
	corrected := ref.ApplyApTracking(zero.ApTracking{Group: 1, Offset: 10}, zero.ApTracking{Group: 2, Offset: 6})
	assert.Equal(t, ref, corrected)
}
