package hintrunner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairo-vm/cairo-vm-go/pkg/hintrunner"
	"github.com/cairo-vm/cairo-vm-go/pkg/hintrunner/hinter"
	VM "github.com/cairo-vm/cairo-vm-go/pkg/vm"
	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

func newTestVM(t *testing.T) *VM.VirtualMachine {
	t.Helper()
	mem := memory.InitializeEmptyMemory()
	mem.AllocateEmptySegment()
	mem.AllocateEmptySegment()
	vm, err := VM.NewVirtualMachine(VM.Context{Ap: 10, Fp: 10}, mem, VM.VirtualMachineConfig{})
	require.NoError(t, err)
	return vm
}

func writeCell(t *testing.T, vm *VM.VirtualMachine, offset uint64, v uint64) {
	t.Helper()
	value := memory.MemoryValueFromUint(v)
	require.NoError(t, vm.Memory.Write(VM.ExecutionSegment, offset, &value))
}

func readUint(t *testing.T, vm *VM.VirtualMachine, offset uint64) uint64 {
	t.Helper()
	v, err := vm.Memory.Read(VM.ExecutionSegment, offset)
	require.NoError(t, err)
	got, err := v.Uint64()
	require.NoError(t, err)
	return got
}

func TestCompileBuiltinHintUnrecognized(t *testing.T) {
	_, err := hintrunner.CompileBuiltinHint("not a real hint", hinter.HintData{})
	assert.Error(t, err)
}

func TestAllocSegmentHintWritesNewSegmentBase(t *testing.T) {
	vm := newTestVM(t)
	h, err := hintrunner.CompileBuiltinHint("memory[ap] = segments.add()", hinter.HintData{})
	require.NoError(t, err)

	scopes := hinter.NewExecutionScopes()
	require.NoError(t, h.Execute(vm, scopes))

	v, err := vm.Memory.Read(VM.ExecutionSegment, vm.Context.Ap)
	require.NoError(t, err)
	addr, err := v.MemoryAddress()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), addr.Offset)
	assert.Equal(t, int64(2), addr.SegmentIndex)
}

func TestIsNNHintInBound(t *testing.T) {
	vm := newTestVM(t)
	writeCell(t, vm, 0, 5)

	h, err := hintrunner.CompileBuiltinHint(
		"memory[ap] = 0 if 0 <= (ids.a % PRIME) < range_check_builtin.bound else 1",
		hinter.HintData{References: map[string]hinter.Reference{"a": hinter.Deref{Deref: hinter.ApCellRef(-10)}}},
	)
	require.NoError(t, err)

	scopes := hinter.NewExecutionScopes()
	require.NoError(t, h.Execute(vm, scopes))
	assert.Equal(t, uint64(0), readUint(t, vm, vm.Context.Ap))
}

func TestAssertNotZeroHintRejectsZero(t *testing.T) {
	vm := newTestVM(t)
	writeCell(t, vm, 0, 0)

	h, err := hintrunner.CompileBuiltinHint(
		"from starkware.cairo.common.math_utils import assert_integer\nassert_integer(ids.value)\nassert ids.value % PRIME != 0, f'value is zero.'",
		hinter.HintData{References: map[string]hinter.Reference{"value": hinter.Deref{Deref: hinter.ApCellRef(-10)}}},
	)
	require.NoError(t, err)

	scopes := hinter.NewExecutionScopes()
	assert.Error(t, h.Execute(vm, scopes))
}

func TestUnsignedDivRemHint(t *testing.T) {
	vm := newTestVM(t)
	writeCell(t, vm, 0, 17) // value
	writeCell(t, vm, 1, 5)  // div

	h, err := hintrunner.CompileBuiltinHint(
		"from starkware.cairo.common.math_utils import assert_integer\nassert_integer(ids.div)\nassert 0 < ids.div <= PRIME // range_check_builtin.bound, f'div={hex(ids.div)} is out of the valid range.'\nids.q, ids.r = divmod(ids.value, ids.div)",
		hinter.HintData{References: map[string]hinter.Reference{
			"value": hinter.Deref{Deref: hinter.ApCellRef(-10)},
			"div":   hinter.Deref{Deref: hinter.ApCellRef(-9)},
			"q":     hinter.ApCellRef(-8),
			"r":     hinter.ApCellRef(-7),
		}},
	)
	require.NoError(t, err)

	scopes := hinter.NewExecutionScopes()
	require.NoError(t, h.Execute(vm, scopes))

	assert.Equal(t, uint64(3), readUint(t, vm, 2))
	assert.Equal(t, uint64(2), readUint(t, vm, 3))
}

func TestSqrtHint(t *testing.T) {
	vm := newTestVM(t)
	writeCell(t, vm, 0, 81)

	h, err := hintrunner.CompileBuiltinHint(
		"from starkware.python.math_utils import isqrt\nvalue = ids.value % PRIME\nids.root = isqrt(value)",
		hinter.HintData{References: map[string]hinter.Reference{
			"value": hinter.Deref{Deref: hinter.ApCellRef(-10)},
			"root":  hinter.ApCellRef(-9),
		}},
	)
	require.NoError(t, err)

	scopes := hinter.NewExecutionScopes()
	require.NoError(t, h.Execute(vm, scopes))
	assert.Equal(t, uint64(9), readUint(t, vm, 1))
}

func TestAssertLtFeltHint(t *testing.T) {
	vm := newTestVM(t)
	writeCell(t, vm, 0, 3)
	writeCell(t, vm, 1, 4)

	h, err := hintrunner.CompileBuiltinHint(
		"from starkware.cairo.common.math_utils import assert_integer\nassert_integer(ids.a)\nassert_integer(ids.b)\nassert (ids.a % PRIME) < (ids.b % PRIME), f'a = {ids.a} is not less than b = {ids.b}.'",
		hinter.HintData{References: map[string]hinter.Reference{
			"a": hinter.Deref{Deref: hinter.ApCellRef(-10)},
			"b": hinter.Deref{Deref: hinter.ApCellRef(-9)},
		}},
	)
	require.NoError(t, err)

	scopes := hinter.NewExecutionScopes()
	assert.NoError(t, h.Execute(vm, scopes))
}

func TestAssertLtFeltHintRejectsNotLess(t *testing.T) {
	vm := newTestVM(t)
	writeCell(t, vm, 0, 9)
	writeCell(t, vm, 1, 4)

	h, err := hintrunner.CompileBuiltinHint(
		"from starkware.cairo.common.math_utils import assert_integer\nassert_integer(ids.a)\nassert_integer(ids.b)\nassert (ids.a % PRIME) < (ids.b % PRIME), f'a = {ids.a} is not less than b = {ids.b}.'",
		hinter.HintData{References: map[string]hinter.Reference{
			"a": hinter.Deref{Deref: hinter.ApCellRef(-10)},
			"b": hinter.Deref{Deref: hinter.ApCellRef(-9)},
		}},
	)
	require.NoError(t, err)

	scopes := hinter.NewExecutionScopes()
	assert.Error(t, h.Execute(vm, scopes))
}
