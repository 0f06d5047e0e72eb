package memory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

func TestWriteThenRead(t *testing.T) {
	mem := memory.InitializeEmptyMemory()
	idx := mem.AllocateEmptySegment()

	val := memory.MemoryValueFromUint(uint64(42))
	require.NoError(t, mem.Write(int64(idx), 0, &val))

	got, err := mem.Read(int64(idx), 0)
	require.NoError(t, err)
	n, err := got.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)
}

func TestWriteOnceConsistency(t *testing.T) {
	mem := memory.InitializeEmptyMemory()
	idx := mem.AllocateEmptySegment()

	a := memory.MemoryValueFromUint(uint64(1))
	b := memory.MemoryValueFromUint(uint64(2))
	require.NoError(t, mem.Write(int64(idx), 0, &a))

	err := mem.Write(int64(idx), 0, &b)
	assert.Error(t, err)

	// re-writing the same value at the same address is allowed.
	assert.NoError(t, mem.Write(int64(idx), 0, &a))
}

func TestReadUnwrittenCellIsUnknown(t *testing.T) {
	mem := memory.InitializeEmptyMemory()
	idx := mem.AllocateEmptySegment()

	got, err := mem.Read(int64(idx), 5)
	require.NoError(t, err)
	assert.False(t, got.Known())
}

func TestGetReturnsNilForUnwrittenCell(t *testing.T) {
	mem := memory.InitializeEmptyMemory()
	idx := mem.AllocateEmptySegment()

	addr := memory.MemoryAddress{SegmentIndex: int64(idx), Offset: 0}
	value, err := mem.Get(addr)
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestValidationRuleRejectsInsert(t *testing.T) {
	mem := memory.InitializeEmptyMemory()
	idx := mem.AllocateEmptySegment()

	rejectAll := memory.ValidationRuleFunc(func(m *memory.Memory, addr memory.MemoryAddress, value *memory.MemoryValue) error {
		return assertErr
	})
	require.NoError(t, mem.AddValidationRule(int64(idx), rejectAll))

	val := memory.MemoryValueFromUint(uint64(7))
	err := mem.Write(int64(idx), 0, &val)
	assert.Error(t, err)

	// a rejected write leaves the cell unwritten, so a later write succeeds.
	require.NoError(t, mem.Write(int64(idx), 0, &val))
}

var assertErr = &testValidationError{}

type testValidationError struct{}

func (e *testValidationError) Error() string { return "validation rejected" }

func TestAutoDeductionRuleFillsReadMiss(t *testing.T) {
	mem := memory.InitializeEmptyMemory()
	idx := mem.AllocateEmptySegment()

	deduced := memory.MemoryValueFromUint(uint64(99))
	rule := &deduceConstant{value: deduced}
	require.NoError(t, mem.AddAutoDeductionRule(int64(idx), rule))

	got, err := mem.Read(int64(idx), 3)
	require.NoError(t, err)
	n, err := got.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(99), n)

	// the deduced value is now persisted: a second read must not re-invoke
	// the rule (it returns nil on the second call).
	got2, err := mem.Read(int64(idx), 3)
	require.NoError(t, err)
	n2, err := got2.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(99), n2)
}

type deduceConstant struct {
	value   memory.MemoryValue
	invoked bool
}

func (d *deduceConstant) DeduceMemoryCell(address memory.MemoryAddress, mem *memory.Memory) (*memory.MemoryValue, error) {
	if d.invoked {
		return nil, nil
	}
	d.invoked = true
	v := d.value
	return &v, nil
}

func TestGetContinuousRangeFailsOnGap(t *testing.T) {
	mem := memory.InitializeEmptyMemory()
	idx := mem.AllocateEmptySegment()

	a := memory.MemoryValueFromUint(uint64(1))
	c := memory.MemoryValueFromUint(uint64(3))
	require.NoError(t, mem.Write(int64(idx), 0, &a))
	require.NoError(t, mem.Write(int64(idx), 2, &c))

	_, err := mem.GetContinuousRange(memory.MemoryAddress{SegmentIndex: int64(idx), Offset: 0}, 3)
	assert.Error(t, err)
}

func TestRelocateMemoryMergesTemporarySegment(t *testing.T) {
	mem := memory.InitializeEmptyMemory()
	realIdx := mem.AllocateEmptySegment()
	tempBase := mem.AllocateTemporarySegment()

	val := memory.MemoryValueFromUint(uint64(5))
	require.NoError(t, mem.WriteToAddress(&tempBase, &val))

	dst := memory.MemoryAddress{SegmentIndex: int64(realIdx), Offset: 10}
	require.NoError(t, mem.AddRelocationRule(tempBase, dst))
	require.NoError(t, mem.RelocateMemory())

	got, err := mem.Read(int64(realIdx), 10)
	require.NoError(t, err)
	n, err := got.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)
}

func TestAddRelocationRuleRejectsNonTemporarySource(t *testing.T) {
	mem := memory.InitializeEmptyMemory()
	idx := mem.AllocateEmptySegment()

	src := memory.MemoryAddress{SegmentIndex: int64(idx), Offset: 0}
	dst := memory.MemoryAddress{SegmentIndex: int64(idx), Offset: 1}
	assert.Error(t, mem.AddRelocationRule(src, dst))
}
