package builtins_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairo-vm/cairo-vm-go/pkg/vm/builtins"
	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

// TestBitwiseDeduction mirrors spec.md's boundary scenario 4: with
// (B+5)=10, (B+6)=12, (B+7)=0 in a bitwise segment, reading (B+7) deduces
// 8 (AND), (B+8) deduces 6 (XOR), (B+9) deduces 14 (OR).
func TestBitwiseDeduction(t *testing.T) {
	mem := memory.InitializeEmptyMemory()
	segIdx := mem.AllocateEmptySegment()

	bitwise := builtins.NewBitwise(16, true)
	bitwise.SetBase(int64(segIdx))
	require.NoError(t, mem.AddAutoDeductionRule(int64(segIdx), bitwise))

	x := memory.MemoryValueFromUint(uint64(10))
	y := memory.MemoryValueFromUint(uint64(12))
	require.NoError(t, mem.Write(int64(segIdx), 5, &x))
	require.NoError(t, mem.Write(int64(segIdx), 6, &y))

	and, err := mem.Read(int64(segIdx), 7)
	require.NoError(t, err)
	got, err := and.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(8), got)

	xor, err := mem.Read(int64(segIdx), 8)
	require.NoError(t, err)
	got, err = xor.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(6), got)

	or, err := mem.Read(int64(segIdx), 9)
	require.NoError(t, err)
	got, err = or.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(14), got)
}

func TestBitwiseDeductionMissingInputReturnsNil(t *testing.T) {
	mem := memory.InitializeEmptyMemory()
	segIdx := mem.AllocateEmptySegment()

	bitwise := builtins.NewBitwise(16, true)
	bitwise.SetBase(int64(segIdx))

	value, err := bitwise.DeduceMemoryCell(memory.MemoryAddress{SegmentIndex: int64(segIdx), Offset: 2}, mem)
	require.NoError(t, err)
	assert.Nil(t, value)
}
