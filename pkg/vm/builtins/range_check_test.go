package builtins_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairo-vm/cairo-vm-go/pkg/vm/builtins"
	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

func TestRangeCheckAcceptsInBoundValue(t *testing.T) {
	mem := memory.InitializeEmptyMemory()
	segIdx := mem.AllocateEmptySegment()

	rc := builtins.NewRangeCheck(16, true)
	rc.SetBase(int64(segIdx))
	require.NoError(t, rc.AddValidationRule(mem))

	value := memory.MemoryValueFromUint(uint64(42))
	assert.NoError(t, mem.Write(int64(segIdx), 0, &value))
}

func TestRangeCheckRejectsOutOfBoundValue(t *testing.T) {
	mem := memory.InitializeEmptyMemory()
	segIdx := mem.AllocateEmptySegment()

	rc := builtins.NewRangeCheck(16, true)
	rc.SetBase(int64(segIdx))
	require.NoError(t, rc.AddValidationRule(mem))

	// 2^128, one past the inclusive bound.
	bound := new(big.Int).Lsh(big.NewInt(1), builtins.RangeCheckNBits)
	var felt memory.Felt
	felt.SetBigInt(bound)
	value := memory.MemoryValueFromFieldElement(&felt)

	err := mem.Write(int64(segIdx), 0, &value)
	assert.Error(t, err)
}

func TestRangeCheckTracksLimbUsage(t *testing.T) {
	mem := memory.InitializeEmptyMemory()
	segIdx := mem.AllocateEmptySegment()

	rc := builtins.NewRangeCheck(16, true)
	rc.SetBase(int64(segIdx))
	require.NoError(t, rc.AddValidationRule(mem))

	_, _, ok := rc.GetRangeCheckUsage()
	assert.False(t, ok, "no usage observed yet")

	low := memory.MemoryValueFromUint(uint64(3))
	high := memory.MemoryValueFromUint(uint64(1 << 17))
	require.NoError(t, mem.Write(int64(segIdx), 0, &low))
	require.NoError(t, mem.Write(int64(segIdx), 1, &high))

	min, max, ok := rc.GetRangeCheckUsage()
	require.True(t, ok)
	assert.Equal(t, uint64(0), min) // 1<<17 mod 1<<16 == 0
	assert.Equal(t, uint64(3), max)
}
