package memory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

func TestMemoryValueAddFeltFelt(t *testing.T) {
	a := memory.MemoryValueFromUint(uint64(2))
	b := memory.MemoryValueFromUint(uint64(3))
	var res memory.MemoryValue
	require.NoError(t, res.Add(&a, &b))
	assert.True(t, res.IsFelt())

	got, err := res.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got)
}

func TestMemoryValueAddAddressFelt(t *testing.T) {
	addr := memory.MemoryValueFromSegmentAndOffset(1, 4)
	delta := memory.MemoryValueFromUint(uint64(6))
	var res memory.MemoryValue
	require.NoError(t, res.Add(&addr, &delta))
	require.True(t, res.IsAddress())

	got, err := res.MemoryAddress()
	require.NoError(t, err)
	assert.Equal(t, memory.MemoryAddress{SegmentIndex: 1, Offset: 10}, got)
}

func TestMemoryValueAddAddressAddressFails(t *testing.T) {
	a := memory.MemoryValueFromSegmentAndOffset(1, 4)
	b := memory.MemoryValueFromSegmentAndOffset(1, 5)
	var res memory.MemoryValue
	assert.Error(t, res.Add(&a, &b))
}

func TestMemoryValueSubAddressAddressYieldsFelt(t *testing.T) {
	a := memory.MemoryValueFromSegmentAndOffset(2, 10)
	b := memory.MemoryValueFromSegmentAndOffset(2, 4)
	var res memory.MemoryValue
	require.NoError(t, res.Sub(&a, &b))
	assert.True(t, res.IsFelt())

	got, err := res.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(6), got)
}

func TestMemoryValueMulOnlyDefinedForFelts(t *testing.T) {
	a := memory.MemoryValueFromUint(uint64(2))
	addr := memory.MemoryValueFromSegmentAndOffset(0, 0)
	var res memory.MemoryValue
	assert.Error(t, res.Mul(&a, &addr))
}

func TestMemoryValueDivByZero(t *testing.T) {
	a := memory.MemoryValueFromUint(uint64(2))
	zero := memory.MemoryValueFromUint(uint64(0))
	var res memory.MemoryValue
	assert.Error(t, res.Div(&a, &zero))
}

func TestMemoryValueDiv(t *testing.T) {
	a := memory.MemoryValueFromUint(uint64(6))
	b := memory.MemoryValueFromUint(uint64(2))
	var res memory.MemoryValue
	require.NoError(t, res.Div(&a, &b))
	got, err := res.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got)
}

func TestUnknownMemoryValueIsNotKnown(t *testing.T) {
	unknown := memory.UnknownValue
	assert.False(t, unknown.Known())
}

func TestMemoryAddressAddOffset(t *testing.T) {
	base := memory.MemoryAddress{SegmentIndex: 1, Offset: 10}
	var out memory.MemoryAddress
	require.NoError(t, out.AddOffset(&base, -3))
	assert.Equal(t, uint64(7), out.Offset)

	require.NoError(t, out.AddOffset(&base, 5))
	assert.Equal(t, uint64(15), out.Offset)

	assert.Error(t, out.AddOffset(&base, -20))
}

func TestMemoryAddressSubAddressDifferentSegments(t *testing.T) {
	a := memory.MemoryAddress{SegmentIndex: 1, Offset: 5}
	b := memory.MemoryAddress{SegmentIndex: 2, Offset: 2}
	_, err := a.SubAddress(&b)
	assert.Error(t, err)
}

func TestMemoryAddressRelocateNonTemporary(t *testing.T) {
	addr := memory.MemoryAddress{SegmentIndex: 1, Offset: 5}
	relocated, err := addr.Relocate(nil)
	require.NoError(t, err)
	assert.Equal(t, addr, relocated)
}

func TestMemoryAddressRelocateTemporary(t *testing.T) {
	addr := memory.MemoryAddress{SegmentIndex: -1, Offset: 3}
	rules := map[int64]memory.MemoryAddress{-1: {SegmentIndex: 4, Offset: 100}}
	relocated, err := addr.Relocate(rules)
	require.NoError(t, err)
	assert.Equal(t, memory.MemoryAddress{SegmentIndex: 4, Offset: 103}, relocated)
}

func TestMemoryAddressRelocateMissingRuleFails(t *testing.T) {
	addr := memory.MemoryAddress{SegmentIndex: -2, Offset: 0}
	_, err := addr.Relocate(nil)
	assert.Error(t, err)
}
