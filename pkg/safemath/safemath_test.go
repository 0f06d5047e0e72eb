package safemath_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cairo-vm/cairo-vm-go/pkg/safemath"
)

func TestSafeOffsetPositive(t *testing.T) {
	res, overflow := safemath.SafeOffset(10, 5)
	assert.False(t, overflow)
	assert.Equal(t, uint64(15), res)
}

func TestSafeOffsetNegative(t *testing.T) {
	res, overflow := safemath.SafeOffset(10, -5)
	assert.False(t, overflow)
	assert.Equal(t, uint64(5), res)
}

func TestSafeOffsetNegativeUnderflow(t *testing.T) {
	_, overflow := safemath.SafeOffset(3, -5)
	assert.True(t, overflow)
}

func TestSafeOffsetPositiveOverflow(t *testing.T) {
	_, overflow := safemath.SafeOffset(math.MaxUint64, 1)
	assert.True(t, overflow)
}

func TestMaxMin(t *testing.T) {
	assert.Equal(t, uint64(7), safemath.Max(7, 3))
	assert.Equal(t, uint64(7), safemath.Max(3, 7))
	assert.Equal(t, uint64(3), safemath.Min(7, 3))
	assert.Equal(t, uint64(3), safemath.Min(3, 7))
}

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[uint64]uint64{
		0: 1, 1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 1023: 1024, 1024: 1024,
	}
	for n, want := range cases {
		assert.Equal(t, want, safemath.NextPowerOfTwo(n), "n=%d", n)
	}
}
