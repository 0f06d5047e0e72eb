package layout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairo-vm/cairo-vm-go/pkg/layout"
)

func TestGetKnownLayout(t *testing.T) {
	l, err := layout.Get("starknet")
	require.NoError(t, err)
	assert.True(t, l.Includes("pedersen"))
	assert.True(t, l.Includes("poseidon"))
	assert.False(t, l.Includes("keccak"))
}

func TestGetUnknownLayout(t *testing.T) {
	_, err := layout.Get("not_a_layout")
	assert.Error(t, err)
}

func TestPlainLayoutHasNoBuiltins(t *testing.T) {
	assert.Empty(t, layout.Plain.Builtins)
	assert.False(t, layout.Plain.Includes("output"))
}

func TestRatioForMissingBuiltin(t *testing.T) {
	_, ok := layout.Small.RatioFor("keccak")
	assert.False(t, ok)
}

func TestRatioForPresentBuiltin(t *testing.T) {
	ratio, ok := layout.Starknet.RatioFor("bitwise")
	require.True(t, ok)
	assert.Equal(t, uint64(64), ratio)
}

func TestDynamicLayoutUsesProvidedRatios(t *testing.T) {
	l := layout.Dynamic([]string{"output", "range_check"}, func(name string) uint64 {
		if name == "range_check" {
			return 9
		}
		return 0
	})
	assert.True(t, l.Includes("output"))
	ratio, ok := l.RatioFor("range_check")
	require.True(t, ok)
	assert.Equal(t, uint64(9), ratio)
}

func TestStarknetWithKeccakIncludesKeccak(t *testing.T) {
	assert.True(t, layout.StarknetWithKeccak.Includes("keccak"))
}
