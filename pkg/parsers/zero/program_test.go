package zero_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairo-vm/cairo-vm-go/pkg/parsers/zero"
)

const minimalProgramJSON = `{
	"prime": "0x800000000000011000000000000000000000000000000000000000000000001",
	"data": [
		"0x480680017fff8000",
		"0x4",
		"0x208b7fff7fff7ffe"
	],
	"builtins": ["output"],
	"hints": {},
	"identifiers": {
		"__main__.main": {"type": "function", "pc": 0},
		"__main__.__start__": {"type": "function", "pc": 0}
	},
	"main_scope": "__main__",
	"attributes": [
		{"name": "error_message", "start_pc": 0, "end_pc": 2, "value": "bad thing happened", "flow_tracking_data": {"group": 0, "offset": 0}}
	],
	"reference_manager": {"references": []}
}`

func TestParseProgramDecodesFields(t *testing.T) {
	program, err := zero.ParseProgram([]byte(minimalProgramJSON))
	require.NoError(t, err)
	assert.Equal(t, []string{"output"}, program.Builtins)
	assert.Equal(t, "__main__", program.MainScope)
}

func TestParseProgramRejectsInvalidJSON(t *testing.T) {
	_, err := zero.ParseProgram([]byte("not json"))
	assert.Error(t, err)
}

func TestProgramBytecodeDecodesHexFelts(t *testing.T) {
	program, err := zero.ParseProgram([]byte(minimalProgramJSON))
	require.NoError(t, err)

	felts, err := program.Bytecode()
	require.NoError(t, err)
	require.Len(t, felts, 3)

	require.True(t, felts[1].IsUint64())
	assert.Equal(t, uint64(4), felts[1].Uint64())
}

func TestProgramBytecodeRejectsMalformedWord(t *testing.T) {
	program, err := zero.ParseProgram([]byte(`{"data": ["not-a-felt"]}`))
	require.NoError(t, err)

	_, err = program.Bytecode()
	assert.Error(t, err)
}

func TestEntrypointResolvesKnownFunction(t *testing.T) {
	program, err := zero.ParseProgram([]byte(minimalProgramJSON))
	require.NoError(t, err)

	pc, err := program.Entrypoint("__main__.main")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pc)
}

func TestEntrypointRejectsUnknownFunction(t *testing.T) {
	program, err := zero.ParseProgram([]byte(minimalProgramJSON))
	require.NoError(t, err)

	_, err = program.Entrypoint("__main__.missing")
	assert.Error(t, err)
}

func TestAttributeForReturnsEnclosingMessage(t *testing.T) {
	program, err := zero.ParseProgram([]byte(minimalProgramJSON))
	require.NoError(t, err)

	message, ok := program.AttributeFor(1)
	require.True(t, ok)
	assert.Equal(t, "bad thing happened", message)

	_, ok = program.AttributeFor(5)
	assert.False(t, ok)
}
