package zero_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairo-vm/cairo-vm-go/pkg/parsers/zero"
	zerorunner "github.com/cairo-vm/cairo-vm-go/pkg/runners/zero"
	VM "github.com/cairo-vm/cairo-vm-go/pkg/vm"
	f "github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

func writeLayoutFileForTest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// minimalRetProgramJSON compiles to spec.md §8's minimal "ret" program: a
// single instruction whose cells are the sentinels entrypoint setup wrote:
// its dst cell ([fp-2], the return fp) updates fp, and its op1 cell
// ([fp-1], the return pc) sends pc to the end address, ending the run.
const minimalRetProgramJSON = `{
	"prime": "0x800000000000011000000000000000000000000000000000000000000000001",
	"data": ["2345108766317314046"],
	"builtins": [],
	"hints": {},
	"identifiers": {"main": {"type": "function", "pc": 0}},
	"main_scope": "__main__",
	"attributes": [],
	"reference_manager": {"references": []}
}`

func parseMinimalRetProgram(t *testing.T) *zero.Program {
	t.Helper()
	program, err := zero.ParseProgram([]byte(minimalRetProgramJSON))
	require.NoError(t, err)
	return program
}

func TestNewRunnerRunsMinimalRetProgram(t *testing.T) {
	program := parseMinimalRetProgram(t)

	runner, err := zerorunner.NewRunner(program, zerorunner.RunnerOptions{Layout: "plain"})
	require.NoError(t, err)

	require.NoError(t, runner.Run())
	assert.Equal(t, uint64(1), runner.Steps())
}

func TestNewRunnerRejectsUnknownLayout(t *testing.T) {
	program := parseMinimalRetProgram(t)

	_, err := zerorunner.NewRunner(program, zerorunner.RunnerOptions{Layout: "not_a_layout"})
	assert.Error(t, err)
}

func TestNewRunnerRejectsBuiltinNotInLayout(t *testing.T) {
	program := parseMinimalRetProgram(t)
	program.Builtins = []string{"bitwise"}

	_, err := zerorunner.NewRunner(program, zerorunner.RunnerOptions{Layout: "plain"})
	assert.Error(t, err)
}

func TestNewRunnerLoadsCustomLayoutFile(t *testing.T) {
	program := parseMinimalRetProgram(t)
	program.Builtins = []string{"output"}

	path := writeLayoutFileForTest(t, `
name: custom
builtins:
  - name: output
`)

	runner, err := zerorunner.NewRunner(program, zerorunner.RunnerOptions{LayoutFile: path})
	require.NoError(t, err)
	require.NoError(t, runner.Run())
}

func TestRunCannotBeCalledTwice(t *testing.T) {
	program := parseMinimalRetProgram(t)

	runner, err := zerorunner.NewRunner(program, zerorunner.RunnerOptions{Layout: "plain"})
	require.NoError(t, err)
	require.NoError(t, runner.Run())

	assert.Error(t, runner.Run())
}

func TestEncodeDecodeTraceRoundTrips(t *testing.T) {
	trace := []VM.Trace{
		{Ap: 10, Fp: 10, Pc: 1},
		{Ap: 12, Fp: 10, Pc: 5},
	}

	encoded := zerorunner.EncodeTrace(trace)
	decoded := zerorunner.DecodeTrace(encoded)
	assert.Equal(t, trace, decoded)
}

func TestEncodeDecodeMemoryRoundTrips(t *testing.T) {
	var a, b f.Element
	a.SetUint64(7)
	b.SetUint64(42)
	relocated := []*f.Element{nil, &a, nil, &b}

	encoded := zerorunner.EncodeMemory(relocated)
	decoded := zerorunner.DecodeMemory(encoded)

	require.Len(t, decoded, len(relocated))
	assert.Nil(t, decoded[0])
	assert.True(t, decoded[1].Equal(&a))
	assert.Nil(t, decoded[2])
	assert.True(t, decoded[3].Equal(&b))
}
