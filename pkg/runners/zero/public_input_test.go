package zero_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zerorunner "github.com/cairo-vm/cairo-vm-go/pkg/runners/zero"
	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

// finishedRunner drives the minimal "ret" program through a plain call-and-
// return (bypassing proof mode's __start__/__end__ entrypoint, which this
// fixture doesn't declare) while still recording a trace, then marks the
// run finished the way Run would.
func finishedRunner(t *testing.T) *zerorunner.ZeroRunner {
	t.Helper()
	program := parseMinimalRetProgram(t)

	runner, err := zerorunner.NewRunner(program, zerorunner.RunnerOptions{Layout: "plain", ProofMode: true})
	require.NoError(t, err)

	returnFp := memory.MemoryValueFromSegmentAndOffset(0, 0)
	end, err := runner.InitializeEntrypoint("main", nil, &returnFp)
	require.NoError(t, err)
	require.NoError(t, runner.RunUntilPc(&end))
	runner.MarkFinished()

	return runner
}

func TestBuildPublicInputRefusesUnfinishedRun(t *testing.T) {
	program := parseMinimalRetProgram(t)

	runner, err := zerorunner.NewRunner(program, zerorunner.RunnerOptions{Layout: "plain", ProofMode: true})
	require.NoError(t, err)

	_, err = runner.BuildPublicInput()
	assert.Error(t, err)
}

func TestBuildPublicInputDescribesMinimalRun(t *testing.T) {
	runner := finishedRunner(t)

	publicInput, err := runner.BuildPublicInput()
	require.NoError(t, err)

	assert.Equal(t, "plain", publicInput.Layout)
	assert.Equal(t, runner.Steps(), publicInput.NSteps)
	require.Contains(t, publicInput.MemorySegments, "program")
	require.Contains(t, publicInput.MemorySegments, "execution")

	programRange := publicInput.MemorySegments["program"]
	assert.LessOrEqual(t, programRange.BeginAddr, programRange.StopPtr)

	require.NotEmpty(t, publicInput.PublicMemory)
	for _, entry := range publicInput.PublicMemory {
		assert.Equal(t, uint64(0), entry.Page)
		assert.NotEmpty(t, entry.Value)
	}
}

func TestEncodePublicInputProducesJSON(t *testing.T) {
	runner := finishedRunner(t)

	publicInput, err := runner.BuildPublicInput()
	require.NoError(t, err)

	encoded, err := zerorunner.EncodePublicInput(publicInput)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"layout": "plain"`)
}
