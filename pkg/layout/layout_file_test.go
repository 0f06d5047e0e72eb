package layout_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairo-vm/cairo-vm-go/pkg/layout"
)

func writeLayoutFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFileParsesCustomLayout(t *testing.T) {
	path := writeLayoutFile(t, `
name: custom
builtins:
  - name: output
  - name: pedersen
    ratio: 4
  - name: range_check
    ratio: 2
`)

	l, err := layout.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", l.Name)
	assert.True(t, l.Includes("output"))
	ratio, ok := l.RatioFor("pedersen")
	require.True(t, ok)
	assert.Equal(t, uint64(4), ratio)
}

func TestLoadFileMissingNameFails(t *testing.T) {
	path := writeLayoutFile(t, `
builtins:
  - name: output
`)

	_, err := layout.LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFileMissingFileFails(t *testing.T) {
	_, err := layout.LoadFile(filepath.Join(t.TempDir(), "does_not_exist.yaml"))
	assert.Error(t, err)
}
