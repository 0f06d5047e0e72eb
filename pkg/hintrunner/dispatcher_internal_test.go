package hintrunner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairo-vm/cairo-vm-go/pkg/hintrunner/hinter"
)

func TestParseCellExprApDeref(t *testing.T) {
	ref, err := parseCellExpr("[ap + 3]")
	require.NoError(t, err)

	deref, ok := ref.(hinter.Deref)
	require.True(t, ok)
	assert.Equal(t, hinter.ApCellRef(3), deref.Deref)
}

func TestParseCellExprFpDerefNegativeOffset(t *testing.T) {
	ref, err := parseCellExpr("[fp - 2]")
	require.NoError(t, err)

	deref, ok := ref.(hinter.Deref)
	require.True(t, ok)
	assert.Equal(t, hinter.FpCellRef(-2), deref.Deref)
}

func TestParseCellExprDoubleDeref(t *testing.T) {
	ref, err := parseCellExpr("[[fp + 4] + 1]")
	require.NoError(t, err)

	dderef, ok := ref.(hinter.DoubleDeref)
	require.True(t, ok)
	assert.Equal(t, hinter.FpCellRef(4), dderef.Deref.Deref)
	assert.Equal(t, int16(1), dderef.Offset)
}

func TestParseCellExprImmediate(t *testing.T) {
	ref, err := parseCellExpr("123")
	require.NoError(t, err)

	_, ok := ref.(hinter.Immediate)
	assert.True(t, ok)
}

func TestParseCellExprUnsupported(t *testing.T) {
	_, err := parseCellExpr("ids.x + ids.y")
	assert.Error(t, err)
}

func TestParseSignedOffset(t *testing.T) {
	cases := map[string]int16{"": 0, "5": 5, "+5": 5, "-5": -5, "  3 ": 3}
	for in, want := range cases {
		got, err := parseSignedOffset(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
