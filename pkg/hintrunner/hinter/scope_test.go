package hinter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairo-vm/cairo-vm-go/pkg/hintrunner/hinter"
)

func TestExecutionScopesSetGet(t *testing.T) {
	scopes := hinter.NewExecutionScopes()
	scopes.Set("x", 42)

	v, err := scopes.Get("x")
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestExecutionScopesGetMissingFails(t *testing.T) {
	scopes := hinter.NewExecutionScopes()
	_, err := scopes.Get("missing")
	assert.Error(t, err)
}

func TestExecutionScopesEnterExit(t *testing.T) {
	scopes := hinter.NewExecutionScopes()
	assert.Equal(t, 1, scopes.Depth())

	scopes.Set("x", 1)
	scopes.EnterScope(nil)
	assert.Equal(t, 2, scopes.Depth())

	// the inner scope does not see the outer scope's bindings.
	_, err := scopes.Get("x")
	assert.Error(t, err)

	require.NoError(t, scopes.ExitScope())
	assert.Equal(t, 1, scopes.Depth())

	v, err := scopes.Get("x")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestExecutionScopesExitBaseScopeFails(t *testing.T) {
	scopes := hinter.NewExecutionScopes()
	err := scopes.ExitScope()
	assert.Error(t, err)
	assert.IsType(t, &hinter.NoScopeError{}, err)
}
