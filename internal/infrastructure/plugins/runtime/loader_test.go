package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kilometers.ai/pluginhost/internal/core/plugin"
)

const fixtures = "testdata/plugins"

func newTestLoader() *InterpreterLoader {
	return NewInterpreterLoader(LoaderConfig{}, zap.NewNop())
}

func load(t *testing.T, name string) (*Module, error) {
	t.Helper()
	return newTestLoader().LoadFile(context.Background(), name, filepath.Join(fixtures, name+".go"))
}

func TestLoadFile_RunReturnsValue(t *testing.T) {
	module, err := load(t, "success")
	require.NoError(t, err)

	assert.Equal(t, "success", module.Name())
	assert.Equal(t, "success", module.Package())
	assert.True(t, module.HasEntryPoint())

	value, err := module.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"status": "success"}, value)
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := load(t, "does-not-exist")
	require.Error(t, err)
	assert.True(t, errors.Is(err, plugin.ErrPluginNotFound))
	assert.Equal(t, plugin.OutcomeNotFound, plugin.KindOf(err))
}

func TestLoadFile_SyntaxErrorIsLoadError(t *testing.T) {
	_, err := load(t, "broken")
	require.Error(t, err)

	var loadErr *plugin.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "broken", loadErr.Name)
	assert.Equal(t, plugin.OutcomeLoadError, plugin.KindOf(err))
}

func TestModule_NoEntryPoint(t *testing.T) {
	module, err := load(t, "noentry")
	require.NoError(t, err)

	assert.False(t, module.HasEntryPoint())
	_, err = module.Run(context.Background())
	assert.True(t, errors.Is(err, plugin.ErrNoEntryPoint))

	helper, ok := module.Lookup("Helper")
	require.True(t, ok)
	assert.Equal(t, 42, helper.Call(nil)[0].Interface())
}

func TestModule_MainPackageProgram(t *testing.T) {
	module, err := load(t, "program")
	require.NoError(t, err)

	assert.Equal(t, "main", module.Package())
	assert.True(t, module.HasEntryPoint(), "Run is reachable even though main was declared")

	_, ok := module.Lookup("Missing")
	assert.False(t, ok)

	value, err := module.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"started": true}, value, "main runs as top-level code at load")
}

func TestModule_MainPackageWithoutMainFunc(t *testing.T) {
	dir := t.TempDir()
	src := "package main\n\nfunc Run() string { return \"ok\" }\n"
	path := filepath.Join(dir, "library.go")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	module, err := newTestLoader().LoadFile(context.Background(), "library", path)
	require.NoError(t, err)

	value, err := module.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
}

func TestIsUndefined(t *testing.T) {
	assert.True(t, isUndefined(errors.New("1:28: undefined selector: Run")))
	assert.True(t, isUndefined(errors.New("1:1: undefined: Run")))
	assert.False(t, isUndefined(errors.New("1:1: expected operand")))
}

func TestModule_RunErrors(t *testing.T) {
	tests := []struct {
		name     string
		contains string
	}{
		{name: "failing", contains: "boom"},
		{name: "panicking", contains: "kaboom"},
		{name: "notfunc", contains: "not a function"},
		{name: "needsargs", contains: "no arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			module, err := load(t, tt.name)
			require.NoError(t, err)

			_, err = module.Run(context.Background())
			require.Error(t, err)

			var runErr *plugin.RuntimeError
			assert.True(t, errors.As(err, &runErr))
			assert.Equal(t, plugin.OutcomeRuntimeError, plugin.KindOf(err))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLoadFile_FreshNamespacePerLoad(t *testing.T) {
	for i := 0; i < 3; i++ {
		module, err := load(t, "counter")
		require.NoError(t, err)

		value, err := module.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, value, "package state must not survive across loads")
	}
}

func TestLoadFile_ExecutesTopLevelCode(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker.txt")
	src := "package sideeffect\n\nimport \"os\"\n\nfunc init() {\n\tos.WriteFile(" +
		quote(marker) + ", []byte(\"loaded\"), 0o644)\n}\n"
	path := filepath.Join(dir, "sideeffect.go")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	_, err := newTestLoader().LoadFile(context.Background(), "sideeffect", path)
	require.NoError(t, err)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "loaded", string(data))
}

func TestModule_RunHonoursContext(t *testing.T) {
	dir := t.TempDir()
	src := "package slow\n\nimport \"time\"\n\nfunc Run() string {\n\ttime.Sleep(300 * time.Millisecond)\n\treturn \"late\"\n}\n"
	path := filepath.Join(dir, "slow.go")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	module, err := newTestLoader().LoadFile(context.Background(), "slow", path)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = module.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, plugin.OutcomeCanceled, plugin.KindOf(err))
}

func quote(s string) string {
	return "`" + s + "`"
}
