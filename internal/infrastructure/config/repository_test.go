package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_LoadDefaultsWhenFileMissing(t *testing.T) {
	repo := NewRepository(filepath.Join(t.TempDir(), "missing.yaml"))

	config, err := repo.Load()
	require.NoError(t, err)

	assert.Equal(t, "./plugins", config.Plugins.Dir)
	assert.Equal(t, time.Duration(0), config.Plugins.Timeout)
	assert.Equal(t, 1, config.Plugins.Concurrency)
	assert.Equal(t, OutputText, config.Output)
}

func TestRepository_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `plugins:
  dir: /opt/plugins
  timeout: 5s
  concurrency: 4
output: json
debug: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := NewRepository(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "/opt/plugins", config.Plugins.Dir)
	assert.Equal(t, 5*time.Second, config.Plugins.Timeout)
	assert.Equal(t, 4, config.Plugins.Concurrency)
	assert.Equal(t, OutputJSON, config.Output)
	assert.True(t, config.Debug)
}

func TestRepository_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plugins:\n  dir: /from/file\n"), 0644))
	t.Setenv("PLUGINHOST_PLUGINS_DIR", "/from/env")
	t.Setenv("PLUGINHOST_PLUGINS_TIMEOUT", "250ms")

	config, err := NewRepository(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "/from/env", config.Plugins.Dir)
	assert.Equal(t, 250*time.Millisecond, config.Plugins.Timeout)
}

func TestRepository_ConfigFileFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env-config.yaml")
	t.Setenv("PLUGINHOST_CONFIG_FILE", path)

	repo := NewRepository("")
	assert.Equal(t, path, repo.GetConfigPath())
}

func TestRepository_Validate(t *testing.T) {
	repo := NewRepository(filepath.Join(t.TempDir(), "config.yaml"))

	tests := []struct {
		name    string
		mutate  func(c *Configuration)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(c *Configuration) {}},
		{name: "empty dir", mutate: func(c *Configuration) { c.Plugins.Dir = "" }, wantErr: "plugins directory is required"},
		{name: "negative timeout", mutate: func(c *Configuration) { c.Plugins.Timeout = -time.Second }, wantErr: "timeout cannot be negative"},
		{name: "zero concurrency", mutate: func(c *Configuration) { c.Plugins.Concurrency = 0 }, wantErr: "concurrency must be greater than 0"},
		{name: "unknown output", mutate: func(c *Configuration) { c.Output = "xml" }, wantErr: "output must be one of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := repo.LoadDefault()
			tt.mutate(config)

			err := repo.Validate(config)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Error(t, repo.Validate(nil))
}

func TestRepository_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	repo := NewRepository(path)

	config := repo.LoadDefault()
	config.Plugins.Dir = "/srv/plugins"
	config.Plugins.Timeout = 2 * time.Second
	config.Output = OutputYAML
	require.NoError(t, repo.Save(config))

	loaded, err := NewRepository(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/plugins", loaded.Plugins.Dir)
	assert.Equal(t, 2*time.Second, loaded.Plugins.Timeout)
	assert.Equal(t, OutputYAML, loaded.Output)
}
