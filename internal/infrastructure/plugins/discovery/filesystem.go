package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"kilometers.ai/pluginhost/internal/core/plugin"
	"kilometers.ai/pluginhost/internal/core/ports"
)

// FileSystemCatalog lists plugin source files in a single directory
type FileSystemCatalog struct {
	dir    string
	logger *zap.Logger
}

var _ ports.PluginCatalog = (*FileSystemCatalog)(nil)

// NewFileSystemCatalog creates a catalog for dir. A leading ~/ is expanded.
func NewFileSystemCatalog(dir string, logger *zap.Logger) *FileSystemCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSystemCatalog{
		dir:    expandPath(dir),
		logger: logger,
	}
}

// Dir returns the scanned directory
func (c *FileSystemCatalog) Dir() string {
	return c.dir
}

// ListPlugins returns every eligible source file, sorted by name. Files are
// listed whether or not they will load; subdirectories are not scanned.
func (c *FileSystemCatalog) ListPlugins(ctx context.Context) ([]plugin.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugins directory: %w", err)
	}

	descriptors := make([]plugin.Descriptor, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !plugin.IsSourceFile(entry.Name()) {
			continue
		}

		name, err := plugin.NameFromFile(entry.Name())
		if err != nil {
			c.logger.Warn("skipping plugin file with an unusable name", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}

		descriptors = append(descriptors, plugin.NewDescriptor(c.dir, name))
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Name.Value() < descriptors[j].Name.Value()
	})

	c.logger.Debug("listed plugins",
		zap.String("dir", c.dir),
		zap.Int("count", len(descriptors)))

	return descriptors, nil
}

// Resolve maps a plugin name onto its expected source path
func (c *FileSystemCatalog) Resolve(name plugin.Name) plugin.Descriptor {
	return plugin.NewDescriptor(c.dir, name)
}

// expandPath expands ~ to user home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
