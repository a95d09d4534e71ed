package plugin

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SourceExtension is the file extension that makes a file eligible as a plugin
const SourceExtension = ".go"

// InitializerFile is the package-level file that is never treated as a plugin
const InitializerFile = "doc.go"

// Name is a value object identifying a plugin by its file stem
type Name struct {
	value string
}

// NewName creates a Name with validation
func NewName(value string) (Name, error) {
	if value == "" {
		return Name{}, fmt.Errorf("plugin name cannot be empty")
	}
	if strings.ContainsRune(value, '/') || strings.ContainsRune(value, filepath.Separator) {
		return Name{}, fmt.Errorf("plugin name cannot contain path separators: %s", value)
	}
	if strings.HasSuffix(value, SourceExtension) {
		return Name{}, fmt.Errorf("plugin name must not include the %s extension: %s", SourceExtension, value)
	}
	return Name{value: value}, nil
}

// NameFromFile derives a plugin name from a source file name by stripping the extension
func NameFromFile(filename string) (Name, error) {
	base := filepath.Base(filename)
	if !IsSourceFile(base) {
		return Name{}, fmt.Errorf("not a plugin source file: %s", filename)
	}
	return NewName(strings.TrimSuffix(base, SourceExtension))
}

// IsSourceFile reports whether a bare file name is eligible for discovery
func IsSourceFile(filename string) bool {
	if !strings.HasSuffix(filename, SourceExtension) || filename == SourceExtension {
		return false
	}
	if filename == InitializerFile || strings.HasSuffix(filename, "_test.go") {
		return false
	}
	return true
}

// Value returns the string value of the Name
func (n Name) Value() string {
	return n.value
}

// String implements the Stringer interface
func (n Name) String() string {
	return n.value
}

// FileName returns the source file name the plugin is expected to live in
func (n Name) FileName() string {
	return n.value + SourceExtension
}

// Descriptor identifies a discovered plugin. It is recomputed on every listing.
type Descriptor struct {
	Name Name
	Path string
}

// NewDescriptor builds a descriptor for a plugin living in dir
func NewDescriptor(dir string, name Name) Descriptor {
	return Descriptor{
		Name: name,
		Path: filepath.Join(dir, name.FileName()),
	}
}
