package discovery

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kilometers.ai/pluginhost/internal/infrastructure/plugins/runtime"
)

func newTestValidator() *ContractValidator {
	logger := zap.NewNop()
	return NewContractValidator(runtime.NewInterpreterLoader(runtime.LoaderConfig{}, logger), logger)
}

func TestContractValidator_Validate(t *testing.T) {
	tests := []struct {
		name          string
		source        string
		expectValid   bool
		expectClass   string
		errorContains string
	}{
		{
			name: "subclass with Run is valid",
			source: `package example

type Plugin struct{}

type Good struct{ Plugin }

func (Good) Run() {}
`,
			expectValid: true,
			expectClass: "Good",
		},
		{
			name: "subclass without Run is invalid",
			source: `package example

type Plugin struct{}

type Bad struct{ Plugin }
`,
			expectValid:   false,
			errorContains: "no Run method",
		},
		{
			name: "Run promoted from a single embedded type is valid",
			source: `package example

type Plugin struct{}

type Runner struct{}

func (Runner) Run() {}

type Good struct {
	Plugin
	Runner
}
`,
			expectValid: true,
			expectClass: "Good",
		},
		{
			name: "Run promoted from two embedded types at the same depth is ambiguous",
			source: `package example

type Plugin struct{}

type A struct{}

func (A) Run() {}

type B struct{}

func (B) Run() {}

type Good struct {
	Plugin
	A
	B
}
`,
			expectValid:   false,
			errorContains: "ambiguous",
		},
		{
			name: "shallower Run hides deeper duplicates",
			source: `package example

type Plugin struct{}

type A struct{}

func (A) Run() {}

type B struct{}

func (B) Run() {}

type Inner struct {
	A
	B
}

type Good struct {
	Plugin
	Inner
}

func (Good) Run() {}
`,
			expectValid: true,
			expectClass: "Good",
		},
		{
			name: "missing base type",
			source: `package example

type Good struct{}

func (Good) Run() {}
`,
			expectValid:   false,
			errorContains: "no Plugin base type found",
		},
		{
			name: "base without subclasses",
			source: `package example

type Plugin struct{}

func (Plugin) Run() {}
`,
			expectValid:   false,
			errorContains: "no type embedding Plugin found",
		},
		{
			name: "pointer receiver and pointer embedding",
			source: `package example

type Plugin struct{}

type Good struct{ *Plugin }

func (g *Good) Run() string { return "ok" }
`,
			expectValid: true,
			expectClass: "Good",
		},
		{
			name: "Run promoted from base",
			source: `package example

type Plugin struct{}

func (Plugin) Run() {}

type Child struct{ Plugin }
`,
			expectValid: true,
			expectClass: "Child",
		},
		{
			name: "transitive embedding",
			source: `package example

type Plugin struct{}

type Middle struct{ Plugin }

type Leaf struct {
	Middle
	Run func() string
}
`,
			expectValid: true,
			expectClass: "Leaf",
		},
		{
			name: "later valid subclass still wins",
			source: `package example

type Plugin struct{}

type Bad struct{ Plugin }

type Good struct{ Plugin }

func (Good) Run() {}
`,
			expectValid: true,
			expectClass: "Good",
		},
		{
			name: "syntax error",
			source: `package example

type Plugin struct{
`,
			expectValid:   false,
			errorContains: "failed to load plugin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "candidate.go", tt.source)

			result := newTestValidator().Validate(context.Background(), filepath.Join(dir, "candidate.go"))

			assert.Equal(t, tt.expectValid, result.Valid(), "errors: %v", result.Errors())
			if tt.expectValid {
				assert.Equal(t, tt.expectClass, result.ClassName())
				assert.Empty(t, result.Errors())
				return
			}
			require.NotEmpty(t, result.Errors())
			assert.Contains(t, result.Errors()[0], tt.errorContains)
			assert.Empty(t, result.ClassName())
		})
	}
}

func TestContractValidator_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.go")

	result := newTestValidator().Validate(context.Background(), path)

	assert.False(t, result.Valid())
	require.NotEmpty(t, result.Errors())
	assert.Contains(t, result.Errors()[0], "not found")
	assert.Equal(t, path, result.Path())
}

func TestContractValidator_WarnsAboutEarlierEmbedders(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "mixed.go", `package mixed

type Plugin struct{}

type Draft struct{ Plugin }

type Final struct{ Plugin }

func (Final) Run() {}
`)

	result := newTestValidator().Validate(context.Background(), filepath.Join(dir, "mixed.go"))

	require.True(t, result.Valid())
	assert.Equal(t, "Final", result.ClassName())
	require.Len(t, result.Warnings(), 1)
	assert.Contains(t, result.Warnings()[0], "Draft")
}

func TestContractValidator_TopLevelPanicIsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "explode.go", `package explode

type Plugin struct{}

type Good struct{ Plugin }

func (Good) Run() {}

func init() {
	panic("refusing to load")
}
`)

	result := newTestValidator().Validate(context.Background(), filepath.Join(dir, "explode.go"))

	assert.False(t, result.Valid())
	assert.NotEmpty(t, result.Errors())
}

// Validations share no interpreter state, so running them concurrently with
// different files must give each its own answer.
func TestContractValidator_ConcurrentValidations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.go", "package one\n\ntype Plugin struct{}\n\ntype First struct{ Plugin }\n\nfunc (First) Run() {}\n")
	writeFile(t, dir, "two.go", "package two\n\ntype Plugin struct{}\n\ntype Second struct{ Plugin }\n\nfunc (Second) Run() {}\n")

	validator := newTestValidator()
	var wg sync.WaitGroup
	results := make([]string, 8)

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			file := "one.go"
			if i%2 == 1 {
				file = "two.go"
			}
			results[i] = validator.Validate(context.Background(), filepath.Join(dir, file)).ClassName()
		}(i)
	}
	wg.Wait()

	for i, class := range results {
		if i%2 == 0 {
			assert.Equal(t, "First", class)
		} else {
			assert.Equal(t, "Second", class)
		}
	}
}
