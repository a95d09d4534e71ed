package plugin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestName_Creation_ValidatesInput tests Name creation with various inputs
func TestName_Creation_ValidatesInput(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expectError bool
	}{
		{name: "ValidName_ShouldSucceed", input: "hello", expectError: false},
		{name: "DashedName_ShouldSucceed", input: "api-logger", expectError: false},
		{name: "EmptyName_ShouldFail", input: "", expectError: true},
		{name: "PathSeparator_ShouldFail", input: "../etc/passwd", expectError: true},
		{name: "Extension_ShouldFail", input: "hello.go", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewName(tt.input)
			if tt.expectError {
				assert.Error(t, err)
				assert.Empty(t, n.Value(), "Invalid name should have empty value")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, n.Value())
			assert.Equal(t, tt.input, n.String())
			assert.Equal(t, tt.input+".go", n.FileName())
		})
	}
}

func TestIsSourceFile(t *testing.T) {
	tests := map[string]bool{
		"hello.go":       true,
		"doc.go":         false,
		"hello_test.go":  false,
		"readme.md":      false,
		".go":            false,
		"hello.go.bak":   false,
		"mod.gox":        false,
		"under_score.go": true,
	}

	for file, want := range tests {
		assert.Equal(t, want, IsSourceFile(file), file)
	}
}

func TestNameFromFile_StripsExtension(t *testing.T) {
	n, err := NameFromFile("/plugins/console-logger.go")
	require.NoError(t, err)
	assert.Equal(t, "console-logger", n.Value())

	_, err = NameFromFile("/plugins/doc.go")
	assert.Error(t, err)
}

func TestKindOf_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want OutcomeKind
	}{
		{"nil", nil, OutcomeSuccess},
		{"not found", fmt.Errorf("resolve: %w", ErrPluginNotFound), OutcomeNotFound},
		{"no entry point", ErrNoEntryPoint, OutcomeNoEntryPoint},
		{"load error", &LoadError{Name: "x", Path: "x.go", Err: errors.New("syntax")}, OutcomeLoadError},
		{"runtime error", &RuntimeError{Name: "x", Err: errors.New("boom")}, OutcomeRuntimeError},
		{"panic", &RuntimeError{Name: "x", Err: &PanicError{Value: "oops"}}, OutcomeRuntimeError},
		{"deadline", &RuntimeError{Name: "x", Err: context.DeadlineExceeded}, OutcomeCanceled},
		{"plain", errors.New("anything"), OutcomeRuntimeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, `{"status":"success"}`, Succeeded(map[string]string{"status": "success"}, 0).String())
	assert.Equal(t, "done", Succeeded("done", 0).String())
	assert.Equal(t, "<nil>", Succeeded(nil, 0).String())
	assert.Equal(t, NoEntryPointMessage, MissingEntryPoint(0).String())

	failed := Failed(&RuntimeError{Name: "bad", Err: errors.New("boom")}, time.Millisecond)
	assert.Equal(t, OutcomeRuntimeError, failed.Kind)
	assert.Contains(t, failed.String(), "boom")
}

func TestFailed_NoEntryPointUsesPlaceholder(t *testing.T) {
	o := Failed(fmt.Errorf("lookup: %w", ErrNoEntryPoint), 0)
	assert.Equal(t, OutcomeNoEntryPoint, o.Kind)
	assert.Equal(t, NoEntryPointMessage, o.Message)
	assert.False(t, o.Kind.IsFailure())
}

func TestRunReport_Aggregates(t *testing.T) {
	report := NewRunReport("run-1", time.Now(), 3)
	report.Results["b"] = Succeeded(1, 0)
	report.Results["a"] = MissingEntryPoint(0)
	report.Results["c"] = Failed(&LoadError{Name: "c", Path: "c.go", Err: errors.New("expected ';'")}, 0)

	assert.Equal(t, []string{"a", "b", "c"}, report.Names())
	assert.Equal(t, 1, report.Count(OutcomeSuccess))
	assert.Equal(t, 1, report.Count(OutcomeLoadError))
	assert.Equal(t, []string{"c"}, report.Failures())
	assert.False(t, report.OK())

	flat := report.Flatten()
	assert.Equal(t, "1", flat["b"])
	assert.Equal(t, NoEntryPointMessage, flat["a"])
	assert.True(t, strings.Contains(flat["c"], "expected ';'"))
}

func TestValidationResult_IsImmutable(t *testing.T) {
	result := NewInvalidResult("p.go", "first")
	errs := result.Errors()
	errs[0] = "mutated"

	assert.Equal(t, []string{"first"}, result.Errors())
	assert.False(t, result.Valid())

	valid := NewValidResult("p.go", "Good", nil)
	assert.True(t, valid.Valid())
	assert.Equal(t, "Good", valid.ClassName())
	assert.Empty(t, valid.Errors())
}

func TestNewInvalidResult_NeverEmpty(t *testing.T) {
	result := NewInvalidResult("p.go")
	assert.NotEmpty(t, result.Errors())
}

// Property-based tests using rapid

func TestOutcomeKind_PropertyBased_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		kind := OutcomeKind(rapid.IntRange(int(OutcomeSuccess), int(OutcomeCanceled)).Draw(t, "kind"))

		parsed, err := ParseOutcomeKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	})
}

func TestNameFromFile_PropertyBased_Stem(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		stem := rapid.StringMatching(`[a-z][a-z0-9_-]{0,15}`).Filter(func(s string) bool {
			return s != "doc" && !strings.HasSuffix(s, "_test")
		}).Draw(t, "stem")

		n, err := NameFromFile(stem + ".go")
		require.NoError(t, err)
		assert.Equal(t, stem, n.Value())
	})
}
