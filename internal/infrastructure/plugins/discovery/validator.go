package discovery

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"kilometers.ai/pluginhost/internal/core/plugin"
	"kilometers.ai/pluginhost/internal/core/ports"
	"kilometers.ai/pluginhost/internal/infrastructure/plugins/runtime"
)

// BaseTypeName is the type every validated plugin must embed
const BaseTypeName = "Plugin"

// ContractValidator checks that a plugin file declares a Plugin base type and
// a type embedding it that exposes Run. Every call loads the file into its own
// interpreter, so concurrent validations do not interfere.
type ContractValidator struct {
	loader *runtime.InterpreterLoader
	logger *zap.Logger
}

var _ ports.PluginValidator = (*ContractValidator)(nil)

// NewContractValidator creates a validator that loads files with loader
func NewContractValidator(loader *runtime.InterpreterLoader, logger *zap.Logger) *ContractValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContractValidator{loader: loader, logger: logger}
}

// Validate never returns an error: every failure is folded into the result
func (v *ContractValidator) Validate(ctx context.Context, path string) (result plugin.ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			result = plugin.NewInvalidResult(path, fmt.Sprintf("validation panicked: %v", r))
		}
	}()

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return plugin.NewInvalidResult(path, fmt.Sprintf("plugin file not found: %s", path))
		}
		return plugin.NewInvalidResult(path, fmt.Sprintf("cannot access plugin file: %v", err))
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if _, err := v.loader.LoadFile(ctx, name, path); err != nil {
		v.logger.Debug("plugin failed to load during validation", zap.String("path", path), zap.Error(err))
		return plugin.NewInvalidResult(path, err.Error())
	}

	decls, err := inspectFile(path)
	if err != nil {
		return plugin.NewInvalidResult(path, err.Error())
	}

	result = decls.check(path)
	v.logger.Debug("validated plugin",
		zap.String("path", path),
		zap.Bool("valid", result.Valid()),
		zap.String("class", result.ClassName()),
		zap.Strings("errors", result.Errors()))
	return result
}

// declarations is the top-level shape of a plugin source file
type declarations struct {
	order   []string
	embeds  map[string][]string
	members map[string]map[string]bool
}

// check applies the contract. Types are scanned in declaration order and the
// first one that embeds Plugin and exposes Run wins; embedders without Run
// seen before it are kept as warnings.
func (d *declarations) check(path string) plugin.ValidationResult {
	if !d.declared(BaseTypeName) {
		return plugin.NewInvalidResult(path, fmt.Sprintf("no %s base type found", BaseTypeName))
	}

	var problems []string
	for _, typeName := range d.order {
		if typeName == BaseTypeName || !d.embedsBase(typeName, map[string]bool{}) {
			continue
		}
		switch d.selectors(typeName, runtime.EntryPoint) {
		case 0:
			problems = append(problems, fmt.Sprintf("type %s embeds %s but has no %s method", typeName, BaseTypeName, runtime.EntryPoint))
		case 1:
			return plugin.NewValidResult(path, typeName, problems)
		default:
			problems = append(problems, fmt.Sprintf("type %s embeds %s but its %s method is ambiguous", typeName, BaseTypeName, runtime.EntryPoint))
		}
	}

	if len(problems) == 0 {
		return plugin.NewInvalidResult(path, fmt.Sprintf("no type embedding %s found", BaseTypeName))
	}
	return plugin.NewInvalidResult(path, problems...)
}

func (d *declarations) declared(typeName string) bool {
	for _, name := range d.order {
		if name == typeName {
			return true
		}
	}
	return false
}

// embedsBase reports whether typeName embeds Plugin directly or through
// another embedded type
func (d *declarations) embedsBase(typeName string, seen map[string]bool) bool {
	if seen[typeName] {
		return false
	}
	seen[typeName] = true

	for _, embedded := range d.embeds[typeName] {
		if embedded == BaseTypeName || d.embedsBase(embedded, seen) {
			return true
		}
	}
	return false
}

// selectors counts the declarations of member at the shallowest embedding
// depth where it appears on typeName. Only a count of 1 is a usable selector;
// more than one is ambiguous and the member is not promoted.
func (d *declarations) selectors(typeName, member string) int {
	level := []string{typeName}
	seen := make(map[string]bool)

	for len(level) > 0 {
		found := 0
		var next []string
		for _, t := range level {
			if d.members[t][member] {
				found++
				continue
			}
			if seen[t] {
				continue
			}
			seen[t] = true
			next = append(next, d.embeds[t]...)
		}
		if found > 0 {
			return found
		}
		level = next
	}
	return 0
}

func (d *declarations) addMember(typeName, member string) {
	if d.members[typeName] == nil {
		d.members[typeName] = make(map[string]bool)
	}
	d.members[typeName][member] = true
}

// inspectFile collects type declarations, embeddings, methods and func-typed
// fields from a Go source file
func inspectFile(path string) (*declarations, error) {
	f, err := parser.ParseFile(token.NewFileSet(), path, nil, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plugin source: %w", err)
	}

	d := &declarations{
		embeds:  make(map[string][]string),
		members: make(map[string]map[string]bool),
	}

	for _, decl := range f.Decls {
		switch decl := decl.(type) {
		case *ast.GenDecl:
			if decl.Tok != token.TYPE {
				continue
			}
			for _, spec := range decl.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok || ts.Assign.IsValid() {
					continue
				}
				d.order = append(d.order, ts.Name.Name)
				d.inspectType(ts.Name.Name, ts.Type)
			}
		case *ast.FuncDecl:
			if decl.Recv == nil || len(decl.Recv.List) == 0 {
				continue
			}
			if recv := baseTypeName(decl.Recv.List[0].Type); recv != "" {
				d.addMember(recv, decl.Name.Name)
			}
		}
	}

	return d, nil
}

func (d *declarations) inspectType(typeName string, expr ast.Expr) {
	switch t := expr.(type) {
	case *ast.StructType:
		for _, field := range t.Fields.List {
			if len(field.Names) == 0 {
				if embedded := baseTypeName(field.Type); embedded != "" {
					d.embeds[typeName] = append(d.embeds[typeName], embedded)
				}
				continue
			}
			if _, isFunc := field.Type.(*ast.FuncType); !isFunc {
				continue
			}
			for _, n := range field.Names {
				d.addMember(typeName, n.Name)
			}
		}
	case *ast.InterfaceType:
		for _, method := range t.Methods.List {
			if len(method.Names) == 0 {
				if embedded := baseTypeName(method.Type); embedded != "" {
					d.embeds[typeName] = append(d.embeds[typeName], embedded)
				}
				continue
			}
			for _, n := range method.Names {
				d.addMember(typeName, n.Name)
			}
		}
	}
}

// baseTypeName returns the local type name behind T, *T, T[P] or *T[P];
// qualified names from other packages yield "".
func baseTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return baseTypeName(t.X)
	case *ast.ParenExpr:
		return baseTypeName(t.X)
	case *ast.IndexExpr:
		return baseTypeName(t.X)
	case *ast.IndexListExpr:
		return baseTypeName(t.X)
	default:
		return ""
	}
}
