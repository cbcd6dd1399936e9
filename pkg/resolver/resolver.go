// Package resolver implements the variable-flow pass: a single walk
// over each entity definition that tags every identifier reference as
// either a local variable or an entity (field) variable before the
// code generator ever runs.
//
// This mirrors the two-visitor split in the original implementation
// (a VariableFlow pass ahead of code generation, both walking the same
// AST shape) rather than resolving identifiers inline during codegen.
package resolver

import (
	"fmt"
	"sort"

	"github.com/kristofer/actorvm/pkg/ast"
)

// Resolve walks every entity in prog and tags each identifier reference
// with Target = LocalVar or EntityVar. It returns an error for any
// reference to a name that is neither a declared local nor a declared
// entity field — the AST requires a prior declaration (§4.2).
func Resolve(prog *ast.Program) error {
	for _, ent := range prog.Entities {
		if err := resolveEntity(ent); err != nil {
			return fmt.Errorf("entity %s: %w", ent.Name, err)
		}
	}
	return nil
}

func resolveEntity(ent *ast.EntityDef) error {
	entityVars := make(map[string]bool, len(ent.DataFields))
	for _, name := range ent.DataFields {
		entityVars[name] = true
	}

	functions := append([]*ast.FunctionDef(nil), ent.Functions...)
	sort.Slice(functions, func(i, j int) bool { return functions[i].Name < functions[j].Name })
	for _, fn := range functions {
		if err := resolveFunction(fn, entityVars); err != nil {
			return fmt.Errorf("function %s: %w", fn.Name, err)
		}
	}
	return nil
}

// resolveFunction re-initializes the local set for each function body —
// nested functions never share locals (§4.2).
func resolveFunction(fn *ast.FunctionDef, entityVars map[string]bool) error {
	locals := make(map[string]bool, len(fn.Parameters))
	for _, p := range fn.Parameters {
		locals[p] = true
	}
	for _, stmt := range fn.Body {
		if err := resolveStatement(stmt, locals, entityVars); err != nil {
			return err
		}
	}
	return nil
}

func resolveStatement(stmt ast.Statement, locals, entityVars map[string]bool) error {
	switch s := stmt.(type) {
	case *ast.LetStatement:
		if err := resolveExpression(s.Value, locals, entityVars); err != nil {
			return err
		}
		// A definition node adds to the local set; it never resolves
		// against the entity set even if a same-named field exists.
		locals[s.Name] = true
		return nil

	case *ast.AssignStatement:
		if err := resolveExpression(s.Value, locals, entityVars); err != nil {
			return err
		}
		// Assignment reuses the existing target; it never redeclares.
		return resolveIdentifier(s.Target, locals, entityVars)

	case *ast.ReturnStatement:
		return resolveExpression(s.Value, locals, entityVars)

	case *ast.ExpressionStatement:
		return resolveExpression(s.Value, locals, entityVars)

	case *ast.ForeignCallStatement:
		return nil

	default:
		return fmt.Errorf("unknown statement type %T", stmt)
	}
}

func resolveExpression(expr ast.Expression, locals, entityVars map[string]bool) error {
	switch e := expr.(type) {
	case *ast.Literal:
		return nil

	case *ast.Identifier:
		return resolveIdentifier(e, locals, entityVars)

	case *ast.BinaryExpr:
		if err := resolveExpression(e.Left, locals, entityVars); err != nil {
			return err
		}
		return resolveExpression(e.Right, locals, entityVars)

	case *ast.AwaitExpr:
		return resolveExpression(e.Value, locals, entityVars)

	case *ast.MessageSend:
		for _, arg := range e.Args {
			if err := resolveExpression(arg, locals, entityVars); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown expression type %T", expr)
	}
}

func resolveIdentifier(id *ast.Identifier, locals, entityVars map[string]bool) error {
	switch {
	case locals[id.Name]:
		id.Target = ast.LocalVar
	case entityVars[id.Name]:
		id.Target = ast.EntityVar
	default:
		return fmt.Errorf("reference to undeclared identifier %q", id.Name)
	}
	return nil
}
