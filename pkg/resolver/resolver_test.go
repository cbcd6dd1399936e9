package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/actorvm/pkg/ast"
	"github.com/kristofer/actorvm/pkg/resolver"
	"github.com/kristofer/actorvm/pkg/value"
)

func TestResolveTagsLocalsAndFields(t *testing.T) {
	prog := &ast.Program{Entities: []*ast.EntityDef{{
		Name:       "Counter",
		DataFields: []string{"n"},
		Functions: []*ast.FunctionDef{{
			Name: "bump",
			Body: []ast.Statement{
				&ast.LetStatement{Name: "x", Value: &ast.Literal{Value: value.U8Value(1)}},
				&ast.ReturnStatement{Value: &ast.BinaryExpr{
					Op:    ast.OpAdd,
					Left:  &ast.Identifier{Name: "x"},
					Right: &ast.Identifier{Name: "n"},
				}},
			},
		}},
	}}}

	require.NoError(t, resolver.Resolve(prog))

	ret := prog.Entities[0].Functions[0].Body[1].(*ast.ReturnStatement)
	bin := ret.Value.(*ast.BinaryExpr)
	assert.Equal(t, ast.LocalVar, bin.Left.(*ast.Identifier).Target)
	assert.Equal(t, ast.EntityVar, bin.Right.(*ast.Identifier).Target)
}

func TestResolveUndeclaredIdentifierErrors(t *testing.T) {
	prog := &ast.Program{Entities: []*ast.EntityDef{{
		Name: "Broken",
		Functions: []*ast.FunctionDef{{
			Name: "fn",
			Body: []ast.Statement{
				&ast.ReturnStatement{Value: &ast.Identifier{Name: "ghost"}},
			},
		}},
	}}}

	err := resolver.Resolve(prog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestResolveLocalsDoNotLeakAcrossFunctions(t *testing.T) {
	prog := &ast.Program{Entities: []*ast.EntityDef{{
		Name: "Isolated",
		Functions: []*ast.FunctionDef{
			{
				Name: "setsX",
				Body: []ast.Statement{
					&ast.LetStatement{Name: "x", Value: &ast.Literal{Value: value.U8Value(1)}},
				},
			},
			{
				Name: "readsX",
				Body: []ast.Statement{
					&ast.ReturnStatement{Value: &ast.Identifier{Name: "x"}},
				},
			},
		},
	}}}

	err := resolver.Resolve(prog)
	require.Error(t, err)
}

func TestResolveParametersAreLocals(t *testing.T) {
	prog := &ast.Program{Entities: []*ast.EntityDef{{
		Name: "Adder",
		Functions: []*ast.FunctionDef{{
			Name:       "add",
			Parameters: []string{"a", "b"},
			Body: []ast.Statement{
				&ast.ReturnStatement{Value: &ast.BinaryExpr{
					Op:    ast.OpAdd,
					Left:  &ast.Identifier{Name: "a"},
					Right: &ast.Identifier{Name: "b"},
				}},
			},
		}},
	}}}

	require.NoError(t, resolver.Resolve(prog))
	ret := prog.Entities[0].Functions[0].Body[0].(*ast.ReturnStatement)
	bin := ret.Value.(*ast.BinaryExpr)
	assert.Equal(t, ast.LocalVar, bin.Left.(*ast.Identifier).Target)
	assert.Equal(t, ast.LocalVar, bin.Right.(*ast.Identifier).Target)
}
