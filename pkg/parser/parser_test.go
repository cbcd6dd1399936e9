package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/actorvm/pkg/ast"
	"github.com/kristofer/actorvm/pkg/parser"
	"github.com/kristofer/actorvm/pkg/value"
)

func TestParseEntityWithDataAndFunctions(t *testing.T) {
	src := `entity Counter {
		data n, total
		fn bump(amount) {
			n = n + amount;
			return n;
		}
	}`

	prog, err := parser.New(src).Parse()
	require.NoError(t, err)
	require.Len(t, prog.Entities, 1)

	ent := prog.Entities[0]
	assert.Equal(t, "Counter", ent.Name)
	assert.Equal(t, []string{"n", "total"}, ent.DataFields)
	require.Len(t, ent.Functions, 1)

	fn := ent.Functions[0]
	assert.Equal(t, "bump", fn.Name)
	assert.Equal(t, []string{"amount"}, fn.Parameters)
	require.Len(t, fn.Body, 2)

	assign, ok := fn.Body[0].(*ast.AssignStatement)
	require.True(t, ok)
	assert.Equal(t, "n", assign.Target.Name)

	ret, ok := fn.Body[1].(*ast.ReturnStatement)
	require.True(t, ok)
	ident, ok := ret.Value.(*ast.Identifier)
	require.True(t, ok)
	assert.Equal(t, "n", ident.Name)
}

func TestParseArithmeticPrecedence(t *testing.T) {
	src := `entity M { fn run() { return 2 + 3 * 4; } }`
	prog, err := parser.New(src).Parse()
	require.NoError(t, err)

	ret := prog.Entities[0].Functions[0].Body[0].(*ast.ReturnStatement)
	bin, ok := ret.Value.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, ast.OpAdd, bin.Op)

	// The multiplication must bind tighter, ending up as the right
	// operand of the addition rather than the other way around.
	right, ok := bin.Right.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, ast.OpMul, right.Op)

	left, ok := bin.Left.(*ast.Literal)
	require.True(t, ok)
	assert.Equal(t, value.U8Value(2), left.Value)
}

func TestParseMessageSendResolvesDeclaredEntity(t *testing.T) {
	src := `entity A { fn ping() { return 1; } }
	entity B { fn main() { let r = A.ping(); return r; } }`

	prog, err := parser.New(src).Parse()
	require.NoError(t, err)
	require.Len(t, prog.Entities, 2)

	let := prog.Entities[1].Functions[0].Body[0].(*ast.LetStatement)
	send, ok := let.Value.(*ast.MessageSend)
	require.True(t, ok)
	require.NotNil(t, send.Dest)
	assert.Equal(t, uint32(0), send.Dest.EntityID, "A is declared first, so its entity id is 0")
	assert.Equal(t, "ping", send.FunctionName)
}

func TestParseMessageSendWithArguments(t *testing.T) {
	src := `entity A { fn add(a, b) { return a + b; } }
	entity B { fn main() { let r = A.add(1, 2); return r; } }`

	prog, err := parser.New(src).Parse()
	require.NoError(t, err)

	let := prog.Entities[1].Functions[0].Body[0].(*ast.LetStatement)
	send := let.Value.(*ast.MessageSend)
	require.Len(t, send.Args, 2)
	first := send.Args[0].(*ast.Literal)
	assert.Equal(t, value.U8Value(1), first.Value)
}

func TestParseMessageSendToUndeclaredEntityErrors(t *testing.T) {
	src := `entity B { fn main() { let r = Ghost.ping(); return r; } }`
	_, err := parser.New(src).Parse()
	require.Error(t, err)
}

func TestParseReturnForeignCallIsForeignCallStatement(t *testing.T) {
	src := `entity H { fn run() { return foreign(3); } }`
	prog, err := parser.New(src).Parse()
	require.NoError(t, err)

	fc, ok := prog.Entities[0].Functions[0].Body[0].(*ast.ForeignCallStatement)
	require.True(t, ok)
	assert.Equal(t, uint32(3), fc.FuncID)
}

func TestParseAwaitExpression(t *testing.T) {
	src := `entity B { fn main() { let r = 1; await r; return r; } }`
	prog, err := parser.New(src).Parse()
	require.NoError(t, err)

	stmt, ok := prog.Entities[0].Functions[0].Body[1].(*ast.ExpressionStatement)
	require.True(t, ok)
	await, ok := stmt.Value.(*ast.AwaitExpr)
	require.True(t, ok)
	ident, ok := await.Value.(*ast.Identifier)
	require.True(t, ok)
	assert.Equal(t, "r", ident.Name)
}

func TestParseParenthesizedExpressionOverridesPrecedence(t *testing.T) {
	src := `entity M { fn run() { return (2 + 3) * 4; } }`
	prog, err := parser.New(src).Parse()
	require.NoError(t, err)

	ret := prog.Entities[0].Functions[0].Body[0].(*ast.ReturnStatement)
	bin := ret.Value.(*ast.BinaryExpr)
	assert.Equal(t, ast.OpMul, bin.Op)
	left, ok := bin.Left.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, ast.OpAdd, left.Op)
}

func TestParseMultipleEntitiesPreserveDeclarationOrderAsID(t *testing.T) {
	src := `entity First { fn f() { return 1; } }
	entity Second { fn g() { return 2; } }
	entity Third { fn h() { let r = Second.g(); return r; } }`

	prog, err := parser.New(src).Parse()
	require.NoError(t, err)

	let := prog.Entities[2].Functions[0].Body[0].(*ast.LetStatement)
	send := let.Value.(*ast.MessageSend)
	assert.Equal(t, uint32(1), send.Dest.EntityID, "Second is the second declared entity")
}
