// Package compiler lowers a resolved AST to the binary container
// format (§4.3): it emits a stack-machine instruction stream per
// function and builds the entity-data and entity-function-location
// header tables described in SPEC_FULL.md §4.3/§4.4.
//
// Compile assumes prog has already been through pkg/resolver — every
// ast.Identifier it encounters must have Target != ast.Unresolved.
package compiler

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/kristofer/actorvm/pkg/ast"
	"github.com/kristofer/actorvm/pkg/bytecode"
	"github.com/kristofer/actorvm/pkg/value"
)

// entityDataPlaceholder is the initial value every declared field gets
// in the data table. §4.3 calls this out explicitly as a placeholder:
// a complete implementation would emit None once the value model
// supports it without special-casing the header.
var entityDataPlaceholder = value.U8Value(4)

// compiler accumulates the flat code buffer and header tables for one
// Compile call.
type compiler struct {
	code      []byte
	locs      map[uint32]map[uint32]bytecode.FuncLocation
	dataTable []bytecode.DataEntry

	// funcIDs maps entity id -> function name -> function id, built in
	// a pre-pass over every entity before any code is emitted. A
	// MessageSend names its target function by string (the surface
	// syntax has no way to spell a raw function id); this table is how
	// compileExpression turns that name into the id the destination
	// entity will actually carry once its own functions are sorted.
	funcIDs map[uint32]map[string]uint32
}

// Compile lowers prog into a binary container. Entities are compiled
// in declaration order; within an entity, functions are compiled in
// lexicographic name order so the emitted binary is reproducible for a
// fixed AST (§8.2 determinism law).
func Compile(prog *ast.Program) (*bytecode.Binary, error) {
	c := &compiler{
		locs:    make(map[uint32]map[uint32]bytecode.FuncLocation),
		funcIDs: make(map[uint32]map[string]uint32),
	}

	for entID, ent := range prog.Entities {
		c.funcIDs[uint32(entID)] = sortedFuncIDs(ent.Functions)
	}

	for entID, ent := range prog.Entities {
		if err := c.compileEntity(uint32(entID), ent); err != nil {
			return nil, errors.Wrapf(err, "compiling entity %s", ent.Name)
		}
	}

	return bytecode.Assemble(c.dataTable, c.locs, c.code), nil
}

// sortedFuncIDs assigns each function its compiled id: lexicographic
// rank among its entity's declared functions (§4.3).
func sortedFuncIDs(fns []*ast.FunctionDef) map[string]uint32 {
	names := make([]string, len(fns))
	for i, fn := range fns {
		names[i] = fn.Name
	}
	sort.Strings(names)
	ids := make(map[string]uint32, len(names))
	for i, name := range names {
		ids[name] = uint32(i)
	}
	return ids
}

func (c *compiler) compileEntity(entID uint32, ent *ast.EntityDef) error {
	for _, field := range ent.DataFields {
		c.dataTable = append(c.dataTable, bytecode.DataEntry{
			EntityID: byte(entID),
			Name:     field,
			Initial:  entityDataPlaceholder,
		})
	}

	functions := append([]*ast.FunctionDef(nil), ent.Functions...)
	sort.Slice(functions, func(i, j int) bool { return functions[i].Name < functions[j].Name })

	c.locs[entID] = make(map[uint32]bytecode.FuncLocation)
	for funID, fn := range functions {
		start := len(c.code)
		if err := c.compileFunction(fn); err != nil {
			return errors.Wrapf(err, "compiling function %s", fn.Name)
		}
		c.locs[entID][uint32(funID)] = bytecode.FuncLocation{
			Start:  uint64(start),
			Length: uint64(len(c.code) - start),
		}
	}
	return nil
}

// compileFunction emits a parameter-binding prologue before the body.
// The scheduler pushes a call's arguments onto the operand stack in
// order (arg0 first, so the last argument ends on top); popping them
// off in reverse and Lstore-ing each into its parameter name restores
// the original order without widening the binary format with a
// parameter-name table (§4.3 — argument passing).
func (c *compiler) compileFunction(fn *ast.FunctionDef) error {
	for i := len(fn.Parameters) - 1; i >= 0; i-- {
		c.emit(bytecode.Instruction{Op: bytecode.OpLstore, Name: fn.Parameters[i]})
	}
	for _, stmt := range fn.Body {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) emit(inst bytecode.Instruction) {
	c.code = bytecode.Encode(c.code, inst)
}

func (c *compiler) compileStatement(stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.LetStatement:
		if err := c.compileExpression(s.Value); err != nil {
			return err
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpLstore, Name: s.Name})
		return nil

	case *ast.AssignStatement:
		if err := c.compileExpression(s.Value); err != nil {
			return err
		}
		return c.storeIdentifier(s.Target)

	case *ast.ReturnStatement:
		if err := c.compileExpression(s.Value); err != nil {
			return err
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpRet})
		return nil

	case *ast.ExpressionStatement:
		// An expression evaluated for effect still leaves a value on the
		// operand stack; discard it into a scratch local rather than
		// letting it accumulate as a residual operand (§8.4 stack
		// discipline — a function body must leave at most one value
		// behind, its own result).
		if err := c.compileExpression(s.Value); err != nil {
			return err
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpLstore, Name: "_"})
		return nil

	case *ast.ForeignCallStatement:
		c.emit(bytecode.Instruction{Op: bytecode.OpForeignCall, FuncID: s.FuncID})
		c.emit(bytecode.Instruction{Op: bytecode.OpRet})
		return nil

	default:
		return fmt.Errorf("compiler: unknown statement type %T", stmt)
	}
}

func (c *compiler) storeIdentifier(id *ast.Identifier) error {
	switch id.Target {
	case ast.LocalVar:
		c.emit(bytecode.Instruction{Op: bytecode.OpLstore, Name: id.Name})
	case ast.EntityVar:
		c.emit(bytecode.Instruction{Op: bytecode.OpEstore, Name: id.Name})
	default:
		return fmt.Errorf("compiler: identifier %q was never resolved", id.Name)
	}
	return nil
}

func (c *compiler) compileExpression(expr ast.Expression) error {
	switch e := expr.(type) {
	case *ast.Literal:
		c.emit(bytecode.Instruction{Op: bytecode.OpPush, Value: e.Value})
		return nil

	case *ast.Identifier:
		switch e.Target {
		case ast.LocalVar:
			c.emit(bytecode.Instruction{Op: bytecode.OpLload, Name: e.Name})
		case ast.EntityVar:
			c.emit(bytecode.Instruction{Op: bytecode.OpEload, Name: e.Name})
		default:
			return fmt.Errorf("compiler: identifier %q was never resolved", e.Name)
		}
		return nil

	case *ast.BinaryExpr:
		// Lower left then right (§4.3); the interpreter pops right
		// then left and applies Left OP Right (§9 arithmetic order fix).
		if err := c.compileExpression(e.Left); err != nil {
			return err
		}
		if err := c.compileExpression(e.Right); err != nil {
			return err
		}
		switch e.Op {
		case ast.OpAdd:
			c.emit(bytecode.Instruction{Op: bytecode.OpAdd})
		case ast.OpSub:
			c.emit(bytecode.Instruction{Op: bytecode.OpSub})
		case ast.OpMul:
			c.emit(bytecode.Instruction{Op: bytecode.OpMul})
		case ast.OpDiv:
			c.emit(bytecode.Instruction{Op: bytecode.OpDiv})
		default:
			return fmt.Errorf("compiler: unknown operator %v", e.Op)
		}
		return nil

	case *ast.AwaitExpr:
		if err := c.compileExpression(e.Value); err != nil {
			return err
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpAwait})
		return nil

	case *ast.MessageSend:
		// Arguments evaluated left to right (§4.3 — argument passing).
		for _, arg := range e.Args {
			if err := c.compileExpression(arg); err != nil {
				return err
			}
		}
		dest := ast.Destination{} // §9 placeholder: vat 0, entity 0
		if e.Dest != nil {
			dest = *e.Dest
		}
		funcID := e.FunctionID
		if e.FunctionName != "" {
			ids, ok := c.funcIDs[dest.EntityID]
			if !ok {
				return fmt.Errorf("compiler: message send targets unknown entity %d", dest.EntityID)
			}
			id, ok := ids[e.FunctionName]
			if !ok {
				return fmt.Errorf("compiler: entity %d has no function %q", dest.EntityID, e.FunctionName)
			}
			funcID = id
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpMessage, Message: bytecode.MessageOperand{
			VatID:    dest.VatID,
			EntityID: dest.EntityID,
			FuncID:   funcID,
			ArgCount: uint8(len(e.Args)),
		}})
		return nil

	default:
		return fmt.Errorf("compiler: unknown expression type %T", expr)
	}
}
