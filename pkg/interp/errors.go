// Package interp implements run_expr: the instruction loop that
// executes bytecode within a vat on behalf of one message (§4.5).
package interp

import (
	"fmt"

	"github.com/kristofer/actorvm/pkg/bytecode"
	"github.com/kristofer/actorvm/pkg/value"
)

// RuntimeError reports a fatal-to-the-current-message failure with
// enough context to diagnose it: the instruction pointer, the opcode
// being executed, and the operand stack's top value at the time
// (§7 propagation contract). The vat itself survives a RuntimeError —
// the scheduler drops the message and keeps running.
type RuntimeError struct {
	IP      int
	Op      bytecode.Opcode
	StackTop *value.Value
	Err     error
}

func (e *RuntimeError) Error() string {
	if e.StackTop != nil {
		return fmt.Sprintf("interp: %v (ip=%d op=%s top=%s)", e.Err, e.IP, e.Op, e.StackTop)
	}
	return fmt.Sprintf("interp: %v (ip=%d op=%s)", e.Err, e.IP, e.Op)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

func newRuntimeError(ip int, op bytecode.Opcode, stack []value.Value, err error) *RuntimeError {
	re := &RuntimeError{IP: ip, Op: op, Err: err}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		re.StackTop = &top
	}
	return re
}
