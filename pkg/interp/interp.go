package interp

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/kristofer/actorvm/pkg/bytecode"
	"github.com/kristofer/actorvm/pkg/foreign"
	"github.com/kristofer/actorvm/pkg/runtime"
	"github.com/kristofer/actorvm/pkg/value"
)

// Interp executes instructions from a binary's code region on behalf
// of a vat. It holds no per-run state of its own — everything mutable
// lives on the runtime.Vat passed to RunExpr — so a single Interp can
// serve every vat in a process.
type Interp struct {
	Foreign *foreign.Registry
}

// New creates an interpreter that dispatches OpForeignCall through reg.
func New(reg *foreign.Registry) *Interp {
	return &Interp{Foreign: reg}
}

// RunExpr executes instructions from startIP within vat, for msg,
// until one of (§4.5):
//   - the instruction pointer passes the end of bin.Raw (implicit
//     return, §7 — treated as success rather than a code-overrun fault),
//   - Ret pops a frame with no return address (explicit termination),
//   - Await suspends on an unresolved promise (yield).
//
// It returns (result, yielded, err). A non-nil err means the message
// is fatal; the caller (the scheduler) drops it without a response.
func (ip *Interp) RunExpr(bin *bytecode.Binary, vat *runtime.Vat, msg *runtime.Message, startIP int, outbox runtime.Outbox) (*value.Value, bool, error) {
	x := startIP
	yielded := false
	terminated := false

	for x < len(bin.Raw) {
		lastIP := x
		inst, next, err := bytecode.Decode(bin.Raw, x)
		if err != nil {
			return nil, false, newRuntimeError(lastIP, bytecode.Opcode(bin.Raw[lastIP]), vat.OperandStack, err)
		}
		x = next

		switch inst.Op {
		case bytecode.OpPush:
			vat.PushOperand(inst.Value)

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv:
			if err := ip.execArith(vat, inst.Op); err != nil {
				return nil, false, newRuntimeError(lastIP, inst.Op, vat.OperandStack, err)
			}

		case bytecode.OpLload:
			frame, ok := vat.TopFrame()
			if !ok {
				return nil, false, newRuntimeError(lastIP, inst.Op, vat.OperandStack, fmt.Errorf("call stack underflow"))
			}
			v, ok := frame.Locals[inst.Name]
			if !ok {
				return nil, false, newRuntimeError(lastIP, inst.Op, vat.OperandStack, fmt.Errorf("unbound local %q", inst.Name))
			}
			vat.PushOperand(v)

		case bytecode.OpLstore:
			v, ok := vat.PopOperand()
			if !ok {
				return nil, false, newRuntimeError(lastIP, inst.Op, vat.OperandStack, fmt.Errorf("operand stack underflow"))
			}
			frame, ok := vat.TopFrame()
			if !ok {
				return nil, false, newRuntimeError(lastIP, inst.Op, vat.OperandStack, fmt.Errorf("call stack underflow"))
			}
			frame.Locals[inst.Name] = v
			if v.Kind == value.KindPromise {
				if prom, ok := vat.PromiseStack[v.Promise]; ok {
					prom.VarNames = append(prom.VarNames, inst.Name)
				}
			}

		case bytecode.OpEload:
			ent, ok := vat.Entities[msg.Dst.EntityID]
			if !ok {
				return nil, false, newRuntimeError(lastIP, inst.Op, vat.OperandStack, fmt.Errorf("unknown entity %d", msg.Dst.EntityID))
			}
			v, ok := ent.Data[inst.Name]
			if !ok {
				return nil, false, newRuntimeError(lastIP, inst.Op, vat.OperandStack, fmt.Errorf("unbound field %q", inst.Name))
			}
			vat.PushOperand(v)

		case bytecode.OpEstore:
			v, ok := vat.PopOperand()
			if !ok {
				return nil, false, newRuntimeError(lastIP, inst.Op, vat.OperandStack, fmt.Errorf("operand stack underflow"))
			}
			ent, ok := vat.Entities[msg.Dst.EntityID]
			if !ok {
				return nil, false, newRuntimeError(lastIP, inst.Op, vat.OperandStack, fmt.Errorf("unknown entity %d", msg.Dst.EntityID))
			}
			ent.Data[inst.Name] = v

		case bytecode.OpMessage:
			if err := ip.execMessage(vat, msg, inst, outbox); err != nil {
				return nil, false, newRuntimeError(lastIP, inst.Op, vat.OperandStack, err)
			}

		case bytecode.OpAwait:
			v, ok := vat.PopOperand()
			if !ok {
				return nil, false, newRuntimeError(lastIP, inst.Op, vat.OperandStack, fmt.Errorf("operand stack underflow"))
			}
			if v.Kind != value.KindPromise {
				return nil, false, newRuntimeError(lastIP, inst.Op, vat.OperandStack, fmt.Errorf("await on non-promise value %s", v))
			}
			prom, ok := vat.PromiseStack[v.Promise]
			if !ok {
				return nil, false, newRuntimeError(lastIP, inst.Op, vat.OperandStack, fmt.Errorf("await on unknown promise %d", v.Promise))
			}
			if prom.Resolved {
				vat.PushOperand(prom.Result)
			} else {
				prom.SavePoint = runtime.SavePoint{
					OperandStack: append([]value.Value(nil), vat.OperandStack...),
					CallStack:    append([]runtime.StackFrame(nil), vat.CallStack...),
				}
				prom.OnResolve = append(prom.OnResolve, x)
				yielded = true
			}

		case bytecode.OpRet:
			frame, ok := vat.PopFrame()
			if !ok {
				return nil, false, newRuntimeError(lastIP, inst.Op, vat.OperandStack, fmt.Errorf("call stack underflow"))
			}
			if frame.ReturnAddress != nil {
				x = *frame.ReturnAddress
			} else {
				terminated = true
			}

		case bytecode.OpForeignCall:
			fn, err := ip.Foreign.Lookup(inst.FuncID)
			if err != nil {
				return nil, false, newRuntimeError(lastIP, inst.Op, vat.OperandStack, err)
			}
			ent, ok := vat.Entities[msg.Dst.EntityID]
			if !ok {
				return nil, false, newRuntimeError(lastIP, inst.Op, vat.OperandStack, fmt.Errorf("unknown entity %d", msg.Dst.EntityID))
			}
			vat.PushOperand(fn(ent, value.None))

		case bytecode.OpNop:
			// no-op

		default:
			return nil, false, newRuntimeError(lastIP, inst.Op, vat.OperandStack, fmt.Errorf("invalid opcode"))
		}

		if yielded || terminated {
			break
		}
	}

	if len(vat.OperandStack) > 1 {
		return nil, false, fmt.Errorf("interp: invalid program, %d residual operands on stack", len(vat.OperandStack))
	}

	if yielded {
		return nil, true, nil
	}

	if len(vat.OperandStack) == 0 {
		none := value.None
		return &none, false, nil
	}
	result, _ := vat.PopOperand()
	return &result, false, nil
}

// execArith pops the right operand, then the left, and pushes left OP
// right (§9 — a single, symmetric convention, fixing the original's
// inconsistent treatment of Sub/Div).
func (ip *Interp) execArith(vat *runtime.Vat, op bytecode.Opcode) error {
	right, ok := vat.PopOperand()
	if !ok {
		return fmt.Errorf("operand stack underflow")
	}
	left, ok := vat.PopOperand()
	if !ok {
		return fmt.Errorf("operand stack underflow")
	}
	if left.Kind != value.KindU8 || right.Kind != value.KindU8 {
		return fmt.Errorf("arithmetic on non-U8 operands: %s, %s", left, right)
	}

	switch op {
	case bytecode.OpAdd:
		vat.PushOperand(value.U8Value(left.U8 + right.U8))
	case bytecode.OpSub:
		vat.PushOperand(value.U8Value(left.U8 - right.U8))
	case bytecode.OpMul:
		vat.PushOperand(value.U8Value(left.U8 * right.U8))
	case bytecode.OpDiv:
		if right.U8 == 0 {
			return fmt.Errorf("division by zero")
		}
		vat.PushOperand(value.U8Value(left.U8 / right.U8))
	}
	return nil
}

// execMessage implements OpMessage (§4.1, §4.3): pop the arguments
// (pushed left to right, so popped in reverse and un-reversed here),
// allocate a promise, send the outbound Request, and push the handle.
func (ip *Interp) execMessage(vat *runtime.Vat, msg *runtime.Message, inst bytecode.Instruction, outbox runtime.Outbox) error {
	m := inst.Message
	args := make([]value.Value, m.ArgCount)
	for i := int(m.ArgCount) - 1; i >= 0; i-- {
		v, ok := vat.PopOperand()
		if !ok {
			return fmt.Errorf("operand stack underflow popping message argument")
		}
		args[i] = v
	}

	promiseID, _ := vat.NewPromise()
	dst := runtime.EntityAddress{NodeID: 0, VatID: m.VatID, EntityID: m.EntityID}
	out := &runtime.Message{
		Src: msg.Dst,
		Dst: dst,
		Request: &runtime.Request{
			Args:       args,
			FunctionID: m.FuncID,
			SrcPromise: &promiseID,
		},
		TraceID: uuid.NewString(),
	}
	outbox(out)
	vat.PushOperand(value.PromiseValue(promiseID))
	return nil
}
