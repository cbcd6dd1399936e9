// Package runtime holds the vat-owned state the interpreter and
// scheduler operate on: entity addresses, entities, messages,
// promises, call frames, and the vat itself (§3 Data model).
package runtime

import "github.com/kristofer/actorvm/pkg/value"

// EntityAddress identifies an entity across the whole system. Entity
// id 0 is reserved for the bootstrap entity (§3).
type EntityAddress struct {
	NodeID   uint32
	VatID    uint32
	EntityID uint32
}

// Request is the contents of an outbound method call. SrcPromise is
// nil only for a BigBang-style call; Request itself always carries one
// because every Message opcode allocates a promise before sending.
type Request struct {
	Args         []value.Value
	FunctionID   uint32
	FunctionName string
	SrcPromise   *uint32
}

// Response carries a completed call's result back to the sender.
type Response struct {
	Result     value.Value
	DstPromise *uint32
}

// BigBang is the one-shot startup message: it runs an entry function
// and expects no reply.
type BigBang struct {
	Args         []value.Value
	FunctionID   uint32
	FunctionName string
}

// Message is a directed packet: exactly one of Request, Response, or
// BigBang is non-nil.
//
// TraceID is not part of the wire format — it never survives a
// pkg/bytecode round trip and has no bearing on promise resolution or
// equality. It exists purely so a logger call can correlate an
// outbound Request with the Response that eventually answers it.
type Message struct {
	Src, Dst EntityAddress
	Request  *Request
	Response *Response
	BigBang  *BigBang
	TraceID  string
}

// Outbox is how the interpreter hands an outbound Message to whatever
// carries it onward — the scheduler's send channel (§4.5's "Message
// allocates a promise ... sends the outbound request").
type Outbox func(*Message)

// Entity is an actor-like object with private data and named methods.
// Only the owning vat may mutate Data.
type Entity struct {
	Address EntityAddress
	Data    map[string]value.Value
	CodeID  uint64
}

// NewEntity creates an entity whose declared fields are all None.
func NewEntity(addr EntityAddress, fields []string, codeID uint64) *Entity {
	data := make(map[string]value.Value, len(fields))
	for _, f := range fields {
		data[f] = value.None
	}
	return &Entity{Address: addr, Data: data, CodeID: codeID}
}

// StackFrame is one call frame: its locals and, unless it is the
// outermost frame, the instruction offset to resume at on Ret.
type StackFrame struct {
	Locals        map[string]value.Value
	ReturnAddress *int
}

// NewStackFrame creates an empty frame. A nil returnAddress marks the
// outermost frame — returning from it terminates the current message.
func NewStackFrame(returnAddress *int) StackFrame {
	return StackFrame{Locals: make(map[string]value.Value), ReturnAddress: returnAddress}
}

// SavePoint is a snapshot of both stacks taken when a computation
// suspends on Await, so it can be restored verbatim on resume.
type SavePoint struct {
	OperandStack []value.Value
	CallStack    []StackFrame
}

// Promise is a handle to a pending message result. It resolves exactly
// once (§8.5); every Await targeting it before that pushes a
// resumption IP onto OnResolve.
type Promise struct {
	Resolved bool
	// Result is the resolved value, valid once Resolved is true. Await
	// pushes it back onto the operand stack both when it finds an
	// already-resolved promise and, via the scheduler, on every resumed
	// computation (§4.5 — Await's "value" is whatever the message
	// eventually answered with).
	Result    value.Value
	OnResolve []int
	SavePoint SavePoint
	// VarNames records, in order, the local variable names that Lstore
	// bound this promise to while it was still pending
	// (§4.5 — "Lstore additionally ..."). On resolution the result is
	// stored into VarNames[0] (§8.6 Await correctness).
	VarNames []string
}

// NewPromise creates an unresolved promise.
func NewPromise() *Promise {
	return &Promise{}
}

// Vat is a single-threaded scheduler's state: its entities, the
// operand/call stacks shared by all running computations, and the
// promise table. Only the owning goroutine may touch a Vat.
type Vat struct {
	VatID uint32

	Entities map[uint32]*Entity

	OperandStack []value.Value
	CallStack    []StackFrame
	PromiseStack map[uint32]*Promise

	nextEntityID  uint32
	nextPromiseID uint32
}

// NewVat creates an empty vat.
func NewVat(vatID uint32) *Vat {
	return &Vat{
		VatID:        vatID,
		Entities:     make(map[uint32]*Entity),
		PromiseStack: make(map[uint32]*Promise),
	}
}

// CreateEntity allocates a new entity owned by this vat and returns it.
func (v *Vat) CreateEntity(fields []string, codeID uint64) *Entity {
	id := v.nextEntityID
	v.nextEntityID++
	addr := EntityAddress{NodeID: 0, VatID: v.VatID, EntityID: id}
	ent := NewEntity(addr, fields, codeID)
	v.Entities[id] = ent
	return ent
}

// NewPromise allocates and registers a fresh promise, returning its id.
// Promise ids are monotonic and never reused within a vat's lifetime
// (§9 Open Question, resolved: unbounded growth is intentional — a
// vat that sends unboundedly many messages is expected to eventually
// need a wider id space or promise GC, which is explicitly a Non-goal).
func (v *Vat) NewPromise() (uint32, *Promise) {
	id := v.nextPromiseID
	v.nextPromiseID++
	p := NewPromise()
	v.PromiseStack[id] = p
	return id, p
}

// PushOperand pushes v onto the operand stack.
func (vat *Vat) PushOperand(val value.Value) {
	vat.OperandStack = append(vat.OperandStack, val)
}

// PopOperand pops the top of the operand stack, reporting underflow.
func (vat *Vat) PopOperand() (value.Value, bool) {
	n := len(vat.OperandStack)
	if n == 0 {
		return value.Value{}, false
	}
	v := vat.OperandStack[n-1]
	vat.OperandStack = vat.OperandStack[:n-1]
	return v, true
}

// PushFrame pushes a new call frame.
func (vat *Vat) PushFrame(f StackFrame) {
	vat.CallStack = append(vat.CallStack, f)
}

// PopFrame pops the topmost call frame, reporting underflow.
func (vat *Vat) PopFrame() (StackFrame, bool) {
	n := len(vat.CallStack)
	if n == 0 {
		return StackFrame{}, false
	}
	f := vat.CallStack[n-1]
	vat.CallStack = vat.CallStack[:n-1]
	return f, true
}

// TopFrame returns the topmost call frame without popping it.
func (vat *Vat) TopFrame() (*StackFrame, bool) {
	n := len(vat.CallStack)
	if n == 0 {
		return nil, false
	}
	return &vat.CallStack[n-1], true
}
