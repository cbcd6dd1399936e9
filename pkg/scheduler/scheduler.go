// Package scheduler implements run_msg (§4.6): the per-vat dispatch
// loop that turns an inbound Message into a call into pkg/interp, and
// turns the result back into an outbound Response or nothing at all.
package scheduler

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kristofer/actorvm/pkg/bytecode"
	"github.com/kristofer/actorvm/pkg/interp"
	"github.com/kristofer/actorvm/pkg/runtime"
	"github.com/kristofer/actorvm/pkg/value"
)

// Scheduler owns the shared, stateless collaborators every vat's
// dispatch loop uses: a cached binary loader, an interpreter, a
// logger, and metrics. A Vat carries the only per-vat mutable state,
// so one Scheduler serves every vat in a process (§4.6).
type Scheduler struct {
	Loader  *bytecode.Loader
	Interp  *interp.Interp
	Logger  *zap.SugaredLogger
	Metrics *Metrics
}

// New creates a Scheduler from its collaborators.
func New(loader *bytecode.Loader, ip *interp.Interp, logger *zap.SugaredLogger, metrics *Metrics) *Scheduler {
	return &Scheduler{Loader: loader, Interp: ip, Logger: logger, Metrics: metrics}
}

// RunMsg dispatches one message against vat and returns the outbound
// Response to send back, if any (§4.6):
//
//   - Request: look up the destination function, bind its arguments,
//     run it. On success without yielding, build and return a
//     Response carrying the result and the Request's SrcPromise. On a
//     RuntimeError, the message is dropped: no Response is built, and
//     the error is returned to the caller.
//   - Response: resolve the target promise, restore its save point,
//     and resume execution from the saved instruction pointer. A
//     Response never produces another Response of its own.
//   - BigBang: run the named entry function like a Request, but never
//     produce a reply — there is no sender waiting on a promise.
//
// raw is the destination entity's code. RunLoop obtains it through its
// CodeTable from the entity's CodeID, since a vat's entities may each
// carry a different CodeID (§3).
func (s *Scheduler) RunMsg(raw []byte, vat *runtime.Vat, msg *runtime.Message, outbox runtime.Outbox) (*runtime.Message, error) {
	s.Metrics.MessagesDispatched.Inc()

	bin, err := s.Loader.Load(raw)
	if err != nil {
		s.Metrics.MessagesDropped.Inc()
		return nil, fmt.Errorf("scheduler: loading binary: %w", err)
	}

	switch {
	case msg.Request != nil:
		return s.runRequest(bin, vat, msg, outbox)
	case msg.Response != nil:
		return nil, s.runResponse(bin, vat, msg, outbox)
	case msg.BigBang != nil:
		_, err := s.RunBigBang(bin, vat, msg, outbox)
		return nil, err
	default:
		return nil, fmt.Errorf("scheduler: message carries neither Request, Response, nor BigBang")
	}
}

func (s *Scheduler) runRequest(bin *bytecode.Binary, vat *runtime.Vat, msg *runtime.Message, outbox runtime.Outbox) (*runtime.Message, error) {
	req := msg.Request
	result, yielded, err := s.runEntry(bin, vat, msg, req.FunctionID, req.Args, outbox)
	if err != nil {
		return nil, err
	}
	if yielded {
		return nil, nil
	}

	s.Metrics.ResponsesSent.Inc()
	if s.Logger != nil && msg.TraceID != "" {
		s.Logger.Debugw("request completed", "trace", msg.TraceID, "vat", vat.VatID, "entity", msg.Dst.EntityID)
	}
	return &runtime.Message{
		Src: msg.Dst,
		Dst: msg.Src,
		Response: &runtime.Response{
			Result:     *result,
			DstPromise: req.SrcPromise,
		},
		TraceID: msg.TraceID,
	}, nil
}

// RunBigBang runs a BigBang message's entry function to completion or
// yield and returns its result, bypassing RunMsg's "never reply"
// handling so a driver (cmd/actorvm's runner) can observe the
// program's final value. RunMsg's own BigBang case calls this and
// discards the result, matching spec.md's fire-and-forget semantics.
func (s *Scheduler) RunBigBang(bin *bytecode.Binary, vat *runtime.Vat, msg *runtime.Message, outbox runtime.Outbox) (*value.Value, error) {
	result, _, err := s.runEntry(bin, vat, msg, msg.BigBang.FunctionID, msg.BigBang.Args, outbox)
	return result, err
}

// runEntry pushes a fresh outermost frame, binds args onto the operand
// stack in call order, and runs the destination function to
// completion or yield. A RuntimeError drops the message (§4.6,
// §7): it is counted and logged, then returned without a result; the
// vat keeps running.
func (s *Scheduler) runEntry(bin *bytecode.Binary, vat *runtime.Vat, msg *runtime.Message, funcID uint32, args []value.Value, outbox runtime.Outbox) (*value.Value, bool, error) {
	loc, ok := bin.FuncTable.Lookup(msg.Dst.EntityID, funcID)
	if !ok {
		s.Metrics.MessagesDropped.Inc()
		return nil, false, fmt.Errorf("scheduler: entity %d has no function %d", msg.Dst.EntityID, funcID)
	}

	vat.PushFrame(runtime.NewStackFrame(nil))
	for _, a := range args {
		vat.PushOperand(a)
	}

	promisesBefore := len(vat.PromiseStack)
	result, yielded, err := s.Interp.RunExpr(bin, vat, msg, int(loc.Start), outbox)
	s.Metrics.PromisesPending.Add(float64(len(vat.PromiseStack) - promisesBefore))
	if err != nil {
		s.Metrics.MessagesDropped.Inc()
		if s.Logger != nil {
			s.Logger.Warnw("dropping message after interpreter error",
				"vat", vat.VatID, "entity", msg.Dst.EntityID, "func", funcID, "error", err)
		}
		return nil, false, err
	}
	if yielded {
		s.Metrics.Yields.Inc()
	}
	return result, yielded, nil
}

// runResponse resolves the promise named by msg.Response.DstPromise,
// restores its save point, stores the result into the first variable
// that was bound to it while pending (§8.6), and resumes every
// suspended Await (§4.6, §4.5).
func (s *Scheduler) runResponse(bin *bytecode.Binary, vat *runtime.Vat, msg *runtime.Message, outbox runtime.Outbox) error {
	resp := msg.Response
	if resp.DstPromise == nil {
		return fmt.Errorf("scheduler: Response carries no destination promise")
	}
	promID := *resp.DstPromise

	prom, ok := vat.PromiseStack[promID]
	if !ok {
		return fmt.Errorf("scheduler: Response targets unknown promise %d", promID)
	}
	if prom.Resolved {
		// §8.5: a promise resolves exactly once. A duplicate Response
		// is dropped rather than re-run against a stale save point.
		return nil
	}
	prom.Resolved = true
	prom.Result = resp.Result
	s.Metrics.PromisesPending.Dec()

	resumptions := prom.OnResolve
	prom.OnResolve = nil

	for _, ip := range resumptions {
		vat.OperandStack = append([]value.Value(nil), prom.SavePoint.OperandStack...)
		vat.CallStack = append([]runtime.StackFrame(nil), prom.SavePoint.CallStack...)

		// Await's own value is the resolved result (§4.5); push it back
		// onto the stack so whatever instruction follows Await in the
		// compiled body — a Lstore binding it to a name, or the scratch
		// discard store for a bare "await p;" statement — has an operand
		// to consume, exactly as it would if Await had never suspended.
		vat.PushOperand(resp.Result)

		if len(prom.VarNames) > 0 {
			if err := bindPromiseResult(vat, prom.VarNames[0], resp.Result); err != nil {
				return err
			}
		}

		promisesBefore := len(vat.PromiseStack)
		result, yielded, err := s.Interp.RunExpr(bin, vat, msg, ip, outbox)
		s.Metrics.PromisesPending.Add(float64(len(vat.PromiseStack) - promisesBefore))
		if err != nil {
			s.Metrics.MessagesDropped.Inc()
			if s.Logger != nil {
				s.Logger.Warnw("dropping resumed computation after interpreter error",
					"vat", vat.VatID, "promise", promID, "trace", msg.TraceID, "error", err)
			}
			continue
		}
		if yielded {
			s.Metrics.Yields.Inc()
			continue
		}
		_ = result
	}
	return nil
}

// bindPromiseResult writes v into name within the current top frame's
// locals. Only Lstore records a pending promise's VarNames (§4.5), so
// the name is always a local; entity fields are never written here.
func bindPromiseResult(vat *runtime.Vat, name string, v value.Value) error {
	if frame, ok := vat.TopFrame(); ok {
		frame.Locals[name] = v
		return nil
	}
	return fmt.Errorf("scheduler: no call frame to bind resumed value %q into", name)
}
