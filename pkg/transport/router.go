// Package transport implements the in-process message fabric that
// carries a pkg/runtime.Message from the vat that emitted it to the
// vat addressed by its destination (§4.6, §5 — SPEC_FULL.md's "inter-vat
// transport" addition; the core spec.md deliberately stops at a single
// vat's scheduling loop).
package transport

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kristofer/actorvm/pkg/runtime"
)

// inboxSize bounds how many undelivered messages a vat's channel holds;
// once it is full, Send drops further messages rather than blocking. A
// vat drains its inbox strictly FIFO (§4.6), so
// a bounded channel is exactly that queue.
const inboxSize = 256

// Router fans outbound messages out to the inbox channel of whichever
// vat their Dst.VatID names. It holds no opinion about node_id: every
// vat it knows about is addressable, regardless of the node field a
// Message carries (§3's Message.Dst is an EntityAddress of (node_id,
// vat_id, entity_id); a multi-node deployment would swap Router for something
// that forwards node_id != self elsewhere).
type Router struct {
	mu     sync.RWMutex
	inbox  map[uint32]chan *runtime.Message
	logger *zap.SugaredLogger
}

// NewRouter creates an empty Router.
func NewRouter(logger *zap.SugaredLogger) *Router {
	return &Router{inbox: make(map[uint32]chan *runtime.Message), logger: logger}
}

// Register creates vatID's inbox channel and returns it for a vat's
// run loop to range over. Registering the same id twice is a
// programmer error — it would silently orphan the first channel.
func (r *Router) Register(vatID uint32) <-chan *runtime.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.inbox[vatID]; exists {
		panic(fmt.Sprintf("transport: vat %d registered twice", vatID))
	}
	ch := make(chan *runtime.Message, inboxSize)
	r.inbox[vatID] = ch
	return ch
}

// Unregister closes and removes vatID's inbox. Callers must stop
// sending to vatID before calling this — Send on a closed channel
// panics, matching Go's usual channel-ownership discipline.
func (r *Router) Unregister(vatID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.inbox[vatID]; ok {
		close(ch)
		delete(r.inbox, vatID)
	}
}

// Send delivers msg to its destination vat's inbox. An unknown
// destination vat is logged and dropped rather than returned as an
// error — the sender already moved on by the time Send runs, since
// delivery happens from the interpreter's Outbox callback deep inside
// a RunExpr call.
func (r *Router) Send(msg *runtime.Message) {
	r.mu.RLock()
	ch, ok := r.inbox[msg.Dst.VatID]
	r.mu.RUnlock()

	if !ok {
		if r.logger != nil {
			r.logger.Warnw("dropping message to unknown vat", "vat", msg.Dst.VatID, "entity", msg.Dst.EntityID)
		}
		return
	}

	select {
	case ch <- msg:
	default:
		if r.logger != nil {
			r.logger.Errorw("vat inbox full, dropping message", "vat", msg.Dst.VatID)
		}
	}
}

// Outbox adapts Send to the runtime.Outbox signature pkg/interp calls.
func (r *Router) Outbox() runtime.Outbox {
	return r.Send
}
