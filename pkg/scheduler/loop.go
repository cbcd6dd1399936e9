package scheduler

import (
	"context"

	"github.com/kristofer/actorvm/pkg/runtime"
)

// CodeTable resolves an entity to the raw binary bytes it runs. A vat's
// entities may each be instantiated from a different compiled program
// (§3 — Entity.CodeID), so the run loop asks for the code fresh on
// every dispatch rather than assuming one binary per vat.
type CodeTable func(codeID uint64) ([]byte, bool)

// RunLoop drains inbox in FIFO order (§4.6), dispatching each message
// through RunMsg and forwarding any produced Response to outbox. It
// returns when ctx is cancelled or inbox is closed.
func (s *Scheduler) RunLoop(ctx context.Context, vat *runtime.Vat, inbox <-chan *runtime.Message, codeTable CodeTable, outbox runtime.Outbox) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbox:
			if !ok {
				return
			}
			s.dispatch(vat, msg, codeTable, outbox)
		}
	}
}

func (s *Scheduler) dispatch(vat *runtime.Vat, msg *runtime.Message, codeTable CodeTable, outbox runtime.Outbox) {
	ent, ok := vat.Entities[msg.Dst.EntityID]
	if !ok {
		s.Metrics.MessagesDropped.Inc()
		if s.Logger != nil {
			s.Logger.Warnw("dropping message to unknown entity", "vat", vat.VatID, "entity", msg.Dst.EntityID)
		}
		return
	}

	raw, ok := codeTable(ent.CodeID)
	if !ok {
		s.Metrics.MessagesDropped.Inc()
		if s.Logger != nil {
			s.Logger.Warnw("dropping message for unknown code id", "vat", vat.VatID, "entity", msg.Dst.EntityID, "codeID", ent.CodeID)
		}
		return
	}

	resp, err := s.RunMsg(raw, vat, msg, outbox)
	if err != nil {
		// The message gets no response. RunMsg has already counted
		// loader, lookup and interpreter failures as drops.
		return
	}
	if resp != nil {
		outbox(resp)
	}
}
