package transport_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/actorvm/pkg/runtime"
	"github.com/kristofer/actorvm/pkg/transport"
)

func TestRouterDeliversToRegisteredVat(t *testing.T) {
	r := transport.NewRouter(nil)
	inbox := r.Register(1)

	msg := &runtime.Message{Dst: runtime.EntityAddress{VatID: 1, EntityID: 0}}
	r.Send(msg)

	select {
	case got := <-inbox:
		assert.Same(t, msg, got)
	default:
		t.Fatal("expected message to be queued on the registered vat's inbox")
	}
}

func TestRouterDropsMessageToUnknownVat(t *testing.T) {
	r := transport.NewRouter(nil)
	// No vat registered at all; Send must not panic or block.
	r.Send(&runtime.Message{Dst: runtime.EntityAddress{VatID: 99}})
}

func TestRouterDropsOnFullInbox(t *testing.T) {
	r := transport.NewRouter(nil)
	inbox := r.Register(1)

	// Fill the inbox past capacity; the extra send must be dropped, not
	// block the caller.
	const sent = 300
	for i := 0; i < sent; i++ {
		r.Send(&runtime.Message{Dst: runtime.EntityAddress{VatID: 1}})
	}

	count := 0
	for {
		select {
		case <-inbox:
			count++
			continue
		default:
		}
		break
	}
	assert.Less(t, count, sent, "inbox is bounded, so not every send can have been queued")
	assert.Greater(t, count, 0)
}

func TestRouterUnregisterClosesChannel(t *testing.T) {
	r := transport.NewRouter(nil)
	inbox := r.Register(1)
	r.Unregister(1)

	_, ok := <-inbox
	assert.False(t, ok, "unregistering a vat closes its inbox channel")
}

func TestRouterRegisterTwiceForSameVatPanics(t *testing.T) {
	r := transport.NewRouter(nil)
	r.Register(1)
	assert.Panics(t, func() { r.Register(1) })
}

func TestRouterOutboxAdapterDelegatesToSend(t *testing.T) {
	r := transport.NewRouter(nil)
	inbox := r.Register(1)

	outbox := r.Outbox()
	msg := &runtime.Message{Dst: runtime.EntityAddress{VatID: 1}}
	outbox(msg)

	got, ok := <-inbox
	require.True(t, ok)
	assert.Same(t, msg, got)
}
