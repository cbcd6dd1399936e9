// Package foreign implements the host-function registry that
// OpForeignCall looks up into (§4.7, §6).
//
// Registration happens before any vat runs and is the boundary spec.md
// places out of scope ("a mapping from byte id to foreign function...
// registration is out of scope"); this package only defines the
// mapping's shape and the lookup the interpreter performs.
package foreign

import (
	"fmt"

	"github.com/kristofer/actorvm/pkg/runtime"
	"github.com/kristofer/actorvm/pkg/value"
)

// Func is a host-provided function invoked synchronously within the
// vat that calls it (§4.5: ForeignCall invokes it with (current
// entity, None) and pushes the returned value).
type Func func(entity *runtime.Entity, arg value.Value) value.Value

// Registry maps foreign-function ids to their implementations.
type Registry struct {
	funcs map[uint32]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[uint32]Func)}
}

// Register binds id to fn. Registering the same id twice replaces the
// previous binding.
func (r *Registry) Register(id uint32, fn Func) {
	r.funcs[id] = fn
}

// Lookup returns the function bound to id, or an error if none was
// registered — a ForeignCall to an unregistered id is fatal to the
// current message, per §7's "invalid opcode" treatment.
func (r *Registry) Lookup(id uint32) (Func, error) {
	fn, ok := r.funcs[id]
	if !ok {
		return nil, fmt.Errorf("foreign: no function registered for id %d", id)
	}
	return fn, nil
}
