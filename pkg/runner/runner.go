// Package runner wires together pkg/bytecode, pkg/interp, and
// pkg/scheduler into the single-process, single-vat driver
// `cmd/actorvm run` uses. It is deliberately synchronous: messages are
// drained from a FIFO queue in-process rather than over
// pkg/transport.Router's channels, since a CLI invocation has exactly
// one vat and no concurrent senders.
package runner

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kristofer/actorvm/pkg/bytecode"
	"github.com/kristofer/actorvm/pkg/foreign"
	"github.com/kristofer/actorvm/pkg/interp"
	"github.com/kristofer/actorvm/pkg/runtime"
	"github.com/kristofer/actorvm/pkg/scheduler"
	"github.com/kristofer/actorvm/pkg/value"
)

// Options configures a single Run call.
type Options struct {
	Logger      *zap.SugaredLogger
	EntityID    uint32
	FunctionID  uint32
	MetricsAddr string
}

// Run instantiates bin.EntityCount entities (see instantiateEntities),
// sends a BigBang to (EntityID, FunctionID), and drains the resulting
// message traffic to completion. It returns the value the entry
// function produces when it returns without suspending. If the entry
// function suspends on an Await, Run returns None: the value the
// resumed computation later produces is not reported, matching
// spec.md's treatment of BigBang as fire-and-forget from the caller's
// perspective (§4.1).
func Run(bin *bytecode.Binary, opts Options) (value.Value, error) {
	reg := prometheus.NewRegistry()
	if opts.MetricsAddr != "" {
		go serveMetrics(opts.MetricsAddr, reg, opts.Logger)
	}

	vat := runtime.NewVat(0)
	instantiateEntities(vat, bin)

	sched := scheduler.New(bytecode.NewLoader(), interp.New(foreign.NewRegistry()), opts.Logger, scheduler.NewMetrics(reg))

	var queue []*runtime.Message
	outbox := func(m *runtime.Message) { queue = append(queue, m) }

	entry := &runtime.Message{
		Dst:     runtime.EntityAddress{VatID: vat.VatID, EntityID: opts.EntityID},
		BigBang: &runtime.BigBang{FunctionID: opts.FunctionID},
	}
	result, err := sched.RunBigBang(bin, vat, entry, outbox)
	if err != nil {
		return value.None, fmt.Errorf("runner: running entry point: %w", err)
	}

	for len(queue) > 0 {
		msg := queue[0]
		queue = queue[1:]

		resp, err := sched.RunMsg(bin.Raw, vat, msg, outbox)
		if err != nil {
			continue
		}
		if resp != nil {
			outbox(resp)
		}
	}

	if result == nil {
		return value.None, nil
	}
	return *result, nil
}

// instantiateEntities creates one vat-owned entity per entity id in
// bin (§4.3 compiles entities in declaration order, so ids are dense
// from 0), seeding each from its data-table rows (if any).
// bin.EntityCount is authoritative: an entity with neither data fields
// nor functions leaves no trace in DataTable or FuncTable, so either
// table's row count would undercount it.
func instantiateEntities(vat *runtime.Vat, bin *bytecode.Binary) {
	byEntity := make(map[byte][]bytecode.DataEntry)
	for _, row := range bin.DataTable {
		byEntity[row.EntityID] = append(byEntity[row.EntityID], row)
	}

	count := bin.EntityCount
	if count == 0 {
		count = 1
	}
	for id := byte(0); int(id) < count; id++ {
		rows := byEntity[id]
		var fields []string
		for _, r := range rows {
			fields = append(fields, r.Name)
		}
		ent := vat.CreateEntity(fields, 0)
		for _, r := range rows {
			ent.Data[r.Name] = r.Initial
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if logger != nil {
		logger.Infow("serving metrics", "addr", addr)
	}
	if err := http.ListenAndServe(addr, mux); err != nil && logger != nil {
		logger.Errorw("metrics server stopped", "error", err)
	}
}
