/*
Package metrics exposes the allocation run counters the ops surface serves
at /metrics (spec.md §4.8 is the source of every event counted here).

Grounded on NikeGunn-tutu's internal/infra/observability package: package
level promauto collectors, one Namespace per subsystem, incremented
directly from the code that observes the event rather than threaded
through a side-channel event bus.
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LotsDrawn counts inventory lot draws (spec.md §4.3 FEFO draw).
var LotsDrawn = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "allocator",
	Subsystem: "inventory",
	Name:      "lots_drawn_total",
	Help:      "Total inventory lot draws made while satisfying demand.",
})

// ShortDemandQty sums the quantity left unsatisfied after all allocators
// and the transfer planner have run for a (tier, day) (spec.md §4.3/§4.4).
var ShortDemandQty = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "allocator",
	Subsystem: "demand",
	Name:      "short_qty_total",
	Help:      "Total demand quantity left short, by pass.",
}, []string{"pass"})

// FullPackOuts counts harvest keys sealed because starting capacity could
// not cover total requested plant sites (spec.md §4.4 "full pack-out").
var FullPackOuts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "allocator",
	Subsystem: "harvest",
	Name:      "full_pack_outs_total",
	Help:      "Total harvest keys sealed by a full pack-out.",
})

// TrucksOpened counts distinct trucks the transfer planner opened
// (spec.md §4.5 "Truck capacity").
var TrucksOpened = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "allocator",
	Subsystem: "transfer",
	Name:      "trucks_opened_total",
	Help:      "Total trucks opened across all routes.",
})

// RunDuration observes how long one Driver.Run call took, labeled by
// outcome (spec.md §6 "last-run summary").
var RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "allocator",
	Subsystem: "run",
	Name:      "duration_seconds",
	Help:      "Wall-clock duration of a full Driver.Run invocation.",
	Buckets:   prometheus.DefBuckets,
}, []string{"outcome"})
