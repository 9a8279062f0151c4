/*
server.go - HTTP router for the allocation engine's ops surface.

Grounded on AntoineToussaint-timeoff's api/server.go: chi router, the
same Logger/Recoverer/RequestID/CORS middleware stack, routes grouped
under one prefix. /metrics is added next to the ops routes the way
NikeGunn-tutu's internal/api/server.go exposes promhttp.Handler()
alongside its own API routes, rather than on a second listener.
*/
package opsapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the read-only ops router.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept"},
	}))

	r.Route("/ops", func(r chi.Router) {
		r.Get("/status/{date}", h.GetStatus)
		r.Get("/harvest-ledger/{date}", h.GetHarvestLedgerSnapshot)
		r.Get("/transfers/{date}", h.GetCalculatedTransfers)
		r.Route("/runs/{pass}/{date}", func(r chi.Router) {
			r.Get("/inventory-allocations", h.GetInventoryAllocations)
			r.Get("/harvest-allocations", h.GetHarvestAllocations)
			r.Get("/short-demand", h.GetShortDemand)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
