/*
handlers.go - read-only HTTP handlers for the allocation engine's ops
surface.

PURPOSE:
  Lets an operator check whether today's run happened, what it produced,
  and what is still short, without a database client (spec.md §6
  "last-run summary"). This is NOT the "interactive UI for demand
  planners" the spec's Non-goals exclude — every route here is a GET
  against data the driver already wrote.

GROUNDING:
  Shaped directly after AntoineToussaint-timeoff's api/handlers.go:
  a Handler struct holding dependencies, one method per endpoint,
  writeJSON/writeError helpers, chi URL params read with chi.URLParam.
*/
package opsapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/greenrow/allocator/persist"
	"github.com/greenrow/allocator/refmodel"
)

// Handler holds the dependencies every ops route needs.
type Handler struct {
	Status  persist.StatusStore
	Reports persist.ReportReader
}

// NewHandler builds a Handler against a running store.
func NewHandler(status persist.StatusStore, reports persist.ReportReader) *Handler {
	return &Handler{Status: status, Reports: reports}
}

// GetStatus reports whether a date's inventory has been loaded and
// whether allocation has already run.
// GET /ops/status/{date}
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDateParam(w, r)
	if !ok {
		return
	}
	status, err := h.Status.Status(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read status", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetInventoryAllocations lists customer inventory allocations for a
// pass and date.
// GET /ops/runs/{pass}/{date}/inventory-allocations
func (h *Handler) GetInventoryAllocations(w http.ResponseWriter, r *http.Request) {
	pass, date, ok := parsePassAndDateParams(w, r)
	if !ok {
		return
	}
	rows, err := h.Reports.ReadInventoryAllocations(r.Context(), pass, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read inventory allocations", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetHarvestAllocations lists customer harvest allocations for a pass
// and date.
// GET /ops/runs/{pass}/{date}/harvest-allocations
func (h *Handler) GetHarvestAllocations(w http.ResponseWriter, r *http.Request) {
	pass, date, ok := parsePassAndDateParams(w, r)
	if !ok {
		return
	}
	rows, err := h.Reports.ReadHarvestAllocations(r.Context(), pass, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read harvest allocations", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetShortDemand lists short demand for a pass and date.
// GET /ops/runs/{pass}/{date}/short-demand
func (h *Handler) GetShortDemand(w http.ResponseWriter, r *http.Request) {
	pass, date, ok := parsePassAndDateParams(w, r)
	if !ok {
		return
	}
	rows, err := h.Reports.ReadShortDemand(r.Context(), pass, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read short demand", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetCalculatedTransfers lists the transfers the pending pass scheduled
// to ship on a date.
// GET /ops/transfers/{date}
func (h *Handler) GetCalculatedTransfers(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDateParam(w, r)
	if !ok {
		return
	}
	rows, err := h.Reports.ReadCalculatedTransfers(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read calculated transfers", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetHarvestLedgerSnapshot lists the harvest ledger's state as persisted
// at the close of a date's passes (spec.md §4.8 step 2).
// GET /ops/harvest-ledger/{date}
func (h *Handler) GetHarvestLedgerSnapshot(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDateParam(w, r)
	if !ok {
		return
	}
	rows, err := h.Reports.ReadHarvestLedgerSnapshot(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read harvest ledger snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func parseDateParam(w http.ResponseWriter, r *http.Request) (refmodel.Date, bool) {
	raw := chi.URLParam(r, "date")
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD", err)
		return refmodel.Date{}, false
	}
	return refmodel.DateOf(t), true
}

func parsePassAndDateParams(w http.ResponseWriter, r *http.Request) (persist.Pass, refmodel.Date, bool) {
	pass := persist.Pass(chi.URLParam(r, "pass"))
	if pass != persist.PassBaseline && pass != persist.PassPending {
		writeError(w, http.StatusBadRequest, "pass must be \"baseline\" or \"pending\"", nil)
		return "", refmodel.Date{}, false
	}
	date, ok := parseDateParam(w, r)
	return pass, date, ok
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := map[string]string{"error": message}
	if err != nil {
		resp["details"] = err.Error()
	}
	writeJSON(w, status, resp)
}
