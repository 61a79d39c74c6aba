package handlers

import (
	"net/http"

	"github.com/lurelab/lure/pkg/core"
	"github.com/lurelab/lure/pkg/engage"
	"github.com/lurelab/lure/pkg/gateway/mw"
)

type statsResponse struct {
	engage.Stats
	InFlightTurns    int `json:"in_flight_turns"`
	DashboardClients int `json:"dashboard_clients"`
}

// StatsHandler serves GET /v1/stats with store aggregates plus live
// gauges.
type StatsHandler struct {
	Store            engage.Store
	InFlight         func() int
	DashboardClients func() int
}

func (h StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, reqID, http.MethodGet)
		return
	}

	stats, err := h.Store.Stats(r.Context())
	if err != nil {
		writeError(w, reqID, core.NewStoreError("", err))
		return
	}

	resp := statsResponse{Stats: stats}
	if h.InFlight != nil {
		resp.InFlightTurns = h.InFlight()
	}
	if h.DashboardClients != nil {
		resp.DashboardClients = h.DashboardClients()
	}
	writeJSON(w, http.StatusOK, resp)
}
