package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/lurelab/lure/pkg/core"
	"github.com/lurelab/lure/pkg/gateway/config"
	"github.com/lurelab/lure/pkg/gateway/dashboard"
	"github.com/lurelab/lure/pkg/gateway/lifecycle"
	"github.com/lurelab/lure/pkg/gateway/mw"
	"github.com/lurelab/lure/pkg/gateway/ratelimit"
	"github.com/lurelab/lure/pkg/gateway/track"
)

// DashboardHandler serves GET /ws/dashboard: a read-only event feed for
// monitoring UIs.
type DashboardHandler struct {
	Config    config.Config
	Hub       *dashboard.Hub
	Tracker   *track.Tracker
	Limiter   *ratelimit.Limiter
	Lifecycle *lifecycle.Lifecycle
	Logger    *slog.Logger
}

func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, reqID, http.MethodGet)
		return
	}
	if h.Lifecycle.IsDraining() {
		writeJSON(w, http.StatusServiceUnavailable, errorEnvelope{Error: &core.Error{
			Type:      core.ErrAPI,
			Message:   "server is draining",
			RequestID: reqID,
		}})
		return
	}

	dec := h.Limiter.AcquireSocket(principalKey(r), time.Now())
	if !dec.Allowed {
		writeError(w, reqID, core.NewRateLimitError("too many dashboard connections", dec.RetryAfter))
		return
	}
	defer dec.Permit.Release()

	upgrader := newUpgrader(h.Config)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("dashboard upgrade failed", "error", err, "request_id", reqID)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	unregister := h.Tracker.Register("dash:"+reqID, track.Handle{Cancel: cancel})
	defer unregister()

	logger.Info("dashboard client connected", "request_id", reqID)
	if err := h.Hub.ServeClient(ctx, conn); err != nil && err != context.Canceled {
		logger.Debug("dashboard client closed", "error", err, "request_id", reqID)
	}
	logger.Info("dashboard client disconnected", "request_id", reqID)
}
