package engage

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lurelab/lure/pkg/core"
)

// BusyPolicy decides what happens when a turn arrives while another
// turn for the same session is in flight.
type BusyPolicy string

const (
	// BusyWait queues the turn FIFO behind the in-flight one, bounded
	// by the wait budget.
	BusyWait BusyPolicy = "wait"
	// BusyReject refuses the turn immediately with a session busy error.
	BusyReject BusyPolicy = "reject"
)

// Runner executes one turn. *Pipeline is the production implementation.
type Runner interface {
	Run(ctx context.Context, ev InboundEvent) (*TurnResult, error)
}

// ControllerConfig bounds the controller.
type ControllerConfig struct {
	// MaxConcurrent is the global admission ceiling across all sessions.
	MaxConcurrent int

	// TurnTimeout bounds one turn end to end, queue wait included.
	TurnTimeout time.Duration

	// BusyPolicy picks the same-session contention behavior.
	BusyPolicy BusyPolicy

	// BusyWaitBudget bounds the FIFO queue wait under BusyWait.
	// Zero means the turn timeout.
	BusyWaitBudget time.Duration
}

// Controller admits turn submissions under a global concurrency
// ceiling, serializes turns per session in FIFO order, and enforces the
// per-turn timeout. Every admission is released on every path.
type Controller struct {
	runner Runner
	cfg    ControllerConfig

	slots    chan struct{}
	locks    *keyedLock
	inflight atomic.Int64
	logger   *slog.Logger
}

// NewController creates a Controller.
func NewController(runner Runner, cfg ControllerConfig, logger *slog.Logger) *Controller {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 30
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 35 * time.Second
	}
	if cfg.BusyPolicy == "" {
		cfg.BusyPolicy = BusyWait
	}
	if cfg.BusyWaitBudget <= 0 {
		cfg.BusyWaitBudget = cfg.TurnTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		runner: runner,
		cfg:    cfg,
		slots:  make(chan struct{}, cfg.MaxConcurrent),
		locks:  newKeyedLock(),
		logger: logger,
	}
}

// InFlight returns the number of admitted turns.
func (c *Controller) InFlight() int {
	return int(c.inflight.Load())
}

// Submit runs one turn for the event's session. Rejections are typed:
// overloaded (admission ceiling), session busy (same-session
// contention), timeout (turn budget), store (commit failure).
func (c *Controller) Submit(ctx context.Context, ev InboundEvent) (*TurnResult, error) {
	if strings.TrimSpace(ev.SessionID) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("session_id is required", "session_id")
	}
	if strings.TrimSpace(ev.Text) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("text is required", "text")
	}

	// Global admission: non-blocking, the ceiling is a hard refusal.
	select {
	case c.slots <- struct{}{}:
	default:
		return nil, core.NewOverloadedError("engagement capacity reached")
	}
	c.inflight.Add(1)
	defer func() {
		c.inflight.Add(-1)
		<-c.slots
	}()

	start := time.Now()
	release, err := c.acquireSession(ctx, ev.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	// The queue wait spends part of the turn budget.
	remaining := c.cfg.TurnTimeout - time.Since(start)
	if remaining <= 0 {
		return nil, core.NewTimeoutError(ev.SessionID, "turn budget exhausted before processing")
	}
	turnCtx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()

	res, err := c.runner.Run(turnCtx, ev)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Warn("turn timed out", "session_id", ev.SessionID, "timeout", c.cfg.TurnTimeout)
			return nil, core.NewTimeoutError(ev.SessionID, "turn exceeded processing budget")
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	c.logger.Info("turn committed",
		"session_id", ev.SessionID,
		"state", res.State,
		"label", res.Meta.Label,
		"new_findings", len(res.Meta.NewFindings),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (c *Controller) acquireSession(ctx context.Context, sessionID string) (func(), error) {
	if c.cfg.BusyPolicy == BusyReject {
		release, ok := c.locks.TryAcquire(sessionID)
		if !ok {
			return nil, core.NewSessionBusyError(sessionID)
		}
		return release, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.BusyWaitBudget)
	defer cancel()
	release, err := c.locks.Acquire(waitCtx, sessionID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.NewSessionBusyError(sessionID)
	}
	return release, nil
}
