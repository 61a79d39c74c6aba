package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lurelab/lure/pkg/detect"
	"github.com/lurelab/lure/pkg/engage"
	"github.com/lurelab/lure/pkg/gateway/config"
	"github.com/lurelab/lure/pkg/gateway/dashboard"
	"github.com/lurelab/lure/pkg/gateway/handlers"
	"github.com/lurelab/lure/pkg/gateway/lifecycle"
	"github.com/lurelab/lure/pkg/gateway/mw"
	"github.com/lurelab/lure/pkg/gateway/ratelimit"
	"github.com/lurelab/lure/pkg/gateway/track"
	"github.com/lurelab/lure/pkg/persona"
	"github.com/lurelab/lure/pkg/store/memory"
	"github.com/lurelab/lure/pkg/store/postgres"
	"github.com/lurelab/lure/pkg/timeline"
	"github.com/lurelab/lure/pkg/voice"
)

// Server wires the engagement engine, session store, voice providers,
// and dashboard hub behind the HTTP surface.
type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	store      engage.Store
	storeClose func()
	controller *engage.Controller
	hub        *dashboard.Hub
	tracker    *track.Tracker
	lifecycle  *lifecycle.Lifecycle
	limiter    *ratelimit.Limiter
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, storeClose, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		storeClose()
		return nil, err
	}

	profile := persona.DefaultProfile()
	hub := dashboard.New(dashboard.Config{
		ClientBuffer: cfg.DashboardClientBuffer,
		PingInterval: cfg.DashboardPingInterval,
		WriteTimeout: cfg.DashboardWriteTimeout,
	}, logger)

	pipeline := engage.NewPipeline(engage.PipelineDeps{
		Store:     store,
		Detector:  detect.New(detect.WithModelThreshold(cfg.ModelThreshold)),
		Responder: persona.NewResponder(provider, profile),
		Validator: persona.NewValidator(profile),
		Aggregator: timeline.New(timeline.Policy{
			EWMAWeight:         cfg.ConfidenceWeight,
			CompleteConfidence: cfg.CompleteConfidence,
			HardMaxMessages:    cfg.HardMaxMessages,
		}),
		Notifier: hub,
		Logger:   logger,
	})

	controller := engage.NewController(pipeline, engage.ControllerConfig{
		MaxConcurrent:  cfg.MaxConcurrentSessions,
		TurnTimeout:    cfg.TurnTimeout,
		BusyPolicy:     engage.BusyPolicy(cfg.BusyPolicy),
		BusyWaitBudget: cfg.BusyWaitBudget,
	}, logger)

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		mux:        http.NewServeMux(),
		store:      store,
		storeClose: storeClose,
		controller: controller,
		hub:        hub,
		tracker:    track.NewTracker(),
		lifecycle:  &lifecycle.Lifecycle{},
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                   cfg.LimitRPS,
			Burst:                 cfg.LimitBurst,
			MaxConcurrentRequests: cfg.LimitMaxConcurrentRequests,
			MaxSockets:            cfg.LimitMaxDashboardClients,
		}),
	}

	hub.SetStatsSource(func() any {
		stats, err := store.Stats(context.Background())
		if err != nil {
			return nil
		}
		return map[string]any{
			"total_sessions":    stats.TotalSessions,
			"active_sessions":   stats.ActiveSessions,
			"scams_detected":    stats.ScamsDetected,
			"findings":          stats.Findings,
			"in_flight_turns":   controller.InFlight(),
			"dashboard_clients": hub.ClientCount(),
		}
	})

	s.routes()
	return s, nil
}

func newStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (engage.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		return memory.New(), func() {}, nil
	}
	pg, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect session store: %w", err)
	}
	logger.Info("session store connected", "backend", "postgres")
	return pg, pg.Close, nil
}

func newProvider(ctx context.Context, cfg config.Config) (persona.Provider, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return persona.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		return persona.NewGroq(cfg.GroqAPIKey, persona.WithGroqModel(cfg.GroqModel)), nil
	}
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})

	s.mux.Handle("/v1/engage", s.limitBody(handlers.EngageHandler{
		Controller:      s.controller,
		MaxMessageBytes: s.cfg.MaxMessageBytes,
	}))

	s.mux.Handle("/v1/stats", handlers.StatsHandler{
		Store:            s.store,
		InFlight:         s.controller.InFlight,
		DashboardClients: s.hub.ClientCount,
	})

	s.mux.Handle("/v1/live", &handlers.LiveHandler{
		Config:    s.cfg,
		Engager:   s.controller,
		STT:       newTranscriber(s.cfg),
		TTS:       newSynthesizer(s.cfg),
		Profile:   persona.DefaultProfile(),
		Tracker:   s.tracker,
		Limiter:   s.limiter,
		Lifecycle: s.lifecycle,
		Logger:    s.logger,
	})

	s.mux.Handle("/ws/dashboard", &handlers.DashboardHandler{
		Config:    s.cfg,
		Hub:       s.hub,
		Tracker:   s.tracker,
		Limiter:   s.limiter,
		Lifecycle: s.lifecycle,
		Logger:    s.logger,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func newTranscriber(cfg config.Config) voice.Transcriber {
	if cfg.DeepgramAPIKey == "" {
		return nil
	}
	return voice.NewDeepgram(cfg.DeepgramAPIKey)
}

func newSynthesizer(cfg config.Config) voice.Synthesizer {
	if cfg.ElevenLabsAPIKey == "" {
		return nil
	}
	return voice.NewElevenLabs(cfg.ElevenLabsAPIKey)
}

// limitBody caps request bodies before the JSON decoder sees them.
func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && s.cfg.MaxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.RateLimit(s.limiter, h)
	h = mw.APIVersion(h)
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips readiness and makes socket handlers refuse new
// connections. Existing calls keep running until warned or canceled.
func (s *Server) SetDraining(v bool) {
	s.lifecycle.SetDraining(v)
}

// WarnConnections tells every live socket the server is restarting.
func (s *Server) WarnConnections() {
	s.tracker.WarnAll("restart", "server restarting")
}

// WaitConnections blocks until every tracked connection unregisters or
// the context expires; it reports whether the drain completed.
func (s *Server) WaitConnections(ctx context.Context) bool {
	return s.tracker.Wait(ctx)
}

// CancelConnections force-closes every tracked connection.
func (s *Server) CancelConnections() {
	s.tracker.CancelAll()
}

// Close releases the session store.
func (s *Server) Close() {
	if s.storeClose != nil {
		s.storeClose()
	}
}
