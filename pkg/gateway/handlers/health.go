package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/lurelab/lure/pkg/gateway/config"
	"github.com/lurelab/lure/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK            bool     `json:"ok"`
		Draining      bool     `json:"draining,omitempty"`
		AuthMode      string   `json:"auth_mode"`
		Provider      string   `json:"provider"`
		Persistent    bool     `json:"persistent"`
		LimitsEnabled bool     `json:"limits_enabled"`
		Issues        []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if h.Lifecycle.IsDraining() {
		issues = append(issues, "draining")
	}

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}

	switch h.Config.Provider {
	case config.ProviderGroq:
		if h.Config.GroqAPIKey == "" {
			issues = append(issues, "provider=groq but no groq api key configured")
		}
	case config.ProviderGemini:
		if h.Config.GeminiAPIKey == "" {
			issues = append(issues, "provider=gemini but no gemini api key configured")
		}
	default:
		issues = append(issues, "invalid provider")
	}

	if h.Config.MaxBodyBytes <= 0 {
		issues = append(issues, "max_body_bytes must be > 0")
	}
	if h.Config.MaxConcurrentSessions <= 0 {
		issues = append(issues, "max_concurrent_sessions must be > 0")
	}
	if h.Config.TurnTimeout <= 0 {
		issues = append(issues, "turn_timeout must be > 0")
	}
	if h.Config.HardMaxMessages <= 0 {
		issues = append(issues, "hard_max_messages must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	limitsEnabled := (h.Config.LimitRPS > 0 && h.Config.LimitBurst > 0) ||
		h.Config.LimitMaxConcurrentRequests > 0

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:            ok,
		Draining:      h.Lifecycle.IsDraining(),
		AuthMode:      string(h.Config.AuthMode),
		Provider:      string(h.Config.Provider),
		Persistent:    h.Config.DatabaseURL != "",
		LimitsEnabled: limitsEnabled,
		Issues:        issues,
	})
}
