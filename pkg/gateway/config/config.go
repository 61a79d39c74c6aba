package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Provider string

const (
	ProviderGroq   Provider = "groq"
	ProviderGemini Provider = "gemini"
)

type BusyPolicy string

const (
	BusyPolicyWait   BusyPolicy = "wait"
	BusyPolicyReject BusyPolicy = "reject"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	// This should only be enabled when the gateway is deployed behind a trusted proxy/LB.
	TrustProxyHeaders bool

	MaxBodyBytes int64

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Engagement engine.
	MaxConcurrentSessions int
	TurnTimeout           time.Duration
	BusyPolicy            BusyPolicy
	BusyWaitBudget        time.Duration // 0 => TurnTimeout
	MaxMessageBytes       int64

	// Classifier.
	ModelThreshold float64

	// Timeline policy.
	ConfidenceWeight   float64
	CompleteConfidence float64
	HardMaxMessages    int

	// Reply provider.
	Provider     Provider
	GroqAPIKey   string
	GroqModel    string
	GeminiAPIKey string
	GeminiModel  string

	// Session store. Empty DatabaseURL selects the in-memory store.
	DatabaseURL string

	// Dashboard WebSocket (/ws/dashboard).
	DashboardPingInterval time.Duration
	DashboardWriteTimeout time.Duration
	DashboardClientBuffer int

	// Voice WebSocket (/v1/live).
	VoiceMaxAudioFrameBytes int
	VoiceSilenceTimeout     time.Duration
	VoiceBargeInThreshold   float64
	VoiceWSPingInterval     time.Duration
	VoiceWSWriteTimeout     time.Duration
	DeepgramAPIKey          string
	ElevenLabsAPIKey        string
	ElevenLabsVoice         string

	// In-memory limits (per principal).
	LimitRPS                   float64
	LimitBurst                 int
	LimitMaxConcurrentRequests int
	LimitMaxDashboardClients   int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                       envOr("LURE_ADDR", ":8080"),
		AuthMode:                   AuthMode(envOr("LURE_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:                    make(map[string]struct{}),
		TrustProxyHeaders:          envBoolOr("LURE_TRUST_PROXY_HEADERS", false),
		MaxBodyBytes:               envInt64Or("LURE_MAX_BODY_BYTES", 1<<20), // 1 MiB
		CORSAllowedOrigins:         make(map[string]struct{}),
		MaxConcurrentSessions:      envIntOr("LURE_MAX_CONCURRENT_SESSIONS", 30),
		TurnTimeout:                envDurationOr("LURE_TURN_TIMEOUT", 35*time.Second),
		BusyPolicy:                 BusyPolicy(envOr("LURE_BUSY_POLICY", string(BusyPolicyWait))),
		BusyWaitBudget:             envDurationOr("LURE_BUSY_WAIT_BUDGET", 0),
		MaxMessageBytes:            envInt64Or("LURE_MAX_MESSAGE_BYTES", 16<<10), // 16 KiB
		ModelThreshold:             envFloat64Or("LURE_MODEL_THRESHOLD", 0.65),
		ConfidenceWeight:           envFloat64Or("LURE_CONFIDENCE_WEIGHT", 0.6),
		CompleteConfidence:         envFloat64Or("LURE_COMPLETE_CONFIDENCE", 0.8),
		HardMaxMessages:            envIntOr("LURE_HARD_MAX_MESSAGES", 20),
		Provider:                   Provider(envOr("LURE_PROVIDER", string(ProviderGroq))),
		GroqAPIKey:                 os.Getenv("LURE_GROQ_API_KEY"),
		GroqModel:                  envOr("LURE_GROQ_MODEL", ""),
		GeminiAPIKey:               os.Getenv("LURE_GEMINI_API_KEY"),
		GeminiModel:                envOr("LURE_GEMINI_MODEL", "gemini-2.0-flash"),
		DatabaseURL:                strings.TrimSpace(os.Getenv("LURE_DATABASE_URL")),
		DashboardPingInterval:      envDurationOr("LURE_DASHBOARD_PING_INTERVAL", 20*time.Second),
		DashboardWriteTimeout:      envDurationOr("LURE_DASHBOARD_WRITE_TIMEOUT", 5*time.Second),
		DashboardClientBuffer:      envIntOr("LURE_DASHBOARD_CLIENT_BUFFER", 32),
		VoiceMaxAudioFrameBytes:    envIntOr("LURE_VOICE_MAX_AUDIO_FRAME_BYTES", 8192),
		VoiceSilenceTimeout:        envDurationOr("LURE_VOICE_SILENCE_TIMEOUT", 5*time.Second),
		VoiceBargeInThreshold:      envFloat64Or("LURE_VOICE_BARGE_IN_THRESHOLD", 0.05),
		VoiceWSPingInterval:        envDurationOr("LURE_VOICE_WS_PING_INTERVAL", 20*time.Second),
		VoiceWSWriteTimeout:        envDurationOr("LURE_VOICE_WS_WRITE_TIMEOUT", 5*time.Second),
		DeepgramAPIKey:             os.Getenv("LURE_DEEPGRAM_API_KEY"),
		ElevenLabsAPIKey:           os.Getenv("LURE_ELEVENLABS_API_KEY"),
		ElevenLabsVoice:            envOr("LURE_ELEVENLABS_VOICE", ""),
		LimitRPS:                   envFloat64Or("LURE_RATE_LIMIT_RPS", 5.0),
		LimitBurst:                 envIntOr("LURE_RATE_LIMIT_BURST", 10),
		LimitMaxConcurrentRequests: envIntOr("LURE_MAX_CONCURRENT_REQUESTS", 64),
		LimitMaxDashboardClients:   envIntOr("LURE_MAX_DASHBOARD_CLIENTS", 8),
		ReadHeaderTimeout:          envDurationOr("LURE_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                envDurationOr("LURE_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:        envDurationOr("LURE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("LURE_AUTH_MODE must be one of required|optional|disabled")
	}

	switch cfg.BusyPolicy {
	case BusyPolicyWait, BusyPolicyReject:
	default:
		return Config{}, fmt.Errorf("LURE_BUSY_POLICY must be one of wait|reject")
	}

	switch cfg.Provider {
	case ProviderGroq, ProviderGemini:
	default:
		return Config{}, fmt.Errorf("LURE_PROVIDER must be one of groq|gemini")
	}

	for _, key := range splitCSV(os.Getenv("LURE_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("LURE_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("LURE_MAX_BODY_BYTES must be > 0")
	}
	if cfg.MaxConcurrentSessions <= 0 {
		return Config{}, fmt.Errorf("LURE_MAX_CONCURRENT_SESSIONS must be > 0")
	}
	if cfg.TurnTimeout <= 0 {
		return Config{}, fmt.Errorf("LURE_TURN_TIMEOUT must be > 0")
	}
	if cfg.BusyWaitBudget < 0 {
		return Config{}, fmt.Errorf("LURE_BUSY_WAIT_BUDGET must be >= 0")
	}
	if cfg.MaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("LURE_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.ModelThreshold <= 0 || cfg.ModelThreshold >= 1 {
		return Config{}, fmt.Errorf("LURE_MODEL_THRESHOLD must be in (0, 1)")
	}
	if cfg.ConfidenceWeight <= 0 || cfg.ConfidenceWeight > 1 {
		return Config{}, fmt.Errorf("LURE_CONFIDENCE_WEIGHT must be in (0, 1]")
	}
	if cfg.CompleteConfidence <= 0 || cfg.CompleteConfidence > 1 {
		return Config{}, fmt.Errorf("LURE_COMPLETE_CONFIDENCE must be in (0, 1]")
	}
	if cfg.HardMaxMessages <= 0 {
		return Config{}, fmt.Errorf("LURE_HARD_MAX_MESSAGES must be > 0")
	}
	if cfg.DashboardPingInterval <= 0 {
		return Config{}, fmt.Errorf("LURE_DASHBOARD_PING_INTERVAL must be > 0")
	}
	if cfg.DashboardWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("LURE_DASHBOARD_WRITE_TIMEOUT must be > 0")
	}
	if cfg.DashboardClientBuffer <= 0 {
		return Config{}, fmt.Errorf("LURE_DASHBOARD_CLIENT_BUFFER must be > 0")
	}
	if cfg.VoiceMaxAudioFrameBytes <= 0 {
		return Config{}, fmt.Errorf("LURE_VOICE_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if cfg.VoiceSilenceTimeout <= 0 {
		return Config{}, fmt.Errorf("LURE_VOICE_SILENCE_TIMEOUT must be > 0")
	}
	if cfg.VoiceBargeInThreshold <= 0 || cfg.VoiceBargeInThreshold >= 1 {
		return Config{}, fmt.Errorf("LURE_VOICE_BARGE_IN_THRESHOLD must be in (0, 1)")
	}
	if cfg.VoiceWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("LURE_VOICE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.VoiceWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("LURE_VOICE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("LURE_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("LURE_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.LimitMaxConcurrentRequests < 0 {
		return Config{}, fmt.Errorf("LURE_MAX_CONCURRENT_REQUESTS must be >= 0")
	}
	if cfg.LimitMaxDashboardClients < 0 {
		return Config{}, fmt.Errorf("LURE_MAX_DASHBOARD_CLIENTS must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("LURE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("LURE_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("LURE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("LURE_API_KEYS must be set when LURE_AUTH_MODE=required")
	}
	if cfg.Provider == ProviderGroq && strings.TrimSpace(cfg.GroqAPIKey) == "" {
		return Config{}, fmt.Errorf("LURE_GROQ_API_KEY must be set when LURE_PROVIDER=groq")
	}
	if cfg.Provider == ProviderGemini && strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return Config{}, fmt.Errorf("LURE_GEMINI_API_KEY must be set when LURE_PROVIDER=gemini")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
