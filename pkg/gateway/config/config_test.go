package config

import (
	"strings"
	"testing"
	"time"
)

var gatewayEnvKeys = []string{
	"LURE_ADDR",
	"LURE_AUTH_MODE",
	"LURE_API_KEYS",
	"LURE_TRUST_PROXY_HEADERS",
	"LURE_CORS_ORIGINS",
	"LURE_MAX_BODY_BYTES",
	"LURE_MAX_CONCURRENT_SESSIONS",
	"LURE_TURN_TIMEOUT",
	"LURE_BUSY_POLICY",
	"LURE_BUSY_WAIT_BUDGET",
	"LURE_MAX_MESSAGE_BYTES",
	"LURE_MODEL_THRESHOLD",
	"LURE_CONFIDENCE_WEIGHT",
	"LURE_COMPLETE_CONFIDENCE",
	"LURE_HARD_MAX_MESSAGES",
	"LURE_PROVIDER",
	"LURE_GROQ_API_KEY",
	"LURE_GROQ_MODEL",
	"LURE_GEMINI_API_KEY",
	"LURE_GEMINI_MODEL",
	"LURE_DATABASE_URL",
	"LURE_DASHBOARD_PING_INTERVAL",
	"LURE_DASHBOARD_WRITE_TIMEOUT",
	"LURE_DASHBOARD_CLIENT_BUFFER",
	"LURE_VOICE_MAX_AUDIO_FRAME_BYTES",
	"LURE_VOICE_SILENCE_TIMEOUT",
	"LURE_VOICE_BARGE_IN_THRESHOLD",
	"LURE_VOICE_WS_PING_INTERVAL",
	"LURE_VOICE_WS_WRITE_TIMEOUT",
	"LURE_DEEPGRAM_API_KEY",
	"LURE_ELEVENLABS_API_KEY",
	"LURE_ELEVENLABS_VOICE",
	"LURE_RATE_LIMIT_RPS",
	"LURE_RATE_LIMIT_BURST",
	"LURE_MAX_CONCURRENT_REQUESTS",
	"LURE_MAX_DASHBOARD_CLIENTS",
	"LURE_READ_HEADER_TIMEOUT",
	"LURE_READ_TIMEOUT",
	"LURE_SHUTDOWN_GRACE_PERIOD",
}

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range gatewayEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("LURE_API_KEYS", "lure_sk_test")
	t.Setenv("LURE_GROQ_API_KEY", "gsk_test")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.AuthMode != AuthModeRequired {
		t.Fatalf("AuthMode = %q, want %q", cfg.AuthMode, AuthModeRequired)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("MaxBodyBytes = %d, want %d", cfg.MaxBodyBytes, int64(1<<20))
	}
	if cfg.MaxConcurrentSessions != 30 {
		t.Fatalf("MaxConcurrentSessions = %d, want 30", cfg.MaxConcurrentSessions)
	}
	if cfg.TurnTimeout != 35*time.Second {
		t.Fatalf("TurnTimeout = %v, want 35s", cfg.TurnTimeout)
	}
	if cfg.BusyPolicy != BusyPolicyWait {
		t.Fatalf("BusyPolicy = %q, want wait", cfg.BusyPolicy)
	}
	if cfg.BusyWaitBudget != 0 {
		t.Fatalf("BusyWaitBudget = %v, want 0", cfg.BusyWaitBudget)
	}
	if cfg.ModelThreshold != 0.65 {
		t.Fatalf("ModelThreshold = %v, want 0.65", cfg.ModelThreshold)
	}
	if cfg.ConfidenceWeight != 0.6 {
		t.Fatalf("ConfidenceWeight = %v, want 0.6", cfg.ConfidenceWeight)
	}
	if cfg.CompleteConfidence != 0.8 {
		t.Fatalf("CompleteConfidence = %v, want 0.8", cfg.CompleteConfidence)
	}
	if cfg.HardMaxMessages != 20 {
		t.Fatalf("HardMaxMessages = %d, want 20", cfg.HardMaxMessages)
	}
	if cfg.Provider != ProviderGroq {
		t.Fatalf("Provider = %q, want groq", cfg.Provider)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.VoiceSilenceTimeout != 5*time.Second {
		t.Fatalf("VoiceSilenceTimeout = %v, want 5s", cfg.VoiceSilenceTimeout)
	}
	if cfg.VoiceBargeInThreshold != 0.05 {
		t.Fatalf("VoiceBargeInThreshold = %v, want 0.05", cfg.VoiceBargeInThreshold)
	}
	if cfg.DashboardPingInterval != 20*time.Second {
		t.Fatalf("DashboardPingInterval = %v, want 20s", cfg.DashboardPingInterval)
	}
	if cfg.DashboardClientBuffer != 32 {
		t.Fatalf("DashboardClientBuffer = %d, want 32", cfg.DashboardClientBuffer)
	}
	if cfg.LimitRPS != 5.0 || cfg.LimitBurst != 10 {
		t.Fatalf("rate limit defaults = %v/%d", cfg.LimitRPS, cfg.LimitBurst)
	}
	if cfg.ShutdownGracePeriod != 30*time.Second {
		t.Fatalf("ShutdownGracePeriod = %v, want 30s", cfg.ShutdownGracePeriod)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("LURE_ADDR", ":9090")
	t.Setenv("LURE_AUTH_MODE", "optional")
	t.Setenv("LURE_API_KEYS", "k1,k2")
	t.Setenv("LURE_TRUST_PROXY_HEADERS", "true")
	t.Setenv("LURE_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("LURE_MAX_BODY_BYTES", "12345")
	t.Setenv("LURE_MAX_CONCURRENT_SESSIONS", "12")
	t.Setenv("LURE_TURN_TIMEOUT", "10s")
	t.Setenv("LURE_BUSY_POLICY", "reject")
	t.Setenv("LURE_BUSY_WAIT_BUDGET", "2s")
	t.Setenv("LURE_MODEL_THRESHOLD", "0.7")
	t.Setenv("LURE_HARD_MAX_MESSAGES", "15")
	t.Setenv("LURE_PROVIDER", "gemini")
	t.Setenv("LURE_GEMINI_API_KEY", "gk_test")
	t.Setenv("LURE_DATABASE_URL", "postgres://lure@db/lure")
	t.Setenv("LURE_VOICE_SILENCE_TIMEOUT", "7s")
	t.Setenv("LURE_RATE_LIMIT_RPS", "3.5")
	t.Setenv("LURE_RATE_LIMIT_BURST", "8")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":9090" || cfg.AuthMode != AuthModeOptional {
		t.Fatalf("Addr/AuthMode = %q/%q", cfg.Addr, cfg.AuthMode)
	}
	if cfg.MaxBodyBytes != 12345 {
		t.Fatalf("MaxBodyBytes = %d, want 12345", cfg.MaxBodyBytes)
	}
	if cfg.MaxConcurrentSessions != 12 || cfg.TurnTimeout != 10*time.Second {
		t.Fatalf("engine limits = %d/%v", cfg.MaxConcurrentSessions, cfg.TurnTimeout)
	}
	if cfg.BusyPolicy != BusyPolicyReject || cfg.BusyWaitBudget != 2*time.Second {
		t.Fatalf("busy policy = %q/%v", cfg.BusyPolicy, cfg.BusyWaitBudget)
	}
	if cfg.ModelThreshold != 0.7 || cfg.HardMaxMessages != 15 {
		t.Fatalf("classifier/timeline = %v/%d", cfg.ModelThreshold, cfg.HardMaxMessages)
	}
	if cfg.Provider != ProviderGemini || cfg.GeminiAPIKey != "gk_test" {
		t.Fatalf("provider = %q/%q", cfg.Provider, cfg.GeminiAPIKey)
	}
	if cfg.DatabaseURL != "postgres://lure@db/lure" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.VoiceSilenceTimeout != 7*time.Second {
		t.Fatalf("VoiceSilenceTimeout = %v, want 7s", cfg.VoiceSilenceTimeout)
	}
	if cfg.LimitRPS != 3.5 || cfg.LimitBurst != 8 {
		t.Fatalf("rate limits = %v/%d", cfg.LimitRPS, cfg.LimitBurst)
	}
	if len(cfg.APIKeys) != 2 {
		t.Fatalf("APIKeys len=%d, want 2", len(cfg.APIKeys))
	}
	if _, ok := cfg.APIKeys["k1"]; !ok {
		t.Fatalf("expected API key k1")
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("CORSAllowedOrigins len=%d, want 2", len(cfg.CORSAllowedOrigins))
	}
	if !cfg.TrustProxyHeaders {
		t.Fatalf("TrustProxyHeaders = false, want true")
	}
}

func TestLoadFromEnvRequiredAuthNeedsAPIKeys(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("LURE_AUTH_MODE", "required")
	t.Setenv("LURE_GROQ_API_KEY", "gsk_test")

	_, err := LoadFromEnv()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "LURE_API_KEYS") {
		t.Fatalf("error = %v, expected LURE_API_KEYS in message", err)
	}
}

func TestLoadFromEnvProviderNeedsKey(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("LURE_AUTH_MODE", "disabled")
	t.Setenv("LURE_PROVIDER", "gemini")

	_, err := LoadFromEnv()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "LURE_GEMINI_API_KEY") {
		t.Fatalf("error = %v, expected LURE_GEMINI_API_KEY in message", err)
	}
}

func TestLoadFromEnvInvalidBounds(t *testing.T) {
	cases := []struct {
		name      string
		env       map[string]string
		errSubstr string
	}{
		{
			name: "invalid busy policy",
			env: map[string]string{
				"LURE_BUSY_POLICY": "queue",
			},
			errSubstr: "LURE_BUSY_POLICY",
		},
		{
			name: "invalid provider",
			env: map[string]string{
				"LURE_PROVIDER": "openai",
			},
			errSubstr: "LURE_PROVIDER",
		},
		{
			name: "invalid turn timeout",
			env: map[string]string{
				"LURE_TURN_TIMEOUT": "0s",
			},
			errSubstr: "LURE_TURN_TIMEOUT",
		},
		{
			name: "invalid model threshold",
			env: map[string]string{
				"LURE_MODEL_THRESHOLD": "1.5",
			},
			errSubstr: "LURE_MODEL_THRESHOLD",
		},
		{
			name: "invalid barge-in threshold",
			env: map[string]string{
				"LURE_VOICE_BARGE_IN_THRESHOLD": "0",
			},
			errSubstr: "LURE_VOICE_BARGE_IN_THRESHOLD",
		},
		{
			name: "invalid max sessions",
			env: map[string]string{
				"LURE_MAX_CONCURRENT_SESSIONS": "0",
			},
			errSubstr: "LURE_MAX_CONCURRENT_SESSIONS",
		},
		{
			name: "invalid shutdown grace period",
			env: map[string]string{
				"LURE_SHUTDOWN_GRACE_PERIOD": "0s",
			},
			errSubstr: "LURE_SHUTDOWN_GRACE_PERIOD",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearGatewayEnv(t)
			t.Setenv("LURE_AUTH_MODE", "disabled")
			t.Setenv("LURE_GROQ_API_KEY", "gsk_test")
			for key, value := range tc.env {
				t.Setenv(key, value)
			}
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.errSubstr) {
				t.Fatalf("error = %v, expected substring %q", err, tc.errSubstr)
			}
		})
	}
}
