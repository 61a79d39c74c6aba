package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lurelab/lure/pkg/gateway/config"
	"github.com/lurelab/lure/pkg/gateway/lifecycle"
)

func readyConfig() config.Config {
	return config.Config{
		AuthMode:              config.AuthModeOptional,
		APIKeys:               map[string]struct{}{},
		Provider:              config.ProviderGroq,
		GroqAPIKey:            "gsk_test",
		MaxBodyBytes:          1,
		MaxConcurrentSessions: 1,
		TurnTimeout:           time.Second,
		HardMaxMessages:       1,
		ReadHeaderTimeout:     time.Second,
		ReadTimeout:           time.Second,
	}
}

func TestHealthHandler_OK(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Body.String() != "ok\n" {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestReadyHandler_RequiredAuthEmptyKeys_NotReady(t *testing.T) {
	cfg := readyConfig()
	cfg.AuthMode = config.AuthModeRequired

	h := ReadyHandler{Config: cfg, Lifecycle: &lifecycle.Lifecycle{}}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ok, _ := resp["ok"].(bool); ok {
		t.Fatalf("expected ok=false, got ok=true")
	}
}

func TestReadyHandler_OptionalAuth_Ready(t *testing.T) {
	h := ReadyHandler{Config: readyConfig(), Lifecycle: &lifecycle.Lifecycle{}}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestReadyHandler_Draining_NotReady(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)
	h := ReadyHandler{Config: readyConfig(), Lifecycle: lc}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if draining, _ := resp["draining"].(bool); !draining {
		t.Fatalf("expected draining=true")
	}
}

func TestReadyHandler_MissingProviderKey_NotReady(t *testing.T) {
	cfg := readyConfig()
	cfg.GroqAPIKey = ""

	h := ReadyHandler{Config: cfg, Lifecycle: &lifecycle.Lifecycle{}}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}
