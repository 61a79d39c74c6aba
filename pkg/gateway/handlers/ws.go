package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lurelab/lure/pkg/gateway/auth"
	"github.com/lurelab/lure/pkg/gateway/config"
	"github.com/lurelab/lure/pkg/gateway/ratelimit"
)

func newUpgrader(cfg config.Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := cfg.CORSAllowedOrigins[origin]
			return ok
		},
	}
}

func principalKey(r *http.Request) string {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		return ratelimit.PrincipalKeyFromAPIKey(p.APIKey)
	}
	return "anonymous"
}

func newCallID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "call_" + hex.EncodeToString([]byte(time.Now().Format("150405.000000000")))
	}
	return "call_" + hex.EncodeToString(b)
}
