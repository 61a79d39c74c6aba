// Package ratelimit bounds what a single API principal can do to the
// gateway: engagement turns per second, turns in flight, and held
// dashboard or voice sockets. It is in-memory and single-process; the
// gateway runs as one instance in front of the session store.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync"
	"time"
)

type Config struct {
	RPS   float64
	Burst int

	MaxConcurrentRequests int
	// MaxSockets caps long-lived WebSocket connections (dashboard and
	// voice) per principal, separately from plain requests.
	MaxSockets int

	// Bounds for the principal table so abandoned keys age out.
	MaxEntries int
	EntryTTL   time.Duration
}

type Limiter struct {
	cfg Config

	mu         sync.Mutex
	principals map[string]*principal
}

// principal tracks one API key's spend: a refilling turn budget plus
// in-flight counters for requests and sockets.
type principal struct {
	mu sync.Mutex

	tokens     float64
	lastRefill time.Time

	inFlight int
	sockets  int

	lastSeen time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg:        cfg,
		principals: make(map[string]*principal),
	}
}

func PrincipalKeyFromAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	// 16 bytes => 32 hex chars; enough to avoid collisions in practice.
	return "k_" + hex.EncodeToString(sum[:16])
}

// Permit is a held admission. Release is idempotent.
type Permit struct {
	release func()
}

func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

type Decision struct {
	Allowed    bool
	RetryAfter int
	Permit     *Permit
}

// AcquireRequest admits one engagement turn or stats request. The
// permit must be released when the request finishes.
func (l *Limiter) AcquireRequest(key string, now time.Time) Decision {
	p := l.lookup(key, now)

	if l.cfg.RPS > 0 && l.cfg.Burst > 0 {
		if ok, retryAfter := p.spendToken(now, l.cfg.RPS, l.cfg.Burst); !ok {
			return Decision{Allowed: false, RetryAfter: retryAfter}
		}
	}

	if l.cfg.MaxConcurrentRequests > 0 {
		p.mu.Lock()
		if p.inFlight >= l.cfg.MaxConcurrentRequests {
			p.mu.Unlock()
			return Decision{Allowed: false, RetryAfter: 1}
		}
		p.inFlight++
		p.mu.Unlock()
		return Decision{Allowed: true, Permit: &Permit{release: func() {
			p.mu.Lock()
			p.inFlight--
			p.mu.Unlock()
		}}}
	}

	return Decision{Allowed: true, Permit: &Permit{}}
}

// AcquireSocket admits a long-lived WebSocket connection. The permit is
// held for the life of the socket, not a single request, so a principal
// cannot hoard dashboard slots.
func (l *Limiter) AcquireSocket(key string, now time.Time) Decision {
	p := l.lookup(key, now)

	if l.cfg.MaxSockets > 0 {
		p.mu.Lock()
		if p.sockets >= l.cfg.MaxSockets {
			p.mu.Unlock()
			return Decision{Allowed: false, RetryAfter: 1}
		}
		p.sockets++
		p.mu.Unlock()
		return Decision{Allowed: true, Permit: &Permit{release: func() {
			p.mu.Lock()
			p.sockets--
			p.mu.Unlock()
		}}}
	}

	return Decision{Allowed: true, Permit: &Permit{}}
}

func (l *Limiter) lookup(key string, now time.Time) *principal {
	if key == "" {
		key = "anonymous"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.principals[key]; ok {
		p.mu.Lock()
		p.lastSeen = now
		p.mu.Unlock()
		return p
	}

	if len(l.principals) >= l.cfg.MaxEntries {
		l.evictLocked(now)
	}

	p := &principal{
		tokens:     float64(l.cfg.Burst),
		lastRefill: now,
		lastSeen:   now,
	}
	l.principals[key] = p
	return p
}

// evictLocked drops aged-out principals; if everyone is fresh it drops
// one arbitrary entry so the table stays bounded.
func (l *Limiter) evictLocked(now time.Time) {
	for k, p := range l.principals {
		if now.Sub(p.lastSeen) > l.cfg.EntryTTL {
			delete(l.principals, k)
		}
	}
	if len(l.principals) >= l.cfg.MaxEntries {
		for k := range l.principals {
			delete(l.principals, k)
			break
		}
	}
}

// spendToken takes one token from the refilling budget, reporting how
// long to wait when the budget is empty.
func (p *principal) spendToken(now time.Time, rps float64, burst int) (bool, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	capacity := float64(burst)
	if elapsed := now.Sub(p.lastRefill).Seconds(); elapsed > 0 {
		p.tokens = math.Min(capacity, p.tokens+elapsed*rps)
		p.lastRefill = now
	}
	if p.tokens > capacity {
		p.tokens = capacity
	}

	if p.tokens >= 1.0 {
		p.tokens--
		return true, 0
	}

	retryAfter := int(math.Ceil((1.0 - p.tokens) / rps))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}
