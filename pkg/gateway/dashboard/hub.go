// Package dashboard fans committed turn events out to monitoring
// WebSocket clients. Delivery is best effort: a client that cannot keep
// up is dropped rather than allowed to stall the engagement path.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lurelab/lure/pkg/detect"
	"github.com/lurelab/lure/pkg/engage"
	"github.com/lurelab/lure/pkg/extract"
)

const (
	EventNewMessage         = "new_message"
	EventScamDetected       = "scam_detected"
	EventIntelligenceUpdate = "intelligence_update"
	EventStatsUpdate        = "stats_update"
)

// Event is the envelope every dashboard client receives.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
	Data      any       `json:"data,omitempty"`
}

type messagePayload struct {
	Channel    engage.Channel       `json:"channel"`
	Text       string               `json:"text"`
	Reply      string               `json:"reply"`
	Label      string               `json:"label"`
	ScamType   string               `json:"scam_type,omitempty"`
	Confidence float64              `json:"confidence"`
	State      engage.SessionStatus `json:"engagement_state"`
	EndReason  string               `json:"end_reason,omitempty"`
}

type scamPayload struct {
	ScamType   string  `json:"scam_type,omitempty"`
	Confidence float64 `json:"confidence"`
	Messages   int     `json:"messages"`
}

type intelPayload struct {
	NewFindings   []extract.Finding `json:"new_findings"`
	TotalFindings int               `json:"total_findings"`
}

// StatsSource supplies the payload for stats_update events. Set by the
// server once the store and controller are wired.
type StatsSource func() any

type Config struct {
	ClientBuffer int
	PingInterval time.Duration
	WriteTimeout time.Duration
}

type Hub struct {
	cfg Config
	log *slog.Logger

	mu        sync.Mutex
	clients   map[*client]struct{}
	announced map[string]struct{}
	stats     StatsSource
}

type client struct {
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

func New(cfg Config, logger *slog.Logger) *Hub {
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 32
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:       cfg,
		log:       logger,
		clients:   make(map[*client]struct{}),
		announced: make(map[string]struct{}),
	}
}

func (h *Hub) SetStatsSource(fn StatsSource) {
	h.mu.Lock()
	h.stats = fn
	h.mu.Unlock()
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// TurnCommitted implements the engagement pipeline's notifier contract.
// It never blocks: events are fanned out with non-blocking sends and
// slow clients are dropped.
func (h *Hub) TurnCommitted(ev engage.TurnEvent) {
	if ev.Result == nil || ev.Session == nil {
		return
	}
	now := time.Now().UTC()
	meta := ev.Result.Meta

	h.Broadcast(Event{
		Type:      EventNewMessage,
		SessionID: ev.Result.SessionID,
		At:        now,
		Data: messagePayload{
			Channel:    ev.Inbound.Channel,
			Text:       ev.Inbound.Text,
			Reply:      ev.Result.Reply,
			Label:      meta.Label,
			ScamType:   meta.ScamType,
			Confidence: meta.Confidence,
			State:      ev.Result.State,
			EndReason:  meta.EndReason,
		},
	})

	if meta.Label == detect.LabelScam && h.firstScamAnnouncement(ev.Result.SessionID) {
		h.Broadcast(Event{
			Type:      EventScamDetected,
			SessionID: ev.Result.SessionID,
			At:        now,
			Data: scamPayload{
				ScamType:   meta.ScamType,
				Confidence: meta.Confidence,
				Messages:   ev.Session.CallerMessages(),
			},
		})
	}

	if len(meta.NewFindings) > 0 {
		h.Broadcast(Event{
			Type:      EventIntelligenceUpdate,
			SessionID: ev.Result.SessionID,
			At:        now,
			Data: intelPayload{
				NewFindings:   meta.NewFindings,
				TotalFindings: meta.TotalFindings,
			},
		})
	}

	if ev.Result.State == engage.StatusCompleted {
		h.forgetAnnouncement(ev.Result.SessionID)
	}

	h.mu.Lock()
	stats := h.stats
	h.mu.Unlock()
	if stats != nil {
		h.Broadcast(Event{Type: EventStatsUpdate, At: now, Data: stats()})
	}
}

func (h *Hub) firstScamAnnouncement(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.announced[sessionID]; ok {
		return false
	}
	h.announced[sessionID] = struct{}{}
	return true
}

func (h *Hub) forgetAnnouncement(sessionID string) {
	h.mu.Lock()
	delete(h.announced, sessionID)
	h.mu.Unlock()
}

// Broadcast serializes the event once and offers it to every connected
// client. Clients whose buffers are full are disconnected.
func (h *Hub) Broadcast(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("dashboard event marshal failed", "error", err, "type", ev.Type)
		return
	}

	h.mu.Lock()
	var dropped []*client
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			dropped = append(dropped, c)
			delete(h.clients, c)
		}
	}
	h.mu.Unlock()

	for _, c := range dropped {
		c.close()
		h.log.Warn("dashboard client dropped", "reason", "slow_consumer")
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

type wsConn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (int, []byte, error)
	Close() error
}

// ServeClient pumps events to one dashboard socket until the context is
// canceled, the peer disconnects, or the client falls behind.
func (h *Hub) ServeClient(ctx context.Context, ws wsConn) error {
	c := &client{
		send: make(chan []byte, h.cfg.ClientBuffer),
		done: make(chan struct{}),
	}
	h.register(c)
	defer h.unregister(c)
	defer ws.Close()

	// Reader exists only to observe peer disconnect and service control
	// frames. Inbound dashboard messages are ignored.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			_ = ws.SetWriteDeadline(deadline)
			_ = ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return ctx.Err()
		case <-c.done:
			return nil
		case <-readErr:
			return nil
		case <-ping.C:
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case payload := <-c.send:
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return err
			}
		}
	}
}
