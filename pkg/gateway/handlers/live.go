package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lurelab/lure/pkg/core"
	"github.com/lurelab/lure/pkg/gateway/config"
	"github.com/lurelab/lure/pkg/gateway/lifecycle"
	"github.com/lurelab/lure/pkg/gateway/live"
	"github.com/lurelab/lure/pkg/gateway/mw"
	"github.com/lurelab/lure/pkg/gateway/ratelimit"
	"github.com/lurelab/lure/pkg/gateway/track"
	"github.com/lurelab/lure/pkg/persona"
	"github.com/lurelab/lure/pkg/voice"
)

const helloTimeout = 10 * time.Second

// LiveHandler serves GET /v1/live: one WebSocket connection per voice
// call. Caller audio flows in, decoy audio and control events flow out.
type LiveHandler struct {
	Config    config.Config
	Engager   voice.Engager
	STT       voice.Transcriber
	TTS       voice.Synthesizer
	Profile   persona.Profile
	Tracker   *track.Tracker
	Limiter   *ratelimit.Limiter
	Lifecycle *lifecycle.Lifecycle
	Logger    *slog.Logger
}

func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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
	if h.STT == nil || h.TTS == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorEnvelope{Error: &core.Error{
			Type:      core.ErrAPI,
			Message:   "voice providers are not configured",
			RequestID: reqID,
		}})
		return
	}

	dec := h.Limiter.AcquireSocket(principalKey(r), time.Now())
	if !dec.Allowed {
		writeError(w, reqID, core.NewRateLimitError("too many concurrent connections", dec.RetryAfter))
		return
	}
	defer dec.Permit.Release()

	upgrader := newUpgrader(h.Config)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("voice upgrade failed", "error", err, "request_id", reqID)
		return
	}
	defer conn.Close()

	maxFrame := h.Config.VoiceMaxAudioFrameBytes
	if maxFrame <= 0 {
		maxFrame = 8192
	}
	// Base64 JSON frames carry ~4/3 overhead plus the envelope.
	conn.SetReadLimit(int64(maxFrame)*2 + 512)

	hello, ok := h.awaitHello(conn, logger, reqID)
	if !ok {
		return
	}

	sessionID := hello.SessionID
	if sessionID == "" {
		sessionID = newCallID()
	}

	callCfg := voice.CallConfig{
		Audio: voice.AudioConfig{
			SampleRate:    hello.AudioIn.SampleRateHz,
			Channels:      1,
			BitsPerSample: 16,
		},
		BargeInThreshold: h.Config.VoiceBargeInThreshold,
		SilenceTimeout:   h.Config.VoiceSilenceTimeout,
	}
	call := voice.NewCall(sessionID, callCfg, voice.CallDeps{
		Engager: h.Engager,
		STT:     h.STT,
		TTS:     h.TTS,
		Profile: h.Profile,
		Speak: voice.SpeakOptions{
			Voice:      h.Config.ElevenLabsVoice,
			SampleRate: hello.AudioIn.SampleRateHz,
		},
		Logger: logger,
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	unregister := h.Tracker.Register("call:"+sessionID, track.Handle{
		Cancel: cancel,
		Warn: func(code, message string) error {
			deadline := time.Now().Add(h.Config.VoiceWSWriteTimeout)
			return conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseServiceRestart, message), deadline)
		},
	})
	defer unregister()

	ack := live.ServerHello{
		Type:            "hello_ack",
		ProtocolVersion: live.ProtocolVersion1,
		SessionID:       sessionID,
		AudioOut:        live.AudioFormat{Encoding: "pcm_s16le", SampleRateHz: hello.AudioIn.SampleRateHz, Channels: 1},
		AudioTransport:  hello.AudioTransport,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(h.Config.VoiceWSWriteTimeout))
	if err := conn.WriteJSON(ack); err != nil {
		logger.Warn("voice hello ack failed", "error", err, "session_id", sessionID)
		return
	}
	_ = conn.SetWriteDeadline(time.Time{})

	writer := voice.NewOutboundWriter(ctx, conn, call, voice.WriterConfig{
		PingInterval: h.Config.VoiceWSPingInterval,
		WriteTimeout: h.Config.VoiceWSWriteTimeout,
		Base64Audio:  hello.AudioTransport == live.AudioTransportBase64JSON,
	})

	callDone := make(chan error, 1)
	go func() { callDone <- call.Run(ctx) }()

	// The writer exits once the call closes its outbound channels and the
	// queue is flushed; closing the conn then unblocks the read loop.
	go func() {
		if err := writer.Run(); err != nil {
			logger.Debug("voice writer stopped", "error", err, "session_id", sessionID)
		}
		_ = conn.Close()
	}()

	h.readLoop(conn, call, cancel, logger, sessionID)

	cancel()
	if err := <-callDone; err != nil && err != context.Canceled {
		logger.Warn("voice call ended with error", "error", err, "session_id", sessionID)
	}
	logger.Info("voice call closed", "session_id", sessionID, "request_id", reqID)
}

func (h *LiveHandler) awaitHello(conn *websocket.Conn, logger *slog.Logger, reqID string) (live.ClientHello, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	defer conn.SetReadDeadline(time.Time{})

	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		logger.Warn("voice hello not received", "error", err, "request_id", reqID)
		return live.ClientHello{}, false
	}
	if msgType != websocket.TextMessage {
		h.closeWith(conn, websocket.ClosePolicyViolation, "first frame must be hello")
		return live.ClientHello{}, false
	}

	msg, decErr := live.DecodeClientMessage(raw)
	if decErr != nil {
		h.closeWith(conn, websocket.ClosePolicyViolation, decErr.Error())
		return live.ClientHello{}, false
	}
	hello, ok := msg.(live.ClientHello)
	if !ok {
		h.closeWith(conn, websocket.ClosePolicyViolation, "first frame must be hello")
		return live.ClientHello{}, false
	}
	return hello, true
}

func (h *LiveHandler) readLoop(conn *websocket.Conn, call *voice.Call, cancel context.CancelFunc, logger *slog.Logger, sessionID string) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			call.PushAudio(data)
		case websocket.TextMessage:
			msg, decErr := live.DecodeClientMessage(data)
			if decErr != nil {
				logger.Debug("voice frame rejected", "error", decErr, "session_id", sessionID)
				continue
			}
			switch m := msg.(type) {
			case live.ClientAudio:
				call.PushAudio(m.PCM)
			case live.ClientBye:
				cancel()
				return
			}
		}
	}
}

func (h *LiveHandler) closeWith(conn *websocket.Conn, code int, message string) {
	deadline := time.Now().Add(h.Config.VoiceWSWriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, message), deadline)
}
