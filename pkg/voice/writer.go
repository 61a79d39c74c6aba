package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// outboundFrame is one item queued for the caller leg: either a JSON
// control event or a chunk of decoy audio tagged with its utterance.
type outboundFrame struct {
	textPayload  []byte
	audioPayload []byte
	utteranceID  string
}

type wsConn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// WriterConfig tunes the outbound pump.
type WriterConfig struct {
	PingInterval time.Duration
	WriteTimeout time.Duration

	// Base64Audio sends audio as {"type":"audio","data":...} text frames
	// instead of binary frames, for clients that cannot handle binary
	// WebSocket messages.
	Base64Audio bool
}

// OutboundWriter is the single goroutine allowed to write to the caller
// WebSocket. Control events preempt audio, and audio belonging to a
// barged-in utterance is dropped instead of written.
type OutboundWriter struct {
	ws         wsConn
	ctx        context.Context
	cfg        WriterConfig
	priority   <-chan outboundFrame
	normal     <-chan outboundFrame
	isCanceled func(string) bool
}

// NewOutboundWriter builds the pump for one call.
func NewOutboundWriter(ctx context.Context, ws wsConn, call *Call, cfg WriterConfig) *OutboundWriter {
	return &OutboundWriter{
		ws:         ws,
		ctx:        ctx,
		cfg:        cfg,
		priority:   call.priority,
		normal:     call.normal,
		isCanceled: call.IsCanceled,
	}
}

// Run pumps frames until the context ends or both channels close.
func (w *OutboundWriter) Run() error {
	if w == nil || w.ws == nil {
		return nil
	}

	pingInterval := w.cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	writeTimeout := w.cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	var pendingAudio *outboundFrame

	for {
		if w.ctx != nil {
			select {
			case <-w.ctx.Done():
				_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
				_ = w.ws.Close()
				return nil
			default:
			}
		}

		// Control events always go out before queued audio.
		select {
		case frame, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			if err := w.writeFrame(frame, writeTimeout); err != nil {
				return err
			}
			continue
		default:
		}

		// A newly-queued event may preempt a pending audio frame.
		if pendingAudio != nil {
			select {
			case frame, ok := <-w.priority:
				if !ok {
					w.priority = nil
					continue
				}
				if err := w.writeFrame(frame, writeTimeout); err != nil {
					return err
				}
				continue
			default:
			}
			if err := w.writeFrame(*pendingAudio, writeTimeout); err != nil {
				return err
			}
			pendingAudio = nil
			continue
		}

		if w.priority == nil && w.normal == nil {
			return nil
		}

		select {
		case <-pingTicker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return err
			}
		case frame, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			if err := w.writeFrame(frame, writeTimeout); err != nil {
				return err
			}
		case frame, ok := <-w.normal:
			if !ok {
				w.normal = nil
				continue
			}
			pendingAudio = &frame
		}
	}
}

func (w *OutboundWriter) writeFrame(frame outboundFrame, writeTimeout time.Duration) error {
	if frame.utteranceID != "" && w.isCanceled != nil && w.isCanceled(frame.utteranceID) {
		return nil
	}

	deadline := time.Now().Add(writeTimeout)

	if len(frame.textPayload) > 0 {
		if err := w.ws.SetWriteDeadline(deadline); err != nil {
			return err
		}
		return w.ws.WriteMessage(websocket.TextMessage, frame.textPayload)
	}
	if len(frame.audioPayload) > 0 {
		if err := w.ws.SetWriteDeadline(deadline); err != nil {
			return err
		}
		if w.cfg.Base64Audio {
			payload, err := json.Marshal(audioEnvelope{
				Type: "audio",
				Data: base64.StdEncoding.EncodeToString(frame.audioPayload),
			})
			if err != nil {
				return err
			}
			return w.ws.WriteMessage(websocket.TextMessage, payload)
		}
		return w.ws.WriteMessage(websocket.BinaryMessage, frame.audioPayload)
	}

	return nil
}

type audioEnvelope struct {
	Type string `json:"type"`
	Data string `json:"data"`
}
