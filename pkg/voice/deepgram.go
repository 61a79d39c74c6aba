package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const deepgramDefaultWSBase = "wss://api.deepgram.com/v1/listen"

// DeepgramTranscriber implements Transcriber against Deepgram's live API.
type DeepgramTranscriber struct {
	apiKey    string
	wsBaseURL string
}

// NewDeepgram creates a Deepgram live transcriber.
func NewDeepgram(apiKey string) *DeepgramTranscriber {
	return &DeepgramTranscriber{
		apiKey:    apiKey,
		wsBaseURL: deepgramDefaultWSBase,
	}
}

// WithWSBaseURL overrides the WebSocket endpoint. Used in tests.
func (d *DeepgramTranscriber) WithWSBaseURL(base string) *DeepgramTranscriber {
	if base != "" {
		d.wsBaseURL = base
	}
	return d
}

// Name returns the provider identifier.
func (d *DeepgramTranscriber) Name() string {
	return "deepgram"
}

// NewStream opens a live recognition session.
func (d *DeepgramTranscriber) NewStream(ctx context.Context, opts TranscribeOptions) (*TranscriptStream, error) {
	u, err := url.Parse(d.wsBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket URL: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = "nova-2"
	}
	language := opts.Language
	if language == "" {
		language = "en"
	}
	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	endpointing := opts.EndpointingMs
	if endpointing == 0 {
		endpointing = 500
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("language", language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("endpointing", fmt.Sprintf("%d", endpointing))
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket connect (status %d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	stream := newTranscriptStream()
	stream.sendFunc = func(frame []byte) error {
		return conn.WriteMessage(websocket.BinaryMessage, frame)
	}
	stream.finalizeFunc = func() error {
		return conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Finalize"}`))
	}
	stream.closeFunc = func() error {
		stream.writeMu.Lock()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		stream.writeMu.Unlock()
		return conn.Close()
	}

	go readDeepgram(conn, stream)
	go keepAliveDeepgram(ctx, conn, stream)

	return stream, nil
}

func readDeepgram(conn *websocket.Conn, stream *TranscriptStream) {
	defer stream.finish()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg deepgramMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "Results":
			text := ""
			if len(msg.Channel.Alternatives) > 0 {
				text = msg.Channel.Alternatives[0].Transcript
			}
			if text == "" && !msg.SpeechFinal {
				continue
			}
			if !stream.push(TranscriptDelta{
				Text:         text,
				IsFinal:      msg.IsFinal,
				UtteranceEnd: msg.SpeechFinal,
			}) {
				return
			}

		case "UtteranceEnd":
			if !stream.push(TranscriptDelta{UtteranceEnd: true}) {
				return
			}

		case "Metadata":
			continue
		}
	}
}

// keepAliveDeepgram pings the session so Deepgram does not drop it
// during long caller silences.
func keepAliveDeepgram(ctx context.Context, conn *websocket.Conn, stream *TranscriptStream) {
	ticker := time.NewTicker(8 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stream.done:
			return
		case <-ticker.C:
			if stream.closed.Load() {
				return
			}
			stream.writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
			stream.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

type deepgramMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}
