package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const elevenLabsDefaultWSBase = "wss://api.elevenlabs.io/v1/text-to-speech/{voice_id}/stream-input"

// ElevenLabsSynthesizer implements Synthesizer against the ElevenLabs
// stream-input WebSocket API.
type ElevenLabsSynthesizer struct {
	apiKey    string
	wsBaseURL string
}

// NewElevenLabs creates an ElevenLabs streaming synthesizer.
func NewElevenLabs(apiKey string) *ElevenLabsSynthesizer {
	return &ElevenLabsSynthesizer{
		apiKey:    strings.TrimSpace(apiKey),
		wsBaseURL: elevenLabsDefaultWSBase,
	}
}

// WithWSBaseURL overrides the WebSocket endpoint. Used in tests.
func (e *ElevenLabsSynthesizer) WithWSBaseURL(base string) *ElevenLabsSynthesizer {
	base = strings.TrimSpace(base)
	if base != "" {
		e.wsBaseURL = base
	}
	return e
}

// Name returns the provider identifier.
func (e *ElevenLabsSynthesizer) Name() string {
	return "elevenlabs"
}

// NewSpeechStream opens an incremental synthesis session.
func (e *ElevenLabsSynthesizer) NewSpeechStream(ctx context.Context, opts SpeakOptions) (*SpeechStream, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("elevenlabs api key is required")
	}
	voiceID := strings.TrimSpace(opts.Voice)
	if voiceID == "" {
		return nil, fmt.Errorf("voice id is required")
	}
	wsURL, err := buildElevenLabsWSURL(e.wsBaseURL, voiceID, opts.SampleRate)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("xi-api-key", e.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, err
	}

	stream := newSpeechStream()
	connDone := make(chan struct{})
	var closeOnce sync.Once
	closeConn := func() error {
		var closeErr error
		closeOnce.Do(func() {
			close(connDone)
			closeErr = conn.Close()
		})
		return closeErr
	}

	// The API requires an initial space to open the context.
	if err := conn.WriteJSON(map[string]any{
		"text":     " ",
		"voice_id": voiceID,
	}); err != nil {
		_ = closeConn()
		return nil, err
	}

	stream.sendFunc = func(text string, flush bool) error {
		text = strings.TrimSpace(text)
		if text != "" {
			text += " "
		}
		payload := map[string]any{"text": text}
		if flush {
			payload["flush"] = true
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteJSON(payload)
	}
	stream.closeFunc = closeConn

	go func() {
		defer stream.finishAudio()
		defer stream.Close()
		for {
			select {
			case <-ctx.Done():
				stream.setError(ctx.Err())
				return
			case <-connDone:
				return
			default:
			}
			_, data, err := conn.ReadMessage()
			if err != nil {
				stream.setError(err)
				return
			}
			var msg elevenLabsMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Audio != "" {
				audio, err := base64.StdEncoding.DecodeString(msg.Audio)
				if err == nil && len(audio) > 0 {
					if !stream.pushAudio(audio) {
						return
					}
				}
			}
			if msg.IsFinal {
				return
			}
		}
	}()

	return stream, nil
}

type elevenLabsMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
}

func buildElevenLabsWSURL(base, voiceID string, sampleRate int) (string, error) {
	if strings.TrimSpace(base) == "" {
		base = elevenLabsDefaultWSBase
	}
	base = strings.ReplaceAll(base, "{voice_id}", url.PathEscape(voiceID))
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid elevenlabs ws url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input"
	}
	q := u.Query()
	if q.Get("model_id") == "" {
		q.Set("model_id", "eleven_flash_v2_5")
	}
	if q.Get("output_format") == "" {
		format := "pcm_16000"
		if sampleRate == 24000 {
			format = "pcm_24000"
		}
		q.Set("output_format", format)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
