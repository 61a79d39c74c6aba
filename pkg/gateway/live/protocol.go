// Package live defines the wire protocol for the voice call WebSocket.
// The client opens with a hello frame, streams caller audio either as
// binary frames or base64 JSON frames, and receives control events and
// decoy audio back.
package live

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ProtocolVersion1 = "1"

	AudioTransportBinary     = "binary"
	AudioTransportBase64JSON = "base64_json"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes the caller leg's PCM shape.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// ClientHello is the first frame on a voice socket.
type ClientHello struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version,omitempty"`
	SessionID       string      `json:"session_id,omitempty"`
	From            string      `json:"from,omitempty"`
	AudioIn         AudioFormat `json:"audio_in"`
	AudioTransport  string      `json:"audio_transport,omitempty"`
}

// ClientAudio carries one chunk of caller audio on the base64 transport.
type ClientAudio struct {
	Type string `json:"type"`
	Data string `json:"data"`

	// PCM is the decoded payload, filled during decoding.
	PCM []byte `json:"-"`
}

// ClientBye asks the server to end the call.
type ClientBye struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// ServerHello acknowledges the call and reports the negotiated shape.
type ServerHello struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	AudioOut        AudioFormat `json:"audio_out"`
	AudioTransport  string      `json:"audio_transport"`
}

type typeProbe struct {
	Type string `json:"type"`
}

// DecodeClientMessage parses one text frame from the caller leg.
func DecodeClientMessage(raw []byte) (any, *DecodeError) {
	var probe typeProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, badRequest("invalid JSON frame", "")
	}

	switch probe.Type {
	case "hello":
		var hello ClientHello
		if err := json.Unmarshal(raw, &hello); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := validateHello(&hello); err != nil {
			return nil, err
		}
		return hello, nil
	case "audio":
		var audio ClientAudio
		if err := json.Unmarshal(raw, &audio); err != nil {
			return nil, badRequest("invalid audio frame", "")
		}
		if audio.Data == "" {
			return nil, badRequest("audio data is required", "data")
		}
		pcm, err := base64.StdEncoding.DecodeString(audio.Data)
		if err != nil {
			return nil, badRequest("audio data must be base64", "data")
		}
		audio.PCM = pcm
		return audio, nil
	case "bye":
		var bye ClientBye
		if err := json.Unmarshal(raw, &bye); err != nil {
			return nil, badRequest("invalid bye frame", "")
		}
		return bye, nil
	case "":
		return nil, badRequest("frame type is required", "type")
	default:
		return nil, unsupported("unknown frame type", "type")
	}
}

func validateHello(hello *ClientHello) *DecodeError {
	if hello.ProtocolVersion == "" {
		hello.ProtocolVersion = ProtocolVersion1
	}
	if hello.ProtocolVersion != ProtocolVersion1 {
		return unsupported("unsupported protocol version", "protocol_version")
	}

	switch hello.AudioTransport {
	case "":
		hello.AudioTransport = AudioTransportBinary
	case AudioTransportBinary, AudioTransportBase64JSON:
	default:
		return unsupported("unsupported audio transport", "audio_transport")
	}

	in := &hello.AudioIn
	if in.Encoding == "" {
		in.Encoding = "pcm_s16le"
	}
	if in.Encoding != "pcm_s16le" {
		return unsupported("only pcm_s16le audio is supported", "audio_in.encoding")
	}
	if in.SampleRateHz == 0 {
		in.SampleRateHz = 16000
	}
	if in.SampleRateHz < 8000 || in.SampleRateHz > 48000 {
		return badRequest("sample rate must be between 8000 and 48000", "audio_in.sample_rate_hz")
	}
	if in.Channels == 0 {
		in.Channels = 1
	}
	if in.Channels != 1 {
		return unsupported("only mono audio is supported", "audio_in.channels")
	}
	return nil
}
