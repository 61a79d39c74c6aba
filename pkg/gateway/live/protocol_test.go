package live

import (
	"encoding/base64"
	"testing"
)

func TestDecodeClientMessage_Hello(t *testing.T) {
	raw := []byte(`{
		"type":"hello",
		"protocol_version":"1",
		"session_id":"call-1",
		"audio_in":{"encoding":"pcm_s16le","sample_rate_hz":16000,"channels":1},
		"audio_transport":"binary"
	}`)

	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	hello, ok := msg.(ClientHello)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientHello", msg)
	}
	if hello.SessionID != "call-1" {
		t.Fatalf("session_id=%q", hello.SessionID)
	}
	if hello.AudioTransport != AudioTransportBinary {
		t.Fatalf("audio_transport=%q", hello.AudioTransport)
	}
}

func TestDecodeClientMessage_HelloDefaults(t *testing.T) {
	raw := []byte(`{"type":"hello"}`)

	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	hello := msg.(ClientHello)
	if hello.ProtocolVersion != ProtocolVersion1 {
		t.Fatalf("protocol_version=%q", hello.ProtocolVersion)
	}
	if hello.AudioIn.Encoding != "pcm_s16le" || hello.AudioIn.SampleRateHz != 16000 || hello.AudioIn.Channels != 1 {
		t.Fatalf("audio_in=%+v", hello.AudioIn)
	}
	if hello.AudioTransport != AudioTransportBinary {
		t.Fatalf("audio_transport=%q", hello.AudioTransport)
	}
}

func TestDecodeClientMessage_HelloRejectsUnsupported(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		param string
	}{
		{
			name:  "bad encoding",
			raw:   `{"type":"hello","audio_in":{"encoding":"opus"}}`,
			param: "audio_in.encoding",
		},
		{
			name:  "stereo",
			raw:   `{"type":"hello","audio_in":{"channels":2}}`,
			param: "audio_in.channels",
		},
		{
			name:  "bad sample rate",
			raw:   `{"type":"hello","audio_in":{"sample_rate_hz":96000}}`,
			param: "audio_in.sample_rate_hz",
		},
		{
			name:  "bad transport",
			raw:   `{"type":"hello","audio_transport":"msgpack"}`,
			param: "audio_transport",
		},
		{
			name:  "bad version",
			raw:   `{"type":"hello","protocol_version":"2"}`,
			param: "protocol_version",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeClientMessage([]byte(tc.raw))
			if err == nil {
				t.Fatal("expected decode error")
			}
			if err.Param != tc.param {
				t.Fatalf("param=%q, want %q", err.Param, tc.param)
			}
		})
	}
}

func TestDecodeClientMessage_Audio(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	raw := []byte(`{"type":"audio","data":"` + base64.StdEncoding.EncodeToString(pcm) + `"}`)

	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	audio, ok := msg.(ClientAudio)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientAudio", msg)
	}
	if len(audio.PCM) != 4 || audio.PCM[0] != 0x01 {
		t.Fatalf("pcm=%x", audio.PCM)
	}
}

func TestDecodeClientMessage_AudioRejectsBadBase64(t *testing.T) {
	_, err := DecodeClientMessage([]byte(`{"type":"audio","data":"not base64!!"}`))
	if err == nil || err.Param != "data" {
		t.Fatalf("err=%v", err)
	}
}

func TestDecodeClientMessage_Bye(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"bye","reason":"done"}`))
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	bye, ok := msg.(ClientBye)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientBye", msg)
	}
	if bye.Reason != "done" {
		t.Fatalf("reason=%q", bye.Reason)
	}
}

func TestDecodeClientMessage_UnknownType(t *testing.T) {
	_, err := DecodeClientMessage([]byte(`{"type":"dance"}`))
	if err == nil || err.Code != "unsupported" {
		t.Fatalf("err=%v", err)
	}
}

func TestDecodeClientMessage_MissingType(t *testing.T) {
	_, err := DecodeClientMessage([]byte(`{}`))
	if err == nil || err.Param != "type" {
		t.Fatalf("err=%v", err)
	}
}
