package voice

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordedWrite struct {
	messageType int
	data        []byte
}

type fakeWSConn struct {
	writes []recordedWrite
	closed bool
}

func (f *fakeWSConn) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeWSConn) WriteMessage(messageType int, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	f.writes = append(f.writes, recordedWrite{messageType: messageType, data: buf})
	return nil
}

func (f *fakeWSConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return nil
}

func (f *fakeWSConn) Close() error {
	f.closed = true
	return nil
}

func TestOutboundWriterPriorityBeforeAudio(t *testing.T) {
	priority := make(chan outboundFrame, 4)
	normal := make(chan outboundFrame, 4)

	normal <- outboundFrame{audioPayload: []byte{0xaa}, utteranceID: "utt_1"}
	priority <- outboundFrame{textPayload: []byte(`{"type":"state"}`)}
	close(priority)
	close(normal)

	ws := &fakeWSConn{}
	w := &OutboundWriter{ws: ws, priority: priority, normal: normal}
	if err := w.Run(); err != nil {
		t.Fatalf("Run error = %v", err)
	}

	if len(ws.writes) != 2 {
		t.Fatalf("writes = %d, want 2", len(ws.writes))
	}
	if ws.writes[0].messageType != websocket.TextMessage {
		t.Fatalf("first write type = %d, want text", ws.writes[0].messageType)
	}
	if ws.writes[1].messageType != websocket.BinaryMessage {
		t.Fatalf("second write type = %d, want binary", ws.writes[1].messageType)
	}
}

func TestOutboundWriterSkipsCanceledAudio(t *testing.T) {
	priority := make(chan outboundFrame)
	normal := make(chan outboundFrame, 4)

	normal <- outboundFrame{audioPayload: []byte{0x01}, utteranceID: "utt_dead"}
	normal <- outboundFrame{audioPayload: []byte{0x02}, utteranceID: "utt_live"}
	close(priority)
	close(normal)

	ws := &fakeWSConn{}
	w := &OutboundWriter{
		ws:         ws,
		priority:   priority,
		normal:     normal,
		isCanceled: func(id string) bool { return id == "utt_dead" },
	}
	if err := w.Run(); err != nil {
		t.Fatalf("Run error = %v", err)
	}

	if len(ws.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(ws.writes))
	}
	if ws.writes[0].data[0] != 0x02 {
		t.Fatalf("wrote audio %x, want the live utterance only", ws.writes[0].data)
	}
}

func TestOutboundWriterBase64AudioMode(t *testing.T) {
	priority := make(chan outboundFrame)
	normal := make(chan outboundFrame, 2)

	normal <- outboundFrame{audioPayload: []byte{0x01, 0x02, 0x03}, utteranceID: "utt_1"}
	close(priority)
	close(normal)

	ws := &fakeWSConn{}
	w := &OutboundWriter{
		ws:       ws,
		priority: priority,
		normal:   normal,
		cfg:      WriterConfig{Base64Audio: true},
	}
	if err := w.Run(); err != nil {
		t.Fatalf("Run error = %v", err)
	}

	if len(ws.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(ws.writes))
	}
	if ws.writes[0].messageType != websocket.TextMessage {
		t.Fatalf("write type = %d, want text", ws.writes[0].messageType)
	}
	var env audioEnvelope
	if err := json.Unmarshal(ws.writes[0].data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != "audio" {
		t.Fatalf("type = %q, want audio", env.Type)
	}
	decoded, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 3 || decoded[0] != 0x01 {
		t.Fatalf("decoded audio = %x", decoded)
	}
}
