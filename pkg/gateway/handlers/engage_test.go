package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lurelab/lure/pkg/core"
	"github.com/lurelab/lure/pkg/engage"
)

type fakeSubmitter struct {
	lastEvent engage.InboundEvent
	result    *engage.TurnResult
	err       error
}

func (f *fakeSubmitter) Submit(_ context.Context, ev engage.InboundEvent) (*engage.TurnResult, error) {
	f.lastEvent = ev
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func postEngage(t *testing.T, h EngageHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/engage", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) *core.Error {
	t.Helper()
	var env struct {
		Error *core.Error `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (body=%q)", err, rr.Body.String())
	}
	if env.Error == nil {
		t.Fatalf("missing error object in %q", rr.Body.String())
	}
	return env.Error
}

func TestEngage_Success(t *testing.T) {
	sub := &fakeSubmitter{result: &engage.TurnResult{
		SessionID: "s1",
		Reply:     "oh dear, which app do I open?",
		State:     engage.StatusEngaged,
	}}
	h := EngageHandler{Controller: sub, MaxMessageBytes: 4096}

	rr := postEngage(t, h, `{"session_id":"s1","text":"your account is blocked"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	var res engage.TurnResult
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.SessionID != "s1" || res.Reply == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if sub.lastEvent.Channel != engage.ChannelSMS {
		t.Fatalf("default channel = %q, want sms", sub.lastEvent.Channel)
	}
	if sub.lastEvent.At.IsZero() {
		t.Fatalf("event timestamp not set")
	}
}

func TestEngage_MethodNotAllowed(t *testing.T) {
	h := EngageHandler{Controller: &fakeSubmitter{}}
	req := httptest.NewRequest(http.MethodGet, "/v1/engage", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("Allow=%q", rr.Header().Get("Allow"))
	}
}

func TestEngage_ValidationErrors(t *testing.T) {
	cases := []struct {
		name      string
		body      string
		wantParam string
	}{
		{"missing session_id", `{"text":"hi"}`, "session_id"},
		{"missing text", `{"session_id":"s1"}`, "text"},
		{"bad channel", `{"session_id":"s1","text":"hi","channel":"fax"}`, "channel"},
		{"oversized text", `{"session_id":"s1","text":"` + strings.Repeat("a", 64) + `"}`, "text"},
	}

	h := EngageHandler{Controller: &fakeSubmitter{}, MaxMessageBytes: 32}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := postEngage(t, h, tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
			}
			e := decodeEnvelope(t, rr)
			if e.Type != core.ErrInvalidRequest {
				t.Fatalf("type=%q", e.Type)
			}
			if e.Param != tc.wantParam {
				t.Fatalf("param=%q, want %q", e.Param, tc.wantParam)
			}
		})
	}
}

func TestEngage_InvalidJSON(t *testing.T) {
	h := EngageHandler{Controller: &fakeSubmitter{}}
	rr := postEngage(t, h, `{"session_id":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
	rr = postEngage(t, h, `{"session_id":"s1","text":"hi"}{"again":true}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("trailing data status=%d", rr.Code)
	}
}

func TestEngage_ControllerErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantType   core.ErrorType
	}{
		{"overloaded", core.NewOverloadedError("session ceiling reached"), http.StatusTooManyRequests, core.ErrOverloaded},
		{"session busy", core.NewSessionBusyError("s1"), http.StatusTooManyRequests, core.ErrSessionBusy},
		{"timeout", core.NewTimeoutError("s1", "turn deadline exceeded"), http.StatusGatewayTimeout, core.ErrTimeout},
		{"store", core.NewStoreError("s1", context.DeadlineExceeded), http.StatusServiceUnavailable, core.ErrStore},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := EngageHandler{Controller: &fakeSubmitter{err: tc.err}}
			rr := postEngage(t, h, `{"session_id":"s1","text":"hi"}`)
			if rr.Code != tc.wantStatus {
				t.Fatalf("status=%d, want %d (body=%q)", rr.Code, tc.wantStatus, rr.Body.String())
			}
			e := decodeEnvelope(t, rr)
			if e.Type != tc.wantType {
				t.Fatalf("type=%q, want %q", e.Type, tc.wantType)
			}
			if tc.wantStatus == http.StatusTooManyRequests && rr.Header().Get("Retry-After") == "" {
				t.Fatalf("missing Retry-After header")
			}
		})
	}
}

func TestEngage_ChannelPassedThrough(t *testing.T) {
	sub := &fakeSubmitter{result: &engage.TurnResult{SessionID: "s1"}}
	h := EngageHandler{Controller: sub}

	rr := postEngage(t, h, `{"session_id":"s1","text":"hi","channel":"Voice","from":"+15550100"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if sub.lastEvent.Channel != engage.ChannelVoice {
		t.Fatalf("channel=%q", sub.lastEvent.Channel)
	}
	if sub.lastEvent.From != "+15550100" {
		t.Fatalf("from=%q", sub.lastEvent.From)
	}
}
