package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lurelab/lure/pkg/core"
	"github.com/lurelab/lure/pkg/engage"
	"github.com/lurelab/lure/pkg/gateway/mw"
)

// Submitter admits one turn. *engage.Controller is the production
// implementation.
type Submitter interface {
	Submit(ctx context.Context, ev engage.InboundEvent) (*engage.TurnResult, error)
}

type engageRequest struct {
	SessionID string `json:"session_id"`
	Channel   string `json:"channel,omitempty"`
	From      string `json:"from,omitempty"`
	Text      string `json:"text"`
}

// EngageHandler serves POST /v1/engage: one inbound message in, one
// decoy reply out.
type EngageHandler struct {
	Controller      Submitter
	MaxMessageBytes int64
}

func (h EngageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, reqID, http.MethodPost)
		return
	}

	var req engageRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		if errors.As(err, new(*http.MaxBytesError)) {
			writeError(w, reqID, core.NewInvalidRequestError("request body too large"))
			return
		}
		writeError(w, reqID, core.NewInvalidRequestError("invalid JSON body"))
		return
	}
	if dec.More() {
		writeError(w, reqID, core.NewInvalidRequestError("unexpected trailing data"))
		return
	}
	_, _ = io.Copy(io.Discard, r.Body)

	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, reqID, core.NewInvalidRequestErrorWithParam("session_id is required", "session_id"))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, reqID, core.NewInvalidRequestErrorWithParam("text is required", "text"))
		return
	}
	if h.MaxMessageBytes > 0 && int64(len(req.Text)) > h.MaxMessageBytes {
		writeError(w, reqID, core.NewInvalidRequestErrorWithParam("text exceeds maximum length", "text"))
		return
	}

	channel := engage.Channel(strings.ToLower(strings.TrimSpace(req.Channel)))
	switch channel {
	case "":
		channel = engage.ChannelSMS
	case engage.ChannelSMS, engage.ChannelChat, engage.ChannelVoice:
	default:
		writeError(w, reqID, core.NewInvalidRequestErrorWithParam("channel must be one of sms, chat, voice", "channel"))
		return
	}

	res, err := h.Controller.Submit(r.Context(), engage.InboundEvent{
		SessionID: req.SessionID,
		Channel:   channel,
		From:      req.From,
		Text:      req.Text,
		At:        time.Now().UTC(),
	})
	if err != nil {
		writeError(w, reqID, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
