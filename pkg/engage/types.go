// Package engage orchestrates honeypot conversations: the fixed-order
// turn pipeline and the concurrency controller that admits, serializes
// and times out turn submissions.
package engage

import (
	"time"

	"github.com/lurelab/lure/pkg/extract"
	"github.com/lurelab/lure/pkg/persona"
)

// Channel identifies how a session reaches us.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelChat  Channel = "chat"
	ChannelVoice Channel = "voice"
)

// SessionStatus is the engagement state of a session.
type SessionStatus string

const (
	// StatusEngaged means the decoy is still drawing the counterparty out.
	StatusEngaged SessionStatus = "engaged"
	// StatusCompleted means the engagement ended; the session stays
	// stored for intelligence queries but accepts no more turns.
	StatusCompleted SessionStatus = "completed"
)

// Message is one entry in a session's conversation history.
type Message struct {
	Role persona.Role `json:"role"`
	Text string       `json:"text"`
	At   time.Time    `json:"at"`
}

// Session is the full durable state of one engagement.
type Session struct {
	ID      string        `json:"id"`
	Channel Channel       `json:"channel"`
	Status  SessionStatus `json:"status"`

	// Label is the latched classification. Once SCAM it never reverts.
	Label      string  `json:"label"`
	ScamType   string  `json:"scam_type,omitempty"`
	Confidence float64 `json:"confidence"`

	Messages []Message         `json:"messages"`
	Findings []extract.Finding `json:"findings"`
	Phases   []string          `json:"phases,omitempty"`

	EndReason string    `json:"end_reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CallerMessages counts inbound messages from the counterparty.
func (s *Session) CallerMessages() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == persona.RoleCaller {
			n++
		}
	}
	return n
}

// CallerTexts returns the counterparty's messages in order.
func (s *Session) CallerTexts() []string {
	var out []string
	for _, m := range s.Messages {
		if m.Role == persona.RoleCaller {
			out = append(out, m.Text)
		}
	}
	return out
}

// InboundEvent is one counterparty message submitted for processing.
type InboundEvent struct {
	SessionID string    `json:"session_id"`
	Channel   Channel   `json:"channel"`
	From      string    `json:"from,omitempty"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

// Pipeline stage names, in execution order.
const (
	StageLoad      = "load_session"
	StageClassify  = "classify"
	StageExtract   = "extract"
	StageRespond   = "respond"
	StageValidate  = "validate"
	StageAggregate = "aggregate"
	StagePersist   = "persist"
	StageDecide    = "decide"
)

// StageTrace records how one stage resolved: accepted, or fallback with
// the reason the primary path was unavailable.
type StageTrace struct {
	Stage    string `json:"stage"`
	Fallback bool   `json:"fallback,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// TurnMeta carries per-turn diagnostics alongside the reply.
type TurnMeta struct {
	Label      string  `json:"label"`
	ScamType   string  `json:"scam_type,omitempty"`
	Confidence float64 `json:"confidence"`

	NewFindings   []extract.Finding `json:"new_findings,omitempty"`
	TotalFindings int               `json:"total_findings"`

	Stages              []StageTrace `json:"stages"`
	FastPath            bool         `json:"fast_path,omitempty"`
	ValidatorOverridden bool         `json:"validator_overridden,omitempty"`
	Redactions          []string     `json:"redactions,omitempty"`
	EndReason           string       `json:"end_reason,omitempty"`
}

// Degraded reports whether any stage fell back during the turn.
func (m TurnMeta) Degraded() bool {
	for _, st := range m.Stages {
		if st.Fallback {
			return true
		}
	}
	return false
}

// TurnResult is the committed outcome of one turn.
type TurnResult struct {
	SessionID string        `json:"session_id"`
	Reply     string        `json:"reply"`
	State     SessionStatus `json:"engagement_state"`
	Meta      TurnMeta      `json:"meta"`
}
