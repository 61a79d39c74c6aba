// Package timeline tracks how an engagement evolves across turns:
// cumulative scam confidence, the phases of the script the counterparty
// is running, and when the conversation has yielded enough to end.
package timeline

import (
	"fmt"
	"strings"
)

// Phase names, in the rough order scam scripts deploy them.
const (
	PhaseUrgency            = "urgency"
	PhaseAuthority          = "authority"
	PhaseFear               = "fear"
	PhaseCredentialRequest  = "credential_request"
	PhasePaymentRedirection = "payment_redirection"
	PhaseImpersonation      = "impersonation"
)

var phaseOrder = []string{
	PhaseUrgency, PhaseAuthority, PhaseFear,
	PhaseCredentialRequest, PhasePaymentRedirection, PhaseImpersonation,
}

var phaseMarkers = map[string][]string{
	PhaseUrgency:            {"urgent", "immediately", "right now", "within", "today", "last chance", "expires"},
	PhaseAuthority:          {"officer", "police", "cbi", "rbi", "bank manager", "government", "department", "court"},
	PhaseFear:               {"arrest", "blocked", "suspended", "legal action", "viral", "disconnect", "fine", "penalty"},
	PhaseCredentialRequest:  {"otp", "pin", "password", "cvv", "aadhaar", "pan", "account number", "card number"},
	PhasePaymentRedirection: {"pay", "transfer", "upi", "send money", "deposit", "fee", "recharge", "gift card"},
	PhaseImpersonation:      {"this is", "calling from", "i am from", "on behalf of", "official"},
}

// Policy holds the termination thresholds. Zero values are replaced by
// defaults in New.
type Policy struct {
	// EWMAWeight is the weight of the latest verdict in the cumulative
	// confidence. Higher reacts faster, lower smooths noise.
	EWMAWeight float64

	// CompleteConfidence is the cumulative confidence required before a
	// closing reply may complete the session.
	CompleteConfidence float64

	// HardMaxMessages ends any session regardless of yield.
	HardMaxMessages int

	// RichEndMessages ends a session with two finding categories.
	RichEndMessages int

	// LeanEndMessages ends a session with at most one category.
	LeanEndMessages int

	// EarlyEndCategories ends a session immediately once this many
	// distinct finding categories are gathered.
	EarlyEndCategories int
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		EWMAWeight:         0.6,
		CompleteConfidence: 0.8,
		HardMaxMessages:    20,
		RichEndMessages:    8,
		LeanEndMessages:    12,
		EarlyEndCategories: 3,
	}
}

// Aggregator applies a Policy across turns. It is stateless; all
// session state lives in the caller.
type Aggregator struct {
	policy Policy
}

// New creates an Aggregator, filling zero policy fields with defaults.
func New(policy Policy) *Aggregator {
	def := DefaultPolicy()
	if policy.EWMAWeight <= 0 || policy.EWMAWeight > 1 {
		policy.EWMAWeight = def.EWMAWeight
	}
	if policy.CompleteConfidence <= 0 {
		policy.CompleteConfidence = def.CompleteConfidence
	}
	if policy.HardMaxMessages <= 0 {
		policy.HardMaxMessages = def.HardMaxMessages
	}
	if policy.RichEndMessages <= 0 {
		policy.RichEndMessages = def.RichEndMessages
	}
	if policy.LeanEndMessages <= 0 {
		policy.LeanEndMessages = def.LeanEndMessages
	}
	if policy.EarlyEndCategories <= 0 {
		policy.EarlyEndCategories = def.EarlyEndCategories
	}
	return &Aggregator{policy: policy}
}

// Policy returns the effective policy.
func (a *Aggregator) Policy() Policy {
	return a.policy
}

// Confidence folds the latest verdict confidence into the cumulative
// exponentially weighted value. A first observation seeds the value
// directly.
func (a *Aggregator) Confidence(prev, latest float64, firstObservation bool) float64 {
	if firstObservation {
		return latest
	}
	w := a.policy.EWMAWeight
	return w*latest + (1-w)*prev
}

// ShouldEnd decides whether the engagement has run its course.
// callerMessages counts inbound messages; categories counts distinct
// finding kinds gathered so far.
func (a *Aggregator) ShouldEnd(callerMessages, categories int) (bool, string) {
	p := a.policy
	switch {
	case callerMessages >= p.HardMaxMessages:
		return true, "hard_max_messages"
	case categories >= p.EarlyEndCategories:
		return true, "intelligence_rich"
	case categories == 2 && callerMessages >= p.RichEndMessages:
		return true, "intelligence_partial"
	case callerMessages >= p.LeanEndMessages:
		return true, "engagement_exhausted"
	}
	return false, ""
}

// CanComplete reports whether the cumulative confidence clears the
// completion threshold. Completion additionally requires the outbound
// reply to be a closing line; the caller enforces that half.
func (a *Aggregator) CanComplete(confidence float64) bool {
	return confidence >= a.policy.CompleteConfidence
}

// Phases returns the scam phases present in the caller's messages, in
// canonical order.
func Phases(callerMessages []string) []string {
	joined := strings.ToLower(strings.Join(callerMessages, " \n "))
	var out []string
	for _, phase := range phaseOrder {
		for _, marker := range phaseMarkers[phase] {
			if strings.Contains(joined, marker) {
				out = append(out, phase)
				break
			}
		}
	}
	return out
}

// Summary renders a short end-of-session line for operators.
func Summary(scamType string, confidence float64, callerMessages, findings int, phases []string) string {
	typ := scamType
	if typ == "" {
		typ = "UNCLASSIFIED"
	}
	phaseStr := "none"
	if len(phases) > 0 {
		phaseStr = strings.Join(phases, ",")
	}
	return fmt.Sprintf("%s conf=%.2f messages=%d findings=%d phases=%s",
		typ, confidence, callerMessages, findings, phaseStr)
}
