package detect

import (
	"regexp"
	"strings"
)

// Rule tier: deterministic patterns that either clear a message outright
// (trusted transactional senders) or convict it with near-certain
// confidence (known scam scripts). The statistical tier only runs when
// these stay silent.

var scamKeywords = []string{
	"otp", "upi", "bank", "kyc", "blocked", "suspended", "frozen",
	"verify", "urgent", "immediately", "send money", "click here",
	"legal action", "lottery", "prize", "winner", "refund", "arrest",
	"police", "cbi", "customs", "parcel", "electricity", "disconnect",
	"pan card", "aadhaar", "income tax", "processing fee",
	"registration fee", "security deposit", "work from home", "part time",
	"earn daily", "anydesk", "teamviewer", "screen share",
	"remote access", "video call", "nude", "viral", "digital arrest",
}

var scamTypeKeywords = map[string][]string{
	ScamDigitalArrest: {"arrest", "police", "cbi", "customs", "parcel", "narcotics", "money laundering", "digital arrest", "court", "warrant"},
	ScamUPI:           {"upi", "kyc", "blocked", "refund", "cashback", "electricity", "disconnect", "paytm", "phonepe", "gpay"},
	ScamJob:           {"work from home", "part time", "earn daily", "registration fee", "task", "telegram job", "hr", "salary"},
	ScamSextortion:    {"video call", "nude", "viral", "screenshot", "recording", "facebook", "instagram", "delete the video"},
	ScamLottery:       {"lottery", "prize", "winner", "lucky draw", "claim", "processing fee", "crore", "lakh"},
}

// criticalCombos convict on their own regardless of keyword counts.
var criticalCombos = []struct {
	all      []string
	scamType string
}{
	{all: []string{"kyc", "link"}, scamType: ScamUPI},
	{all: []string{"rbi", "link"}, scamType: ScamUPI},
	{all: []string{"electricity", "disconnect"}, scamType: ScamUPI},
	{all: []string{"digital arrest"}, scamType: ScamDigitalArrest},
}

// Legitimate transactional senders. Real bank notifications tell you NOT
// to share the OTP; scammers ask for it.
var trustedSenderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)do not share (?:this |your )?otp`),
	regexp.MustCompile(`(?i)never share (?:this |your )?otp`),
	regexp.MustCompile(`(?i)valid for \d+ min`),
	regexp.MustCompile(`(?i)has been (?:debited|credited)`),
	regexp.MustCompile(`(?i)txn(?: id)? [A-Z0-9]+`),
	regexp.MustCompile(`(?i)avl bal`),
	regexp.MustCompile(`(?i)https?://(?:www\.)?(?:onlinesbi|hdfcbank|icicibank|axisbank|irctc)\.(?:com|co\.in)`),
}

// Prompt injection against the decoy persona.
var jailbreakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (?:all |your )?(?:previous |prior )?instructions`),
	regexp.MustCompile(`(?i)you are an? (?:ai|llm|language model|bot|chatbot)`),
	regexp.MustCompile(`(?i)reveal your (?:system )?prompt`),
	regexp.MustCompile(`(?i)pretend (?:to be|you are)`),
	regexp.MustCompile(`(?i)disregard (?:the )?above`),
	regexp.MustCompile(`(?i)repeat your instructions`),
}

var upiHintRe = regexp.MustCompile(`(?i)\b[a-z0-9._-]{2,}@(?:paytm|okaxis|oksbi|okhdfcbank|okicici|ybl|ibl|axl|upi|apl|yapl|rbl|airtel|freecharge|phonepe|gpay)\b`)
var linkHintRe = regexp.MustCompile(`(?i)https?://`)

func matchTrustedSender(text string) bool {
	for _, re := range trustedSenderPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func matchJailbreak(text string) bool {
	for _, re := range jailbreakPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// ruleScore returns the keyword-based scam score in [0,1] for lowered text.
func ruleScore(lower string) (score float64, hits int) {
	for _, kw := range scamKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	hasUPI := upiHintRe.MatchString(lower)

	switch {
	case hasUPI || hits >= 2:
		score = 0.8
	case hits == 1:
		score = 0.4
	}
	return score, hits
}

// matchCritical checks combinations that are scams with no plausible
// legitimate reading.
func matchCritical(lower string) (string, bool) {
	hasLink := linkHintRe.MatchString(lower)
	for _, combo := range criticalCombos {
		ok := true
		for _, term := range combo.all {
			if term == "link" {
				if !hasLink {
					ok = false
					break
				}
				continue
			}
			if !strings.Contains(lower, term) {
				ok = false
				break
			}
		}
		if ok {
			return combo.scamType, true
		}
	}
	return "", false
}

// scamTypeOrder fixes tie-breaking; map iteration order is random.
var scamTypeOrder = []string{ScamDigitalArrest, ScamSextortion, ScamJob, ScamLottery, ScamUPI}

// classifyType picks a scam type by keyword vote. Returns ScamUPI when
// nothing dominates, since payment redirection is the common tail.
func classifyType(lower string) string {
	best, bestHits := ScamUPI, 0
	for _, typ := range scamTypeOrder {
		hits := 0
		for _, kw := range scamTypeKeywords[typ] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = typ, hits
		}
	}
	return best
}
