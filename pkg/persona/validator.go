package persona

import (
	"regexp"
)

// Validator is the last gate before a reply leaves the system. It
// rejects character breaks outright and redacts data the model
// hallucinated that the decoy could never plausibly recite.

// Redaction is one replace rule applied to candidate replies.
type Redaction struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// defaultDisallowed applies when a profile carries no Disallowed list.
var defaultDisallowed = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bas an ai\b`),
	regexp.MustCompile(`(?i)\b(?:ai|language) model\b`),
	regexp.MustCompile(`(?i)\bi am an? (?:ai|bot|assistant|chatbot)\b`),
	regexp.MustCompile(`(?i)\bi'?m an? (?:ai|bot|assistant|chatbot)\b`),
	regexp.MustCompile(`(?i)\bi (?:cannot|can'?t) (?:assist|help) with\b`),
	regexp.MustCompile(`(?i)\bsystem prompt\b`),
	regexp.MustCompile(`(?i)\bhoneypot\b`),
	regexp.MustCompile(`(?i)\bscam[- ]?bait`),
	regexp.MustCompile(`(?i)\bthis is a scam\b`),
	regexp.MustCompile(`(?i)\bi am reporting you\b`),
}

// defaultRedactions applies when a profile carries no Redactions list.
// The decoy has no OTPs, accounts, or links to give, so any the model
// invents must not leave the system.
var defaultRedactions = []Redaction{
	{"otp", regexp.MustCompile(`\b\d{4,8}\b`), "some numbers"},
	{"phone", regexp.MustCompile(`(?:\+91[\s-]?)?\b[6-9]\d{9}\b`), "a phone number"},
	{"account", regexp.MustCompile(`\b\d{9,18}\b`), "an account number"},
	{"upi", regexp.MustCompile(`(?i)\b[a-z0-9._-]{2,}@[a-z]{2,}\b`), "that payment id"},
	{"link", regexp.MustCompile(`(?i)\bhttps?://[^\s<>"']+`), "that website"},
}

// ValidationResult is the outcome of checking one candidate reply.
type ValidationResult struct {
	// Reply is the text to send; always non-empty and safe.
	Reply string

	// Overridden is set when the candidate broke character and was
	// replaced wholesale by a fallback line.
	Overridden bool

	// Redactions lists the redaction rules that fired.
	Redactions []string
}

// Validator checks candidate replies against the profile.
type Validator struct {
	profile    Profile
	disallowed []*regexp.Regexp
	redactions []Redaction
}

// NewValidator creates a Validator for the profile, filling absent
// disallowed and redaction lists with the package defaults.
func NewValidator(profile Profile) *Validator {
	v := &Validator{
		profile:    profile,
		disallowed: profile.Disallowed,
		redactions: profile.Redactions,
	}
	if v.disallowed == nil {
		v.disallowed = defaultDisallowed
	}
	if v.redactions == nil {
		v.redactions = defaultRedactions
	}
	return v
}

// Check validates the candidate reply for the given turn ordinal.
// It never fails: a rejected candidate is replaced by a fallback line.
func (v *Validator) Check(candidate string, turn int) ValidationResult {
	if candidate == "" {
		return ValidationResult{Reply: v.profile.Fallback(turn), Overridden: true}
	}

	for _, re := range v.disallowed {
		if re.MatchString(candidate) {
			return ValidationResult{Reply: v.profile.Fallback(turn), Overridden: true}
		}
	}

	out := candidate
	var fired []string
	for _, r := range v.redactions {
		if r.Pattern.MatchString(out) {
			out = r.Pattern.ReplaceAllString(out, r.Replacement)
			fired = append(fired, r.Name)
		}
	}

	return ValidationResult{Reply: out, Redactions: fired}
}
