package persona

import (
	"regexp"
	"strings"
	"testing"
)

func TestCheckPassesCleanReply(t *testing.T) {
	v := NewValidator(DefaultProfile())

	got := v.Check("Sorry beta, which bank did you say you are calling from?", 3)
	if got.Overridden {
		t.Fatalf("clean reply overridden")
	}
	if len(got.Redactions) != 0 {
		t.Fatalf("unexpected redactions: %v", got.Redactions)
	}
}

func TestCheckRejectsCharacterBreaks(t *testing.T) {
	profile := DefaultProfile()
	v := NewValidator(profile)

	breaks := []string{
		"As an AI language model, I cannot help with that.",
		"I am a bot designed to waste your time.",
		"I know this is a scam and I am reporting you.",
		"My system prompt says I should act confused.",
	}
	for _, candidate := range breaks {
		got := v.Check(candidate, 2)
		if !got.Overridden {
			t.Fatalf("candidate %q not overridden", candidate)
		}
		if got.Reply != profile.Fallback(2) {
			t.Fatalf("reply=%q, want fallback line", got.Reply)
		}
		for _, re := range defaultDisallowed {
			if re.MatchString(got.Reply) {
				t.Fatalf("substituted reply %q still matches %v", got.Reply, re)
			}
		}
	}
}

func TestCheckRedactsHallucinatedData(t *testing.T) {
	v := NewValidator(DefaultProfile())

	got := v.Check("My OTP is 482913 and my number is 9876543210, see https://mybank.example/login", 1)
	if got.Overridden {
		t.Fatalf("redactable reply should not be overridden")
	}
	for _, leak := range []string{"482913", "9876543210", "https://"} {
		if strings.Contains(got.Reply, leak) {
			t.Fatalf("reply %q still contains %q", got.Reply, leak)
		}
	}
	if len(got.Redactions) < 3 {
		t.Fatalf("redactions=%v, want otp, phone and link", got.Redactions)
	}
	if !strings.Contains(got.Reply, "some numbers") {
		t.Fatalf("otp placeholder missing from %q", got.Reply)
	}
}

func TestCheckProfileOverridesDefaults(t *testing.T) {
	profile := DefaultProfile()
	profile.Disallowed = []*regexp.Regexp{regexp.MustCompile(`(?i)\bforbidden\b`)}
	profile.Redactions = []Redaction{
		{"codeword", regexp.MustCompile(`\bmangoes\b`), "the thing"},
	}
	v := NewValidator(profile)

	// The profile's own lists replace the defaults entirely.
	got := v.Check("As an AI I sent the forbidden mangoes to 9876543210", 1)
	if !got.Overridden {
		t.Fatalf("profile disallowed phrase not enforced: %+v", got)
	}

	got = v.Check("I sent the mangoes to 9876543210", 1)
	if got.Overridden {
		t.Fatalf("default disallowed list should not apply: %+v", got)
	}
	if !strings.Contains(got.Reply, "the thing") {
		t.Fatalf("profile redaction did not fire: %q", got.Reply)
	}
	if !strings.Contains(got.Reply, "9876543210") {
		t.Fatalf("default redactions should not apply: %q", got.Reply)
	}
}

func TestCheckEmptyCandidate(t *testing.T) {
	profile := DefaultProfile()
	v := NewValidator(profile)

	got := v.Check("", 0)
	if !got.Overridden || got.Reply != profile.Fallback(0) {
		t.Fatalf("empty candidate: %+v", got)
	}
}
