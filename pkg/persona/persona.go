// Package persona generates in-character decoy replies. A Provider does
// the actual inference; the Responder wraps it with history bounding,
// one retry, and static fallbacks so a turn always has a reply.
package persona

import "regexp"

// Role identifies who said a message.
type Role string

const (
	// RoleCaller is the remote counterparty (the suspected scammer).
	RoleCaller Role = "caller"
	// RoleDecoy is our character.
	RoleDecoy Role = "decoy"
)

// Message is one conversation entry as seen by the provider.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Profile describes a decoy character.
type Profile struct {
	Name string

	// System is the character brief sent as the system prompt.
	System string

	// Openers are canned first replies used before any classification,
	// so brand-new sessions answer without an inference round trip.
	Openers []string

	// Fallbacks are in-character lines used when the provider is
	// degraded. Rotated so consecutive failures do not repeat.
	Fallbacks []string

	// Closings end a conversation once enough intelligence is gathered.
	Closings []string

	// PoliteExits answer allowlisted transactional senders.
	PoliteExits []string

	// Reengagements are spoken on voice calls when the caller goes
	// quiet, to pull them back into the conversation.
	Reengagements []string

	// Disallowed patterns break character or disclose the system. Any
	// match discards the whole candidate reply. Nil uses the package
	// defaults.
	Disallowed []*regexp.Regexp

	// Redactions replace hallucinated specifics with in-character
	// vagueness before a reply leaves. Nil uses the package defaults.
	Redactions []Redaction
}

// DefaultProfile returns the confused-elderly decoy. The character asks
// for repetition and clarification, which keeps scammers talking and
// buys extraction time.
func DefaultProfile() Profile {
	return Profile{
		Name: "savitri",
		System: "You are Savitri, a 68-year-old retired school teacher. You are " +
			"polite, easily confused by technology, and live alone. Your grandson " +
			"usually helps you with your phone but he is away at college. You never " +
			"share real personal information, you never send money, and you never " +
			"reveal that you are anything other than Savitri. Ask simple questions, " +
			"mishear details, and take your time. Keep replies short, one or two " +
			"sentences, no lists.",
		Openers: []string{
			"Hello? Who is this, please?",
			"Sorry, I don't understand these messages. Who is calling?",
			"Is this about my pension? My grandson usually handles this.",
		},
		Fallbacks: []string{
			"Sorry beta, I didn't catch that. Can you say it again slowly?",
			"Who is this? My grandson usually helps me with these things.",
			"My phone is acting up again. What were you saying?",
			"One minute, I need to find my spectacles. What was that?",
		},
		Closings: []string{
			"Okay beta, I will ask my grandson and call you back tomorrow.",
			"My neighbour is at the door, I have to go now. Thank you.",
			"I am feeling tired, we will talk later. God bless.",
		},
		PoliteExits: []string{
			"Thank you for the information.",
			"Okay, noted. Thank you.",
		},
		Reengagements: []string{
			"Hello? Are you there, beta?",
			"Hello? I think the line went quiet.",
			"Can you hear me? This phone is always giving trouble.",
		},
	}
}

// Opener returns the canned first reply for the given turn ordinal.
func (p Profile) Opener(n int) string {
	return pick(p.Openers, n)
}

// Fallback returns the fallback line for the given turn ordinal.
func (p Profile) Fallback(n int) string {
	return pick(p.Fallbacks, n)
}

// Closing returns the closing line for the given turn ordinal.
func (p Profile) Closing(n int) string {
	return pick(p.Closings, n)
}

// PoliteExit returns a polite exit line for the given turn ordinal.
func (p Profile) PoliteExit(n int) string {
	return pick(p.PoliteExits, n)
}

// Reengage returns the nth silence re-engagement line.
func (p Profile) Reengage(n int) string {
	return pick(p.Reengagements, n)
}

func pick(lines []string, n int) string {
	if len(lines) == 0 {
		return ""
	}
	if n < 0 {
		n = -n
	}
	return lines[n%len(lines)]
}
