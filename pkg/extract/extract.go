// Package extract pulls structured intelligence out of conversation text.
// It is pure string work: no network, no clock, no store.
package extract

import (
	"regexp"
	"sort"
	"strings"
)

// Kind identifies a category of extracted intelligence.
type Kind string

const (
	KindPhone        Kind = "phone"
	KindUPI          Kind = "upi"
	KindEmail        Kind = "email"
	KindLink         Kind = "link"
	KindAPKLink      Kind = "apk_link"
	KindBankAccount  Kind = "bank_account"
	KindIFSC         Kind = "ifsc"
	KindCryptoWallet Kind = "crypto_wallet"
	KindSocialHandle Kind = "social_handle"
)

// Finding is a single extracted artifact. Value is the normalized form
// used for deduplication; Raw preserves the text as it appeared.
type Finding struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value"`
	Raw   string `json:"raw"`
}

// Key returns the identity of a finding for dedup purposes.
func (f Finding) Key() string {
	return string(f.Kind) + "\x00" + f.Value
}

var (
	phoneRe = regexp.MustCompile(`(?:\+91[\s-]?|91[\s-]?)?\b[6-9]\d{9}\b`)
	upiRe   = regexp.MustCompile(`(?i)\b[a-z0-9._-]{2,}@[a-z0-9.-]{2,}\b`)
	emailRe = regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`)
	linkRe  = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"']+`)
	bankRe  = regexp.MustCompile(`\b\d{9,18}\b`)
	ifscRe  = regexp.MustCompile(`\b[A-Z]{4}0[A-Z0-9]{6}\b`)

	ethRe  = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)
	tronRe = regexp.MustCompile(`\bT[A-Za-z1-9]{33}\b`)
	btcRe  = regexp.MustCompile(`\b(?:bc1[a-z0-9]{20,60}|[13][a-km-zA-HJ-NP-Z1-9]{25,34})\b`)

	handleRe = regexp.MustCompile(`(?:^|\s)(@[A-Za-z][A-Za-z0-9_.]{2,30})\b`)
)

// perKindCap bounds how many findings of one kind a single extraction
// run may return. Scam scripts repeat themselves; past a point more
// copies carry no signal.
var perKindCap = map[Kind]int{
	KindPhone:        8,
	KindUPI:          8,
	KindEmail:        8,
	KindLink:         16,
	KindAPKLink:      16,
	KindBankAccount:  8,
	KindIFSC:         8,
	KindCryptoWallet: 8,
	KindSocialHandle: 8,
}

// Extract scans every message, on both its raw and normalized forms,
// and returns the union of findings deduplicated by (kind, value).
// It is idempotent: the same input always yields the same output.
func Extract(messages []string) []Finding {
	seen := make(map[string]struct{})
	counts := make(map[Kind]int)
	var out []Finding

	add := func(f Finding) {
		if f.Value == "" {
			return
		}
		if _, ok := seen[f.Key()]; ok {
			return
		}
		if cap, ok := perKindCap[f.Kind]; ok && counts[f.Kind] >= cap {
			return
		}
		seen[f.Key()] = struct{}{}
		counts[f.Kind]++
		out = append(out, f)
	}

	for _, msg := range messages {
		for _, text := range []string{msg, Normalize(msg)} {
			scanText(text, add)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func scanText(text string, add func(Finding)) {
	if text == "" {
		return
	}

	// A UPI handle is any local@domain token that is not a dotted-domain
	// email. "upi@bank" is a handle; "upi@bank.com" is an address.
	upis := make(map[string]struct{})
	for _, m := range upiRe.FindAllString(text, -1) {
		if emailRe.MatchString(m) {
			continue
		}
		v := strings.ToLower(m)
		upis[v] = struct{}{}
		add(Finding{Kind: KindUPI, Value: v, Raw: m})
	}
	for _, m := range emailRe.FindAllString(text, -1) {
		add(Finding{Kind: KindEmail, Value: strings.ToLower(m), Raw: m})
	}

	phones := make(map[string]struct{})
	for _, m := range phoneRe.FindAllString(text, -1) {
		v := canonicalPhone(m)
		phones[v] = struct{}{}
		add(Finding{Kind: KindPhone, Value: v, Raw: m})
	}

	for _, m := range linkRe.FindAllString(text, -1) {
		v := strings.TrimRight(m, ".,;:)")
		kind := KindLink
		if strings.HasSuffix(strings.ToLower(v), ".apk") {
			kind = KindAPKLink
		}
		add(Finding{Kind: kind, Value: strings.ToLower(v), Raw: m})
	}

	for _, m := range bankRe.FindAllString(text, -1) {
		// A 10-digit run starting 6-9 is a phone, not an account.
		if _, isPhone := phones[m]; isPhone {
			continue
		}
		if len(m) == 10 && m[0] >= '6' && m[0] <= '9' {
			continue
		}
		add(Finding{Kind: KindBankAccount, Value: m, Raw: m})
	}

	for _, m := range ifscRe.FindAllString(text, -1) {
		add(Finding{Kind: KindIFSC, Value: m, Raw: m})
	}

	for _, m := range ethRe.FindAllString(text, -1) {
		add(Finding{Kind: KindCryptoWallet, Value: strings.ToLower(m), Raw: m})
	}
	for _, m := range tronRe.FindAllString(text, -1) {
		add(Finding{Kind: KindCryptoWallet, Value: m, Raw: m})
	}
	for _, m := range btcRe.FindAllString(text, -1) {
		add(Finding{Kind: KindCryptoWallet, Value: m, Raw: m})
	}

	for _, sub := range handleRe.FindAllStringSubmatch(text, -1) {
		m := sub[1]
		v := strings.ToLower(m)
		// UPI handles and email localparts already matched above.
		if strings.Contains(v, ".") && emailRe.MatchString(strings.TrimPrefix(v, "@")) {
			continue
		}
		if _, isUPI := upis[strings.TrimPrefix(v, "@")]; isUPI {
			continue
		}
		add(Finding{Kind: KindSocialHandle, Value: v, Raw: m})
	}
}

func canonicalPhone(raw string) string {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			digits = append(digits, raw[i])
		}
	}
	// Keep the trailing 10 digits; drops 91 country prefixes.
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return string(digits)
}

// Categories returns the distinct kinds present among findings,
// counting phone/UPI/bank/crypto style payment channels that the
// termination policy cares about.
func Categories(findings []Finding) int {
	kinds := make(map[Kind]struct{})
	for _, f := range findings {
		kinds[f.Kind] = struct{}{}
	}
	return len(kinds)
}
