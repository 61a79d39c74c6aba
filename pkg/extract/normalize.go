package extract

import (
	"regexp"
	"strings"
)

// Scammers routinely break identifiers apart to slip past keyword filters:
// "nine eight seven six...", "call me at 9 8 7 6", "name at paytm dot com".
// Normalize restores the canonical form so the matchers below can see it.

var (
	spacedDigitsRe = regexp.MustCompile(`\b(?:\d[ .,-]){5,}\d\b`)
	sepStripRe     = regexp.MustCompile(`[ .,-]`)
	atWordRe       = regexp.MustCompile(`(?i)\s+at\s+`)
	dotWordRe      = regexp.MustCompile(`(?i)\s+dot\s+`)
	multiSpaceRe   = regexp.MustCompile(`\s{2,}`)
)

var wordDigits = []struct {
	word  string
	digit string
}{
	{"zero", "0"}, {"one", "1"}, {"two", "2"}, {"three", "3"}, {"four", "4"},
	{"five", "5"}, {"six", "6"}, {"seven", "7"}, {"eight", "8"}, {"nine", "9"},
}

var wordDigitRunRe = regexp.MustCompile(`(?i)\b(?:(?:zero|one|two|three|four|five|six|seven|eight|nine)[\s,-]+){4,}(?:zero|one|two|three|four|five|six|seven|eight|nine)\b`)

// Normalize returns text with common obfuscations reversed. The original
// text should still be matched separately; normalization can mangle
// legitimate prose (e.g. "one at a time").
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	out := text

	// Spelled-out digit runs first, so "nine eight seven..." becomes a
	// digit run the spaced-digit collapse below can pick up.
	out = wordDigitRunRe.ReplaceAllStringFunc(out, func(run string) string {
		lower := strings.ToLower(run)
		var b strings.Builder
		for _, f := range strings.FieldsFunc(lower, func(r rune) bool {
			return r == ' ' || r == ',' || r == '-' || r == '\t'
		}) {
			for _, wd := range wordDigits {
				if f == wd.word {
					b.WriteString(wd.digit)
					break
				}
			}
		}
		return b.String()
	})

	// "9 8 7 6 5 4 3 2 1 0" -> "9876543210"
	out = spacedDigitsRe.ReplaceAllStringFunc(out, func(run string) string {
		return sepStripRe.ReplaceAllString(run, "")
	})

	// "name at paytm dot com" -> "name@paytm.com"
	out = atWordRe.ReplaceAllString(out, "@")
	out = dotWordRe.ReplaceAllString(out, ".")

	out = multiSpaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// CollapseSpacedLetters rejoins "U R G E N T" style spacing. A run of
// single letters is collapsed only when most of the run is single
// characters, so normal short words survive.
func CollapseSpacedLetters(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 4 {
		return text
	}

	var out []string
	i := 0
	for i < len(fields) {
		j := i
		for j < len(fields) && len([]rune(fields[j])) == 1 {
			j++
		}
		if j-i >= 4 {
			out = append(out, strings.Join(fields[i:j], ""))
			i = j
			continue
		}
		out = append(out, fields[i])
		i++
	}
	return strings.Join(out, " ")
}
