package moderation

import (
	"regexp"
	"strings"
)

// Flood thresholds: five identical characters or three identical words in a row.
const (
	charFloodRun = 5
	wordFloodRun = 3
)

// spamTLDs are the top-level domains a bare host (no scheme, no "www.")
// must end in to count as a link.
const spamTLDs = `com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf`

var (
	// A bare host only counts with a path slash after the TLD, which keeps
	// version strings and decimals out.
	linkPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(` + spamTLDs + `)/\S*)`)

	// Optional country code, then three digit groups with optional
	// separators. The match has to stand alone between whitespace or the
	// text edges, so prices and counts embedded in words are ignored.
	contactPattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

// SpamSignal names the first spam heuristic a message tripped. It is
// reported alongside the scan result but never escalates on its own.
type SpamSignal struct {
	Pattern string `json:"pattern,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Detected reports whether any heuristic matched.
func (s SpamSignal) Detected() bool { return s.Pattern != "" }

type spamHeuristic struct {
	signal SpamSignal
	match  func(string) bool
}

// Evaluated in order; the first hit is reported. Off-platform contact
// attempts (links, phone numbers) rank above flooding.
var spamHeuristics = []spamHeuristic{
	{SpamSignal{"url", "links to outside sites"}, linkPattern.MatchString},
	{SpamSignal{"phone", "sharing phone numbers"}, contactPattern.MatchString},
	{SpamSignal{"char_flood", "repeated characters"}, func(text string) bool {
		return hasRun(strings.Split(text, ""), charFloodRun, false)
	}},
	{SpamSignal{"word_flood", "repeated words"}, func(text string) bool {
		return hasRun(strings.Fields(text), wordFloodRun, true)
	}},
}

// DetectSpam returns the first heuristic text trips, or the zero signal.
func DetectSpam(text string) SpamSignal {
	for _, h := range spamHeuristics {
		if h.match(text) {
			return h.signal
		}
	}
	return SpamSignal{}
}

// hasRun reports whether n equal tokens appear consecutively. RE2 has no
// backreferences, so runs are counted directly.
func hasRun(tokens []string, n int, foldCase bool) bool {
	run := 0
	prev := ""
	for i, tok := range tokens {
		if foldCase {
			tok = strings.ToLower(tok)
		}
		if i > 0 && tok == prev {
			run++
		} else {
			run = 1
			prev = tok
		}
		if run >= n {
			return true
		}
	}
	return false
}
