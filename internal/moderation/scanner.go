// Package moderation screens chat messages against the banned-term lexicon
// and turns violations into warnings and, past a term's threshold, blocks.
package moderation

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/whisper/moderation/internal/metrics"
	"github.com/whisper/moderation/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultLexiconTTL bounds how stale the compiled term set may get when a
// change notification is missed.
const DefaultLexiconTTL = time.Minute

// TermSource supplies the active lexicon and records matches.
// *lexicon.Service implements it.
type TermSource interface {
	Active(ctx context.Context) ([]*models.BannedTerm, error)
	RecordViolation(ctx context.Context, id primitive.ObjectID) error
}

// ScanResult is the outcome of one scan. Term and Variant are set only
// when Matched is true; Variant is the spelling that matched.
type ScanResult struct {
	Matched bool
	Term    *models.BannedTerm
	Variant string
}

type compiledSpelling struct {
	spelling string
	re       *regexp.Regexp
}

type compiledTerm struct {
	term      *models.BannedTerm
	spellings []compiledSpelling
}

// Scanner matches text against the active lexicon. The compiled set is
// cached for ttl and dropped early by Invalidate.
type Scanner struct {
	source TermSource
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	terms    []compiledTerm
	loadedAt time.Time
	loaded   bool
}

// NewScanner creates a scanner. ttl <= 0 uses DefaultLexiconTTL.
func NewScanner(source TermSource, ttl time.Duration) *Scanner {
	if ttl <= 0 {
		ttl = DefaultLexiconTTL
	}
	return &Scanner{source: source, ttl: ttl, now: time.Now}
}

// Invalidate drops the compiled set; the next scan reloads it.
func (s *Scanner) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.terms = nil
	s.mu.Unlock()
}

// spellingPattern matches a stored spelling literally and case-insensitively.
// Word boundaries are checked around each hit by hasBoundaries.
func spellingPattern(spelling string) *regexp.Regexp {
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(spelling))
}

func compile(terms []*models.BannedTerm) []compiledTerm {
	out := make([]compiledTerm, 0, len(terms))
	for _, t := range terms {
		ct := compiledTerm{term: t}
		for _, sp := range t.Spellings() {
			if sp == "" {
				continue
			}
			ct.spellings = append(ct.spellings, compiledSpelling{spelling: sp, re: spellingPattern(sp)})
		}
		out = append(out, ct)
	}
	return out
}

func (s *Scanner) snapshot(ctx context.Context) ([]compiledTerm, error) {
	now := s.now()

	s.mu.RLock()
	if s.loaded && now.Sub(s.loadedAt) < s.ttl {
		terms := s.terms
		s.mu.RUnlock()
		return terms, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded && now.Sub(s.loadedAt) < s.ttl {
		return s.terms, nil
	}

	active, err := s.source.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("moderation: load lexicon: %w", err)
	}
	s.terms = compile(active)
	s.loadedAt = now
	s.loaded = true
	metrics.ActiveTerms.Set(float64(len(s.terms)))
	log.Printf("[scanner] lexicon loaded: %d active terms", len(s.terms))
	return s.terms, nil
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// hasBoundaries reports whether text[start:end] is not glued to a letter,
// digit or underscore on either side.
func hasBoundaries(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

// findAll returns the [start, end) spans of every boundary-delimited hit.
// After a hit glued to a word character the search resumes one rune later,
// so overlapping candidates are not skipped.
func findAll(re *regexp.Regexp, text string, limit int) [][2]int {
	var spans [][2]int
	pos := 0
	for pos <= len(text) {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if hasBoundaries(text, start, end) {
			spans = append(spans, [2]int{start, end})
			if limit > 0 && len(spans) >= limit {
				break
			}
			pos = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		if size == 0 {
			break
		}
		pos = start + size
	}
	return spans
}

func containsWord(re *regexp.Regexp, text string) bool {
	return len(findAll(re, text, 1)) > 0
}

// Scan reports the first active term, and the first of its spellings, found
// in text. Terms and spellings are tried in stored order. A match bumps the
// term's violation counter.
func (s *Scanner) Scan(ctx context.Context, text string) (ScanResult, error) {
	terms, err := s.snapshot(ctx)
	if err != nil {
		return ScanResult{}, err
	}

	for _, ct := range terms {
		for _, sp := range ct.spellings {
			if !containsWord(sp.re, text) {
				continue
			}
			if err := s.source.RecordViolation(ctx, ct.term.ID); err != nil {
				return ScanResult{}, fmt.Errorf("moderation: record violation: %w", err)
			}
			term := *ct.term
			return ScanResult{Matched: true, Term: &term, Variant: sp.spelling}, nil
		}
	}
	return ScanResult{}, nil
}

// Mask replaces every boundary-delimited occurrence of spelling in text
// with asterisks of the same rune length.
func Mask(text, spelling string) string {
	if spelling == "" {
		return text
	}
	spans := findAll(spellingPattern(spelling), text, 0)
	if len(spans) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, sp := range spans {
		b.WriteString(text[last:sp[0]])
		b.WriteString(strings.Repeat("*", utf8.RuneCountInString(text[sp[0]:sp[1]])))
		last = sp[1]
	}
	b.WriteString(text[last:])
	return b.String()
}
