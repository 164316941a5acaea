package lexicon

import (
	"strings"
	"unicode/utf8"

	"github.com/whisper/moderation/internal/apperrors"
	"github.com/whisper/moderation/internal/models"
)

// NormalizeSpelling lowercases a word or phrase and collapses whitespace.
func NormalizeSpelling(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// normalizeVariations lowercases, drops empties, dedupes in first-seen order
// and removes the canonical word itself.
func normalizeVariations(word string, variations []string) []string {
	seen := map[string]bool{word: true}
	out := make([]string, 0, len(variations))
	for _, v := range variations {
		v = NormalizeSpelling(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func validateSpelling(s string) error {
	n := utf8.RuneCountInString(s)
	if n < models.MinSpellingLength || n > models.MaxSpellingLength {
		return apperrors.Validation("%q must be between %d and %d characters", s,
			models.MinSpellingLength, models.MaxSpellingLength)
	}
	return nil
}

// normalize fills defaults and canonicalises the spelling fields in place,
// then validates every policy field.
func normalize(t *models.BannedTerm) error {
	t.Word = NormalizeSpelling(t.Word)
	if t.Word == "" {
		return apperrors.Validation("word is required")
	}
	if err := validateSpelling(t.Word); err != nil {
		return err
	}
	t.Variations = normalizeVariations(t.Word, t.Variations)
	for _, v := range t.Variations {
		if err := validateSpelling(v); err != nil {
			return err
		}
	}

	if t.Category == "" {
		t.Category = models.CategoryOther
	}
	if !t.Category.Valid() {
		return apperrors.Validation("invalid category %q", t.Category)
	}
	if t.Severity == "" {
		t.Severity = models.SeverityMedium
	}
	if !t.Severity.Valid() {
		return apperrors.Validation("invalid severity %q", t.Severity)
	}

	if t.AutoBlockThreshold == 0 {
		t.AutoBlockThreshold = models.DefaultAutoBlockThreshold
	}
	if t.AutoBlockThreshold < models.MinAutoBlockThreshold || t.AutoBlockThreshold > models.MaxAutoBlockThreshold {
		return apperrors.Validation("autoBlockThreshold must be between %d and %d",
			models.MinAutoBlockThreshold, models.MaxAutoBlockThreshold)
	}
	if t.BlockDurationHours == 0 {
		t.BlockDurationHours = models.DefaultBlockDurationHours
	}
	if t.BlockDurationHours < models.MinBlockDurationHours || t.BlockDurationHours > models.MaxBlockDurationHours {
		return apperrors.Validation("blockDurationHours must be between %d and %d",
			models.MinBlockDurationHours, models.MaxBlockDurationHours)
	}

	t.WarningMessage = strings.TrimSpace(t.WarningMessage)
	if t.WarningMessage == "" {
		t.WarningMessage = models.DefaultWarningMessage(t.Severity)
	}
	if utf8.RuneCountInString(t.WarningMessage) > models.MaxWarningMessageLen {
		return apperrors.Validation("warningMessage must be at most %d characters", models.MaxWarningMessageLen)
	}
	return nil
}
