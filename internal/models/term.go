package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Severity grades a banned term or a warning.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// WarningLifetime is how long a warning of this severity stays active.
func (s Severity) WarningLifetime() time.Duration {
	const day = 24 * time.Hour
	switch s {
	case SeverityLow:
		return 7 * day
	case SeverityMedium:
		return 30 * day
	case SeverityHigh:
		return 90 * day
	case SeverityCritical:
		return 365 * day
	default:
		return 30 * day
	}
}

// TermCategory groups banned terms for reporting.
type TermCategory string

const (
	CategoryProfanity    TermCategory = "profanity"
	CategorySexual       TermCategory = "sexual"
	CategoryHarassment   TermCategory = "harassment"
	CategoryHateSpeech   TermCategory = "hate_speech"
	CategoryViolence     TermCategory = "violence"
	CategorySpam         TermCategory = "spam"
	CategoryScam         TermCategory = "scam"
	CategoryPersonalInfo TermCategory = "personal_info"
	CategoryOther        TermCategory = "other"
)

func (c TermCategory) Valid() bool {
	switch c {
	case CategoryProfanity, CategorySexual, CategoryHarassment, CategoryHateSpeech,
		CategoryViolence, CategorySpam, CategoryScam, CategoryPersonalInfo, CategoryOther:
		return true
	}
	return false
}

// Term policy limits.
const (
	MinSpellingLength     = 1
	MaxSpellingLength     = 50
	MinAutoBlockThreshold = 1
	MaxAutoBlockThreshold = 10
	MinBlockDurationHours = 1
	MaxBlockDurationHours = 168
	MaxWarningMessageLen  = 500

	DefaultAutoBlockThreshold = 3
	DefaultBlockDurationHours = 24
)

// BannedTerm is one lexicon entry. Word and every variation are lowercase
// and unique across the whole lexicon.
type BannedTerm struct {
	ID                 primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Word               string              `bson:"word" json:"word"`
	Variations         []string            `bson:"variations" json:"variations"`
	Category           TermCategory        `bson:"category" json:"category"`
	Severity           Severity            `bson:"severity" json:"severity"`
	WarningMessage     string              `bson:"warningMessage" json:"warningMessage"`
	AutoBlockThreshold int                 `bson:"autoBlockThreshold" json:"autoBlockThreshold"`
	BlockDurationHours int                 `bson:"blockDurationHours" json:"blockDurationHours"`
	IsActive           bool                `bson:"isActive" json:"isActive"`
	ViolationCount     int64               `bson:"violationCount" json:"violationCount"`
	LastViolation      *time.Time          `bson:"lastViolation,omitempty" json:"lastViolation,omitempty"`
	AddedBy            *primitive.ObjectID `bson:"addedBy,omitempty" json:"addedBy,omitempty"`
	CreatedAt          time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// Spellings returns the canonical word followed by its variations, in
// stored order.
func (t *BannedTerm) Spellings() []string {
	out := make([]string, 0, 1+len(t.Variations))
	out = append(out, t.Word)
	return append(out, t.Variations...)
}

// DefaultWarningMessage is used when an admin does not supply one.
func DefaultWarningMessage(s Severity) string {
	switch s {
	case SeverityLow:
		return "Please keep the conversation respectful."
	case SeverityHigh:
		return "Your message contained language that violates our community guidelines. Repeated violations will lead to your account being blocked."
	case SeverityCritical:
		return "Your message contained severely inappropriate language. Further violations will result in an immediate block."
	default:
		return "Your message contained inappropriate language. Please follow our community guidelines."
	}
}
