package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WarningType describes why a warning was issued.
type WarningType string

const (
	WarningBannedWord           WarningType = "banned_word"
	WarningInappropriateContent WarningType = "inappropriate_content"
	WarningHarassment           WarningType = "harassment"
	WarningSpam                 WarningType = "spam"
	WarningOther                WarningType = "other"
)

func (t WarningType) Valid() bool {
	switch t {
	case WarningBannedWord, WarningInappropriateContent, WarningHarassment, WarningSpam, WarningOther:
		return true
	}
	return false
}

// WarningStatus is the warning lifecycle state.
//
//	active -> appealed -> resolved
//	active -> resolved
//	active -> expired
type WarningStatus string

const (
	WarningActive   WarningStatus = "active"
	WarningAppealed WarningStatus = "appealed"
	WarningResolved WarningStatus = "resolved"
	WarningExpired  WarningStatus = "expired"
)

func (s WarningStatus) Valid() bool {
	switch s {
	case WarningActive, WarningAppealed, WarningResolved, WarningExpired:
		return true
	}
	return false
}

// MinAppealReasonLength is enforced at the API boundary.
const MinAppealReasonLength = 10

// Warning is one entry of the moderation ledger.
type Warning struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	User            primitive.ObjectID  `bson:"user" json:"user"`
	WarningType     WarningType         `bson:"warningType" json:"warningType"`
	Severity        Severity            `bson:"severity" json:"severity"`
	BannedWord      *primitive.ObjectID `bson:"bannedWord,omitempty" json:"bannedWord,omitempty"`
	ViolatedMessage *primitive.ObjectID `bson:"violatedMessage,omitempty" json:"violatedMessage,omitempty"`
	Chat            *primitive.ObjectID `bson:"chat,omitempty" json:"chat,omitempty"`
	WarningMessage  string              `bson:"warningMessage" json:"warningMessage"`
	IssuedBy        *primitive.ObjectID `bson:"issuedBy,omitempty" json:"issuedBy,omitempty"`
	IsAutomatic     bool                `bson:"isAutomatic" json:"isAutomatic"`
	Status          WarningStatus       `bson:"status" json:"status"`

	AppealReason   string     `bson:"appealReason,omitempty" json:"appealReason,omitempty"`
	AppealResponse string     `bson:"appealResponse,omitempty" json:"appealResponse,omitempty"`
	AppealedAt     *time.Time `bson:"appealedAt,omitempty" json:"appealedAt,omitempty"`

	ResolvedBy *primitive.ObjectID `bson:"resolvedBy,omitempty" json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time          `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`

	ExpiresAt        time.Time `bson:"expiresAt" json:"expiresAt"`
	UserWarningCount int       `bson:"userWarningCount" json:"userWarningCount"`

	LeadsToBlock       bool   `bson:"leadsToBlock" json:"leadsToBlock"`
	BlockDurationHours int    `bson:"blockDurationHours,omitempty" json:"blockDurationHours,omitempty"`
	BlockReason        string `bson:"blockReason,omitempty" json:"blockReason,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Resolvable reports whether an admin may still resolve the warning.
func (w *Warning) Resolvable() bool {
	return w.Status == WarningActive || w.Status == WarningAppealed
}
