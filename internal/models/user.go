package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BlockOrigin records what triggered a restriction.
type BlockOrigin string

const (
	BlockManual         BlockOrigin = "manual"
	BlockAutomatic      BlockOrigin = "automatic"
	BlockChatMonitoring BlockOrigin = "chat_monitoring"
)

func (o BlockOrigin) Valid() bool {
	switch o {
	case BlockManual, BlockAutomatic, BlockChatMonitoring:
		return true
	}
	return false
}

// BlockedIdentifiers is the network identity captured by a full block.
type BlockedIdentifiers struct {
	Phone     string   `bson:"phone,omitempty" json:"phone,omitempty"`
	IPs       []string `bson:"ips" json:"ips"`
	DeviceIDs []string `bson:"deviceIds" json:"deviceIds"`
}

// Empty reports whether the bundle carries no identifier at all.
func (b *BlockedIdentifiers) Empty() bool {
	return b == nil || (b.Phone == "" && len(b.IPs) == 0 && len(b.DeviceIDs) == 0)
}

// User is the slice of the shared users collection the moderation engine
// reads and writes. Other profile fields are owned by the profile service.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Phone        string             `bson:"phone,omitempty" json:"phone,omitempty"`
	LastLoginIP  string             `bson:"lastLoginIp,omitempty" json:"lastLoginIp,omitempty"`
	LastDeviceID string             `bson:"lastDeviceId,omitempty" json:"lastDeviceId,omitempty"`

	IsBlocked          bool                `bson:"isBlocked" json:"isBlocked"`
	BlockedUntil       *time.Time          `bson:"blockedUntil" json:"blockedUntil,omitempty"`
	BlockedAt          *time.Time          `bson:"blockedAt,omitempty" json:"blockedAt,omitempty"`
	BlockReason        string              `bson:"blockReason,omitempty" json:"blockReason,omitempty"`
	BlockedBy          *primitive.ObjectID `bson:"blockedBy,omitempty" json:"blockedBy,omitempty"`
	BlockOrigin        BlockOrigin         `bson:"blockOrigin,omitempty" json:"blockOrigin,omitempty"`
	BlockedIdentifiers *BlockedIdentifiers `bson:"blockedIdentifiers,omitempty" json:"blockedIdentifiers,omitempty"`
}

// Restriction is the restriction state embedded in a user document.
type Restriction struct {
	IsBlocked          bool                `json:"isBlocked"`
	Permanent          bool                `json:"permanent,omitempty"`
	BlockedUntil       *time.Time          `json:"blockedUntil,omitempty"`
	BlockedAt          *time.Time          `json:"blockedAt,omitempty"`
	Reason             string              `json:"reason,omitempty"`
	BlockedBy          *primitive.ObjectID `json:"blockedBy,omitempty"`
	Origin             BlockOrigin         `json:"origin,omitempty"`
	BlockedIdentifiers *BlockedIdentifiers `json:"blockedIdentifiers,omitempty"`
}

// ActiveAt reports whether the restriction is in force at now. A nil
// BlockedUntil on a blocked user is a permanent block; a past BlockedUntil
// is treated as lifted even if the flag has not been swept yet.
func (r Restriction) ActiveAt(now time.Time) bool {
	if !r.IsBlocked {
		return false
	}
	if r.BlockedUntil == nil {
		return true
	}
	return r.BlockedUntil.After(now)
}

// Restriction extracts the restriction fields from the user document.
func (u *User) Restriction() Restriction {
	return Restriction{
		IsBlocked:          u.IsBlocked,
		Permanent:          u.IsBlocked && u.BlockedUntil == nil,
		BlockedUntil:       u.BlockedUntil,
		BlockedAt:          u.BlockedAt,
		Reason:             u.BlockReason,
		BlockedBy:          u.BlockedBy,
		Origin:             u.BlockOrigin,
		BlockedIdentifiers: u.BlockedIdentifiers,
	}
}
