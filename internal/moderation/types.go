package moderation

import (
	"time"

	"github.com/whisper/moderation/internal/ban"
	"github.com/whisper/moderation/internal/models"
)

// ModerationRequest is published to moderation.check by the chat service
// after a message has been delivered.
type ModerationRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	ChatID    string `json:"chat_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Text      string `json:"text"`
	Ts        int64  `json:"ts"`
}

// ModerationResult is published back on moderation.result.<user_id>.
// WarningMessage is the only policy text shown to the sender.
type ModerationResult struct {
	RequestID      string     `json:"request_id"`
	UserID         string     `json:"user_id"`
	ChatID         string     `json:"chat_id,omitempty"`
	MessageID      string     `json:"message_id,omitempty"`
	Flagged        bool       `json:"flagged"`
	WarningID      string     `json:"warning_id,omitempty"`
	WarningMessage string     `json:"warning_message,omitempty"`
	Blocked        bool       `json:"blocked"`
	BlockedUntil   *time.Time `json:"blocked_until,omitempty"`
	BlockMessage   string     `json:"block_message,omitempty"`
	MaskedText     string     `json:"masked_text,omitempty"`
	Spam           string     `json:"spam,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// NewModerationResult builds the reply for req. The matched term itself
// is never echoed back; the sender only sees its warning message.
func NewModerationResult(req ModerationRequest, res *Result) ModerationResult {
	out := ModerationResult{
		RequestID: req.RequestID,
		UserID:    req.UserID,
		ChatID:    req.ChatID,
		MessageID: req.MessageID,
	}
	if res == nil {
		return out
	}
	out.Flagged = res.Flagged
	out.MaskedText = res.MaskedText
	out.Spam = res.Spam.Pattern
	if res.Warning != nil {
		out.WarningID = res.Warning.ID.Hex()
		out.WarningMessage = res.Warning.WarningMessage
	}
	if res.Blocked {
		out.Blocked = true
		out.BlockedUntil = res.BlockedUntil
		out.BlockMessage = ban.BlockedMessage(models.Restriction{IsBlocked: true, BlockedUntil: res.BlockedUntil})
	}
	return out
}
