// Package chat holds the inbound message checks shared by the moderation
// entry points (NATS consumer and HTTP scan endpoint).
package chat

import (
	"strings"
	"unicode/utf8"

	"github.com/whisper/moderation/internal/apperrors"
)

const (
	MaxMessageBytes = 8192 // 8KB max payload
	MaxTextChars    = 2000 // max character count
)

// ValidateMessage checks that a chat message meets content requirements.
func ValidateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperrors.Validation("message text is empty")
	}
	if len(text) > MaxMessageBytes {
		return apperrors.Validation("message exceeds %d byte limit", MaxMessageBytes)
	}
	if !utf8.ValidString(text) {
		return apperrors.Validation("message contains invalid UTF-8")
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return apperrors.Validation("message exceeds %d character limit", MaxTextChars)
	}
	return nil
}
