package chat

import (
	"github.com/whisper/moderation/internal/apperrors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MessageEvent is "user U sent text T in chat C" as handed to the
// moderation engine. ChatID and MessageID are optional links.
type MessageEvent struct {
	UserID    primitive.ObjectID
	ChatID    *primitive.ObjectID
	MessageID *primitive.ObjectID
	Text      string
}

func optionalID(field, hex string) (*primitive.ObjectID, error) {
	if hex == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return nil, apperrors.Validation("invalid %s %q", field, hex)
	}
	return &id, nil
}

// NewMessageEvent builds an event from the hex identifiers carried on the
// wire. userID is required.
func NewMessageEvent(userID, chatID, messageID, text string) (MessageEvent, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return MessageEvent{}, apperrors.Validation("invalid user_id %q", userID)
	}
	cid, err := optionalID("chat_id", chatID)
	if err != nil {
		return MessageEvent{}, err
	}
	mid, err := optionalID("message_id", messageID)
	if err != nil {
		return MessageEvent{}, err
	}
	return MessageEvent{UserID: uid, ChatID: cid, MessageID: mid, Text: text}, nil
}
