package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/whisper/moderation/internal/apperrors"
	"github.com/whisper/moderation/internal/chat"
	"github.com/whisper/moderation/internal/lexicon"
	"github.com/whisper/moderation/internal/models"
	"github.com/whisper/moderation/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestHandleMessage_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.addTerm(t, lexicon.Input{Word: "spam", AutoBlockThreshold: 2, Severity: models.SeverityMedium, BlockDurationHours: 24})
	uid := env.addUser()
	chatID := primitive.NewObjectID()
	ctx := context.Background()

	send := func(text string) *Result {
		t.Helper()
		d, err := env.bans.CanSend(ctx, uid)
		if err != nil {
			t.Fatalf("CanSend() error: %v", err)
		}
		if !d.Allowed {
			return nil
		}
		msgID := primitive.NewObjectID()
		res, err := env.engine.HandleMessage(ctx, chat.MessageEvent{UserID: uid, ChatID: &chatID, MessageID: &msgID, Text: text})
		if err != nil {
			t.Fatalf("HandleMessage(%q) error: %v", text, err)
		}
		return res
	}

	r1 := send("this is spam")
	if r1 == nil || !r1.Flagged || r1.Blocked {
		t.Fatalf("first message = %+v, want flagged and not blocked", r1)
	}
	if r1.Warning == nil || r1.Warning.Chat == nil || *r1.Warning.Chat != chatID || r1.Warning.ViolatedMessage == nil {
		t.Errorf("warning should link chat and message: %+v", r1.Warning)
	}
	if r1.MaskedText != "this is ****" {
		t.Errorf("MaskedText = %q", r1.MaskedText)
	}

	env.advance(time.Minute)
	r2 := send("more spam here")
	if r2 == nil || !r2.Flagged || !r2.Blocked {
		t.Fatalf("second message = %+v, want flagged and blocked", r2)
	}
	want := env.now.Add(24 * time.Hour)
	if r2.BlockedUntil == nil || !r2.BlockedUntil.Equal(want) {
		t.Errorf("BlockedUntil = %v, want %v", r2.BlockedUntil, want)
	}

	if r3 := send("hello again"); r3 != nil {
		t.Errorf("third send while blocked reached the engine: %+v", r3)
	}

	env.advance(25 * time.Hour)
	r4 := send("hello again")
	if r4 == nil || r4.Flagged {
		t.Errorf("send after block lapsed = %+v, want clean delivery", r4)
	}
}

func TestHandleMessage_Clean(t *testing.T) {
	env := newTestEnv(t)
	env.addTerm(t, lexicon.Input{Word: "rude"})
	uid := env.addUser()

	res, err := env.engine.HandleMessage(context.Background(), chat.MessageEvent{UserID: uid, Text: "have a nice day"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Flagged || res.Warning != nil || res.Blocked {
		t.Errorf("clean result = %+v", res)
	}
	if res.MaskedText != "have a nice day" {
		t.Errorf("MaskedText = %q, want original", res.MaskedText)
	}
	list, _ := env.warnings.FindByUser(context.Background(), uid, repositories.WarningFilter{})
	if len(list) != 0 {
		t.Errorf("clean message created %d warnings", len(list))
	}
}

func TestHandleMessage_SpamSignalDoesNotEscalate(t *testing.T) {
	env := newTestEnv(t)
	uid := env.addUser()

	res, err := env.engine.HandleMessage(context.Background(), chat.MessageEvent{UserID: uid, Text: "visit http://evil.com now"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Spam.Pattern != "url" {
		t.Errorf("Spam = %+v, want url", res.Spam)
	}
	if res.Flagged || res.Warning != nil {
		t.Errorf("spam heuristics must not create warnings: %+v", res)
	}
}

func TestHandleMessage_MasksEverySpelling(t *testing.T) {
	env := newTestEnv(t)
	env.addTerm(t, lexicon.Input{Word: "idiot", Variations: []string{"id1ot"}, AutoBlockThreshold: 10})

	res, err := env.engine.HandleMessage(context.Background(), chat.MessageEvent{UserID: env.addUser(), Text: "Idiot, total id1ot"})
	if err != nil {
		t.Fatal(err)
	}
	if res.MaskedText != "*****, total *****" {
		t.Errorf("MaskedText = %q", res.MaskedText)
	}
	if res.Variant != "idiot" {
		t.Errorf("Variant = %q, want idiot", res.Variant)
	}
}

func TestHandleMessage_InvalidText(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.HandleMessage(context.Background(), chat.MessageEvent{UserID: env.addUser(), Text: "   "})
	if apperrors.KindOf(err) != apperrors.KindValidation {
		t.Errorf("error = %v, want validation", err)
	}
}
