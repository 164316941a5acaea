package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/whisper/moderation/internal/app"
	"github.com/whisper/moderation/internal/chat"
	"github.com/whisper/moderation/internal/config"
	"github.com/whisper/moderation/internal/moderation"
)

// handleTimeout bounds one moderation check end to end.
const handleTimeout = 10 * time.Second

func main() {
	log.Println("Starting Whisper moderation service...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, "moderator")
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	// Subscribe to moderation check requests. The queue group spreads them
	// across moderator instances.
	err = a.NATS.SubscribeModerationCheck(func(data []byte) {
		var req moderation.ModerationRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Printf("[moderator] failed to unmarshal request: %v", err)
			return
		}
		if req.RequestID == "" {
			req.RequestID = uuid.NewString()
		}

		hctx, hcancel := context.WithTimeout(ctx, handleTimeout)
		defer hcancel()
		resp := check(hctx, a, req)

		respData, err := json.Marshal(resp)
		if err != nil {
			log.Printf("[moderator] failed to marshal result: %v", err)
			return
		}
		if err := a.NATS.PublishModerationResult(req.UserID, respData); err != nil {
			log.Printf("[moderator] failed to publish result: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to moderation checks: %v", err)
	}

	log.Printf("Whisper moderation service running")
	log.Printf("  redis_addr: %s", cfg.Redis.Addr)
	log.Printf("  nats_url:   %s", config.Redact(cfg.NATS.URL))

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)
}

// check runs one request through the send-permission check and the
// engine. Failures are reported in the result's Error field.
func check(ctx context.Context, a *app.App, req moderation.ModerationRequest) moderation.ModerationResult {
	ev, err := chat.NewMessageEvent(req.UserID, req.ChatID, req.MessageID, req.Text)
	if err != nil {
		out := moderation.NewModerationResult(req, nil)
		out.Error = err.Error()
		return out
	}

	decision, err := a.Bans.CanSend(ctx, ev.UserID)
	if err != nil {
		log.Printf("[moderator] can-send user=%s: %v", req.UserID, err)
		out := moderation.NewModerationResult(req, nil)
		out.Error = "send permission check failed"
		return out
	}
	if !decision.Allowed {
		out := moderation.NewModerationResult(req, nil)
		out.Blocked = true
		out.BlockedUntil = decision.BlockedUntil
		out.BlockMessage = decision.Message
		return out
	}

	res, err := a.Engine.HandleMessage(ctx, ev)
	out := moderation.NewModerationResult(req, res)
	if err != nil {
		log.Printf("[moderator] request=%s user=%s: %v", req.RequestID, req.UserID, err)
		out.Error = err.Error()
		return out
	}
	if out.Flagged {
		log.Printf("[moderator] FLAGGED request=%s user=%s chat=%s blocked=%t",
			req.RequestID, req.UserID, req.ChatID, out.Blocked)
	}
	return out
}
