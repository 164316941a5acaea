// Package app wires configuration into the running moderation services:
// store connections, the lexicon, scanner, block manager, ledger, engine
// and sweeper. cmd/api and cmd/moderator share it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/whisper/moderation/internal/audit"
	"github.com/whisper/moderation/internal/ban"
	"github.com/whisper/moderation/internal/config"
	"github.com/whisper/moderation/internal/jobs"
	"github.com/whisper/moderation/internal/lexicon"
	"github.com/whisper/moderation/internal/messaging"
	"github.com/whisper/moderation/internal/moderation"
	"github.com/whisper/moderation/internal/repositories"
	"github.com/whisper/moderation/internal/repositories/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
)

// App holds the connected backends and the services built on them.
type App struct {
	Config *config.Config

	Mongo *mongo.Client
	Redis *redis.Client
	NATS  *messaging.NATSClient
	SQL   *sql.DB // nil when the audit trail is disabled

	Audit   repositories.AuditLog
	Lexicon *lexicon.Service
	Scanner *moderation.Scanner
	Bans    *ban.Manager
	Ledger  *moderation.Ledger
	Engine  *moderation.Engine
	Sweeper *jobs.Sweeper
}

// New connects every backend and builds the services. On failure the
// connections opened so far are closed.
func New(ctx context.Context, cfg *config.Config, clientName string) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Mongo, err = mongodb.Connect(ctx, cfg.MongoDB.URI); err != nil {
		return nil, err
	}
	db := a.Mongo.Database(cfg.MongoDB.Database)
	if err = mongodb.EnsureIndexes(ctx, db); err != nil {
		return nil, err
	}

	a.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = a.Redis.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return nil, fmt.Errorf("app: redis ping: %w", err)
	}

	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATS.URL
	natsConfig.Name = cfg.NATS.Name + "-" + clientName
	if a.NATS, err = messaging.NewNATSClient(natsConfig); err != nil {
		return nil, err
	}

	if cfg.Postgres.DSN != "" {
		if a.SQL, err = audit.Open(ctx, cfg.Postgres.DSN); err != nil {
			return nil, err
		}
		if err = audit.MigrateUp(a.SQL); err != nil {
			return nil, err
		}
		a.Audit = audit.NewStore(a.SQL)
	} else {
		log.Println("[app] POSTGRES_DSN not set, audit trail disabled")
	}

	users := mongodb.NewUserRepository(db)
	a.Lexicon = lexicon.NewService(mongodb.NewTermRepository(db), a.Audit, a.NATS)
	a.Scanner = moderation.NewScanner(a.Lexicon, cfg.Moderation.LexiconTTL)
	a.Lexicon.OnChange(a.Scanner.Invalidate)
	a.Bans = ban.NewManager(users, ban.NewCache(a.Redis), a.Audit, a.NATS)
	a.Ledger = moderation.NewLedger(mongodb.NewWarningRepository(db), users, a.Bans, a.Audit, cfg.Moderation.Window())
	a.Engine = moderation.NewEngine(a.Scanner, a.Ledger, a.Lexicon)
	a.Sweeper = jobs.NewSweeper(a.Engine, a.Bans, cfg.Moderation.SweepInterval)

	// Other instances publish lexicon changes; drop the compiled set so the
	// next scan reloads it.
	if err = a.NATS.SubscribeLexiconChanged(func([]byte) {
		a.Scanner.Invalidate()
	}); err != nil {
		return nil, err
	}
	return a, nil
}

// Ready pings the primary store and the cache.
func (a *App) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.Mongo.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongodb: %w", err)
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close releases every connection that was opened.
func (a *App) Close() {
	if a.NATS != nil {
		a.NATS.Close()
	}
	if a.SQL != nil {
		a.SQL.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Mongo.Disconnect(ctx); err != nil {
			log.Printf("[app] mongodb disconnect: %v", err)
		}
	}
}
