// Command migrate manages the audit trail schema.
//
//	migrate up
//	migrate down [steps]
//	migrate version
package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/whisper/moderation/internal/audit"
	"github.com/whisper/moderation/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate up|down [steps]|version")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Postgres.DSN == "" {
		log.Fatal("POSTGRES_DSN is not set")
	}

	db, err := audit.Open(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		if err := audit.MigrateUp(db); err != nil {
			log.Fatal(err)
		}
		log.Println("migrations applied")
	case "down":
		steps := 1
		if len(os.Args) > 2 {
			if steps, err = strconv.Atoi(os.Args[2]); err != nil || steps < 1 {
				log.Fatalf("invalid steps %q", os.Args[2])
			}
		}
		if err := audit.MigrateDown(db, steps); err != nil {
			log.Fatal(err)
		}
		log.Printf("rolled back %d migration(s)", steps)
	case "version":
		v, dirty, err := audit.Version(db)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("version=%d dirty=%t", v, dirty)
	default:
		log.Fatalf("unknown command %q", os.Args[1])
	}
}
