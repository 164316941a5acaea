// Package jobs runs the periodic moderation sweeps.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"
)

// DefaultSweepInterval keeps low-severity warnings (7 days) from lingering
// long past their expiry.
const DefaultSweepInterval = time.Hour

// MaxSweepInterval is the shortest warning lifetime; sweeping less often
// than this lets stale warnings inflate rolling counts.
const MaxSweepInterval = 7 * 24 * time.Hour

// WarningSweeper expires warnings past their expiresAt.
type WarningSweeper interface {
	ExpireSweep(ctx context.Context) (int64, error)
}

// BlockSweeper clears lapsed restrictions.
type BlockSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// SweepResult is the outcome of one pass.
type SweepResult struct {
	WarningsExpired int64 `json:"warningsExpired"`
	BlocksCleared   int64 `json:"blocksCleared"`
}

// Sweeper runs ExpireSweep then SweepExpired on an interval.
type Sweeper struct {
	warnings WarningSweeper
	blocks   BlockSweeper
	interval time.Duration
}

// NewSweeper creates a sweeper. interval <= 0 uses DefaultSweepInterval and
// values above MaxSweepInterval are capped.
func NewSweeper(warnings WarningSweeper, blocks BlockSweeper, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if interval > MaxSweepInterval {
		log.Printf("[sweeper] interval %v exceeds %v, capping", interval, MaxSweepInterval)
		interval = MaxSweepInterval
	}
	return &Sweeper{warnings: warnings, blocks: blocks, interval: interval}
}

// SweepOnce runs both sweeps. The block sweep still runs when the warning
// sweep fails; the first error is returned.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	var firstErr error

	n, err := s.warnings.ExpireSweep(ctx)
	if err != nil {
		firstErr = fmt.Errorf("jobs: warning sweep: %w", err)
	}
	res.WarningsExpired = n

	n, err = s.blocks.SweepExpired(ctx)
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("jobs: block sweep: %w", err)
	}
	res.BlocksCleared = n

	return res, firstErr
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("[sweeper] started interval=%v", s.interval)
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("[sweeper] stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	res, err := s.SweepOnce(ctx)
	if err != nil {
		log.Printf("[sweeper] %v", err)
	}
	if res.WarningsExpired > 0 || res.BlocksCleared > 0 {
		log.Printf("[sweeper] expired %d warnings, cleared %d blocks", res.WarningsExpired, res.BlocksCleared)
	}
}
