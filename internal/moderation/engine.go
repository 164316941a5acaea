package moderation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/whisper/moderation/internal/chat"
	"github.com/whisper/moderation/internal/metrics"
	"github.com/whisper/moderation/internal/models"
)

// ActiveTermCounter reports the lexicon size for the summary statistics.
type ActiveTermCounter interface {
	CountActive(ctx context.Context) (int64, error)
}

// Result is what the message path reports back to the sender. MaskedText
// is the text to deliver: the original when clean, asterisked when flagged.
type Result struct {
	Flagged      bool
	Term         *models.BannedTerm
	Variant      string
	Warning      *models.Warning
	Blocked      bool
	BlockedUntil *time.Time
	MaskedText   string
	Spam         SpamSignal
}

// Engine runs one message through scanner, ledger and escalation.
type Engine struct {
	scanner *Scanner
	ledger  *Ledger
	terms   ActiveTermCounter
}

func NewEngine(scanner *Scanner, ledger *Ledger, terms ActiveTermCounter) *Engine {
	return &Engine{scanner: scanner, ledger: ledger, terms: terms}
}

func (e *Engine) Scanner() *Scanner { return e.scanner }
func (e *Engine) Ledger() *Ledger   { return e.ledger }

// HandleMessage moderates one delivered message. A clean message is a
// normal outcome with no side effects. Store failures propagate, including
// a failed block after a threshold was reached.
func (e *Engine) HandleMessage(ctx context.Context, ev chat.MessageEvent) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.ScanLatency.Observe(time.Since(start).Seconds())
	}()

	if err := chat.ValidateMessage(ev.Text); err != nil {
		metrics.MessagesScanned.WithLabelValues("invalid").Inc()
		return nil, err
	}

	res := &Result{MaskedText: ev.Text, Spam: DetectSpam(ev.Text)}
	if res.Spam.Detected() {
		metrics.SpamSignals.WithLabelValues(res.Spam.Pattern).Inc()
	}

	scan, err := e.scanner.Scan(ctx, ev.Text)
	if err != nil {
		return nil, err
	}
	if !scan.Matched {
		metrics.MessagesScanned.WithLabelValues("clean").Inc()
		return res, nil
	}
	metrics.MessagesScanned.WithLabelValues("flagged").Inc()

	res.Flagged = true
	res.Term = scan.Term
	res.Variant = scan.Variant
	for _, sp := range scan.Term.Spellings() {
		res.MaskedText = Mask(res.MaskedText, sp)
	}

	v, err := e.ledger.RecordViolation(ctx, ev.UserID, scan.Term, ev.MessageID, ev.ChatID)
	if v != nil {
		res.Warning = v.Warning
		if v.Restriction != nil {
			res.Blocked = true
			res.BlockedUntil = v.Restriction.BlockedUntil
		}
	}
	if err != nil {
		return res, err
	}

	log.Printf("[moderation] flagged user=%s term=%q variant=%q warning=%s count=%d blocked=%t",
		ev.UserID.Hex(), scan.Term.Word, scan.Variant, res.Warning.ID.Hex(), res.Warning.UserWarningCount, res.Blocked)
	return res, nil
}

// ExpireSweep is the warning half of the periodic sweep.
func (e *Engine) ExpireSweep(ctx context.Context) (int64, error) {
	return e.ledger.ExpireSweep(ctx)
}

// Stats is the admin moderation summary.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	s, err := e.ledger.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	if e.terms != nil {
		if s.ActiveTerms, err = e.terms.CountActive(ctx); err != nil {
			return Stats{}, fmt.Errorf("moderation: stats terms: %w", err)
		}
	}
	return s, nil
}
