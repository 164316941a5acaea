package moderation

import (
	"fmt"
	"time"

	"github.com/whisper/moderation/internal/models"
)

// DefaultWindow is the rolling window over which warnings count toward a
// term's auto-block threshold.
const DefaultWindow = 30 * 24 * time.Hour

// Policy is the escalation policy: a user whose rolling warning count
// reaches the triggering term's threshold is blocked for the term's
// configured duration.
type Policy struct {
	Window time.Duration
}

// Since is the start of the rolling window ending at now.
func (p Policy) Since(now time.Time) time.Time {
	return now.Add(-p.Window)
}

// ShouldBlock reports whether count warnings reach the term's threshold.
func (p Policy) ShouldBlock(count int, term *models.BannedTerm) bool {
	return term.AutoBlockThreshold > 0 && count >= term.AutoBlockThreshold
}

func (p Policy) windowDays() int {
	return int(p.Window / (24 * time.Hour))
}

// BlockReason is the admin-facing reason stored on the restriction.
func (p Policy) BlockReason(count int, term *models.BannedTerm) string {
	return fmt.Sprintf("Automatic block: %d violations in %d days reached the threshold of %d for banned word %q",
		count, p.windowDays(), term.AutoBlockThreshold, term.Word)
}
