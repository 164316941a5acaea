package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIs_MatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("ban: block: %w", ErrAlreadyBlocked)
	if !errors.Is(wrapped, ErrAlreadyBlocked) {
		t.Fatal("wrapped sentinel should match")
	}

	custom := Conflict(ErrDuplicateTerm, "spelling %q is used by another term", "spam")
	if !errors.Is(custom, ErrDuplicateTerm) {
		t.Error("custom conflict should match its sentinel")
	}
	if errors.Is(custom, ErrAlreadyBlocked) {
		t.Error("custom conflict must not match an unrelated sentinel")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("bad %s", "severity"), KindValidation},
		{"not found", ErrUserNotFound, KindNotFound},
		{"conflict wrapped", fmt.Errorf("x: %w", ErrNotBlocked), KindConflict},
		{"state", ErrCannotAppeal, KindState},
		{"plain", errors.New("boom"), KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}
