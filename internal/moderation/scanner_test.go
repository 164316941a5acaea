package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/whisper/moderation/internal/lexicon"
)

func TestScan_WordBoundaries(t *testing.T) {
	env := newTestEnv(t)
	env.addTerm(t, lexicon.Input{Word: "ass"})
	env.addTerm(t, lexicon.Input{Word: "sin"})
	env.addTerm(t, lexicon.Input{Word: "kill yourself"})
	ctx := context.Background()

	tests := []struct {
		name    string
		input   string
		matched bool
		variant string
	}{
		{"embedded in longer word", "assassin", false, ""},
		{"standalone", "you ass", true, "ass"},
		{"with punctuation", "hello, ass!", true, "ass"},
		{"prefix of word", "single", false, ""},
		{"suffix of word", "basin", false, ""},
		{"glued to digit", "ass1", false, ""},
		{"glued to underscore", "_ass", false, ""},
		{"phrase", "just kill yourself now", true, "kill yourself"},
		{"phrase split", "kill and yourself", false, ""},
		{"phrase extended", "kill yourselves", false, ""},
		{"non-ascii neighbour", "éass", false, ""},
		{"clean", "hello world", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.scanner.Scan(ctx, tt.input)
			if err != nil {
				t.Fatalf("Scan() error: %v", err)
			}
			if res.Matched != tt.matched {
				t.Fatalf("Scan(%q).Matched = %t, want %t", tt.input, res.Matched, tt.matched)
			}
			if tt.matched && res.Variant != tt.variant {
				t.Errorf("Scan(%q).Variant = %q, want %q", tt.input, res.Variant, tt.variant)
			}
		})
	}
}

func TestScan_CaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	env.addTerm(t, lexicon.Input{Word: "badword"})

	for _, text := range []string{"badword", "BADWORD", "BaDwOrD", "this is Badword here"} {
		res, err := env.scanner.Scan(context.Background(), text)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Matched || res.Term.Word != "badword" {
			t.Errorf("Scan(%q) = %+v, want match on badword", text, res)
		}
	}
}

func TestScan_Metacharacters(t *testing.T) {
	env := newTestEnv(t)
	env.addTerm(t, lexicon.Input{Word: "a.b"})
	env.addTerm(t, lexicon.Input{Word: "c++", Variations: []string{"(x)", "$$", `a\d`, "[z]*"}})
	ctx := context.Background()

	tests := []struct {
		input   string
		matched bool
		variant string
	}{
		{"literal a.b here", true, "a.b"},
		{"axb", false, ""},
		{"I write c++ daily", true, "c++"},
		{"cc", false, ""},
		{"call (x) now", true, "(x)"},
		{"pay $$ now", true, "$$"},
		{`regex a\d literal`, true, `a\d`},
		{"a1", false, ""},
		{"see [z]* there", true, "[z]*"},
		{"zzz", false, ""},
	}

	for _, tt := range tests {
		res, err := env.scanner.Scan(ctx, tt.input)
		if err != nil {
			t.Fatalf("Scan(%q) error: %v", tt.input, err)
		}
		if res.Matched != tt.matched {
			t.Errorf("Scan(%q).Matched = %t, want %t", tt.input, res.Matched, tt.matched)
			continue
		}
		if tt.matched && res.Variant != tt.variant {
			t.Errorf("Scan(%q).Variant = %q, want %q", tt.input, res.Variant, tt.variant)
		}
	}
}

func TestScan_OverlappingCandidate(t *testing.T) {
	env := newTestEnv(t)
	env.addTerm(t, lexicon.Input{Word: "ab"})

	// The first hit is glued to "a"; the standalone one later must still count.
	res, err := env.scanner.Scan(context.Background(), "aab ab")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Matched {
		t.Error("Scan() missed a boundary match after a glued hit")
	}
}

func TestScan_StoredOrderTieBreak(t *testing.T) {
	env := newTestEnv(t)
	first := env.addTerm(t, lexicon.Input{Word: "zeta", Variations: []string{"z3ta", "zzeta"}})
	env.addTerm(t, lexicon.Input{Word: "alpha"})

	res, err := env.scanner.Scan(context.Background(), "alpha zzeta z3ta")
	if err != nil {
		t.Fatal(err)
	}
	if res.Term.ID != first.ID {
		t.Errorf("Term = %q, want the first stored term %q", res.Term.Word, first.Word)
	}
	if res.Variant != "z3ta" {
		t.Errorf("Variant = %q, want first stored variant z3ta", res.Variant)
	}
}

func TestScan_ViolationCounter(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerm(t, lexicon.Input{Word: "darn"})
	ctx := context.Background()

	for _, text := range []string{"darn", "clean", "oh darn it"} {
		if _, err := env.scanner.Scan(ctx, text); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := env.lexicon.Get(ctx, term.ID)
	if got.ViolationCount != 2 {
		t.Errorf("ViolationCount = %d, want 2", got.ViolationCount)
	}
	if got.LastViolation == nil || !got.LastViolation.Equal(env.now) {
		t.Errorf("LastViolation = %v, want %v", got.LastViolation, env.now)
	}
}

func TestScan_InactiveTermsAndInvalidation(t *testing.T) {
	env := newTestEnv(t)
	term := env.addTerm(t, lexicon.Input{Word: "heck"})
	ctx := context.Background()

	if res, _ := env.scanner.Scan(ctx, "heck"); !res.Matched {
		t.Fatal("active term should match")
	}
	if _, err := env.lexicon.Deactivate(ctx, term.ID, nil); err != nil {
		t.Fatal(err)
	}
	if res, _ := env.scanner.Scan(ctx, "heck"); res.Matched {
		t.Error("deactivated term should not match after invalidation")
	}
}

func TestScan_TTLReload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A scanner that does not receive change hooks only sees new terms
	// once its cached set goes stale.
	detached := NewScanner(env.lexicon, time.Minute)
	detached.now = func() time.Time { return env.now }
	if res, _ := detached.Scan(ctx, "fiddlesticks"); res.Matched {
		t.Fatal("empty lexicon matched")
	}
	env.addTerm(t, lexicon.Input{Word: "fiddlesticks"})

	if res, _ := detached.Scan(ctx, "fiddlesticks"); res.Matched {
		t.Error("cached set should still be served before TTL")
	}
	env.advance(2 * time.Minute)
	if res, _ := detached.Scan(ctx, "fiddlesticks"); !res.Matched {
		t.Error("stale set should reload after TTL")
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		text, spelling, want string
	}{
		{"you ass", "ass", "you ***"},
		{"ASS and ass", "ass", "*** and ***"},
		{"assassin ass", "ass", "assassin ***"},
		{"spam spam", "spam", "**** ****"},
		{"a.b axb", "a.b", "*** axb"},
		{"clean", "ass", "clean"},
		{"héllo", "héllo", "*****"},
		{"x", "", "x"},
	}
	for _, tt := range tests {
		if got := Mask(tt.text, tt.spelling); got != tt.want {
			t.Errorf("Mask(%q, %q) = %q, want %q", tt.text, tt.spelling, got, tt.want)
		}
	}
}
