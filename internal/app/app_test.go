package app

import "testing"

func TestClose_PartiallyBuilt(t *testing.T) {
	// New calls Close on whatever it managed to open before failing.
	(&App{}).Close()
}
