package clock

import (
	"strings"
	"testing"
	"time"
)

func TestNowMSFrozen(t *testing.T) {
	frozen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewFrozen(frozen)
	if got, want := c.NowMS(), frozen.UnixMilli(); got != want {
		t.Errorf("NowMS() = %d, want %d", got, want)
	}
}

func TestNewIDUniqueAndPrefixed(t *testing.T) {
	c := New()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := c.NewID("msg")
		if !strings.HasPrefix(id, "msg-") {
			t.Fatalf("NewID() = %q, missing prefix", id)
		}
		if seen[id] {
			t.Fatalf("NewID() produced duplicate: %q", id)
		}
		seen[id] = true
	}
}
