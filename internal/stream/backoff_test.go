package stream

import (
	"testing"
	"time"
)

func TestBackoff_GrowsToCap(t *testing.T) {
	b := newBackoff(time.Second, 30*time.Second)

	// Base progression: 1s, 2s, 4s, 8s, 16s, 30s, 30s, ...
	wantBase := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}

	for i, base := range wantBase {
		got := b.Next()
		if got < base/2 || got > base {
			t.Errorf("Next() #%d = %v, want within [%v, %v]", i, got, base/2, base)
		}
	}
}

func TestBackoff_ResetRestartsProgression(t *testing.T) {
	b := newBackoff(time.Second, 30*time.Second)

	for i := 0; i < 5; i++ {
		b.Next()
	}
	b.Reset()

	got := b.Next()
	if got > time.Second {
		t.Errorf("Next() after Reset = %v, want <= initial 1s", got)
	}
}
