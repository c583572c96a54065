package clock

import (
	"testing"
	"time"
)

func TestFake_AdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)
	if !f.Now().Equal(start) {
		t.Fatalf("want %v got %v", start, f.Now())
	}
	f.Advance(90 * time.Second)
	if got := f.Now().Sub(start); got != 90*time.Second {
		t.Fatalf("advance: got %v", got)
	}
	f.Set(start)
	if !f.Now().Equal(start) {
		t.Fatalf("set: got %v", f.Now())
	}
}

func TestReal_IsUTC(t *testing.T) {
	if loc := (Real{}).Now().Location(); loc != time.UTC {
		t.Fatalf("want UTC, got %v", loc)
	}
}
