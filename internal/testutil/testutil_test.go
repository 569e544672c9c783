package testutil

import (
	"testing"
	"time"
)

func TestClock(t *testing.T) {
	c := NewClock(time.Time{})
	if !c.Now().Equal(Epoch) {
		t.Fatalf("Now() = %v, want %v", c.Now(), Epoch)
	}
	c.Advance(90 * time.Second)
	if got := c.Now().Sub(Epoch); got != 90*time.Second {
		t.Errorf("advanced by %v, want 90s", got)
	}
	later := Epoch.Add(time.Hour)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Errorf("Now() = %v after Set, want %v", c.Now(), later)
	}
}

func TestScrubAll(t *testing.T) {
	in := "event 2f1c0a4e-8d7b-4c1e-9a55-0b6f3e2d1c00 at 2026-10-19T08:15:00+02:00 took 1.5s in /tmp/work/x  \r\n\n"
	want := "event [UUID] at [TIMESTAMP] took [DURATION] in [WORKDIR]/x"
	if got := ScrubAll(in, "/tmp/work"); got != want {
		t.Errorf("ScrubAll() = %q, want %q", got, want)
	}
}

func TestScrubPaths_EmptyBase(t *testing.T) {
	if got := ScrubPaths("abc", ""); got != "abc" {
		t.Errorf("ScrubPaths() = %q", got)
	}
}

func TestTempFile(t *testing.T) {
	path := TempFile(t, "", "a.yaml", "x: 1\n")
	if path == "" {
		t.Fatal("empty path")
	}
}
