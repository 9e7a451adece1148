package driver

import (
	"testing"
	"time"

	"github.com/srg/aquabled/internal/protocol"
)

func TestMsgIDSessionAdvances(t *testing.T) {
	s := NewMsgIDSession(24*time.Hour, 1000)
	first := s.Next()
	second := s.Next()
	if first == second {
		t.Fatalf("expected distinct ids, got %s twice", first)
	}
	want, err := protocol.NextMsgID(first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != want {
		t.Errorf("second id = %s, want %s", second, want)
	}
}

func TestMsgIDSessionResetsOnCommandBudget(t *testing.T) {
	s := NewMsgIDSession(24*time.Hour, 2)
	first := s.Next()
	s.Next()
	third := s.Next()
	if third != first {
		t.Errorf("expected reset to recreate %s after budget exhausted, got %s", first, third)
	}
}

func TestMsgIDSessionResetsOnPeriodElapsed(t *testing.T) {
	fakeNow := time.Now()
	s := NewMsgIDSession(time.Minute, 1000)
	s.now = func() time.Time { return fakeNow }
	first := s.Next()

	fakeNow = fakeNow.Add(2 * time.Minute)
	got := s.Next()
	if got != first {
		t.Errorf("expected reset after period elapsed, got %s want %s", got, first)
	}
}
