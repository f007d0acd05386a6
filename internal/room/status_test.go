package room

import (
	"testing"
	"time"
)

func TestNewPausedInitialState(t *testing.T) {
	s := NewPaused(42.5, 3)
	if s.Kind() != KindPaused {
		t.Fatalf("Kind() = %v, want KindPaused", s.Kind())
	}
	if s.VideoTime() != 42.5 {
		t.Errorf("VideoTime() = %v, want 42.5", s.VideoTime())
	}
	if s.CurrentFileInd() != 3 {
		t.Errorf("CurrentFileInd() = %v, want 3", s.CurrentFileInd())
	}
}

func TestSetPlayAdvancesVideoTime(t *testing.T) {
	s := NewPaused(10, 0)
	s.SetPlay()
	if s.Kind() != KindPlaying {
		t.Fatalf("Kind() = %v, want KindPlaying", s.Kind())
	}

	time.Sleep(20 * time.Millisecond)
	if got := s.VideoTime(); got <= 10 {
		t.Errorf("VideoTime() = %v, want > 10 after playing", got)
	}
}

func TestSetPlayNoopWhenNotPaused(t *testing.T) {
	s := NewPaused(10, 0)
	s.SetPlay()
	first := s.VideoTime()
	s.SetPlay() // already playing, must not reset the reference clock
	if s.Kind() != KindPlaying {
		t.Fatalf("Kind() = %v, want KindPlaying", s.Kind())
	}
	if s.VideoTime() < first {
		t.Errorf("VideoTime() went backwards after redundant SetPlay")
	}
}

func TestSetPauseFreezesVideoTime(t *testing.T) {
	s := NewPaused(10, 0)
	s.SetPlay()
	time.Sleep(20 * time.Millisecond)
	s.SetPause()

	if s.Kind() != KindPaused {
		t.Fatalf("Kind() = %v, want KindPaused", s.Kind())
	}
	v1 := s.VideoTime()
	time.Sleep(20 * time.Millisecond)
	if v2 := s.VideoTime(); v2 != v1 {
		t.Errorf("VideoTime() changed while paused: %v -> %v", v1, v2)
	}
}

// SetPause must transition unconditionally, even out of Suspended — the
// original's isinstance guard is dead code, and this follows what runs.
func TestSetPauseUnconditionalFromSuspended(t *testing.T) {
	s := NewPaused(10, 0)
	s.SetPlay()
	s.AddSuspendBy(1)
	if s.Kind() != KindSuspended {
		t.Fatalf("Kind() = %v, want KindSuspended", s.Kind())
	}

	s.SetPause()
	if s.Kind() != KindPaused {
		t.Fatalf("Kind() = %v, want KindPaused after SetPause from Suspended", s.Kind())
	}
}

func TestSetCurrentFileIndResetsPositionAndForcesPause(t *testing.T) {
	s := NewPaused(10, 0)
	s.SetPlay()

	s.SetCurrentFileInd(1)
	if s.Kind() != KindPaused {
		t.Errorf("Kind() = %v, want KindPaused after file change", s.Kind())
	}
	if s.VideoTime() != 0 {
		t.Errorf("VideoTime() = %v, want 0 after file change", s.VideoTime())
	}
	if s.CurrentFileInd() != 1 {
		t.Errorf("CurrentFileInd() = %v, want 1", s.CurrentFileInd())
	}
}

func TestSetCurrentFileIndNoopWhenUnchanged(t *testing.T) {
	s := NewPaused(10, 2)
	s.SetCurrentFileInd(2)
	if s.VideoTime() != 10 {
		t.Errorf("VideoTime() = %v, want unchanged 10", s.VideoTime())
	}
}

func TestAddRemoveSuspendByResumesToPriorKind(t *testing.T) {
	s := NewPaused(5, 0)
	s.SetPlay()

	s.AddSuspendBy(1)
	s.AddSuspendBy(2)
	if s.Kind() != KindSuspended {
		t.Fatalf("Kind() = %v, want KindSuspended", s.Kind())
	}

	s.RemoveSuspendBy(1)
	if s.Kind() != KindSuspended {
		t.Fatalf("Kind() = %v, want still KindSuspended with one suspender left", s.Kind())
	}

	s.RemoveSuspendBy(2)
	if s.Kind() != KindPlaying {
		t.Fatalf("Kind() = %v, want KindPlaying after last suspender removed", s.Kind())
	}
}

func TestRemoveSuspendByTolerantOfAbsentID(t *testing.T) {
	s := NewPaused(5, 0)
	s.AddSuspendBy(1)
	s.RemoveSuspendBy(999) // not a suspender; must not panic or change state
	if s.Kind() != KindSuspended {
		t.Fatalf("Kind() = %v, want KindSuspended unaffected", s.Kind())
	}
}

// A viewer joining a Playing room must resume to Paused once every
// suspender clears, not back to Playing.
func TestSuspendForJoinAlwaysTargetsPaused(t *testing.T) {
	s := NewPaused(5, 0)
	s.SetPlay()

	s.SuspendForJoin(1)
	if s.Kind() != KindSuspended {
		t.Fatalf("Kind() = %v, want KindSuspended", s.Kind())
	}

	s.RemoveSuspendBy(1)
	if s.Kind() != KindPaused {
		t.Fatalf("Kind() = %v, want KindPaused after the joining suspender clears", s.Kind())
	}
}

// SuspendForJoin must override resumeTarget even when the room was already
// Suspended by another connection with a different target.
func TestSuspendForJoinOverridesExistingResumeTarget(t *testing.T) {
	s := NewPaused(5, 0)
	s.SetPlay()
	s.AddSuspendBy(1) // resumeTarget = Playing

	s.SuspendForJoin(2)
	s.RemoveSuspendBy(1)
	s.RemoveSuspendBy(2)
	if s.Kind() != KindPaused {
		t.Fatalf("Kind() = %v, want KindPaused once all suspenders (including the joiner) clear", s.Kind())
	}
}

func TestAddSuspendByIdempotent(t *testing.T) {
	s := NewPaused(5, 0)
	s.AddSuspendBy(1)
	s.AddSuspendBy(1)
	s.RemoveSuspendBy(1)
	if s.Kind() != KindPaused {
		t.Fatalf("Kind() = %v, want KindPaused once the only suspender id is removed", s.Kind())
	}
}
