package room

import (
	"errors"
	"time"
)

// Kind identifies which variant of Status a value carries.
type Kind int

const (
	KindPaused Kind = iota
	KindPlaying
	KindSuspended
)

func (k Kind) String() string {
	switch k {
	case KindPlaying:
		return "playing"
	case KindSuspended:
		return "suspended"
	default:
		return "paused"
	}
}

// ErrEmptySuspenders names the invariant that a Suspended status never has
// an empty suspender set. No method returns it: every path that empties the
// set (RemoveSuspendBy, SetPause, SetCurrentFileInd) leaves Suspended in the
// same call.
var ErrEmptySuspenders = errors.New("room: suspended status with no suspenders")

// Status is a tagged union over Playing, Paused and Suspended, matching the
// data model's VideoStatus. Rather than three separate types implementing a
// common interface, one struct carries every variant's fields and Kind picks
// which are meaningful — Go has no sum types, and a tag field reads far more
// plainly here than a three-way type switch on every access.
type Status struct {
	kind Kind

	// storedTime is the playback position as of the last explicit set. For
	// Playing it is the position at refTime, not the current observable
	// position (see VideoTime).
	storedTime     float64
	currentFileInd int

	// refTime is the monotonic reference clock T0: only meaningful when
	// kind == KindPlaying. VideoTime() for Playing computes
	// storedTime + time.Since(refTime).
	refTime time.Time

	// suspenders holds the connection ids currently holding this room
	// suspended; only meaningful when kind == KindSuspended. Never empty
	// while kind == KindSuspended.
	suspenders map[int]struct{}
	// resumeTarget is which kind to transition to once suspenders empties.
	resumeTarget Kind
}

// NewPaused constructs the initial status for a freshly loaded room.
func NewPaused(videoTime float64, fileInd int) *Status {
	return &Status{kind: KindPaused, storedTime: videoTime, currentFileInd: fileInd}
}

func (s *Status) Kind() Kind          { return s.kind }
func (s *Status) CurrentFileInd() int { return s.currentFileInd }

// VideoTime returns the current observable playback position.
func (s *Status) VideoTime() float64 {
	if s.kind == KindPlaying {
		return s.storedTime + time.Since(s.refTime).Seconds()
	}
	return s.storedTime
}

// SetVideoTime sets the stored playback position to t; if playing, the
// reference clock is reset to now so VideoTime continues to report t plus
// elapsed time from this call.
func (s *Status) SetVideoTime(t float64) {
	s.storedTime = t
	if s.kind == KindPlaying {
		s.refTime = time.Now()
	}
}

// SetCurrentFileInd switches the active file index. Unchanged values are a
// no-op; a real change forces Paused and resets video_time to 0, since the
// old playback position has no meaning against a different file.
func (s *Status) SetCurrentFileInd(fi int) {
	if fi == s.currentFileInd {
		return
	}
	s.currentFileInd = fi
	s.storedTime = 0
	s.kind = KindPaused
	s.suspenders = nil
}

// SetPlay transitions Paused -> Playing, preserving video_time by pinning
// the reference clock to now. Any other state is left unchanged.
func (s *Status) SetPlay() {
	if s.kind != KindPaused {
		return
	}
	s.kind = KindPlaying
	s.refTime = time.Now()
}

// SetPause transitions unconditionally to Paused from any state, preserving
// the current observable video_time.
//
// cooplook-back's status_storage.py has a commented-out isinstance guard that
// would have restricted this to Playing -> Paused; the code that actually
// runs applies it from any state, including Suspended. We follow what runs.
func (s *Status) SetPause() {
	v := s.VideoTime()
	s.kind = KindPaused
	s.storedTime = v
	s.suspenders = nil
}

// AddSuspendBy promotes the status to Suspended (if not already) with
// resumeTarget set to the current kind (defaulting to Playing, matching
// cooplook-back's add_suspend_by), then inserts id. Idempotent per id.
func (s *Status) AddSuspendBy(id int) {
	if s.kind != KindSuspended {
		target := s.kind
		if target != KindPlaying && target != KindPaused {
			target = KindPlaying
		}
		v := s.VideoTime()
		s.resumeTarget = target
		s.storedTime = v
		s.kind = KindSuspended
		s.suspenders = make(map[int]struct{})
	}
	s.suspenders[id] = struct{}{}
}

// SuspendForJoin suspends the room for a newly joined connection, like
// AddSuspendBy, but always pins resumeTarget to Paused rather than the
// current kind. Matches cooplook-back's join path
// (add_suspend_by(conn_id).unsuspend_to(PauseStatus)): a viewer joining a
// Playing room must not cause it to silently resume Playing once every
// suspender clears, it should land back on Paused.
func (s *Status) SuspendForJoin(id int) {
	s.AddSuspendBy(id)
	s.resumeTarget = KindPaused
}

// RemoveSuspendBy removes id from the suspender set, tolerating an absent
// id. If the set becomes empty, the status transitions to resumeTarget,
// preserving video_time and currentFileInd.
func (s *Status) RemoveSuspendBy(id int) {
	if s.kind != KindSuspended {
		return
	}
	delete(s.suspenders, id)
	if len(s.suspenders) == 0 {
		target := s.resumeTarget
		s.kind = target
		if target == KindPlaying {
			s.refTime = time.Now()
		}
		s.suspenders = nil
	}
}

// ToServerCommand yields the (kind, video_time) pair broadcast on every
// accepted state transition.
func (s *Status) ToServerCommand() (Kind, float64) {
	return s.kind, s.VideoTime()
}
