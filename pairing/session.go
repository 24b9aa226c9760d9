package pairing

import (
	"context"
	"time"

	"github.com/quietcircle/pairrelay/wire"
)

// Session is a time-boxed pairing of one caretaker and one helpseeker.
// Owned exclusively by the Coordinator's registry; the cancel func stops
// the session's timer goroutine during teardown.
type Session struct {
	ID         string
	Caretaker  int64
	Helpseeker int64
	StartedAt  time.Time
	Duration   time.Duration

	cancel context.CancelFunc
}

// Partner returns the other participant's id, and whether user is a
// participant at all.
func (s *Session) Partner(user int64) (int64, bool) {
	switch user {
	case s.Caretaker:
		return s.Helpseeker, true
	case s.Helpseeker:
		return s.Caretaker, true
	default:
		return 0, false
	}
}

// RoleOf returns the role user holds in this session.
func (s *Session) RoleOf(user int64) string {
	if user == s.Caretaker {
		return wire.RoleCaretaker
	}
	return wire.RoleHelpseeker
}

// Deadline is the instant the session times out.
func (s *Session) Deadline() time.Time {
	return s.StartedAt.Add(s.Duration)
}
