// Package archive records session lifecycle events in the backend's
// relational store. It is a side-effect hook: the pairing state machine
// never reads from it and never blocks on it.
package archive

import (
	"context"
	"time"
)

// StartedSession is the record written when a session becomes active.
type StartedSession struct {
	SessionID  string
	Caretaker  int64
	Helpseeker int64
	StartedAt  time.Time
	Duration   time.Duration
}

// Recorder receives lifecycle events. Implementations must tolerate
// duplicate and out-of-order calls; the caller guarantees neither.
type Recorder interface {
	SessionStarted(ctx context.Context, s StartedSession) error
	SessionEnded(ctx context.Context, sessionID, reason string, endedAt time.Time) error
}

// Noop discards all events. Used when no DATABASE_URL is configured.
type Noop struct{}

func (Noop) SessionStarted(context.Context, StartedSession) error { return nil }

func (Noop) SessionEnded(context.Context, string, string, time.Time) error { return nil }
