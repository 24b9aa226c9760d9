// Package pairing implements the pairing core: role queues, the matcher,
// the session registry with its reverse index, the per-session timer and
// the relay. All registries are guarded by one mutex, so each inbound
// event is applied atomically before the next is admitted.
package pairing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quietcircle/pairrelay/archive"
	"github.com/quietcircle/pairrelay/metrics"
	"github.com/quietcircle/pairrelay/wire"
)

// archiveTimeout bounds each fire-and-forget recorder call.
const archiveTimeout = 5 * time.Second

// Sender delivers an encoded frame to a user's live connection, silently
// dropping it when the user is gone. Satisfied by *hub.Hub.
type Sender interface {
	Send(user int64, frame []byte)
}

// Options tune a Coordinator. Zero values fall back to the production
// defaults of 300 s sessions with updates every 10 s, a no-op metrics
// recorder and a no-op archive.
type Options struct {
	SessionDuration time.Duration
	TimerInterval   time.Duration
	Metrics         metrics.Recorder
	Recorder        archive.Recorder
	Logger          *slog.Logger
}

// Coordinator owns all pairing state for one process.
type Coordinator struct {
	send     Sender
	metrics  metrics.Recorder
	recorder archive.Recorder
	log      *slog.Logger

	duration time.Duration
	interval time.Duration

	mu        sync.Mutex
	queues    map[string][]int64 // role -> waiting users, FIFO
	queued    map[int64]string   // user -> role it waits under
	sessions  map[string]*Session
	inSession map[int64]string // user -> active session id (reverse index)
}

func NewCoordinator(send Sender, opts Options) *Coordinator {
	if opts.SessionDuration <= 0 {
		opts.SessionDuration = 300 * time.Second
	}
	if opts.TimerInterval <= 0 {
		opts.TimerInterval = 10 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.Recorder == nil {
		opts.Recorder = archive.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Coordinator{
		send:     send,
		metrics:  opts.Metrics,
		recorder: opts.Recorder,
		log:      opts.Logger,
		duration: opts.SessionDuration,
		interval: opts.TimerInterval,
		queues: map[string][]int64{
			wire.RoleCaretaker:  nil,
			wire.RoleHelpseeker: nil,
		},
		queued:    make(map[int64]string),
		sessions:  make(map[string]*Session),
		inSession: make(map[int64]string),
	}
}

// Join enqueues user under role and runs the matcher. Joining while
// already queued under either role, or while in an active session, is a
// no-op: queue membership is single and exclusive.
func (c *Coordinator) Join(user int64, role string) {
	if role != wire.RoleCaretaker && role != wire.RoleHelpseeker {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.queued[user]; ok {
		c.log.Debug("join ignored, already queued", "user", user)
		return
	}
	if _, ok := c.inSession[user]; ok {
		c.log.Debug("join ignored, already in session", "user", user)
		return
	}

	c.queues[role] = append(c.queues[role], user)
	c.queued[user] = role
	c.metrics.SetQueueDepth(role, len(c.queues[role]))

	c.matchLocked()
}

// matchLocked pairs FIFO heads until at least one queue is empty, so no
// user keeps waiting while a partner is available.
func (c *Coordinator) matchLocked() {
	for len(c.queues[wire.RoleCaretaker]) > 0 && len(c.queues[wire.RoleHelpseeker]) > 0 {
		caretaker := c.popLocked(wire.RoleCaretaker)
		helpseeker := c.popLocked(wire.RoleHelpseeker)
		c.startSessionLocked(caretaker, helpseeker)
	}
}

func (c *Coordinator) popLocked(role string) int64 {
	q := c.queues[role]
	user := q[0]
	c.queues[role] = q[1:]
	delete(c.queued, user)
	c.metrics.SetQueueDepth(role, len(c.queues[role]))
	return user
}

func (c *Coordinator) startSessionLocked(caretaker, helpseeker int64) {
	s := &Session{
		ID:         uuid.NewString(),
		Caretaker:  caretaker,
		Helpseeker: helpseeker,
		StartedAt:  time.Now(),
		Duration:   c.duration,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	c.sessions[s.ID] = s
	c.inSession[caretaker] = s.ID
	c.inSession[helpseeker] = s.ID

	c.send.Send(caretaker, wire.Matched(wire.RoleCaretaker, s.ID).Encode())
	c.send.Send(helpseeker, wire.Matched(wire.RoleHelpseeker, s.ID).Encode())

	c.metrics.RecordSessionStarted()
	c.log.Info("session started",
		"session_id", s.ID,
		"caretaker", caretaker,
		"helpseeker", helpseeker,
		"duration", s.Duration,
	)

	go c.runTimer(ctx, s)

	started := archive.StartedSession{
		SessionID:  s.ID,
		Caretaker:  caretaker,
		Helpseeker: helpseeker,
		StartedAt:  s.StartedAt,
		Duration:   s.Duration,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := c.recorder.SessionStarted(ctx, started); err != nil {
			c.log.Warn("archive session start", "session_id", started.SessionID, "err", err)
		}
	}()
}

// RelayKey forwards key material to user's current partner. Without an
// active session the frame is dropped; the payload is never inspected or
// logged.
func (c *Coordinator) RelayKey(user int64, key string) {
	c.relay(user, wire.TypePublicKey, wire.PartnerPublicKey(key).Encode())
}

// RelayData forwards an opaque ciphertext blob to user's current partner.
func (c *Coordinator) RelayData(user int64, data string) {
	c.relay(user, wire.TypeEncryptedMessage, wire.PartnerEncryptedMessage(data).Encode())
}

func (c *Coordinator) relay(user int64, kind string, frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sid, ok := c.inSession[user]
	if !ok {
		c.log.Debug("relay dropped, no session", "user", user, "kind", kind)
		return
	}
	s := c.sessions[sid]
	partner, ok := s.Partner(user)
	if !ok {
		return
	}

	c.send.Send(partner, frame)
	c.metrics.RecordRelayedMessage(kind)
}

// Disconnect tears down whatever state user holds: queue membership, and
// the active session if any. Safe to call for unknown users and safe to
// call twice; disconnect races are expected and harmless.
func (c *Coordinator) Disconnect(user int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dequeueLocked(user)

	if sid, ok := c.inSession[user]; ok {
		c.endSessionLocked(sid, wire.ReasonDisconnect)
	}
}

// Expire ends a session that reached its deadline. Called by the timer;
// a no-op if the session already ended.
func (c *Coordinator) Expire(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endSessionLocked(sessionID, wire.ReasonTimeout)
}

func (c *Coordinator) dequeueLocked(user int64) {
	role, ok := c.queued[user]
	if !ok {
		return
	}
	q := c.queues[role]
	for i, u := range q {
		if u == user {
			c.queues[role] = append(q[:i], q[i+1:]...)
			break
		}
	}
	delete(c.queued, user)
	c.metrics.SetQueueDepth(role, len(c.queues[role]))
}

// endSessionLocked is the single teardown path shared by timeout and
// disconnect. Both participants are notified before any state is removed,
// so the surviving peer always learns why the session died. Idempotent:
// a second end of the same session finds no record and does nothing.
func (c *Coordinator) endSessionLocked(sessionID, reason string) {
	s, ok := c.sessions[sessionID]
	if !ok {
		return
	}

	frame := wire.SessionEnd(reason).Encode()
	c.send.Send(s.Caretaker, frame)
	c.send.Send(s.Helpseeker, frame)

	s.cancel()
	delete(c.sessions, sessionID)
	delete(c.inSession, s.Caretaker)
	delete(c.inSession, s.Helpseeker)
	c.dequeueLocked(s.Caretaker)
	c.dequeueLocked(s.Helpseeker)

	c.metrics.RecordSessionEnded(reason)
	c.log.Info("session ended", "session_id", sessionID, "reason", reason)

	endedAt := time.Now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := c.recorder.SessionEnded(ctx, sessionID, reason, endedAt); err != nil {
			c.log.Warn("archive session end", "session_id", sessionID, "err", err)
		}
	}()
}

// SessionOf returns the id of user's active session, if any.
func (c *Coordinator) SessionOf(user int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sid, ok := c.inSession[user]
	return sid, ok
}

// QueueDepth returns how many users wait under role.
func (c *Coordinator) QueueDepth(role string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queues[role])
}

// ActiveSessions returns the number of sessions currently running.
func (c *Coordinator) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func (c *Coordinator) sessionAlive(sessionID string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	return s, ok
}

// broadcast sends a frame to both participants of s.
func (c *Coordinator) broadcast(s *Session, frame []byte) {
	c.send.Send(s.Caretaker, frame)
	c.send.Send(s.Helpseeker, frame)
}
