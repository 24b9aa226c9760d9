package pairing

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietcircle/pairrelay/wire"
)

// captureSender records decoded outbound frames per user.
type captureSender struct {
	mu     sync.Mutex
	frames map[int64][]wire.Outbound
}

func newCaptureSender() *captureSender {
	return &captureSender{frames: make(map[int64][]wire.Outbound)}
}

func (s *captureSender) Send(user int64, frame []byte) {
	var out wire.Outbound
	if err := json.Unmarshal(frame, &out); err != nil {
		panic(fmt.Sprintf("unmarshalable outbound frame: %v", err))
	}
	s.mu.Lock()
	s.frames[user] = append(s.frames[user], out)
	s.mu.Unlock()
}

func (s *captureSender) all(user int64) []wire.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.Outbound(nil), s.frames[user]...)
}

func (s *captureSender) byType(user int64, typ string) []wire.Outbound {
	var out []wire.Outbound
	for _, f := range s.all(user) {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

// newTestCoordinator uses a session duration long enough that timers never
// fire during these tests.
func newTestCoordinator(send Sender) *Coordinator {
	return NewCoordinator(send, Options{
		SessionDuration: time.Hour,
		TimerInterval:   time.Hour,
	})
}

func TestPairingCreatesOneSessionPerPair(t *testing.T) {
	send := newCaptureSender()
	c := newTestCoordinator(send)

	c.Join(1, wire.RoleCaretaker)
	assert.Equal(t, 1, c.QueueDepth(wire.RoleCaretaker))
	assert.Equal(t, 0, c.ActiveSessions())

	c.Join(2, wire.RoleHelpseeker)
	assert.Equal(t, 0, c.QueueDepth(wire.RoleCaretaker))
	assert.Equal(t, 0, c.QueueDepth(wire.RoleHelpseeker))
	assert.Equal(t, 1, c.ActiveSessions())

	m1 := send.byType(1, wire.TypeMatched)
	m2 := send.byType(2, wire.TypeMatched)
	require.Len(t, m1, 1)
	require.Len(t, m2, 1)
	assert.Equal(t, wire.RoleCaretaker, m1[0].Role)
	assert.Equal(t, wire.RoleHelpseeker, m2[0].Role)
	assert.Equal(t, m1[0].SessionID, m2[0].SessionID)
	assert.NotEmpty(t, m1[0].SessionID)
}

func TestExhaustiveMatching(t *testing.T) {
	send := newCaptureSender()
	c := newTestCoordinator(send)

	// Three caretakers queue up first, then five helpseekers. min(3,5)
	// sessions must exist afterwards, with two helpseekers left waiting.
	for u := int64(1); u <= 3; u++ {
		c.Join(u, wire.RoleCaretaker)
	}
	for u := int64(11); u <= 15; u++ {
		c.Join(u, wire.RoleHelpseeker)
	}

	assert.Equal(t, 3, c.ActiveSessions())
	assert.Equal(t, 0, c.QueueDepth(wire.RoleCaretaker))
	assert.Equal(t, 2, c.QueueDepth(wire.RoleHelpseeker))
}

func TestMatchingIsFIFO(t *testing.T) {
	send := newCaptureSender()
	c := newTestCoordinator(send)

	c.Join(1, wire.RoleCaretaker)
	c.Join(2, wire.RoleCaretaker)
	c.Join(10, wire.RoleHelpseeker)

	// The first caretaker to join is the first matched.
	require.Len(t, send.byType(1, wire.TypeMatched), 1)
	assert.Empty(t, send.byType(2, wire.TypeMatched))

	c.Join(11, wire.RoleHelpseeker)
	require.Len(t, send.byType(2, wire.TypeMatched), 1)
}

func TestJoinWhileQueuedIsNoop(t *testing.T) {
	send := newCaptureSender()
	c := newTestCoordinator(send)

	c.Join(1, wire.RoleCaretaker)
	c.Join(1, wire.RoleCaretaker)
	c.Join(1, wire.RoleHelpseeker) // role switch while queued: also a no-op

	assert.Equal(t, 1, c.QueueDepth(wire.RoleCaretaker))
	assert.Equal(t, 0, c.QueueDepth(wire.RoleHelpseeker))

	// The user must not be matched against itself.
	assert.Equal(t, 0, c.ActiveSessions())
}

func TestJoinWhileInSessionIsNoop(t *testing.T) {
	send := newCaptureSender()
	c := newTestCoordinator(send)

	c.Join(1, wire.RoleCaretaker)
	c.Join(2, wire.RoleHelpseeker)
	require.Equal(t, 1, c.ActiveSessions())

	c.Join(1, wire.RoleCaretaker)
	c.Join(1, wire.RoleHelpseeker)

	assert.Equal(t, 0, c.QueueDepth(wire.RoleCaretaker))
	assert.Equal(t, 0, c.QueueDepth(wire.RoleHelpseeker))
	assert.Equal(t, 1, c.ActiveSessions())
}

func TestSessionUniqueness(t *testing.T) {
	send := newCaptureSender()
	c := newTestCoordinator(send)

	c.Join(1, wire.RoleCaretaker)
	c.Join(2, wire.RoleHelpseeker)
	c.Join(3, wire.RoleHelpseeker)

	// User 1 is in a session; only one session may reference them.
	sid, ok := c.SessionOf(1)
	require.True(t, ok)
	require.Len(t, send.byType(1, wire.TypeMatched), 1)

	// A second caretaker pairs with user 3, not with user 1 again.
	c.Join(4, wire.RoleCaretaker)
	sid4, ok := c.SessionOf(4)
	require.True(t, ok)
	assert.NotEqual(t, sid, sid4)

	sid3, ok := c.SessionOf(3)
	require.True(t, ok)
	assert.Equal(t, sid4, sid3)
}

func TestDisconnectTeardown(t *testing.T) {
	send := newCaptureSender()
	c := newTestCoordinator(send)

	c.Join(1, wire.RoleCaretaker)
	c.Join(2, wire.RoleHelpseeker)
	require.Equal(t, 1, c.ActiveSessions())

	c.Disconnect(1)

	ends := send.byType(2, wire.TypeSessionEnd)
	require.Len(t, ends, 1)
	assert.Equal(t, wire.ReasonDisconnect, ends[0].Reason)
	assert.Equal(t, 0, c.ActiveSessions())

	_, ok := c.SessionOf(2)
	assert.False(t, ok)

	// A later disconnect of the partner is a no-op.
	c.Disconnect(2)
	assert.Len(t, send.byType(2, wire.TypeSessionEnd), 1)
}

func TestDisconnectWhileQueued(t *testing.T) {
	send := newCaptureSender()
	c := newTestCoordinator(send)

	c.Join(1, wire.RoleCaretaker)
	c.Disconnect(1)
	assert.Equal(t, 0, c.QueueDepth(wire.RoleCaretaker))

	// The departed user must not be matched.
	c.Join(2, wire.RoleHelpseeker)
	assert.Equal(t, 0, c.ActiveSessions())
	assert.Empty(t, send.byType(1, wire.TypeMatched))
}

func TestDisconnectUnknownUserIsNoop(t *testing.T) {
	send := newCaptureSender()
	c := newTestCoordinator(send)
	c.Disconnect(12345) // must not panic
	assert.Equal(t, 0, c.ActiveSessions())
}

func TestIdempotentCleanup(t *testing.T) {
	send := newCaptureSender()
	c := newTestCoordinator(send)

	c.Join(1, wire.RoleCaretaker)
	c.Join(2, wire.RoleHelpseeker)
	sid, ok := c.SessionOf(1)
	require.True(t, ok)

	// Disconnect and a racing timer expiry both end the same session;
	// each participant sees exactly one sessionEnd.
	c.Disconnect(1)
	c.Expire(sid)

	assert.Len(t, send.byType(1, wire.TypeSessionEnd), 1)
	assert.Len(t, send.byType(2, wire.TypeSessionEnd), 1)
}

func TestRelayFidelity(t *testing.T) {
	send := newCaptureSender()
	c := newTestCoordinator(send)

	c.Join(1, wire.RoleCaretaker)
	c.Join(2, wire.RoleHelpseeker)
	c.Join(3, wire.RoleCaretaker) // bystander, still queued

	c.RelayKey(1, "abc")
	c.RelayData(1, "xyz")
	c.RelayData(2, "reply")

	keys := send.byType(2, wire.TypePartnerPublicKey)
	require.Len(t, keys, 1)
	assert.Equal(t, "abc", keys[0].Key)

	blobs := send.byType(2, wire.TypePartnerEncryptedMessage)
	require.Len(t, blobs, 1)
	assert.Equal(t, "xyz", blobs[0].Data)

	replies := send.byType(1, wire.TypePartnerEncryptedMessage)
	require.Len(t, replies, 1)
	assert.Equal(t, "reply", replies[0].Data)

	// Nothing leaks to users outside the session.
	assert.Empty(t, send.all(3))
}

func TestRelayWithoutSessionIsDropped(t *testing.T) {
	send := newCaptureSender()
	c := newTestCoordinator(send)

	c.RelayKey(1, "abc")
	c.RelayData(1, "xyz")

	c.Join(1, wire.RoleCaretaker) // queued but unmatched
	c.RelayData(1, "xyz")

	assert.Empty(t, send.all(1))
	assert.Empty(t, send.all(2))
}

func TestRelayAfterSessionEndIsDropped(t *testing.T) {
	send := newCaptureSender()
	c := newTestCoordinator(send)

	c.Join(1, wire.RoleCaretaker)
	c.Join(2, wire.RoleHelpseeker)
	c.Disconnect(1)

	before := len(send.all(2))
	c.RelayData(2, "late")
	c.RelayData(1, "late")
	assert.Len(t, send.all(2), before)
	assert.Empty(t, send.byType(1, wire.TypePartnerEncryptedMessage))
}

func TestMatchedNotificationOrder(t *testing.T) {
	send := newCaptureSender()
	c := newTestCoordinator(send)

	c.Join(1, wire.RoleCaretaker)
	c.Join(2, wire.RoleHelpseeker)
	c.RelayKey(1, "k")

	// Per-user ordering: matched precedes any relayed frame.
	frames := send.all(2)
	require.GreaterOrEqual(t, len(frames), 2)
	assert.Equal(t, wire.TypeMatched, frames[0].Type)
	assert.Equal(t, wire.TypePartnerPublicKey, frames[1].Type)
}

func TestJoinInvalidRoleIgnored(t *testing.T) {
	send := newCaptureSender()
	c := newTestCoordinator(send)

	c.Join(1, "moderator")
	assert.Equal(t, 0, c.QueueDepth(wire.RoleCaretaker))
	assert.Equal(t, 0, c.QueueDepth(wire.RoleHelpseeker))
}
