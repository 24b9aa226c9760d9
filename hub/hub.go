// Package hub maintains the registry of live client connections, keyed by
// user id. It owns no protocol logic: callers hand it encoded frames and it
// delivers them best-effort.
package hub

import "sync"

// Peer is one live outbound channel. Send must preserve the order of calls
// for a given peer and must never block the caller for long; a peer that
// cannot keep up drops frames rather than stalling the registries.
type Peer interface {
	Send(frame []byte)
	Close()
}

// Hub maps user ids to their single live peer.
type Hub struct {
	mu    sync.Mutex
	peers map[int64]Peer
}

func New() *Hub {
	return &Hub{peers: make(map[int64]Peer)}
}

// Register stores conn as the live peer for user, replacing any prior
// mapping. The replaced peer is returned so its owner can close it; the hub
// itself never closes peers it did not create.
func (h *Hub) Register(user int64, conn Peer) (replaced Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replaced = h.peers[user]
	h.peers[user] = conn
	return replaced
}

// Unregister drops the mapping for user, but only if it still points at
// conn, and reports whether it did. A reconnect overwrites the mapping
// first, and the stale socket's teardown must not take the fresh one with
// it.
func (h *Hub) Unregister(user int64, conn Peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.peers[user] == conn {
		delete(h.peers, user)
		return true
	}
	return false
}

// Send delivers frame to user's live peer. No peer means the user already
// disconnected; the frame is silently dropped.
func (h *Hub) Send(user int64, frame []byte) {
	h.mu.Lock()
	conn := h.peers[user]
	h.mu.Unlock()

	if conn != nil {
		conn.Send(frame)
	}
}

// Connected reports whether user currently has a live peer.
func (h *Hub) Connected(user int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.peers[user]
	return ok
}

// Size returns the number of live peers.
func (h *Hub) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}
