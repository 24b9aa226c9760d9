package handler

import (
	"sync"

	"github.com/gorilla/websocket"
)

// sendBuffer is the per-connection outbound queue depth. A client that
// falls further behind than this loses frames rather than stalling the
// coordinator.
const sendBuffer = 32

// wsPeer adapts a gorilla connection to hub.Peer. All writes go through a
// single pump goroutine, which is the one writer gorilla permits.
type wsPeer struct {
	conn *websocket.Conn
	send chan []byte

	once sync.Once
	done chan struct{}
}

func newPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues a frame for delivery. Never blocks: a full buffer or a
// closed peer drops the frame, which keeps best-effort delivery from ever
// back-pressuring the registries.
func (p *wsPeer) Send(frame []byte) {
	select {
	case <-p.done:
	case p.send <- frame:
	default:
	}
}

// Close stops the pump and closes the socket. Idempotent.
func (p *wsPeer) Close() {
	p.once.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}

// writePump drains the send queue onto the socket until the peer closes
// or a write fails.
func (p *wsPeer) writePump() {
	for {
		select {
		case <-p.done:
			return
		case frame := <-p.send:
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				p.Close()
				return
			}
		}
	}
}
