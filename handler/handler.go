// Package handler serves the /ws endpoint: credential resolution, the
// websocket upgrade, and the per-connection read loop that feeds the
// pairing coordinator.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/quietcircle/pairrelay/api"
	"github.com/quietcircle/pairrelay/auth"
	"github.com/quietcircle/pairrelay/hub"
	"github.com/quietcircle/pairrelay/metrics"
	"github.com/quietcircle/pairrelay/pairing"
	"github.com/quietcircle/pairrelay/wire"
)

// closeUnauthorized is the close status sent when the presented credential
// does not resolve to a user. Matches the code clients already handle.
const closeUnauthorized = 4001

// Config wires the handler's collaborators.
type Config struct {
	Hub            *hub.Hub
	Coordinator    *pairing.Coordinator
	Auth           auth.Authenticator
	AllowedOrigins []string
	Metrics        metrics.Recorder
	Logger         *slog.Logger

	// Per-connection inbound rate limit. Zero values disable limiting.
	MsgRate  float64
	MsgBurst int
}

// NewWSHandler returns the http.Handler for the /ws endpoint.
func NewWSHandler(cfg Config) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = struct{}{}
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// Non-browser clients send no Origin header.
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := origins[origin]
			return ok
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !websocket.IsWebSocketUpgrade(r) {
			rid := api.NewRID(w)
			api.WriteProblem(w, rid, http.StatusBadRequest,
				"PR_NOT_WEBSOCKET", "Websocket upgrade required", "")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error.
			return
		}

		user, err := cfg.Auth.Resolve(r.URL.Query().Get("token"))
		if err != nil {
			cfg.Metrics.RecordUnauthorized()
			cfg.Logger.Info("connection refused", "reason", "unauthorized")
			closeWith(conn, closeUnauthorized, "unauthorized")
			return
		}

		serve(cfg, conn, user)
	})
}

// serve owns one authenticated connection from registration to teardown.
func serve(cfg Config, conn *websocket.Conn, user int64) {
	p := newPeer(conn)
	go p.writePump()

	// Overwrite semantics: a fresh connect for the same user replaces the
	// mapping. We created the wsPeer wrapper, so we close the replaced
	// socket here in the handler, not inside the hub.
	if replaced := cfg.Hub.Register(user, p); replaced != nil {
		replaced.Close()
	}
	cfg.Metrics.SetConnectedUsers(cfg.Hub.Size())
	cfg.Logger.Info("user connected", "user", user)

	defer func() {
		if cfg.Hub.Unregister(user, p) {
			// Only the live connection's drop tears down pairing state; a
			// replaced socket finishing its read loop does not.
			cfg.Coordinator.Disconnect(user)
		}
		p.Close()
		cfg.Metrics.SetConnectedUsers(cfg.Hub.Size())
		cfg.Logger.Info("user disconnected", "user", user)
	}()

	var limiter *rate.Limiter
	if cfg.MsgRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MsgRate), cfg.MsgBurst)
	}

	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			cfg.Metrics.RecordDroppedFrame("binary")
			continue
		}
		if limiter != nil && !limiter.Allow() {
			cfg.Metrics.RecordDroppedFrame("rate_limited")
			continue
		}

		in, err := wire.Decode(raw)
		if err != nil {
			// Minor protocol skew is tolerated; the connection survives.
			if errors.Is(err, wire.ErrUnknownType) || errors.Is(err, wire.ErrMissingField) {
				cfg.Logger.Debug("frame dropped", "user", user, "err", err)
			} else {
				cfg.Logger.Debug("frame undecodable", "user", user)
			}
			cfg.Metrics.RecordDroppedFrame("malformed")
			continue
		}

		switch in.Type {
		case wire.TypeJoin:
			cfg.Coordinator.Join(user, in.Role)
		case wire.TypePublicKey:
			cfg.Coordinator.RelayKey(user, in.Key)
		case wire.TypeEncryptedMessage:
			cfg.Coordinator.RelayData(user, in.Data)
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}
