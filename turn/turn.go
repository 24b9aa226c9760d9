// Package turn runs an optional embedded TURN relay. Matched partners can
// use it to open a direct media path with the shared TURN credentials;
// the pairing core itself never touches it.
package turn

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/pion/turn/v4"

	"github.com/quietcircle/pairrelay/slogpion"
)

type Config struct {
	Addr     string // listen address, e.g. ":3478"
	PublicIP string // relay address advertised to clients
	Realm    string
	Username string
	Password string
	Logger   *slog.Logger
}

// Start runs the TURN server until ctx is cancelled.
func Start(ctx context.Context, cfg Config) error {
	udp, err := net.ListenPacket("udp4", cfg.Addr)
	if err != nil {
		return fmt.Errorf("turn: udp listen: %w", err)
	}
	tcpLn, err := net.Listen("tcp4", cfg.Addr)
	if err != nil {
		udp.Close()
		return fmt.Errorf("turn: tcp listen: %w", err)
	}

	auth := func(user, realm string, _ net.Addr) ([]byte, bool) {
		if user != cfg.Username {
			return nil, false
		}
		return turn.GenerateAuthKey(user, realm, cfg.Password), true
	}

	relay := &turn.RelayAddressGeneratorStatic{
		RelayAddress: net.ParseIP(cfg.PublicIP),
		Address:      "0.0.0.0",
	}

	srv, err := turn.NewServer(turn.ServerConfig{
		Realm:              cfg.Realm,
		AuthHandler:        auth,
		LoggerFactory:      slogpion.New(cfg.Logger.With("subsys", "pion.turn")),
		ChannelBindTimeout: 10 * time.Minute,
		InboundMTU:         1500,

		PacketConnConfigs: []turn.PacketConnConfig{{
			PacketConn:            udp,
			RelayAddressGenerator: relay,
		}},
		ListenerConfigs: []turn.ListenerConfig{{
			Listener:              tcpLn,
			RelayAddressGenerator: relay,
		}},
	})
	if err != nil {
		udp.Close()
		tcpLn.Close()
		return fmt.Errorf("turn: start: %w", err)
	}

	cfg.Logger.Info("TURN ready", "addr", cfg.Addr, "realm", cfg.Realm)
	<-ctx.Done()
	return srv.Close()
}
