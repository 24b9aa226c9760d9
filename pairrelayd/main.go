// Command pairrelayd runs the anonymous pairing and encrypted-message
// relay daemon.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quietcircle/pairrelay/archive"
	"github.com/quietcircle/pairrelay/auth"
	"github.com/quietcircle/pairrelay/config"
	"github.com/quietcircle/pairrelay/handler"
	"github.com/quietcircle/pairrelay/hub"
	"github.com/quietcircle/pairrelay/metrics"
	"github.com/quietcircle/pairrelay/pairing"
	"github.com/quietcircle/pairrelay/turn"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	var recorder archive.Recorder = archive.Noop{}
	if cfg.DatabaseURL != "" {
		db, err := archive.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		recorder = archive.NewPostgres(db)
		log.Info("session archive enabled")
	}

	connections := hub.New()
	coordinator := pairing.NewCoordinator(connections, pairing.Options{
		SessionDuration: cfg.SessionDuration,
		TimerInterval:   cfg.TimerInterval,
		Metrics:         collector,
		Recorder:        recorder,
		Logger:          log,
	})

	r := chi.NewRouter()
	r.Handle("/ws", handler.NewWSHandler(handler.Config{
		Hub:            connections,
		Coordinator:    coordinator,
		Auth:           auth.NewTokenAuthenticator(cfg.TokenSecret),
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        collector,
		Logger:         log,
		MsgRate:        cfg.MsgRate,
		MsgBurst:       cfg.MsgBurst,
	}))
	r.Handle("/metrics", metrics.Handler(reg))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.TURNEnabled {
		go func() {
			if err := turn.Start(ctx, turn.Config{
				Addr:     cfg.TURNAddr,
				PublicIP: cfg.TURNPublicIP,
				Realm:    cfg.TURNRealm,
				Username: cfg.TURNUsername,
				Password: cfg.TURNPassword,
				Logger:   log,
			}); err != nil {
				log.Error("turn server", "err", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("pairrelay listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
