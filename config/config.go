// Package config loads the daemon configuration from environment
// variables. Loaded once at startup and treated as immutable.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ListenAddr     string
	AllowedOrigins []string

	// Auth
	TokenSecret string

	// Sessions
	SessionDuration time.Duration
	TimerInterval   time.Duration

	// Inbound rate limit, per connection
	MsgRate  float64
	MsgBurst int

	// Archive (optional; empty disables persistence of session records)
	DatabaseURL string

	// TURN (optional embedded relay)
	TURNEnabled  bool
	TURNAddr     string
	TURNPublicIP string
	TURNRealm    string
	TURNUsername string
	TURNPassword string
}

// Load reads the configuration from the environment. TOKEN_SECRET is
// required; everything else has a default suitable for local development.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TokenSecret = os.Getenv("TOKEN_SECRET")
	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("required environment variable is not set: TOKEN_SECRET")
	}

	cfg.ListenAddr = getEnvString("LISTEN_ADDR", ":8080")
	cfg.AllowedOrigins = splitList(getEnvString("ALLOWED_ORIGINS", "http://localhost:3000"))

	cfg.SessionDuration = getEnvDuration("SESSION_DURATION", 300*time.Second)
	cfg.TimerInterval = getEnvDuration("TIMER_INTERVAL", 10*time.Second)
	if cfg.TimerInterval <= 0 || cfg.SessionDuration <= 0 {
		return nil, fmt.Errorf("SESSION_DURATION and TIMER_INTERVAL must be positive")
	}

	cfg.MsgRate = getEnvFloat("MSG_RATE", 20)
	cfg.MsgBurst = getEnvInt("MSG_BURST", 40)

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.TURNEnabled = getEnvBool("TURN_ENABLED", false)
	cfg.TURNAddr = getEnvString("TURN_ADDR", ":3478")
	cfg.TURNPublicIP = getEnvString("TURN_PUBLIC_IP", "127.0.0.1")
	cfg.TURNRealm = getEnvString("TURN_REALM", "pairrelay")
	cfg.TURNUsername = os.Getenv("TURN_USERNAME")
	cfg.TURNPassword = os.Getenv("TURN_PASSWORD")
	if cfg.TURNEnabled && (cfg.TURNUsername == "" || cfg.TURNPassword == "") {
		return nil, fmt.Errorf("TURN_ENABLED requires TURN_USERNAME and TURN_PASSWORD")
	}

	return cfg, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
