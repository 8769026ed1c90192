package config

import (
	"time"

	"roamlink/tools"
)

// Config carries everything the client consumes at construction time:
// the relay endpoint/key pair and the retry/tick tuning constants.
type Config struct {
	// Endpoint is the relay address. The socket adapter treats it as a
	// ws:// or wss:// URL, the channel adapter as a nats:// server list
	// (comma separated).
	Endpoint string
	// Key is the backend API key. For the channel adapter this is a
	// JWT (Supabase-style anon key); it is inspected for expiry before
	// dialing but never verified locally.
	Key string

	Username string
	WorldID  string

	MaxRetries     int
	RetryDelay     time.Duration
	ConnectTimeout time.Duration

	// MoveInterval bounds outbound movement broadcasts.
	MoveInterval time.Duration

	ProximityRadius float64
	ProximityTick   time.Duration

	TypingTTL  time.Duration
	HistoryCap int

	PresenceTTL       time.Duration
	PresenceHeartbeat time.Duration

	SendQueueSize int
}

// Default returns the tuning the production client ships with.
func Default() Config {
	return Config{
		Endpoint:          "ws://127.0.0.1:8080/session",
		MaxRetries:        3,
		RetryDelay:        time.Second,
		ConnectTimeout:    15 * time.Second,
		MoveInterval:      100 * time.Millisecond,
		ProximityRadius:   3.0,
		ProximityTick:     500 * time.Millisecond,
		TypingTTL:         4 * time.Second,
		HistoryCap:        50,
		PresenceTTL:       30 * time.Second,
		PresenceHeartbeat: 10 * time.Second,
		SendQueueSize:     256,
	}
}

// FromEnv overlays environment variables onto the defaults.
//
// ROAM_ENDPOINT   (默认 ws://127.0.0.1:8080/session)
// ROAM_KEY        (可选，channel 模式必填)
// ROAM_USERNAME   (可选)
// ROAM_WORLD      (可选)
// ROAM_MAX_RETRIES / ROAM_RETRY_DELAY / ROAM_CONNECT_TIMEOUT
// ROAM_MOVE_INTERVAL / ROAM_PROX_RADIUS / ROAM_PROX_TICK
// ROAM_TYPING_TTL / ROAM_HISTORY_CAP
func FromEnv() Config {
	c := Default()
	c.Endpoint = tools.GetEnv("ROAM_ENDPOINT", c.Endpoint)
	c.Key = tools.GetEnv("ROAM_KEY", c.Key)
	c.Username = tools.GetEnv("ROAM_USERNAME", c.Username)
	c.WorldID = tools.GetEnv("ROAM_WORLD", c.WorldID)
	c.MaxRetries = tools.GetEnvInt("ROAM_MAX_RETRIES", c.MaxRetries)
	c.RetryDelay = tools.GetEnvDuration("ROAM_RETRY_DELAY", c.RetryDelay)
	c.ConnectTimeout = tools.GetEnvDuration("ROAM_CONNECT_TIMEOUT", c.ConnectTimeout)
	c.MoveInterval = tools.GetEnvDuration("ROAM_MOVE_INTERVAL", c.MoveInterval)
	c.ProximityRadius = tools.GetEnvFloat("ROAM_PROX_RADIUS", c.ProximityRadius)
	c.ProximityTick = tools.GetEnvDuration("ROAM_PROX_TICK", c.ProximityTick)
	c.TypingTTL = tools.GetEnvDuration("ROAM_TYPING_TTL", c.TypingTTL)
	c.HistoryCap = tools.GetEnvInt("ROAM_HISTORY_CAP", c.HistoryCap)
	return c
}
