// Package config loads participant configuration from the environment.
package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v4"
)

const (
	envRelayURL       = "LANPARTY_RELAY_URL"
	envPlayerID       = "LANPARTY_PLAYER_ID"
	envPlayerName     = "LANPARTY_PLAYER_NAME"
	envStunURLs       = "LANPARTY_STUN_URLS"
	envTurnURLs       = "LANPARTY_TURN_URLS"
	envTurnUsername   = "LANPARTY_TURN_USERNAME"
	envTurnCredential = "LANPARTY_TURN_CREDENTIAL"
	envCaptureAddr    = "LANPARTY_CAPTURE_RTP_ADDR"
)

const (
	defaultStunURLs    = "stun:stun.l.google.com:19302"
	defaultCaptureAddr = "127.0.0.1:5004"
)

// Config holds the application configuration.
type Config struct {
	RelayURL    string
	PlayerID    string
	PlayerName  string
	ICEServers  []webrtc.ICEServer
	CaptureAddr string
}

// Load reads configuration from a .env file (if present) and environment
// variables. Environment variables take precedence over .env values.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	relayURL := os.Getenv(envRelayURL)
	if relayURL == "" {
		return nil, fmt.Errorf("%s environment variable is required", envRelayURL)
	}

	playerID := os.Getenv(envPlayerID)
	if playerID == "" {
		playerID = uuid.NewString()
	}

	playerName := os.Getenv(envPlayerName)
	if playerName == "" {
		playerName = "player-" + shortID(playerID)
	}

	stun := os.Getenv(envStunURLs)
	if stun == "" {
		stun = defaultStunURLs
	}
	iceServers, err := ParseICEServers(
		stun,
		os.Getenv(envTurnURLs),
		os.Getenv(envTurnUsername),
		os.Getenv(envTurnCredential),
	)
	if err != nil {
		return nil, err
	}

	captureAddr := os.Getenv(envCaptureAddr)
	if captureAddr == "" {
		captureAddr = defaultCaptureAddr
	}

	return &Config{
		RelayURL:    relayURL,
		PlayerID:    playerID,
		PlayerName:  playerName,
		ICEServers:  iceServers,
		CaptureAddr: captureAddr,
	}, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
