package main

import (
	"time"

	rand "math/rand/v2"

	"github.com/ATC-UW/pokerden-engine/cmd/pokerden/shared"
	"github.com/ATC-UW/pokerden-engine/internal/evaluator"
	"github.com/ATC-UW/pokerden-engine/internal/randutil"
	"github.com/ATC-UW/pokerden-engine/internal/server"
)

// ServerCmd contains the session configuration. Flags override the config
// file, which overrides the defaults.
type ServerCmd struct {
	Config     string `kong:"help='Path to an HCL config file'"`
	Host       string `kong:"help='Listen address (overrides config)'"`
	Port       int    `kong:"help='Listen port (overrides config)'"`
	WSPort     int    `kong:"help='WebSocket port for the same line protocol (0 disables)'"`
	Players    int    `kong:"help='Required player count (overrides config)'"`
	Blind      int    `kong:"help='Big blind amount (overrides config)'"`
	TimeoutMs  int    `kong:"help='Per-turn timeout in milliseconds (overrides config)'"`
	Hands      int    `kong:"help='Hand budget, 0 for unlimited (overrides config)'"`
	OutputDir  string `kong:"help='Directory for hand logs and status files (overrides config)'"`
	Seed       *int64 `kong:"help='Deterministic RNG seed for the session (optional)'"`
	Debug      bool   `kong:"help='Enable debug logging'"`
	Structured bool   `kong:"help='Log JSON instead of console output'"`
}

func (c *ServerCmd) Run() error {
	logger := shared.SetupLogger(c.Debug)
	if c.Structured {
		logger = shared.SetupStructuredLogger(c.Debug)
	}

	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Address = c.Host
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	if c.WSPort != 0 {
		cfg.WSPort = c.WSPort
	}
	if c.Players != 0 {
		cfg.NumPlayers = c.Players
	}
	if c.Blind != 0 {
		cfg.BlindAmount = c.Blind
	}
	if c.TimeoutMs != 0 {
		cfg.TurnTimeout = time.Duration(c.TimeoutMs) * time.Millisecond
	}
	if c.Hands != 0 {
		cfg.HandLimit = c.Hands
	}
	if c.OutputDir != "" {
		cfg.OutputDir = c.OutputDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var rng *rand.Rand
	var seed int64
	if c.Seed != nil {
		seed = *c.Seed
		logger.Info().Int64("seed", seed).Msg("Using deterministic seed")
	} else {
		seed = time.Now().UnixNano()
		logger.Info().Int64("seed", seed).Msg("Using random seed")
	}
	rng = randutil.New(seed)

	logger.Info().
		Str("address", cfg.ListenAddr()).
		Int("players", cfg.NumPlayers).
		Int("blind", cfg.BlindAmount).
		Dur("turn_timeout", cfg.TurnTimeout).
		Int("hands", cfg.HandLimit).
		Str("post_blinds", cfg.PostBlinds).
		Str("output_dir", cfg.OutputDir).
		Msg("Starting pokerden server")

	ctx := shared.SetupSignalHandler(logger)

	session := server.NewSession(logger, cfg, rng, evaluator.New())
	return session.Run(ctx)
}
