// Package server implements the session coordinator: it accepts client
// connections until quorum, drives the hand loop over the wire protocol,
// enforces per-turn timeouts, and persists hand logs and session status.
package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Blind posting policies. The engine never mixes them within a session.
const (
	PostBlindsClient = "client" // clients volunteer blinds as raises on their first turn
	PostBlindsServer = "server" // the coordinator posts blinds before soliciting
)

// Config holds the full session configuration.
type Config struct {
	Address string
	Port    int
	// WSPort exposes the same line protocol over WebSocket when non-zero.
	WSPort int

	NumPlayers     int
	TurnTimeout    time.Duration
	BlindAmount    int
	HandLimit      int // 0 = unlimited
	InterHandDelay time.Duration
	InitialMoney   int
	OutputDir      string

	// PostBlinds selects who posts the forced blinds; see the constants.
	PostBlinds string
	// AdvisoryRaiseBounds documents that min_raise/max_raise on the wire
	// are advisory (current bet and twice the current bet), not enforced.
	AdvisoryRaiseBounds bool
}

// fileConfig is the HCL file shape.
type fileConfig struct {
	Server  *serverBlock  `hcl:"server,block"`
	Session *sessionBlock `hcl:"session,block"`
	Rules   *rulesBlock   `hcl:"rules,block"`
}

type serverBlock struct {
	Address string `hcl:"address,optional"`
	Port    int    `hcl:"port,optional"`
	WSPort  int    `hcl:"ws_port,optional"`
}

type sessionBlock struct {
	Players          int    `hcl:"players,optional"`
	TurnTimeoutMs    int    `hcl:"turn_timeout_ms,optional"`
	BlindAmount      int    `hcl:"blind_amount,optional"`
	Hands            int    `hcl:"hands,optional"`
	InterHandDelayMs int    `hcl:"inter_hand_delay_ms,optional"`
	InitialMoney     int    `hcl:"initial_money,optional"`
	OutputDir        string `hcl:"output_dir,optional"`
}

type rulesBlock struct {
	PostBlinds          string `hcl:"post_blinds,optional"`
	AdvisoryRaiseBounds *bool  `hcl:"advisory_raise_bounds,optional"`
}

// DefaultConfig returns the configuration used when no file or flags
// override it.
func DefaultConfig() Config {
	return Config{
		Address:             "localhost",
		Port:                5000,
		NumPlayers:          2,
		TurnTimeout:         30 * time.Second,
		BlindAmount:         10,
		InterHandDelay:      500 * time.Millisecond,
		InitialMoney:        1000,
		OutputDir:           "output",
		PostBlinds:          PostBlindsClient,
		AdvisoryRaiseBounds: true,
	}
}

// LoadConfig reads an HCL configuration file and applies it over the
// defaults. A missing file returns the defaults.
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return cfg, nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return cfg, fmt.Errorf("failed to parse config file: %s", diags.Error())
	}

	var fc fileConfig
	diags = gohcl.DecodeBody(file.Body, nil, &fc)
	if diags.HasErrors() {
		return cfg, fmt.Errorf("failed to decode config file: %s", diags.Error())
	}

	if fc.Server != nil {
		if fc.Server.Address != "" {
			cfg.Address = fc.Server.Address
		}
		if fc.Server.Port != 0 {
			cfg.Port = fc.Server.Port
		}
		cfg.WSPort = fc.Server.WSPort
	}
	if fc.Session != nil {
		if fc.Session.Players != 0 {
			cfg.NumPlayers = fc.Session.Players
		}
		if fc.Session.TurnTimeoutMs != 0 {
			cfg.TurnTimeout = time.Duration(fc.Session.TurnTimeoutMs) * time.Millisecond
		}
		if fc.Session.BlindAmount != 0 {
			cfg.BlindAmount = fc.Session.BlindAmount
		}
		if fc.Session.Hands != 0 {
			cfg.HandLimit = fc.Session.Hands
		}
		if fc.Session.InterHandDelayMs != 0 {
			cfg.InterHandDelay = time.Duration(fc.Session.InterHandDelayMs) * time.Millisecond
		}
		if fc.Session.InitialMoney != 0 {
			cfg.InitialMoney = fc.Session.InitialMoney
		}
		if fc.Session.OutputDir != "" {
			cfg.OutputDir = fc.Session.OutputDir
		}
	}
	if fc.Rules != nil {
		if fc.Rules.PostBlinds != "" {
			cfg.PostBlinds = fc.Rules.PostBlinds
		}
		if fc.Rules.AdvisoryRaiseBounds != nil {
			cfg.AdvisoryRaiseBounds = *fc.Rules.AdvisoryRaiseBounds
		}
	}

	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.WSPort != 0 && (c.WSPort < 1 || c.WSPort > 65535 || c.WSPort == c.Port) {
		return fmt.Errorf("invalid websocket port: %d", c.WSPort)
	}
	if c.NumPlayers < 2 {
		return fmt.Errorf("at least 2 players required, got %d", c.NumPlayers)
	}
	if c.BlindAmount <= 0 || c.BlindAmount%2 != 0 {
		return fmt.Errorf("blind amount must be positive and even, got %d", c.BlindAmount)
	}
	if c.TurnTimeout <= 0 {
		return fmt.Errorf("turn timeout must be positive")
	}
	if c.HandLimit < 0 {
		return fmt.Errorf("hand limit cannot be negative")
	}
	if c.PostBlinds != PostBlindsClient && c.PostBlinds != PostBlindsServer {
		return fmt.Errorf("post_blinds must be %q or %q, got %q", PostBlindsClient, PostBlindsServer, c.PostBlinds)
	}
	return nil
}

// ListenAddr returns the TCP listen address.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

// WSListenAddr returns the WebSocket listen address, empty when disabled.
func (c Config) WSListenAddr() string {
	if c.WSPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Address, c.WSPort)
}
