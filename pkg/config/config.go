// Package config loads witnode's TOML configuration file and supplies
// per-environment defaults (mainnet, testnet, testnet-3) that the file
// overrides, mirroring the way the teacher's manager.Config layers
// CLI-flag overrides on top of built-in defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Environment selects which built-in constant set Defaults seeds.
type Environment string

const (
	Mainnet   Environment = "mainnet"
	Testnet   Environment = "testnet"
	Testnet3  Environment = "testnet-3"
)

// Connections holds the peer/session tunables from spec section 6.
type Connections struct {
	ServerAddr                  string `toml:"server_addr"`
	InboundLimit                int    `toml:"inbound_limit"`
	OutboundLimit               int    `toml:"outbound_limit"`
	KnownPeers                  []string `toml:"known_peers"`
	BootstrapPeersPeriodSeconds int    `toml:"bootstrap_peers_period_seconds"`
	StoragePeersPeriodSeconds   int    `toml:"storage_peers_period_seconds"`
	DiscoveryPeersPeriodSeconds int    `toml:"discovery_peers_period_seconds"`
	HandshakeTimeoutSeconds     int    `toml:"handshake_timeout_seconds"`
}

// Consensus holds the chain/epoch/reputation constants from spec
// section 6.
type Consensus struct {
	CheckpointZeroTimestamp     int64   `toml:"checkpoint_zero_timestamp"`
	CheckpointsPeriodSeconds    int64   `toml:"checkpoints_period_seconds"`
	GenesisHash                 string  `toml:"genesis_hash"`
	ActivityPeriod              uint32  `toml:"activity_period"`
	ReputationExpireAlphaDiff   uint64  `toml:"reputation_expire_alpha_diff"`
	ReputationIssuance          uint64  `toml:"reputation_issuance"`
	ReputationPenalizationFactor float64 `toml:"reputation_penalization_factor"`
	CollateralMinimum           uint64  `toml:"collateral_minimum"`
	SuperblockPeriod             uint32  `toml:"superblock_period"`
	MaxBlockWeight                uint32  `toml:"max_block_weight"`
}

// JSONRPC holds the three independently configurable RPC transports
// from spec section 4.8/6.
type JSONRPC struct {
	Enabled              bool   `toml:"enabled"`
	TCPAddress           string `toml:"tcp_address"`
	HTTPAddress          string `toml:"http_address"`
	WSAddress            string `toml:"ws_address"`
	EnableSensitiveMethods bool `toml:"enable_sensitive_methods"`
}

// Storage holds the single db_path option from spec section 6.
type Storage struct {
	DBPath string `toml:"db_path"`
}

// Config is the top-level TOML document.
type Config struct {
	Connections Connections `toml:"connections"`
	Consensus   Consensus   `toml:"consensus"`
	JSONRPC     JSONRPC     `toml:"jsonrpc"`
	Storage     Storage     `toml:"storage"`
}

// Load reads and parses a TOML config file, starting from env's
// defaults so a partial file only needs to name what it overrides.
func Load(path string, env Environment) (*Config, error) {
	cfg := Defaults(env)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Defaults returns the built-in constant set for env, the way the
// node starts if no config file overrides it.
func Defaults(env Environment) *Config {
	cfg := &Config{
		Connections: Connections{
			ServerAddr:                  "0.0.0.0:21337",
			InboundLimit:                128,
			OutboundLimit:               8,
			BootstrapPeersPeriodSeconds: 5,
			StoragePeersPeriodSeconds:   60,
			DiscoveryPeersPeriodSeconds: 120,
			HandshakeTimeoutSeconds:     10,
		},
		Consensus: Consensus{
			CheckpointsPeriodSeconds:     90,
			ActivityPeriod:               2000,
			ReputationExpireAlphaDiff:    20000,
			ReputationIssuance:           1000,
			ReputationPenalizationFactor: 0.5,
			CollateralMinimum:            1_000_000_000,
			SuperblockPeriod:             10,
			MaxBlockWeight:               1_000_000,
		},
		JSONRPC: JSONRPC{
			Enabled:     true,
			TCPAddress:  "127.0.0.1:21338",
			HTTPAddress: "127.0.0.1:21339",
			WSAddress:   "127.0.0.1:21340",
		},
		Storage: Storage{
			DBPath: "./.witnode",
		},
	}

	switch env {
	case Testnet:
		cfg.Connections.ServerAddr = "0.0.0.0:22337"
		cfg.JSONRPC.TCPAddress = "127.0.0.1:22338"
		cfg.JSONRPC.HTTPAddress = "127.0.0.1:22339"
		cfg.JSONRPC.WSAddress = "127.0.0.1:22340"
		cfg.JSONRPC.EnableSensitiveMethods = true
	case Testnet3:
		cfg.Connections.ServerAddr = "0.0.0.0:23337"
		cfg.JSONRPC.TCPAddress = "127.0.0.1:23338"
		cfg.JSONRPC.HTTPAddress = "127.0.0.1:23339"
		cfg.JSONRPC.WSAddress = "127.0.0.1:23340"
		cfg.JSONRPC.EnableSensitiveMethods = true
	}
	return cfg
}

// CheckpointsPeriodDuration returns the consensus checkpoint period as
// a time.Duration (pkg/epoch's Config takes the period as int64 seconds).
func (c *Consensus) CheckpointsPeriodDuration() time.Duration {
	return time.Duration(c.CheckpointsPeriodSeconds) * time.Second
}
