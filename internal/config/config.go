// Package config implements the host configuration surface spec.md §6
// names: a small table of options the core recognizes (timeouts, size
// caps, the recovery threshold), loaded via the Default() constructor plus
// an optional YAML file overlay.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the host-supplied configuration table from spec.md §6.
type Config struct {
	HandshakeTimeoutMS int    `yaml:"handshake_timeout_ms"`
	ReceiveTimeoutMS   int    `yaml:"receive_timeout_ms"`
	IdleEvictionSecs   int    `yaml:"idle_eviction_secs"`
	MaxPayloadBytes    int    `yaml:"max_payload_bytes"`
	RecoveryThreshold  uint32 `yaml:"recovery_threshold"`
	ListenAddr         string `yaml:"listen_addr"`
	LogLevel           string `yaml:"log_level"`
}

// Default byte/timing values spec.md §4.F and §6 call out by name.
const (
	DefaultHandshakeTimeoutMS = 5000
	DefaultReceiveTimeoutMS   = 2000
	DefaultIdleEvictionSecs   = 300
	// DefaultMaxPayloadBytes is 65482 = MAX_UDP(65535) - header(9) - AEAD tag(16),
	// the largest DATA plaintext a single datagram can carry (spec.md §4.F).
	DefaultMaxPayloadBytes = 65482
	DefaultRecoveryThreshold = 1
)

// Default returns a Config with the documented default values (spec.md §6).
func Default() *Config {
	return &Config{
		HandshakeTimeoutMS: DefaultHandshakeTimeoutMS,
		ReceiveTimeoutMS:   DefaultReceiveTimeoutMS,
		IdleEvictionSecs:   DefaultIdleEvictionSecs,
		MaxPayloadBytes:    DefaultMaxPayloadBytes,
		RecoveryThreshold:  DefaultRecoveryThreshold,
		ListenAddr:         "0.0.0.0:0",
		LogLevel:           "info",
	}
}

// Load reads a YAML file and overlays it onto Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// HandshakeTimeout returns the configured handshake timeout as a Duration.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMS) * time.Millisecond
}

// ReceiveTimeout returns the configured receive timeout as a Duration.
func (c *Config) ReceiveTimeout() time.Duration {
	return time.Duration(c.ReceiveTimeoutMS) * time.Millisecond
}

// IdleEviction returns the configured idle-connection TTL as a Duration.
func (c *Config) IdleEviction() time.Duration {
	return time.Duration(c.IdleEvictionSecs) * time.Second
}
