package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultMatchesDocumentedValues(t *testing.T) {
	cfg := Default()
	if cfg.HandshakeTimeoutMS != DefaultHandshakeTimeoutMS {
		t.Errorf("HandshakeTimeoutMS = %d, want %d", cfg.HandshakeTimeoutMS, DefaultHandshakeTimeoutMS)
	}
	if cfg.ReceiveTimeoutMS != DefaultReceiveTimeoutMS {
		t.Errorf("ReceiveTimeoutMS = %d, want %d", cfg.ReceiveTimeoutMS, DefaultReceiveTimeoutMS)
	}
	if cfg.MaxPayloadBytes != 65482 {
		t.Errorf("MaxPayloadBytes = %d, want 65482", cfg.MaxPayloadBytes)
	}
	if cfg.RecoveryThreshold != DefaultRecoveryThreshold {
		t.Errorf("RecoveryThreshold = %d, want %d", cfg.RecoveryThreshold, DefaultRecoveryThreshold)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	if got := cfg.HandshakeTimeout(); got != 5*time.Second {
		t.Errorf("HandshakeTimeout() = %v, want 5s", got)
	}
	if got := cfg.ReceiveTimeout(); got != 2*time.Second {
		t.Errorf("ReceiveTimeout() = %v, want 2s", got)
	}
	if got := cfg.IdleEviction(); got != 300*time.Second {
		t.Errorf("IdleEviction() = %v, want 300s", got)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("listen_addr: \"127.0.0.1:9000\"\nreceive_timeout_ms: 500\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("ListenAddr = %q, want 127.0.0.1:9000", cfg.ListenAddr)
	}
	if cfg.ReceiveTimeoutMS != 500 {
		t.Errorf("ReceiveTimeoutMS = %d, want 500", cfg.ReceiveTimeoutMS)
	}
	// Fields absent from the overlay keep their defaults.
	if cfg.HandshakeTimeoutMS != DefaultHandshakeTimeoutMS {
		t.Errorf("HandshakeTimeoutMS = %d, want unchanged default %d", cfg.HandshakeTimeoutMS, DefaultHandshakeTimeoutMS)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error loading a missing config file")
	}
}
