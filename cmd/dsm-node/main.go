package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dsm-network/dsm/internal/config"
	"github.com/dsm-network/dsm/internal/dsmstate"
	"github.com/dsm-network/dsm/internal/seed"
	"github.com/dsm-network/dsm/internal/statemachine"
	"github.com/dsm-network/dsm/internal/store"
	"github.com/dsm-network/dsm/internal/transport"
)

var version = "dev"

func main() {
	var (
		configPath   = flag.String("config", "", "path to YAML config file (optional, overlays defaults)")
		listenAddr   = flag.String("listen", "", "UDP listen address, overrides config's listen_addr")
		passphrase   = flag.String("passphrase", "", "recovery passphrase to derive identity entropy from")
		deviceIndex  = flag.Int("device-index", 0, "device index to derive this node's device key for")
		storePath    = flag.String("store", "", "path to a SQLite blob store file (empty: in-memory only)")
		logLevel     = flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
		showVersion  = flag.Bool("version", false, "show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("dsm-node %s\n", version)
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *passphrase == "" {
		log.Error("a -passphrase is required to derive this node's identity")
		os.Exit(1)
	}

	var blobs store.Store
	if *storePath != "" {
		s, err := store.OpenSQLite(*storePath)
		if err != nil {
			log.Error("open blob store failed", "err", err)
			os.Exit(1)
		}
		blobs = s
	} else {
		blobs = store.NewMemory()
	}

	entropy := seed.FromPassphrase(*passphrase)
	master, fingerprint := seed.DeriveMasterKey(entropy)
	deviceKey := seed.DeriveDeviceKey(master, uint32(*deviceIndex))
	device := dsmstate.DeviceInfo{
		DeviceID:  fmt.Sprintf("device_%s", hex.EncodeToString(deviceKey[0:4])),
		DeviceKey: deviceKey[:],
	}
	log.Info("deriving identity", "fingerprint", fmt.Sprintf("%08x", uint32(fingerprint)), "device_id", device.DeviceID)

	machine, err := statemachine.NewGenesis(log, deviceKey[4:20], device)
	if err != nil {
		log.Error("construct genesis state failed", "err", err)
		os.Exit(1)
	}
	genesis, _ := machine.CurrentState()
	if err := store.PutState(blobs, genesis); err != nil {
		log.Error("persist genesis state failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener, err := transport.Listen(ctx, cfg.ListenAddr, cfg, log)
	if err != nil {
		log.Error("start transport listener failed", "err", err)
		os.Exit(1)
	}
	log.Info("listening", "addr", listener.LocalAddr().String())

	go acceptLoop(ctx, listener, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received signal, shutting down", "signal", sig)

	cancel()
	if err := listener.Close(); err != nil {
		log.Warn("listener close failed", "err", err)
	}
}

// acceptLoop logs every inbound connection's handshake completion; a real
// application would hand each Connection off to whatever consumes its
// operation stream.
func acceptLoop(ctx context.Context, l *transport.Listener, log *slog.Logger) {
	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			return
		}
		log.Info("accepted connection", "connection_id", conn.ID(), "remote_addr", conn.RemoteAddr().String())
	}
}
