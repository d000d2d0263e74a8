package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/skirmish/server/internal/config"
	gonet "github.com/skirmish/server/internal/net"
	"github.com/skirmish/server/internal/relay"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "config/skirmish.toml", "config file")
	flag.Parse()

	_ = godotenv.Load()
	if p := os.Getenv("SKIRMISH_CONFIG"); p != "" {
		*cfgPath = p
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv()

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	pktPerSec := 0
	if cfg.RateLimit.Enabled {
		pktPerSec = cfg.RateLimit.PacketsPerSecond
	}
	server, err := gonet.NewServer(cfg.Relay.BindAddress, cfg.Network.InQueueSize, cfg.Network.OutQueueSize, pktPerSec, log)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	go server.AcceptLoop()
	defer server.Shutdown()

	room := relay.NewRoom(relay.RoomConfig{
		Name:         cfg.Relay.Room,
		PasswordHash: cfg.Relay.PasswordHash,
		MaxMembers:   cfg.Relay.MaxMembers,
	}, log.Named("room"))
	r := relay.New(server, room, cfg.Network.TickRate, cfg.Network.MaxPacketsPerTick, log)

	log.Info("relay listening",
		zap.String("addr", server.Addr().String()),
		zap.String("room", cfg.Relay.Room),
		zap.Bool("password", cfg.Relay.PasswordHash != ""),
		zap.Duration("tick", cfg.Network.TickRate))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := r.Run(ctx); err != nil {
		return err
	}
	log.Info("relay stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
