package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/skirmish/server/internal/config"
	"github.com/skirmish/server/internal/data"
	"github.com/skirmish/server/internal/feed"
	"github.com/skirmish/server/internal/game"
	gonet "github.com/skirmish/server/internal/net"
	"github.com/skirmish/server/internal/persist"
	"github.com/skirmish/server/internal/protocol"
	"github.com/skirmish/server/internal/scripting"
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

	// A missing .env is normal outside development.
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

	archetypes, err := data.LoadArchetypes(filepath.Join(cfg.Server.DataDir, "archetypes.yaml"))
	if err != nil {
		return err
	}
	arena, err := data.LoadArena(filepath.Join(cfg.Server.DataDir, "arena.yaml"))
	if err != nil {
		return err
	}
	if err := cfg.CheckSyncLoad(len(arena.Npcs) + 1); err != nil {
		return err
	}
	log.Info("data loaded",
		zap.Int("archetypes", archetypes.Count()),
		zap.String("arena", arena.Name),
		zap.Int("spawn_points", len(arena.SpawnPoints)))

	scripts, err := scripting.NewEngine(cfg.Server.ScriptsDir, log.Named("lua"))
	if err != nil {
		return fmt.Errorf("scripts: %w", err)
	}
	defer scripts.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := game.Deps{
		Config:     cfg,
		Archetypes: archetypes,
		Arena:      arena,
		Scripts:    scripts,
		Log:        log,
	}

	if cfg.Database.DSN != "" {
		dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		db, err := persist.NewDB(dbCtx, cfg.Database, log)
		if err != nil {
			cancel()
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		err = persist.RunMigrations(dbCtx, db.Pool, log)
		cancel()
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		deps.Stats = persist.NewStatsRepo(db, cfg.Server.StartTime, cfg.Server.Room)
		deps.Events = persist.NewMatchLogRepo(db, cfg.Server.StartTime, cfg.Server.Room)
	} else {
		log.Info("persistence disabled")
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Network.DialTimeout)
	client, welcome, err := gonet.Dial(dialCtx, cfg.Relay.Address, protocol.Join{
		Room:     cfg.Server.Room,
		Name:     cfg.Server.Name,
		Password: cfg.Server.Password,
	}, gonet.ClientConfig{
		InQueueSize:  cfg.Network.InQueueSize,
		OutQueueSize: cfg.Network.OutQueueSize,
		MaxPerTick:   cfg.Network.MaxPacketsPerTick,
	}, log)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()
	deps.Link = client
	deps.Welcome = welcome
	log.Info("joined room",
		zap.String("room", cfg.Server.Room),
		zap.Uint64("participant", uint64(welcome.You)),
		zap.Uint64("coordinator", uint64(welcome.Coordinator)),
		zap.Int("members", len(welcome.Members)))

	var hub *feed.Hub
	if cfg.Feed.Enabled {
		hub = feed.NewHub(feed.Config{
			BindAddress: cfg.Feed.BindAddress,
			Path:        cfg.Feed.Path,
			SendBuffer:  cfg.Feed.SendBuffer,
		}, log.Named("feed"))
		deps.Feed = hub
	}

	g := game.New(deps)
	if err := g.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return g.Run(ctx) })
	eg.Go(func() error {
		select {
		case <-client.Closed():
			return gonet.ErrNotConnected
		case <-ctx.Done():
			return nil
		}
	})
	if hub != nil {
		eg.Go(func() error { return hub.Run(ctx) })
	}

	err = eg.Wait()
	if errors.Is(err, gonet.ErrNotConnected) {
		log.Warn("relay connection lost")
	}
	log.Info("participant stopped")
	return err
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
