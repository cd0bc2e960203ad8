package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"bancho/server/internal/blob"
	"bancho/server/internal/config"
	"bancho/server/internal/core"
	"bancho/server/internal/gateway"
	"bancho/server/internal/geoloc"
	"bancho/server/internal/score"
	"bancho/server/internal/store"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

func main() {
	addr := flag.String("addr", "", "Listen address (overrides BANCHO_ADDR)")
	dbPath := flag.String("db", "", "SQLite database path (overrides BANCHO_DB_PATH)")
	debug := flag.Bool("debug", false, "Enable debug logging (auto-enabled for dev builds)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	level := slog.LevelInfo
	if *debug || strings.Contains(Version, "dev") || strings.EqualFold(cfg.LogLevel, "debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("starting bancho", "version", Version, "addr", cfg.Addr, "db", cfg.DBPath)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open sqlite store", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("close sqlite store", "err", closeErr)
		}
	}()

	blobs, err := blob.NewStore(cfg.DataDir)
	if err != nil {
		slog.Error("initialize blob store", "err", err)
		os.Exit(1)
	}
	slog.Debug("blob store", "dir", cfg.DataDir)

	state := core.NewState()
	rows, err := db.Channels(context.Background())
	if err != nil {
		slog.Error("load channels", "err", err)
		os.Exit(1)
	}
	state.SeedChannels(rows)

	if err := db.RecordStartup(context.Background(), 0, 1, 0, time.Now().Unix()); err != nil {
		slog.Warn("record startup", "err", err)
	}

	srv := gateway.New(cfg, state, db, geoloc.New(),
		score.New(cfg, state, db, blobs),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background upkeep: drop silent sessions well inside the ping
	// timeout, and rotate the bot's status line.
	sched := cron.New()
	if _, err := sched.AddFunc("@every 100s", func() {
		if n := state.SweepInactive(time.Now()); n > 0 {
			slog.Info("swept inactive sessions", "count", n)
		}
	}); err != nil {
		slog.Error("schedule session sweep", "err", err)
		os.Exit(1)
	}
	if _, err := sched.AddFunc("@every 5m", state.RerollBotStatus); err != nil {
		slog.Error("schedule bot status reroll", "err", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		slog.Info("received interrupt, shutting down")
		cancel()
	}()

	slog.Info("listening", "addr", cfg.Addr)
	if err := srv.Run(ctx, cfg.Addr); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
