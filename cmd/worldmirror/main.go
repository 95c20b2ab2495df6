package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sasha-s/go-deadlock"

	"worldgen/internal/blockdata"
	"worldgen/internal/config"
	"worldgen/internal/mapgen"
	"worldgen/internal/observer"
	"worldgen/internal/persist"
	"worldgen/internal/replication"
	"worldgen/internal/terrain"
)

func main() {
	var (
		cfgPath    string
		addr       string
		lockChecks bool
	)
	flag.StringVar(&cfgPath, "config", "", "path to world generator configuration file")
	flag.StringVar(&addr, "authority", "", "authoritative generator address; overrides replication.authoritativeAddr")
	flag.BoolVar(&lockChecks, "lock-checks", false, "enable lock order and lock timeout detection")
	flag.Parse()

	if _, err := config.WriteFromEnv(cfgPath); err != nil {
		log.Fatalf("sync config from environment: %v", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if addr == "" {
		addr = cfg.Replication.AuthoritativeAddr
	}
	if addr == "" {
		log.Fatalf("no authoritative address configured")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Logging.SlogLevel()}))
	slog.SetDefault(logger)
	deadlock.Opts.Disable = !lockChecks

	ctx, cancel := signalContext(logger)
	defer cancel()

	if err := run(ctx, cfg, addr, logger); err != nil {
		logger.Error("mirror exited with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, addr string, logger *slog.Logger) error {
	blocks := blockdata.Default()
	if src := cfg.Blocks.Source; src != "" {
		var err error
		if blocks, err = blockdata.Fetch(ctx, src, cfg.Blocks.CacheDir); err != nil {
			return err
		}
	}

	w := mapgen.New(mapgen.Options{
		Role:     mapgen.RoleMirror,
		Settings: terrain.SettingsFrom(cfg),
		Blocks:   blocks,
		Logger:   logger,
	})
	if path := cfg.Persistence.IndexPath; path != "" {
		index, err := persist.OpenIndex(path, logger)
		if err != nil {
			return err
		}
		defer index.Close()
		w.AddListener(index.Listener())
	}

	if cfg.Observer.Enabled {
		feed := observer.NewFeed(cfg.Observer.FlushInterval.Duration(), logger)
		w.AddChangeSink(feed)
		w.AddListener(feed.Listener())
		go feed.Run(ctx)
		srv := observer.NewServer(w, feed, logger)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Observer.ListenAddr); err != nil {
				logger.Error("observer stopped", "err", err)
			}
		}()
	}

	mirror, err := replication.NewMirror(w, logger)
	if err != nil {
		return err
	}
	if err := mirror.Dial(ctx, addr, cfg.Replication.DialTimeout.Duration()); err != nil {
		return err
	}
	defer mirror.Close()
	if err := mirror.Sync(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("mirror stopped")
	case <-mirror.Done():
		logger.Warn("authority closed the session")
	}
	return nil
}

func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			return
		}

		time.AfterFunc(10*time.Second, func() {
			logger.Error("forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	return ctx, cancel
}
