package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sasha-s/go-deadlock"
	"golang.org/x/sync/errgroup"

	"worldgen/internal/blockdata"
	"worldgen/internal/config"
	"worldgen/internal/mapgen"
	"worldgen/internal/observer"
	"worldgen/internal/persist"
	"worldgen/internal/replication"
	"worldgen/internal/terrain"
	"worldgen/internal/world"
)

func main() {
	var (
		cfgPath     string
		exportPath  string
		printConfig bool
		lockChecks  bool
	)
	flag.StringVar(&cfgPath, "config", "", "path to world generator configuration file")
	flag.StringVar(&exportPath, "export", "", "generate the world, write a snapshot to this path and exit")
	flag.BoolVar(&printConfig, "print-config", false, "print the effective configuration as YAML and exit")
	flag.BoolVar(&lockChecks, "lock-checks", false, "enable lock order and lock timeout detection")
	flag.Parse()

	if _, err := config.WriteFromEnv(cfgPath); err != nil {
		log.Fatalf("sync config from environment: %v", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if printConfig {
		if err := cfg.WriteYAML(os.Stdout); err != nil {
			log.Fatalf("print config: %v", err)
		}
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Logging.SlogLevel()}))
	slog.SetDefault(logger)
	deadlock.Opts.Disable = !lockChecks

	ctx, cancel := signalContext(logger)
	defer cancel()

	if err := run(ctx, cfg, exportPath, logger); err != nil {
		logger.Error("world generator exited with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, exportPath string, logger *slog.Logger) error {
	blocks := blockdata.Default()
	if src := cfg.Blocks.Source; src != "" {
		var err error
		if blocks, err = blockdata.Fetch(ctx, src, cfg.Blocks.CacheDir); err != nil {
			return err
		}
		logger.Info("block table loaded", "source", src)
	}

	w := mapgen.New(mapgen.Options{
		Role:     mapgen.RoleAuthority,
		Settings: terrain.SettingsFrom(cfg),
		Blocks:   blocks,
		Logger:   logger,
	})

	var index *persist.Index
	if path := cfg.Persistence.IndexPath; path != "" {
		var err error
		if index, err = persist.OpenIndex(path, logger); err != nil {
			return err
		}
		defer index.Close()
		w.AddListener(index.Listener())
	}

	var journal *persist.Journal
	seed := cfg.Generation.Seed
	resume := false
	if path := cfg.Persistence.JournalPath; path != "" {
		var err error
		if journal, err = persist.OpenJournal(path, logger); err != nil {
			return err
		}
		defer journal.Close()
		meta, ok, err := journal.Meta()
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
		if ok {
			seed, resume = meta.Seed, true
		}
	}

	hub, err := replication.NewHub(w, logger)
	if err != nil {
		return err
	}
	w.SetBroadcaster(hub)

	if err := w.GenerateWorld(ctx, seed); err != nil {
		return err
	}

	if journal != nil {
		if err := restoreJournal(w, journal, resume, logger); err != nil {
			return err
		}
		recorder := persist.NewRecorder(journal, logger)
		defer recorder.Close()
		w.AddChangeSink(recorder)
		w.AddListener(recorder.Listener())
	}

	if exportPath != "" {
		return writeSnapshot(ctx, persist.Capture(w, time.Now()), index, exportPath, logger)
	}
	if dir := cfg.Persistence.SnapshotDir; dir != "" {
		snapshots := &snapshotWriter{world: w, index: index, dir: dir, log: logger}
		snapshots.write(ctx)
		w.AddListener(mapgen.ListenerFuncs{OnServerComplete: func(mapgen.GenerationSummary) { snapshots.write(ctx) }})
	}

	g, ctx := errgroup.WithContext(ctx)

	l, err := net.Listen("tcp", cfg.Replication.ListenAddr)
	if err != nil {
		return fmt.Errorf("replication listen %s: %w", cfg.Replication.ListenAddr, err)
	}
	logger.Info("replication listening", "addr", l.Addr().String())
	g.Go(func() error { return hub.Serve(ctx, l) })

	if cfg.Observer.Enabled {
		feed := observer.NewFeed(cfg.Observer.FlushInterval.Duration(), logger)
		w.AddChangeSink(feed)
		w.AddListener(feed.Listener())
		srv := observer.NewServer(w, feed, logger)
		g.Go(func() error {
			feed.Run(ctx)
			return nil
		})
		g.Go(func() error { return srv.ListenAndServe(ctx, cfg.Observer.ListenAddr) })
	}

	g.Go(func() error {
		reseedOnHangup(ctx, w, logger)
		return nil
	})

	<-ctx.Done()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("world generator stopped")
	return nil
}

// reseedOnHangup regenerates the world with a fresh seed on every SIGHUP.
func reseedOnHangup(ctx context.Context, w *mapgen.WorldState, logger *slog.Logger) {
	hangups := make(chan os.Signal, 1)
	signal.Notify(hangups, syscall.SIGHUP)
	defer signal.Stop(hangups)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hangups:
			logger.Info("regenerating on SIGHUP")
			if err := w.SetNewSeed(ctx, w.Seed()); err != nil {
				logger.Error("regeneration failed", "err", err)
			}
		}
	}
}

// restoreJournal replays runtime mutations recorded for the same seed and
// rebinds the journal to the regenerated world, or resets it for a fresh one.
func restoreJournal(w *mapgen.WorldState, journal *persist.Journal, resume bool, logger *slog.Logger) error {
	if !resume {
		return journal.Reset(w.Seed(), w.GenerationID())
	}
	replayed := 0
	err := journal.Replay(func(key world.WorldBlockKey, t world.BlockType) {
		if w.SetBlock(key, t) {
			replayed++
		}
	})
	if err != nil {
		return fmt.Errorf("replay journal: %w", err)
	}
	if err := journal.Bind(w.Seed(), w.GenerationID()); err != nil {
		return err
	}
	logger.Info("journal replayed", "seed", w.Seed(), "generation", w.GenerationID(), "blocks", replayed)
	return nil
}

func writeSnapshot(ctx context.Context, snap persist.Snapshot, index *persist.Index, path string, logger *slog.Logger) error {
	if err := persist.WriteSnapshot(path, snap); err != nil {
		return err
	}
	if index != nil {
		if err := index.SetSnapshot(ctx, snap.Header.GenerationID, path); err != nil {
			return err
		}
	}
	logger.Info("snapshot exported", "path", path, "seed", snap.Header.Seed, "blocks", snap.Header.Blocks)
	return nil
}

type snapshotWriter struct {
	world *mapgen.WorldState
	index *persist.Index
	dir   string
	log   *slog.Logger
}

func (s *snapshotWriter) write(ctx context.Context) {
	snap := persist.Capture(s.world, time.Now())
	path := filepath.Join(s.dir, persist.FileName(snap.Header))
	if err := writeSnapshot(ctx, snap, s.index, path, s.log); err != nil {
		s.log.Error("snapshot failed", "path", path, "err", err)
	}
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
