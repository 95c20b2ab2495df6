package persist

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"worldgen/internal/mapgen"
)

// indexTime is fixed width so the text columns sort chronologically.
const indexTime = "2006-01-02T15:04:05.000000000Z07:00"

// GenerationRecord is one finished generation pass.
type GenerationRecord struct {
	ID          uuid.UUID
	Seed        int64
	Authority   bool
	StartedAt   time.Time
	CompletedAt time.Time
	Chunks      int
	Caves       int
	Blocks      int
	Snapshot    string
}

// Index is a sqlite table of past generations.
type Index struct {
	db  *sql.DB
	log *slog.Logger
}

func OpenIndex(path string, logger *slog.Logger) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("empty index path")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initIndex(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init index: %w", err)
	}
	return &Index{db: db, log: logger.With("component", "index")}, nil
}

func initIndex(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS generations (
			id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			authority INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			caves INTEGER NOT NULL,
			blocks INTEGER NOT NULL,
			snapshot_path TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_completed ON generations(completed_at);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_seed ON generations(seed);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (x *Index) RecordGeneration(ctx context.Context, rec GenerationRecord) error {
	_, err := x.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO generations
			(id, seed, authority, started_at, completed_at, duration_ms, chunks, caves, blocks, snapshot_path)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(),
		rec.Seed,
		boolInt(rec.Authority),
		rec.StartedAt.UTC().Format(indexTime),
		rec.CompletedAt.UTC().Format(indexTime),
		rec.CompletedAt.Sub(rec.StartedAt).Milliseconds(),
		rec.Chunks,
		rec.Caves,
		rec.Blocks,
		rec.Snapshot,
	)
	if err != nil {
		return fmt.Errorf("record generation %s: %w", rec.ID, err)
	}
	return nil
}

// SetSnapshot attaches an exported snapshot path to a recorded generation.
func (x *Index) SetSnapshot(ctx context.Context, id uuid.UUID, path string) error {
	if _, err := x.db.ExecContext(ctx, `UPDATE generations SET snapshot_path=? WHERE id=?`, path, id.String()); err != nil {
		return fmt.Errorf("set snapshot for %s: %w", id, err)
	}
	return nil
}

// Generations lists the most recent passes first. A non-positive limit
// returns every row.
func (x *Index) Generations(ctx context.Context, limit int) ([]GenerationRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := x.db.QueryContext(ctx,
		`SELECT id, seed, authority, started_at, completed_at, chunks, caves, blocks, snapshot_path
			FROM generations ORDER BY completed_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer rows.Close()

	var out []GenerationRecord
	for rows.Next() {
		var (
			rec                GenerationRecord
			id, started, ended string
			authority          int
		)
		if err := rows.Scan(&id, &rec.Seed, &authority, &started, &ended, &rec.Chunks, &rec.Caves, &rec.Blocks, &rec.Snapshot); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse generation id: %w", err)
		}
		if rec.StartedAt, err = time.Parse(indexTime, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if rec.CompletedAt, err = time.Parse(indexTime, ended); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		rec.Authority = authority != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Listener records every finished pass of the world it is attached to.
func (x *Index) Listener() mapgen.Listener {
	record := func(s mapgen.GenerationSummary) {
		rec := GenerationRecord{
			ID:          s.ID,
			Seed:        s.Seed,
			Authority:   s.Authority,
			StartedAt:   s.StartedAt,
			CompletedAt: s.CompletedAt,
			Chunks:      s.Chunks,
			Caves:       s.Caves,
			Blocks:      s.Blocks,
		}
		if err := x.RecordGeneration(context.Background(), rec); err != nil {
			x.log.Error("index write failed", "err", err)
		}
	}
	return mapgen.ListenerFuncs{OnServerComplete: record, OnClientComplete: record}
}

func (x *Index) Close() error {
	return x.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
