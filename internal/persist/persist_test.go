package persist

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldgen/internal/config"
	"worldgen/internal/mapgen"
	"worldgen/internal/terrain"
	"worldgen/internal/world"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newWorld(t *testing.T) *mapgen.WorldState {
	t.Helper()
	cfg := config.Default()
	cfg.World.WorldSizeInChunks = 2
	cfg.World.ChunkSize = 16
	cfg.Generation.Workers = 2
	return mapgen.New(mapgen.Options{Role: mapgen.RoleAuthority, Settings: terrain.SettingsFrom(cfg), Logger: quietLogger()})
}

func openJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := OpenJournal(path, quietLogger())
	require.NoError(t, err)
	return j, path
}

func key(cx, cy, x, y, z int) world.WorldBlockKey {
	return world.WorldBlockKey{Chunk: world.ChunkCoord{X: cx, Y: cy}, Pos: world.LocalPos{X: x, Y: y, Z: z}}
}

func TestJournalReplaysInKeyOrder(t *testing.T) {
	j, path := openJournal(t)

	_, ok, err := j.Meta()
	require.NoError(t, err)
	assert.False(t, ok)

	id := uuid.New()
	require.NoError(t, j.Reset(-77, id))
	require.NoError(t, j.Record(key(1, 0, 2, 2, 2), world.BlockTurret))
	require.NoError(t, j.Record(key(-1, 3, 0, 5, 1), world.BlockAir))
	require.NoError(t, j.Record(key(0, 0, 15, 0, 63), world.BlockStone))
	require.NoError(t, j.Record(key(1, 0, 2, 2, 2), world.BlockTrap))
	require.NoError(t, j.Close())

	j, err = OpenJournal(path, quietLogger())
	require.NoError(t, err)
	defer j.Close()

	meta, ok, err := j.Meta()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Meta{Seed: -77, GenerationID: id}, meta)

	var got []world.Entry
	require.NoError(t, j.Replay(func(k world.WorldBlockKey, bt world.BlockType) {
		got = append(got, world.Entry{Key: k, Type: bt})
	}))
	assert.Equal(t, []world.Entry{
		{Key: key(-1, 3, 0, 5, 1), Type: world.BlockAir},
		{Key: key(0, 0, 15, 0, 63), Type: world.BlockStone},
		{Key: key(1, 0, 2, 2, 2), Type: world.BlockTrap},
	}, got)
	n, err := j.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, j.Reset(5, uuid.Nil))
	n, err = j.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBlockKeyEncodingMatchesKeyOrder(t *testing.T) {
	keys := []world.WorldBlockKey{
		key(-3, 0, 0, 0, 0),
		key(0, -1, 9, 9, 9),
		key(0, 0, 0, 0, 5),
		key(0, 0, 1, 0, 0),
		key(2, 1, 0, 0, 0),
	}
	for i, k := range keys {
		decoded, err := decodeBlockKey(encodeBlockKey(k))
		require.NoError(t, err)
		assert.Equal(t, k, decoded)
		if i > 0 {
			require.True(t, world.KeyLess(keys[i-1], k))
			assert.Negative(t, bytes.Compare(encodeBlockKey(keys[i-1]), encodeBlockKey(k)))
		}
	}
	_, err := decodeBlockKey([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestRecorderRestoresMutations(t *testing.T) {
	j, _ := openJournal(t)
	defer j.Close()

	w := newWorld(t)
	require.NoError(t, w.GenerateWorld(context.Background(), 5))
	require.NoError(t, j.Reset(5, w.GenerationID()))
	rec := NewRecorder(j, quietLogger())
	w.AddChangeSink(rec)

	layout := w.Layout()
	require.True(t, w.SetBlockTypeAtPosition(layout.BlockToWorldPosition(world.ChunkCoord{X: 1, Y: 0}, world.LocalPos{X: 3, Y: 3, Z: 40}), world.BlockStorage))
	ground := layout.BlockToWorldPosition(world.ChunkCoord{X: 0, Y: 1}, world.LocalPos{X: 6, Y: 6, Z: 0})
	require.True(t, w.ApplyDamageToBlock(ground, 1e6, world.DamageSource{}))
	rec.Close()

	n, err := j.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	restored := newWorld(t)
	require.NoError(t, restored.GenerateWorld(context.Background(), 5))
	require.NoError(t, j.Replay(func(k world.WorldBlockKey, bt world.BlockType) {
		restored.SetBlock(k, bt)
	}))
	assert.Equal(t, w.Store().Entries(), restored.Store().Entries())
	require.NoError(t, restored.VerifyInstances())
}

func TestRecorderResetsOnNewSeed(t *testing.T) {
	j, _ := openJournal(t)
	defer j.Close()

	w := newWorld(t)
	require.NoError(t, w.GenerateWorld(context.Background(), 8))
	rec := NewRecorder(j, quietLogger())
	rec.Rebind(8, w.GenerationID())
	w.AddChangeSink(rec)
	w.AddListener(rec.Listener())

	require.True(t, w.SetBlockTypeAtPosition(w.Layout().BlockToWorldPosition(world.ChunkCoord{}, world.LocalPos{X: 1, Y: 1, Z: 50}), world.BlockTrap))
	require.NoError(t, w.SetNewSeed(context.Background(), 9))
	rec.Close()

	meta, ok, err := j.Meta()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Meta{Seed: 9, GenerationID: w.GenerationID()}, meta)
	n, err := j.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSnapshotRoundTrip(t *testing.T) {
	w := newWorld(t)
	require.NoError(t, w.GenerateWorld(context.Background(), 21))
	require.True(t, w.SetBlockTypeAtPosition(w.Layout().BlockToWorldPosition(world.ChunkCoord{X: 1, Y: 1}, world.LocalPos{X: 2, Y: 3, Z: 44}), world.BlockProduction))

	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	snap := Capture(w, now)
	require.Equal(t, w.Store().Len(), snap.Header.Blocks)
	require.Len(t, snap.Chunks, 4)

	path := filepath.Join(t.TempDir(), "nested", FileName(snap.Header))
	require.NoError(t, WriteSnapshot(path, snap))

	header, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, snap.Header, header)

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, snap.Header, got.Header)
	assert.Equal(t, snap.Params, got.Params)
	assert.Equal(t, snap.Chunks, got.Chunks)
	assert.Equal(t, snap.Blocks, got.Blocks)

	_, err = ReadSnapshot(filepath.Join(t.TempDir(), "missing.snap.zst"))
	assert.Error(t, err)
}

func TestIndexRecordsGenerations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "worldgen.db")
	idx, err := OpenIndex(path, quietLogger())
	require.NoError(t, err)
	defer idx.Close()

	w := newWorld(t)
	w.AddListener(idx.Listener())
	require.NoError(t, w.GenerateWorld(context.Background(), 3))
	first := w.GenerationID()
	require.NoError(t, w.SetNewSeed(context.Background(), 4))

	ctx := context.Background()
	all, err := idx.Generations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, w.GenerationID(), all[0].ID)
	assert.Equal(t, int64(4), all[0].Seed)
	assert.Equal(t, first, all[1].ID)
	assert.True(t, all[1].Authority)
	assert.Equal(t, 4, all[1].Chunks)
	assert.NotZero(t, all[1].Blocks)
	assert.False(t, all[1].CompletedAt.Before(all[1].StartedAt))

	require.NoError(t, idx.SetSnapshot(ctx, first, "/tmp/first.snap.zst"))
	latest, err := idx.Generations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, w.GenerationID(), latest[0].ID)

	all, err = idx.Generations(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/first.snap.zst", all[1].Snapshot)
}

func TestJournalBindKeepsBlocks(t *testing.T) {
	j, _ := openJournal(t)
	defer j.Close()

	require.NoError(t, j.Reset(3, uuid.New()))
	require.NoError(t, j.Record(key(0, 1, 2, 3, 4), world.BlockStorage))

	id := uuid.New()
	require.NoError(t, j.Bind(3, id))
	meta, ok, err := j.Meta()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Meta{Seed: 3, GenerationID: id}, meta)

	n, err := j.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
