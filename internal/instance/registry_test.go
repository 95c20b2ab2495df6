package instance

import (
	"bytes"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldgen/internal/world"
)

func testLayout() world.Layout {
	return world.Layout{WorldSizeInChunks: 2, ChunkSize: 4, ChunkHeight: 8, BlockSize: 100}
}

func newTestRegistry(buf *bytes.Buffer) *Registry {
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewRegistry(testLayout(), nil, nil, logger)
}

func key(cx, cy, x, y, z int) world.WorldBlockKey {
	return world.WorldBlockKey{Chunk: world.ChunkCoord{X: cx, Y: cy}, Pos: world.LocalPos{X: x, Y: y, Z: z}}
}

func TestSwapRemovePreservesMappings(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRegistry(&buf)

	keys := []world.WorldBlockKey{key(0, 0, 0, 0, 0), key(0, 0, 1, 0, 0), key(0, 0, 2, 0, 0), key(0, 0, 3, 0, 0), key(0, 0, 0, 1, 2)}
	store := world.NewStore()
	for _, k := range keys {
		r.Add(k, world.BlockStone)
		store.SetWithoutReplication(k, world.BlockStone)
	}
	batch := r.Batch(world.ChunkCoord{}, world.BlockStone)
	require.Equal(t, 5, batch.InstanceCount())

	// Remove a non-last instance; the last one must be moved into its slot.
	require.True(t, r.Remove(keys[1], world.BlockStone))
	store.SetWithoutReplication(keys[1], world.BlockAir)

	assert.Equal(t, 4, batch.InstanceCount())
	assert.Equal(t, 4, r.Count(world.ChunkCoord{}, world.BlockStone))
	idx, ok := r.Lookup(keys[4], world.BlockStone)
	require.True(t, ok)
	assert.Equal(t, 1, idx, "last instance should take the removed slot")
	_, ok = r.Lookup(keys[1], world.BlockStone)
	assert.False(t, ok)
	require.NoError(t, r.Verify(store))

	// Removing the last slot needs no reindex.
	require.True(t, r.Remove(keys[3], world.BlockStone))
	store.SetWithoutReplication(keys[3], world.BlockAir)
	require.NoError(t, r.Verify(store))
	assert.Empty(t, buf.String())
}

func TestRemoveMissingInstanceIsSoft(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRegistry(&buf)

	assert.False(t, r.Remove(key(1, 1, 0, 0, 0), world.BlockDirt))
	assert.Contains(t, buf.String(), "no instance data for chunk")

	buf.Reset()
	r.Add(key(1, 1, 0, 0, 0), world.BlockGrass)
	assert.False(t, r.Remove(key(1, 1, 0, 0, 0), world.BlockDirt))
	assert.Contains(t, buf.String(), "instance not found")
	assert.Equal(t, 1, r.Count(world.ChunkCoord{X: 1, Y: 1}, world.BlockGrass))
}

func TestAirIsNeverInstanced(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRegistry(&buf)
	r.Add(key(0, 0, 0, 0, 0), world.BlockAir)
	assert.False(t, r.HasChunk(world.ChunkCoord{}))
	assert.False(t, r.Remove(key(0, 0, 0, 0, 0), world.BlockAir))
	assert.Zero(t, r.Len())
}

func TestEnsureChunkCreatesBatchPerType(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRegistry(&buf)
	c := world.ChunkCoord{X: -1, Y: 0}
	first := r.EnsureChunk(c)
	assert.Same(t, first, r.EnsureChunk(c))
	for i := 1; i < world.BlockTypeCount; i++ {
		b := r.Batch(c, world.BlockType(i))
		require.NotNil(t, b)
		spec := b.(*MemoryBatch).Spec()
		assert.Equal(t, world.BlockType(i) != world.BlockInvisibleWall, spec.Visible)
	}
	assert.Nil(t, r.Batch(c, world.BlockAir))
}

func TestRandomAddRemoveKeepsBijection(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRegistry(&buf)
	store := world.NewStore()
	rng := rand.New(rand.NewSource(7))
	types := []world.BlockType{world.BlockGrass, world.BlockDirt, world.BlockStone}
	layout := testLayout()

	for i := 0; i < 2000; i++ {
		k := key(rng.Intn(2), rng.Intn(2), rng.Intn(layout.ChunkSize), rng.Intn(layout.ChunkSize), rng.Intn(layout.ChunkHeight))
		current := store.Get(k)
		next := world.BlockAir
		if rng.Intn(3) > 0 {
			next = types[rng.Intn(len(types))]
		}
		if next == current {
			continue
		}
		r.Remove(k, current)
		r.Add(k, next)
		store.SetWithoutReplication(k, next)
	}
	require.NoError(t, r.Verify(store))
	assert.Equal(t, store.Len(), r.Len())
	assert.Empty(t, buf.String())
}
