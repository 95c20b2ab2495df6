package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreDefaultsToAir(t *testing.T) {
	s := NewStore()
	key := WorldBlockKey{Chunk: ChunkCoord{X: 1, Y: 2}, Pos: LocalPos{X: 3, Y: 4, Z: 5}}
	assert.Equal(t, BlockAir, s.Get(key))

	s.SetWithoutReplication(key, BlockStone)
	assert.Equal(t, BlockStone, s.Get(key))
	assert.Equal(t, 1, s.Len())

	s.SetWithoutReplication(key, BlockDirt)
	assert.Equal(t, BlockDirt, s.Get(key))
	assert.Equal(t, 1, s.Len(), "upsert must not grow the store")

	s.SetWithoutReplication(key, BlockAir)
	assert.Equal(t, BlockAir, s.Get(key))
	assert.Zero(t, s.Len())
	s.ForEach(func(WorldBlockKey, BlockType) bool {
		t.Fatalf("air must never be materialized")
		return false
	})
}

func TestStoreIgnoresWildcard(t *testing.T) {
	s := NewStore()
	key := WorldBlockKey{Pos: LocalPos{X: 1}}
	s.SetWithoutReplication(key, BlockAll)
	assert.Zero(t, s.Len())
}

func TestStoreChunkInfo(t *testing.T) {
	s := NewStore()
	c := ChunkCoord{X: 2, Y: 1}
	assert.False(t, s.IsChunkGenerated(c))

	info := s.EnsureChunkInfo(c)
	require.NotNil(t, info)
	assert.False(t, s.IsChunkGenerated(c))
	assert.Same(t, info, s.EnsureChunkInfo(c))

	s.MarkGenerated(c)
	s.MarkGenerated(ChunkCoord{X: 0, Y: 3})
	assert.True(t, s.IsChunkGenerated(c))
	assert.Equal(t, []ChunkCoord{{X: 0, Y: 3}, {X: 2, Y: 1}}, s.GeneratedChunks())

	s.Reset()
	assert.False(t, s.IsChunkGenerated(c))
	assert.Empty(t, s.GeneratedChunks())
}

func TestStoreEntriesSorted(t *testing.T) {
	s := NewStore()
	keys := []WorldBlockKey{
		{Chunk: ChunkCoord{X: 1}, Pos: LocalPos{Z: 1}},
		{Chunk: ChunkCoord{X: 0, Y: 1}, Pos: LocalPos{X: 2}},
		{Chunk: ChunkCoord{X: 0, Y: 1}, Pos: LocalPos{X: 1, Z: 3}},
		{Chunk: ChunkCoord{X: 0, Y: 0}, Pos: LocalPos{Y: 9}},
	}
	for _, k := range keys {
		s.SetWithoutReplication(k, BlockGrass)
	}
	entries := s.Entries()
	require.Len(t, entries, len(keys))
	for i := 1; i < len(entries); i++ {
		assert.True(t, KeyLess(entries[i-1].Key, entries[i].Key))
	}
}

func TestParseBlockType(t *testing.T) {
	for i := 0; i < BlockTypeCount; i++ {
		bt := BlockType(i)
		parsed, err := ParseBlockType(bt.String())
		require.NoError(t, err)
		assert.Equal(t, bt, parsed)
	}
	parsed, err := ParseBlockType(" ALL ")
	require.NoError(t, err)
	assert.Equal(t, BlockAll, parsed)

	_, err = ParseBlockType("lava")
	assert.Error(t, err)
}
