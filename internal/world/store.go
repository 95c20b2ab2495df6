package world

import (
	"sort"
	"sync"
)

// ChunkInfo records per-chunk generation state.
type ChunkInfo struct {
	Generated bool
}

// Store is the sparse authoritative block map. A key that is absent reads as
// Air; Air is never materialized.
type Store struct {
	mu     sync.RWMutex
	blocks map[ChunkCoord]map[LocalPos]BlockType
	infos  map[ChunkCoord]*ChunkInfo
	count  int
}

func NewStore() *Store {
	return &Store{
		blocks: make(map[ChunkCoord]map[LocalPos]BlockType),
		infos:  make(map[ChunkCoord]*ChunkInfo),
	}
}

func (s *Store) Get(key WorldBlockKey) BlockType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	column, ok := s.blocks[key.Chunk]
	if !ok {
		return BlockAir
	}
	t, ok := column[key.Pos]
	if !ok {
		return BlockAir
	}
	return t
}

// SetWithoutReplication is the single write path into the store. Writing
// Air deletes the key.
func (s *Store) SetWithoutReplication(key WorldBlockKey, t BlockType) {
	if t == BlockAll {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	column, ok := s.blocks[key.Chunk]
	if t == BlockAir {
		if !ok {
			return
		}
		if _, present := column[key.Pos]; present {
			delete(column, key.Pos)
			s.count--
		}
		if len(column) == 0 {
			delete(s.blocks, key.Chunk)
		}
		return
	}
	if !ok {
		column = make(map[LocalPos]BlockType)
		s.blocks[key.Chunk] = column
	}
	if _, present := column[key.Pos]; !present {
		s.count++
	}
	column[key.Pos] = t
}

// Len returns the number of non-Air cells.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// EnsureChunkInfo returns the chunk's record, creating it on first use.
func (s *Store) EnsureChunkInfo(coord ChunkCoord) *ChunkInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.infos[coord]
	if !ok {
		info = &ChunkInfo{}
		s.infos[coord] = info
	}
	return info
}

func (s *Store) MarkGenerated(coord ChunkCoord) {
	s.EnsureChunkInfo(coord)
	s.mu.Lock()
	s.infos[coord].Generated = true
	s.mu.Unlock()
}

func (s *Store) IsChunkGenerated(coord ChunkCoord) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.infos[coord]
	return ok && info.Generated
}

// GeneratedChunks lists generated chunks in X-then-Y order.
func (s *Store) GeneratedChunks() []ChunkCoord {
	s.mu.RLock()
	out := make([]ChunkCoord, 0, len(s.infos))
	for coord, info := range s.infos {
		if info.Generated {
			out = append(out, coord)
		}
	}
	s.mu.RUnlock()
	sortChunks(out)
	return out
}

// ForEachInChunk visits every stored cell of one chunk. The callback must not
// write to the store.
func (s *Store) ForEachInChunk(coord ChunkCoord, fn func(pos LocalPos, t BlockType) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for pos, t := range s.blocks[coord] {
		if !fn(pos, t) {
			return
		}
	}
}

// ForEach visits every stored cell in unspecified order.
func (s *Store) ForEach(fn func(key WorldBlockKey, t BlockType) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for coord, column := range s.blocks {
		for pos, t := range column {
			if !fn(WorldBlockKey{Chunk: coord, Pos: pos}, t) {
				return
			}
		}
	}
}

// Entry is one stored cell.
type Entry struct {
	Key  WorldBlockKey
	Type BlockType
}

// Entries returns every stored cell sorted by chunk then position.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, s.Len())
	s.ForEach(func(key WorldBlockKey, t BlockType) bool {
		out = append(out, Entry{Key: key, Type: t})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return KeyLess(out[i].Key, out[j].Key) })
	return out
}

// Reset drops every block and chunk record.
func (s *Store) Reset() {
	s.mu.Lock()
	s.blocks = make(map[ChunkCoord]map[LocalPos]BlockType)
	s.infos = make(map[ChunkCoord]*ChunkInfo)
	s.count = 0
	s.mu.Unlock()
}

// KeyLess orders keys by chunk X, chunk Y, then local X, Y, Z.
func KeyLess(a, b WorldBlockKey) bool {
	if a.Chunk != b.Chunk {
		return chunkLess(a.Chunk, b.Chunk)
	}
	if a.Pos.X != b.Pos.X {
		return a.Pos.X < b.Pos.X
	}
	if a.Pos.Y != b.Pos.Y {
		return a.Pos.Y < b.Pos.Y
	}
	return a.Pos.Z < b.Pos.Z
}

func chunkLess(a, b ChunkCoord) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Y < b.Y
}

func sortChunks(coords []ChunkCoord) {
	sort.Slice(coords, func(i, j int) bool { return chunkLess(coords[i], coords[j]) })
}
