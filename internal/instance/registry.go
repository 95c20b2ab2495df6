// Package instance keeps every non-Air block in the store paired with exactly
// one slot in its chunk's instance batch for that block type.
package instance

import (
	"fmt"
	"log/slog"

	"github.com/go-gl/mathgl/mgl64"

	"worldgen/internal/world"
)

// Describer supplies per-type batch configuration. A nil Describer yields a
// visible, colliding batch with no mesh assigned.
type Describer interface {
	BatchSpec(chunk world.ChunkCoord, t world.BlockType) BatchSpec
}

type slotKey struct {
	Type world.BlockType
	Pos  world.LocalPos
}

// ChunkBatches is the registry entry of one chunk.
type ChunkBatches struct {
	batches map[world.BlockType]Batch
	index   map[slotKey]int
	counts  map[world.BlockType]int
}

// Registry owns the instance bookkeeping of every chunk. It is not safe for
// concurrent mutation; callers serialize access.
type Registry struct {
	layout    world.Layout
	factory   Factory
	describer Describer
	log       *slog.Logger
	chunks    map[world.ChunkCoord]*ChunkBatches
}

func NewRegistry(layout world.Layout, factory Factory, describer Describer, logger *slog.Logger) *Registry {
	if factory == nil {
		factory = MemoryFactory
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		layout:    layout,
		factory:   factory,
		describer: describer,
		log:       logger,
		chunks:    make(map[world.ChunkCoord]*ChunkBatches),
	}
}

// EnsureChunk creates the chunk's batches, one per non-Air type, on first
// use. Later calls return the existing entry.
func (r *Registry) EnsureChunk(coord world.ChunkCoord) *ChunkBatches {
	if cb, ok := r.chunks[coord]; ok {
		return cb
	}
	cb := &ChunkBatches{
		batches: make(map[world.BlockType]Batch, world.BlockTypeCount-1),
		index:   make(map[slotKey]int),
		counts:  make(map[world.BlockType]int, world.BlockTypeCount-1),
	}
	for i := 1; i < world.BlockTypeCount; i++ {
		t := world.BlockType(i)
		spec := BatchSpec{Chunk: coord, Type: t, Visible: t != world.BlockInvisibleWall, Collides: true}
		if r.describer != nil {
			spec = r.describer.BatchSpec(coord, t)
		}
		cb.batches[t] = r.factory.NewBatch(spec)
		cb.counts[t] = 0
	}
	r.chunks[coord] = cb
	return cb
}

// HasChunk reports whether batches exist for the chunk.
func (r *Registry) HasChunk(coord world.ChunkCoord) bool {
	_, ok := r.chunks[coord]
	return ok
}

// ExpectedTransform is the instance transform a block at key must carry.
func (r *Registry) ExpectedTransform(key world.WorldBlockKey) mgl64.Mat4 {
	return mgl64.Translate3D(r.layout.BlockToWorldPosition(key.Chunk, key.Pos).Elem())
}

func (r *Registry) Add(key world.WorldBlockKey, t world.BlockType) {
	if t == world.BlockAir || !t.Valid() {
		return
	}
	cb := r.EnsureChunk(key.Chunk)
	batch := cb.batches[t]
	if batch == nil {
		r.log.Error("no instance batch for block type", "chunk", key.Chunk, "type", t)
		return
	}
	slot := slotKey{Type: t, Pos: key.Pos}
	if _, exists := cb.index[slot]; exists {
		r.log.Warn("instance already registered", "chunk", key.Chunk, "pos", key.Pos, "type", t)
		return
	}
	idx := batch.AddInstance(r.ExpectedTransform(key))
	cb.index[slot] = idx
	cb.counts[t]++
}

// Remove releases the slot held by (key, t) using swap-remove. A missing
// slot means the store and registry diverged; it is logged and ignored.
func (r *Registry) Remove(key world.WorldBlockKey, t world.BlockType) bool {
	if t == world.BlockAir || !t.Valid() {
		return false
	}
	cb, ok := r.chunks[key.Chunk]
	if !ok {
		r.log.Warn("no instance data for chunk", "chunk", key.Chunk, "pos", key.Pos, "type", t)
		return false
	}
	batch := cb.batches[t]
	if batch == nil {
		r.log.Warn("no instance batch for block type", "chunk", key.Chunk, "type", t)
		return false
	}
	slot := slotKey{Type: t, Pos: key.Pos}
	idx, ok := cb.index[slot]
	if !ok {
		r.log.Warn("instance not found", "chunk", key.Chunk, "pos", key.Pos, "type", t)
		return false
	}
	if !r.swapRemove(cb, batch, slot, idx) {
		return false
	}
	cb.counts[t]--
	return true
}

func (r *Registry) swapRemove(cb *ChunkBatches, batch Batch, slot slotKey, idx int) bool {
	last := batch.InstanceCount() - 1
	if last < 0 || idx > last {
		r.log.Error("instance index out of range", "pos", slot.Pos, "type", slot.Type, "index", idx, "count", last+1)
		delete(cb.index, slot)
		return false
	}
	if idx != last {
		moved, ok := batch.InstanceTransform(last)
		if !ok {
			r.log.Error("cannot read last instance", "type", slot.Type, "index", last)
			return false
		}
		batch.UpdateInstanceTransform(idx, moved)
		for other, otherIdx := range cb.index {
			if other.Type == slot.Type && otherIdx == last {
				cb.index[other] = idx
				break
			}
		}
	}
	batch.RemoveInstance(last)
	delete(cb.index, slot)
	return true
}

// Lookup returns the batch index currently assigned to (key, t).
func (r *Registry) Lookup(key world.WorldBlockKey, t world.BlockType) (int, bool) {
	cb, ok := r.chunks[key.Chunk]
	if !ok {
		return 0, false
	}
	idx, ok := cb.index[slotKey{Type: t, Pos: key.Pos}]
	return idx, ok
}

// Count is the registry's own per-type instance tally for a chunk.
func (r *Registry) Count(coord world.ChunkCoord, t world.BlockType) int {
	cb, ok := r.chunks[coord]
	if !ok {
		return 0
	}
	return cb.counts[t]
}

func (r *Registry) Batch(coord world.ChunkCoord, t world.BlockType) Batch {
	cb, ok := r.chunks[coord]
	if !ok {
		return nil
	}
	return cb.batches[t]
}

// Len is the total number of registered instances.
func (r *Registry) Len() int {
	n := 0
	for _, cb := range r.chunks {
		n += len(cb.index)
	}
	return n
}

// Reset drops every chunk entry.
func (r *Registry) Reset() {
	r.chunks = make(map[world.ChunkCoord]*ChunkBatches)
}

// Verify checks the store/registry bijection and that every mapped slot
// holds its block's transform. It returns the first violation found.
func (r *Registry) Verify(store *world.Store) error {
	const tolerance = 1e-6
	var err error
	store.ForEach(func(key world.WorldBlockKey, t world.BlockType) bool {
		if _, ok := r.Lookup(key, t); !ok {
			err = fmt.Errorf("store entry %v (%s) has no instance", key, t)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	for coord, cb := range r.chunks {
		for slot, idx := range cb.index {
			key := world.WorldBlockKey{Chunk: coord, Pos: slot.Pos}
			if got := store.Get(key); got != slot.Type {
				return fmt.Errorf("instance %v (%s) has store type %s", key, slot.Type, got)
			}
			m, ok := cb.batches[slot.Type].InstanceTransform(idx)
			if !ok {
				return fmt.Errorf("instance %v (%s) index %d out of range", key, slot.Type, idx)
			}
			want := Translation(r.ExpectedTransform(key))
			if !Translation(m).ApproxEqualThreshold(want, tolerance) {
				return fmt.Errorf("instance %v (%s) at %v, want %v", key, slot.Type, Translation(m), want)
			}
		}
		for t, batch := range cb.batches {
			if batch.InstanceCount() != cb.counts[t] {
				return fmt.Errorf("chunk %v type %s batch holds %d, count %d", coord, t, batch.InstanceCount(), cb.counts[t])
			}
		}
	}
	return nil
}
