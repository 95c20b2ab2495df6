package terrain

import (
	"worldgen/internal/instance"
	"worldgen/internal/world"
)

// Canvas is the block surface generators write through. Every write keeps
// the block store and the instance registry in lockstep.
type Canvas interface {
	Block(key world.WorldBlockKey) world.BlockType
	// Place sets the cell to t, swapping the old instance for a new one when
	// the type changes. Placing Air clears the cell.
	Place(key world.WorldBlockKey, t world.BlockType) bool
	EnsureChunk(coord world.ChunkCoord)
	MarkGenerated(coord world.ChunkCoord)
	IsChunkGenerated(coord world.ChunkCoord) bool
}

// StoreCanvas applies generator writes to a block store and its registry.
type StoreCanvas struct {
	layout   world.Layout
	store    *world.Store
	registry *instance.Registry
}

func NewCanvas(layout world.Layout, store *world.Store, registry *instance.Registry) *StoreCanvas {
	return &StoreCanvas{layout: layout, store: store, registry: registry}
}

func (c *StoreCanvas) Block(key world.WorldBlockKey) world.BlockType {
	if !c.layout.ContainsLocal(key.Pos) {
		return world.BlockAir
	}
	return c.store.Get(key)
}

// Place reports whether the cell changed. Positions outside a chunk's
// vertical or horizontal extent are ignored.
func (c *StoreCanvas) Place(key world.WorldBlockKey, t world.BlockType) bool {
	if !c.layout.ContainsLocal(key.Pos) || !t.Valid() {
		return false
	}
	old := c.store.Get(key)
	if old == t {
		return false
	}
	if old != world.BlockAir {
		c.registry.Remove(key, old)
	}
	c.store.SetWithoutReplication(key, t)
	if t != world.BlockAir {
		c.registry.Add(key, t)
	}
	return true
}

func (c *StoreCanvas) EnsureChunk(coord world.ChunkCoord) {
	c.registry.EnsureChunk(coord)
}

func (c *StoreCanvas) MarkGenerated(coord world.ChunkCoord) {
	c.store.MarkGenerated(coord)
}

func (c *StoreCanvas) IsChunkGenerated(coord world.ChunkCoord) bool {
	return c.store.IsChunkGenerated(coord)
}
