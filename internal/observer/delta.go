package observer

import (
	"sort"
	"time"

	"worldgen/internal/world"
)

// BlockDelta is the latest state of one cell within a ChunkDelta.
type BlockDelta struct {
	X      int                `json:"x"`
	Y      int                `json:"y"`
	Z      int                `json:"z"`
	Before world.BlockType    `json:"before"`
	Type   world.BlockType    `json:"type"`
	Health float64            `json:"health,omitempty"`
	Reason world.ChangeReason `json:"reason"`
}

// ChunkDelta batches the changes made to one chunk since the previous flush.
type ChunkDelta struct {
	ChunkX    int          `json:"chunkX"`
	ChunkY    int          `json:"chunkY"`
	Seq       uint64       `json:"seq"`
	Timestamp time.Time    `json:"timestamp"`
	Blocks    []BlockDelta `json:"blocks"`
}

type deltaAccumulator struct {
	data map[world.ChunkCoord]map[world.LocalPos]world.BlockChange
}

var deltaPriority = map[world.ChangeReason]int{
	world.ReasonDamage:  1,
	world.ReasonPlace:   2,
	world.ReasonDestroy: 3,
}

func newDeltaAccumulator() *deltaAccumulator {
	return &deltaAccumulator{
		data: make(map[world.ChunkCoord]map[world.LocalPos]world.BlockChange),
	}
}

// add merges change into the pending batch. The cell keeps its first Before
// and its latest After, and reports the strongest reason seen.
func (d *deltaAccumulator) add(change world.BlockChange) {
	if d.data == nil {
		d.data = make(map[world.ChunkCoord]map[world.LocalPos]world.BlockChange)
	}

	byBlock := d.data[change.Key.Chunk]
	if byBlock == nil {
		byBlock = make(map[world.LocalPos]world.BlockChange)
		d.data[change.Key.Chunk] = byBlock
	}

	if existing, ok := byBlock[change.Key.Pos]; ok {
		change.Before = existing.Before
		if priority(existing.Reason) > priority(change.Reason) {
			change.Reason = existing.Reason
		}
	}

	byBlock[change.Key.Pos] = change
}

func (d *deltaAccumulator) pending() int {
	n := 0
	for _, blocks := range d.data {
		n += len(blocks)
	}
	return n
}

func (d *deltaAccumulator) reset() {
	d.data = make(map[world.ChunkCoord]map[world.LocalPos]world.BlockChange)
}

// flush drains the batch into one delta per chunk, ordered by chunk and then
// by cell, numbering them from *seq.
func (d *deltaAccumulator) flush(seq *uint64, now time.Time) []ChunkDelta {
	if len(d.data) == 0 {
		return nil
	}

	chunks := make([]world.ChunkCoord, 0, len(d.data))
	for chunk, blocks := range d.data {
		if len(blocks) > 0 {
			chunks = append(chunks, chunk)
		}
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].Y != chunks[j].Y {
			return chunks[i].Y < chunks[j].Y
		}
		return chunks[i].X < chunks[j].X
	})

	deltas := make([]ChunkDelta, 0, len(chunks))
	for _, chunk := range chunks {
		blocks := d.data[chunk]
		delta := ChunkDelta{
			ChunkX:    chunk.X,
			ChunkY:    chunk.Y,
			Seq:       *seq,
			Timestamp: now,
			Blocks:    make([]BlockDelta, 0, len(blocks)),
		}
		*seq++
		for pos, change := range blocks {
			delta.Blocks = append(delta.Blocks, BlockDelta{
				X:      pos.X,
				Y:      pos.Y,
				Z:      pos.Z,
				Before: change.Before,
				Type:   change.After,
				Health: change.Health,
				Reason: change.Reason,
			})
		}
		sort.Slice(delta.Blocks, func(i, j int) bool {
			a, b := delta.Blocks[i], delta.Blocks[j]
			return world.KeyLess(
				world.WorldBlockKey{Chunk: chunk, Pos: world.LocalPos{X: a.X, Y: a.Y, Z: a.Z}},
				world.WorldBlockKey{Chunk: chunk, Pos: world.LocalPos{X: b.X, Y: b.Y, Z: b.Z}},
			)
		})
		deltas = append(deltas, delta)
	}

	d.reset()
	return deltas
}

func priority(reason world.ChangeReason) int {
	if v, ok := deltaPriority[reason]; ok {
		return v
	}
	return 0
}
