package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// coordEpsilon nudges world positions before flooring so a position sitting
// exactly on a cell boundary always resolves to the same side.
const coordEpsilon = 0.001

// ChunkCoord identifies a chunk in the 2D chunk grid. The world is not
// chunked vertically.
type ChunkCoord struct {
	X int
	Y int
}

// LocalPos is a block position relative to its owning chunk.
type LocalPos struct {
	X int
	Y int
	Z int
}

// WorldBlockKey uniquely identifies one voxel cell worldwide.
type WorldBlockKey struct {
	Chunk ChunkCoord
	Pos   LocalPos
}

// BlockCoord describes a block position in absolute block space.
type BlockCoord struct {
	X int
	Y int
	Z int
}

// Layout holds the world dimensions and block footprint shared by every
// coordinate transform.
type Layout struct {
	WorldSizeInChunks int
	ChunkSize         int
	ChunkHeight       int
	BlockSize         float64
	BlockSpacing      float64
}

// EffectiveBlockSize is the distance between neighbouring block centers.
func (l Layout) EffectiveBlockSize() float64 {
	return l.BlockSize + l.BlockSpacing
}

// WorldBlocks is the edge length of the generated map in blocks.
func (l Layout) WorldBlocks() int {
	return l.WorldSizeInChunks * l.ChunkSize
}

// InWorld reports whether the chunk lies inside the generated terrain grid.
// Chunks outside it only ever hold border features.
func (l Layout) InWorld(coord ChunkCoord) bool {
	return coord.X >= 0 && coord.Y >= 0 &&
		coord.X < l.WorldSizeInChunks && coord.Y < l.WorldSizeInChunks
}

// ContainsLocal reports whether pos is a valid position inside one chunk.
func (l Layout) ContainsLocal(pos LocalPos) bool {
	return pos.X >= 0 && pos.Y >= 0 && pos.Z >= 0 &&
		pos.X < l.ChunkSize && pos.Y < l.ChunkSize && pos.Z < l.ChunkHeight
}

// WorldToChunkCoord returns the chunk containing a world position. A small
// epsilon keeps positions on a chunk boundary on the upper side.
func (l Layout) WorldToChunkCoord(pos mgl64.Vec3) ChunkCoord {
	span := float64(l.ChunkSize) * l.EffectiveBlockSize()
	return ChunkCoord{
		X: int(math.Floor((pos.X() + coordEpsilon) / span)),
		Y: int(math.Floor((pos.Y() + coordEpsilon) / span)),
	}
}

// WorldToBlockPosition returns the chunk-local cell containing a world
// position. X and Y wrap into [0, ChunkSize) for negative positions too.
func (l Layout) WorldToBlockPosition(pos mgl64.Vec3) LocalPos {
	eff := l.EffectiveBlockSize()
	absX := int(math.Floor((pos.X() + coordEpsilon) / eff))
	absY := int(math.Floor((pos.Y() + coordEpsilon) / eff))
	z := int(math.Floor((pos.Z() + coordEpsilon) / eff))
	return LocalPos{
		X: floorMod(absX, l.ChunkSize),
		Y: floorMod(absY, l.ChunkSize),
		Z: z,
	}
}

// WorldToKey resolves a world position to the cell containing it.
func (l Layout) WorldToKey(pos mgl64.Vec3) WorldBlockKey {
	return WorldBlockKey{Chunk: l.WorldToChunkCoord(pos), Pos: l.WorldToBlockPosition(pos)}
}

// BlockToWorldPosition returns the world-space center of a block.
func (l Layout) BlockToWorldPosition(chunk ChunkCoord, pos LocalPos) mgl64.Vec3 {
	eff := l.EffectiveBlockSize()
	half := l.BlockSize / 2
	absX := chunk.X*l.ChunkSize + pos.X
	absY := chunk.Y*l.ChunkSize + pos.Y
	return mgl64.Vec3{
		float64(absX)*eff + half,
		float64(absY)*eff + half,
		float64(pos.Z)*eff + half,
	}
}

// LocateBlock splits an absolute block coordinate into its chunk key.
func (l Layout) LocateBlock(block BlockCoord) WorldBlockKey {
	return WorldBlockKey{
		Chunk: ChunkCoord{X: floorDiv(block.X, l.ChunkSize), Y: floorDiv(block.Y, l.ChunkSize)},
		Pos: LocalPos{
			X: floorMod(block.X, l.ChunkSize),
			Y: floorMod(block.Y, l.ChunkSize),
			Z: block.Z,
		},
	}
}

// Absolute converts a key back to absolute block space.
func (l Layout) Absolute(key WorldBlockKey) BlockCoord {
	return BlockCoord{
		X: key.Chunk.X*l.ChunkSize + key.Pos.X,
		Y: key.Chunk.Y*l.ChunkSize + key.Pos.Y,
		Z: key.Pos.Z,
	}
}

func floorDiv(value, size int) int {
	if size <= 0 {
		return 0
	}
	if value >= 0 {
		return value / size
	}
	return -((-value - 1) / size) - 1
}

func floorMod(value, size int) int {
	if size <= 0 {
		return 0
	}
	m := value % size
	if m < 0 {
		m += size
	}
	return m
}
