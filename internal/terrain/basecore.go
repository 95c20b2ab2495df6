package terrain

import (
	"github.com/go-gl/mathgl/mgl64"

	"worldgen/internal/world"
)

// BaseCore describes the flattened pad at the map center.
type BaseCore struct {
	// Center is the absolute block column of the pad; Z is the surface
	// height the pad was levelled to.
	Center world.BlockCoord `json:"center"`
	// Location is where the base structure stands.
	Location mgl64.Vec3 `json:"location"`
}

// BaseCoreCenter computes the pad without touching any block.
func (g *Generator) BaseCoreCenter() BaseCore {
	cs := g.layout.ChunkSize
	chunk := world.ChunkCoord{X: g.layout.WorldSizeInChunks / 2, Y: g.layout.WorldSizeInChunks / 2}
	local := world.LocalPos{X: cs / 2, Y: cs / 2}
	x := chunk.X*cs + local.X
	y := chunk.Y*cs + local.Y
	height := g.TerrainHeight(x, y)

	local.Z = height - 1
	location := g.layout.BlockToWorldPosition(chunk, local)
	location[2] += g.layout.BlockSize/2 + g.layout.BlockSize*0.2

	return BaseCore{
		Center:   world.BlockCoord{X: x, Y: y, Z: height},
		Location: location,
	}
}

// ClearBaseCore levels the pad: everything at or above the surface height is
// removed and every hole below it is filled.
func (g *Generator) ClearBaseCore() BaseCore {
	core := g.BaseCoreCenter()
	size := g.settings.Base.CoreSize
	height := core.Center.Z

	for ox := -size; ox <= size; ox++ {
		for oy := -size; oy <= size; oy++ {
			key := g.keyAt(core.Center.X+ox, core.Center.Y+oy, 0)
			for z := height; z < g.layout.ChunkHeight; z++ {
				key.Pos.Z = z
				g.canvas.Place(key, world.BlockAir)
			}
			for z := 0; z < height; z++ {
				key.Pos.Z = z
				if g.canvas.Block(key) == world.BlockAir {
					g.canvas.Place(key, backfillLayer(z, height-1, 2))
				}
			}
		}
	}
	g.log.Info("base core levelled", "center", core.Center, "size", size)
	return core
}

// GenerateDebugWalls rings the base core with a stone wall at Chebyshev
// distance CoreSize+WallDistance, standing on the pad's surface level.
func (g *Generator) GenerateDebugWalls(core BaseCore) int {
	d := g.settings.Debug
	ring := g.settings.Base.CoreSize + d.WallDistance
	thickness := max(1, d.WallThickness)
	base := g.layout.WorldToBlockPosition(core.Location).Z
	placed := 0

	for ox := -ring; ox <= ring; ox++ {
		for oy := -ring; oy <= ring; oy++ {
			if absInt(ox) != ring && absInt(oy) != ring {
				continue
			}
			inX, inY := -sign(ox), -sign(oy)
			for layer := 0; layer < thickness; layer++ {
				key := g.keyAt(core.Center.X+ox+inX*layer, core.Center.Y+oy+inY*layer, 0)
				for z := 0; z < d.WallHeight; z++ {
					key.Pos.Z = base + z
					if g.canvas.Place(key, world.BlockStone) {
						placed++
					}
				}
			}
		}
	}
	g.log.Debug("debug walls generated", "ring", ring, "blocks", placed)
	return placed
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}
