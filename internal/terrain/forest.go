package terrain

import (
	"worldgen/internal/noise"
	"worldgen/internal/world"
)

const (
	minTrunkHeight = 3
	maxTrunkHeight = 8
	// Chance that a leaf on the canopy rim survives.
	leafRimKeepChance = 0.6
)

// GenerateTree grows a tree rooted at (worldX, worldY, worldZ), worldZ being
// the first free cell above the surface. It draws from the shared stream in
// a fixed order: trunk height, canopy radius, then per canopy column a leaf
// height followed by one rim roll per rim cell.
func (g *Generator) GenerateTree(worldX, worldY, worldZ int) {
	root := g.keyAt(worldX, worldY, worldZ)
	cs := g.layout.ChunkSize
	ch := g.layout.ChunkHeight
	seed := g.noise.Seed()

	trunk := g.stream.RandRange(3, 6)
	offset := int((int64(worldX)*31+int64(worldY)*17+seed)%3) - 1
	trunk = noise.ClampInt(trunk+offset, minTrunkHeight, maxTrunkHeight)

	for z := 0; z < trunk; z++ {
		pos := root.Pos
		pos.Z = worldZ + z
		if pos.Z < ch {
			g.canvas.Place(world.WorldBlockKey{Chunk: root.Chunk, Pos: pos}, world.BlockWood)
		}
	}

	radius := g.stream.RandRange(2, 3)
	for lx := -radius; lx <= radius; lx++ {
		for ly := -radius; ly <= radius; ly++ {
			leafHeight := g.stream.RandRange(2, 3)
			for lz := 0; lz <= leafHeight; lz++ {
				if lx == 0 && ly == 0 && lz < leafHeight {
					continue
				}
				rim := absInt(lx) == radius || absInt(ly) == radius
				if rim && g.stream.Fraction() >= leafRimKeepChance {
					continue
				}

				pos := world.LocalPos{
					X: root.Pos.X + lx,
					Y: root.Pos.Y + ly,
					Z: worldZ + trunk - 1 + lz,
				}
				// Leaves never spill into neighbouring chunks.
				if pos.X < 0 || pos.X >= cs || pos.Y < 0 || pos.Y >= cs || pos.Z < 0 || pos.Z >= ch {
					continue
				}
				g.canvas.Place(world.WorldBlockKey{Chunk: root.Chunk, Pos: pos}, world.BlockLeaves)
			}
		}
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
