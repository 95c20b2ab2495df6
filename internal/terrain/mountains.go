package terrain

import (
	"math"

	"worldgen/internal/noise"
	"worldgen/internal/world"
)

// Edge names one side of the square map.
type Edge int

const (
	EdgeNorth Edge = iota
	EdgeSouth
	EdgeWest
	EdgeEast
)

// Edges lists the sides in generation order.
var Edges = [...]Edge{EdgeNorth, EdgeSouth, EdgeWest, EdgeEast}

func (e Edge) String() string {
	switch e {
	case EdgeNorth:
		return "north"
	case EdgeSouth:
		return "south"
	case EdgeWest:
		return "west"
	case EdgeEast:
		return "east"
	default:
		return "unknown"
	}
}

// Direction is the outward unit vector of the edge.
func (e Edge) Direction() (dx, dy int) {
	switch e {
	case EdgeNorth:
		return 0, -1
	case EdgeSouth:
		return 0, 1
	case EdgeWest:
		return -1, 0
	case EdgeEast:
		return 1, 0
	default:
		return 0, 0
	}
}

// GenerateMountainBorder raises a range along all four edges.
func (g *Generator) GenerateMountainBorder() int {
	placed := 0
	for _, edge := range Edges {
		n := g.GenerateMountainRange(edge)
		g.log.Debug("mountain range generated", "edge", edge, "blocks", n)
		placed += n
	}
	return placed
}

// GenerateMountainRange fills the band of BorderWidth columns outside one
// edge. North and south bands also cover the corners.
func (g *Generator) GenerateMountainRange(edge Edge) int {
	width := g.settings.Mountains.BorderWidth
	if width <= 0 {
		return 0
	}
	maxXY := g.mapMax()
	placed := 0

	column := func(x, y, depth, baseX, baseY int) {
		height := g.MountainHeight(x, y, depth)
		base := g.TerrainHeight(baseX, baseY)
		key := g.keyAt(x, y, 0)
		for z := 0; z < height; z++ {
			key.Pos.Z = base + z
			if g.canvas.Place(key, g.mountainBlock(z, height, key.Pos.X, key.Pos.Y)) {
				placed++
			}
		}
	}

	switch edge {
	case EdgeNorth, EdgeSouth:
		for x := -width; x <= maxXY+width; x++ {
			for depth := 0; depth < width; depth++ {
				y, baseY := -depth-1, 0
				if edge == EdgeSouth {
					y, baseY = maxXY+depth+1, maxXY
				}
				column(x, y, depth, noise.ClampInt(x, 0, maxXY), baseY)
			}
		}
	case EdgeWest, EdgeEast:
		for y := 0; y <= maxXY; y++ {
			for depth := 0; depth < width; depth++ {
				x, baseX := -depth-1, 0
				if edge == EdgeEast {
					x, baseX = maxXY+depth+1, maxXY
				}
				column(x, y, depth, baseX, y)
			}
		}
	}
	return placed
}

// MountainHeight is the number of cells a border column rises above the
// ground. It is tallest at the literal edge (depth 0).
func (g *Generator) MountainHeight(worldX, worldY, depth int) int {
	m := g.settings.Mountains
	seed := g.noise.Seed()
	xOffset := float64(seed) * 0.007
	yOffset := float64(seed*7919) * 0.007

	fx, fy := float64(worldX), float64(worldY)
	n1 := g.noise.Gradient(fx*m.NoiseScale+xOffset, fy*m.NoiseScale+yOffset)
	n2 := g.noise.Gradient(fx*m.NoiseScale*2+xOffset, fy*m.NoiseScale*2+yOffset) * 0.5
	combined := (n1 + n2) / 1.5

	falloff := math.Pow(1-float64(depth)/float64(m.BorderWidth), 0.6)

	heightRange := m.MaxHeight - m.MinHeight
	noiseHeight := noise.Round(float64(heightRange) * (combined + 1) * 0.5)
	height := m.MinHeight + noise.Round(float64(noiseHeight)*falloff)
	return noise.ClampInt(height, m.MinHeight, m.MaxHeight)
}

// mountainBlock bands a mountain column by relative height. localX and
// localY pick the mottling sample.
func (g *Generator) mountainBlock(layer, total, localX, localY int) world.BlockType {
	percent := float64(layer) / float64(total)
	mottle := g.noise.Gradient(float64(localX)*0.15, float64(localY)*0.15)

	switch {
	case percent < 0.3:
		return world.BlockStone
	case percent < 0.7:
		if mottle > 0 {
			return world.BlockStone
		}
		return world.BlockDirt
	case percent < 0.9:
		if mottle > 0.3 {
			return world.BlockDirt
		}
		return world.BlockStone
	default:
		if mottle > -0.2 {
			return world.BlockGrass
		}
		return world.BlockDirt
	}
}
