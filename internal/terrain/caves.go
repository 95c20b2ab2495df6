package terrain

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"worldgen/internal/noise"
	"worldgen/internal/world"
)

// CaveLocation is a registered cave mouth and its interior spawn point.
type CaveLocation struct {
	Entrance mgl64.Vec3 `json:"entrance"`
	Spawn    mgl64.Vec3 `json:"spawn"`
	Edge     Edge       `json:"edge"`
	// Position along the edge, in [0, 1].
	Position float64 `json:"position"`
}

// CavePositions lists the normalized positions of the caves on one edge.
func CavePositions(perEdge int) []float64 {
	if perEdge <= 1 {
		return []float64{0.5}
	}
	out := make([]float64, perEdge)
	for i := range out {
		out[i] = float64(i+1) / float64(perEdge+1)
	}
	return out
}

// GenerateCaveSystem carves every cave, north to east, and rebuilds the cave
// registry. It must run after the mountain border.
func (g *Generator) GenerateCaveSystem() []CaveLocation {
	g.caves = g.caves[:0]
	for _, edge := range Edges {
		for _, position := range CavePositions(g.settings.Caves.PerEdge) {
			g.GenerateCave(edge, position)
		}
	}
	g.log.Info("cave system generated", "caves", len(g.caves), "perEdge", g.settings.Caves.PerEdge)
	return g.Caves()
}

// GenerateCave carves one cave: rock formations around the mouth, the
// tunnel, the optional seal, then the registry entry.
func (g *Generator) GenerateCave(edge Edge, position float64) CaveLocation {
	c := g.settings.Caves
	dx, dy := edge.Direction()
	startX, startY, base := g.caveMouth(edge, position)

	if c.RockyFormations {
		g.generateRockyFormations(startX, startY, base)
	}
	g.carveTunnel(startX, startY, dx, dy, base)
	if c.Seal {
		g.sealEntrance(startX, startY, dx, base)
	}

	eff := g.layout.EffectiveBlockSize()
	half := g.layout.BlockSize / 2
	spawnDepth := noise.Round(float64(c.Depth) * c.SpawnDepthRatio)
	spawnX := startX + dx*spawnDepth
	spawnY := startY + dy*spawnDepth

	loc := CaveLocation{
		Entrance: mgl64.Vec3{
			float64(startX)*eff + half,
			float64(startY)*eff + half,
			float64(base)*eff + half,
		},
		Spawn: mgl64.Vec3{
			float64(spawnX)*eff + half,
			float64(spawnY)*eff + half,
			float64(base+1)*eff + half,
		},
		Edge:     edge,
		Position: position,
	}
	g.caves = append(g.caves, loc)
	g.log.Debug("cave registered", "edge", edge, "position", position, "spawn", loc.Spawn)
	return loc
}

// caveMouth returns the first tunnel column, just outside the map, and the
// ground height the cave is cut at.
func (g *Generator) caveMouth(edge Edge, position float64) (x, y, base int) {
	maxXY := g.mapMax()
	along := int(math.Floor(float64(maxXY) * position))
	switch edge {
	case EdgeNorth:
		x, y = along, -1
	case EdgeSouth:
		x, y = along, maxXY+1
	case EdgeWest:
		x, y = -1, along
	case EdgeEast:
		x, y = maxXY+1, along
	}
	base = g.TerrainHeight(noise.ClampInt(x, 0, maxXY), noise.ClampInt(y, 0, maxXY))
	return x, y, base
}

// generateRockyFormations piles extra rock around a cave mouth, leaving the
// tunnel square clear.
func (g *Generator) generateRockyFormations(caveX, caveY, base int) {
	c := g.settings.Caves
	radius := c.RockyRadius
	seed := g.noise.Seed()
	xOffset := float64(seed) * 0.013
	yOffset := float64(seed*7919) * 0.009
	mouth := c.Width / 2

	for ox := -radius; ox <= radius; ox++ {
		for oy := -radius; oy <= radius; oy++ {
			if absInt(ox) <= mouth && absInt(oy) <= mouth {
				continue
			}
			wx, wy := caveX+ox, caveY+oy

			dist := math.Sqrt(float64(ox*ox + oy*oy))
			falloff := noise.ClampFloat(1-dist/float64(radius), 0, 1)

			fx, fy := float64(wx), float64(wy)
			n1 := g.noise.Gradient(fx*0.1+xOffset, fy*0.1+yOffset)
			n2 := g.noise.Gradient(fx*0.3+xOffset, fy*0.3+yOffset) * 0.5
			combined := (n1 + n2) / 1.5

			chance := falloff * (combined + 1) * 0.5 * c.RockDensity
			if chance < 0.2 {
				continue
			}
			extra := noise.Round(chance * float64(c.MaxExtraRockHeight))
			if extra <= 0 {
				continue
			}

			key := g.keyAt(wx, wy, 0)
			for z := base; z < base+extra && z < g.layout.ChunkHeight; z++ {
				key.Pos.Z = z
				g.canvas.Place(key, rockLayer(float64(z-base)/float64(extra), combined))
			}
		}
	}
}

func rockLayer(percent, combined float64) world.BlockType {
	switch {
	case percent < 0.6:
		return world.BlockStone
	case percent < 0.9:
		if combined > 0 {
			return world.BlockStone
		}
		return world.BlockDirt
	default:
		return world.BlockDirt
	}
}

// tunnelSection is one column of a carved tunnel.
type tunnelSection struct {
	X, Y    int
	Floor   int
	Ceiling int
}

// tunnelSections lays out the tunnel columns inward from the mouth, depth by
// depth. At each depth the lateral deviation is sampled first; then, per
// width offset, the ceiling variation and then the floor variation.
func (g *Generator) tunnelSections(startX, startY, dx, dy, base int) []tunnelSection {
	c := g.settings.Caves
	seed := g.noise.Seed()
	xOffset := float64(seed) * 0.017
	yOffset := float64(seed*3571) * 0.019
	floorVar := int(c.FloorVariation)

	var sections []tunnelSection
	for depth := 0; depth < c.Depth; depth++ {
		x := startX + dx*depth
		y := startY + dy*depth

		profile := math.Sin(float64(depth) / float64(c.Depth) * math.Pi)
		width := max(2, noise.Round(float64(c.Width)*(0.5+0.5*profile)))

		deviation := 0
		if c.NaturalTunnels && c.TunnelDeviation > 0 {
			sample := g.noise.Gradient(float64(depth)*0.3+xOffset, float64(depth)*0.2+yOffset)
			deviation = noise.Round(sample * c.TunnelDeviation)
		}
		if dx != 0 {
			y += deviation
		} else {
			x += deviation
		}

		for w := -width / 2; w <= width/2; w++ {
			tx, ty := x+w, y
			if dx != 0 {
				tx, ty = x, y+w
			}

			extraHeight := 0
			if c.NaturalTunnels && c.HeightVariation > 0 {
				sample := g.noise.Gradient(float64(tx)*0.2, float64(ty)*0.2)
				extraHeight = noise.Round(sample * c.HeightVariation)
			}
			floorOffset := 0
			if c.NaturalTunnels && c.FloorVariation > 0 {
				sample := g.noise.Gradient(float64(tx)*0.15, float64(ty)*0.15)
				floorOffset = noise.ClampInt(noise.Round(sample*c.FloorVariation), -1, floorVar)
			}

			floor := max(base+floorOffset, base-1)
			sections = append(sections, tunnelSection{
				X:       tx,
				Y:       ty,
				Floor:   floor,
				Ceiling: floor + c.Height + extraHeight,
			})
		}
	}
	return sections
}

// carveTunnel digs the tunnel. Each column is backfilled up to its floor
// before the tunnel volume above it is cleared.
func (g *Generator) carveTunnel(startX, startY, dx, dy, base int) {
	ch := g.layout.ChunkHeight
	for _, s := range g.tunnelSections(startX, startY, dx, dy, base) {
		key := g.keyAt(s.X, s.Y, 0)
		for z := 0; z <= s.Floor && z < ch; z++ {
			key.Pos.Z = z
			if g.canvas.Block(key) == world.BlockAir {
				g.canvas.Place(key, backfillLayer(z, s.Floor, 2))
			}
		}
		for z := s.Floor + 1; z < s.Ceiling && z < ch; z++ {
			key.Pos.Z = z
			g.canvas.Place(key, world.BlockAir)
		}
	}
}

// sealEntrance blocks the lower part of the tunnel mouth with invisible
// wall, leaving the top two cells open.
func (g *Generator) sealEntrance(caveX, caveY, dx, base int) {
	c := g.settings.Caves
	height := max(1, c.Height-2)
	for w := -c.Width / 2; w <= c.Width/2; w++ {
		sx, sy := caveX+w, caveY
		if dx != 0 {
			sx, sy = caveX, caveY+w
		}
		key := g.keyAt(sx, sy, 0)
		for z := base; z < base+height && z < g.layout.ChunkHeight; z++ {
			key.Pos.Z = z
			g.canvas.Place(key, world.BlockInvisibleWall)
		}
	}
}
