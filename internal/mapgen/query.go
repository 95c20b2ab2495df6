package mapgen

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"worldgen/internal/noise"
	"worldgen/internal/terrain"
	"worldgen/internal/world"
)

const (
	maxEnemySpawns  = 16
	maxPlayerSpawns = 32
	minEdgeOffset   = 3
)

// FindNearestBlock returns the center of the nearest cell of type t strictly
// closer than maxDistance to origin. world.BlockAll matches any non-Air
// cell. Only generated chunks are searched.
func (w *WorldState) FindNearestBlock(origin mgl64.Vec3, t world.BlockType, maxDistance float64) (mgl64.Vec3, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if maxDistance <= 0 {
		return mgl64.Vec3{}, false
	}

	span := float64(w.layout.ChunkSize) * w.layout.EffectiveBlockSize()
	radius := int(math.Ceil(maxDistance/span)) + 1
	center := w.layout.WorldToChunkCoord(origin)

	var (
		best    = maxDistance * maxDistance
		bestKey world.WorldBlockKey
		bestPos mgl64.Vec3
		found   bool
	)
	for cx := center.X - radius; cx <= center.X+radius; cx++ {
		for cy := center.Y - radius; cy <= center.Y+radius; cy++ {
			coord := world.ChunkCoord{X: cx, Y: cy}
			if !w.store.IsChunkGenerated(coord) {
				continue
			}
			w.store.ForEachInChunk(coord, func(pos world.LocalPos, bt world.BlockType) bool {
				if bt == world.BlockAir || (t != world.BlockAll && bt != t) {
					return true
				}
				p := w.layout.BlockToWorldPosition(coord, pos)
				diff := p.Sub(origin)
				d := diff.Dot(diff)
				key := world.WorldBlockKey{Chunk: coord, Pos: pos}
				if d < best || (found && d == best && world.KeyLess(key, bestKey)) {
					best, bestKey, bestPos, found = d, key, p, true
				}
				return true
			})
		}
	}
	return bestPos, found
}

// GetEnemySpawnLocations returns n candidate enemy spawn points. Cave
// interiors are used when the cave system is enabled and populated;
// otherwise the points sit near the map corners or on a ring around the
// map center.
func (w *WorldState) GetEnemySpawnLocations(n int) []mgl64.Vec3 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c := w.settings.Caves
	if c.Enabled && c.SpawnEnemies && len(w.caves) > 0 {
		return w.caveSpawnsLocked(n)
	}
	return w.edgeSpawnsLocked(n)
}

func (w *WorldState) caveSpawnsLocked(n int) []mgl64.Vec3 {
	if n <= 0 {
		return nil
	}
	out := make([]mgl64.Vec3, 0, n)
	for i := 0; i < n && i < len(w.caves); i++ {
		out = append(out, w.caves[i].Spawn)
	}
	remaining := n - len(out)
	spread := 3 * w.layout.EffectiveBlockSize()
	for i := 0; i < remaining; i++ {
		cave := w.caves[i%len(w.caves)]
		angle := float64(i) * 2 * math.Pi / float64(remaining)
		out = append(out, cave.Spawn.Add(mgl64.Vec3{
			math.Cos(angle) * spread,
			math.Sin(angle) * spread,
			0,
		}))
	}
	return out
}

func (w *WorldState) edgeSpawnsLocked(n int) []mgl64.Vec3 {
	n = noise.ClampInt(n, 1, maxEnemySpawns)
	blocks := w.layout.WorldBlocks()
	offset := max(minEdgeOffset, w.settings.Base.EnemySpawnDistanceFromEdge)
	out := make([]mgl64.Vec3, 0, n)

	if n <= 4 {
		corners := [4][2]int{
			{offset, offset},
			{blocks - offset, offset},
			{offset, blocks - offset},
			{blocks - offset, blocks - offset},
		}
		for _, corner := range corners[:n] {
			out = append(out, w.surfacePointLocked(corner[0], corner[1]))
		}
		return out
	}

	eff := w.layout.EffectiveBlockSize()
	stream := noise.NewStream(w.seed)
	centre := float64(blocks) / 2 * eff
	baseRadius := float64(blocks/2-offset) * eff
	for i := 0; i < n; i++ {
		angle := float64(i) * 2 * math.Pi / float64(n)
		r := baseRadius * stream.FRandRange(0.9, 1.1)
		bx := noise.ClampInt(int(math.Floor((centre+math.Cos(angle)*r)/eff)), offset, blocks-offset)
		by := noise.ClampInt(int(math.Floor((centre+math.Sin(angle)*r)/eff)), offset, blocks-offset)
		out = append(out, w.surfacePointLocked(bx, by))
	}
	return out
}

// surfacePointLocked is the world position one cell above the ground of the
// absolute column (x, y).
func (w *WorldState) surfacePointLocked(x, y int) mgl64.Vec3 {
	eff := w.layout.EffectiveBlockSize()
	height := w.gen.TerrainHeight(x, y)
	return mgl64.Vec3{
		float64(x)*eff + eff/2,
		float64(y)*eff + eff/2,
		float64(height+1) * eff,
	}
}

// GetEnemySpawnLocationsInRadius returns n points evenly spread by angle
// around the map center, each at a distance drawn from [minDist, maxDist].
// The bounds are swapped when given in reverse and negative bounds count as
// zero.
func (w *WorldState) GetEnemySpawnLocationsInRadius(n int, minDist, maxDist float64) []mgl64.Vec3 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	n = min(n, maxEnemySpawns)
	minDist, maxDist = math.Max(0, minDist), math.Max(0, maxDist)
	if minDist > maxDist {
		minDist, maxDist = maxDist, minDist
	}

	eff := w.layout.EffectiveBlockSize()
	centre := float64(w.layout.WorldBlocks()) / 2 * eff
	stream := noise.NewStream(w.seed)
	out := make([]mgl64.Vec3, 0, n)
	for i := 0; i < n; i++ {
		angle := float64(i) * 2 * math.Pi / float64(n)
		r := stream.FRandRange(minDist, maxDist)
		x := centre + math.Cos(angle)*r
		y := centre + math.Sin(angle)*r
		out = append(out, w.groundedLocked(x, y))
	}
	return out
}

// GetPlayerSpawnLocations returns n points on a jittered ring around the
// base core. It is empty until a base core has been placed.
func (w *WorldState) GetPlayerSpawnLocations(n int) []mgl64.Vec3 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.playerRingLocked(noise.ClampInt(n, 1, maxPlayerSpawns), 0)
}

// GetPlayerSpawnLocationsAtDistance is GetPlayerSpawnLocations with the ring
// radius set to distance. A non-positive distance uses the default radius.
func (w *WorldState) GetPlayerSpawnLocationsAtDistance(n int, distance float64) []mgl64.Vec3 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	return w.playerRingLocked(min(n, maxPlayerSpawns), distance)
}

// playerRingLocked places n points around the base core at distance scaled
// by a factor in [0.8, 1.2].
func (w *WorldState) playerRingLocked(n int, distance float64) []mgl64.Vec3 {
	if w.baseCore == nil {
		return nil
	}
	eff := w.layout.EffectiveBlockSize()
	if distance <= 0 {
		distance = 3 * eff
	}
	stream := noise.NewStream(w.seed)
	core := w.baseCore.Location

	out := make([]mgl64.Vec3, 0, n)
	for i := 0; i < n; i++ {
		angle := float64(i) * 2 * math.Pi / float64(n)
		r := distance * stream.FRandRange(0.8, 1.2)
		out = append(out, w.groundedLocked(core.X()+math.Cos(angle)*r, core.Y()+math.Sin(angle)*r))
	}
	return out
}

// groundedLocked lifts the world point (x, y) to one cell above the terrain
// height of the column it falls in.
func (w *WorldState) groundedLocked(x, y float64) mgl64.Vec3 {
	eff := w.layout.EffectiveBlockSize()
	height := w.gen.TerrainHeight(int(math.Floor(x/eff)), int(math.Floor(y/eff)))
	return mgl64.Vec3{x, y, float64(height+1) * eff}
}

// GetCaveLocationByEdge returns the first registered cave on edge.
func (w *WorldState) GetCaveLocationByEdge(edge terrain.Edge) (terrain.CaveLocation, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, cave := range w.caves {
		if cave.Edge == edge {
			return cave, true
		}
	}
	w.log.Debug("no cave on edge", "edge", edge)
	return terrain.CaveLocation{}, false
}

// IsNearBaseCore reports whether the absolute column (x, y) lies within
// dist blocks of the base core center on both axes.
func (w *WorldState) IsNearBaseCore(x, y, dist int) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.baseCore == nil || dist < 0 {
		return false
	}
	c := w.baseCore.Center
	return abs(x-c.X) <= dist && abs(y-c.Y) <= dist
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
