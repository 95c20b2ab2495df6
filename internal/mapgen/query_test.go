package mapgen

import (
	"context"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldgen/internal/config"
	"worldgen/internal/terrain"
	"worldgen/internal/world"
)

func TestFindNearestBlock(t *testing.T) {
	w, _ := generated(t, 31, func(cfg *config.Config) { cfg.Terrain.TreeDensity = 0 })
	near := blockPos(w, 30, 30, 55)
	far := blockPos(w, 30, 40, 55)
	require.True(t, w.SetBlockTypeAtPosition(near, world.BlockTurret))
	require.True(t, w.SetBlockTypeAtPosition(far, world.BlockTurret))

	origin := blockPos(w, 30, 28, 55)
	got, ok := w.FindNearestBlock(origin, world.BlockTurret, 5000)
	require.True(t, ok)
	assert.Equal(t, near, got)

	// The bound is exclusive.
	_, ok = w.FindNearestBlock(origin, world.BlockTurret, 200)
	assert.False(t, ok)
	got, ok = w.FindNearestBlock(origin, world.BlockTurret, 200.5)
	require.True(t, ok)
	assert.Equal(t, near, got)

	_, ok = w.FindNearestBlock(origin, world.BlockStorage, 5000)
	assert.False(t, ok)

	// Any solid block matches the wildcard.
	storage := blockPos(w, 10, 10, 50)
	require.True(t, w.SetBlockTypeAtPosition(storage, world.BlockStorage))
	got, ok = w.FindNearestBlock(blockPos(w, 10, 10, 52), world.BlockAll, 250)
	require.True(t, ok)
	assert.Equal(t, storage, got)
}

func TestFindNearestBlockSkipsUngeneratedChunks(t *testing.T) {
	w := newMirror(t, testSettings(nil))
	_, ok := w.FindNearestBlock(mgl64.Vec3{100, 100, 100}, world.BlockAll, 10000)
	assert.False(t, ok)
}

func TestEnemySpawnsUseCaves(t *testing.T) {
	w, _ := generated(t, 4, nil)
	caves := w.Caves()
	require.Len(t, caves, 4)

	spawns := w.GetEnemySpawnLocations(6)
	require.Len(t, spawns, 6)
	for i, cave := range caves {
		assert.Equal(t, cave.Spawn, spawns[i])
	}
	eff := w.Layout().EffectiveBlockSize()
	assert.InDelta(t, caves[0].Spawn.X()+3*eff, spawns[4].X(), 1e-9)
	assert.InDelta(t, caves[0].Spawn.Y(), spawns[4].Y(), 1e-9)
	assert.InDelta(t, caves[1].Spawn.X()-3*eff, spawns[5].X(), 1e-9)
	assert.Equal(t, caves[1].Spawn.Z(), spawns[5].Z())

	assert.Len(t, w.GetEnemySpawnLocations(2), 2)
	assert.Empty(t, w.GetEnemySpawnLocations(0))
}

func TestEnemySpawnsFallBackToCorners(t *testing.T) {
	w, _ := generated(t, 4, func(cfg *config.Config) {
		cfg.Caves.SpawnEnemies = false
		cfg.Base.EnemySpawnDistanceFromEdge = 5
	})
	layout := w.Layout()
	eff := layout.EffectiveBlockSize()
	blocks := layout.WorldBlocks()

	spawns := w.GetEnemySpawnLocations(4)
	require.Len(t, spawns, 4)
	corners := [][2]int{{5, 5}, {blocks - 5, 5}, {5, blocks - 5}, {blocks - 5, blocks - 5}}
	for i, c := range corners {
		assert.Equal(t, float64(c[0])*eff+eff/2, spawns[i].X())
		assert.Equal(t, float64(c[1])*eff+eff/2, spawns[i].Y())
		assert.Equal(t, float64(w.gen.TerrainHeight(c[0], c[1])+1)*eff, spawns[i].Z())
	}

	assert.Len(t, w.GetEnemySpawnLocations(0), 1, "count is clamped to at least one")
}

func TestEnemySpawnRingStaysInsideMap(t *testing.T) {
	w, _ := generated(t, 4, func(cfg *config.Config) { cfg.Caves.Enabled = false })
	layout := w.Layout()
	eff := layout.EffectiveBlockSize()
	blocks := layout.WorldBlocks()
	offset := config.Default().Base.EnemySpawnDistanceFromEdge

	spawns := w.GetEnemySpawnLocations(40)
	require.Len(t, spawns, maxEnemySpawns)
	for _, p := range spawns {
		bx := int(math.Floor(p.X() / eff))
		by := int(math.Floor(p.Y() / eff))
		assert.GreaterOrEqual(t, bx, offset)
		assert.LessOrEqual(t, bx, blocks-offset)
		assert.GreaterOrEqual(t, by, offset)
		assert.LessOrEqual(t, by, blocks-offset)
	}
	assert.Equal(t, spawns, w.GetEnemySpawnLocations(40), "spawn queries are repeatable")
}

func TestPlayerSpawnsRingTheBaseCore(t *testing.T) {
	w, _ := newAuthority(t, testSettings(nil))
	assert.Empty(t, w.GetPlayerSpawnLocations(4))
	require.NoError(t, w.GenerateWorld(context.Background(), 17))

	core, ok := w.BaseCore()
	require.True(t, ok)
	eff := w.Layout().EffectiveBlockSize()

	spawns := w.GetPlayerSpawnLocations(100)
	require.Len(t, spawns, maxPlayerSpawns)
	for _, p := range spawns {
		d := math.Hypot(p.X()-core.Location.X(), p.Y()-core.Location.Y())
		assert.GreaterOrEqual(t, d, 3*eff*0.8-1e-9)
		assert.LessOrEqual(t, d, 3*eff*1.2+1e-9)
	}
	assert.Len(t, w.GetPlayerSpawnLocations(-3), 1)
}

func TestEnemySpawnsInRadius(t *testing.T) {
	w, _ := generated(t, 4, nil)
	layout := w.Layout()
	eff := layout.EffectiveBlockSize()
	centre := float64(layout.WorldBlocks()) / 2 * eff

	tests := []struct {
		name     string
		n        int
		min, max float64
		want     int
		lo, hi   float64
	}{
		{name: "band", n: 8, min: 5 * eff, max: 10 * eff, want: 8, lo: 5 * eff, hi: 10 * eff},
		{name: "fixed radius", n: 3, min: 7 * eff, max: 7 * eff, want: 3, lo: 7 * eff, hi: 7 * eff},
		{name: "reversed bounds", n: 4, min: 12 * eff, max: 6 * eff, want: 4, lo: 6 * eff, hi: 12 * eff},
		{name: "negative bounds", n: 2, min: -5, max: -1, want: 2, lo: 0, hi: 0},
		{name: "clamped count", n: 50, min: eff, max: 2 * eff, want: maxEnemySpawns, lo: eff, hi: 2 * eff},
		{name: "no spawns", n: 0, min: eff, max: 2 * eff, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spawns := w.GetEnemySpawnLocationsInRadius(tt.n, tt.min, tt.max)
			require.Len(t, spawns, tt.want)
			for _, p := range spawns {
				d := math.Hypot(p.X()-centre, p.Y()-centre)
				assert.GreaterOrEqual(t, d, tt.lo-1e-6)
				assert.LessOrEqual(t, d, tt.hi+1e-6)
				bx, by := int(math.Floor(p.X()/eff)), int(math.Floor(p.Y()/eff))
				assert.Equal(t, float64(w.gen.TerrainHeight(bx, by)+1)*eff, p.Z())
			}
			assert.Equal(t, spawns, w.GetEnemySpawnLocationsInRadius(tt.n, tt.min, tt.max))
		})
	}
}

func TestPlayerSpawnsAtDistance(t *testing.T) {
	w, _ := newAuthority(t, testSettings(nil))
	assert.Empty(t, w.GetPlayerSpawnLocationsAtDistance(4, 500))
	require.NoError(t, w.GenerateWorld(context.Background(), 17))

	core, ok := w.BaseCore()
	require.True(t, ok)
	eff := w.Layout().EffectiveBlockSize()

	tests := []struct {
		name     string
		n        int
		distance float64
		want     int
		radius   float64
	}{
		{name: "custom distance", n: 6, distance: 8 * eff, want: 6, radius: 8 * eff},
		{name: "default distance", n: 5, distance: 0, want: 5, radius: 3 * eff},
		{name: "negative distance", n: 2, distance: -40, want: 2, radius: 3 * eff},
		{name: "clamped count", n: 90, distance: 4 * eff, want: maxPlayerSpawns, radius: 4 * eff},
		{name: "no spawns", n: 0, distance: 4 * eff, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spawns := w.GetPlayerSpawnLocationsAtDistance(tt.n, tt.distance)
			require.Len(t, spawns, tt.want)
			for _, p := range spawns {
				d := math.Hypot(p.X()-core.Location.X(), p.Y()-core.Location.Y())
				assert.GreaterOrEqual(t, d, tt.radius*0.8-1e-6)
				assert.LessOrEqual(t, d, tt.radius*1.2+1e-6)
			}
		})
	}

	assert.Equal(t, w.GetPlayerSpawnLocations(5), w.GetPlayerSpawnLocationsAtDistance(5, 0))
}

func TestCaveLocationByEdge(t *testing.T) {
	w, _ := generated(t, 4, nil)
	for _, edge := range terrain.Edges {
		cave, ok := w.GetCaveLocationByEdge(edge)
		require.True(t, ok, edge.String())
		assert.Equal(t, edge, cave.Edge)
	}
	_, ok := w.GetCaveLocationByEdge(terrain.Edge(9))
	assert.False(t, ok)

	bare, _ := generated(t, 4, func(cfg *config.Config) { cfg.Caves.Enabled = false })
	_, ok = bare.GetCaveLocationByEdge(terrain.EdgeNorth)
	assert.False(t, ok)
}

func TestIsNearBaseCore(t *testing.T) {
	w, _ := newAuthority(t, testSettings(nil))
	assert.False(t, w.IsNearBaseCore(0, 0, 1000), "no base core before generation")
	require.NoError(t, w.GenerateWorld(context.Background(), 17))

	core, ok := w.BaseCore()
	require.True(t, ok)
	cx, cy := core.Center.X, core.Center.Y

	tests := []struct {
		name string
		x, y int
		dist int
		want bool
	}{
		{name: "center", x: cx, y: cy, dist: 0, want: true},
		{name: "on the bound", x: cx + 4, y: cy - 4, dist: 4, want: true},
		{name: "past the bound on x", x: cx + 5, y: cy, dist: 4, want: false},
		{name: "past the bound on y", x: cx, y: cy - 5, dist: 4, want: false},
		{name: "negative distance", x: cx, y: cy, dist: -1, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.IsNearBaseCore(tt.x, tt.y, tt.dist))
		})
	}
}
