// Package terrain fills the block grid: chunk columns, trees, the mountain
// border, the cave system, the base core clearing and the debug walls.
//
// Every pass is a pure function of the seed and the settings, except for the
// tree rolls, which draw from the shared stream in chunk order. Peers that
// run the passes in the same order with the same seed produce identical
// worlds.
package terrain

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/alitto/pond/v2"

	"worldgen/internal/config"
	"worldgen/internal/noise"
	"worldgen/internal/world"
)

// Settings carries every generation input besides the seed.
type Settings struct {
	World     config.WorldConfig    `json:"world"`
	Terrain   config.TerrainConfig  `json:"terrain"`
	Mountains config.MountainConfig `json:"mountains"`
	Caves     config.CaveConfig     `json:"caves"`
	Base      config.BaseConfig     `json:"base"`
	Debug     config.DebugConfig    `json:"debug"`

	Workers          int `json:"-"`
	ProgressInterval int `json:"-"`
}

func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		World:            cfg.World,
		Terrain:          cfg.Terrain,
		Mountains:        cfg.Mountains,
		Caves:            cfg.Caves,
		Base:             cfg.Base,
		Debug:            cfg.Debug,
		Workers:          cfg.Generation.Workers,
		ProgressInterval: cfg.Generation.ProgressInterval,
	}
}

// NoiseParams derives the height-field inputs for seed.
func (s Settings) NoiseParams(seed int64) noise.Params {
	return noise.Params{
		Seed:              seed,
		WorldSizeInChunks: s.World.WorldSizeInChunks,
		ChunkSize:         s.World.ChunkSize,
		ChunkHeight:       s.World.ChunkHeight,
		BaseHeight:        s.Terrain.BaseHeight,
		HeightVariation:   s.Terrain.HeightVariation,
		NoiseScale:        s.Terrain.NoiseScale,
		MapFlatness:       s.Terrain.MapFlatness,
		BaseCoreCenter:    s.Base.CoreCenterChunks,
	}
}

// Generator runs the generation passes for one world instance.
type Generator struct {
	settings Settings
	layout   world.Layout
	noise    *noise.Engine
	stream   *noise.Stream
	canvas   Canvas
	log      *slog.Logger

	caves []CaveLocation
}

func New(settings Settings, seed int64, canvas Canvas, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		settings: settings,
		layout:   settings.World.Layout(),
		noise:    noise.New(settings.NoiseParams(seed)),
		stream:   noise.NewStream(seed),
		canvas:   canvas,
		log:      logger,
	}
}

func (g *Generator) Noise() *noise.Engine {
	return g.noise
}

func (g *Generator) Layout() world.Layout {
	return g.layout
}

func (g *Generator) Seed() int64 {
	return g.noise.Seed()
}

// Caves returns the cave registry in registration order.
func (g *Generator) Caves() []CaveLocation {
	out := make([]CaveLocation, len(g.caves))
	copy(out, g.caves)
	return out
}

// TerrainHeight is the plain height field, without a chunk modifier.
func (g *Generator) TerrainHeight(worldX, worldY int) int {
	return g.noise.TerrainHeight(worldX, worldY, 0)
}

// Progress receives the number of finished chunks after each chunk.
type Progress func(done, total int)

// GenerateChunks fills every chunk of the world that is not yet generated,
// X-major. Height maps are computed in parallel first; blocks and trees are
// then written serially so that the stream is drawn in a fixed order.
func (g *Generator) GenerateChunks(ctx context.Context, progress Progress) error {
	size := g.layout.WorldSizeInChunks
	coords := make([]world.ChunkCoord, 0, size*size)
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			coord := world.ChunkCoord{X: x, Y: y}
			if g.canvas.IsChunkGenerated(coord) {
				continue
			}
			coords = append(coords, coord)
		}
	}
	total := len(coords)
	if total == 0 {
		g.log.Info("generation progress", "percent", 100)
		return nil
	}

	heights, err := g.heightMaps(ctx, coords)
	if err != nil {
		return err
	}

	interval := g.settings.ProgressInterval
	if interval <= 0 {
		interval = 10
	}
	nextLogPercent := interval
	for i, coord := range coords {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.generateChunk(coord, heights[i])

		done := i + 1
		if progress != nil {
			progress(done, total)
		}
		percent := done * 100 / total
		if percent >= nextLogPercent {
			g.log.Info("generation progress", "percent", percent)
			nextLogPercent = (percent/interval + 1) * interval
		}
	}
	return nil
}

// GenerateChunk fills a single chunk. It is a no-op for generated chunks.
func (g *Generator) GenerateChunk(coord world.ChunkCoord) {
	if g.canvas.IsChunkGenerated(coord) {
		return
	}
	g.generateChunk(coord, g.heightMap(coord))
}

func (g *Generator) heightMaps(ctx context.Context, coords []world.ChunkCoord) ([][]int, error) {
	heights := make([][]int, len(coords))
	workers := g.settings.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(coords) {
		workers = len(coords)
	}

	pool := pond.NewPool(workers)
	defer pool.StopAndWait()

	var wg sync.WaitGroup
	for i, coord := range coords {
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			heights[i] = g.heightMap(coord)
		})
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return heights, nil
}

// heightMap samples the chunk's columns, indexed x*ChunkSize+y.
func (g *Generator) heightMap(coord world.ChunkCoord) []int {
	cs := g.layout.ChunkSize
	modifier := g.noise.ChunkSeedModifier(coord.X, coord.Y)
	out := make([]int, cs*cs)
	for x := 0; x < cs; x++ {
		for y := 0; y < cs; y++ {
			out[x*cs+y] = g.noise.TerrainHeight(coord.X*cs+x, coord.Y*cs+y, modifier)
		}
	}
	return out
}

func (g *Generator) generateChunk(coord world.ChunkCoord, heights []int) {
	g.canvas.EnsureChunk(coord)
	g.canvas.MarkGenerated(coord)

	cs := g.layout.ChunkSize
	seed := float64(g.noise.Seed())
	for x := 0; x < cs; x++ {
		for y := 0; y < cs; y++ {
			worldX := coord.X*cs + x
			worldY := coord.Y*cs + y
			height := heights[x*cs+y]

			for z := 0; z < height; z++ {
				key := world.WorldBlockKey{Chunk: coord, Pos: world.LocalPos{X: x, Y: y, Z: z}}
				g.canvas.Place(key, columnLayer(z, height))
			}

			density := g.settings.Terrain.TreeDensity * 0.05 *
				(1 + math.Sin(float64(worldX)*0.02+float64(worldY)*0.04+seed*0.01))
			density = noise.ClampFloat(density, 0, 0.1)
			if g.stream.Fraction() < density {
				g.GenerateTree(worldX, worldY, height)
			}
		}
	}
}

// columnLayer picks the block for layer z of a column height cells tall.
func columnLayer(z, height int) world.BlockType {
	switch {
	case z == height-1:
		return world.BlockGrass
	case z < height-4:
		return world.BlockStone
	default:
		return world.BlockDirt
	}
}

// backfillLayer picks the block used to fill a hole under a surface at top,
// with depth cells of dirt under the grass cap.
func backfillLayer(z, top, depth int) world.BlockType {
	switch {
	case z == top:
		return world.BlockGrass
	case z >= top-depth:
		return world.BlockDirt
	default:
		return world.BlockStone
	}
}

// keyAt resolves absolute block coordinates to a store key.
func (g *Generator) keyAt(x, y, z int) world.WorldBlockKey {
	return g.layout.LocateBlock(world.BlockCoord{X: x, Y: y, Z: z})
}

// mapMax is the highest absolute block index inside the world on either
// horizontal axis.
func (g *Generator) mapMax() int {
	return g.layout.WorldBlocks() - 1
}
