// Package noise holds the seeded noise and height functions shared by every
// generator. All functions are pure for a fixed Params so that independent
// peers compute identical terrain.
package noise

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Params fixes every input the height field depends on.
type Params struct {
	Seed              int64
	WorldSizeInChunks int
	ChunkSize         int
	ChunkHeight       int
	BaseHeight        int
	HeightVariation   float64
	NoiseScale        float64
	MapFlatness       float64
	// BaseCoreCenter is the flattened radius around the map center, in chunks.
	BaseCoreCenter float64
}

// Engine evaluates the world's noise fields.
type Engine struct {
	p        Params
	gradient opensimplex.Noise
}

func New(p Params) *Engine {
	return &Engine{
		p:        p,
		gradient: opensimplex.New(p.Seed),
	}
}

func (e *Engine) Params() Params {
	return e.p
}

func (e *Engine) Seed() int64 {
	return e.p.Seed
}

// Gradient samples smooth gradient noise in roughly [-1, 1]. Feature
// generators derive their offsets from the seed and sample through here.
func (e *Engine) Gradient(x, y float64) float64 {
	return e.gradient.Eval2(x, y)
}

// ChunkSeedModifier derives the per-chunk height nudge.
func (e *Engine) ChunkSeedModifier(chunkX, chunkY int) int {
	return int((int64(chunkX)*73 + int64(chunkY)*31 + e.p.Seed) % 1000)
}

// PerlinField blends three octaves of value noise into [-1, 1].
func (e *Engine) PerlinField(x, y float64) float64 {
	seed := e.p.Seed
	xOffset := float64(seed%10000) * 0.01
	yOffset := float64(seed%7919) * 0.01
	seedFactor := 1 + float64(seed%1000)/10000

	sx := x*e.p.NoiseScale*seedFactor + xOffset
	sy := y*e.p.NoiseScale*seedFactor + yOffset

	spread := 0.5 + float64(seed%5000)/10000
	n1 := e.valueNoise(sx, sy)
	n2 := e.valueNoise(sx*2*spread, sy*2*spread) * 0.5
	n3 := e.valueNoise(sx*4*(1-spread), sy*4*(1-spread)) * 0.25

	return ClampFloat((n1+n2+n3)/1.75, -1, 1)
}

// FlatnessFactor damps variation near the map center. It ramps from 0.1 at
// the center to 1 at BaseCoreCenter chunks away.
func (e *Engine) FlatnessFactor(worldX, worldY int) float64 {
	center := (e.p.WorldSizeInChunks * e.p.ChunkSize) / 2
	dx := float64(worldX - center)
	dy := float64(worldY - center)
	dist := math.Sqrt(dx*dx + dy*dy)

	radius := e.p.BaseCoreCenter * float64(e.p.ChunkSize)
	if radius <= 0 || dist >= radius {
		return 1
	}
	return ClampFloat(math.Pow(dist/radius, 0.6), 0.1, 1)
}

// TerrainHeight returns the surface height of a column. The result is the
// count of filled cells, so the top block sits at height-1.
func (e *Engine) TerrainHeight(worldX, worldY, chunkSeedModifier int) int {
	flat := e.FlatnessFactor(worldX, worldY)

	offset := e.PerlinField(float64(worldX), float64(worldY)) * e.p.HeightVariation * flat
	offset += float64(chunkSeedModifier) / 2000 * e.p.HeightVariation * flat

	secondary := e.Gradient(float64(worldX)*0.1+float64(e.p.Seed)*0.01, float64(worldY)*0.1) * 2
	offset += secondary * flat
	offset *= 1 - e.p.MapFlatness

	seedBias := float64(e.p.Seed%50)/10 - 2.5
	height := e.p.BaseHeight + Round(offset) + Round(seedBias*flat)
	return ClampInt(height, 1, e.p.ChunkHeight-1)
}

// Round rounds to the nearest integer, halves going up.
func Round(v float64) int {
	return int(math.Floor(v + 0.5))
}

func ClampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func ClampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
