package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"worldgen/internal/world"
)

// ErrInvalid marks configuration values rejected by Validate.
var ErrInvalid = errors.New("invalid config")

// Duration is a config-friendly wrapper around time.Duration that accepts
// human readable strings such as "150ms" while still allowing numeric
// nanosecond values.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration using the canonical string representation.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration from either a string (e.g. "250ms") or a
// numeric value representing nanoseconds. Empty strings and null values decode
// to zero.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("duration: empty value")
	}
	if string(b) == "null" {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("duration: decode string: %w", err)
		}
		return d.parse(s)
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*d = Duration(time.Duration(f))
		return nil
	}
	return fmt.Errorf("duration: invalid value %s", string(b))
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config captures every tunable of the generator and its services.
type Config struct {
	World       WorldConfig       `json:"world" yaml:"world"`
	Terrain     TerrainConfig     `json:"terrain" yaml:"terrain"`
	Mountains   MountainConfig    `json:"mountains" yaml:"mountains"`
	Caves       CaveConfig        `json:"caves" yaml:"caves"`
	Base        BaseConfig        `json:"base" yaml:"base"`
	Debug       DebugConfig       `json:"debug" yaml:"debug"`
	Generation  GenerationConfig  `json:"generation" yaml:"generation"`
	Blocks      BlocksConfig      `json:"blocks" yaml:"blocks"`
	Replication ReplicationConfig `json:"replication" yaml:"replication"`
	Observer    ObserverConfig    `json:"observer" yaml:"observer"`
	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
}

type WorldConfig struct {
	WorldSizeInChunks int     `json:"worldSizeInChunks" yaml:"worldSizeInChunks"`
	ChunkSize         int     `json:"chunkSize" yaml:"chunkSize"`
	ChunkHeight       int     `json:"chunkHeight" yaml:"chunkHeight"`
	BlockSize         float64 `json:"blockSize" yaml:"blockSize"`
	BlockSpacing      float64 `json:"blockSpacing" yaml:"blockSpacing"`
}

// Layout converts the world section into coordinate-transform form.
func (w WorldConfig) Layout() world.Layout {
	return world.Layout{
		WorldSizeInChunks: w.WorldSizeInChunks,
		ChunkSize:         w.ChunkSize,
		ChunkHeight:       w.ChunkHeight,
		BlockSize:         w.BlockSize,
		BlockSpacing:      w.BlockSpacing,
	}
}

type TerrainConfig struct {
	MapFlatness     float64 `json:"mapFlatness" yaml:"mapFlatness"`
	TreeDensity     float64 `json:"treeDensity" yaml:"treeDensity"`
	BaseHeight      int     `json:"baseHeight" yaml:"baseHeight"`
	HeightVariation float64 `json:"heightVariation" yaml:"heightVariation"`
	NoiseScale      float64 `json:"noiseScale" yaml:"noiseScale"`
}

type MountainConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	BorderWidth int     `json:"borderWidth" yaml:"borderWidth"`
	MinHeight   int     `json:"minHeight" yaml:"minHeight"`
	MaxHeight   int     `json:"maxHeight" yaml:"maxHeight"`
	NoiseScale  float64 `json:"noiseScale" yaml:"noiseScale"`
}

type CaveConfig struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	PerEdge            int     `json:"perEdge" yaml:"perEdge"`
	Depth              int     `json:"depth" yaml:"depth"`
	Width              int     `json:"width" yaml:"width"`
	Height             int     `json:"height" yaml:"height"`
	RockyFormations    bool    `json:"rockyFormations" yaml:"rockyFormations"`
	RockyRadius        int     `json:"rockyRadius" yaml:"rockyRadius"`
	MaxExtraRockHeight int     `json:"maxExtraRockHeight" yaml:"maxExtraRockHeight"`
	RockDensity        float64 `json:"rockDensity" yaml:"rockDensity"`
	NaturalTunnels     bool    `json:"naturalTunnels" yaml:"naturalTunnels"`
	TunnelDeviation    float64 `json:"tunnelDeviation" yaml:"tunnelDeviation"`
	HeightVariation    float64 `json:"heightVariation" yaml:"heightVariation"`
	FloorVariation     float64 `json:"floorVariation" yaml:"floorVariation"`
	Seal               bool    `json:"seal" yaml:"seal"`
	SpawnEnemies       bool    `json:"spawnEnemies" yaml:"spawnEnemies"`
	SpawnDepthRatio    float64 `json:"spawnDepthRatio" yaml:"spawnDepthRatio"`
}

type BaseConfig struct {
	CoreCenterChunks           float64 `json:"coreCenterChunks" yaml:"coreCenterChunks"`
	CoreSize                   int     `json:"coreSize" yaml:"coreSize"`
	EnemySpawnDistanceFromEdge int     `json:"enemySpawnDistanceFromEdge" yaml:"enemySpawnDistanceFromEdge"`
}

type DebugConfig struct {
	AIDebugMode   bool `json:"aiDebugMode" yaml:"aiDebugMode"`
	WallDistance  int  `json:"wallDistance" yaml:"wallDistance"`
	WallHeight    int  `json:"wallHeight" yaml:"wallHeight"`
	WallThickness int  `json:"wallThickness" yaml:"wallThickness"`
}

type GenerationConfig struct {
	Seed             int64 `json:"seed" yaml:"seed"`
	Workers          int   `json:"workers" yaml:"workers"`                   // height-map workers; 0 means NumCPU
	ProgressInterval int   `json:"progressInterval" yaml:"progressInterval"` // percent between progress events
}

type BlocksConfig struct {
	Source   string `json:"source" yaml:"source"` // go-getter source; empty uses built-ins
	CacheDir string `json:"cacheDir" yaml:"cacheDir"`
}

type ReplicationConfig struct {
	ListenAddr        string   `json:"listenAddr" yaml:"listenAddr"`
	AuthoritativeAddr string   `json:"authoritativeAddr" yaml:"authoritativeAddr"`
	DialTimeout       Duration `json:"dialTimeout" yaml:"dialTimeout"`
}

type ObserverConfig struct {
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	ListenAddr    string   `json:"listenAddr" yaml:"listenAddr"`
	FlushInterval Duration `json:"flushInterval" yaml:"flushInterval"`
}

type PersistenceConfig struct {
	JournalPath string `json:"journalPath" yaml:"journalPath"`
	SnapshotDir string `json:"snapshotDir" yaml:"snapshotDir"`
	IndexPath   string `json:"indexPath" yaml:"indexPath"`
}

type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// SlogLevel maps the configured level name to a slog level.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads configuration from a YAML or JSON file. An empty path returns
// defaults. The document is checked against the config schema before it is
// decoded over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if data, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := validateDocument(data); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	return json.Marshal(doc)
}

// WriteYAML encodes the configuration as YAML.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

func Default() *Config {
	return &Config{
		World: WorldConfig{
			WorldSizeInChunks: 8,
			ChunkSize:         16,
			ChunkHeight:       64,
			BlockSize:         100,
			BlockSpacing:      0,
		},
		Terrain: TerrainConfig{
			MapFlatness:     0.5,
			TreeDensity:     0.5,
			BaseHeight:      10,
			HeightVariation: 5,
			NoiseScale:      0.1,
		},
		Mountains: MountainConfig{
			Enabled:     true,
			BorderWidth: 8,
			MinHeight:   6,
			MaxHeight:   20,
			NoiseScale:  0.05,
		},
		Caves: CaveConfig{
			Enabled:            true,
			PerEdge:            1,
			Depth:              12,
			Width:              4,
			Height:             5,
			RockyFormations:    true,
			RockyRadius:        6,
			MaxExtraRockHeight: 6,
			RockDensity:        0.4,
			NaturalTunnels:     true,
			TunnelDeviation:    2,
			HeightVariation:    2,
			FloorVariation:     1,
			Seal:               false,
			SpawnEnemies:       true,
			SpawnDepthRatio:    0.5,
		},
		Base: BaseConfig{
			CoreCenterChunks:           2,
			CoreSize:                   3,
			EnemySpawnDistanceFromEdge: 5,
		},
		Debug: DebugConfig{
			AIDebugMode:   false,
			WallDistance:  10,
			WallHeight:    4,
			WallThickness: 1,
		},
		Generation: GenerationConfig{
			Seed:             12345,
			Workers:          runtime.NumCPU(),
			ProgressInterval: 10,
		},
		Blocks: BlocksConfig{
			CacheDir: filepath.Join(os.TempDir(), "worldgen-blocks"),
		},
		Replication: ReplicationConfig{
			ListenAddr:  ":7420",
			DialTimeout: Duration(5 * time.Second),
		},
		Observer: ObserverConfig{
			Enabled:       true,
			ListenAddr:    ":7421",
			FlushInterval: Duration(100 * time.Millisecond),
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalid, msg)
}

func (c *Config) Validate() error {
	w := c.World
	if w.WorldSizeInChunks <= 0 || w.ChunkSize <= 0 || w.ChunkHeight <= 0 {
		return invalid("world dimensions must be positive")
	}
	if w.BlockSize <= 0 {
		return invalid("world.blockSize must be positive")
	}
	if w.BlockSpacing < 0 {
		return invalid("world.blockSpacing cannot be negative")
	}
	t := c.Terrain
	if t.MapFlatness < 0 || t.MapFlatness > 1 {
		return invalid("terrain.mapFlatness must be within [0,1]")
	}
	if t.TreeDensity < 0 || t.TreeDensity > 1 {
		return invalid("terrain.treeDensity must be within [0,1]")
	}
	if t.BaseHeight < 1 || t.BaseHeight >= w.ChunkHeight {
		return invalid("terrain.baseHeight must be within [1,chunkHeight)")
	}
	if c.Mountains.Enabled {
		if c.Mountains.BorderWidth <= 0 {
			return invalid("mountains.borderWidth must be positive")
		}
		if c.Mountains.MinHeight < 0 || c.Mountains.MinHeight > c.Mountains.MaxHeight {
			return invalid("mountains.minHeight must be within [0,maxHeight]")
		}
	}
	cv := c.Caves
	if cv.Enabled {
		if cv.PerEdge < 1 {
			return invalid("caves.perEdge must be at least 1")
		}
		if cv.Depth < 1 || cv.Width < 1 || cv.Height < 1 {
			return invalid("cave dimensions must be positive")
		}
		if cv.SpawnDepthRatio < 0 || cv.SpawnDepthRatio > 1 {
			return invalid("caves.spawnDepthRatio must be within [0,1]")
		}
		if cv.RockyRadius < 0 || cv.MaxExtraRockHeight < 0 || cv.RockDensity < 0 {
			return invalid("cave rock formation parameters cannot be negative")
		}
	}
	if c.Base.CoreSize < 0 || c.Base.CoreCenterChunks < 0 {
		return invalid("base core parameters cannot be negative")
	}
	if c.Generation.Workers < 0 {
		return invalid("generation.workers cannot be negative")
	}
	if c.Generation.ProgressInterval < 0 || c.Generation.ProgressInterval > 100 {
		return invalid("generation.progressInterval must be within [0,100]")
	}
	return nil
}
