package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestValidateDefaultConfig(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration should be valid: %v", err)
	}
}

func TestValidateDetectsInvalidConfigurations(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "non positive world dimensions",
			mutate: func(cfg *Config) {
				cfg.World.ChunkSize = 0
			},
			wantErr: "invalid config: world dimensions must be positive",
		},
		{
			name: "zero block size",
			mutate: func(cfg *Config) {
				cfg.World.BlockSize = 0
			},
			wantErr: "invalid config: world.blockSize must be positive",
		},
		{
			name: "flatness out of range",
			mutate: func(cfg *Config) {
				cfg.Terrain.MapFlatness = 1.5
			},
			wantErr: "invalid config: terrain.mapFlatness must be within [0,1]",
		},
		{
			name: "base height above chunk",
			mutate: func(cfg *Config) {
				cfg.Terrain.BaseHeight = cfg.World.ChunkHeight
			},
			wantErr: "invalid config: terrain.baseHeight must be within [1,chunkHeight)",
		},
		{
			name: "inverted mountain heights",
			mutate: func(cfg *Config) {
				cfg.Mountains.MinHeight = 30
				cfg.Mountains.MaxHeight = 10
			},
			wantErr: "invalid config: mountains.minHeight must be within [0,maxHeight]",
		},
		{
			name: "no caves per edge",
			mutate: func(cfg *Config) {
				cfg.Caves.PerEdge = 0
			},
			wantErr: "invalid config: caves.perEdge must be at least 1",
		},
		{
			name: "spawn depth ratio out of range",
			mutate: func(cfg *Config) {
				cfg.Caves.SpawnDepthRatio = 2
			},
			wantErr: "invalid config: caves.spawnDepthRatio must be within [0,1]",
		},
		{
			name: "negative workers",
			mutate: func(cfg *Config) {
				cfg.Generation.Workers = -1
			},
			wantErr: "invalid config: generation.workers cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected an error, got nil")
			}
			if err.Error() != tt.wantErr {
				t.Fatalf("unexpected error: got %q want %q", err.Error(), tt.wantErr)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected error to wrap ErrInvalid")
			}
		})
	}
}

func TestDisabledCavesSkipCaveValidation(t *testing.T) {
	cfg := Default()
	cfg.Caves.Enabled = false
	cfg.Caves.PerEdge = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled caves should not be validated: %v", err)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load default config: %v", err)
	}
	if want := Default(); !reflect.DeepEqual(cfg, want) {
		t.Fatalf("default configuration mismatch:\nwant: %#v\n got: %#v", want, cfg)
	}
}

func TestLoadReadsJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Generation.Seed = 42
	cfg.World.WorldSizeInChunks = 4
	cfg.Replication.DialTimeout = Duration(2 * time.Second)

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Fatalf("loaded configuration mismatch:\nwant: %#v\n got: %#v", cfg, got)
	}
}

func TestLoadReadsPartialYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
world:
  worldSizeInChunks: 4
generation:
  seed: 42
caves:
  seal: true
  perEdge: 2
replication:
  dialTimeout: 750ms
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	want := Default()
	want.World.WorldSizeInChunks = 4
	want.Generation.Seed = 42
	want.Caves.Seal = true
	want.Caves.PerEdge = 2
	want.Replication.DialTimeout = Duration(750 * time.Millisecond)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("loaded configuration mismatch:\nwant: %#v\n got: %#v", want, got)
	}
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("world:\n  chunkSize: sixteen\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.HasPrefix(err.Error(), "schema:") {
		t.Fatalf("expected schema error, got %v", err)
	}

	if err := os.WriteFile(path, []byte("unknownSection: {}\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown section to be rejected")
	}
}

func TestLoadInvalidConfiguration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Terrain.TreeDensity = 0.5
	cfg.Mountains.MinHeight = 50
	cfg.Mountains.MaxHeight = 10

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err = Load(path)
	if err == nil {
		t.Fatalf("expected load to fail")
	}
	if !strings.Contains(err.Error(), "validate config: invalid config: mountains.minHeight") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Generation.Seed = -7
	var buf bytes.Buffer
	if err := cfg.WriteYAML(&buf); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out.yml")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load written yaml: %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Fatalf("round trip mismatch:\nwant: %#v\n got: %#v", cfg, got)
	}
}
