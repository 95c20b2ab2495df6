// Package blockdata resolves per-block-type metadata: meshes, materials,
// durability and item names.
package blockdata

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	getter "github.com/hashicorp/go-getter"
	"gopkg.in/yaml.v3"

	"worldgen/internal/instance"
	"worldgen/internal/world"
)

// Entry is the metadata of one block type.
type Entry struct {
	Mesh       string  `yaml:"mesh"`
	Material   string  `yaml:"material"`
	Durability float64 `yaml:"durability"`
	ItemName   string  `yaml:"itemName"`
	Functional bool    `yaml:"functional"`
	Tile       [2]int  `yaml:"tile"`
	Color      string  `yaml:"color"` // hex, used by map previews
}

// Table is indexed directly by block type.
type Table struct {
	entries [world.BlockTypeCount]Entry
}

var defaultColors = map[world.BlockType]string{
	world.BlockGrass:      "#4f8f3a",
	world.BlockDirt:       "#7a5533",
	world.BlockStone:      "#8a8a8a",
	world.BlockWood:       "#6b4423",
	world.BlockLeaves:     "#2f6b2a",
	world.BlockTurret:     "#c0392b",
	world.BlockTrap:       "#d35400",
	world.BlockProduction: "#f1c40f",
	world.BlockStorage:    "#2980b9",
}

type document struct {
	Blocks map[string]Entry `yaml:"blocks"`
}

// Default returns the built-in table.
func Default() *Table {
	t := &Table{}
	for i := range t.entries {
		bt := world.BlockType(i)
		t.entries[i] = Entry{
			Mesh:       "cube",
			Material:   bt.String(),
			Durability: world.DefaultDurability,
			ItemName:   bt.String(),
		}
	}
	for bt, hex := range defaultColors {
		t.entries[bt].Color = hex
	}
	t.entries[world.BlockAir] = Entry{}
	t.entries[world.BlockWood].Durability = 80
	t.entries[world.BlockLeaves].Durability = 20
	t.entries[world.BlockGrass].Durability = 60
	t.entries[world.BlockDirt].Durability = 60
	for _, bt := range []world.BlockType{world.BlockTurret, world.BlockTrap, world.BlockProduction, world.BlockStorage} {
		t.entries[bt].Functional = true
	}
	t.entries[world.BlockInvisibleWall].Mesh = ""
	t.entries[world.BlockInvisibleWall].Material = ""
	return t
}

// Load reads a YAML table. Types missing from the document keep their
// built-in metadata.
func Load(r io.Reader) (*Table, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode block table: %w", err)
	}
	t := Default()
	for name, entry := range doc.Blocks {
		bt, err := world.ParseBlockType(name)
		if err != nil {
			return nil, fmt.Errorf("block table: %w", err)
		}
		if !bt.Valid() || bt == world.BlockAir {
			return nil, fmt.Errorf("block table: %q cannot carry metadata", name)
		}
		if entry.Durability < 0 {
			return nil, fmt.Errorf("block table: %q has negative durability", name)
		}
		t.entries[bt] = entry
	}
	return t, nil
}

// LoadFile reads a YAML table from disk.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Fetch downloads the table from any go-getter source (path, http, s3, git
// file) into dir and loads it.
func Fetch(ctx context.Context, src, dir string) (*Table, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	pwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	dst := filepath.Join(dir, "blocks.yaml")
	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Pwd:  pwd,
		Mode: getter.ClientModeFile,
	}
	if err := client.Get(); err != nil {
		return nil, fmt.Errorf("fetch block table %s: %w", src, err)
	}
	return LoadFile(dst)
}

// Lookup returns the metadata for t. Air and unknown types yield a zero
// entry and false.
func (t *Table) Lookup(bt world.BlockType) (Entry, bool) {
	if t == nil || !bt.Valid() || bt == world.BlockAir {
		return Entry{}, false
	}
	return t.entries[bt], true
}

// Durability is the max health of a freshly damaged block of type bt.
func (t *Table) Durability(bt world.BlockType) float64 {
	entry, ok := t.Lookup(bt)
	if !ok || entry.Durability <= 0 {
		return world.DefaultDurability
	}
	return entry.Durability
}

// BatchSpec configures the instance batch created for bt in a chunk.
func (t *Table) BatchSpec(chunk world.ChunkCoord, bt world.BlockType) instance.BatchSpec {
	entry, _ := t.Lookup(bt)
	return instance.BatchSpec{
		Chunk:    chunk,
		Type:     bt,
		Mesh:     entry.Mesh,
		Material: entry.Material,
		Visible:  bt != world.BlockInvisibleWall,
		Collides: true,
	}
}
