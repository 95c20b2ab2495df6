package world

import (
	"fmt"
	"strings"
)

// BlockType enumerates the voxel cell kinds. Air is the implicit default for
// any cell the store does not hold.
type BlockType uint8

const (
	BlockAir BlockType = iota
	BlockGrass
	BlockDirt
	BlockStone
	BlockWood
	BlockLeaves
	BlockTurret
	BlockTrap
	BlockProduction
	BlockStorage
	BlockInvisibleWall

	// BlockAll is a query wildcard and is never stored.
	BlockAll BlockType = 255
)

// BlockTypeCount is the number of concrete block types, Air included.
const BlockTypeCount = int(BlockInvisibleWall) + 1

var blockTypeNames = [...]string{
	BlockAir:           "air",
	BlockGrass:         "grass",
	BlockDirt:          "dirt",
	BlockStone:         "stone",
	BlockWood:          "wood",
	BlockLeaves:        "leaves",
	BlockTurret:        "turret",
	BlockTrap:          "trap",
	BlockProduction:    "production",
	BlockStorage:       "storage",
	BlockInvisibleWall: "invisible_wall",
}

func (t BlockType) String() string {
	if t == BlockAll {
		return "all"
	}
	if int(t) < len(blockTypeNames) {
		return blockTypeNames[t]
	}
	return fmt.Sprintf("block(%d)", uint8(t))
}

// Valid reports whether t is a concrete, storable type.
func (t BlockType) Valid() bool {
	return int(t) < BlockTypeCount
}

// ParseBlockType resolves a block name as written in config and data files.
func ParseBlockType(name string) (BlockType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "all" {
		return BlockAll, nil
	}
	for i, n := range blockTypeNames {
		if n == name {
			return BlockType(i), nil
		}
	}
	return BlockAir, fmt.Errorf("unknown block type %q", name)
}

func (t BlockType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *BlockType) UnmarshalText(text []byte) error {
	parsed, err := ParseBlockType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
