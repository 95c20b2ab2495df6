// Package replication carries authoritative world state to mirrors over a
// yamux-multiplexed connection. Each side serves a jsonrpc service on its
// own stream: the authority answers World.* calls and pushes Mirror.* calls
// to every connected mirror in mutation order.
package replication

import (
	"errors"

	"github.com/google/uuid"

	"worldgen/internal/world"
)

var (
	// ErrNotAuthoritative is returned when a hub is built around a mirror
	// world.
	ErrNotAuthoritative = errors.New("replication: world is not authoritative")
	// ErrNotMirror is returned when a mirror client is built around an
	// authoritative world.
	ErrNotMirror = errors.New("replication: world is not a mirror")
)

const (
	methodParams             = "World.Params"
	methodStatus             = "World.Status"
	methodBlockUpdated       = "Mirror.BlockUpdated"
	methodBlockDamaged       = "Mirror.BlockDamaged"
	methodGenerationComplete = "Mirror.GenerationComplete"
)

// Empty is the argument or reply of calls that carry nothing.
type Empty struct{}

// BlockUpdate replicates a block type change.
type BlockUpdate struct {
	Chunk world.ChunkCoord `json:"chunk"`
	Pos   world.LocalPos   `json:"pos"`
	Type  world.BlockType  `json:"type"`
}

func (u BlockUpdate) Key() world.WorldBlockKey {
	return world.WorldBlockKey{Chunk: u.Chunk, Pos: u.Pos}
}

// BlockDamaged replicates the health of a damaged block.
type BlockDamaged struct {
	Chunk  world.ChunkCoord   `json:"chunk"`
	Pos    world.LocalPos     `json:"pos"`
	Health float64            `json:"health"`
	Source world.DamageSource `json:"source"`
}

func (d BlockDamaged) Key() world.WorldBlockKey {
	return world.WorldBlockKey{Chunk: d.Chunk, Pos: d.Pos}
}

// Status is the cheap form of World.Params.
type Status struct {
	Complete     bool      `json:"complete"`
	Seed         int64     `json:"seed"`
	GenerationID uuid.UUID `json:"generationId"`
}
