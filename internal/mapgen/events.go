package mapgen

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"worldgen/internal/world"
)

// DamageEvent describes one hit on a block.
type DamageEvent struct {
	Key      world.WorldBlockKey
	Position mgl64.Vec3
	Type     world.BlockType
	ItemName string
	Damage   float64
	Health   float64
	Source   world.DamageSource
}

// GenerationSummary is reported once a generation pass has finished.
type GenerationSummary struct {
	ID          uuid.UUID
	Seed        int64
	Authority   bool
	StartedAt   time.Time
	CompletedAt time.Time
	Chunks      int
	Caves       int
	Blocks      int
}

// Listener receives world events. Callbacks run synchronously, in
// registration order, after the world lock has been released.
type Listener interface {
	BlockDamaged(ev DamageEvent)
	BlockDestroyed(ev DamageEvent)
	Progress(done, total int)
	ServerComplete(summary GenerationSummary)
	ClientComplete(summary GenerationSummary)
	GenerationComplete(summary GenerationSummary)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped,
// so it can also be embedded to implement only part of the interface.
type ListenerFuncs struct {
	OnBlockDamaged       func(DamageEvent)
	OnBlockDestroyed     func(DamageEvent)
	OnProgress           func(done, total int)
	OnServerComplete     func(GenerationSummary)
	OnClientComplete     func(GenerationSummary)
	OnGenerationComplete func(GenerationSummary)
}

func (f ListenerFuncs) BlockDamaged(ev DamageEvent) {
	if f.OnBlockDamaged != nil {
		f.OnBlockDamaged(ev)
	}
}

func (f ListenerFuncs) BlockDestroyed(ev DamageEvent) {
	if f.OnBlockDestroyed != nil {
		f.OnBlockDestroyed(ev)
	}
}

func (f ListenerFuncs) Progress(done, total int) {
	if f.OnProgress != nil {
		f.OnProgress(done, total)
	}
}

func (f ListenerFuncs) ServerComplete(summary GenerationSummary) {
	if f.OnServerComplete != nil {
		f.OnServerComplete(summary)
	}
}

func (f ListenerFuncs) ClientComplete(summary GenerationSummary) {
	if f.OnClientComplete != nil {
		f.OnClientComplete(summary)
	}
}

func (f ListenerFuncs) GenerationComplete(summary GenerationSummary) {
	if f.OnGenerationComplete != nil {
		f.OnGenerationComplete(summary)
	}
}

// Broadcaster fans authoritative state out to every mirror. Its methods are
// called with the world lock held, in mutation order, and must not block or
// call back into the world.
type Broadcaster interface {
	BlockUpdated(key world.WorldBlockKey, t world.BlockType)
	BlockDamaged(key world.WorldBlockKey, health float64, src world.DamageSource)
	GenerationComplete(params WorldParams)
}

// ChangeSink observes every store mutation made after generation, on both
// authoritative and mirror worlds. Like Broadcaster it runs under the world
// lock.
type ChangeSink interface {
	BlockChanged(change world.BlockChange)
}

// ActorFactory spawns gameplay entities on behalf of the authoritative world.
type ActorFactory interface {
	SpawnBaseCore(location mgl64.Vec3)
}

// outbox collects notifications raised under the world lock so they can be
// delivered once it is released.
type outbox []func()

func (o *outbox) add(fn func()) {
	*o = append(*o, fn)
}

func (o outbox) flush() {
	for _, fn := range o {
		fn()
	}
}
