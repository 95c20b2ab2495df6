// Package mapgen owns one generated world: the generation lifecycle, the
// block mutation and damage pipeline, and the spatial queries gameplay code
// runs against it.
//
// A WorldState is either the authority, which generates the canonical world
// and originates every mutation, or a mirror, which regenerates the same
// world from the replicated seed and only ever applies mutations it is
// told about.
package mapgen

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"

	"worldgen/internal/blockdata"
	"worldgen/internal/instance"
	"worldgen/internal/terrain"
	"worldgen/internal/world"
)

// Role selects whether a world originates or mirrors state.
type Role int

const (
	RoleAuthority Role = iota
	RoleMirror
)

func (r Role) String() string {
	if r == RoleAuthority {
		return "authority"
	}
	return "mirror"
}

// WorldParams is the replicated description of a world. Mirrors regenerate
// every block from it; block state itself is never sent.
type WorldParams struct {
	Seed         int64            `json:"seed"`
	GenerationID uuid.UUID        `json:"generationId"`
	Complete     bool             `json:"complete"`
	Settings     terrain.Settings `json:"settings"`
}

// Flags is the generation lifecycle state.
type Flags struct {
	Generating     bool
	HasGenerated   bool
	ServerComplete bool
	ClientComplete bool
	// EventBroadcast is set once GenerationComplete has fired for the
	// current world.
	EventBroadcast bool
}

// Options configures a WorldState.
type Options struct {
	Role        Role
	Settings    terrain.Settings
	Blocks      *blockdata.Table
	Factory     instance.Factory
	Actors      ActorFactory
	Broadcaster Broadcaster
	Logger      *slog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// WorldState is the single owner of a world's block store, instance
// registry, damage table and lifecycle flags.
type WorldState struct {
	mu deadlock.RWMutex

	role        Role
	settings    terrain.Settings
	layout      world.Layout
	blocks      *blockdata.Table
	factory     instance.Factory
	actors      ActorFactory
	broadcaster Broadcaster
	log         *slog.Logger
	now         func() time.Time

	store    *world.Store
	registry *instance.Registry
	damage   *world.DamageTable
	canvas   *terrain.StoreCanvas
	gen      *terrain.Generator

	seed         int64
	generationID uuid.UUID
	startedAt    time.Time
	caves        []terrain.CaveLocation
	baseCore     *terrain.BaseCore
	flags        Flags

	// pending holds mirrored mutations that arrived before the mirror
	// finished generating.
	pending []func(*outbox)

	listeners []Listener
	sinks     []ChangeSink
}

func New(opts Options) *WorldState {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	blocks := opts.Blocks
	if blocks == nil {
		blocks = blockdata.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	w := &WorldState{
		role:        opts.Role,
		blocks:      blocks,
		factory:     opts.Factory,
		actors:      opts.Actors,
		broadcaster: opts.Broadcaster,
		log:         logger.With("role", opts.Role.String()),
		now:         clock,
		store:       world.NewStore(),
		damage:      world.NewDamageTable(),
	}
	w.applySettingsLocked(opts.Settings)
	return w
}

// applySettingsLocked rebuilds everything derived from the settings. The
// store must be empty.
func (w *WorldState) applySettingsLocked(settings terrain.Settings) {
	w.settings = settings
	w.layout = settings.World.Layout()
	w.registry = instance.NewRegistry(w.layout, w.factory, w.blocks, w.log)
	w.canvas = terrain.NewCanvas(w.layout, w.store, w.registry)
	w.gen = terrain.New(settings, w.seed, w.canvas, w.log)
}

// AddListener registers l for every later event.
func (w *WorldState) AddListener(l Listener) {
	w.mu.Lock()
	w.listeners = append(w.listeners, l)
	w.mu.Unlock()
}

// AddChangeSink registers s for every later store mutation.
func (w *WorldState) AddChangeSink(s ChangeSink) {
	w.mu.Lock()
	w.sinks = append(w.sinks, s)
	w.mu.Unlock()
}

// SetBroadcaster replaces the mirror fan-out. A nil broadcaster disables it.
func (w *WorldState) SetBroadcaster(b Broadcaster) {
	w.mu.Lock()
	w.broadcaster = b
	w.mu.Unlock()
}

func (w *WorldState) Role() Role {
	return w.role
}

// Blocks is the block metadata table the world was built with.
func (w *WorldState) Blocks() *blockdata.Table {
	return w.blocks
}

func (w *WorldState) Seed() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.seed
}

func (w *WorldState) GenerationID() uuid.UUID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.generationID
}

func (w *WorldState) Flags() Flags {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.flags
}

func (w *WorldState) Layout() world.Layout {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.layout
}

func (w *WorldState) Settings() terrain.Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.settings
}

// Store exposes the block store for read-only consumers such as snapshots.
func (w *WorldState) Store() *world.Store {
	return w.store
}

// Caves returns the cave registry in registration order.
func (w *WorldState) Caves() []terrain.CaveLocation {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]terrain.CaveLocation, len(w.caves))
	copy(out, w.caves)
	return out
}

// BaseCore returns the base core of the current world, if one was placed.
func (w *WorldState) BaseCore() (terrain.BaseCore, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.baseCore == nil {
		return terrain.BaseCore{}, false
	}
	return *w.baseCore, true
}

// DamageRecord returns a copy of the damage record at key.
func (w *WorldState) DamageRecord(key world.WorldBlockKey) (world.DamageRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rec, ok := w.damage.Get(key)
	if !ok {
		return world.DamageRecord{}, false
	}
	return *rec, true
}

// VerifyInstances checks that the instance registry mirrors the store.
func (w *WorldState) VerifyInstances() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.registry.Verify(w.store)
}

// Params describes the current world for mirrors.
func (w *WorldState) Params() WorldParams {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.paramsLocked()
}

func (w *WorldState) paramsLocked() WorldParams {
	complete := w.flags.ClientComplete
	if w.role == RoleAuthority {
		complete = w.flags.ServerComplete
	}
	return WorldParams{
		Seed:         w.seed,
		GenerationID: w.generationID,
		Complete:     complete && !w.flags.Generating,
		Settings:     w.settings,
	}
}

// Reset drops every block, instance, damage record, cave and flag. It is
// ignored while a generation is running.
func (w *WorldState) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.flags.Generating {
		w.log.Debug("reset ignored, generation in progress")
		return
	}
	w.resetLocked(true)
	w.generationID = uuid.Nil
}

// resetLocked clears the world. The GenerationComplete guard survives a
// plain regeneration and is only cleared by a full reset.
func (w *WorldState) resetLocked(full bool) {
	w.store.Reset()
	w.registry.Reset()
	w.damage.Reset()
	w.caves = nil
	w.baseCore = nil
	w.pending = nil
	w.flags.HasGenerated = false
	w.flags.ServerComplete = false
	w.flags.ClientComplete = false
	if full {
		w.flags.EventBroadcast = false
	}
}

// dispatch delivers an event to every listener. It must be called without
// the world lock held.
func (w *WorldState) dispatch(fn func(Listener)) {
	w.mu.RLock()
	listeners := make([]Listener, len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.RUnlock()
	for _, l := range listeners {
		fn(l)
	}
}

func (w *WorldState) emitChangeLocked(change world.BlockChange, summary *world.ChangeSummary) {
	for _, s := range w.sinks {
		s.BlockChanged(change)
	}
	if summary != nil {
		summary.AddChange(change)
	}
}
