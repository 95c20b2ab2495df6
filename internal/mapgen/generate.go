package mapgen

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"worldgen/internal/terrain"
)

// GenerateWorld regenerates the authoritative world from seed and broadcasts
// the new parameters to mirrors. Calls on a mirror, or while a generation is
// running, are ignored. The only error is a cancelled context.
func (w *WorldState) GenerateWorld(ctx context.Context, seed int64) error {
	w.mu.Lock()
	if w.role != RoleAuthority {
		w.mu.Unlock()
		w.log.Debug("generate ignored on mirror")
		return nil
	}
	if w.flags.Generating {
		w.mu.Unlock()
		w.log.Debug("generate ignored, generation in progress")
		return nil
	}
	w.resetLocked(false)
	w.beginLocked(seed, uuid.New())
	w.mu.Unlock()

	return w.run(ctx)
}

// SetNewSeed resets the world completely and regenerates it. Asking for the
// current seed picks a time-derived one instead.
func (w *WorldState) SetNewSeed(ctx context.Context, seed int64) error {
	w.mu.Lock()
	if w.role != RoleAuthority {
		w.mu.Unlock()
		w.log.Debug("seed change ignored on mirror")
		return nil
	}
	if w.flags.Generating {
		w.mu.Unlock()
		w.log.Debug("seed change ignored, generation in progress")
		return nil
	}
	if seed == w.seed {
		seed = w.now().UnixNano() % math.MaxInt32
		if seed == w.seed {
			seed++
		}
	}
	w.log.Info("seed changed", "from", w.seed, "to", seed)
	w.resetLocked(true)
	w.beginLocked(seed, uuid.New())
	w.mu.Unlock()

	return w.run(ctx)
}

// GenerateMirror regenerates the world described by params on a mirror. It
// runs at most once per reset: a mirror that has already generated must be
// Reset before it can follow a new seed.
func (w *WorldState) GenerateMirror(ctx context.Context, params WorldParams) error {
	w.mu.Lock()
	if w.role != RoleMirror {
		w.mu.Unlock()
		w.log.Debug("mirror generation ignored on authority")
		return nil
	}
	if generating := w.flags.Generating; generating || w.flags.HasGenerated {
		w.mu.Unlock()
		w.log.Debug("mirror generation ignored", "generating", generating)
		return nil
	}
	pending := w.pending
	w.resetLocked(false)
	w.pending = pending

	settings := params.Settings
	settings.Workers = w.settings.Workers
	settings.ProgressInterval = w.settings.ProgressInterval
	w.applySettingsLocked(settings)
	w.beginLocked(params.Seed, params.GenerationID)
	w.mu.Unlock()

	return w.run(ctx)
}

// SignalComplete records that the given generation path has finished. The
// role event fires every time; GenerationComplete fires once per world.
func (w *WorldState) SignalComplete(path Role) {
	w.mu.Lock()
	var box outbox
	w.completeLocked(path, &box)
	w.mu.Unlock()
	box.flush()
}

func (w *WorldState) beginLocked(seed int64, id uuid.UUID) {
	w.seed = seed
	w.generationID = id
	w.startedAt = w.now()
	w.flags.Generating = true
	w.gen = terrain.New(w.settings, seed, w.canvas, w.log)
	w.log.Info("generation started", "seed", seed, "generation", id)
}

// run executes the pass order shared by authority and mirror: chunks, base
// core, mountain border, caves, debug walls. The lock is released between
// chunks while progress is reported.
func (w *WorldState) run(ctx context.Context) error {
	w.mu.Lock()
	err := w.gen.GenerateChunks(ctx, func(done, total int) {
		w.mu.Unlock()
		w.dispatch(func(l Listener) { l.Progress(done, total) })
		w.mu.Lock()
	})
	if err != nil {
		w.flags.Generating = false
		w.mu.Unlock()
		w.log.Warn("generation aborted", "err", err)
		return fmt.Errorf("generate chunks: %w", err)
	}

	core := w.gen.ClearBaseCore()
	w.baseCore = &core
	if w.settings.Mountains.Enabled {
		w.gen.GenerateMountainBorder()
	}
	if w.settings.Caves.Enabled {
		w.caves = w.gen.GenerateCaveSystem()
	}
	if w.settings.Debug.AIDebugMode {
		w.gen.GenerateDebugWalls(core)
	}
	w.flags.Generating = false
	w.flags.HasGenerated = true

	var box outbox
	if w.role == RoleAuthority {
		if actors := w.actors; actors != nil {
			box.add(func() { actors.SpawnBaseCore(core.Location) })
		}
	} else {
		pending := w.pending
		w.pending = nil
		for _, apply := range pending {
			apply(&box)
		}
	}
	w.completeLocked(w.role, &box)
	if w.role == RoleAuthority && w.broadcaster != nil {
		w.broadcaster.GenerationComplete(w.paramsLocked())
	}
	w.mu.Unlock()

	box.flush()
	return nil
}

func (w *WorldState) completeLocked(path Role, box *outbox) {
	summary := w.summaryLocked()
	if path == RoleAuthority {
		w.flags.ServerComplete = true
		box.add(func() { w.dispatch(func(l Listener) { l.ServerComplete(summary) }) })
	} else {
		w.flags.ClientComplete = true
		box.add(func() { w.dispatch(func(l Listener) { l.ClientComplete(summary) }) })
	}
	if w.flags.EventBroadcast {
		return
	}
	w.flags.EventBroadcast = true
	w.log.Info("generation complete",
		"seed", summary.Seed,
		"chunks", summary.Chunks,
		"caves", summary.Caves,
		"blocks", summary.Blocks,
		"elapsed", summary.CompletedAt.Sub(summary.StartedAt))
	box.add(func() { w.dispatch(func(l Listener) { l.GenerationComplete(summary) }) })
}

func (w *WorldState) summaryLocked() GenerationSummary {
	return GenerationSummary{
		ID:          w.generationID,
		Seed:        w.seed,
		Authority:   w.role == RoleAuthority,
		StartedAt:   w.startedAt,
		CompletedAt: w.now(),
		Chunks:      len(w.store.GeneratedChunks()),
		Caves:       len(w.caves),
		Blocks:      w.store.Len(),
	}
}
