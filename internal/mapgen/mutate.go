package mapgen

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"worldgen/internal/world"
)

// GetBlockTypeAtPosition returns the type of the cell containing pos. Cells
// outside a chunk's vertical extent read as Air.
func (w *WorldState) GetBlockTypeAtPosition(pos mgl64.Vec3) world.BlockType {
	w.mu.RLock()
	defer w.mu.RUnlock()
	key := w.layout.WorldToKey(pos)
	if !w.layout.ContainsLocal(key.Pos) {
		return world.BlockAir
	}
	return w.store.Get(key)
}

// SetBlockTypeAtPosition places t in the cell containing pos and fans the
// change out to mirrors. It reports whether the cell changed.
func (w *WorldState) SetBlockTypeAtPosition(pos mgl64.Vec3, t world.BlockType) bool {
	w.mu.Lock()
	changed := w.setBlockLocked(w.layout.WorldToKey(pos), t)
	w.mu.Unlock()
	return changed
}

// SetBlock is SetBlockTypeAtPosition addressed by key.
func (w *WorldState) SetBlock(key world.WorldBlockKey, t world.BlockType) bool {
	w.mu.Lock()
	changed := w.setBlockLocked(key, t)
	w.mu.Unlock()
	return changed
}

func (w *WorldState) setBlockLocked(key world.WorldBlockKey, t world.BlockType) bool {
	if !w.authoritativeLocked("set block") {
		return false
	}
	if !t.Valid() || !w.layout.ContainsLocal(key.Pos) {
		w.log.Debug("set block rejected", "chunk", key.Chunk, "pos", key.Pos, "type", t)
		return false
	}
	if !w.store.IsChunkGenerated(key.Chunk) {
		w.store.MarkGenerated(key.Chunk)
	}
	before := w.store.Get(key)
	if before == t {
		return false
	}

	w.damage.Delete(key)
	w.canvas.Place(key, t)

	reason := world.ReasonPlace
	if t == world.BlockAir {
		reason = world.ReasonDestroy
	}
	w.emitChangeLocked(world.BlockChange{Key: key, Before: before, After: t, Reason: reason}, nil)
	if w.broadcaster != nil {
		w.broadcaster.BlockUpdated(key, t)
	}
	return true
}

// ApplyDamageToBlock damages the cell containing pos and reports whether it
// was destroyed. Air, invisible walls and cells outside the generated world
// cannot be damaged.
func (w *WorldState) ApplyDamageToBlock(pos mgl64.Vec3, amount float64, src world.DamageSource) bool {
	w.mu.Lock()
	var box outbox
	destroyed := w.damageLocked(w.layout.WorldToKey(pos), amount, src, &box, nil)
	w.mu.Unlock()
	box.flush()
	return destroyed
}

// ApplyExplosion damages every cell within radius of center, scaling the
// damage linearly from maxDamage at the center to zero at the rim.
func (w *WorldState) ApplyExplosion(center mgl64.Vec3, radius, maxDamage float64, src world.DamageSource) *world.ChangeSummary {
	summary := world.NewChangeSummary()
	if radius <= 0 || maxDamage <= 0 {
		return summary
	}

	w.mu.Lock()
	var box outbox
	eff := w.layout.EffectiveBlockSize()
	origin := world.BlockCoord{
		X: int(math.Floor(center.X() / eff)),
		Y: int(math.Floor(center.Y() / eff)),
		Z: int(math.Floor(center.Z() / eff)),
	}
	reach := int(math.Ceil(radius / eff))
	for x := origin.X - reach; x <= origin.X+reach; x++ {
		for y := origin.Y - reach; y <= origin.Y+reach; y++ {
			for z := origin.Z - reach; z <= origin.Z+reach; z++ {
				if z < 0 {
					continue
				}
				key := w.layout.LocateBlock(world.BlockCoord{X: x, Y: y, Z: z})
				if !w.layout.InWorld(key.Chunk) {
					continue
				}
				distance := w.layout.BlockToWorldPosition(key.Chunk, key.Pos).Sub(center).Len()
				if distance > radius {
					continue
				}
				damage := maxDamage * (1 - distance/radius)
				if damage <= 0 {
					continue
				}
				w.damageLocked(key, damage, src, &box, summary)
			}
		}
	}
	w.mu.Unlock()
	box.flush()
	return summary
}

func (w *WorldState) damageLocked(key world.WorldBlockKey, amount float64, src world.DamageSource, box *outbox, summary *world.ChangeSummary) bool {
	if !w.authoritativeLocked("damage") || amount <= 0 {
		return false
	}
	if !w.layout.InWorld(key.Chunk) {
		w.log.Debug("damage rejected, outside world", "chunk", key.Chunk)
		return false
	}
	if !w.layout.ContainsLocal(key.Pos) {
		return false
	}
	bt := w.store.Get(key)
	switch bt {
	case world.BlockAir:
		return false
	case world.BlockInvisibleWall:
		w.log.Debug("damage rejected, indestructible", "chunk", key.Chunk, "pos", key.Pos)
		return false
	}

	rec := w.damage.Ensure(key, w.blocks.Durability(bt))
	rec.CurrentHealth -= amount
	rec.Last = src

	entry, _ := w.blocks.Lookup(bt)
	ev := DamageEvent{
		Key:      key,
		Position: w.layout.BlockToWorldPosition(key.Chunk, key.Pos),
		Type:     bt,
		ItemName: entry.ItemName,
		Damage:   amount,
		Health:   rec.CurrentHealth,
		Source:   src,
	}
	box.add(func() { w.dispatch(func(l Listener) { l.BlockDamaged(ev) }) })
	if w.broadcaster != nil {
		w.broadcaster.BlockDamaged(key, ev.Health, src)
	}

	if ev.Health > 0 {
		w.emitChangeLocked(world.BlockChange{Key: key, Before: bt, After: bt, Health: ev.Health, Reason: world.ReasonDamage}, summary)
		return false
	}

	box.add(func() { w.dispatch(func(l Listener) { l.BlockDestroyed(ev) }) })
	w.canvas.Place(key, world.BlockAir)
	w.damage.Delete(key)
	w.emitChangeLocked(world.BlockChange{Key: key, Before: bt, After: world.BlockAir, Reason: world.ReasonDestroy}, summary)
	if w.broadcaster != nil {
		w.broadcaster.BlockUpdated(key, world.BlockAir)
	}
	return true
}

func (w *WorldState) authoritativeLocked(op string) bool {
	if w.role != RoleAuthority {
		w.log.Debug(op+" ignored on mirror")
		return false
	}
	if w.flags.Generating {
		w.log.Debug(op + " ignored, generation in progress")
		return false
	}
	return true
}

// MirrorBlockUpdated applies an authoritative block update on a mirror.
// Updates that arrive before the mirror has generated are held back and
// applied once generation completes.
func (w *WorldState) MirrorBlockUpdated(key world.WorldBlockKey, t world.BlockType) {
	w.mu.Lock()
	var box outbox
	w.mirrorLocked(func(*outbox) { w.mirrorBlockLocked(key, t) }, &box)
	w.mu.Unlock()
	box.flush()
}

// MirrorDamaged applies an authoritative health update on a mirror. It
// raises BlockDamaged but never BlockDestroyed; destruction arrives as an
// Air update.
func (w *WorldState) MirrorDamaged(key world.WorldBlockKey, health float64, src world.DamageSource) {
	w.mu.Lock()
	var box outbox
	w.mirrorLocked(func(b *outbox) { w.mirrorDamageLocked(key, health, src, b) }, &box)
	w.mu.Unlock()
	box.flush()
}

func (w *WorldState) mirrorLocked(apply func(*outbox), box *outbox) {
	if w.role != RoleMirror {
		w.log.Debug("mirror update ignored on authority")
		return
	}
	if w.flags.Generating || !w.flags.HasGenerated {
		w.pending = append(w.pending, apply)
		return
	}
	apply(box)
}

func (w *WorldState) mirrorBlockLocked(key world.WorldBlockKey, t world.BlockType) {
	if !t.Valid() || !w.layout.ContainsLocal(key.Pos) {
		w.log.Debug("mirror update rejected", "chunk", key.Chunk, "pos", key.Pos, "type", t)
		return
	}
	before := w.store.Get(key)
	if before == t {
		return
	}
	w.damage.Delete(key)
	w.canvas.Place(key, t)

	reason := world.ReasonPlace
	if t == world.BlockAir {
		reason = world.ReasonDestroy
	}
	w.emitChangeLocked(world.BlockChange{Key: key, Before: before, After: t, Reason: reason}, nil)
}

func (w *WorldState) mirrorDamageLocked(key world.WorldBlockKey, health float64, src world.DamageSource, box *outbox) {
	bt := w.store.Get(key)
	if bt == world.BlockAir {
		return
	}
	rec := w.damage.Ensure(key, w.blocks.Durability(bt))
	rec.CurrentHealth = health
	rec.Last = src

	entry, _ := w.blocks.Lookup(bt)
	ev := DamageEvent{
		Key:      key,
		Position: w.layout.BlockToWorldPosition(key.Chunk, key.Pos),
		Type:     bt,
		ItemName: entry.ItemName,
		Damage:   rec.MaxHealth - health,
		Health:   health,
		Source:   src,
	}
	box.add(func() { w.dispatch(func(l Listener) { l.BlockDamaged(ev) }) })
	if health <= 0 {
		w.damage.Delete(key)
	}
	w.emitChangeLocked(world.BlockChange{Key: key, Before: bt, After: bt, Health: health, Reason: world.ReasonDamage}, nil)
}
