package world

import (
	"sort"

	"github.com/google/uuid"
)

// DefaultDurability is the max health used when no metadata is available.
const DefaultDurability = 100.0

// DamageSource describes who last damaged a block.
type DamageSource struct {
	Instigator uuid.UUID
	Causer     uuid.UUID
	DamageType string
}

// DamageRecord is created lazily on the first hit a block takes.
type DamageRecord struct {
	CurrentHealth float64
	MaxHealth     float64
	Last          DamageSource
}

// DamageTable tracks damaged cells. Records exist only for blocks in the
// Damaged state.
type DamageTable struct {
	records map[WorldBlockKey]*DamageRecord
}

func NewDamageTable() *DamageTable {
	return &DamageTable{records: make(map[WorldBlockKey]*DamageRecord)}
}

func (d *DamageTable) Get(key WorldBlockKey) (*DamageRecord, bool) {
	rec, ok := d.records[key]
	return rec, ok
}

// Ensure returns the existing record or creates one at full health.
func (d *DamageTable) Ensure(key WorldBlockKey, maxHealth float64) *DamageRecord {
	if rec, ok := d.records[key]; ok {
		return rec
	}
	if maxHealth <= 0 {
		maxHealth = DefaultDurability
	}
	rec := &DamageRecord{CurrentHealth: maxHealth, MaxHealth: maxHealth}
	d.records[key] = rec
	return rec
}

func (d *DamageTable) Delete(key WorldBlockKey) {
	delete(d.records, key)
}

func (d *DamageTable) Len() int {
	return len(d.records)
}

func (d *DamageTable) Reset() {
	d.records = make(map[WorldBlockKey]*DamageRecord)
}

type ChangeReason string

const (
	ReasonPlace   ChangeReason = "place"
	ReasonDamage  ChangeReason = "damage"
	ReasonDestroy ChangeReason = "destroy"
)

var reasonPriority = map[ChangeReason]int{
	ReasonDamage:  1,
	ReasonPlace:   2,
	ReasonDestroy: 3,
}

// BlockChange captures the before/after state of a cell mutation.
type BlockChange struct {
	Key    WorldBlockKey
	Before BlockType
	After  BlockType
	Health float64
	Reason ChangeReason
}

// ChangeSummary accumulates mutations per cell, keeping the highest priority
// reason and the earliest Before state.
type ChangeSummary struct {
	changes map[WorldBlockKey]BlockChange
	chunks  map[ChunkCoord]struct{}
}

func NewChangeSummary() *ChangeSummary {
	return &ChangeSummary{
		changes: make(map[WorldBlockKey]BlockChange),
		chunks:  make(map[ChunkCoord]struct{}),
	}
}

func (s *ChangeSummary) AddChange(change BlockChange) {
	if s.changes == nil {
		s.changes = make(map[WorldBlockKey]BlockChange)
	}
	if s.chunks == nil {
		s.chunks = make(map[ChunkCoord]struct{})
	}
	s.chunks[change.Key.Chunk] = struct{}{}
	if existing, ok := s.changes[change.Key]; ok {
		if reasonPriority[existing.Reason] > reasonPriority[change.Reason] {
			return
		}
		change.Before = existing.Before
	}
	s.changes[change.Key] = change
}

func (s *ChangeSummary) Len() int {
	return len(s.changes)
}

// Changes returns the accumulated changes ordered by key.
func (s *ChangeSummary) Changes() []BlockChange {
	if len(s.changes) == 0 {
		return nil
	}
	out := make([]BlockChange, 0, len(s.changes))
	for _, change := range s.changes {
		out = append(out, change)
	}
	sortChanges(out)
	return out
}

func (s *ChangeSummary) DirtyChunks() []ChunkCoord {
	if len(s.chunks) == 0 {
		return nil
	}
	out := make([]ChunkCoord, 0, len(s.chunks))
	for coord := range s.chunks {
		out = append(out, coord)
	}
	sortChunks(out)
	return out
}

func (s *ChangeSummary) Merge(other *ChangeSummary) {
	if other == nil {
		return
	}
	for _, change := range other.changes {
		s.AddChange(change)
	}
}

func sortChanges(changes []BlockChange) {
	sort.Slice(changes, func(i, j int) bool { return KeyLess(changes[i].Key, changes[j].Key) })
}
