package world

import "testing"

func TestDamageTableEnsure(t *testing.T) {
	table := NewDamageTable()
	key := WorldBlockKey{Pos: LocalPos{X: 1, Y: 1, Z: 1}}

	rec := table.Ensure(key, 0)
	if rec.MaxHealth != DefaultDurability || rec.CurrentHealth != DefaultDurability {
		t.Fatalf("expected default durability, got %+v", rec)
	}
	rec.CurrentHealth = 40
	if again := table.Ensure(key, 500); again.CurrentHealth != 40 || again.MaxHealth != DefaultDurability {
		t.Fatalf("ensure must return the existing record, got %+v", again)
	}

	table.Delete(key)
	if _, ok := table.Get(key); ok {
		t.Fatalf("record should be gone after delete")
	}
}

func TestChangeSummaryPriority(t *testing.T) {
	s := NewChangeSummary()
	key := WorldBlockKey{Chunk: ChunkCoord{X: 1}, Pos: LocalPos{X: 2}}

	s.AddChange(BlockChange{Key: key, Before: BlockStone, After: BlockStone, Health: 40, Reason: ReasonDamage})
	s.AddChange(BlockChange{Key: key, Before: BlockStone, After: BlockAir, Reason: ReasonDestroy})
	s.AddChange(BlockChange{Key: key, Before: BlockAir, After: BlockStone, Health: 90, Reason: ReasonDamage})

	changes := s.Changes()
	if len(changes) != 1 {
		t.Fatalf("expected a single merged change, got %d", len(changes))
	}
	if changes[0].Reason != ReasonDestroy || changes[0].After != BlockAir || changes[0].Before != BlockStone {
		t.Fatalf("unexpected merged change %+v", changes[0])
	}

	other := NewChangeSummary()
	other.AddChange(BlockChange{Key: WorldBlockKey{Pos: LocalPos{Z: 1}}, After: BlockWood, Reason: ReasonPlace})
	s.Merge(other)
	if got := s.DirtyChunks(); len(got) != 2 || got[0] != (ChunkCoord{}) {
		t.Fatalf("unexpected dirty chunks %v", got)
	}
}
