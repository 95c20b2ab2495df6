package instance

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"worldgen/internal/world"
)

// Batch is one instanced-geometry primitive holding placements of a single
// block type in a single chunk. Indices are dense.
type Batch interface {
	AddInstance(transform mgl64.Mat4) int
	RemoveInstance(index int) bool
	UpdateInstanceTransform(index int, transform mgl64.Mat4) bool
	InstanceTransform(index int) (mgl64.Mat4, bool)
	InstanceCount() int
}

// BatchSpec describes how a batch should be configured when it is created.
type BatchSpec struct {
	Chunk    world.ChunkCoord
	Type     world.BlockType
	Mesh     string
	Material string
	Visible  bool
	Collides bool
}

// Factory creates batches. Renderers plug in here.
type Factory interface {
	NewBatch(spec BatchSpec) Batch
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(spec BatchSpec) Batch

func (f FactoryFunc) NewBatch(spec BatchSpec) Batch {
	return f(spec)
}

// MemoryBatch is a slice-backed Batch used by headless processes and tests.
type MemoryBatch struct {
	mu         sync.RWMutex
	spec       BatchSpec
	transforms []mgl64.Mat4
}

func NewMemoryBatch(spec BatchSpec) *MemoryBatch {
	return &MemoryBatch{spec: spec}
}

// MemoryFactory builds MemoryBatch values.
var MemoryFactory = FactoryFunc(func(spec BatchSpec) Batch {
	return NewMemoryBatch(spec)
})

func (b *MemoryBatch) Spec() BatchSpec {
	return b.spec
}

func (b *MemoryBatch) AddInstance(transform mgl64.Mat4) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transforms = append(b.transforms, transform)
	return len(b.transforms) - 1
}

// RemoveInstance deletes the slot and shifts later slots down, like the
// engine primitives it stands in for.
func (b *MemoryBatch) RemoveInstance(index int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(b.transforms) {
		return false
	}
	b.transforms = append(b.transforms[:index], b.transforms[index+1:]...)
	return true
}

func (b *MemoryBatch) UpdateInstanceTransform(index int, transform mgl64.Mat4) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(b.transforms) {
		return false
	}
	b.transforms[index] = transform
	return true
}

func (b *MemoryBatch) InstanceTransform(index int) (mgl64.Mat4, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if index < 0 || index >= len(b.transforms) {
		return mgl64.Mat4{}, false
	}
	return b.transforms[index], true
}

func (b *MemoryBatch) InstanceCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.transforms)
}

// Translation extracts the position component of an instance transform.
func Translation(m mgl64.Mat4) mgl64.Vec3 {
	return m.Col(3).Vec3()
}
