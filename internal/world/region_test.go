package world

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func testLayout() Layout {
	return Layout{WorldSizeInChunks: 4, ChunkSize: 16, ChunkHeight: 64, BlockSize: 100, BlockSpacing: 0}
}

func TestCoordinateRoundTrip(t *testing.T) {
	for _, layout := range []Layout{testLayout(), {WorldSizeInChunks: 3, ChunkSize: 8, ChunkHeight: 16, BlockSize: 50, BlockSpacing: 2.5}} {
		for cx := -2; cx <= layout.WorldSizeInChunks+1; cx++ {
			for cy := -2; cy <= layout.WorldSizeInChunks+1; cy++ {
				chunk := ChunkCoord{X: cx, Y: cy}
				for _, pos := range []LocalPos{{0, 0, 0}, {layout.ChunkSize - 1, 0, 3}, {3, layout.ChunkSize - 1, layout.ChunkHeight - 1}, {5, 7, 1}} {
					world := layout.BlockToWorldPosition(chunk, pos)
					if got := layout.WorldToChunkCoord(world); got != chunk {
						t.Fatalf("chunk round trip %v/%v: got %v", chunk, pos, got)
					}
					if got := layout.WorldToBlockPosition(world); got != pos {
						t.Fatalf("block round trip %v/%v: got %v", chunk, pos, got)
					}
				}
			}
		}
	}
}

func TestWorldToChunkBoundary(t *testing.T) {
	layout := testLayout()
	span := float64(layout.ChunkSize) * layout.EffectiveBlockSize()

	if got := layout.WorldToChunkCoord(mgl64.Vec3{span, span, 0}); got != (ChunkCoord{X: 1, Y: 1}) {
		t.Fatalf("exact boundary should resolve to upper chunk, got %v", got)
	}
	if got := layout.WorldToChunkCoord(mgl64.Vec3{span - 0.0005, 0, 0}); got != (ChunkCoord{X: 1, Y: 0}) {
		t.Fatalf("jitter below boundary should resolve to upper chunk, got %v", got)
	}
	if got := layout.WorldToChunkCoord(mgl64.Vec3{-1, -1, 0}); got != (ChunkCoord{X: -1, Y: -1}) {
		t.Fatalf("negative position should floor, got %v", got)
	}
}

func TestWorldToBlockPositionWrapsNegative(t *testing.T) {
	layout := testLayout()
	pos := layout.WorldToBlockPosition(mgl64.Vec3{-50, -150, 250})
	if pos != (LocalPos{X: 15, Y: 14, Z: 2}) {
		t.Fatalf("unexpected local position %v", pos)
	}
}

func TestLocateBlockAndAbsolute(t *testing.T) {
	layout := testLayout()
	for _, block := range []BlockCoord{{0, 0, 0}, {-1, 17, 4}, {-17, -16, 9}, {63, 64, 1}} {
		key := layout.LocateBlock(block)
		if !layout.ContainsLocal(key.Pos) {
			t.Fatalf("located %v outside chunk: %v", block, key)
		}
		if got := layout.Absolute(key); got != block {
			t.Fatalf("absolute round trip for %v: got %v", block, got)
		}
	}
}

func TestInWorld(t *testing.T) {
	layout := testLayout()
	if !layout.InWorld(ChunkCoord{X: 0, Y: 3}) {
		t.Fatalf("expected (0,3) in world")
	}
	for _, c := range []ChunkCoord{{-1, 0}, {0, 4}, {4, 4}} {
		if layout.InWorld(c) {
			t.Fatalf("expected %v outside world", c)
		}
	}
}

func TestLayoutMethodsDocumented(t *testing.T) {
	file, err := parser.ParseFile(token.NewFileSet(), "region.go", nil, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse region.go: %v", err)
	}
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv == nil || !fn.Name.IsExported() {
			continue
		}
		if fn.Doc == nil || !strings.HasPrefix(fn.Doc.Text(), fn.Name.Name+" ") {
			t.Errorf("Layout.%s has no doc comment", fn.Name.Name)
		}
	}
}
