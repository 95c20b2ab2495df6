package observer

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"net/http"
	"strconv"
	"strings"

	"worldgen/internal/blockdata"
	"worldgen/internal/mapgen"
	"worldgen/internal/world"
)

const (
	previewAmbientLight = 0.35
	previewMaxScale     = 16
)

var (
	previewBackground = color.NRGBA{R: 10, G: 10, B: 18, A: 255}
	previewFallback   = color.NRGBA{R: 128, G: 128, B: 128, A: 255}
)

type column struct {
	top  int
	kind world.BlockType
}

// RenderMap draws a top-down view of w, one scale×scale square per block
// column, colored by the column's highest block and shaded by its height.
func RenderMap(w *mapgen.WorldState, scale int) *image.NRGBA {
	if scale < 1 {
		scale = 1
	}
	layout := w.Layout()
	blocks := layout.WorldBlocks()
	img := image.NewNRGBA(image.Rect(0, 0, blocks*scale, blocks*scale))
	draw.Draw(img, img.Bounds(), &image.Uniform{previewBackground}, image.Point{}, draw.Src)
	if blocks <= 0 {
		return img
	}

	columns := make([]column, blocks*blocks)
	for i := range columns {
		columns[i].top = -1
	}
	w.Store().ForEach(func(key world.WorldBlockKey, t world.BlockType) bool {
		if t == world.BlockAir || t == world.BlockInvisibleWall {
			return true
		}
		abs := layout.Absolute(key)
		if abs.X < 0 || abs.Y < 0 || abs.X >= blocks || abs.Y >= blocks {
			return true
		}
		c := &columns[abs.Y*blocks+abs.X]
		if abs.Z > c.top {
			c.top, c.kind = abs.Z, t
		}
		return true
	})

	table := w.Blocks()
	palette := make(map[world.BlockType]color.NRGBA)
	height := float64(layout.ChunkHeight)
	for y := 0; y < blocks; y++ {
		for x := 0; x < blocks; x++ {
			c := columns[y*blocks+x]
			if c.top < 0 {
				continue
			}
			base, ok := palette[c.kind]
			if !ok {
				base = resolveBlockColor(table, c.kind)
				palette[c.kind] = base
			}
			shade := applyLighting(base, previewAmbientLight+(1-previewAmbientLight)*float64(c.top+1)/height)
			// Image rows grow downwards; world Y grows north.
			rect := image.Rect(x*scale, (blocks-1-y)*scale, (x+1)*scale, (blocks-y)*scale)
			draw.Draw(img, rect, &image.Uniform{shade}, image.Point{}, draw.Src)
		}
	}
	return img
}

// MapHandler serves RenderMap as PNG. The optional scale parameter sets the
// pixel size of one column.
func (s *Server) MapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		scale := 2
		if v := r.URL.Query().Get("scale"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 1 || parsed > previewMaxScale {
				http.Error(rw, "scale must be within [1,16]", http.StatusBadRequest)
				return
			}
			scale = parsed
		}
		rw.Header().Set("Content-Type", "image/png")
		if err := png.Encode(rw, RenderMap(s.world, scale)); err != nil {
			s.log.Warn("encode map preview", "err", err)
		}
	}
}

func resolveBlockColor(table *blockdata.Table, t world.BlockType) color.NRGBA {
	if entry, ok := table.Lookup(t); ok {
		if col, ok := parseHexColor(entry.Color); ok {
			return col
		}
	}
	return previewFallback
}

func parseHexColor(value string) (color.NRGBA, bool) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(trimmed) != 6 {
		return color.NRGBA{}, false
	}
	v, err := strconv.ParseUint(trimmed, 16, 32)
	if err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, true
}

func applyLighting(base color.NRGBA, factor float64) color.NRGBA {
	factor = math.Max(0, math.Min(1, factor))
	return color.NRGBA{
		R: uint8(math.Round(float64(base.R) * factor)),
		G: uint8(math.Round(float64(base.G) * factor)),
		B: uint8(math.Round(float64(base.B) * factor)),
		A: 255,
	}
}
