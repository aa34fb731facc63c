// Package text renders strings onto NRGBA canvases: plain, shadowed, and
// textured fills sampled through glyph-shaped masks.
package text

import (
	"image"
	"image/color"
	"image/draw"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/tinyland-inc/cardsmith/pkg/faults"
	"github.com/tinyland-inc/cardsmith/pkg/imaging"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

// Source is a parsed font with a per-size face cache. Faces are immutable
// once built, so concurrent Face calls are safe.
type Source struct {
	font *opentype.Font

	mu    sync.Mutex
	faces map[int]font.Face
}

// Load parses the font file at path. An empty or unreadable path falls back
// to the embedded Go Regular face so rendering never hard-fails on a
// missing font file.
func Load(path string) (*Source, error) {
	return load(path, goregular.TTF)
}

// LoadBold is Load with a Go Bold fallback.
func LoadBold(path string) (*Source, error) {
	return load(path, gobold.TTF)
}

func load(path string, fallback []byte) (*Source, error) {
	data := fallback
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			logger.WarnCF("text", "font file unavailable, using embedded fallback", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
		} else {
			data = b
		}
	}
	f, err := opentype.Parse(data)
	if err != nil {
		if path == "" {
			return nil, faults.New(faults.DecodeFailed, err)
		}
		// Corrupt file on disk, retry with the embedded face.
		f, err = opentype.Parse(fallback)
		if err != nil {
			return nil, faults.New(faults.DecodeFailed, err)
		}
	}
	return &Source{font: f, faces: make(map[int]font.Face)}, nil
}

// Face returns a cached face for the given pixel size.
func (s *Source) Face(size int) font.Face {
	if size < 1 {
		size = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.faces[size]; ok {
		return f
	}
	f, err := opentype.NewFace(s.font, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		// NewFace only fails on absurd options; fall back to the basic face
		// rather than panicking mid-render.
		f = basicFace()
	}
	s.faces[size] = f
	return f
}

func basicFace() font.Face {
	f, _ := opentype.NewFace(mustParse(goregular.TTF), &opentype.FaceOptions{Size: 12, DPI: 72})
	return f
}

func mustParse(data []byte) *opentype.Font {
	f, err := opentype.Parse(data)
	if err != nil {
		panic(err)
	}
	return f
}

// Measure returns the horizontal advance of s in whole pixels.
func Measure(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

// FitSize picks the largest size in [min, max] whose advance fits width.
// Each step down earns a little slack, 30% of the reduction so far, which
// keeps long names from shrinking further than the baseline needs. Returns
// min when nothing fits.
func (s *Source) FitSize(text string, min, max, width int) int {
	if min > max {
		min, max = max, min
	}
	for size := max; size > min; size-- {
		slack := (max - size) * 3 / 10
		if Measure(s.Face(size), text) <= width+slack {
			return size
		}
	}
	return min
}

// DrawString renders text with its baseline at (x, y).
func DrawString(dst *image.NRGBA, face font.Face, text string, x, y int, c color.NRGBA) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// DrawShadowed renders a shadow pass offset down-right, then the fill.
func DrawShadowed(dst *image.NRGBA, face font.Face, text string, x, y, offset int, fg, shadow color.NRGBA) {
	DrawString(dst, face, text, x+offset, y+offset, shadow)
	DrawString(dst, face, text, x, y, fg)
}

// GlyphMask rasterizes text into a single-channel coverage mask. A border
// of b pixels unions the glyphs drawn at every offset in [-b..b]², so the
// mask is the fill plus its outline ring.
func GlyphMask(face font.Face, text string, border int) *imaging.Mask {
	if border < 0 {
		border = 0
	}
	m := face.Metrics()
	ascent := m.Ascent.Ceil()
	w := Measure(face, text) + 2*border
	h := ascent + m.Descent.Ceil() + 2*border
	if w < 1 || h < 1 {
		return imaging.NewMask(1, 1)
	}

	alpha := image.NewAlpha(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  alpha,
		Src:  image.NewUniform(color.Opaque),
		Face: face,
	}
	for dy := -border; dy <= border; dy++ {
		for dx := -border; dx <= border; dx++ {
			d.Dot = fixed.P(border+dx, border+ascent+dy)
			d.DrawString(text)
		}
	}

	mask := imaging.NewMask(w, h)
	copy(mask.Data, alpha.Pix)
	return mask
}

// DrawTextured composites the texture onto dst through the glyph mask with
// its top-left corner at (x, y). The texture is stretched to the mask size
// so the fill tracks the glyph footprint.
func DrawTextured(dst *image.NRGBA, mask *imaging.Mask, texture *image.NRGBA, x, y int) {
	fill := imaging.Resize(texture, mask.W, mask.H)
	r := image.Rect(x, y, x+mask.W, y+mask.H)
	draw.DrawMask(dst, r, fill, image.Point{}, mask.Alpha(), image.Point{}, draw.Over)
}
