package quantize

import (
	"context"
	"image"
	"runtime"
	"sync"

	"github.com/tinyland-inc/cardsmith/pkg/imaging"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

// Mode selects the projection algorithm.
type Mode int

const (
	Nearest Mode = iota
	FloydSteinberg
)

func (m Mode) String() string {
	if m == FloydSteinberg {
		return "floyd-steinberg"
	}
	return "nearest"
}

// DefaultFastPathPixels bounds the single-pass path. Larger images go to
// the row-chunk worker pool.
const DefaultFastPathPixels = 4_000_000

// Quantizer owns a fixed worker pool sized min(GOMAXPROCS, 8). The pool is
// started at construction and drained by Close.
type Quantizer struct {
	fastPathPixels int
	workers        int

	jobs chan func()
	wg   sync.WaitGroup

	closeOnce sync.Once
}

// New builds a quantizer. fastPathPixels <= 0 selects the default bound.
func New(fastPathPixels int) *Quantizer {
	if fastPathPixels <= 0 {
		fastPathPixels = DefaultFastPathPixels
	}
	workers := runtime.GOMAXPROCS(0)
	if workers > 8 {
		workers = 8
	}
	q := &Quantizer{
		fastPathPixels: fastPathPixels,
		workers:        workers,
		jobs:           make(chan func(), workers),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for job := range q.jobs {
				job()
			}
		}()
	}
	return q
}

// Close stops the pool after in-flight chunks finish.
func (q *Quantizer) Close() {
	q.closeOnce.Do(func() {
		close(q.jobs)
		q.wg.Wait()
	})
}

// Quantize projects img onto pal. The input is never mutated. Images with
// translucent pixels are flattened against white first. A palette with no
// enabled entries makes the call a pass-through copy.
func (q *Quantizer) Quantize(ctx context.Context, img *image.NRGBA, pal Palette, mode Mode) (*image.NRGBA, error) {
	src := imaging.ToNRGBA(img)
	if hasTranslucency(src) {
		src = imaging.FlattenWhite(src)
	}

	var candidates Palette
	if mode == FloydSteinberg {
		// Diffusion matches against visible colors only, so the hidden
		// transparency convention never feeds error terms.
		candidates = pal.Active()
	} else {
		candidates = pal.EnabledEntries()
	}
	if len(candidates) == 0 {
		return src, nil
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))

	if mode == FloydSteinberg {
		diffuse(src, out, candidates)
		return out, nil
	}

	pixels := w * h
	switch {
	case pixels <= q.fastPathPixels && len(candidates) <= 256:
		nearestRows(src, out, candidates, 0, h)
	default:
		if err := q.nearestParallel(ctx, src, out, candidates, h); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// nearestParallel splits rows into one chunk per worker and recomposes in
// row order. Output is bit-identical to the sequential pass.
func (q *Quantizer) nearestParallel(ctx context.Context, src, out *image.NRGBA, candidates Palette, h int) error {
	chunk := (h + q.workers - 1) / q.workers
	var wg sync.WaitGroup
	for y0 := 0; y0 < h; y0 += chunk {
		y0, y1 := y0, y0+chunk
		if y1 > h {
			y1 = h
		}
		wg.Add(1)
		job := func() {
			defer wg.Done()
			nearestRows(src, out, candidates, y0, y1)
		}
		select {
		case q.jobs <- job:
		case <-ctx.Done():
			wg.Done()
			logger.WarnCF("quantize", "quantization canceled", map[string]any{"rows": h})
			return ctx.Err()
		}
	}
	wg.Wait()
	return ctx.Err()
}

func hasTranslucency(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 255 {
			return true
		}
	}
	return false
}

// nearestRows writes rows [y0, y1) of out. Hidden winners render alpha 0.
func nearestRows(src, out *image.NRGBA, candidates Palette, y0, y1 int) {
	b := src.Bounds()
	w := b.Dx()
	for y := y0; y < y1; y++ {
		si := src.PixOffset(b.Min.X, b.Min.Y+y)
		oi := out.PixOffset(0, y)
		for x := 0; x < w; x++ {
			r := int32(src.Pix[si+0])
			g := int32(src.Pix[si+1])
			bl := int32(src.Pix[si+2])
			best := nearestIndex(candidates, r, g, bl)
			e := candidates[best]
			out.Pix[oi+0] = e.RGB[0]
			out.Pix[oi+1] = e.RGB[1]
			out.Pix[oi+2] = e.RGB[2]
			if e.Hidden {
				out.Pix[oi+3] = 0
			} else {
				out.Pix[oi+3] = 255
			}
			si += 4
			oi += 4
		}
	}
}

// nearestIndex returns the candidate with minimum squared sRGB distance,
// first index on ties.
func nearestIndex(candidates Palette, r, g, b int32) int {
	best := 0
	bestDist := int32(1 << 30)
	for i, e := range candidates {
		dr := r - int32(e.RGB[0])
		dg := g - int32(e.RGB[1])
		db := b - int32(e.RGB[2])
		d := dr*dr + dg*dg + db*db
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

var fsWeights = [4]struct {
	dx, dy int
	w      float64
}{
	{1, 0, 7.0 / 16},
	{-1, 1, 3.0 / 16},
	{0, 1, 5.0 / 16},
	{1, 1, 1.0 / 16},
}

// diffuse runs Floyd-Steinberg in raster order over a float64 working copy
// of the source. Inherently sequential.
func diffuse(src, out *image.NRGBA, candidates Palette) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	work := make([]float64, w*h*3)
	for y := 0; y < h; y++ {
		si := src.PixOffset(b.Min.X, b.Min.Y+y)
		wi := y * w * 3
		for x := 0; x < w; x++ {
			work[wi+0] = float64(src.Pix[si+0])
			work[wi+1] = float64(src.Pix[si+1])
			work[wi+2] = float64(src.Pix[si+2])
			si += 4
			wi += 3
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			wi := (y*w + x) * 3
			r, g, bl := work[wi], work[wi+1], work[wi+2]
			best := nearestIndex(candidates, round(r), round(g), round(bl))
			e := candidates[best]

			oi := out.PixOffset(x, y)
			out.Pix[oi+0] = e.RGB[0]
			out.Pix[oi+1] = e.RGB[1]
			out.Pix[oi+2] = e.RGB[2]
			out.Pix[oi+3] = 255

			er := r - float64(e.RGB[0])
			eg := g - float64(e.RGB[1])
			eb := bl - float64(e.RGB[2])
			for _, fw := range fsWeights {
				nx, ny := x+fw.dx, y+fw.dy
				if nx < 0 || nx >= w || ny >= h {
					continue
				}
				ni := (ny*w + nx) * 3
				work[ni+0] = clamp(work[ni+0] + er*fw.w)
				work[ni+1] = clamp(work[ni+1] + eg*fw.w)
				work[ni+2] = clamp(work[ni+2] + eb*fw.w)
			}
		}
	}
}

func round(v float64) int32 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return int32(v + 0.5)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
