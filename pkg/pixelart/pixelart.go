// Package pixelart turns arbitrary images into palette-quantized pixel
// art: ingest an original, project it, publish the result, and rescale on
// demand from the retained original.
package pixelart

import (
	"context"
	"image"
	"math"
	"sync"

	"github.com/tinyland-inc/cardsmith/pkg/assets"
	"github.com/tinyland-inc/cardsmith/pkg/faults"
	"github.com/tinyland-inc/cardsmith/pkg/imaging"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
	"github.com/tinyland-inc/cardsmith/pkg/quantize"
)

const (
	// Output dimensions are clamped proportionally into this range.
	MaxDimension = 2000
	MinDimension = 10

	// Each resize step moves dimensions by this factor.
	stepFactor = 1.1
)

// Fetcher resolves a source URL to raw bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Job is one user's conversion state: the last ingested original plus the
// current output parameters. Rescaling re-runs from the original, never
// from a previous output.
type Job struct {
	original *image.NRGBA
	Width    int
	Height   int
	Dither   bool
	Palette  quantize.Palette
	URL      string
}

// Converter drives the pipeline. Jobs are keyed by user id.
type Converter struct {
	mu        sync.Mutex
	quantizer *quantize.Quantizer
	ingestor  *assets.Ingestor
	fetcher   Fetcher
	jobs      map[string]*Job
}

func NewConverter(q *quantize.Quantizer, ing *assets.Ingestor, f Fetcher) *Converter {
	return &Converter{quantizer: q, ingestor: ing, fetcher: f, jobs: make(map[string]*Job)}
}

// Start ingests sourceURL as userID's new original and produces the first
// quantized output at the original's (clamped) dimensions.
func (c *Converter) Start(ctx context.Context, userID, sourceURL string, pal quantize.Palette, dither bool) (string, error) {
	data, err := c.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return "", faults.New(faults.FetchFailed, err)
	}
	return c.StartBytes(ctx, userID, data, pal, dither)
}

// StartBytes is Start for already-fetched bytes (attachments).
func (c *Converter) StartBytes(ctx context.Context, userID string, data []byte, pal quantize.Palette, dither bool) (string, error) {
	seq, _, err := imaging.Decode(data)
	if err != nil {
		return "", err
	}
	original := seq[0].Img
	w, h := ClampDims(original.Bounds().Dx(), original.Bounds().Dy())

	job := &Job{original: original, Width: w, Height: h, Dither: dither, Palette: pal}
	c.mu.Lock()
	c.jobs[userID] = job
	c.mu.Unlock()

	return c.run(ctx, userID, job)
}

// Step rescales by one 10% step per axis: dw and dh in {-1, 0, +1}. The
// pipeline re-runs from the retained original.
func (c *Converter) Step(ctx context.Context, userID string, dw, dh int) (string, error) {
	job, err := c.job(userID)
	if err != nil {
		return "", err
	}
	job.Width, job.Height = ClampDims(stepDim(job.Width, dw), stepDim(job.Height, dh))
	return c.run(ctx, userID, job)
}

// SetDither toggles error diffusion and re-runs.
func (c *Converter) SetDither(ctx context.Context, userID string, dither bool) (string, error) {
	job, err := c.job(userID)
	if err != nil {
		return "", err
	}
	job.Dither = dither
	return c.run(ctx, userID, job)
}

// SetPalette swaps the palette and re-runs.
func (c *Converter) SetPalette(ctx context.Context, userID string, pal quantize.Palette) (string, error) {
	job, err := c.job(userID)
	if err != nil {
		return "", err
	}
	job.Palette = pal
	return c.run(ctx, userID, job)
}

// Current returns the user's job state for screen rendering.
func (c *Converter) Current(userID string) (Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[userID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Drop forgets the user's original.
func (c *Converter) Drop(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.jobs, userID)
}

func (c *Converter) job(userID string) (*Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[userID]
	if !ok {
		return nil, faults.Newf(faults.InvalidInput, "no conversion in progress for %s", userID)
	}
	return job, nil
}

func (c *Converter) run(ctx context.Context, userID string, job *Job) (string, error) {
	resized := imaging.Resize(job.original, job.Width, job.Height)

	mode := quantize.Nearest
	if job.Dither {
		mode = quantize.FloydSteinberg
	}
	out, err := c.quantizer.Quantize(ctx, resized, job.Palette, mode)
	if err != nil {
		return "", err
	}

	encoded, err := imaging.EncodePNG(imaging.Frame{Img: out})
	if err != nil {
		return "", err
	}
	url, err := c.ingestor.IngestBytes(ctx, encoded)
	if err != nil {
		return "", err
	}
	job.URL = url
	logger.InfoCF("pixelart", "conversion published", map[string]any{
		"user":   userID,
		"width":  job.Width,
		"height": job.Height,
		"dither": job.Dither,
	})
	return url, nil
}

func stepDim(v, direction int) int {
	switch {
	case direction > 0:
		return int(math.Round(float64(v) * stepFactor))
	case direction < 0:
		return int(math.Round(float64(v) / stepFactor))
	default:
		return v
	}
}

// ClampDims fits (w, h) into [MinDimension, MaxDimension] by scaling both
// axes with the same factor, so a cap on one axis shrinks the other
// proportionally.
func ClampDims(w, h int) (int, int) {
	fw, fh := float64(w), float64(h)
	if fw < 1 {
		fw = 1
	}
	if fh < 1 {
		fh = 1
	}

	if m := math.Max(fw/MaxDimension, fh/MaxDimension); m > 1 {
		fw /= m
		fh /= m
	}
	if m := math.Min(fw/MinDimension, fh/MinDimension); m < 1 {
		fw /= m
		fh /= m
	}
	if fw > MaxDimension {
		fw = MaxDimension
	}
	if fh > MaxDimension {
		fh = MaxDimension
	}
	return int(math.Round(fw)), int(math.Round(fh))
}
