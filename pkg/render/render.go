package render

import (
	"context"
	"image"
	"image/color"
	"strings"

	"github.com/tinyland-inc/cardsmith/pkg/faults"
	"github.com/tinyland-inc/cardsmith/pkg/imaging"
	"github.com/tinyland-inc/cardsmith/pkg/imaging/text"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

// AssetFetcher resolves an asset URL to raw bytes.
type AssetFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Result is an encoded card.
type Result struct {
	Data   []byte
	Format imaging.Format
}

// neutralFill substitutes for assets that could not be fetched or decoded.
var neutralFill = color.NRGBA{R: 200, G: 200, B: 200, A: 255}

// Renderer composites specs. It is stateless and safe for concurrent use.
type Renderer struct {
	fetcher AssetFetcher
	regular *text.Source
	bold    *text.Source
}

func New(fetcher AssetFetcher, regular, bold *text.Source) *Renderer {
	return &Renderer{fetcher: fetcher, regular: regular, bold: bold}
}

// Render composites spec for id. Output dimensions are exactly the canvas
// dimensions; the format is gif iff the background decoded to more than
// one frame. Missing assets become neutral fills, never a failed render.
func (r *Renderer) Render(ctx context.Context, spec Spec, id Identity) (Result, error) {
	if spec.Width < 1 || spec.Height < 1 {
		return Result{}, faults.Newf(faults.InvalidInput, "canvas %dx%d", spec.Width, spec.Height)
	}

	frames := r.background(ctx, spec)
	overlay := r.overlay(ctx, spec, id)

	for _, f := range frames {
		imaging.Paste(f.Img, overlay, 0, 0)
	}

	if frames.Animated() {
		data, err := imaging.EncodeGIF(frames)
		if err != nil {
			return Result{}, err
		}
		return Result{Data: data, Format: imaging.FormatGIF}, nil
	}
	data, err := imaging.EncodePNG(frames[0])
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, Format: imaging.FormatPNG}, nil
}

// background yields the conformed frame sequence: every frame center-cropped
// and resampled to canvas size. A missing asset falls back to the flat
// background color.
func (r *Renderer) background(ctx context.Context, spec Spec) imaging.Sequence {
	if spec.Background.URL != "" {
		if seq, ok := r.fetchSequence(ctx, spec.Background.URL); ok {
			out := make(imaging.Sequence, len(seq))
			for i, f := range seq {
				out[i] = imaging.Frame{
					Img:   imaging.Cover(f.Img, spec.Width, spec.Height),
					Delay: f.Delay,
				}
			}
			return out
		}
	}
	base := image.NewNRGBA(image.Rect(0, 0, spec.Width, spec.Height))
	imaging.FillRect(base, base.Bounds(), nrgb(spec.Background.Color, neutralFill))
	return imaging.Sequence{{Img: base}}
}

// overlay composites every non-background layer onto one transparent canvas
// in painter's order: images and artwork first, text second, above-text
// images last. Text is identical across frames, so one overlay serves all.
func (r *Renderer) overlay(ctx context.Context, spec Spec, id Identity) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, spec.Width, spec.Height))

	for _, l := range spec.Layers {
		if l.Kind == LayerText || l.Kind == LayerTexturedText {
			continue
		}
		if l.Kind == LayerImage && l.AboveText {
			continue
		}
		r.drawLayer(ctx, canvas, spec, l, id)
	}
	for _, l := range spec.Layers {
		if l.Kind == LayerText || l.Kind == LayerTexturedText {
			r.drawLayer(ctx, canvas, spec, l, id)
		}
	}
	for _, l := range spec.Layers {
		if l.Kind == LayerImage && l.AboveText {
			r.drawLayer(ctx, canvas, spec, l, id)
		}
	}
	return canvas
}

func (r *Renderer) drawLayer(ctx context.Context, canvas *image.NRGBA, spec Spec, l Layer, id Identity) {
	switch l.Kind {
	case LayerUnderlay, LayerImage:
		r.drawImage(ctx, canvas, l)
	case LayerAvatar:
		r.drawAvatar(ctx, canvas, l, id)
	case LayerOutline:
		r.drawOutline(ctx, canvas, l)
	case LayerText:
		r.drawText(canvas, l, id)
	case LayerTexturedText:
		r.drawTexturedText(ctx, canvas, spec, l, id)
	case LayerProgressBar:
		r.drawProgressBar(ctx, canvas, l)
	default:
		logger.WarnCF("render", "unknown layer kind skipped", map[string]any{"kind": string(l.Kind)})
	}
}

func (r *Renderer) drawImage(ctx context.Context, canvas *image.NRGBA, l Layer) {
	img := r.fetchImage(ctx, l.URL, l.W, l.H)
	imaging.Paste(canvas, imaging.Resize(img, l.W, l.H), l.X, l.Y)
}

func (r *Renderer) drawAvatar(ctx context.Context, canvas *image.NRGBA, l Layer, id Identity) {
	url := l.URL
	if url == "" {
		url = id.AvatarURL
	}
	d := l.Diameter
	if d < 1 {
		d = 1
	}
	img := imaging.Resize(r.fetchImage(ctx, url, d, d), d, d)
	imaging.ApplyMask(img, imaging.CircleMask(d))
	imaging.Paste(canvas, img, l.X, l.Y)
}

// drawOutline renders the ring around the avatar. A color override tints
// the artwork in place; a custom image fills only where the canonical
// outline was opaque.
func (r *Renderer) drawOutline(ctx context.Context, canvas *image.NRGBA, l Layer) {
	outline := r.fetchImage(ctx, l.URL, l.W, l.H)

	if l.CustomImageURL != "" {
		custom := r.fetchImage(ctx, l.CustomImageURL, l.W, l.H)
		native := outline.Bounds()
		fill := imaging.Resize(imaging.SquareCrop(custom), native.Dx(), native.Dy())
		imaging.ApplyMask(fill, imaging.MaskFromAlpha(outline))
		outline = fill
	} else if l.ColorOverride != nil {
		outline = imaging.TintPreservingAlpha(outline, nrgb(l.ColorOverride, neutralFill))
	}

	imaging.Paste(canvas, imaging.Resize(outline, l.W, l.H), l.X, l.Y)
}

func (r *Renderer) drawText(canvas *image.NRGBA, l Layer, id Identity) {
	content := expand(l.Text, id)
	src := r.faceSource(l.Bold)

	size := l.Size
	if l.Fit != nil {
		size = src.FitSize(content, l.Fit.Min, l.Fit.Max, l.Fit.MaxX-l.X)
	}
	if size < 1 {
		size = 12
	}
	face := src.Face(size)
	fg := nrgb(l.Color, color.NRGBA{255, 255, 255, 255})

	if l.ShadowColor != nil {
		offset := l.ShadowOffset
		if offset == 0 {
			offset = 2
		}
		text.DrawShadowed(canvas, face, content, l.X, l.Y, offset, fg, nrgb(l.ShadowColor, color.NRGBA{A: 255}))
		return
	}
	text.DrawString(canvas, face, content, l.X, l.Y, fg)
}

// drawTexturedText draws a black border pass, then the texture, stretched
// to canvas size, through the plain glyph mask.
func (r *Renderer) drawTexturedText(ctx context.Context, canvas *image.NRGBA, spec Spec, l Layer, id Identity) {
	content := expand(l.Text, id)
	src := r.faceSource(l.Bold)
	size := l.Size
	if size < 1 {
		size = 24
	}
	face := src.Face(size)

	border := l.Border
	if border < 0 {
		border = 0
	}
	if border > 0 {
		ring := text.GlyphMask(face, content, border)
		black := image.NewNRGBA(image.Rect(0, 0, ring.W, ring.H))
		imaging.FillRect(black, black.Bounds(), color.NRGBA{A: 255})
		imaging.ApplyMask(black, ring)
		imaging.Paste(canvas, black, l.X-border, l.Y-border)
	}

	mask := text.GlyphMask(face, content, 0)
	texture := imaging.Resize(r.fetchImage(ctx, l.TextureURL, spec.Width, spec.Height), spec.Width, spec.Height)
	fill := imaging.Crop(texture, image.Rect(0, 0, mask.W, mask.H).Add(image.Pt(clampAt(l.X, spec.Width-mask.W), clampAt(l.Y, spec.Height-mask.H))))
	text.DrawTextured(canvas, mask, fill, l.X, l.Y)
}

func clampAt(v, max int) int {
	if max < 0 {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// drawProgressBar paints artwork then a fill rectangle of width
// progress * W, masked by the artwork alpha so the fill conforms to
// rounded corners.
func (r *Renderer) drawProgressBar(ctx context.Context, canvas *image.NRGBA, l Layer) {
	progress := l.Progress
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	fillW := int(progress * float64(l.W))

	fill := image.NewNRGBA(image.Rect(0, 0, l.W, l.H))
	imaging.FillRect(fill, image.Rect(0, 0, fillW, l.H), nrgb(l.Color, color.NRGBA{R: 88, G: 195, B: 66, A: 255}))

	if l.URL != "" {
		art := imaging.Resize(r.fetchImage(ctx, l.URL, l.W, l.H), l.W, l.H)
		imaging.ApplyMask(fill, imaging.MaskFromAlpha(art))
		imaging.Paste(canvas, art, l.X, l.Y)
	}
	imaging.Paste(canvas, fill, l.X, l.Y)
}

func (r *Renderer) faceSource(bold bool) *text.Source {
	if bold && r.bold != nil {
		return r.bold
	}
	return r.regular
}

func expand(s string, id Identity) string {
	return strings.ReplaceAll(s, "{name}", id.Name)
}

// fetchImage returns the first frame of the asset, or a neutral fill of
// the requested bounding box when the asset is unavailable.
func (r *Renderer) fetchImage(ctx context.Context, url string, w, h int) *image.NRGBA {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	if url != "" {
		if seq, ok := r.fetchSequence(ctx, url); ok {
			return seq[0].Img
		}
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	imaging.FillRect(img, img.Bounds(), neutralFill)
	return img
}

// fetchSequence fetches and decodes an asset with a single retry on fetch
// failure.
func (r *Renderer) fetchSequence(ctx context.Context, url string) (imaging.Sequence, bool) {
	data, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		data, err = r.fetcher.Fetch(ctx, url)
	}
	if err != nil {
		logger.WarnCF("render", "asset fetch failed, substituting neutral fill", map[string]any{
			"url":   url,
			"error": err.Error(),
		})
		return nil, false
	}
	seq, _, err := imaging.Decode(data)
	if err != nil {
		logger.WarnCF("render", "asset decode failed, substituting neutral fill", map[string]any{
			"url":   url,
			"error": err.Error(),
		})
		return nil, false
	}
	return seq, true
}
