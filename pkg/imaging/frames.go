// Package imaging holds the pixel-level building blocks of the card
// renderer: frame sequences, codec sniffing, resampling and alpha masks.
//
// All buffers are straight-alpha NRGBA in sRGB. A still image is a
// one-frame sequence with zero delay; anything longer renders as GIF.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"

	"github.com/tinyland-inc/cardsmith/pkg/faults"
)

// Format identifies a supported raster container.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatWEBP Format = "webp"
	FormatBMP  Format = "bmp"
)

// Ext returns the filename extension for the format.
func (f Format) Ext() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

// Frame is one pixel buffer with its display duration. Delay is zero for
// still images.
type Frame struct {
	Img   *image.NRGBA
	Delay time.Duration
}

// Sequence is a non-empty ordered list of frames of identical dimensions.
type Sequence []Frame

// Animated reports whether the sequence has more than one frame.
func (s Sequence) Animated() bool { return len(s) > 1 }

// Bounds returns the shared frame rectangle.
func (s Sequence) Bounds() image.Rectangle {
	if len(s) == 0 {
		return image.Rectangle{}
	}
	return s[0].Img.Bounds()
}

// Clone deep-copies the sequence so callers can mutate frames freely.
func (s Sequence) Clone() Sequence {
	out := make(Sequence, len(s))
	for i, f := range s {
		img := image.NewNRGBA(f.Img.Bounds())
		copy(img.Pix, f.Img.Pix)
		out[i] = Frame{Img: img, Delay: f.Delay}
	}
	return out
}

// Sniff identifies the container from leading magic bytes.
func Sniff(data []byte) (Format, bool) {
	switch {
	case len(data) >= 8 && bytes.Equal(data[:8], []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG, true
	case len(data) >= 3 && bytes.Equal(data[:3], []byte("\xff\xd8\xff")):
		return FormatJPEG, true
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return FormatGIF, true
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return FormatWEBP, true
	case len(data) >= 2 && bytes.Equal(data[:2], []byte("BM")):
		return FormatBMP, true
	}
	return "", false
}

// Decode parses data into a frame sequence. GIFs keep every frame with its
// delay; all other formats produce a single zero-delay frame. Unknown or
// corrupt input yields a decode-failed error.
func Decode(data []byte) (Sequence, Format, error) {
	format, ok := Sniff(data)
	if !ok {
		return nil, "", faults.Newf(faults.DecodeFailed, "unrecognized image format (%d bytes)", len(data))
	}

	var (
		img image.Image
		err error
	)
	switch format {
	case FormatGIF:
		seq, derr := decodeGIF(data)
		if derr != nil {
			return nil, "", faults.New(faults.DecodeFailed, derr)
		}
		return seq, FormatGIF, nil
	case FormatPNG:
		img, err = png.Decode(bytes.NewReader(data))
	case FormatJPEG:
		img, err = jpeg.Decode(bytes.NewReader(data))
	case FormatWEBP:
		img, err = webp.Decode(bytes.NewReader(data))
	case FormatBMP:
		img, err = bmp.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, "", faults.Newf(faults.DecodeFailed, "decoding %s: %v", format, err)
	}
	return Sequence{{Img: ToNRGBA(img)}}, format, nil
}

// decodeGIF coalesces GIF frames onto a full-size canvas so every output
// frame has identical bounds. Disposal "background" clears the frame's own
// rectangle before the next overlay; "previous" restores the prior canvas.
func decodeGIF(data []byte) (Sequence, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("gif has no frames")
	}

	w, h := g.Config.Width, g.Config.Height
	if w == 0 || h == 0 {
		b := g.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	seq := make(Sequence, 0, len(g.Image))

	for i, frame := range g.Image {
		var restore *image.NRGBA
		if i < len(g.Disposal) && g.Disposal[i] == gif.DisposalPrevious {
			restore = image.NewNRGBA(canvas.Bounds())
			copy(restore.Pix, canvas.Pix)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)

		snapshot := image.NewNRGBA(canvas.Bounds())
		copy(snapshot.Pix, canvas.Pix)

		delay := 0
		if i < len(g.Delay) {
			delay = g.Delay[i]
		}
		seq = append(seq, Frame{
			Img:   snapshot,
			Delay: time.Duration(delay) * 10 * time.Millisecond,
		})

		if i < len(g.Disposal) {
			switch g.Disposal[i] {
			case gif.DisposalBackground:
				draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
			case gif.DisposalPrevious:
				if restore != nil {
					canvas = restore
				}
			}
		}
	}
	return seq, nil
}

// EncodePNG encodes a single frame as PNG.
func EncodePNG(frame Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame.Img); err != nil {
		return nil, faults.New(faults.RenderError, err)
	}
	return buf.Bytes(), nil
}

// EncodeGIF encodes the sequence as an animated GIF, preserving per-frame
// delays. Frames are quantized to the Plan 9 palette with error diffusion.
func EncodeGIF(seq Sequence) ([]byte, error) {
	if len(seq) == 0 {
		return nil, faults.Newf(faults.RenderError, "empty frame sequence")
	}
	out := &gif.GIF{LoopCount: 0}
	for _, f := range seq {
		pal := image.NewPaletted(f.Img.Bounds(), webSafePalette)
		draw.FloydSteinberg.Draw(pal, f.Img.Bounds(), f.Img, image.Point{})
		out.Image = append(out.Image, pal)
		out.Delay = append(out.Delay, int(f.Delay/(10*time.Millisecond)))
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, out); err != nil {
		return nil, faults.New(faults.RenderError, err)
	}
	return buf.Bytes(), nil
}

// webSafePalette is the 216-color web cube plus transparent, enough for
// card artwork without pulling in a per-frame median cut.
var webSafePalette = buildWebSafePalette()

func buildWebSafePalette() color.Palette {
	pal := make(color.Palette, 0, 217)
	pal = append(pal, color.NRGBA{0, 0, 0, 0})
	for r := 0; r < 6; r++ {
		for g := 0; g < 6; g++ {
			for b := 0; b < 6; b++ {
				pal = append(pal, color.NRGBA{uint8(r * 51), uint8(g * 51), uint8(b * 51), 255})
			}
		}
	}
	return pal
}

// ToNRGBA converts any image to straight-alpha NRGBA, copying when the
// representation already matches.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		out := image.NewNRGBA(n.Bounds())
		copy(out.Pix, n.Pix)
		return out
	}
	out := image.NewNRGBA(img.Bounds())
	draw.Draw(out, img.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}

// FlattenWhite composites img over an opaque white background, discarding
// alpha. Used before palette quantization of transparent sources.
func FlattenWhite(img *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, img.Bounds(), img, img.Bounds().Min, draw.Over)
	return out
}
