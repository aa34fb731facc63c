package imaging

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// Resize resamples img to exactly w*h with Catmull-Rom interpolation.
func Resize(img *image.NRGBA, w, h int) *image.NRGBA {
	if w <= 0 || h <= 0 {
		return image.NewNRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))
	}
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		out := image.NewNRGBA(b)
		copy(out.Pix, img.Pix)
		return out
	}
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, b, xdraw.Src, nil)
	return out
}

// Crop extracts rect (clamped to img bounds) into a fresh buffer.
func Crop(img *image.NRGBA, rect image.Rectangle) *image.NRGBA {
	rect = rect.Intersect(img.Bounds())
	out := image.NewNRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := 0; y < rect.Dy(); y++ {
		src := img.PixOffset(rect.Min.X, rect.Min.Y+y)
		dst := out.PixOffset(0, y)
		copy(out.Pix[dst:dst+rect.Dx()*4], img.Pix[src:src+rect.Dx()*4])
	}
	return out
}

// Cover conforms img to exactly w*h: the longer axis is center-cropped to
// match the target aspect, then the result is resampled. This is the
// background-conform rule; animated sources apply it per frame.
func Cover(img *image.NRGBA, w, h int) *image.NRGBA {
	b := img.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw == 0 || sh == 0 || w <= 0 || h <= 0 {
		return image.NewNRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))
	}

	// Compare aspect ratios without floats: sw/sh vs w/h.
	if sw*h > w*sh {
		// Source is wider: crop width.
		cw := w * sh / h
		x0 := (sw - cw) / 2
		img = Crop(img, image.Rect(b.Min.X+x0, b.Min.Y, b.Min.X+x0+cw, b.Max.Y))
	} else if sw*h < w*sh {
		// Source is taller: crop height.
		ch := h * sw / w
		y0 := (sh - ch) / 2
		img = Crop(img, image.Rect(b.Min.X, b.Min.Y+y0, b.Max.X, b.Min.Y+y0+ch))
	}
	return Resize(img, w, h)
}

// SquareCrop center-crops img to its shorter axis. Custom outline images
// pass through here before being resized to the outline's native size.
func SquareCrop(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	return Crop(img, image.Rect(x0, y0, x0+side, y0+side))
}
