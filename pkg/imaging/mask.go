package imaging

import (
	"image"
	"image/color"
	"image/draw"
)

// Mask is a single-channel alpha mask. Values run 0 (transparent) to 255
// (opaque).
type Mask struct {
	W, H int
	Data []uint8
}

// NewMask returns an all-transparent mask.
func NewMask(w, h int) *Mask {
	return &Mask{W: w, H: h, Data: make([]uint8, w*h)}
}

// At returns the mask value at (x, y), zero outside bounds.
func (m *Mask) At(x, y int) uint8 {
	if x < 0 || x >= m.W || y < 0 || y >= m.H {
		return 0
	}
	return m.Data[y*m.W+x]
}

// Set stores a value at (x, y); out-of-bounds writes are dropped.
func (m *Mask) Set(x, y int, v uint8) {
	if x < 0 || x >= m.W || y < 0 || y >= m.H {
		return
	}
	m.Data[y*m.W+x] = v
}

// Alpha converts the mask to an *image.Alpha for use as a draw mask.
func (m *Mask) Alpha() *image.Alpha {
	a := image.NewAlpha(image.Rect(0, 0, m.W, m.H))
	copy(a.Pix, m.Data)
	return a
}

// CircleMask returns a filled disc of the given diameter, antialiased at
// the rim with 4x supersampling so avatars do not show stair-steps.
func CircleMask(d int) *Mask {
	m := NewMask(d, d)
	r := float64(d) / 2
	for y := 0; y < d; y++ {
		for x := 0; x < d; x++ {
			inside := 0
			for sy := 0; sy < 2; sy++ {
				for sx := 0; sx < 2; sx++ {
					px := float64(x) + 0.25 + 0.5*float64(sx) - r
					py := float64(y) + 0.25 + 0.5*float64(sy) - r
					if px*px+py*py <= r*r {
						inside++
					}
				}
			}
			m.Data[y*d+x] = uint8(inside * 255 / 4)
		}
	}
	return m
}

// MaskFromAlpha extracts the alpha channel of img.
func MaskFromAlpha(img *image.NRGBA) *Mask {
	b := img.Bounds()
	m := NewMask(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := img.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < b.Dx(); x++ {
			m.Data[y*m.W+x] = img.Pix[row+x*4+3]
		}
	}
	return m
}

// ApplyMask multiplies img's alpha channel by the mask in place. The mask
// must match img's dimensions; a mismatched mask leaves img untouched.
func ApplyMask(img *image.NRGBA, m *Mask) {
	b := img.Bounds()
	if b.Dx() != m.W || b.Dy() != m.H {
		return
	}
	for y := 0; y < m.H; y++ {
		row := img.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < m.W; x++ {
			a := &img.Pix[row+x*4+3]
			*a = uint8(uint16(*a) * uint16(m.Data[y*m.W+x]) / 255)
		}
	}
}

// TintPreservingAlpha replaces the RGB channels with the override color
// while keeping the source alpha. This is the outline color override.
func TintPreservingAlpha(img *image.NRGBA, c color.NRGBA) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for i := 0; i < len(img.Pix); i += 4 {
		out.Pix[i+0] = c.R
		out.Pix[i+1] = c.G
		out.Pix[i+2] = c.B
		out.Pix[i+3] = img.Pix[i+3]
	}
	return out
}

// Paste draws src over dst at (x, y) with straight alpha blending.
func Paste(dst *image.NRGBA, src *image.NRGBA, x, y int) {
	r := src.Bounds().Add(image.Pt(x, y).Sub(src.Bounds().Min))
	draw.Draw(dst, r, src, src.Bounds().Min, draw.Over)
}

// PasteMasked draws src over dst at (x, y) through an explicit mask.
func PasteMasked(dst *image.NRGBA, src *image.NRGBA, m *Mask, x, y int) {
	r := src.Bounds().Add(image.Pt(x, y).Sub(src.Bounds().Min))
	draw.DrawMask(dst, r, src, src.Bounds().Min, m.Alpha(), image.Point{}, draw.Over)
}

// FillRect paints an axis-aligned rectangle in the given color.
func FillRect(dst *image.NRGBA, rect image.Rectangle, c color.NRGBA) {
	draw.Draw(dst, rect.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, draw.Over)
}
