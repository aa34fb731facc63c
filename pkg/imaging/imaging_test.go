package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

func TestSniff(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(2, 2, color.NRGBA{255, 0, 0, 255})))

	f, ok := Sniff(buf.Bytes())
	require.True(t, ok)
	assert.Equal(t, FormatPNG, f)

	_, ok = Sniff([]byte("not an image"))
	assert.False(t, ok)
}

func TestFormatExt(t *testing.T) {
	assert.Equal(t, "jpg", FormatJPEG.Ext())
	assert.Equal(t, "png", FormatPNG.Ext())
	assert.Equal(t, "gif", FormatGIF.Ext())
}

func TestDecodePNGRoundTrip(t *testing.T) {
	src := solid(3, 2, color.NRGBA{10, 20, 30, 255})
	data, err := EncodePNG(Frame{Img: src})
	require.NoError(t, err)

	seq, format, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, format)
	require.Len(t, seq, 1)
	assert.False(t, seq.Animated())
	assert.Equal(t, image.Rect(0, 0, 3, 2), seq.Bounds())
	assert.Equal(t, src.Pix, seq[0].Img.Pix)
}

func TestDecodeCorruptFails(t *testing.T) {
	// Valid PNG magic, truncated body.
	_, _, err := Decode([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0})
	assert.Error(t, err)
}

func TestDecodeGIFCoalesces(t *testing.T) {
	pal := color.Palette{color.NRGBA{0, 0, 0, 255}, color.NRGBA{255, 255, 255, 255}}
	g := &gif.GIF{}
	for i := 0; i < 3; i++ {
		fr := image.NewPaletted(image.Rect(0, 0, 4, 4), pal)
		for p := range fr.Pix {
			fr.Pix[p] = uint8(i % 2)
		}
		g.Image = append(g.Image, fr)
		g.Delay = append(g.Delay, 5)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))

	seq, format, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, FormatGIF, format)
	require.Len(t, seq, 3)
	assert.True(t, seq.Animated())
	for _, fr := range seq {
		assert.Equal(t, image.Rect(0, 0, 4, 4), fr.Img.Bounds())
	}
	assert.Equal(t, uint8(255), seq[1].Img.Pix[0])
}

func TestEncodeGIFSingleFrame(t *testing.T) {
	seq := Sequence{{Img: solid(4, 4, color.NRGBA{255, 0, 0, 255})}}
	data, err := EncodeGIF(seq)
	require.NoError(t, err)

	decoded, err := gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, decoded.Image, 1)
}

func TestSequenceClone(t *testing.T) {
	seq := Sequence{{Img: solid(2, 2, color.NRGBA{9, 9, 9, 255})}}
	dup := seq.Clone()
	dup[0].Img.Pix[0] = 0
	assert.Equal(t, uint8(9), seq[0].Img.Pix[0])
}

func TestResize(t *testing.T) {
	src := solid(10, 10, color.NRGBA{0, 255, 0, 255})
	out := Resize(src, 5, 3)
	assert.Equal(t, image.Rect(0, 0, 5, 3), out.Bounds())
	assert.Equal(t, uint8(255), out.Pix[1])
}

func TestCoverKeepsTargetSize(t *testing.T) {
	src := solid(20, 10, color.NRGBA{1, 2, 3, 255})
	out := Cover(src, 8, 8)
	assert.Equal(t, image.Rect(0, 0, 8, 8), out.Bounds())
}

func TestSquareCrop(t *testing.T) {
	src := solid(10, 6, color.NRGBA{1, 2, 3, 255})
	out := SquareCrop(src)
	assert.Equal(t, 6, out.Bounds().Dx())
	assert.Equal(t, 6, out.Bounds().Dy())
}

func TestCircleMask(t *testing.T) {
	m := CircleMask(20)
	assert.Equal(t, uint8(255), m.At(10, 10))
	assert.Equal(t, uint8(0), m.At(0, 0))
	assert.Equal(t, uint8(0), m.At(19, 19))
}

func TestApplyMask(t *testing.T) {
	img := solid(4, 4, color.NRGBA{255, 255, 255, 255})
	m := NewMask(4, 4)
	m.Set(1, 1, 128)
	ApplyMask(img, m)
	assert.Equal(t, uint8(0), img.Pix[3])
	assert.Equal(t, uint8(128), img.Pix[img.PixOffset(1, 1)+3])
}

func TestTintPreservingAlpha(t *testing.T) {
	img := solid(2, 2, color.NRGBA{10, 20, 30, 200})
	out := TintPreservingAlpha(img, color.NRGBA{R: 255, G: 0, B: 0})
	assert.Equal(t, uint8(255), out.Pix[0])
	assert.Equal(t, uint8(0), out.Pix[1])
	assert.Equal(t, uint8(200), out.Pix[3])
	// Source untouched.
	assert.Equal(t, uint8(10), img.Pix[0])
}

func TestFlattenWhite(t *testing.T) {
	img := solid(1, 1, color.NRGBA{0, 0, 0, 0})
	out := FlattenWhite(img)
	assert.Equal(t, uint8(255), out.Pix[0])
	assert.Equal(t, uint8(255), out.Pix[3])
}
