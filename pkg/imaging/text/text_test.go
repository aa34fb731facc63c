package text

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetNop()
	m.Run()
}

func TestLoadFallsBackOnMissingPath(t *testing.T) {
	src, err := Load("/nonexistent/font.ttf")
	require.NoError(t, err)
	assert.Positive(t, Measure(src.Face(16), "hello"))
}

func TestFaceCached(t *testing.T) {
	src, err := Load("")
	require.NoError(t, err)
	assert.Same(t, src.Face(20), src.Face(20))
}

func TestMeasureGrowsWithSize(t *testing.T) {
	src, err := Load("")
	require.NoError(t, err)
	small := Measure(src.Face(10), "username")
	big := Measure(src.Face(40), "username")
	assert.Greater(t, big, small)
}

func TestFitSizeShrinksLongNames(t *testing.T) {
	src, err := Load("")
	require.NoError(t, err)

	long := "an-extremely-long-username-that-cannot-fit"
	width := Measure(src.Face(20), long) - 10

	size := src.FitSize(long, 12, 40, width)
	assert.GreaterOrEqual(t, size, 12)
	assert.Less(t, size, 40)

	// Short strings keep the maximum size.
	assert.Equal(t, 40, src.FitSize("ab", 12, 40, width))
}

func TestFitSizeFloorsAtMin(t *testing.T) {
	src, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 12, src.FitSize("wwwwwwwwwwwwwwwwwwww", 12, 40, 5))
}

func TestDrawStringPaintsPixels(t *testing.T) {
	src, err := Load("")
	require.NoError(t, err)

	dst := image.NewNRGBA(image.Rect(0, 0, 100, 40))
	DrawString(dst, src.Face(24), "Hi", 4, 28, color.NRGBA{255, 255, 255, 255})

	painted := 0
	for i := 3; i < len(dst.Pix); i += 4 {
		if dst.Pix[i] > 0 {
			painted++
		}
	}
	assert.Positive(t, painted)
}

func TestGlyphMaskBorderWidensCoverage(t *testing.T) {
	src, err := Load("")
	require.NoError(t, err)
	face := src.Face(24)

	plain := GlyphMask(face, "O", 0)
	bordered := GlyphMask(face, "O", 2)

	count := func(m []uint8) int {
		n := 0
		for _, v := range m {
			if v > 0 {
				n++
			}
		}
		return n
	}
	assert.Greater(t, bordered.W, plain.W)
	assert.Greater(t, count(bordered.Data), count(plain.Data))
}

func TestDrawTextured(t *testing.T) {
	src, err := Load("")
	require.NoError(t, err)

	tex := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(tex.Pix); i += 4 {
		tex.Pix[i+0] = 200
		tex.Pix[i+3] = 255
	}
	dst := image.NewNRGBA(image.Rect(0, 0, 120, 50))
	mask := GlyphMask(src.Face(30), "AB", 1)
	DrawTextured(dst, mask, tex, 5, 5)

	painted := 0
	for i := 3; i < len(dst.Pix); i += 4 {
		if dst.Pix[i] > 0 {
			painted++
		}
	}
	assert.Positive(t, painted)
}
