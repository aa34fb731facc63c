package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/cardsmith/pkg/imaging"
	"github.com/tinyland-inc/cardsmith/pkg/imaging/text"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetNop()
	m.Run()
}

type stubFetcher struct {
	assets map[string][]byte
	calls  map[string]int
	fails  map[string]int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		assets: make(map[string][]byte),
		calls:  make(map[string]int),
		fails:  make(map[string]int),
	}
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls[url]++
	if f.fails[url] > 0 {
		f.fails[url]--
		return nil, errors.New("connection reset")
	}
	data, ok := f.assets[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (f *stubFetcher) addPNG(t *testing.T, url string, img *image.NRGBA) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	f.assets[url] = buf.Bytes()
}

func (f *stubFetcher) addGIF(t *testing.T, url string, frames int) {
	t.Helper()
	pal := color.Palette{color.NRGBA{0, 0, 255, 255}, color.NRGBA{255, 255, 0, 255}}
	g := &gif.GIF{}
	for i := 0; i < frames; i++ {
		fr := image.NewPaletted(image.Rect(0, 0, 10, 10), pal)
		for p := range fr.Pix {
			fr.Pix[p] = uint8(i % 2)
		}
		g.Image = append(g.Image, fr)
		g.Delay = append(g.Delay, 4)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))
	f.assets[url] = buf.Bytes()
}

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

func newRenderer(t *testing.T, f AssetFetcher) *Renderer {
	t.Helper()
	regular, err := text.Load("")
	require.NoError(t, err)
	bold, err := text.LoadBold("")
	require.NoError(t, err)
	return New(f, regular, bold)
}

func decodePNG(t *testing.T, data []byte) *image.NRGBA {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return imaging.ToNRGBA(img)
}

func TestRenderCanvasDimensions(t *testing.T) {
	r := newRenderer(t, newStubFetcher())
	res, err := r.Render(context.Background(), Spec{
		Width: 120, Height: 80,
		Background: Background{Color: &[3]uint8{10, 20, 30}},
	}, Identity{Name: "tester"})
	require.NoError(t, err)
	assert.Equal(t, imaging.FormatPNG, res.Format)

	img := decodePNG(t, res.Data)
	assert.Equal(t, image.Rect(0, 0, 120, 80), img.Bounds())
	assert.Equal(t, uint8(10), img.Pix[0])
}

func TestRenderRejectsEmptyCanvas(t *testing.T) {
	r := newRenderer(t, newStubFetcher())
	_, err := r.Render(context.Background(), Spec{}, Identity{})
	assert.Error(t, err)
}

func TestAnimatedBackgroundProducesGIF(t *testing.T) {
	f := newStubFetcher()
	f.addGIF(t, "https://cdn/bg.gif", 3)

	r := newRenderer(t, f)
	res, err := r.Render(context.Background(), Spec{
		Width: 32, Height: 32,
		Background: Background{URL: "https://cdn/bg.gif"},
	}, Identity{})
	require.NoError(t, err)
	assert.Equal(t, imaging.FormatGIF, res.Format)

	decoded, err := gif.DecodeAll(bytes.NewReader(res.Data))
	require.NoError(t, err)
	assert.Len(t, decoded.Image, 3)
	assert.Equal(t, 32, decoded.Config.Width)
}

func TestSingleFrameGIFBackgroundProducesPNG(t *testing.T) {
	f := newStubFetcher()
	f.addGIF(t, "https://cdn/still.gif", 1)

	r := newRenderer(t, f)
	res, err := r.Render(context.Background(), Spec{
		Width: 16, Height: 16,
		Background: Background{URL: "https://cdn/still.gif"},
	}, Identity{})
	require.NoError(t, err)
	assert.Equal(t, imaging.FormatPNG, res.Format)
}

func TestMissingAssetSubstitutesNeutralFill(t *testing.T) {
	f := newStubFetcher()
	r := newRenderer(t, f)

	res, err := r.Render(context.Background(), Spec{
		Width: 20, Height: 20,
		Background: Background{Color: &[3]uint8{0, 0, 0}},
		Layers: []Layer{
			{Kind: LayerImage, URL: "https://cdn/gone.png", X: 0, Y: 0, W: 20, H: 20},
		},
	}, Identity{})
	require.NoError(t, err)

	img := decodePNG(t, res.Data)
	assert.Equal(t, uint8(200), img.Pix[0])
	// One retry on failure.
	assert.Equal(t, 2, f.calls["https://cdn/gone.png"])
}

func TestFetchRetriesOnceThenSucceeds(t *testing.T) {
	f := newStubFetcher()
	f.addPNG(t, "https://cdn/flaky.png", solid(4, 4, color.NRGBA{0, 255, 0, 255}))
	f.fails["https://cdn/flaky.png"] = 1

	r := newRenderer(t, f)
	res, err := r.Render(context.Background(), Spec{
		Width: 8, Height: 8,
		Background: Background{Color: &[3]uint8{0, 0, 0}},
		Layers: []Layer{
			{Kind: LayerImage, URL: "https://cdn/flaky.png", X: 0, Y: 0, W: 8, H: 8},
		},
	}, Identity{})
	require.NoError(t, err)

	img := decodePNG(t, res.Data)
	assert.Equal(t, uint8(255), img.Pix[1])
	assert.Equal(t, 2, f.calls["https://cdn/flaky.png"])
}

func TestAvatarIsCircular(t *testing.T) {
	f := newStubFetcher()
	f.addPNG(t, "https://cdn/avatar.png", solid(64, 64, color.NRGBA{255, 0, 0, 255}))

	r := newRenderer(t, f)
	res, err := r.Render(context.Background(), Spec{
		Width: 40, Height: 40,
		Background: Background{Color: &[3]uint8{0, 0, 255}},
		Layers: []Layer{
			{Kind: LayerAvatar, URL: "https://cdn/avatar.png", X: 0, Y: 0, Diameter: 40},
		},
	}, Identity{})
	require.NoError(t, err)

	img := decodePNG(t, res.Data)
	// Center shows the avatar, corners show the background through the disc.
	assert.Equal(t, uint8(255), img.Pix[img.PixOffset(20, 20)])
	assert.Equal(t, uint8(0), img.Pix[img.PixOffset(0, 0)])
	assert.Equal(t, uint8(255), img.Pix[img.PixOffset(0, 0)+2])
}

func TestProgressBarWidth(t *testing.T) {
	f := newStubFetcher()
	r := newRenderer(t, f)

	res, err := r.Render(context.Background(), Spec{
		Width: 100, Height: 20,
		Background: Background{Color: &[3]uint8{0, 0, 0}},
		Layers: []Layer{
			{Kind: LayerProgressBar, X: 0, Y: 0, W: 100, H: 20, Progress: 0.5, Color: &[3]uint8{255, 0, 0}},
		},
	}, Identity{})
	require.NoError(t, err)

	img := decodePNG(t, res.Data)
	assert.Equal(t, uint8(255), img.Pix[img.PixOffset(10, 10)])
	assert.Equal(t, uint8(0), img.Pix[img.PixOffset(90, 10)])
}

func TestOutlineColorOverridePreservesAlpha(t *testing.T) {
	ring := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	// Opaque top half only.
	for y := 0; y < 5; y++ {
		for x := 0; x < 10; x++ {
			i := ring.PixOffset(x, y)
			ring.Pix[i+0] = 1
			ring.Pix[i+3] = 255
		}
	}
	f := newStubFetcher()
	f.addPNG(t, "https://cdn/ring.png", ring)

	r := newRenderer(t, f)
	res, err := r.Render(context.Background(), Spec{
		Width: 10, Height: 10,
		Background: Background{Color: &[3]uint8{0, 0, 0}},
		Layers: []Layer{
			{Kind: LayerOutline, URL: "https://cdn/ring.png", X: 0, Y: 0, W: 10, H: 10, ColorOverride: &[3]uint8{0, 255, 0}},
		},
	}, Identity{})
	require.NoError(t, err)

	img := decodePNG(t, res.Data)
	assert.Equal(t, uint8(255), img.Pix[img.PixOffset(5, 2)+1])
	assert.Equal(t, uint8(0), img.Pix[img.PixOffset(5, 8)+1])
}

func TestTextDrawnAboveImages(t *testing.T) {
	f := newStubFetcher()
	f.addPNG(t, "https://cdn/block.png", solid(60, 60, color.NRGBA{0, 0, 0, 255}))

	r := newRenderer(t, f)
	spec := Spec{
		Width: 60, Height: 60,
		Background: Background{Color: &[3]uint8{0, 0, 0}},
		Layers: []Layer{
			{Kind: LayerText, Text: "{name}", X: 2, Y: 40, Size: 30, Color: &[3]uint8{255, 255, 255}},
			{Kind: LayerImage, URL: "https://cdn/block.png", X: 0, Y: 0, W: 60, H: 60},
		},
	}
	res, err := r.Render(context.Background(), spec, Identity{Name: "WW"})
	require.NoError(t, err)

	img := decodePNG(t, res.Data)
	painted := 0
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] > 128 {
			painted++
		}
	}
	assert.Positive(t, painted, "text must not be occluded by the later image layer")
}

func TestAboveTextImageOccludesText(t *testing.T) {
	f := newStubFetcher()
	f.addPNG(t, "https://cdn/block.png", solid(60, 60, color.NRGBA{0, 0, 0, 255}))

	r := newRenderer(t, f)
	spec := Spec{
		Width: 60, Height: 60,
		Background: Background{Color: &[3]uint8{0, 0, 0}},
		Layers: []Layer{
			{Kind: LayerText, Text: "WW", X: 2, Y: 40, Size: 30, Color: &[3]uint8{255, 255, 255}},
			{Kind: LayerImage, URL: "https://cdn/block.png", X: 0, Y: 0, W: 60, H: 60, AboveText: true},
		},
	}
	res, err := r.Render(context.Background(), spec, Identity{})
	require.NoError(t, err)

	img := decodePNG(t, res.Data)
	for i := 0; i < len(img.Pix); i += 4 {
		assert.LessOrEqual(t, img.Pix[i], uint8(10))
	}
}
