package assets

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetNop()
	m.Run()
}

type fakeUploader struct {
	files   map[string][]byte
	failPut bool
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{files: make(map[string][]byte)}
}

func (u *fakeUploader) Put(_ context.Context, path string, data []byte, _ string) error {
	if u.failPut {
		return errors.New("upload refused")
	}
	u.files[path] = append([]byte(nil), data...)
	return nil
}

func (u *fakeUploader) RawURL(path string) string {
	return "https://raw.githubusercontent.com/acme/pictures/main/" + path
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = 255
		img.Pix[i+3] = 255
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIngestHappyPath(t *testing.T) {
	payload := pngBytes(t)
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	t.Cleanup(src.Close)

	up := newFakeUploader()
	stage := t.TempDir()
	ing := NewIngestor(up, stage)

	url, err := ing.Ingest(context.Background(), src.URL+"/art.png")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(url, "https://raw.githubusercontent.com/acme/pictures/main/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	name := url[strings.LastIndex(url, "/")+1:]
	assert.Equal(t, payload, up.files[name])

	// Stage directory is empty after a successful upload.
	entries, err := os.ReadDir(stage)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIngestDistinctNames(t *testing.T) {
	up := newFakeUploader()
	ing := NewIngestor(up, t.TempDir())

	a, err := ing.IngestBytes(context.Background(), pngBytes(t))
	require.NoError(t, err)
	b, err := ing.IngestBytes(context.Background(), pngBytes(t))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, up.files, 2)
}

func TestIngestRejectsNonImage(t *testing.T) {
	ing := NewIngestor(newFakeUploader(), t.TempDir())
	_, err := ing.IngestBytes(context.Background(), []byte("plain text"))
	assert.Error(t, err)
}

func TestIngestRetainsStageOnUploadFailure(t *testing.T) {
	up := newFakeUploader()
	up.failPut = true
	stage := t.TempDir()
	ing := NewIngestor(up, stage)

	_, err := ing.IngestBytes(context.Background(), pngBytes(t))
	require.Error(t, err)

	entries, err := os.ReadDir(stage)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	staged, err := os.ReadFile(filepath.Join(stage, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, pngBytes(t), staged)
}

func TestIngestSourceErrorSurfaces(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(src.Close)

	ing := NewIngestor(newFakeUploader(), t.TempDir())
	_, err := ing.Ingest(context.Background(), src.URL+"/missing.png")
	assert.Error(t, err)
}

func TestFetcher(t *testing.T) {
	payload := pngBytes(t)
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	t.Cleanup(src.Close)

	f := NewFetcher()
	data, err := f.Fetch(context.Background(), src.URL)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestFetcherErrorStatus(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(src.Close)

	_, err := NewFetcher().Fetch(context.Background(), src.URL)
	assert.Error(t, err)
}
