// Package assets ingests external image references into the public
// pictures repository and hands back canonical raw URLs.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/tinyland-inc/cardsmith/pkg/faults"
	"github.com/tinyland-inc/cardsmith/pkg/imaging"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

const fetchChunkSize = 8 * 1024

// Uploader writes a file into the remote pictures repository. store.Client
// satisfies it.
type Uploader interface {
	Put(ctx context.Context, path string, data []byte, message string) error
	RawURL(path string) string
}

// Ingestor pulls image bytes from a URL, stages them locally, uploads them
// under an opaque uuid filename, and returns the public URL. Filenames are
// uuids, so concurrent ingests never collide and need no locks.
type Ingestor struct {
	http     *resty.Client
	uploader Uploader
	stageDir string
}

func NewIngestor(uploader Uploader, stageDir string) *Ingestor {
	return &Ingestor{
		http:     resty.New().SetTimeout(30 * time.Second),
		uploader: uploader,
		stageDir: stageDir,
	}
}

// Ingest downloads sourceURL and stores it. The staged temp file is
// removed on success and retained for inspection on upload failure.
func (i *Ingestor) Ingest(ctx context.Context, sourceURL string) (string, error) {
	data, err := i.download(ctx, sourceURL)
	if err != nil {
		return "", err
	}
	return i.IngestBytes(ctx, data)
}

// IngestBytes stores already-fetched image bytes, for attachment payloads
// and freshly rendered cards.
func (i *Ingestor) IngestBytes(ctx context.Context, data []byte) (string, error) {
	format, ok := imaging.Sniff(data)
	if !ok {
		return "", faults.Newf(faults.DecodeFailed, "payload is not a supported image (%d bytes)", len(data))
	}

	name := fmt.Sprintf("%s.%s", uuid.NewString(), format.Ext())
	staged := filepath.Join(i.stageDir, name)
	if err := os.MkdirAll(i.stageDir, 0o755); err != nil {
		return "", faults.New(faults.StoreError, err)
	}
	if err := os.WriteFile(staged, data, 0o644); err != nil {
		return "", faults.New(faults.StoreError, err)
	}

	if err := i.uploader.Put(ctx, name, data, "add "+name); err != nil {
		logger.WarnCF("assets", "upload failed, staged file retained", map[string]any{
			"file":  staged,
			"error": err.Error(),
		})
		return "", err
	}
	if err := os.Remove(staged); err != nil {
		logger.WarnCF("assets", "staged file cleanup failed", map[string]any{"file": staged, "error": err.Error()})
	}

	url := i.uploader.RawURL(name)
	logger.InfoCF("assets", "asset ingested", map[string]any{"file": name, "bytes": len(data)})
	return url, nil
}

// download streams the body in bounded chunks so a hostile content-length
// cannot size the first allocation.
func (i *Ingestor) download(ctx context.Context, url string) ([]byte, error) {
	resp, err := i.http.R().SetContext(ctx).SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return nil, faults.New(faults.FetchFailed, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, faults.Newf(faults.FetchFailed, "get %s: status %d", url, resp.StatusCode())
	}

	var buf bytes.Buffer
	chunk := make([]byte, fetchChunkSize)
	for {
		n, err := body.Read(chunk)
		buf.Write(chunk[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, faults.New(faults.FetchFailed, err)
		}
	}
	return buf.Bytes(), nil
}

// Fetcher is the plain read side: raw bytes for a URL. The renderer takes
// it as its asset source.
type Fetcher struct {
	http *resty.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{http: resty.New().SetTimeout(30 * time.Second)}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, faults.New(faults.FetchFailed, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, faults.Newf(faults.FetchFailed, "get %s: status %d", url, resp.StatusCode())
	}
	return resp.Body(), nil
}
