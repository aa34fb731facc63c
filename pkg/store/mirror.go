package store

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/tinyland-inc/cardsmith/pkg/config"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

const (
	mirrorInterval = time.Second
	maxRateBackoff = time.Minute
)

// Mirror keeps one local JSON file in sync with a remote artifact, polling
// once per second. The local file is rewritten atomically and only when
// the remote SHA moves, so readers always see a complete version.
//
// The poll rate is aggressive for a contents API under rate limits; a 403
// answer doubles the wait up to one minute, then the cadence resets on the
// next success.
type Mirror struct {
	client    *Client
	artifact  string
	localPath string

	lastSHA     string
	rateBackoff time.Duration
}

func NewMirror(client *Client, artifact, localPath string) *Mirror {
	return &Mirror{client: client, artifact: artifact, localPath: localPath}
}

// Run polls until ctx is canceled. Cancellation is honored between ticks.
func (m *Mirror) Run(ctx context.Context) {
	logger.InfoCF("mirror", "mirror started", map[string]any{
		"artifact": m.artifact,
		"local":    m.localPath,
	})
	for {
		wait := mirrorInterval
		if err := m.Tick(ctx); err != nil {
			if errors.Is(err, ErrRateLimited) {
				m.growRateBackoff()
				wait = m.rateBackoff
				logger.WarnCF("mirror", "rate limited, backing off", map[string]any{"wait": wait.String()})
			} else if !errors.Is(err, context.Canceled) {
				logger.WarnCF("mirror", "tick failed", map[string]any{"error": err.Error()})
			}
		} else {
			m.rateBackoff = 0
		}

		select {
		case <-ctx.Done():
			logger.InfoC("mirror", "mirror stopped")
			return
		case <-time.After(wait):
		}
	}
}

// Tick performs one synchronization step. Exported so startup can force an
// initial fill before serving.
func (m *Mirror) Tick(ctx context.Context) error {
	data, sha, err := m.client.Get(ctx, m.artifact)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Nothing to mirror yet.
			return nil
		}
		return err
	}

	if sha == m.lastSHA && m.localFileFilled() {
		return nil
	}
	if err := config.WriteFileAtomic(m.localPath, data); err != nil {
		return err
	}
	m.lastSHA = sha
	logger.InfoCF("mirror", "local file updated", map[string]any{
		"artifact": m.artifact,
		"sha":      sha,
		"bytes":    len(data),
	})
	return nil
}

func (m *Mirror) localFileFilled() bool {
	info, err := os.Stat(m.localPath)
	return err == nil && info.Size() > 0
}

func (m *Mirror) growRateBackoff() {
	if m.rateBackoff == 0 {
		m.rateBackoff = 2 * mirrorInterval
		return
	}
	m.rateBackoff *= 2
	if m.rateBackoff > maxRateBackoff {
		m.rateBackoff = maxRateBackoff
	}
}
