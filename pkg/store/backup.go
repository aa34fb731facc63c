package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

// Backup pushes the local JSON state files to the configuration repository
// on a cron schedule. Files identical to the remote copy are skipped.
type Backup struct {
	client   *Client
	schedule string
	dataDir  string
	files    []string
	cron     *gronx.Gronx
}

func NewBackup(client *Client, schedule, dataDir string, files []string) *Backup {
	return &Backup{
		client:   client,
		schedule: schedule,
		dataDir:  dataDir,
		files:    files,
		cron:     gronx.New(),
	}
}

// Run checks the schedule once per minute until ctx is canceled.
func (b *Backup) Run(ctx context.Context) {
	if !b.cron.IsValid(b.schedule) {
		logger.ErrorCF("backup", "invalid cron schedule, backup disabled", map[string]any{"schedule": b.schedule})
		return
	}
	logger.InfoCF("backup", "backup scheduled", map[string]any{"schedule": b.schedule, "files": len(b.files)})

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.InfoC("backup", "backup stopped")
			return
		case <-ticker.C:
			due, err := b.cron.IsDue(b.schedule, time.Now())
			if err != nil || !due {
				continue
			}
			b.RunOnce(ctx)
		}
	}
}

// RunOnce pushes every state file that exists and differs from the remote
// copy. Individual failures are logged and do not stop the rest.
func (b *Backup) RunOnce(ctx context.Context) {
	pushed := 0
	for _, name := range b.files {
		local := filepath.Join(b.dataDir, name)
		data, err := os.ReadFile(local)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.WarnCF("backup", "state file unreadable", map[string]any{"file": name, "error": err.Error()})
			}
			continue
		}

		remote, _, err := b.client.Get(ctx, name)
		if err == nil && bytes.Equal(remote, data) {
			continue
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			logger.WarnCF("backup", "remote read failed", map[string]any{"file": name, "error": err.Error()})
			continue
		}

		if err := b.client.Put(ctx, name, data, "backup "+name); err != nil {
			logger.WarnCF("backup", "push failed", map[string]any{"file": name, "error": err.Error()})
			continue
		}
		pushed++
	}
	logger.InfoCF("backup", "backup pass complete", map[string]any{"pushed": pushed})
}
