package filejob

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dealerops/taskboard/pkg/panicerr"
)

const (
	janitorInterval = 30 * time.Minute
	janitorMaxAge   = time.Hour
)

// Janitor removes stale *.tmp files under the local storage base directory.
// The storage backend writes through a tmp+rename pair, so a crash between
// the two leaves a .tmp orphan behind.
type Janitor struct {
	dir string
}

func NewJanitor(dir string) *Janitor {
	return &Janitor{dir: dir}
}

func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	sweep := panicerr.SafeContext(j.sweep)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sweep(ctx); err != nil {
				slog.WarnContext(ctx, "temp file sweep failed", slog.Any("error", err))
			}
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-janitorMaxAge)
	err := filepath.WalkDir(j.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(p); err != nil {
			slog.WarnContext(ctx, "failed to remove stale temp file", slog.String("path", p), slog.Any("error", err))
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
