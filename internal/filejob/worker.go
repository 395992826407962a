package filejob

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/dealerops/taskboard/pkg/panicerr"
	"github.com/dealerops/taskboard/pkg/storage"
)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 500 * time.Millisecond
)

// Worker runs proof file deletions off the request path; uploads themselves
// are written synchronously so the rows never point at missing files. Jobs
// are retried with exponential backoff; a job that exhausts its attempts is
// logged and dropped, the database rows are already committed by then.
type Worker struct {
	storage     storage.Storage
	pool        *pool.Pool
	maxAttempts int
	backoff     time.Duration
}

func NewWorker(s storage.Storage, workers int) *Worker {
	if workers <= 0 {
		workers = 1
	}
	return &Worker{
		storage:     s,
		pool:        pool.New().WithMaxGoroutines(workers),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
}

// EnqueueDelete removes the given objects in the background. Missing objects
// are treated as already deleted.
func (w *Worker) EnqueueDelete(ctx context.Context, paths ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range paths {
		p := p
		w.pool.Go(func() {
			w.attempt(ctx, "delete", p, func(ctx context.Context) error {
				err := w.storage.Delete(ctx, p)
				if errors.Is(err, storage.ErrNotFound) {
					return nil
				}
				return err
			})
		})
	}
}

func (w *Worker) attempt(ctx context.Context, op, path string, fn func(context.Context) error) {
	safe := panicerr.SafeContext(fn)
	var err error
	for i := 0; i < w.maxAttempts; i++ {
		if i > 0 {
			select {
			case <-time.After(w.backoff << (i - 1)):
			case <-ctx.Done():
				return
			}
		}
		if err = safe(ctx); err == nil {
			return
		}
		slog.WarnContext(ctx, "file job failed, retrying",
			slog.String("op", op), slog.String("path", path), slog.Int("attempt", i+1), slog.Any("error", err))
	}
	slog.ErrorContext(ctx, "file job abandoned",
		slog.String("op", op), slog.String("path", path), slog.Any("error", err))
}

// Wait blocks until every enqueued job has finished. Call on shutdown.
func (w *Worker) Wait() {
	w.pool.Wait()
}
