package archival

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dealerops/taskboard/pkg/panicerr"
)

const tickInterval = time.Minute

// Sweep names accepted by RunOnce.
const (
	SweepNameCompleted = "completed"
	SweepNameOverdue   = "overdue"
	SweepNamePostShift = "postshift"
)

// Runner drives the sweeps on a ticker. Each sweep type runs one invocation
// at a time; a tick that arrives while the previous run of that sweep is
// still going is skipped.
type Runner struct {
	policy *Policy

	completedBusy sync.Mutex
	overdueBusy   sync.Mutex
	postShiftBusy sync.Mutex
}

func NewRunner(policy *Policy) *Runner {
	return &Runner{policy: policy}
}

// Run blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go r.sweep(ctx, SweepNameCompleted, &r.completedBusy, r.policy.SweepCompleted)
			go r.sweep(ctx, SweepNameOverdue, &r.overdueBusy, r.policy.SweepOverdue)
			go r.sweep(ctx, SweepNamePostShift, &r.postShiftBusy, r.policy.SweepPostShift)
		}
	}
}

// RunOnce executes the named sweeps a single time, or all of them when only
// is empty. Used by the sweep subcommand.
func (r *Runner) RunOnce(ctx context.Context, only ...string) error {
	for _, s := range []struct {
		name string
		fn   func(context.Context) (int, error)
	}{
		{SweepNameCompleted, r.policy.SweepCompleted},
		{SweepNameOverdue, r.policy.SweepOverdue},
		{SweepNamePostShift, r.policy.SweepPostShift},
	} {
		if len(only) > 0 && !slices.Contains(only, s.name) {
			continue
		}
		n, err := s.fn(ctx)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "sweep finished", slog.String("sweep", s.name), slog.Int("archived", n))
	}
	return nil
}

func (r *Runner) sweep(ctx context.Context, name string, busy *sync.Mutex, fn func(context.Context) (int, error)) {
	if !busy.TryLock() {
		return
	}
	defer busy.Unlock()

	run := panicerr.SafeContext(func(ctx context.Context) error {
		n, err := fn(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.InfoContext(ctx, "sweep archived tasks", slog.String("sweep", name), slog.Int("archived", n))
		}
		return nil
	})
	if err := run(ctx); err != nil {
		slog.ErrorContext(ctx, "sweep failed", slog.String("sweep", name), slog.Any("error", err))
	}
}
