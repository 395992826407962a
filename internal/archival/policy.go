package archival

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dealerops/taskboard/internal/eventbus"
	"github.com/dealerops/taskboard/internal/shift"
	"github.com/dealerops/taskboard/internal/task"
)

const (
	// timeMatchTolerance is how far "now" may sit from a configured trigger
	// time and still count as that time, wrapping across midnight.
	timeMatchTolerance = 5 * time.Minute

	resolvedAge = 24 * time.Hour
)

// Policy retires tasks that no longer need to sit in the active set. Each
// sweep is independent and driven by the per-dealership settings.
type Policy struct {
	tasks       task.Repository
	assignments task.AssignmentRepository
	responses   task.ResponseRepository
	shifts      shift.Repository
	settings    *SettingsStore
	locks       *task.LockRegistry
	bus         *eventbus.Bus
	batchSize   int
	clock       func() time.Time
}

func NewPolicy(
	tasks task.Repository,
	assignments task.AssignmentRepository,
	responses task.ResponseRepository,
	shifts shift.Repository,
	settings *SettingsStore,
	locks *task.LockRegistry,
	bus *eventbus.Bus,
	batchSize int,
) *Policy {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Policy{
		tasks:       tasks,
		assignments: assignments,
		responses:   responses,
		shifts:      shifts,
		settings:    settings,
		locks:       locks,
		bus:         bus,
		batchSize:   batchSize,
		clock:       time.Now,
	}
}

// WithClock overrides the policy clock. Test hook.
func (p *Policy) WithClock(clock func() time.Time) *Policy {
	p.clock = clock
	return p
}

// SweepCompleted archives tasks whose computed status has been completed (or
// completed late) for more than a day, for dealerships whose configured
// time-of-day matches now.
func (p *Policy) SweepCompleted(ctx context.Context) (int, error) {
	now := p.clock()
	archived := 0
	err := p.forEachActive(ctx, func(t *task.Task) (bool, error) {
		cfg := p.settings.For(t.DealershipID)
		if !isTimeMatch(now, cfg.CompletedSweepAt) {
			return false, nil
		}
		assignments, err := p.assignments.ListByTask(ctx, t.ID)
		if err != nil {
			return false, err
		}
		responses, err := p.responses.ListByTask(ctx, t.ID)
		if err != nil {
			return false, err
		}
		st := task.ComputeStatus(t, assignments, responses, now)
		if st != task.StatusCompleted && st != task.StatusCompletedLate {
			return false, nil
		}
		latest := latestCompletedAt(responses)
		if latest.IsZero() || now.Sub(latest) <= resolvedAge {
			return false, nil
		}
		if err := p.archive(ctx, t, assignments, task.ArchiveReasonCompleted, now); err != nil {
			return false, err
		}
		archived++
		return true, nil
	})
	return archived, err
}

// SweepOverdue archives tasks whose deadline is more than a day in the past
// and which nobody completed, on the configured day-of-week and time.
func (p *Policy) SweepOverdue(ctx context.Context) (int, error) {
	now := p.clock()
	archived := 0
	err := p.forEachActive(ctx, func(t *task.Task) (bool, error) {
		cfg := p.settings.For(t.DealershipID)
		if !strings.EqualFold(now.Weekday().String(), cfg.OverdueSweepDay) {
			return false, nil
		}
		if !isTimeMatch(now, cfg.OverdueSweepAt) {
			return false, nil
		}
		if t.Deadline == nil || now.Sub(*t.Deadline) <= resolvedAge {
			return false, nil
		}
		responses, err := p.responses.ListByTask(ctx, t.ID)
		if err != nil {
			return false, err
		}
		if hasCompletedResponse(responses) {
			return false, nil
		}
		assignments, err := p.assignments.ListByTask(ctx, t.ID)
		if err != nil {
			return false, err
		}
		if err := p.archive(ctx, t, assignments, task.ArchiveReasonExpired, now); err != nil {
			return false, err
		}
		archived++
		return true, nil
	})
	return archived, err
}

// SweepPostShift archives tasks whose deadline fell inside a shift that has
// since closed, once the configured delay after close has passed. Every
// inspected shift is marked processed, archivable tasks or not, so it is
// never rescanned.
func (p *Policy) SweepPostShift(ctx context.Context) (int, error) {
	now := p.clock()
	shifts, err := p.shifts.ListClosedUnprocessed(ctx)
	if err != nil {
		return 0, err
	}
	archived := 0
	for _, sh := range shifts {
		cfg := p.settings.For(sh.DealershipID)
		delay := time.Duration(cfg.PostShiftDelayHours) * time.Hour
		if now.Sub(*sh.ClosedAt) < delay {
			continue
		}

		err := p.forEachActive(ctx, func(t *task.Task) (bool, error) {
			if t.DealershipID != sh.DealershipID {
				return false, nil
			}
			if t.Deadline == nil {
				return false, nil
			}
			d := *t.Deadline
			if d.Before(sh.OpenedAt) || d.After(*sh.ClosedAt) {
				return false, nil
			}
			assignments, err := p.assignments.ListByTask(ctx, t.ID)
			if err != nil {
				return false, err
			}
			if err := p.archive(ctx, t, assignments, task.ArchiveReasonPostShift, now); err != nil {
				return false, err
			}
			archived++
			return true, nil
		})
		if err != nil {
			return archived, err
		}

		sh.ArchiveProcessed = true
		if err := p.shifts.Update(ctx, sh); err != nil {
			return archived, err
		}
	}
	return archived, nil
}

func (p *Policy) archive(ctx context.Context, t *task.Task, assignments []*task.Assignment, reason task.ArchiveReason, now time.Time) error {
	unlock := p.locks.Lock(t.ID)
	defer unlock()

	fresh, err := p.tasks.Get(ctx, t.ID)
	if err != nil {
		return err
	}
	if fresh.Archived() || fresh.Deleted() {
		return nil
	}
	fresh.Archive(now, reason)
	if err := p.tasks.Update(ctx, fresh); err != nil {
		return err
	}

	ev := eventbus.NewEvent(eventbus.TypeTaskArchived, fresh.ID, task.LiveAssignees(assignments))
	ev.Reason = string(reason)
	p.bus.Publish(ev)
	slog.InfoContext(ctx, "task archived",
		slog.String("task_id", fresh.ID), slog.String("reason", string(reason)))
	return nil
}

// forEachActive pages through the active set in bounded batches, handing each
// task to fn as it is fetched. fn reports whether it archived the task;
// archived tasks drop out of the active filter, so only rows that stayed
// advance the offset for the next page.
func (p *Policy) forEachActive(ctx context.Context, fn func(*task.Task) (bool, error)) error {
	offset := 0
	for {
		page, _, err := p.tasks.List(ctx, task.ListFilter{ActiveOnly: true, Limit: p.batchSize, Offset: offset})
		if err != nil {
			return err
		}
		for _, t := range page {
			archived, err := fn(t)
			if err != nil {
				return err
			}
			if !archived {
				offset++
			}
		}
		if len(page) < p.batchSize {
			return nil
		}
	}
}

func latestCompletedAt(responses []*task.Response) time.Time {
	var latest time.Time
	for _, r := range responses {
		if r.Status != task.ResponseCompleted {
			continue
		}
		if r.RespondedAt.After(latest) {
			latest = r.RespondedAt
		}
	}
	return latest
}

func hasCompletedResponse(responses []*task.Response) bool {
	for _, r := range responses {
		if r.Status == task.ResponseCompleted {
			return true
		}
	}
	return false
}

// isTimeMatch reports whether now falls within the tolerance window around
// the configured "HH:MM" trigger, wrapping across midnight so 00:02 matches a
// 23:58 trigger.
func isTimeMatch(now time.Time, hhmm string) bool {
	trigger, err := time.Parse("15:04", hhmm)
	if err != nil {
		return false
	}
	nowMin := now.Hour()*60 + now.Minute()
	trigMin := trigger.Hour()*60 + trigger.Minute()
	diff := nowMin - trigMin
	if diff < 0 {
		diff = -diff
	}
	if wrapped := 24*60 - diff; wrapped < diff {
		diff = wrapped
	}
	return time.Duration(diff)*time.Minute <= timeMatchTolerance
}
