package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dealerops/taskboard/internal/eventbus"
	"github.com/dealerops/taskboard/internal/task"
)

// Dispatcher drains the event bus and forwards each event to the sink as a
// notification for the users the event names. Delivery failures are logged
// and swallowed; the mutation that raised the event has already committed.
type Dispatcher struct {
	eventBus *eventbus.Bus
	taskRepo task.Repository
	sink     Sink
}

func NewDispatcher(eventBus *eventbus.Bus, taskRepo task.Repository, sink Sink) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		taskRepo: taskRepo,
		sink:     sink,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(256)
	defer d.eventBus.Unsubscribe(subID)

	slog.InfoContext(ctx, "notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			d.handle(ctx, event)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, event *eventbus.Event) {
	if len(event.UserIDs) == 0 {
		return
	}

	payload := d.payloadFor(ctx, event)
	if payload == nil {
		return
	}
	if err := d.sink.Notify(ctx, event.UserIDs, payload); err != nil {
		slog.ErrorContext(ctx, "notification delivery failed",
			slog.String("event_type", string(event.Type)), slog.String("task_id", event.TaskID), slog.Any("error", err))
	}
}

func (d *Dispatcher) payloadFor(ctx context.Context, event *eventbus.Event) *Payload {
	title := d.taskTitle(ctx, event.TaskID)

	switch event.Type {
	case eventbus.TypeTaskAssigned:
		return &Payload{
			Title: "New task assigned",
			Body:  title,
			URL:   fmt.Sprintf("/tasks/%s", event.TaskID),
			Tag:   event.ID,
		}
	case eventbus.TypeTaskApproved:
		return &Payload{
			Title: "Submission approved",
			Body:  title,
			URL:   fmt.Sprintf("/tasks/%s", event.TaskID),
			Tag:   event.ID,
		}
	case eventbus.TypeTaskRejected:
		body := title
		if event.Reason != "" {
			body = fmt.Sprintf("%s: %s", title, event.Reason)
		}
		return &Payload{
			Title: "Submission rejected",
			Body:  body,
			URL:   fmt.Sprintf("/tasks/%s", event.TaskID),
			Tag:   event.ID,
		}
	case eventbus.TypeTaskPendingReview:
		return &Payload{
			Title: "Submission awaits review",
			Body:  title,
			URL:   fmt.Sprintf("/tasks/%s", event.TaskID),
			Tag:   event.ID,
		}
	case eventbus.TypeTaskArchived:
		// Archival is bookkeeping, not something assignees act on.
		return nil
	default:
		return nil
	}
}

func (d *Dispatcher) taskTitle(ctx context.Context, taskID string) string {
	t, err := d.taskRepo.Get(ctx, taskID)
	if err != nil {
		return "Task update"
	}
	return t.Title
}
