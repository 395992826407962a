package eventbus

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Type string

const (
	TypeTaskAssigned      Type = "task.assigned"
	TypeTaskApproved      Type = "task.approved"
	TypeTaskRejected      Type = "task.rejected"
	TypeTaskPendingReview Type = "task.pending_review"
	TypeTaskArchived      Type = "task.archived"
)

// Event is a domain event published after the owning mutation has been
// committed. Timestamp is always UTC and marshals as RFC3339.
type Event struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	TaskID      string    `json:"task_id"`
	UserIDs     []string  `json:"user_ids,omitempty"`
	SubmittedBy string    `json:"submitted_by,omitempty"`
	ResponseID  string    `json:"response_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewEvent(eventType Type, taskID string, userIDs []string) *Event {
	return &Event{
		ID:        ulid.Make().String(),
		Type:      eventType,
		TaskID:    taskID,
		UserIDs:   userIDs,
		Timestamp: time.Now().UTC(),
	}
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan *Event),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *Event) {
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// buffer full, drop event for this subscriber
		}
	}
}
