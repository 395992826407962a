package notify

import "context"

// Payload is the user-facing notification content.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Sink delivers a payload to a set of users. Delivery is one-way and
// best-effort; implementations must not block on unreachable endpoints
// longer than their own transport timeout.
type Sink interface {
	Notify(ctx context.Context, userIDs []string, payload *Payload) error
}
