package task

import (
	"fmt"

	"github.com/dealerops/taskboard/pkg/cerr"
)

// transitions is the allowed-edge table for assignee-level status updates.
// pending_review deliberately has no outgoing edges here: leaving it is the
// verification workflow's job, unless the actor is elevated.
var transitions = map[ResponseStatus][]ResponseStatus{
	ResponsePending:       {ResponseAcknowledged, ResponsePendingReview, ResponseCompleted},
	ResponseAcknowledged:  {ResponsePendingReview, ResponseCompleted},
	ResponsePendingReview: {},
	ResponseRejected:      {ResponsePendingReview, ResponseCompleted},
	ResponseCompleted:     {},
}

// elevatedTransitions extends the base table for manager/owner actors: they
// may resolve a review directly and may force any state back to pending.
var elevatedTransitions = map[ResponseStatus][]ResponseStatus{
	ResponsePendingReview: {ResponsePending, ResponseCompleted},
	ResponseAcknowledged:  {ResponsePending},
	ResponseRejected:      {ResponsePending},
	ResponseCompleted:     {ResponsePending},
}

func CanTransition(from, to ResponseStatus, elevated bool) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	if !elevated {
		return false
	}
	for _, next := range elevatedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition re-checks a bare status update against the transition
// table; unknown edges fail naming the attempted transition.
func ValidateTransition(from, to ResponseStatus, elevated bool) error {
	if from == to {
		return nil
	}
	if !CanTransition(from, to, elevated) {
		return cerr.NewError(
			cerr.FailedPrecondition,
			fmt.Sprintf("transition from %q to %q is not allowed", from, to),
			nil,
		)
	}
	return nil
}

// ValidResponseStatus reports whether s is a status a caller may target
// through the mutation entrypoint. rejected is reachable only via the
// verification workflow.
func ValidResponseStatus(s ResponseStatus) bool {
	switch s {
	case ResponsePending, ResponseAcknowledged, ResponsePendingReview, ResponseCompleted:
		return true
	default:
		return false
	}
}
