package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerops/taskboard/pkg/cerr"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     ResponseStatus
		to       ResponseStatus
		elevated bool
		want     bool
	}{
		{"pending to acknowledged", ResponsePending, ResponseAcknowledged, false, true},
		{"pending to pending_review", ResponsePending, ResponsePendingReview, false, true},
		{"pending to completed", ResponsePending, ResponseCompleted, false, true},
		{"acknowledged to completed", ResponseAcknowledged, ResponseCompleted, false, true},
		{"acknowledged back to pending", ResponseAcknowledged, ResponsePending, false, false},
		{"rejected resubmission", ResponseRejected, ResponsePendingReview, false, true},
		{"rejected straight to completed", ResponseRejected, ResponseCompleted, false, true},
		{"pending_review locked for assignees", ResponsePendingReview, ResponseCompleted, false, false},
		{"pending_review approve shortcut for managers", ResponsePendingReview, ResponseCompleted, true, true},
		{"pending_review soft reset for managers", ResponsePendingReview, ResponsePending, true, true},
		{"completed terminal for assignees", ResponseCompleted, ResponsePending, false, false},
		{"completed force reset for managers", ResponseCompleted, ResponsePending, true, true},
		{"rejected force reset for managers", ResponseRejected, ResponsePending, true, true},
		{"manager cannot skip review lock to acknowledged", ResponsePendingReview, ResponseAcknowledged, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to, tt.elevated))
		})
	}
}

func TestValidateTransition(t *testing.T) {
	t.Run("same status is a no-op", func(t *testing.T) {
		assert.NoError(t, ValidateTransition(ResponseCompleted, ResponseCompleted, false))
	})

	t.Run("unknown edge names the attempted transition", func(t *testing.T) {
		err := ValidateTransition(ResponseCompleted, ResponseAcknowledged, false)
		require.Error(t, err)
		assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
		assert.Contains(t, err.Error(), `"completed"`)
		assert.Contains(t, err.Error(), `"acknowledged"`)
	})
}

func TestValidResponseStatus(t *testing.T) {
	assert.True(t, ValidResponseStatus(ResponsePending))
	assert.True(t, ValidResponseStatus(ResponseAcknowledged))
	assert.True(t, ValidResponseStatus(ResponsePendingReview))
	assert.True(t, ValidResponseStatus(ResponseCompleted))
	assert.False(t, ValidResponseStatus(ResponseRejected))
	assert.False(t, ValidResponseStatus(ResponseStatus("bogus")))
}
