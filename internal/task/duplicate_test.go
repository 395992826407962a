package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsDuplicate(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	deadline := base.Add(8 * time.Hour)

	existing := func() *Task {
		return &Task{
			ID:           "existing",
			Title:        "Wash the showroom cars",
			Description:  "All vehicles on the floor",
			DealershipID: "d1",
			Type:         TypeGroup,
			Deadline:     &deadline,
			IsActive:     true,
		}
	}
	candidate := func() *Task {
		c := existing()
		c.ID = "candidate"
		return c
	}

	t.Run("identical payload is a duplicate", func(t *testing.T) {
		assert.True(t, IsDuplicate(candidate(), existing()))
	})

	t.Run("same payload against an archived task is accepted", func(t *testing.T) {
		e := existing()
		e.Archive(base, ArchiveReasonCompleted)
		assert.False(t, IsDuplicate(candidate(), e))
	})

	t.Run("same payload against a soft-deleted task is accepted", func(t *testing.T) {
		e := existing()
		e.DeletedAt = &base
		assert.False(t, IsDuplicate(candidate(), e))
	})

	t.Run("different title is not a duplicate", func(t *testing.T) {
		c := candidate()
		c.Title = "Wash the lot cars"
		assert.False(t, IsDuplicate(c, existing()))
	})

	t.Run("different dealership is not a duplicate", func(t *testing.T) {
		c := candidate()
		c.DealershipID = "d2"
		assert.False(t, IsDuplicate(c, existing()))
	})

	t.Run("global does not match a dealership task", func(t *testing.T) {
		c := candidate()
		c.DealershipID = ""
		assert.False(t, IsDuplicate(c, existing()))
	})

	t.Run("different type is not a duplicate", func(t *testing.T) {
		c := candidate()
		c.Type = TypeIndividual
		assert.False(t, IsDuplicate(c, existing()))
	})
}

func TestIsDuplicateDeadlineJitter(t *testing.T) {
	base := time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)

	mk := func(d *time.Time) *Task {
		return &Task{Title: "t", Type: TypeIndividual, IsActive: true, Deadline: d}
	}

	t.Run("within a minute matches", func(t *testing.T) {
		d1, d2 := base, base.Add(59*time.Second)
		assert.True(t, IsDuplicate(mk(&d1), mk(&d2)))
	})

	t.Run("exactly a minute apart does not match", func(t *testing.T) {
		d1, d2 := base, base.Add(time.Minute)
		assert.False(t, IsDuplicate(mk(&d1), mk(&d2)))
	})

	t.Run("jitter is symmetric", func(t *testing.T) {
		d1, d2 := base.Add(30*time.Second), base
		assert.True(t, IsDuplicate(mk(&d1), mk(&d2)))
	})

	t.Run("both nil matches", func(t *testing.T) {
		assert.True(t, IsDuplicate(mk(nil), mk(nil)))
	})

	t.Run("nil against set does not match", func(t *testing.T) {
		d := base
		assert.False(t, IsDuplicate(mk(nil), mk(&d)))
		assert.False(t, IsDuplicate(mk(&d), mk(nil)))
	})
}

func TestArchiveIdempotence(t *testing.T) {
	now := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	tk := &Task{ID: "t1", IsActive: true}

	tk.Archive(now, ArchiveReasonCompleted)
	assert.False(t, tk.IsActive)
	assert.NotNil(t, tk.ArchivedAt)
	assert.Equal(t, now, *tk.ArchivedAt)
	assert.Equal(t, ArchiveReasonCompleted, tk.ArchiveReason)

	// A second archive keeps the original stamp and reason.
	later := now.Add(time.Hour)
	tk.Archive(later, ArchiveReasonExpired)
	assert.Equal(t, now, *tk.ArchivedAt)
	assert.Equal(t, ArchiveReasonCompleted, tk.ArchiveReason)
	assert.False(t, tk.IsActive)
}
