package task

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dealerops/taskboard/internal/eventbus"
	"github.com/dealerops/taskboard/pkg/cerr"
)

// Service owns every mutation that spans a task and its assignment and
// response collections. All such mutations run under the task's lock, and
// domain events are published only after the writes have landed.
type Service struct {
	repo        Repository
	assignments AssignmentRepository
	responses   ResponseRepository
	history     HistoryRepository
	proofs      ProofStore
	shifts      ShiftGate
	directory   Directory
	locks       *LockRegistry
	bus         *eventbus.Bus
	clock       func() time.Time
}

func NewService(
	repo Repository,
	assignments AssignmentRepository,
	responses ResponseRepository,
	history HistoryRepository,
	proofs ProofStore,
	shifts ShiftGate,
	directory Directory,
	locks *LockRegistry,
	bus *eventbus.Bus,
) *Service {
	return &Service{
		repo:        repo,
		assignments: assignments,
		responses:   responses,
		history:     history,
		proofs:      proofs,
		shifts:      shifts,
		directory:   directory,
		locks:       locks,
		bus:         bus,
		clock:       time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

type CreateRequest struct {
	Title             string
	Description       string
	Comment           string
	DealershipID      string
	AppearsAt         time.Time
	Deadline          *time.Time
	Type              Type
	ResponseType      ResponseType
	Tags              []string
	Priority          Priority
	RequiresOpenShift bool
	TemplateID        string
	AssigneeIDs       []string
}

type UpdateRequest struct {
	Title       *string
	Description *string
	Comment     *string
	Deadline    *time.Time
	Tags        *[]string
	Priority    *Priority
	AssigneeIDs *[]string
}

type StatusUpdateRequest struct {
	Target         ResponseStatus
	CompleteForAll bool
	Files          []Upload
}

// Detail is the task aggregate as returned to callers: the record, its
// computed status, and the full assignment/response/proof collections.
type Detail struct {
	Task         *Task               `json:"task"`
	Status       Status              `json:"status"`
	Assignments  []*Assignment       `json:"assignments"`
	Responses    []*Response         `json:"responses"`
	Proofs       map[string][]*Proof `json:"proofs"`
	SharedProofs []*SharedProof      `json:"shared_proofs"`
}

// Summary pairs a task with its computed status for listings.
type Summary struct {
	Task   *Task  `json:"task"`
	Status Status `json:"status"`
}

func (s *Service) Create(ctx context.Context, actor Actor, req CreateRequest) (*Detail, error) {
	if err := authorizeDealership(actor, req.DealershipID); err != nil {
		return nil, err
	}
	if req.Title == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "title is required", nil)
	}
	if req.Type == "" {
		req.Type = TypeIndividual
	}
	if req.Type != TypeIndividual && req.Type != TypeGroup {
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid task type %q", req.Type), nil)
	}
	if req.ResponseType == "" {
		req.ResponseType = ResponseTypeCompletion
	}
	switch req.ResponseType {
	case ResponseTypeNotification, ResponseTypeCompletion, ResponseTypeCompletionWithProof:
	default:
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid response type %q", req.ResponseType), nil)
	}
	if req.Priority == "" {
		req.Priority = PriorityNormal
	}

	now := s.clock()
	t := &Task{
		ID:                ulid.Make().String(),
		Title:             req.Title,
		Description:       req.Description,
		Comment:           req.Comment,
		CreatedBy:         actor.UserID,
		DealershipID:      req.DealershipID,
		AppearsAt:         req.AppearsAt,
		Deadline:          req.Deadline,
		Type:              req.Type,
		ResponseType:      req.ResponseType,
		Tags:              req.Tags,
		Priority:          req.Priority,
		RequiresOpenShift: req.RequiresOpenShift,
		IsActive:          true,
		TemplateID:        req.TemplateID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if t.AppearsAt.IsZero() {
		t.AppearsAt = now
	}

	if err := s.checkDuplicate(ctx, t); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(t.ID)
	defer unlock()

	added, err := s.syncAssignments(ctx, t, req.AssigneeIDs)
	if err != nil {
		return nil, err
	}
	if len(added) > 0 {
		s.bus.Publish(eventbus.NewEvent(eventbus.TypeTaskAssigned, t.ID, added))
	}
	return s.detail(ctx, t)
}

func (s *Service) checkDuplicate(ctx context.Context, candidate *Task) error {
	existing, _, err := s.repo.List(ctx, ListFilter{ActiveOnly: true})
	if err != nil {
		return err
	}
	for _, t := range existing {
		if IsDuplicate(candidate, t) {
			return cerr.NewError(
				cerr.AlreadyExists,
				fmt.Sprintf("an active task %q with the same type, dealership, description and deadline already exists", t.Title),
				nil,
			)
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, actor Actor, id string) (*Detail, error) {
	t, err := s.getLive(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeDealership(actor, t.DealershipID); err != nil {
		return nil, err
	}
	return s.detail(ctx, t)
}

// List returns task summaries with computed status, optionally narrowed to a
// single derived status. Status filtering recomputes through ComputeStatus so
// listings agree with every other consumer.
func (s *Service) List(ctx context.Context, actor Actor, filter ListFilter, status Status) ([]*Summary, error) {
	if filter.DealershipID == "" && actor.DealershipID != "" {
		filter.DealershipID = actor.DealershipID
	}
	tasks, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	var out []*Summary
	for _, t := range tasks {
		assignments, err := s.assignments.ListByTask(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		responses, err := s.responses.ListByTask(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		st := ComputeStatus(t, assignments, responses, now)
		if status != "" && st != status {
			continue
		}
		out = append(out, &Summary{Task: t, Status: st})
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, actor Actor, id string, req UpdateRequest) (*Detail, error) {
	t, err := s.getLive(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeEdit(actor, t); err != nil {
		return nil, err
	}
	if t.Archived() {
		return nil, cerr.NewError(cerr.FailedPrecondition, "task is archived and can no longer be edited", nil)
	}

	unlock := s.locks.Lock(t.ID)
	defer unlock()

	if req.Title != nil {
		if *req.Title == "" {
			return nil, cerr.NewError(cerr.InvalidArgument, "title is required", nil)
		}
		t.Title = *req.Title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Comment != nil {
		t.Comment = *req.Comment
	}
	if req.Deadline != nil {
		t.Deadline = req.Deadline
	}
	if req.Tags != nil {
		t.Tags = *req.Tags
	}
	if req.Priority != nil {
		t.Priority = *req.Priority
	}
	t.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	if req.AssigneeIDs != nil {
		added, err := s.syncAssignments(ctx, t, *req.AssigneeIDs)
		if err != nil {
			return nil, err
		}
		if len(added) > 0 {
			s.bus.Publish(eventbus.NewEvent(eventbus.TypeTaskAssigned, t.ID, added))
		}
	}
	return s.detail(ctx, t)
}

// Postpone moves the deadline forward and counts the postponement.
func (s *Service) Postpone(ctx context.Context, actor Actor, id string, deadline time.Time) (*Detail, error) {
	t, err := s.getLive(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeEdit(actor, t); err != nil {
		return nil, err
	}
	if t.Archived() {
		return nil, cerr.NewError(cerr.FailedPrecondition, "task is archived and can no longer be edited", nil)
	}

	unlock := s.locks.Lock(t.ID)
	defer unlock()

	t.Deadline = &deadline
	t.PostponeCount++
	t.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return s.detail(ctx, t)
}

// Delete soft-deletes the task.
func (s *Service) Delete(ctx context.Context, actor Actor, id string) error {
	t, err := s.getLive(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorizeEdit(actor, t); err != nil {
		return err
	}

	unlock := s.locks.Lock(t.ID)
	defer unlock()

	now := s.clock()
	t.DeletedAt = &now
	// Archive is a no-op for already-archived tasks, keeping their original
	// stamp and reason.
	t.Archive(now, ArchiveReasonDeleted)
	t.UpdatedAt = now
	return s.repo.Update(ctx, t)
}

// UpdateResponseStatus is the status mutation entrypoint: it moves the
// actor's own response (or, for elevated actors with CompleteForAll, every
// assignee's response) to the requested status, routing proof uploads through
// the proof store and re-validating the transition table.
func (s *Service) UpdateResponseStatus(ctx context.Context, actor Actor, taskID string, req StatusUpdateRequest) (*Detail, error) {
	t, err := s.getLive(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := authorizeDealership(actor, t.DealershipID); err != nil {
		return nil, err
	}
	if !ValidResponseStatus(req.Target) {
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid status %q", req.Target), nil)
	}
	if t.Archived() {
		return nil, cerr.NewError(cerr.FailedPrecondition, "task is archived and can no longer be responded to", nil)
	}

	unlock := s.locks.Lock(t.ID)
	defer unlock()

	assignments, err := s.assignments.ListByTask(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	responses, err := s.responses.ListByTask(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	if req.CompleteForAll {
		err = s.completeForAll(ctx, actor, t, assignments, responses, req)
	} else {
		err = s.updateOwnResponse(ctx, actor, t, assignments, responses, req)
	}
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, t)
}

// completeForAll lets an elevated actor finish a group task on behalf of
// every assignee at once. Proof files uploaded here become shared proofs
// owned by the task, and every response is flagged as using them.
func (s *Service) completeForAll(ctx context.Context, actor Actor, t *Task, assignments []*Assignment, responses []*Response, req StatusUpdateRequest) error {
	if !actor.Elevated {
		return cerr.NewError(cerr.PermissionDenied, "completing for all assignees requires the manager role", nil)
	}
	if t.Type != TypeGroup {
		return cerr.NewError(cerr.FailedPrecondition, "complete-for-all is only available for group tasks", nil)
	}
	if req.Target != ResponseCompleted {
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("complete-for-all only accepts status %q", ResponseCompleted), nil)
	}

	target := ResponseCompleted
	proofTask := t.ResponseType == ResponseTypeCompletionWithProof
	if proofTask {
		if len(req.Files) > 0 {
			shared, err := s.proofs.PruneSharedProofs(ctx, t.ID)
			if err != nil {
				return err
			}
			if err := s.proofs.CheckBatch(ctx, t, len(shared), req.Files); err != nil {
				return err
			}
			if _, err := s.proofs.SaveSharedProofs(ctx, t, req.Files); err != nil {
				return err
			}
		} else {
			has, err := s.proofs.HasAnyProof(ctx, t, responses)
			if err != nil {
				return err
			}
			if !has {
				return cerr.NewError(cerr.InvalidArgument, "at least one proof file is required to complete this task", nil)
			}
		}
		// Files must pass verification before the task can finish.
		target = ResponsePendingReview
	}

	now := s.clock()
	byUser := make(map[string]*Response, len(responses))
	for _, r := range responses {
		byUser[r.UserID] = r
	}
	for _, userID := range LiveAssignees(assignments) {
		r, ok := byUser[userID]
		created := false
		if !ok {
			r = s.newResponse(t, userID, now)
			created = true
		}
		from := r.Status
		r.Status = target
		r.RespondedAt = now
		r.SubmissionSource = SourceShared
		r.UsesSharedProofs = proofTask
		r.clearVerification()
		r.RejectionReason = ""
		r.UpdatedAt = now
		if err := s.saveResponse(ctx, r, created); err != nil {
			return err
		}
		if target == ResponsePendingReview {
			if err := s.appendHistory(ctx, t, r, HistorySubmitted, actor.UserID, from, target, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) updateOwnResponse(ctx context.Context, actor Actor, t *Task, assignments []*Assignment, responses []*Response, req StatusUpdateRequest) error {
	assigned := false
	for _, id := range LiveAssignees(assignments) {
		if id == actor.UserID {
			assigned = true
			break
		}
	}
	if !assigned && !actor.Elevated {
		return cerr.NewError(cerr.PermissionDenied, "you are not assigned to this task", nil)
	}

	now := s.clock()
	var r *Response
	for _, resp := range responses {
		if resp.UserID == actor.UserID {
			r = resp
			break
		}
	}
	created := false
	if r == nil {
		r = s.newResponse(t, actor.UserID, now)
		created = true
	}
	from := r.Status

	if err := ValidateTransition(from, req.Target, actor.Elevated); err != nil {
		return err
	}

	target := req.Target
	submitting := target == ResponsePendingReview || target == ResponseCompleted

	if t.ResponseType == ResponseTypeCompletionWithProof && submitting {
		if len(req.Files) > 0 {
			own, err := s.proofs.ListProofs(ctx, r.ID)
			if err != nil {
				return err
			}
			if err := s.proofs.CheckBatch(ctx, t, len(own), req.Files); err != nil {
				return err
			}
			if err := s.gateShift(ctx, actor, t, r, target); err != nil {
				return err
			}
			if created {
				// The proof rows reference the response id; make sure the row
				// exists before attaching files to it.
				if err := s.responses.Create(ctx, r); err != nil {
					return err
				}
				created = false
			}
			if _, err := s.proofs.SaveProofs(ctx, t, r, req.Files); err != nil {
				return err
			}
			if target == ResponseCompleted {
				// Uploaded files need verification before final completion.
				target = ResponsePendingReview
			}
		} else {
			ok, err := s.hasUsableProof(ctx, actor, t, r, responses)
			if err != nil {
				return err
			}
			if !ok {
				return cerr.NewError(cerr.InvalidArgument, "at least one proof file is required for this status", nil)
			}
			if err := s.gateShift(ctx, actor, t, r, target); err != nil {
				return err
			}
		}
	} else if err := s.gateShift(ctx, actor, t, r, target); err != nil {
		return err
	}

	if target == ResponsePending {
		// Elevated soft reset: drop the user's proofs and start over.
		if _, err := s.proofs.DeleteProofs(ctx, r.ID); err != nil {
			return err
		}
		r.Status = ResponsePending
		r.clearVerification()
		r.RejectionReason = ""
		r.UsesSharedProofs = false
		r.ShiftID = ""
		r.DuringShift = false
		r.SubmissionSource = ""
		r.UpdatedAt = now
		return s.saveResponse(ctx, r, created)
	}

	r.Status = target
	r.RespondedAt = now
	r.UsesSharedProofs = false
	if from == ResponseRejected {
		r.SubmissionSource = SourceResubmitted
	} else {
		r.SubmissionSource = SourceIndividual
	}
	r.UpdatedAt = now

	if from == ResponsePendingReview && target == ResponseCompleted && actor.Elevated {
		// Approve-without-verification shortcut: still stamped and recorded
		// like a regular approval.
		at := now
		r.VerifiedAt = &at
		r.VerifiedBy = actor.UserID
		r.RejectionReason = ""
	}

	if err := s.saveResponse(ctx, r, created); err != nil {
		return err
	}

	switch {
	case target == ResponsePendingReview:
		action := HistorySubmitted
		if from == ResponseRejected {
			action = HistoryResubmitted
		}
		if err := s.appendHistory(ctx, t, r, action, actor.UserID, from, target, ""); err != nil {
			return err
		}
		s.publishPendingReview(ctx, t, r, actor)
	case from == ResponsePendingReview && target == ResponseCompleted && actor.Elevated:
		if err := s.appendHistory(ctx, t, r, HistoryApproved, actor.UserID, from, target, ""); err != nil {
			return err
		}
		ev := eventbus.NewEvent(eventbus.TypeTaskApproved, t.ID, []string{r.UserID})
		ev.ResponseID = r.ID
		s.bus.Publish(ev)
	}
	return nil
}

// gateShift enforces the open-shift policy for non-elevated completion and
// records which shift covered the response.
func (s *Service) gateShift(ctx context.Context, actor Actor, t *Task, r *Response, target ResponseStatus) error {
	if !t.RequiresOpenShift || actor.Elevated {
		return nil
	}
	if target != ResponseCompleted && target != ResponsePendingReview {
		return nil
	}
	shiftID, open, err := s.shifts.OpenShiftID(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if !open {
		return cerr.NewError(cerr.FailedPrecondition, "an open shift is required to complete this task", nil)
	}
	r.ShiftID = shiftID
	r.DuringShift = true
	return nil
}

func (s *Service) hasUsableProof(ctx context.Context, actor Actor, t *Task, r *Response, responses []*Response) (bool, error) {
	own, err := s.proofs.ListProofs(ctx, r.ID)
	if err != nil {
		return false, err
	}
	if len(own) > 0 {
		return true, nil
	}
	if r.UsesSharedProofs {
		shared, err := s.proofs.ListSharedProofs(ctx, t.ID)
		if err != nil {
			return false, err
		}
		if len(shared) > 0 {
			return true, nil
		}
	}
	if actor.Elevated {
		return s.proofs.HasAnyProof(ctx, t, responses)
	}
	return false, nil
}

func (s *Service) publishPendingReview(ctx context.Context, t *Task, r *Response, actor Actor) {
	managers, err := s.directory.ManagerIDs(ctx, t.DealershipID)
	if err != nil {
		// Notification fan-out is best-effort; the mutation stands.
		managers = nil
	}
	var targets []string
	for _, id := range managers {
		if id != actor.UserID {
			targets = append(targets, id)
		}
	}
	ev := eventbus.NewEvent(eventbus.TypeTaskPendingReview, t.ID, targets)
	ev.SubmittedBy = actor.UserID
	ev.ResponseID = r.ID
	s.bus.Publish(ev)
}

// syncAssignments reconciles the assignment rows with desired: rows no longer
// wanted are tombstoned, tombstoned rows that reappear are restored, and the
// rest are created. Returns the user ids that became newly assigned. The
// caller must hold the task lock.
func (s *Service) syncAssignments(ctx context.Context, t *Task, desired []string) ([]string, error) {
	existing, err := s.assignments.ListByTask(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(desired))
	for _, id := range desired {
		want[id] = true
	}

	now := s.clock()
	live := make(map[string]*Assignment)
	tombstoned := make(map[string]*Assignment)
	for _, a := range existing {
		if a.Deleted() {
			tombstoned[a.UserID] = a
		} else {
			live[a.UserID] = a
		}
	}

	for userID, a := range live {
		if want[userID] {
			continue
		}
		at := now
		a.DeletedAt = &at
		if err := s.assignments.Update(ctx, a); err != nil {
			return nil, err
		}
	}

	var added []string
	for _, userID := range desired {
		if _, ok := live[userID]; ok {
			continue
		}
		if a, ok := tombstoned[userID]; ok {
			a.DeletedAt = nil
			if err := s.assignments.Update(ctx, a); err != nil {
				return nil, err
			}
			added = append(added, userID)
			continue
		}
		a := &Assignment{
			ID:        ulid.Make().String(),
			TaskID:    t.ID,
			UserID:    userID,
			CreatedAt: now,
		}
		if err := s.assignments.Create(ctx, a); err != nil {
			return nil, err
		}
		added = append(added, userID)
	}
	return added, nil
}

func (s *Service) newResponse(t *Task, userID string, now time.Time) *Response {
	return &Response{
		ID:        ulid.Make().String(),
		TaskID:    t.ID,
		UserID:    userID,
		Status:    ResponsePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Service) saveResponse(ctx context.Context, r *Response, created bool) error {
	if created {
		return s.responses.Create(ctx, r)
	}
	return s.responses.Update(ctx, r)
}

func (s *Service) appendHistory(ctx context.Context, t *Task, r *Response, action HistoryAction, actorID string, from, to ResponseStatus, reason string) error {
	count := 0
	if r.UsesSharedProofs {
		shared, err := s.proofs.ListSharedProofs(ctx, t.ID)
		if err != nil {
			return err
		}
		count = len(shared)
	} else {
		own, err := s.proofs.ListProofs(ctx, r.ID)
		if err != nil {
			return err
		}
		count = len(own)
	}
	return s.history.Append(ctx, &VerificationHistory{
		ID:         ulid.Make().String(),
		TaskID:     t.ID,
		ResponseID: r.ID,
		Action:     action,
		ActorID:    actorID,
		FromStatus: from,
		ToStatus:   to,
		ProofCount: count,
		Reason:     reason,
		CreatedAt:  s.clock(),
	})
}

func (s *Service) getLive(ctx context.Context, id string) (*Task, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Deleted() {
		return nil, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return t, nil
}

func (s *Service) detail(ctx context.Context, t *Task) (*Detail, error) {
	assignments, err := s.assignments.ListByTask(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	responses, err := s.responses.ListByTask(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	proofsByResponse := make(map[string][]*Proof)
	for _, r := range responses {
		own, err := s.proofs.ListProofs(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		if len(own) > 0 {
			proofsByResponse[r.ID] = own
		}
	}
	shared, err := s.proofs.ListSharedProofs(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	var liveAssignments []*Assignment
	for _, a := range assignments {
		if !a.Deleted() {
			liveAssignments = append(liveAssignments, a)
		}
	}
	return &Detail{
		Task:         t,
		Status:       ComputeStatus(t, assignments, responses, s.clock()),
		Assignments:  liveAssignments,
		Responses:    responses,
		Proofs:       proofsByResponse,
		SharedProofs: shared,
	}, nil
}

func (s *Service) authorizeEdit(actor Actor, t *Task) error {
	if err := authorizeDealership(actor, t.DealershipID); err != nil {
		return err
	}
	if !actor.Elevated && actor.UserID != t.CreatedBy {
		return cerr.NewError(cerr.PermissionDenied, "only the creator or a manager may edit this task", nil)
	}
	return nil
}

func authorizeDealership(actor Actor, dealershipID string) error {
	if dealershipID == "" || actor.DealershipID == "" {
		return nil
	}
	if actor.DealershipID != dealershipID {
		return cerr.NewError(cerr.PermissionDenied, "task belongs to another dealership", nil)
	}
	return nil
}
