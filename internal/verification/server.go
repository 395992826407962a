package verification

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dealerops/taskboard/internal/task"
	"github.com/dealerops/taskboard/pkg/cerr"
)

const userIDHeader = "X-User-ID"

type Server struct {
	workflow *Workflow
	resolver task.ActorResolver
}

func NewServer(workflow *Workflow, resolver task.ActorResolver) *Server {
	return &Server{
		workflow: workflow,
		resolver: resolver,
	}
}

func (s *Server) Routes(r chi.Router) {
	r.Post("/responses/{id}/approve", s.handleApprove)
	r.Post("/responses/{id}/reject", s.handleReject)
	r.Post("/tasks/{id}/reject-all", s.handleRejectAll)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := s.resolver.ResolveActor(ctx, r.Header.Get(userIDHeader))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	resp, err := s.workflow.Approve(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"response": resp})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := s.resolver.ResolveActor(ctx, r.Header.Get(userIDHeader))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	req, err := decodeReject(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	resp, err := s.workflow.Reject(ctx, actor, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"response": resp})
}

func (s *Server) handleRejectAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := s.resolver.ResolveActor(ctx, r.Header.Get(userIDHeader))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	req, err := decodeReject(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	rejected, err := s.workflow.RejectAll(ctx, actor, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"responses": rejected})
}

func decodeReject(r *http.Request) (*rejectRequest, error) {
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, cerr.NewError(cerr.InvalidArgument, "request body is required", nil)
		}
		return nil, cerr.NewError(cerr.InvalidArgument, "invalid request body", err)
	}
	return &req, nil
}
