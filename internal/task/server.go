package task

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dealerops/taskboard/pkg/cerr"
)

// ActorResolver turns the authenticated user id from the request boundary
// into an Actor.
type ActorResolver interface {
	ResolveActor(ctx context.Context, userID string) (Actor, error)
}

const userIDHeader = "X-User-ID"

// Server exposes the task operations over HTTP. Handlers leave their result
// in the request context; the cerr middleware renders it.
type Server struct {
	service       *Service
	resolver      ActorResolver
	maxBatchBytes int64
}

func NewServer(service *Service, resolver ActorResolver, maxBatchBytes int64) *Server {
	return &Server{
		service:       service,
		resolver:      resolver,
		maxBatchBytes: maxBatchBytes,
	}
}

func (s *Server) Routes(r chi.Router) {
	r.Post("/tasks", s.handleCreate)
	r.Get("/tasks", s.handleList)
	r.Get("/tasks/{id}", s.handleGet)
	r.Patch("/tasks/{id}", s.handleUpdate)
	r.Delete("/tasks/{id}", s.handleDelete)
	r.Post("/tasks/{id}/postpone", s.handlePostpone)
	r.Post("/tasks/{id}/status", s.handleStatus)
}

func (s *Server) actor(r *http.Request) (Actor, error) {
	return s.resolver.ResolveActor(r.Context(), r.Header.Get(userIDHeader))
}

type createTaskRequest struct {
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Comment           string     `json:"comment"`
	DealershipID      string     `json:"dealership_id"`
	AppearsAt         time.Time  `json:"appears_at"`
	Deadline          *time.Time `json:"deadline"`
	Type              string     `json:"type"`
	ResponseType      string     `json:"response_type"`
	Tags              []string   `json:"tags"`
	Priority          string     `json:"priority"`
	RequiresOpenShift bool       `json:"requires_open_shift"`
	TemplateID        string     `json:"template_id"`
	AssigneeIDs       []string   `json:"assignee_ids"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := s.actor(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	detail, err := s.service.Create(ctx, actor, CreateRequest{
		Title:             req.Title,
		Description:       req.Description,
		Comment:           req.Comment,
		DealershipID:      req.DealershipID,
		AppearsAt:         req.AppearsAt,
		Deadline:          req.Deadline,
		Type:              Type(req.Type),
		ResponseType:      ResponseType(req.ResponseType),
		Tags:              req.Tags,
		Priority:          Priority(req.Priority),
		RequiresOpenShift: req.RequiresOpenShift,
		TemplateID:        req.TemplateID,
		AssigneeIDs:       req.AssigneeIDs,
	})
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, detail)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := s.actor(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	q := r.URL.Query()
	filter := ListFilter{
		DealershipID: q.Get("dealership_id"),
		ActiveOnly:   q.Get("active") == "true",
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}
	summaries, err := s.service.List(ctx, actor, filter, Status(q.Get("status")))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"tasks": summaries})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := s.actor(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	detail, err := s.service.Get(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, detail)
}

type updateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Comment     *string    `json:"comment"`
	Deadline    *time.Time `json:"deadline"`
	Tags        *[]string  `json:"tags"`
	Priority    *string    `json:"priority"`
	AssigneeIDs *[]string  `json:"assignee_ids"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := s.actor(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	upd := UpdateRequest{
		Title:       req.Title,
		Description: req.Description,
		Comment:     req.Comment,
		Deadline:    req.Deadline,
		Tags:        req.Tags,
		AssigneeIDs: req.AssigneeIDs,
	}
	if req.Priority != nil {
		p := Priority(*req.Priority)
		upd.Priority = &p
	}
	detail, err := s.service.Update(ctx, actor, chi.URLParam(r, "id"), upd)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, detail)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := s.actor(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.service.Delete(ctx, actor, chi.URLParam(r, "id")); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"deleted": true})
}

type postponeRequest struct {
	Deadline time.Time `json:"deadline"`
}

func (s *Server) handlePostpone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := s.actor(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req postponeRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Deadline.IsZero() {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "deadline is required", nil)
		return
	}
	detail, err := s.service.Postpone(ctx, actor, chi.URLParam(r, "id"), req.Deadline)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, detail)
}

type statusUpdateRequest struct {
	Status         string `json:"status"`
	CompleteForAll bool   `json:"complete_for_all"`
}

// handleStatus accepts either a JSON body or, for proof uploads, a multipart
// form with "status", "complete_for_all" and one or more "files" parts.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := s.actor(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	req, err := s.parseStatusRequest(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	detail, err := s.service.UpdateResponseStatus(ctx, actor, chi.URLParam(r, "id"), req)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, detail)
}

func (s *Server) parseStatusRequest(r *http.Request) (StatusUpdateRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		var req statusUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			return StatusUpdateRequest{}, err
		}
		return StatusUpdateRequest{
			Target:         ResponseStatus(req.Status),
			CompleteForAll: req.CompleteForAll,
		}, nil
	}

	// Cap the whole form at the batch ceiling plus headroom for the
	// non-file fields; the proof store enforces the exact limits.
	r.Body = http.MaxBytesReader(nil, r.Body, s.maxBatchBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return StatusUpdateRequest{}, cerr.NewError(cerr.InvalidArgument, "invalid multipart form", err)
	}
	defer r.MultipartForm.RemoveAll()

	req := StatusUpdateRequest{
		Target:         ResponseStatus(r.FormValue("status")),
		CompleteForAll: r.FormValue("complete_for_all") == "true",
	}
	for _, fh := range r.MultipartForm.File["files"] {
		upload, err := readUpload(fh)
		if err != nil {
			return StatusUpdateRequest{}, err
		}
		req.Files = append(req.Files, upload)
	}
	return req, nil
}

func readUpload(fh *multipart.FileHeader) (Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return Upload{}, cerr.NewError(cerr.InvalidArgument, "failed to open uploaded file", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return Upload{}, cerr.NewError(cerr.InvalidArgument, "failed to read uploaded file", err)
	}
	return Upload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return cerr.NewError(cerr.InvalidArgument, "request body is required", nil)
		}
		return cerr.NewError(cerr.InvalidArgument, "invalid request body", err)
	}
	return nil
}
