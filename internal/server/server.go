package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"reviewdesk/internal/remote"
	"reviewdesk/internal/review"
)

// Config for the HTTP API handler.
type Config struct {
	Session  *review.Session
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"no_review_open"`
	Message string         `json:"message" example:"no review open"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the review API over one session.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Reviewdesk API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerProjects(group, cfg.Session)
	registerRequests(group, cfg.Session)
	registerReview(group, cfg.Session)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps workflow and boundary errors onto the envelope. A
// backend-reported failure surfaces as 502 with the backend's own message.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ae *remote.ActionError
	if errors.As(err, &ae) {
		return newAPIError(http.StatusBadGateway, "backend_rejected", ae.Error(), nil)
	}
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		return newAPIError(http.StatusBadGateway, "backend_unreachable", "backend request failed", map[string]any{"status": apiErr.StatusCode})
	}
	switch {
	case errors.Is(err, review.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, review.ErrNoSession):
		return newAPIError(http.StatusConflict, "no_review_open", err.Error(), nil)
	case errors.Is(err, review.ErrSaving):
		return newAPIError(http.StatusConflict, "action_in_flight", err.Error(), nil)
	case errors.Is(err, review.ErrUnsavedChanges):
		return newAPIError(http.StatusConflict, "unsaved_changes", err.Error(), nil)
	case errors.Is(err, review.ErrNoRequest):
		return newAPIError(http.StatusBadRequest, "no_deletion_request", err.Error(), nil)
	case errors.Is(err, review.ErrMissingIdentity):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "malformed") || strings.Contains(lowered, "empty"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusBadGateway:
		return "backend_unreachable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProjects(api huma.API, s *review.Session) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/reviews/projects",
		Summary:     "List reconciled projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProjectListResponse `json:"body"`
	}, error) {
		return &struct {
			Body ProjectListResponse `json:"body"`
		}{Body: projectListResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reload-projects",
		Method:      http.MethodPost,
		Path:        "/reviews/projects/reload",
		Summary:     "Refetch projects and requests, then reconcile",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProjectListResponse `json:"body"`
	}, error) {
		if err := s.LoadProjects(ctx); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectListResponse `json:"body"`
		}{Body: projectListResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-project",
		Method:      http.MethodPost,
		Path:        "/reviews/projects/{project_id}/approve",
		Summary:     "Approve a project, saving full content",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ActionResponse `json:"body"`
	}, error) {
		if err := s.ApproveProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return actionResponse(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-project",
		Method:      http.MethodPost,
		Path:        "/reviews/projects/{project_id}/reject",
		Summary:     "Send a project back for revision",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ActionResponse `json:"body"`
	}, error) {
		if err := s.RequestRevision(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return actionResponse(s), nil
	})
}

func registerRequests(api huma.API, s *review.Session) {
	huma.Register(api, huma.Operation{
		OperationID: "list-requests",
		Method:      http.MethodGet,
		Path:        "/reviews/requests",
		Summary:     "List the pending deletion request working set",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RequestListResponse `json:"body"`
	}, error) {
		return &struct {
			Body RequestListResponse `json:"body"`
		}{Body: RequestListResponse{Requests: s.Requests()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-request",
		Method:      http.MethodPost,
		Path:        "/reviews/requests/approve",
		Summary:     "Approve a deletion request on the open review",
	}, func(ctx context.Context, input *struct {
		Body EntityRef `json:"body"`
	}) (*struct {
		Body ActionResponse `json:"body"`
	}, error) {
		if err := approveByKind(ctx, s, input.Body); err != nil {
			return nil, handleError(err)
		}
		return actionResponse(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-request",
		Method:      http.MethodPost,
		Path:        "/reviews/requests/reject",
		Summary:     "Reject a deletion request on the open review",
	}, func(ctx context.Context, input *struct {
		Body EntityRef `json:"body"`
	}) (*struct {
		Body ActionResponse `json:"body"`
	}, error) {
		if err := rejectByKind(ctx, s, input.Body); err != nil {
			return nil, handleError(err)
		}
		return actionResponse(s), nil
	})
}

func registerReview(api huma.API, s *review.Session) {
	huma.Register(api, huma.Operation{
		OperationID: "open-review",
		Method:      http.MethodPost,
		Path:        "/reviews/projects/{project_id}/open",
		Summary:     "Open a project for review",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body BufferResponse `json:"body"`
	}, error) {
		if err := s.Open(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return bufferResponse(s)
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-buffer",
		Method:      http.MethodGet,
		Path:        "/reviews/buffer",
		Summary:     "Read the edit buffer",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body BufferResponse `json:"body"`
	}, error) {
		return bufferResponse(s)
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-buffer",
		Method:      http.MethodPatch,
		Path:        "/reviews/buffer",
		Summary:     "Apply a path-addressed edit to the buffer",
	}, func(ctx context.Context, input *struct {
		Body EditRequest `json:"body"`
	}) (*struct {
		Body BufferResponse `json:"body"`
	}, error) {
		if input.Body.Path == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "path is required", nil)
		}
		if err := s.Edit(ctx, input.Body.Path, input.Body.Value); err != nil {
			return nil, handleError(err)
		}
		return bufferResponse(s)
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-review",
		Method:      http.MethodPost,
		Path:        "/reviews/save",
		Summary:     "Persist the edit buffer to the system of record",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ActionResponse `json:"body"`
	}, error) {
		if err := s.Save(ctx); err != nil {
			return nil, handleError(err)
		}
		return actionResponse(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-review",
		Method:      http.MethodPost,
		Path:        "/reviews/close",
		Summary:     "Close the review; force discards unsaved edits",
	}, func(ctx context.Context, input *struct {
		Force bool `query:"force"`
	}) (*struct {
		Body ActionResponse `json:"body"`
	}, error) {
		if err := s.Close(ctx, input.Force); err != nil {
			return nil, handleError(err)
		}
		return actionResponse(s), nil
	})
}

func approveByKind(ctx context.Context, s *review.Session, ref EntityRef) error {
	switch ref.Kind() {
	case "task":
		return s.ApproveTaskDeletion(ctx, ref.StageID, ref.TaskID)
	case "stage":
		return s.ApproveStageDeletion(ctx, ref.StageID)
	default:
		return s.ApproveProjectDeletion(ctx)
	}
}

func rejectByKind(ctx context.Context, s *review.Session, ref EntityRef) error {
	switch ref.Kind() {
	case "task":
		return s.RejectTaskDeletion(ctx, ref.StageID, ref.TaskID)
	case "stage":
		return s.RejectStageDeletion(ctx, ref.StageID)
	default:
		return s.RejectProjectDeletion(ctx)
	}
}
