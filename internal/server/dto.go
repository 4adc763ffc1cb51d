package server

import (
	"reviewdesk/internal/domain"
	"reviewdesk/internal/review"
	"reviewdesk/internal/status"
)

// Request payloads

// EntityRef names the target of an approve/reject action. Project-level
// actions leave stage and task ids empty.
type EntityRef struct {
	StageID string `json:"stage_id,omitempty"`
	TaskID  string `json:"task_id,omitempty"`
}

// Kind infers the entity level from which ids are present.
func (r EntityRef) Kind() string {
	switch {
	case r.TaskID != "":
		return "task"
	case r.StageID != "":
		return "stage"
	default:
		return "project"
	}
}

type EditRequest struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// Response payloads

type ProjectSummary struct {
	ProjectID            string `json:"project_id"`
	Title                string `json:"title"`
	OwnerID              string `json:"owner_id"`
	SubjectDomain        string `json:"subject_domain,omitempty"`
	Status               string `json:"status,omitempty"`
	DisplayStatus        string `json:"display_status,omitempty"`
	HasDeletionRequests  bool   `json:"has_deletion_requests"`
	DeletionRequestCount int    `json:"deletion_request_count"`
}

type ProjectListResponse struct {
	Projects []ProjectSummary `json:"projects"`
}

type RequestListResponse struct {
	Requests []domain.DeletionRequest `json:"requests"`
}

type BufferResponse struct {
	Project domain.AnnotatedProject `json:"project"`
	Dirty   bool                    `json:"dirty"`
}

type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Saving  bool   `json:"saving"`
}

func projectListResponse(s *review.Session) ProjectListResponse {
	items := s.Projects()
	out := ProjectListResponse{Projects: make([]ProjectSummary, 0, len(items))}
	for _, p := range items {
		out.Projects = append(out.Projects, ProjectSummary{
			ProjectID:            p.ID,
			Title:                p.Title,
			OwnerID:              p.OwnerID,
			SubjectDomain:        p.SubjectDomain,
			Status:               p.Status,
			DisplayStatus:        status.ForProject(p),
			HasDeletionRequests:  p.HasDeletionRequests,
			DeletionRequestCount: p.DeletionRequestCount,
		})
	}
	return out
}

func actionResponse(s *review.Session) *struct {
	Body ActionResponse `json:"body"`
} {
	success, errMsg := s.Messages()
	msg := success
	if errMsg != "" {
		msg = errMsg
	}
	return &struct {
		Body ActionResponse `json:"body"`
	}{Body: ActionResponse{Success: errMsg == "", Message: msg, Saving: s.Saving()}}
}

func bufferResponse(s *review.Session) (*struct {
	Body BufferResponse `json:"body"`
}, error) {
	p, dirty, ok := s.BufferSnapshot()
	if !ok {
		return nil, handleError(review.ErrNoSession)
	}
	return &struct {
		Body BufferResponse `json:"body"`
	}{Body: BufferResponse{Project: p, Dirty: dirty}}, nil
}
