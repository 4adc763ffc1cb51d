package remote

import (
	"encoding/json"

	"reviewdesk/internal/domain"
)

// The system of record wraps responses inconsistently: sometimes
// {body:{action_response:{...}}}, sometimes {action_response:{...}},
// sometimes the bare payload. Normalization lives here so nothing past the
// boundary branches on envelope shape. An unrecognized shape decodes to zero
// items, never an error.

// unwrap peels known wrappers in fixed priority order.
func unwrap(data []byte) []byte {
	var body struct {
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(data, &body); err == nil && len(body.Body) > 0 && string(body.Body) != "null" {
		data = body.Body
	}
	var ar struct {
		ActionResponse json.RawMessage `json:"action_response"`
	}
	if err := json.Unmarshal(data, &ar); err == nil && len(ar.ActionResponse) > 0 && string(ar.ActionResponse) != "null" {
		data = ar.ActionResponse
	}
	return data
}

func decodeRequests(data []byte) []domain.DeletionRequest {
	data = unwrap(data)
	var wrapped struct {
		Requests []domain.DeletionRequest `json:"requests"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Requests != nil {
		return wrapped.Requests
	}
	var bare []domain.DeletionRequest
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare
	}
	return nil
}

func decodeProjects(data []byte) []domain.Project {
	data = unwrap(data)
	var wrapped struct {
		Projects []domain.Project `json:"projects"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Projects != nil {
		return wrapped.Projects
	}
	var bare []domain.Project
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare
	}
	return nil
}

func decodeProject(data []byte) (domain.Project, bool) {
	data = unwrap(data)
	var wrapped struct {
		Project *domain.Project `json:"project"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Project != nil {
		return *wrapped.Project, true
	}
	var bare domain.Project
	if err := json.Unmarshal(data, &bare); err == nil && bare.ID != "" {
		return bare, true
	}
	return domain.Project{}, false
}

type actionResult struct {
	Success bool
	Message string
}

func decodeAction(data []byte) actionResult {
	data = unwrap(data)
	var res struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &res); err != nil || res.Success == nil {
		return actionResult{Success: false, Message: "unrecognized backend response"}
	}
	return actionResult{Success: *res.Success, Message: res.Message}
}
