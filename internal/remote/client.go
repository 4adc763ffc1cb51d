package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reviewdesk/internal/domain"
)

// Backend is the system-of-record boundary the review core talks to. Tests
// substitute a fake; production wiring uses Client.
type Backend interface {
	Projects(ctx context.Context, subjectDomain string) ([]domain.Project, error)
	DeletionRequests(ctx context.Context, subjectDomain string) ([]domain.DeletionRequest, error)
	ProjectDetails(ctx context.Context, projectID, ownerID string) (domain.Project, error)
	ApproveDeletionRequest(ctx context.Context, requestID string, kind domain.EntityKind) error
	RejectDeletionRequest(ctx context.Context, requestID string) error
	SaveProjectUpdate(ctx context.Context, p domain.Project, status string) error
}

// Client is the HTTP implementation of Backend.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ActionError is a backend-reported failure: the call completed but the
// envelope carried success=false.
type ActionError struct {
	Message string
}

func (e *ActionError) Error() string {
	if e.Message == "" {
		return "backend rejected the action"
	}
	return e.Message
}

// Projects lists projects for a subject domain.
func (c *Client) Projects(ctx context.Context, subjectDomain string) ([]domain.Project, error) {
	raw, err := c.doRaw(ctx, http.MethodGet, "projects?subject="+url.QueryEscape(subjectDomain), nil)
	if err != nil {
		return nil, err
	}
	return decodeProjects(raw), nil
}

// DeletionRequests lists deletion requests for a subject domain.
func (c *Client) DeletionRequests(ctx context.Context, subjectDomain string) ([]domain.DeletionRequest, error) {
	raw, err := c.doRaw(ctx, http.MethodGet, "deletion-requests?subject="+url.QueryEscape(subjectDomain), nil)
	if err != nil {
		return nil, err
	}
	return decodeRequests(raw), nil
}

// ProjectDetails fetches the full project record lazily on review-open.
func (c *Client) ProjectDetails(ctx context.Context, projectID, ownerID string) (domain.Project, error) {
	endpoint := fmt.Sprintf("projects/%s?owner=%s", url.PathEscape(projectID), url.QueryEscape(ownerID))
	raw, err := c.doRaw(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Project{}, err
	}
	p, ok := decodeProject(raw)
	if !ok {
		return domain.Project{}, fmt.Errorf("project %s: unrecognized response shape", projectID)
	}
	return p, nil
}

// ApproveDeletionRequest settles a request as approved.
func (c *Client) ApproveDeletionRequest(ctx context.Context, requestID string, kind domain.EntityKind) error {
	body := map[string]any{
		"request_id":  requestID,
		"entity_type": kind,
	}
	raw, err := c.doRaw(ctx, http.MethodPost, "deletion-requests/"+url.PathEscape(requestID)+"/approve", body)
	if err != nil {
		return err
	}
	return actionOutcome(raw)
}

// RejectDeletionRequest settles a request as rejected.
func (c *Client) RejectDeletionRequest(ctx context.Context, requestID string) error {
	body := map[string]any{"request_id": requestID}
	raw, err := c.doRaw(ctx, http.MethodPost, "deletion-requests/"+url.PathEscape(requestID)+"/reject", body)
	if err != nil {
		return err
	}
	return actionOutcome(raw)
}

// SaveProjectUpdate persists the full project content with the given status.
func (c *Client) SaveProjectUpdate(ctx context.Context, p domain.Project, status string) error {
	body := map[string]any{
		"project": p,
		"status":  status,
	}
	raw, err := c.doRaw(ctx, http.MethodPut, "projects/"+url.PathEscape(p.ID), body)
	if err != nil {
		return err
	}
	return actionOutcome(raw)
}

func actionOutcome(raw []byte) error {
	res := decodeAction(raw)
	if res.Success {
		return nil
	}
	return &ActionError{Message: res.Message}
}

func (c *Client) doRaw(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	// Requests run concurrently (background request reloads share the client
	// with foreground handlers), so this path must never write to c.
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: c.Timeout}
	}
	reqURL := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
