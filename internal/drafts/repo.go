// Package drafts persists edit-buffer drafts and the review action log in
// the workspace database, so an interrupted review can be resumed and every
// settled approve/reject is traceable.
package drafts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reviewdesk/internal/domain"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// SaveDraft upserts the working copy for a project.
func (r Repo) SaveDraft(ctx context.Context, projectID string, p domain.AnnotatedProject, dirty bool) error {
	if projectID == "" {
		return errors.New("project id required")
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	dirtyInt := 0
	if dirty {
		dirtyInt = 1
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO drafts(project_id,payload_json,dirty,updated_at) VALUES (?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET payload_json=excluded.payload_json, dirty=excluded.dirty, updated_at=excluded.updated_at`,
		projectID, string(payload), dirtyInt, r.now().UTC().Format(time.RFC3339))
	return err
}

// LoadDraft returns the stored working copy; ok is false when none exists.
func (r Repo) LoadDraft(ctx context.Context, projectID string) (p domain.AnnotatedProject, dirty bool, ok bool, err error) {
	var payload string
	var dirtyInt int
	err = r.DB.QueryRowContext(ctx, `SELECT payload_json, dirty FROM drafts WHERE project_id=?`, projectID).
		Scan(&payload, &dirtyInt)
	if err == sql.ErrNoRows {
		return domain.AnnotatedProject{}, false, false, nil
	}
	if err != nil {
		return domain.AnnotatedProject{}, false, false, err
	}
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return domain.AnnotatedProject{}, false, false, fmt.Errorf("unmarshal draft %s: %w", projectID, err)
	}
	return p, dirtyInt != 0, true, nil
}

// DeleteDraft drops the draft for a project, if any.
func (r Repo) DeleteDraft(ctx context.Context, projectID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM drafts WHERE project_id=?`, projectID)
	return err
}

// DraftInfo is a listing row.
type DraftInfo struct {
	ProjectID string `json:"project_id"`
	Dirty     bool   `json:"dirty"`
	UpdatedAt string `json:"updated_at"`
}

// ListDrafts returns drafts newest first.
func (r Repo) ListDrafts(ctx context.Context) ([]DraftInfo, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id, dirty, updated_at FROM drafts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DraftInfo
	for rows.Next() {
		var d DraftInfo
		var dirtyInt int
		if err := rows.Scan(&d.ProjectID, &dirtyInt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Dirty = dirtyInt != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

// Action is one settled review action.
type Action struct {
	ID         string            `json:"id"`
	TS         string            `json:"ts"`
	Type       string            `json:"type"`
	ProjectID  string            `json:"project_id,omitempty"`
	EntityKind domain.EntityKind `json:"entity_kind"`
	EntityID   string            `json:"entity_id,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	ActorID    string            `json:"actor_id"`
}

// Record appends a settled review action to the log.
func (r Repo) Record(ctx context.Context, actionType, projectID string, kind domain.EntityKind, entityID, requestID, actorID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO actions(id,ts,type,project_id,entity_kind,entity_id,request_id,actor_id,payload_json)
VALUES (?,?,?,?,?,?,?,?,'{}')`,
		uuid.New().String(), r.now().UTC().Format(time.RFC3339), actionType,
		nullable(projectID), string(kind), nullable(entityID), nullable(requestID), actorID)
	return err
}

// ListActions returns the most recent actions, newest first.
func (r Repo) ListActions(ctx context.Context, limit int) ([]Action, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id, ts, type, COALESCE(project_id,''), entity_kind, COALESCE(entity_id,''), COALESCE(request_id,''), actor_id
FROM actions ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Action
	for rows.Next() {
		var a Action
		var kind string
		if err := rows.Scan(&a.ID, &a.TS, &a.Type, &a.ProjectID, &kind, &a.EntityID, &a.RequestID, &a.ActorID); err != nil {
			return nil, err
		}
		a.EntityKind = domain.EntityKind(kind)
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
