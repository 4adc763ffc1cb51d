package review

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"reviewdesk/internal/domain"
	"reviewdesk/internal/reconcile"
	"reviewdesk/internal/remote"
	"reviewdesk/internal/requests"
)

var (
	ErrNoSession       = errors.New("no review open")
	ErrSaving          = errors.New("action already in flight")
	ErrNotFound        = errors.New("not found")
	ErrNoRequest       = errors.New("no deletion request attached")
	ErrMissingIdentity = errors.New("project id and owner id are required")
	ErrUnsavedChanges  = errors.New("unsaved changes; save first or close with force")
)

const defaultMessageTTL = 6 * time.Second

// DraftStore persists edit-buffer drafts between sessions.
type DraftStore interface {
	SaveDraft(ctx context.Context, projectID string, p domain.AnnotatedProject, dirty bool) error
	LoadDraft(ctx context.Context, projectID string) (p domain.AnnotatedProject, dirty bool, ok bool, err error)
	DeleteDraft(ctx context.Context, projectID string) error
}

// ActionRecorder appends settled review actions to a local log. Recording is
// best effort; failures are logged and never block the workflow.
type ActionRecorder interface {
	Record(ctx context.Context, actionType, projectID string, kind domain.EntityKind, entityID, requestID, actorID string) error
}

// Config assembles a review session.
type Config struct {
	Backend        remote.Backend
	Store          *requests.Store
	Drafts         DraftStore
	Actions        ActionRecorder
	Logger         *log.Logger
	ReviewerID     string
	SubjectDomains []string
	MessageTTL     time.Duration
	Now            func() time.Time
}

// Session owns all mutable review state: the reconciled project list, the
// full-detail copy of the open project, and the edit buffer. It replaces the
// ambient "current domain / current stage" globals with one explicit context
// object. One session serves one reviewer.
type Session struct {
	backend remote.Backend
	store   *requests.Store
	drafts  DraftStore
	actions ActionRecorder
	logger  *log.Logger
	now     func() time.Time

	reviewerID     string
	subjectDomains []string
	messageTTL     time.Duration

	mu         sync.Mutex
	projects   []domain.AnnotatedProject
	detail     *domain.AnnotatedProject
	buffer     *Buffer
	saving     bool
	successMsg string
	errorMsg   string
	msgExpiry  time.Time
}

func NewSession(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MessageTTL <= 0 {
		cfg.MessageTTL = defaultMessageTTL
	}
	return &Session{
		backend:        cfg.Backend,
		store:          cfg.Store,
		drafts:         cfg.Drafts,
		actions:        cfg.Actions,
		logger:         cfg.Logger,
		now:            cfg.Now,
		reviewerID:     cfg.ReviewerID,
		subjectDomains: cfg.SubjectDomains,
		messageTTL:     cfg.MessageTTL,
	}
}

// LoadProjects fetches projects for every configured subject domain, loads
// the pending request set, and reconciles the two into the session list.
func (s *Session) LoadProjects(ctx context.Context) error {
	var raw []domain.Project
	for _, d := range s.subjectDomains {
		if d == "" {
			continue
		}
		ps, err := s.backend.Projects(ctx, d)
		if err != nil {
			return fmt.Errorf("projects for %s: %w", d, err)
		}
		raw = append(raw, ps...)
	}
	reqs := s.store.Load(ctx, s.subjectDomains)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = reconcile.Reconcile(raw, reqs)
	return nil
}

// Projects returns a copy of the reconciled project list.
func (s *Session) Projects() []domain.AnnotatedProject {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AnnotatedProject, len(s.projects))
	for i, p := range s.projects {
		out[i] = p.Clone()
	}
	return out
}

// Requests returns the current working set of pending requests.
func (s *Session) Requests() []domain.DeletionRequest {
	return s.store.Current()
}

// Open starts reviewing a project: the full record is fetched lazily,
// reconciled against the current request set, and cloned into the edit
// buffer. A dirty persisted draft, if any, takes over the buffer.
func (s *Session) Open(ctx context.Context, projectID string) error {
	s.mu.Lock()
	var listed *domain.AnnotatedProject
	for i := range s.projects {
		if s.projects[i].ID == projectID {
			listed = &s.projects[i]
			break
		}
	}
	if listed == nil {
		s.mu.Unlock()
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	ownerID := listed.OwnerID
	s.mu.Unlock()

	if projectID == "" || ownerID == "" {
		return ErrMissingIdentity
	}
	full, err := s.backend.ProjectDetails(ctx, projectID, ownerID)
	if err != nil {
		return fmt.Errorf("project details: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	annotated := reconcile.Project(full, s.store.Current())
	s.detail = &annotated
	s.buffer = NewBuffer(annotated)
	s.clearMessagesLocked()
	if s.drafts != nil {
		draft, dirty, ok, err := s.drafts.LoadDraft(ctx, projectID)
		if err != nil {
			s.logger.Printf("load draft %s: %v", projectID, err)
		} else if ok && dirty {
			s.buffer.Restore(draft, true)
		}
	}
	return nil
}

// Detail returns the full-detail copy of the open project.
func (s *Session) Detail() (domain.AnnotatedProject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detail == nil {
		return domain.AnnotatedProject{}, false
	}
	return s.detail.Clone(), true
}

// BufferSnapshot returns a clone of the edit buffer and its dirty flag.
func (s *Session) BufferSnapshot() (p domain.AnnotatedProject, dirty bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buffer == nil {
		return domain.AnnotatedProject{}, false, false
	}
	return s.buffer.Snapshot(), s.buffer.Dirty(), true
}

// Edit applies a path-addressed change to the buffer and persists a draft.
// Any new edit clears stale transient messages.
func (s *Session) Edit(ctx context.Context, path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buffer == nil {
		return ErrNoSession
	}
	s.clearMessagesLocked()
	if err := s.buffer.Update(path, value); err != nil {
		return err
	}
	s.saveDraftLocked(ctx)
	return nil
}

// Close ends the review. A dirty buffer requires force, the explicit
// confirmation step; discarding drops the draft as well.
func (s *Session) Close(ctx context.Context, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buffer == nil {
		return ErrNoSession
	}
	if s.buffer.Dirty() && !force {
		return ErrUnsavedChanges
	}
	projectID := s.buffer.Project().ID
	s.closeReviewLocked()
	if s.drafts != nil {
		if err := s.drafts.DeleteDraft(ctx, projectID); err != nil {
			s.logger.Printf("delete draft %s: %v", projectID, err)
		}
	}
	return nil
}

// Messages returns the transient success and error messages, empty once the
// fixed display interval has passed.
func (s *Session) Messages() (success, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.now().After(s.msgExpiry) {
		s.successMsg = ""
		s.errorMsg = ""
	}
	return s.successMsg, s.errorMsg
}

// Saving reports whether a backend action is in flight.
func (s *Session) Saving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

func (s *Session) clearMessagesLocked() {
	s.successMsg = ""
	s.errorMsg = ""
}

func (s *Session) flashSuccessLocked(msg string) {
	s.successMsg = msg
	s.errorMsg = ""
	s.msgExpiry = s.now().Add(s.messageTTL)
}

func (s *Session) flashErrorLocked(msg string) {
	s.errorMsg = msg
	s.successMsg = ""
	s.msgExpiry = s.now().Add(s.messageTTL)
}

func (s *Session) closeReviewLocked() {
	s.buffer = nil
	s.detail = nil
}

func (s *Session) saveDraftLocked(ctx context.Context) {
	if s.drafts == nil || s.buffer == nil {
		return
	}
	p := s.buffer.Snapshot()
	if err := s.drafts.SaveDraft(ctx, p.ID, p, s.buffer.Dirty()); err != nil {
		s.logger.Printf("save draft %s: %v", p.ID, err)
	}
}

// reannotateLocked rebuilds every annotated view from the current request
// set. Reconciliation is idempotent, so feeding the already-annotated list
// back through is safe.
func (s *Session) reannotateLocked() {
	cur := s.store.Current()
	raw := make([]domain.Project, len(s.projects))
	for i, ap := range s.projects {
		raw[i] = ap.Project
	}
	s.projects = reconcile.Reconcile(raw, cur)
	if s.detail != nil {
		d := reconcile.Annotated(*s.detail, cur)
		s.detail = &d
	}
	if s.buffer != nil {
		s.buffer.Reannotate(cur)
	}
}

func (s *Session) record(ctx context.Context, actionType, projectID string, kind domain.EntityKind, entityID, requestID string) {
	if s.actions == nil {
		return
	}
	if err := s.actions.Record(ctx, actionType, projectID, kind, entityID, requestID, s.reviewerID); err != nil {
		s.logger.Printf("record %s: %v", actionType, err)
	}
}
