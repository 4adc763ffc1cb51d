package review

import (
	"context"
	"errors"
	"fmt"

	"reviewdesk/internal/domain"
	"reviewdesk/internal/remote"
)

// The approve/reject operations all follow the same shape: locate the entity
// and its request id (fail fast on local validation), gate on the saving
// flag, clear stale messages, call the backend, and only mutate local state
// once the backend confirms. A failed call leaves everything exactly as it
// was.

// ApproveTaskDeletion settles a task-level request and removes the task from
// the buffer, the detail copy, and the project list.
func (s *Session) ApproveTaskDeletion(ctx context.Context, stageID, taskID string) error {
	s.mu.Lock()
	if s.buffer == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	if s.saving {
		s.mu.Unlock()
		return ErrSaving
	}
	_, task := s.buffer.Project().FindTask(stageID, taskID)
	if task == nil {
		s.flashErrorLocked("task not found in open review")
		s.mu.Unlock()
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	reqID := task.DeletionRequestID
	if reqID == "" {
		s.flashErrorLocked("task has no pending deletion request")
		s.mu.Unlock()
		return ErrNoRequest
	}
	projectID := s.buffer.Project().ID
	subject := s.buffer.Project().SubjectDomain
	s.saving = true
	s.clearMessagesLocked()
	s.mu.Unlock()

	err := s.backend.ApproveDeletionRequest(ctx, reqID, domain.KindTask)

	s.mu.Lock()
	s.saving = false
	if err != nil {
		s.flashErrorLocked(actionMessage(err))
		s.mu.Unlock()
		return err
	}
	if s.buffer != nil {
		s.buffer.Project().RemoveTask(stageID, taskID)
	}
	if s.detail != nil {
		s.detail.RemoveTask(stageID, taskID)
	}
	if p := s.findListedLocked(projectID); p != nil {
		p.RemoveTask(stageID, taskID)
	}
	s.store.Remove(reqID)
	s.reannotateLocked()
	s.flashSuccessLocked("task deletion approved")
	s.mu.Unlock()

	s.record(ctx, "deletion.task.approved", projectID, domain.KindTask, taskID, reqID)
	s.refreshInBackground(subject)
	return nil
}

// ApproveStageDeletion settles a stage-level request and removes the stage
// with all its tasks.
func (s *Session) ApproveStageDeletion(ctx context.Context, stageID string) error {
	s.mu.Lock()
	if s.buffer == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	if s.saving {
		s.mu.Unlock()
		return ErrSaving
	}
	stage := s.buffer.Project().FindStage(stageID)
	if stage == nil {
		s.flashErrorLocked("stage not found in open review")
		s.mu.Unlock()
		return fmt.Errorf("stage %s: %w", stageID, ErrNotFound)
	}
	reqID := stage.DeletionRequestID
	if reqID == "" {
		s.flashErrorLocked("stage has no pending deletion request")
		s.mu.Unlock()
		return ErrNoRequest
	}
	projectID := s.buffer.Project().ID
	subject := s.buffer.Project().SubjectDomain
	s.saving = true
	s.clearMessagesLocked()
	s.mu.Unlock()

	err := s.backend.ApproveDeletionRequest(ctx, reqID, domain.KindStage)

	s.mu.Lock()
	s.saving = false
	if err != nil {
		s.flashErrorLocked(actionMessage(err))
		s.mu.Unlock()
		return err
	}
	if s.buffer != nil {
		s.buffer.Project().RemoveStage(stageID)
	}
	if s.detail != nil {
		s.detail.RemoveStage(stageID)
	}
	if p := s.findListedLocked(projectID); p != nil {
		p.RemoveStage(stageID)
	}
	s.store.Remove(reqID)
	s.reannotateLocked()
	s.flashSuccessLocked("stage deletion approved")
	s.mu.Unlock()

	s.record(ctx, "deletion.stage.approved", projectID, domain.KindStage, stageID, reqID)
	s.refreshInBackground(subject)
	return nil
}

// ApproveProjectDeletion settles a project-level request, drops the project
// from the list, and closes the review entirely.
func (s *Session) ApproveProjectDeletion(ctx context.Context) error {
	s.mu.Lock()
	if s.buffer == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	if s.saving {
		s.mu.Unlock()
		return ErrSaving
	}
	reqID := s.buffer.Project().DeletionRequestID
	if reqID == "" {
		s.flashErrorLocked("project has no pending deletion request")
		s.mu.Unlock()
		return ErrNoRequest
	}
	projectID := s.buffer.Project().ID
	subject := s.buffer.Project().SubjectDomain
	s.saving = true
	s.clearMessagesLocked()
	s.mu.Unlock()

	err := s.backend.ApproveDeletionRequest(ctx, reqID, domain.KindProject)

	s.mu.Lock()
	s.saving = false
	if err != nil {
		s.flashErrorLocked(actionMessage(err))
		s.mu.Unlock()
		return err
	}
	s.removeListedLocked(projectID)
	s.closeReviewLocked()
	s.store.Remove(reqID)
	s.reannotateLocked()
	s.flashSuccessLocked("project deletion approved")
	s.mu.Unlock()

	if s.drafts != nil {
		if err := s.drafts.DeleteDraft(ctx, projectID); err != nil {
			s.logger.Printf("delete draft %s: %v", projectID, err)
		}
	}
	s.record(ctx, "deletion.project.approved", projectID, domain.KindProject, projectID, reqID)
	s.refreshInBackground(subject)
	return nil
}

// RejectTaskDeletion settles a task-level request as rejected. The task
// stays; its annotations clear once the id is filtered from the local set.
// The set is corrected locally rather than reloaded so a slow backend cannot
// hand the rejected request straight back.
func (s *Session) RejectTaskDeletion(ctx context.Context, stageID, taskID string) error {
	s.mu.Lock()
	if s.buffer == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	if s.saving {
		s.mu.Unlock()
		return ErrSaving
	}
	_, task := s.buffer.Project().FindTask(stageID, taskID)
	if task == nil {
		s.flashErrorLocked("task not found in open review")
		s.mu.Unlock()
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	reqID := task.DeletionRequestID
	if reqID == "" {
		s.flashErrorLocked("task has no pending deletion request")
		s.mu.Unlock()
		return ErrNoRequest
	}
	projectID := s.buffer.Project().ID
	s.saving = true
	s.clearMessagesLocked()
	s.mu.Unlock()

	err := s.backend.RejectDeletionRequest(ctx, reqID)

	s.mu.Lock()
	s.saving = false
	if err != nil {
		s.flashErrorLocked(actionMessage(err))
		s.mu.Unlock()
		return err
	}
	s.store.Remove(reqID)
	s.reannotateLocked()
	s.flashSuccessLocked("task deletion rejected")
	s.mu.Unlock()

	s.record(ctx, "deletion.task.rejected", projectID, domain.KindTask, taskID, reqID)
	return nil
}

// RejectStageDeletion settles a stage-level request as rejected.
func (s *Session) RejectStageDeletion(ctx context.Context, stageID string) error {
	s.mu.Lock()
	if s.buffer == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	if s.saving {
		s.mu.Unlock()
		return ErrSaving
	}
	stage := s.buffer.Project().FindStage(stageID)
	if stage == nil {
		s.flashErrorLocked("stage not found in open review")
		s.mu.Unlock()
		return fmt.Errorf("stage %s: %w", stageID, ErrNotFound)
	}
	reqID := stage.DeletionRequestID
	if reqID == "" {
		s.flashErrorLocked("stage has no pending deletion request")
		s.mu.Unlock()
		return ErrNoRequest
	}
	projectID := s.buffer.Project().ID
	s.saving = true
	s.clearMessagesLocked()
	s.mu.Unlock()

	err := s.backend.RejectDeletionRequest(ctx, reqID)

	s.mu.Lock()
	s.saving = false
	if err != nil {
		s.flashErrorLocked(actionMessage(err))
		s.mu.Unlock()
		return err
	}
	s.store.Remove(reqID)
	s.reannotateLocked()
	s.flashSuccessLocked("stage deletion rejected")
	s.mu.Unlock()

	s.record(ctx, "deletion.stage.rejected", projectID, domain.KindStage, stageID, reqID)
	return nil
}

// RejectProjectDeletion settles a project-level request as rejected. The
// project and everything under it stays.
func (s *Session) RejectProjectDeletion(ctx context.Context) error {
	s.mu.Lock()
	if s.buffer == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	if s.saving {
		s.mu.Unlock()
		return ErrSaving
	}
	reqID := s.buffer.Project().DeletionRequestID
	if reqID == "" {
		s.flashErrorLocked("project has no pending deletion request")
		s.mu.Unlock()
		return ErrNoRequest
	}
	projectID := s.buffer.Project().ID
	s.saving = true
	s.clearMessagesLocked()
	s.mu.Unlock()

	err := s.backend.RejectDeletionRequest(ctx, reqID)

	s.mu.Lock()
	s.saving = false
	if err != nil {
		s.flashErrorLocked(actionMessage(err))
		s.mu.Unlock()
		return err
	}
	s.store.Remove(reqID)
	s.reannotateLocked()
	s.flashSuccessLocked("project deletion rejected")
	s.mu.Unlock()

	s.record(ctx, "deletion.project.rejected", projectID, domain.KindProject, projectID, reqID)
	return nil
}

// ApproveProject saves the full project content with status Approved. If an
// edit buffer is open for the project, its edits are persisted together with
// the status change.
func (s *Session) ApproveProject(ctx context.Context, projectID string) error {
	return s.saveWithStatus(ctx, projectID, domain.StatusApproved, "project approved")
}

// RequestRevision saves the project with status Pending Revision.
func (s *Session) RequestRevision(ctx context.Context, projectID string) error {
	return s.saveWithStatus(ctx, projectID, domain.StatusPendingRevision, "revision requested")
}

// Save persists the edit buffer without changing the project status.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.buffer == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	projectID := s.buffer.Project().ID
	status := s.buffer.Project().Status
	s.mu.Unlock()
	return s.saveWithStatus(ctx, projectID, status, "project saved")
}

func (s *Session) saveWithStatus(ctx context.Context, projectID, newStatus, successMsg string) error {
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return ErrSaving
	}
	var payload domain.Project
	fromBuffer := false
	if s.buffer != nil && s.buffer.Project().ID == projectID {
		payload = s.buffer.Snapshot().Project
		fromBuffer = true
	} else if p := s.findListedLocked(projectID); p != nil {
		payload = p.Project.Clone()
	} else {
		s.mu.Unlock()
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	if payload.ID == "" || payload.OwnerID == "" {
		s.flashErrorLocked("project and owner identifiers are required")
		s.mu.Unlock()
		return ErrMissingIdentity
	}
	payload.Status = newStatus
	s.saving = true
	s.clearMessagesLocked()
	s.mu.Unlock()

	err := s.backend.SaveProjectUpdate(ctx, payload, newStatus)

	s.mu.Lock()
	s.saving = false
	if err != nil {
		s.flashErrorLocked(actionMessage(err))
		s.mu.Unlock()
		return err
	}
	if p := s.findListedLocked(projectID); p != nil {
		p.Status = newStatus
	}
	if s.detail != nil && s.detail.ID == projectID {
		s.detail.Status = newStatus
	}
	if fromBuffer && s.buffer != nil {
		s.buffer.Project().Status = newStatus
		s.buffer.MarkClean()
	}
	s.flashSuccessLocked(successMsg)
	s.mu.Unlock()

	if fromBuffer && s.drafts != nil {
		if err := s.drafts.DeleteDraft(ctx, projectID); err != nil {
			s.logger.Printf("delete draft %s: %v", projectID, err)
		}
	}
	s.record(ctx, "project.saved", projectID, domain.KindProject, projectID, "")
	return nil
}

// refreshInBackground reloads the request set and re-runs reconciliation so
// request-count badges elsewhere in the view catch up, without blocking the
// action that triggered it.
func (s *Session) refreshInBackground(subject string) {
	// Load replaces the whole working set, so a session watching several
	// subject domains reloads them all; the triggering project's domain is
	// only a fallback when none are configured.
	domains := s.subjectDomains
	if len(domains) == 0 && subject != "" {
		domains = []string{subject}
	}
	go func() {
		s.store.Load(context.Background(), domains)
		s.mu.Lock()
		s.reannotateLocked()
		s.mu.Unlock()
	}()
}

func (s *Session) findListedLocked(projectID string) *domain.AnnotatedProject {
	for i := range s.projects {
		if s.projects[i].ID == projectID {
			return &s.projects[i]
		}
	}
	return nil
}

func (s *Session) removeListedLocked(projectID string) {
	for i := range s.projects {
		if s.projects[i].ID == projectID {
			s.projects = append(s.projects[:i], s.projects[i+1:]...)
			return
		}
	}
}

// actionMessage keeps the backend's own words for reported failures and a
// generic line for transport errors.
func actionMessage(err error) string {
	var ae *remote.ActionError
	if errors.As(err, &ae) {
		return ae.Error()
	}
	return "could not reach the backend; nothing was changed"
}
