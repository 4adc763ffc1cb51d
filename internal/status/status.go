// Package status derives the displayed status of projects, stages, and tasks
// from their stored fields plus reconciliation annotations.
package status

import "reviewdesk/internal/domain"

// ForProject applies the display precedence: a pending project-level deletion
// request forces "Pending"; otherwise an Approved/Completed project with any
// task in revision shows "Revision"; otherwise the stored status stands.
func ForProject(p domain.AnnotatedProject) string {
	if p.PendingDeletion() {
		return domain.StatusPending
	}
	if p.Status == domain.StatusApproved || p.Status == domain.StatusCompleted {
		if anyTaskInRevision(p.Project) {
			return domain.StatusRevision
		}
	}
	return p.Status
}

// ForStage shows the deletion marker over the stage's own fields.
func ForStage(s domain.Stage) string {
	if s.PendingDeletion() {
		return domain.StatusPendingDeletion
	}
	if s.Gate.Completed {
		return domain.StatusCompleted
	}
	return ""
}

// ForTask shows the deletion marker over the task's stored status.
func ForTask(t domain.Task) string {
	if t.PendingDeletion() {
		return domain.TaskStatusPendingDeletion
	}
	return t.Status
}

func anyTaskInRevision(p domain.Project) bool {
	for _, s := range p.Stages {
		for _, t := range s.Tasks {
			if t.Status == domain.TaskStatusRevision {
				return true
			}
		}
	}
	return false
}
