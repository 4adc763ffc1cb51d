// Package reconcile merges deletion requests onto project trees. The merge is
// a pure function: input projects are deep-cloned, every annotation field is
// recomputed from scratch, and the result is safe to feed back in. Calling it
// twice with the same request set yields the same output.
package reconcile

import (
	"log"

	"reviewdesk/internal/domain"
)

// Logger receives data-anomaly notes (duplicate project-level requests).
// Anomalies are logged, never fatal.
var Logger = log.Default()

// Reconcile annotates every project against the given request set.
func Reconcile(projects []domain.Project, reqs []domain.DeletionRequest) []domain.AnnotatedProject {
	out := make([]domain.AnnotatedProject, 0, len(projects))
	if len(reqs) == 0 {
		// Fast path: no pending requests must still clear stale annotations.
		for _, p := range projects {
			out = append(out, cleared(p))
		}
		return out
	}

	byProject := make(map[string][]domain.DeletionRequest, len(reqs))
	for _, r := range reqs {
		byProject[r.ProjectID] = append(byProject[r.ProjectID], r)
	}
	for _, p := range projects {
		out = append(out, Project(p, byProject[p.ID]))
	}
	return out
}

// Project annotates a single project against its own requests. Requests for
// other projects are ignored, so callers may pass an unfiltered set.
func Project(p domain.Project, reqs []domain.DeletionRequest) domain.AnnotatedProject {
	own := make([]domain.DeletionRequest, 0, len(reqs))
	seen := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		if r.ProjectID != p.ID || r.ID == "" || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		own = append(own, r)
	}
	if len(own) == 0 {
		return cleared(p)
	}

	cp := p.Clone()

	var projectLevel, entityLevel []domain.DeletionRequest
	for _, r := range own {
		if r.EntityType == domain.KindProject {
			projectLevel = append(projectLevel, r)
		} else {
			entityLevel = append(entityLevel, r)
		}
	}

	if len(projectLevel) > 0 {
		if len(projectLevel) > 1 {
			Logger.Printf("project %s has %d project-level deletion requests; keeping %s",
				p.ID, len(projectLevel), projectLevel[0].ID)
		}
		cp.SetDeletionRequest(projectLevel[0])
	} else {
		cp.ClearDeletionRequest()
	}

	// First-wins lookup maps for the tree walk.
	stageReq := make(map[string]domain.DeletionRequest)
	taskReq := make(map[string]domain.DeletionRequest)
	for _, r := range entityLevel {
		switch r.EntityType {
		case domain.KindStage:
			if _, ok := stageReq[r.StageID]; !ok {
				stageReq[r.StageID] = r
			}
		case domain.KindTask:
			key := taskKey(r.StageID, r.TaskID)
			if _, ok := taskReq[key]; !ok {
				taskReq[key] = r
			}
		}
	}

	// Walk every stage and task: clear first, then flag on match, and record
	// the entity title for the details panel.
	titles := make(map[string]string, len(own))
	for si := range cp.Stages {
		st := &cp.Stages[si]
		st.ClearDeletionRequest()
		if r, ok := stageReq[st.ID]; ok {
			st.SetDeletionRequest(r)
			titles[r.ID] = st.Title
		}
		for ti := range st.Tasks {
			t := &st.Tasks[ti]
			t.ClearDeletionRequest()
			if r, ok := taskReq[taskKey(st.ID, t.ID)]; ok {
				t.SetDeletionRequest(r)
				titles[r.ID] = t.Title
			}
		}
	}
	for _, r := range projectLevel {
		titles[r.ID] = cp.Title
	}

	details := make([]domain.RequestDetail, 0, len(own))
	for _, r := range own {
		title := titles[r.ID]
		if title == "" {
			title = r.EntityTitle
		}
		details = append(details, domain.RequestDetail{
			RequestID:   r.ID,
			EntityType:  r.EntityType,
			EntityTitle: title,
			Reason:      r.Reason,
			Requester:   r.Requester,
			Timestamp:   r.Timestamp,
			StageID:     r.StageID,
			TaskID:      r.TaskID,
		})
	}

	return domain.AnnotatedProject{
		Project:                cp,
		HasDeletionRequests:    true,
		DeletionRequestCount:   len(own),
		DeletionRequestDetails: details,
	}
}

// Annotated re-runs the merge on an already-annotated project, e.g. the edit
// buffer after a request settles.
func Annotated(p domain.AnnotatedProject, reqs []domain.DeletionRequest) domain.AnnotatedProject {
	return Project(p.Project, reqs)
}

func cleared(p domain.Project) domain.AnnotatedProject {
	cp := p.Clone()
	cp.ClearDeletionRequest()
	for si := range cp.Stages {
		cp.Stages[si].ClearDeletionRequest()
		for ti := range cp.Stages[si].Tasks {
			cp.Stages[si].Tasks[ti].ClearDeletionRequest()
		}
	}
	return domain.AnnotatedProject{
		Project:                cp,
		HasDeletionRequests:    false,
		DeletionRequestCount:   0,
		DeletionRequestDetails: []domain.RequestDetail{},
	}
}

func taskKey(stageID, taskID string) string {
	return stageID + ":" + taskID
}
