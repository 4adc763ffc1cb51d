package review_test

import (
	"testing"

	"reviewdesk/internal/domain"
	"reviewdesk/internal/review"
)

func bufferProject() domain.AnnotatedProject {
	return domain.AnnotatedProject{
		Project: domain.Project{
			ID:      "p1",
			OwnerID: "student-1",
			Title:   "Volcano Model",
			Status:  domain.StatusPending,
			Stages: []domain.Stage{
				{
					ID:    "s1",
					Order: 1,
					Title: "Research",
					Tasks: []domain.Task{
						{ID: "t1", Title: "Read sources"},
						{ID: "t2", Title: "Take notes"},
					},
				},
			},
		},
		DeletionRequestDetails: []domain.RequestDetail{},
	}
}

func TestBufferIsolatesEdits(t *testing.T) {
	src := bufferProject()
	b := review.NewBuffer(src)

	if err := b.Update("title", "New Title"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if b.Project().Title != "New Title" {
		t.Fatalf("buffer title = %q", b.Project().Title)
	}
	if src.Title != "Volcano Model" {
		t.Fatalf("source project was mutated")
	}
	if !b.Dirty() {
		t.Fatalf("edit must mark the buffer dirty")
	}
}

func TestBufferNestedPaths(t *testing.T) {
	b := review.NewBuffer(bufferProject())

	if err := b.Update("stages[0].tasks[1].title", "Rewrite notes"); err != nil {
		t.Fatalf("task title: %v", err)
	}
	if err := b.Update("stages[0].tasks[1].status", domain.TaskStatusCompleted); err != nil {
		t.Fatalf("task status: %v", err)
	}
	if err := b.Update("stages[0].gate.completed", true); err != nil {
		t.Fatalf("gate: %v", err)
	}
	p := b.Project()
	task := p.Stages[0].Tasks[1]
	if task.Title != "Rewrite notes" || task.Status != domain.TaskStatusCompleted {
		t.Fatalf("task = %+v", task)
	}
	if !p.Stages[0].Gate.Completed {
		t.Fatalf("gate not completed")
	}
	// Untouched siblings survive.
	if p.Stages[0].Tasks[0].Title != "Read sources" {
		t.Fatalf("sibling task mutated: %+v", p.Stages[0].Tasks[0])
	}
}

func TestBufferCreatesIntermediateContainers(t *testing.T) {
	b := review.NewBuffer(bufferProject())
	if err := b.Update("stages[0].gate.payload.rubric", "level-3"); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got := b.Project().Stages[0].Gate.Payload["rubric"]; got != "level-3" {
		t.Fatalf("payload rubric = %v", got)
	}
}

func TestBufferTypeMismatchRejectsWholeUpdate(t *testing.T) {
	b := review.NewBuffer(bufferProject())
	if err := b.Update("title", 42); err == nil {
		t.Fatalf("numeric title must be rejected")
	}
	if b.Project().Title != "Volcano Model" {
		t.Fatalf("failed update leaked: %q", b.Project().Title)
	}
	if b.Dirty() {
		t.Fatalf("failed update must not dirty the buffer")
	}
}

func TestBufferMalformedPaths(t *testing.T) {
	b := review.NewBuffer(bufferProject())
	for _, path := range []string{"", "stages[x].title", "stages[0.title", ".title", "stages[-1].title"} {
		if err := b.Update(path, "v"); err == nil {
			t.Fatalf("path %q should be rejected", path)
		}
	}
}

func TestBufferReannotatePreservesEditsAndDirty(t *testing.T) {
	b := review.NewBuffer(bufferProject())
	if err := b.Update("stages[0].tasks[0].title", "Edited"); err != nil {
		t.Fatalf("update: %v", err)
	}
	reqs := []domain.DeletionRequest{{
		ID: "r1", EntityType: domain.KindTask, ProjectID: "p1",
		StageID: "s1", TaskID: "t2", Status: domain.RequestStatusPending,
	}}
	b.Reannotate(reqs)

	p := b.Project()
	if p.Stages[0].Tasks[0].Title != "Edited" {
		t.Fatalf("edit lost across reannotation")
	}
	if !p.Stages[0].Tasks[1].PendingDeletion() {
		t.Fatalf("annotation not applied")
	}
	if !b.Dirty() {
		t.Fatalf("reannotation must not clear the dirty flag")
	}
}

func TestBufferRestore(t *testing.T) {
	b := review.NewBuffer(bufferProject())
	draft := bufferProject()
	draft.Title = "Draft Title"
	b.Restore(draft, true)

	if b.Project().Title != "Draft Title" || !b.Dirty() {
		t.Fatalf("restore: title=%q dirty=%v", b.Project().Title, b.Dirty())
	}
	b.MarkClean()
	if b.Dirty() {
		t.Fatalf("mark clean failed")
	}
}

func TestBufferRejectsUnknownFieldPaths(t *testing.T) {
	b := review.NewBuffer(bufferProject())
	for _, path := range []string{"stagez[0].title", "titl", "stages[0].tasks[0].titel"} {
		if err := b.Update(path, "v"); err == nil {
			t.Fatalf("path %q should be rejected", path)
		}
	}
	if b.Dirty() {
		t.Fatalf("rejected update must not dirty the buffer")
	}
	if b.Project().Title != "Volcano Model" {
		t.Fatalf("rejected update leaked: %q", b.Project().Title)
	}
}

func TestBufferAcceptsEmptyValueOnElidedField(t *testing.T) {
	b := review.NewBuffer(bufferProject())
	if err := b.Update("description", ""); err != nil {
		t.Fatalf("clearing description: %v", err)
	}
	if !b.Dirty() {
		t.Fatalf("clearing a field is still an edit")
	}
}
