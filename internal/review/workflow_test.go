package review_test

import (
	"errors"
	"testing"
	"time"

	"reviewdesk/internal/domain"
	"reviewdesk/internal/remote"
	"reviewdesk/internal/review"
)

func openWithRequests(t *testing.T, env testEnv, reqs ...domain.DeletionRequest) {
	t.Helper()
	for _, r := range reqs {
		env.addRequest(t, r)
	}
	if err := env.Session.LoadProjects(env.Ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := env.Session.Open(env.Ctx, "p1"); err != nil {
		t.Fatalf("open: %v", err)
	}
}

func TestApproveTaskDeletionRemovesTaskEverywhere(t *testing.T) {
	env := newTestEnv(t)
	openWithRequests(t, env, taskRequest("r1", "s1", "t2"))

	if err := env.Session.ApproveTaskDeletion(env.Ctx, "s1", "t2"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := env.Backend.approved; len(got) != 1 || got[0] != "r1" {
		t.Fatalf("backend approvals = %v", got)
	}

	buf, _, ok := env.Session.BufferSnapshot()
	if !ok {
		t.Fatalf("buffer closed")
	}
	if len(buf.Stages[0].Tasks) != 1 || buf.Stages[0].Tasks[0].ID != "t1" {
		t.Fatalf("buffer tasks = %+v", buf.Stages[0].Tasks)
	}
	detail, ok := env.Session.Detail()
	if !ok || len(detail.Stages[0].Tasks) != 1 {
		t.Fatalf("detail not updated")
	}
	if cur := env.Session.Requests(); len(cur) != 0 {
		t.Fatalf("request still in working set: %+v", cur)
	}
	if buf.HasDeletionRequests {
		t.Fatalf("summary not cleared after settlement")
	}
	success, _ := env.Session.Messages()
	if success == "" {
		t.Fatalf("expected a success message")
	}
}

func TestApproveStageDeletionRemovesSubtree(t *testing.T) {
	env := newTestEnv(t)
	req := domain.DeletionRequest{
		ID: "r1", EntityType: domain.KindStage, ProjectID: "p1",
		StageID: "s1", Status: domain.RequestStatusPending,
	}
	openWithRequests(t, env, req)

	if err := env.Session.ApproveStageDeletion(env.Ctx, "s1"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	buf, _, _ := env.Session.BufferSnapshot()
	if len(buf.Stages) != 1 || buf.Stages[0].ID != "s2" {
		t.Fatalf("stages = %+v", buf.Stages)
	}
}

func TestApproveProjectDeletionClosesReview(t *testing.T) {
	env := newTestEnv(t)
	req := domain.DeletionRequest{
		ID: "r1", EntityType: domain.KindProject, ProjectID: "p1",
		Status: domain.RequestStatusPending,
	}
	openWithRequests(t, env, req)

	if err := env.Session.ApproveProjectDeletion(env.Ctx); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, _, ok := env.Session.BufferSnapshot(); ok {
		t.Fatalf("review still open")
	}
	if projects := env.Session.Projects(); len(projects) != 0 {
		t.Fatalf("project still listed: %+v", projects)
	}
	if env.Drafts.has("p1") {
		t.Fatalf("draft survived project deletion")
	}
}

func TestApproveFailureLeavesEverythingInPlace(t *testing.T) {
	env := newTestEnv(t)
	openWithRequests(t, env, taskRequest("r1", "s1", "t2"))
	env.Backend.approveErr = &remote.ActionError{Message: "request already settled"}

	err := env.Session.ApproveTaskDeletion(env.Ctx, "s1", "t2")
	if err == nil {
		t.Fatalf("expected an error")
	}
	buf, _, _ := env.Session.BufferSnapshot()
	if len(buf.Stages[0].Tasks) != 2 {
		t.Fatalf("task removed despite failure")
	}
	if !buf.Stages[0].Tasks[1].PendingDeletion() {
		t.Fatalf("annotation dropped despite failure")
	}
	if cur := env.Session.Requests(); len(cur) != 1 {
		t.Fatalf("request dropped despite failure")
	}
	_, errMsg := env.Session.Messages()
	if errMsg != "request already settled" {
		t.Fatalf("error message = %q", errMsg)
	}
	if env.Session.Saving() {
		t.Fatalf("saving flag stuck")
	}
}

func TestTransportFailureUsesGenericMessage(t *testing.T) {
	env := newTestEnv(t)
	openWithRequests(t, env, taskRequest("r1", "s1", "t2"))
	env.Backend.approveErr = &remote.APIError{StatusCode: 502, Body: "bad gateway"}

	if err := env.Session.ApproveTaskDeletion(env.Ctx, "s1", "t2"); err == nil {
		t.Fatalf("expected an error")
	}
	_, errMsg := env.Session.Messages()
	if errMsg != "could not reach the backend; nothing was changed" {
		t.Fatalf("error message = %q", errMsg)
	}
}

func TestRejectTaskDeletionKeepsTaskClearsFlag(t *testing.T) {
	env := newTestEnv(t)
	openWithRequests(t, env, taskRequest("r1", "s1", "t2"))

	if err := env.Session.RejectTaskDeletion(env.Ctx, "s1", "t2"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got := env.Backend.rejected; len(got) != 1 || got[0] != "r1" {
		t.Fatalf("backend rejections = %v", got)
	}
	buf, _, _ := env.Session.BufferSnapshot()
	if len(buf.Stages[0].Tasks) != 2 {
		t.Fatalf("rejected task disappeared")
	}
	if buf.Stages[0].Tasks[1].PendingDeletion() {
		t.Fatalf("annotation survived rejection")
	}
	if buf.HasDeletionRequests {
		t.Fatalf("summary survived rejection")
	}

	// A stale reload that still carries the settled id must not bring the
	// flag back.
	env.Session.LoadProjects(env.Ctx)
	if err := env.Session.Open(env.Ctx, "p1"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	buf, _, _ = env.Session.BufferSnapshot()
	if buf.Stages[0].Tasks[1].PendingDeletion() {
		t.Fatalf("settled request resurrected by stale reload")
	}
}

func TestRejectProjectDeletionKeepsProject(t *testing.T) {
	env := newTestEnv(t)
	req := domain.DeletionRequest{
		ID: "r1", EntityType: domain.KindProject, ProjectID: "p1",
		Status: domain.RequestStatusPending,
	}
	openWithRequests(t, env, req)

	if err := env.Session.RejectProjectDeletion(env.Ctx); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, _, ok := env.Session.BufferSnapshot(); !ok {
		t.Fatalf("review closed by a rejection")
	}
	projects := env.Session.Projects()
	if len(projects) != 1 || projects[0].PendingDeletion() {
		t.Fatalf("projects = %+v", projects)
	}
}

func TestSavingGateBlocksConcurrentActions(t *testing.T) {
	env := newTestEnv(t)
	openWithRequests(t, env, taskRequest("r1", "s1", "t2"), taskRequest("r2", "s1", "t1"))

	env.Backend.block = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- env.Session.ApproveTaskDeletion(env.Ctx, "s1", "t2")
	}()
	for !env.Session.Saving() {
		time.Sleep(time.Millisecond)
	}

	if err := env.Session.ApproveTaskDeletion(env.Ctx, "s1", "t1"); !errors.Is(err, review.ErrSaving) {
		t.Fatalf("second action: %v", err)
	}
	if err := env.Session.RejectStageDeletion(env.Ctx, "s1"); !errors.Is(err, review.ErrSaving) {
		t.Fatalf("reject during save: %v", err)
	}

	close(env.Backend.block)
	if err := <-done; err != nil {
		t.Fatalf("first action: %v", err)
	}
	if env.Session.Saving() {
		t.Fatalf("saving flag stuck after completion")
	}
}

func TestSaveWithoutIdentityFailsBeforeBackend(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.projects["science"][0].OwnerID = ""
	env.Backend.details["p1"] = domain.Project{} // never reached
	if err := env.Session.LoadProjects(env.Ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	err := env.Session.ApproveProject(env.Ctx, "p1")
	if !errors.Is(err, review.ErrMissingIdentity) {
		t.Fatalf("got %v", err)
	}
	if len(env.Backend.saved) != 0 {
		t.Fatalf("backend was called without identifiers")
	}
}

func TestApproveProjectFromList(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Session.LoadProjects(env.Ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := env.Session.ApproveProject(env.Ctx, "p1"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if len(env.Backend.savedAs) != 1 || env.Backend.savedAs[0] != domain.StatusApproved {
		t.Fatalf("saved statuses = %v", env.Backend.savedAs)
	}
	projects := env.Session.Projects()
	if projects[0].Status != domain.StatusApproved {
		t.Fatalf("listed status = %q", projects[0].Status)
	}
}

func TestSavePushesBufferEditsAndClearsDraft(t *testing.T) {
	env := newTestEnv(t)
	openWithRequests(t, env)
	if err := env.Session.Edit(env.Ctx, "stages[0].tasks[0].title", "Edited"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !env.Drafts.has("p1") {
		t.Fatalf("draft missing before save")
	}
	if err := env.Session.Save(env.Ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(env.Backend.saved) != 1 {
		t.Fatalf("saves = %d", len(env.Backend.saved))
	}
	if env.Backend.saved[0].Stages[0].Tasks[0].Title != "Edited" {
		t.Fatalf("edit not in payload: %+v", env.Backend.saved[0].Stages[0].Tasks[0])
	}
	// Save keeps the stored status.
	if env.Backend.savedAs[0] != domain.StatusPending {
		t.Fatalf("status changed on plain save: %q", env.Backend.savedAs[0])
	}
	if _, dirty, _ := env.Session.BufferSnapshot(); dirty {
		t.Fatalf("buffer still dirty after save")
	}
	if env.Drafts.has("p1") {
		t.Fatalf("draft survived save")
	}
}

func TestRequestRevisionSetsStatus(t *testing.T) {
	env := newTestEnv(t)
	openWithRequests(t, env)
	if err := env.Session.RequestRevision(env.Ctx, "p1"); err != nil {
		t.Fatalf("request revision: %v", err)
	}
	if env.Backend.savedAs[0] != domain.StatusPendingRevision {
		t.Fatalf("status = %q", env.Backend.savedAs[0])
	}
	buf, _, _ := env.Session.BufferSnapshot()
	if buf.Status != domain.StatusPendingRevision {
		t.Fatalf("buffer status = %q", buf.Status)
	}
}

func TestSaveFailureKeepsBufferDirty(t *testing.T) {
	env := newTestEnv(t)
	openWithRequests(t, env)
	if err := env.Session.Edit(env.Ctx, "title", "Edited"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	env.Backend.saveErr = &remote.ActionError{Message: "version conflict"}

	if err := env.Session.Save(env.Ctx); err == nil {
		t.Fatalf("expected an error")
	}
	buf, dirty, _ := env.Session.BufferSnapshot()
	if !dirty || buf.Title != "Edited" {
		t.Fatalf("failed save lost edits: dirty=%v title=%q", dirty, buf.Title)
	}
	if !env.Drafts.has("p1") {
		t.Fatalf("draft dropped on failed save")
	}
	_, errMsg := env.Session.Messages()
	if errMsg != "version conflict" {
		t.Fatalf("error message = %q", errMsg)
	}
}

func TestActionsAreRecorded(t *testing.T) {
	env := newTestEnv(t)
	openWithRequests(t, env, taskRequest("r1", "s1", "t2"))
	if err := env.Session.RejectTaskDeletion(env.Ctx, "s1", "t2"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := env.Session.Save(env.Ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	env.Actions.mu.Lock()
	defer env.Actions.mu.Unlock()
	if len(env.Actions.types) != 2 || env.Actions.types[0] != "deletion.task.rejected" || env.Actions.types[1] != "project.saved" {
		t.Fatalf("recorded = %v", env.Actions.types)
	}
}
