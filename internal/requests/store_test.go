package requests_test

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"reviewdesk/internal/domain"
	"reviewdesk/internal/requests"
)

type fakeFetcher struct {
	mu      sync.Mutex
	byDom   map[string][]domain.DeletionRequest
	errs    map[string]error
	fetched []string
}

func (f *fakeFetcher) DeletionRequests(ctx context.Context, subjectDomain string) ([]domain.DeletionRequest, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, subjectDomain)
	f.mu.Unlock()
	if err := f.errs[subjectDomain]; err != nil {
		return nil, err
	}
	return f.byDom[subjectDomain], nil
}

func pending(id string, kind domain.EntityKind) domain.DeletionRequest {
	return domain.DeletionRequest{ID: id, EntityType: kind, ProjectID: "p1", Status: domain.RequestStatusPending}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestLoadMergesDomainsInOrder(t *testing.T) {
	f := &fakeFetcher{byDom: map[string][]domain.DeletionRequest{
		"science": {pending("r1", domain.KindTask)},
		"maths":   {pending("r2", domain.KindStage)},
	}}
	s := requests.NewStore(f, quietLogger())

	got := s.Load(context.Background(), []string{"science", "maths"})
	if len(got) != 2 || got[0].ID != "r1" || got[1].ID != "r2" {
		t.Fatalf("merged = %+v", got)
	}
}

func TestLoadPartialFailureKeepsOtherDomains(t *testing.T) {
	f := &fakeFetcher{
		byDom: map[string][]domain.DeletionRequest{"maths": {pending("r2", domain.KindTask)}},
		errs:  map[string]error{"science": errors.New("boom")},
	}
	s := requests.NewStore(f, quietLogger())

	got := s.Load(context.Background(), []string{"science", "maths"})
	if len(got) != 1 || got[0].ID != "r2" {
		t.Fatalf("got = %+v", got)
	}
}

func TestLoadSkipsEmptyAndDuplicateDomains(t *testing.T) {
	f := &fakeFetcher{byDom: map[string][]domain.DeletionRequest{
		"science": {pending("r1", domain.KindTask)},
	}}
	s := requests.NewStore(f, quietLogger())

	got := s.Load(context.Background(), []string{"", "science", "science"})
	if len(f.fetched) != 1 {
		t.Fatalf("fetched %v, want one call", f.fetched)
	}
	if len(got) != 1 {
		t.Fatalf("got = %+v", got)
	}
}

func TestNormalizeFiltersAndDedups(t *testing.T) {
	settled := pending("r2", domain.KindTask)
	settled.Status = "approved"
	unknown := pending("r3", domain.EntityKind("folder"))
	in := []domain.DeletionRequest{
		pending("r1", domain.KindTask),
		settled,
		unknown,
		{Status: domain.RequestStatusPending, EntityType: domain.KindTask}, // no id
		pending("r1", domain.KindTask),
	}
	got := requests.Normalize(in)
	if len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("got = %+v", got)
	}
}

func TestRemoveTombstonesAgainstStaleReload(t *testing.T) {
	f := &fakeFetcher{byDom: map[string][]domain.DeletionRequest{
		"science": {pending("r1", domain.KindTask), pending("r2", domain.KindStage)},
	}}
	s := requests.NewStore(f, quietLogger())
	s.Load(context.Background(), []string{"science"})

	s.Remove("r1")
	if cur := s.Current(); len(cur) != 1 || cur[0].ID != "r2" {
		t.Fatalf("after remove: %+v", cur)
	}

	// The backend cache still returns r1; the local settlement wins.
	got := s.Load(context.Background(), []string{"science"})
	if len(got) != 1 || got[0].ID != "r2" {
		t.Fatalf("stale reload resurrected r1: %+v", got)
	}

	// Once the backend stops returning r1 the tombstone is forgotten, so a
	// genuinely new request reusing nothing is unaffected.
	f.byDom["science"] = []domain.DeletionRequest{pending("r2", domain.KindStage)}
	s.Load(context.Background(), []string{"science"})
	f.byDom["science"] = []domain.DeletionRequest{pending("r1", domain.KindTask)}
	got = s.Load(context.Background(), []string{"science"})
	if len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("forgotten tombstone still blocks r1: %+v", got)
	}
}

func TestCurrentReturnsCopy(t *testing.T) {
	f := &fakeFetcher{byDom: map[string][]domain.DeletionRequest{
		"science": {pending("r1", domain.KindTask)},
	}}
	s := requests.NewStore(f, quietLogger())
	s.Load(context.Background(), []string{"science"})

	cur := s.Current()
	cur[0].ID = "mutated"
	if again := s.Current(); again[0].ID != "r1" {
		t.Fatalf("internal state leaked: %+v", again)
	}
}
