package requests

import (
	"context"
	"log"
	"sync"

	"reviewdesk/internal/domain"
)

// Fetcher is the slice of the backend boundary the store needs.
type Fetcher interface {
	DeletionRequests(ctx context.Context, subjectDomain string) ([]domain.DeletionRequest, error)
}

// Store holds the current working set of pending deletion requests.
type Store struct {
	fetcher Fetcher
	logger  *log.Logger

	mu      sync.Mutex
	current []domain.DeletionRequest
	// settled holds ids removed locally after an approve/reject so a stale
	// fetch that still carries them cannot resurrect a settled request.
	settled map[string]bool
}

func NewStore(f Fetcher, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{fetcher: f, logger: logger, settled: make(map[string]bool)}
}

// Load fans out one fetch per unique, non-empty subject domain in parallel.
// A failed fetch contributes zero requests and is logged; partial results are
// preferable to blocking the whole view on one bad domain. The merged result
// is filtered to pending requests with known entity kinds, deduplicated by
// request id first-wins, and replaces the previous working set.
func (s *Store) Load(ctx context.Context, subjectDomains []string) []domain.DeletionRequest {
	domains := uniqueNonEmpty(subjectDomains)
	results := make([][]domain.DeletionRequest, len(domains))
	var wg sync.WaitGroup
	for i, d := range domains {
		wg.Add(1)
		go func(i int, d string) {
			defer wg.Done()
			reqs, err := s.fetcher.DeletionRequests(ctx, d)
			if err != nil {
				s.logger.Printf("deletion requests for %s: %v", d, err)
				return
			}
			results[i] = reqs
		}(i, d)
	}
	wg.Wait()

	// Merge in input order so dedup is deterministic regardless of which
	// fetch finished first.
	var merged []domain.DeletionRequest
	for _, reqs := range results {
		merged = append(merged, reqs...)
	}
	cleaned := Normalize(merged)

	s.mu.Lock()
	cleaned = s.dropSettledLocked(cleaned)
	s.current = cleaned
	s.mu.Unlock()
	return copyRequests(cleaned)
}

// dropSettledLocked filters locally settled ids out of a fresh fetch, and
// forgets tombstones the backend has caught up on.
func (s *Store) dropSettledLocked(reqs []domain.DeletionRequest) []domain.DeletionRequest {
	if len(s.settled) == 0 {
		return reqs
	}
	fetched := make(map[string]bool, len(reqs))
	out := reqs[:0]
	for _, r := range reqs {
		fetched[r.ID] = true
		if s.settled[r.ID] {
			continue
		}
		out = append(out, r)
	}
	for id := range s.settled {
		if !fetched[id] {
			delete(s.settled, id)
		}
	}
	return out
}

// Normalize filters to actionable requests and dedups by request id,
// keeping the first occurrence.
func Normalize(reqs []domain.DeletionRequest) []domain.DeletionRequest {
	seen := make(map[string]bool, len(reqs))
	out := make([]domain.DeletionRequest, 0, len(reqs))
	for _, r := range reqs {
		if r.Status != domain.RequestStatusPending || !domain.KnownKind(r.EntityType) {
			continue
		}
		if r.ID == "" || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

// Remove drops a single settled request from the working set so the view
// stops showing it without waiting for a full reload.
func (s *Store) Remove(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settled[requestID] = true
	for i, r := range s.current {
		if r.ID == requestID {
			s.current = append(s.current[:i], s.current[i+1:]...)
			return
		}
	}
}

// Current returns a copy of the working set.
func (s *Store) Current() []domain.DeletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRequests(s.current)
}

// ReplaceAll swaps the working set wholesale after normalizing.
func (s *Store) ReplaceAll(reqs []domain.DeletionRequest) {
	cleaned := Normalize(reqs)
	s.mu.Lock()
	s.current = cleaned
	s.mu.Unlock()
}

func uniqueNonEmpty(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, d := range in {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

func copyRequests(in []domain.DeletionRequest) []domain.DeletionRequest {
	out := make([]domain.DeletionRequest, len(in))
	copy(out, in)
	return out
}
