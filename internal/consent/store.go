package consent

import (
	"sync"
	"time"

	"winbridge/internal/models"
)

// Store holds outstanding consent requests keyed by request id.
// All resolution goes through Resolve so the author check and removal happen atomically.
type Store struct {
	mu       sync.Mutex
	pending  map[string]models.PendingApproval
	reserved map[string]struct{}
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		pending:  make(map[string]models.PendingApproval),
		reserved: make(map[string]struct{}),
	}
}

// Reserve claims requestID while its prompt is being delivered.
// It fails if the id is live or already reserved. A reserved id is not resolvable until Put.
func (s *Store) Reserve(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pending[requestID]; exists {
		return false
	}
	if _, exists := s.reserved[requestID]; exists {
		return false
	}
	s.reserved[requestID] = struct{}{}
	return true
}

// Release drops a reservation that will not be registered
func (s *Store) Release(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, requestID)
}

// Put registers rec and clears its reservation. It returns false and leaves the existing record
// in place if one is live for the same id.
func (s *Store) Put(rec models.PendingApproval) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, rec.RequestID)
	if _, exists := s.pending[rec.RequestID]; exists {
		return false
	}
	s.pending[rec.RequestID] = rec
	return true
}

// Get returns the live record for requestID
func (s *Store) Get(requestID string) (models.PendingApproval, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.pending[requestID]
	return rec, ok
}

// Contains reports whether a live record exists for requestID
func (s *Store) Contains(requestID string) bool {
	_, ok := s.Get(requestID)
	return ok
}

// Remove deletes the record for requestID and reports whether one existed
func (s *Store) Remove(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[requestID]; !ok {
		return false
	}
	delete(s.pending, requestID)
	return true
}

// Len returns the number of live records
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Resolve applies decision on behalf of actingUserID.
// A missing record yields NotFound; a different actor yields Unauthorized and the record stays.
// Otherwise the record is removed and returned with Approved or Denied, so a second call sees NotFound.
func (s *Store) Resolve(requestID, actingUserID string, decision models.Decision) (models.Resolution, models.PendingApproval) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.pending[requestID]
	if !ok {
		return models.ResolutionNotFound, models.PendingApproval{}
	}
	if rec.AuthorID != actingUserID {
		return models.ResolutionUnauthorized, models.PendingApproval{}
	}

	delete(s.pending, requestID)
	if decision == models.DecisionApprove {
		return models.ResolutionApproved, rec
	}
	return models.ResolutionDenied, rec
}

// Expire removes and returns records created at or before now minus ttl. A non-positive ttl expires nothing.
func (s *Store) Expire(now time.Time, ttl time.Duration) []models.PendingApproval {
	if ttl <= 0 {
		return nil
	}
	cutoff := now.Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []models.PendingApproval
	for id, rec := range s.pending {
		if !rec.CreatedAt.After(cutoff) {
			expired = append(expired, rec)
			delete(s.pending, id)
		}
	}
	return expired
}
