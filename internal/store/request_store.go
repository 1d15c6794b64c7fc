package store

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/minstrelbot/minstrel/custom_errors"
	"github.com/minstrelbot/minstrel/internal/state"
	"github.com/minstrelbot/minstrel/types"
)

// RequestStore holds accepted requests keyed by correlation id (the id of
// the originating post). It is the single in-memory source of truth for
// the checkpoint manager and the stale-payment recheck job. Correctness,
// not speed, is the contract: payment lookups scan linearly.
type RequestStore struct {
	mu        sync.Mutex
	requests  map[string]*types.StoredRequest
	staleness time.Duration
	retention time.Duration
	logger    *log.Logger
	now       func() time.Time
}

func NewRequestStore(staleness, retention time.Duration, logger *log.Logger) *RequestStore {
	return &RequestStore{
		requests:  make(map[string]*types.StoredRequest),
		staleness: staleness,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Store inserts a request record. A correlation id can be stored only once;
// each request owns exactly one payment.
func (s *RequestStore) Store(req *types.StoredRequest) error {
	if req == nil || req.CorrelationID == "" {
		return fmt.Errorf("request must have a correlation id")
	}
	if req.Payment == nil {
		return fmt.Errorf("request %s has no payment", req.CorrelationID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.CorrelationID]; exists {
		return fmt.Errorf("request %s already stored", req.CorrelationID)
	}
	s.requests[req.CorrelationID] = req
	return nil
}

// Get returns the request for a correlation id.
func (s *RequestStore) Get(correlationID string) (*types.StoredRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[correlationID]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", correlationID, custom_errors.ErrNotFound)
	}
	return req, nil
}

// UpdatePaymentStatus finds the request owning orderID by linear scan and
// updates its embedded payment in place.
func (s *RequestStore) UpdatePaymentStatus(orderID string, status state.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, req := range s.requests {
		if req.Payment.OrderID == orderID {
			req.Payment.Status = status
			return nil
		}
	}
	return fmt.Errorf("payment %s: %w", orderID, custom_errors.ErrNotFound)
}

// Expired returns requests whose payment is still pending past the
// staleness window, oldest first. Used to trigger re-verification.
func (s *RequestStore) Expired() []*types.StoredRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.staleness)
	var expired []*types.StoredRequest
	for _, req := range s.requests {
		if req.Payment.IsPending() && req.CreatedAt.Before(cutoff) {
			expired = append(expired, req)
		}
	}
	sortByAge(expired)
	return expired
}

// All returns every stored request, oldest first.
func (s *RequestStore) All() []*types.StoredRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.StoredRequest, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, req)
	}
	sortByAge(out)
	return out
}

// Cleanup purges requests older than the retention window regardless of
// payment status, to bound memory.
func (s *RequestStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.retention)
	removed := 0
	for id, req := range s.requests {
		if req.CreatedAt.Before(cutoff) {
			delete(s.requests, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Printf("purged %d requests older than %s", removed, s.retention)
	}
	return removed
}

// Len reports the number of stored requests.
func (s *RequestStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Snapshot order must be stable so identical state produces identical
// checkpoint bytes.
func sortByAge(reqs []*types.StoredRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].CorrelationID < reqs[j].CorrelationID
		}
		return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
	})
}
