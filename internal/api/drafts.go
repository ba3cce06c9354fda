package api

import (
	"context"
	"sync"
	"time"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/apperr"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/workflow"
)

// DraftStore keeps drafts in memory between maker requests. Drafts are never
// persisted; idle ones are dropped by Sweep.
type DraftStore struct {
	mu     sync.RWMutex
	drafts map[string]*workflow.Draft
	ttl    time.Duration
	now    func() time.Time
}

func NewDraftStore(ttl time.Duration) *DraftStore {
	return &DraftStore{
		drafts: make(map[string]*workflow.Draft),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *DraftStore) Put(d *workflow.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[d.ID()] = d
}

// Get returns the draft only to its owner.
func (s *DraftStore) Get(ownerID, id string) (*workflow.Draft, error) {
	s.mu.RLock()
	d, ok := s.drafts[id]
	s.mu.RUnlock()

	if !ok || d.OwnerID() != ownerID {
		return nil, apperr.Newf(apperr.CodeNotFound, "get draft", "draft %q not found", id)
	}
	return d, nil
}

func (s *DraftStore) Delete(ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok || d.OwnerID() != ownerID {
		return apperr.Newf(apperr.CodeNotFound, "delete draft", "draft %q not found", id)
	}
	delete(s.drafts, id)
	return nil
}

func (s *DraftStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}

// Sweep drops drafts untouched for longer than the TTL and reports how many
// were removed.
func (s *DraftStore) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, d := range s.drafts {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if d.UpdatedAt().Before(cutoff) {
			delete(s.drafts, id)
			removed++
		}
	}
	return removed, nil
}
