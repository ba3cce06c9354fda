package repo

import (
	"context"
	"slices"
	"sync"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/apperr"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/model"
)

// MemorySubmissionRepo keeps submissions in process memory. Used when no
// database is configured and in tests.
type MemorySubmissionRepo struct {
	mu    sync.RWMutex
	byID  map[string]*model.Submission
	order []string
}

func NewMemorySubmissionRepo() *MemorySubmissionRepo {
	return &MemorySubmissionRepo{byID: map[string]*model.Submission{}}
}

func (r *MemorySubmissionRepo) Create(ctx context.Context, s *model.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkNew(s); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[s.ID]; exists {
		return apperr.Newf(apperr.CodeInvalidState, "create submission", "submission %q already exists", s.ID)
	}
	r.byID[s.ID] = clone(s)
	r.order = append(r.order, s.ID)
	return nil
}

func (r *MemorySubmissionRepo) Get(ctx context.Context, id string) (*model.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, notFound("get submission", id)
	}
	return clone(s), nil
}

func (r *MemorySubmissionRepo) ListByStatus(ctx context.Context, status model.Status) ([]model.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []model.Submission{}
	for _, id := range r.order {
		s := r.byID[id]
		if status == "" || s.Status == status {
			out = append(out, *clone(s))
		}
	}
	return out, nil
}

func (r *MemorySubmissionRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []model.Submission{}
	for _, id := range slices.Backward(r.order) {
		s := r.byID[id]
		if s.OwnerID == ownerID {
			out = append(out, *clone(s))
		}
	}
	return out, nil
}

func (r *MemorySubmissionRepo) UpdateStatus(ctx context.Context, id string, from, to model.Status, fields StatusFields) (*model.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !model.CanTransition(from, to) {
		return nil, illegalTransition(id, from, to)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, notFound("update status", id)
	}
	if s.Status != from {
		return nil, staleStatus(id, s.Status, to)
	}

	s.Status = to
	if fields.DecidedAt != nil {
		at := fields.DecidedAt.UTC()
		s.DecidedAt = &at
	}
	if fields.RejectionReason != nil {
		reason := *fields.RejectionReason
		s.RejectionReason = &reason
	}
	return clone(s), nil
}

// clone copies s deeply enough that callers cannot mutate stored state.
func clone(s *model.Submission) *model.Submission {
	c := *s
	c.Contacts = slices.Clone(s.Contacts)
	for i := range c.Contacts {
		c.Contacts[i].Reasons = slices.Clone(c.Contacts[i].Reasons)
	}
	if s.DecidedAt != nil {
		at := *s.DecidedAt
		c.DecidedAt = &at
	}
	if s.RejectionReason != nil {
		reason := *s.RejectionReason
		c.RejectionReason = &reason
	}
	if s.ResubmitOf != nil {
		ref := *s.ResubmitOf
		c.ResubmitOf = &ref
	}
	return &c
}
