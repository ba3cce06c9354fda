package repo

import (
	"context"
	"time"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/model"
)

// StatusFields are the values recorded together with a status change.
type StatusFields struct {
	DecidedAt       *time.Time
	RejectionReason *string
}

// SubmissionRepository is the only owner of persisted submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, s *model.Submission) error
	Get(ctx context.Context, id string) (*model.Submission, error)
	// ListByStatus returns submissions oldest first. An empty status lists all.
	ListByStatus(ctx context.Context, status model.Status) ([]model.Submission, error)
	// ListByOwner returns one maker's submissions, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]model.Submission, error)
	// UpdateStatus moves id from `from` to `to` only if its current status is
	// still `from`. A racing second caller gets apperr.ErrInvalidState.
	UpdateStatus(ctx context.Context, id string, from, to model.Status, fields StatusFields) (*model.Submission, error)
}
