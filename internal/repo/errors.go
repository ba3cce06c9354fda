package repo

import (
	"github.com/LeventeLantos/bulk-sms-approvals/internal/apperr"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/model"
)

func checkNew(s *model.Submission) error {
	if s == nil {
		return apperr.New(apperr.CodeInvalidInput, "create submission", "submission is nil")
	}
	if s.ID == "" {
		return apperr.New(apperr.CodeInvalidInput, "create submission", "submission id is required")
	}
	if s.Status != model.PendingApproval {
		return apperr.Newf(apperr.CodeInvalidState, "create submission", "new submissions must be %s, got %s", model.PendingApproval, s.Status)
	}
	if len(s.Contacts) == 0 {
		return apperr.New(apperr.CodeNoValidContact, "create submission", "submission has no contacts")
	}
	return nil
}

func notFound(op, id string) error {
	return apperr.Newf(apperr.CodeNotFound, op, "submission %q not found", id)
}

func staleStatus(id string, current, to model.Status) error {
	return apperr.Newf(apperr.CodeInvalidState, "update status",
		"submission %q is %s and cannot become %s", id, current, to)
}

func illegalTransition(id string, from, to model.Status) error {
	return apperr.Newf(apperr.CodeInvalidState, "update status",
		"illegal transition %s -> %s for submission %q", from, to, id)
}
