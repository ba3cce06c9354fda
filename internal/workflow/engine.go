// Package workflow runs the maker pipeline (admit, scan, parse, test, submit)
// and the checker decisions (approve, reject) over a SubmissionRepository.
package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/apperr"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/contacts"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/model"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/repo"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/tabular"
)

const (
	MaxFileSize        = 5 << 20
	DefaultTestMessage = "This is a test message from Nishkaiv Bulk SMs. Please confirm receipt."
)

var allowedExtensions = []string{".csv", ".xlsx", ".xls"}

type Engine struct {
	repo    repo.SubmissionRepository
	scanner Scanner
	sender  MessageSender
	timeout time.Duration

	now       func() time.Time
	newID     func() string
	readerFor ReaderFor
	log       *slog.Logger
}

func New(r repo.SubmissionRepository, scanner Scanner, sender MessageSender, timeout time.Duration) *Engine {
	return &Engine{
		repo:      r,
		scanner:   scanner,
		sender:    sender,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID:     uuid.NewString,
		readerFor: tabular.ForFile,
		log:       slog.Default(),
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) WithIDs(newID func() string) *Engine {
	e.newID = newID
	return e
}

func (e *Engine) WithReaderFor(fn ReaderFor) *Engine {
	e.readerFor = fn
	return e
}

func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	e.log = l
	return e
}

// call runs fn under the external timeout. An expired deadline becomes a
// timeout error; other failures are reported as collaborator errors.
func call[T any](ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	v, err := fn(ctx)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return v, apperr.Wrap(apperr.CodeTimeout, op, fmt.Sprintf("no answer within %s", timeout), err)
	}
	if _, ok := apperr.As(err); ok {
		return v, err
	}
	return v, apperr.Wrap(apperr.CodeCollaborator, op, "collaborator call failed", err)
}

// Admit checks the uploaded file and opens a draft for it.
func (e *Engine) Admit(ownerID string, f Upload) (*Draft, error) {
	const op = "admit"

	if strings.TrimSpace(ownerID) == "" {
		return nil, apperr.New(apperr.CodeInvalidInput, op, "owner id is required")
	}
	ext := strings.ToLower(filepath.Ext(f.Name))
	if !slices.Contains(allowedExtensions, ext) {
		return nil, apperr.Newf(apperr.CodeUnsupportedFileType, op, "%q is not a .csv, .xlsx or .xls file", f.Name)
	}
	switch size := len(f.Data); {
	case size == 0:
		return nil, apperr.Newf(apperr.CodeEmptyFile, op, "%q is empty", f.Name)
	case size > MaxFileSize:
		return nil, apperr.Newf(apperr.CodeFileTooLarge, op, "%q is %d bytes, the limit is %d", f.Name, size, MaxFileSize)
	}

	now := e.now()
	d := &Draft{
		id:        e.newID(),
		ownerID:   ownerID,
		file:      Upload{Name: f.Name, Data: slices.Clone(f.Data)},
		stage:     StageAdmitted,
		createdAt: now,
		updatedAt: now,
	}
	e.log.Info("draft admitted", "draft_id", d.id, "owner_id", ownerID, "file", f.Name, "size", len(f.Data))
	return d, nil
}

// Scan asks the scanner about the draft's file. An unclean verdict halts the
// draft for good; a scanner failure leaves it admitted so the scan can be retried.
func (e *Engine) Scan(ctx context.Context, d *Draft) (ScanVerdict, error) {
	const op = "scan"

	if err := d.begin(op, StageAdmitted); err != nil {
		return ScanVerdict{}, err
	}

	verdict, err := call(ctx, e.timeout, op, func(ctx context.Context) (ScanVerdict, error) {
		return e.scanner.Scan(ctx, d.file.Name, d.file.Data)
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false

	if err != nil {
		e.log.Warn("scan failed", "draft_id", d.id, "err", err)
		return ScanVerdict{}, err
	}

	d.verdict = &verdict
	d.updatedAt = e.now()
	if !verdict.Clean {
		d.stage = StageHalted
		e.log.Warn("threat detected", "draft_id", d.id, "detail", verdict.Detail)
		msg := "file was flagged by the threat scanner"
		if verdict.Detail != "" {
			msg += ": " + verdict.Detail
		}
		return verdict, apperr.New(apperr.CodeThreatDetected, op, msg)
	}
	d.stage = StageScanned
	return verdict, nil
}

// Parse reads the scanned file and validates every row. Fatal input errors
// halt the draft.
func (e *Engine) Parse(ctx context.Context, d *Draft) ([]model.Contact, error) {
	const op = "parse"

	if err := d.begin(op, StageScanned); err != nil {
		return nil, err
	}

	list, err := e.parse(ctx, d.file)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false

	if err != nil {
		if apperr.KindOf(err) == apperr.KindFatalInput {
			d.stage = StageHalted
			d.updatedAt = e.now()
		}
		e.log.Warn("parse failed", "draft_id", d.id, "err", err)
		return nil, err
	}

	d.contacts = list
	d.stage = StageParsed
	d.updatedAt = e.now()

	stats := contacts.Summarize(list)
	e.log.Info("draft parsed", "draft_id", d.id, "total", stats.Total, "valid", stats.Valid, "invalid", stats.Invalid)
	return slices.Clone(list), nil
}

func (e *Engine) parse(ctx context.Context, f Upload) ([]model.Contact, error) {
	reader, err := e.readerFor(f.Name)
	if err != nil {
		return nil, err
	}
	table, err := reader.Read(ctx, bytes.NewReader(f.Data))
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.CodeParse, "parse", "could not read file", err)
	}
	return contacts.Import(table)
}

// Import runs admission, scan and parse in order and stops at the first
// failure. The draft is returned whenever admission succeeded.
func (e *Engine) Import(ctx context.Context, ownerID string, f Upload) (*Draft, error) {
	d, err := e.Admit(ownerID, f)
	if err != nil {
		return nil, err
	}
	if _, err := e.Scan(ctx, d); err != nil {
		return d, err
	}
	if _, err := e.Parse(ctx, d); err != nil {
		return d, err
	}
	return d, nil
}

// ReviseContact re-validates one row with corrected values.
func (e *Engine) ReviseContact(d *Draft, contactID int, name, phone string) (model.Contact, error) {
	const op = "revise contact"

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLocked(op, StageParsed); err != nil {
		return model.Contact{}, err
	}
	i, ok := d.findLocked(contactID)
	if !ok {
		return model.Contact{}, apperr.Newf(apperr.CodeNotFound, op, "contact %d not found", contactID)
	}

	c := contacts.Revalidate(d.contacts[i], name, phone)
	d.contacts[i] = c
	d.updatedAt = e.now()
	return c, nil
}

// SendTest sends body to one valid contact of the draft. Every attempt is
// recorded; a failed send is returned as an error after recording it.
func (e *Engine) SendTest(ctx context.Context, d *Draft, contactID int, body string) (model.TestMessageAttempt, error) {
	const op = "send test"

	if strings.TrimSpace(body) == "" {
		body = DefaultTestMessage
	}

	d.mu.Lock()
	if err := d.checkLocked(op, StageParsed); err != nil {
		d.mu.Unlock()
		return model.TestMessageAttempt{}, err
	}
	i, ok := d.findLocked(contactID)
	if !ok {
		d.mu.Unlock()
		return model.TestMessageAttempt{}, apperr.Newf(apperr.CodeNotFound, op, "contact %d not found", contactID)
	}
	target := d.contacts[i]
	if !target.Valid {
		d.mu.Unlock()
		return model.TestMessageAttempt{}, apperr.Newf(apperr.CodeInvalidInput, op, "contact %d is not valid", contactID)
	}
	d.busy = true
	d.mu.Unlock()

	res, err := call(ctx, e.timeout, op, func(ctx context.Context) (SendResult, error) {
		return e.sender.SendOne(ctx, target, body)
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false

	attempt := model.TestMessageAttempt{
		Target:    target,
		Body:      body,
		Succeeded: err == nil && res.Succeeded,
		Detail:    res.Detail,
		SentAt:    e.now(),
	}
	if err != nil {
		attempt.Detail = err.Error()
	}
	d.attempts = append(d.attempts, attempt)
	d.updatedAt = attempt.SentAt

	if err != nil {
		e.log.Warn("test send failed", "draft_id", d.id, "contact_id", contactID, "err", err)
		return attempt, err
	}
	if !res.Succeeded {
		e.log.Warn("test send refused", "draft_id", d.id, "contact_id", contactID, "detail", res.Detail)
		return attempt, apperr.Newf(apperr.CodeTestSendFailed, op, "test message to contact %d failed: %s", contactID, res.Detail)
	}
	e.log.Info("test send succeeded", "draft_id", d.id, "contact_id", contactID, "remote_id", res.RemoteID)
	return attempt, nil
}

type SubmitInput struct {
	BulkMessage string
	// ResubmitOf optionally names a rejected submission this one replaces.
	ResubmitOf string
}

// Submit turns a tested draft into a pending submission. It succeeds at most
// once per draft.
func (e *Engine) Submit(ctx context.Context, d *Draft, in SubmitInput) (*model.Submission, error) {
	const op = "submit"

	d.mu.Lock()
	if err := d.checkLocked(op, StageParsed); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	valid := model.ValidContacts(d.contacts)
	if len(valid) == 0 {
		d.mu.Unlock()
		return nil, apperr.New(apperr.CodeNoValidContact, op, "draft has no valid contacts")
	}
	if !d.gatePassedLocked() {
		d.mu.Unlock()
		return nil, apperr.New(apperr.CodeTestGate, op, "send a successful test message before submitting")
	}
	accepted := d.attempts[len(d.attempts)-1]

	bulk := in.BulkMessage
	if strings.TrimSpace(bulk) == "" {
		bulk = accepted.Body
	}
	if err := e.sender.Check(valid, bulk); err != nil {
		d.mu.Unlock()
		if _, ok := apperr.As(err); !ok {
			err = apperr.Wrap(apperr.CodeInvalidInput, op, "bulk message cannot be sent", err)
		}
		return nil, err
	}

	s := &model.Submission{
		ID:                  e.newID(),
		OwnerID:             d.ownerID,
		FileName:            d.file.Name,
		FileSizeBytes:       int64(len(d.file.Data)),
		Contacts:            valid,
		TestMessage:         accepted.Body,
		AcceptedTestContact: accepted.Target,
		BulkMessage:         bulk,
		Status:              model.PendingApproval,
		SubmittedAt:         e.now(),
	}
	d.busy = true
	d.mu.Unlock()

	err := e.checkResubmit(ctx, d.ownerID, in.ResubmitOf)
	if err == nil {
		if in.ResubmitOf != "" {
			ref := in.ResubmitOf
			s.ResubmitOf = &ref
		}
		err = e.repo.Create(ctx, s)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false

	if err != nil {
		return nil, err
	}
	d.stage = StageSubmitted
	d.submissionID = s.ID
	d.updatedAt = s.SubmittedAt

	e.log.Info("submission created", "submission_id", s.ID, "draft_id", d.id, "owner_id", s.OwnerID, "contacts", len(s.Contacts))
	return s, nil
}

func (e *Engine) checkResubmit(ctx context.Context, ownerID, ref string) error {
	const op = "submit"

	if ref == "" {
		return nil
	}
	prev, err := e.repo.Get(ctx, ref)
	if err != nil {
		return err
	}
	if prev.OwnerID != ownerID {
		return apperr.Newf(apperr.CodeNotFound, op, "submission %q not found", ref)
	}
	if prev.Status != model.Rejected {
		return apperr.Newf(apperr.CodeInvalidState, op, "submission %q is %s, only rejected submissions can be resubmitted", ref, prev.Status)
	}
	return nil
}

type ApprovalResult struct {
	Submission    *model.Submission `json:"submission"`
	MessagesSent  int               `json:"messagesSent"`
	DecidedAt     time.Time         `json:"decidedAt"`
	Dispatch      BulkResult        `json:"dispatch"`
	DispatchError string            `json:"dispatchError,omitempty"`
}

// Approve records the decision and then dispatches the campaign. Only the
// first of several concurrent approvals wins; the others get an invalid
// state error and send nothing.
func (e *Engine) Approve(ctx context.Context, id string) (*ApprovalResult, error) {
	const op = "approve"

	decidedAt := e.now()
	s, err := e.repo.UpdateStatus(ctx, id, model.PendingApproval, model.Approved, repo.StatusFields{DecidedAt: &decidedAt})
	if err != nil {
		return nil, err
	}
	e.log.Info("submission approved", "submission_id", id, "contacts", len(s.Contacts))

	res := &ApprovalResult{
		Submission:   s,
		MessagesSent: len(s.Contacts),
		DecidedAt:    decidedAt,
	}

	// The approval stands even if dispatch fails; the error is reported.
	// Dispatch outlives the caller so a dropped request cannot cut it short.
	dispatch, err := call(context.WithoutCancel(ctx), e.timeout, op, func(ctx context.Context) (BulkResult, error) {
		return e.sender.SendBulk(ctx, s.ID, s.Contacts, s.BulkMessage)
	})
	res.Dispatch = dispatch
	if err != nil {
		res.DispatchError = err.Error()
		e.log.Error("bulk dispatch failed", "submission_id", id, "err", err)
		return res, nil
	}
	e.log.Info("bulk dispatch finished", "submission_id", id, "sent", dispatch.SentCount, "failed", dispatch.FailedCount)
	return res, nil
}

// Reject records the decision with a non-blank reason.
func (e *Engine) Reject(ctx context.Context, id, reason string) (*model.Submission, error) {
	const op = "reject"

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.New(apperr.CodeEmptyReason, op, "a rejection reason is required")
	}

	decidedAt := e.now()
	s, err := e.repo.UpdateStatus(ctx, id, model.PendingApproval, model.Rejected, repo.StatusFields{
		DecidedAt:       &decidedAt,
		RejectionReason: &reason,
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("submission rejected", "submission_id", id, "reason", reason)
	return s, nil
}
