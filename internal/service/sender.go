package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/apperr"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/client"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/model"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/workflow"
)

// NamePlaceholder is replaced with the contact's name before sending.
const NamePlaceholder = "{name}"

// SendClient delivers a single message. A *client.RefusedError means the
// provider declined it; any other error leaves the outcome unknown.
type SendClient interface {
	Send(ctx context.Context, m client.Message) (remoteMessageID string, err error)
}

// Sender implements workflow.MessageSender on top of a single-message client.
type Sender struct {
	client      SendClient
	contentMax  int
	concurrency int

	onSent   func(ctx context.Context, submissionID string, contactID int, remoteMessageID string) error
	onFailed func(ctx context.Context, submissionID string, contactID int, reason string) error
}

var _ workflow.MessageSender = (*Sender)(nil)

func NewSender(client SendClient, contentMax, concurrency int) *Sender {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Sender{
		client:      client,
		contentMax:  contentMax,
		concurrency: concurrency,
	}
}

// WithHooks registers callbacks fired for every bulk message outcome.
func (s *Sender) WithHooks(
	onSent func(ctx context.Context, submissionID string, contactID int, remoteMessageID string) error,
	onFailed func(ctx context.Context, submissionID string, contactID int, reason string) error,
) *Sender {
	s.onSent = onSent
	s.onFailed = onFailed
	return s
}

// Render personalizes body for c.
func Render(body string, c model.Contact) string {
	return strings.ReplaceAll(body, NamePlaceholder, c.Name)
}

func (s *Sender) SendOne(ctx context.Context, c model.Contact, body string) (workflow.SendResult, error) {
	text := Render(body, c)
	if s.tooLong(text) {
		return workflow.SendResult{Detail: fmt.Sprintf("content exceeds %d chars", s.contentMax)}, nil
	}

	remoteID, err := s.client.Send(ctx, client.Message{To: c.Phone, Body: text})
	if err != nil {
		var refused *client.RefusedError
		if errors.As(err, &refused) {
			return workflow.SendResult{Detail: refused.Error()}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return workflow.SendResult{}, ctxErr
		}
		return workflow.SendResult{}, err
	}
	return workflow.SendResult{Succeeded: true, RemoteID: remoteID}, nil
}

// Check reports whether body, rendered for every contact, fits the content
// limit.
func (s *Sender) Check(contacts []model.Contact, body string) error {
	for _, c := range contacts {
		if s.tooLong(Render(body, c)) {
			return apperr.Newf(apperr.CodeInvalidInput, "check message",
				"message for contact %d exceeds %d chars", c.ID, s.contentMax)
		}
	}
	return nil
}

// SendBulk sends body to every contact. Each message carries the key
// submissionID:contactID so a retried delivery is not doubled.
func (s *Sender) SendBulk(ctx context.Context, submissionID string, contacts []model.Contact, body string) (workflow.BulkResult, error) {
	if err := s.Check(contacts, body); err != nil {
		return workflow.BulkResult{}, err
	}

	var (
		sent   atomic.Int64
		failed atomic.Int64
		g      errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, c := range contacts {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			remoteID, err := s.client.Send(ctx, client.Message{
				To:             c.Phone,
				Body:           Render(body, c),
				IdempotencyKey: submissionID + ":" + strconv.Itoa(c.ID),
			})
			if err != nil {
				failed.Add(1)
				if s.onFailed != nil {
					_ = s.onFailed(ctx, submissionID, c.ID, err.Error())
				}
				return nil
			}
			sent.Add(1)
			if s.onSent != nil {
				_ = s.onSent(ctx, submissionID, c.ID, remoteID)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := workflow.BulkResult{SentCount: int(sent.Load()), FailedCount: int(failed.Load())}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Sender) tooLong(text string) bool {
	return s.contentMax > 0 && utf8.RuneCountInString(text) > s.contentMax
}
