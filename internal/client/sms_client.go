package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// HeaderIdempotencyKey lets the provider drop repeats of a message it has
// already accepted.
const HeaderIdempotencyKey = "Idempotency-Key"

// Message is one SMS handed to the provider. Messages without an
// IdempotencyKey are sent exactly once and never retried.
type Message struct {
	To             string
	Body           string
	IdempotencyKey string
}

// RefusedError is the provider declining a message (4xx). Sending the same
// message again will not help.
type RefusedError struct {
	Status int
	Reason string
}

func (e *RefusedError) Error() string {
	return fmt.Sprintf("sms provider refused message (status %d): %s", e.Status, e.Reason)
}

// UnavailableError covers network failures, provider 5xx answers and
// malformed acknowledgements. The message may or may not have gone out.
type UnavailableError struct {
	Status int // 0 when no response arrived
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("sms provider unavailable: %v", e.Err)
	}
	return fmt.Sprintf("sms provider unavailable (status %d): %v", e.Status, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// SMSClient posts messages to the provider webhook.
type SMSClient struct {
	url  string
	http *resty.Client
}

// NewSMSClient builds a client for the webhook at url. Keyed messages are
// retried on transport errors and 5xx answers.
func NewSMSClient(url string, timeout time.Duration) *SMSClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil || r.Request.Header.Get(HeaderIdempotencyKey) == "" {
				return false
			}
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")
	return &SMSClient{url: url, http: c}
}

type smsRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

type smsResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

// Send delivers m and returns the provider's message id. The provider
// acknowledges with 202 Accepted.
func (c *SMSClient) Send(ctx context.Context, m Message) (string, error) {
	var ok, refusal smsResponse

	req := c.http.R().
		SetContext(ctx).
		SetBody(smsRequest{PhoneNumber: m.To, Message: m.Body}).
		SetResult(&ok).
		SetError(&refusal)
	if m.IdempotencyKey != "" {
		req.SetHeader(HeaderIdempotencyKey, m.IdempotencyKey)
	}

	resp, err := req.Post(c.url)
	if err != nil {
		return "", &UnavailableError{Err: err}
	}

	switch status := resp.StatusCode(); {
	case status >= 400 && status < 500:
		reason := strings.TrimSpace(refusal.Message)
		if reason == "" {
			reason = strings.TrimSpace(resp.String())
		}
		return "", &RefusedError{Status: status, Reason: reason}
	case status != 202:
		return "", &UnavailableError{Status: status, Err: fmt.Errorf("unexpected answer body=%q", resp.String())}
	}

	if ok.MessageID == "" {
		return "", &UnavailableError{Status: resp.StatusCode(), Err: errors.New("missing messageId in acknowledgement")}
	}
	return ok.MessageID, nil
}
