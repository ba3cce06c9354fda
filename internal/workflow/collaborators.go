package workflow

import (
	"context"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/model"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/tabular"
)

// ScanVerdict is the threat scanner's opinion of an uploaded file.
type ScanVerdict struct {
	Clean  bool   `json:"clean"`
	Detail string `json:"detail,omitempty"`
}

// Scanner checks uploaded files for malicious content.
type Scanner interface {
	Scan(ctx context.Context, fileName string, data []byte) (ScanVerdict, error)
}

// SendResult is the outcome of a single test message. A provider refusal is
// reported as Succeeded=false, not as an error.
type SendResult struct {
	Succeeded bool
	RemoteID  string
	Detail    string
}

// BulkResult summarizes a campaign dispatch.
type BulkResult struct {
	SentCount   int `json:"sentCount"`
	FailedCount int `json:"failedCount"`
}

// MessageSender is the SMS transport.
type MessageSender interface {
	SendOne(ctx context.Context, c model.Contact, body string) (SendResult, error)
	// Check rejects a bulk body that SendBulk would refuse for any contact.
	Check(contacts []model.Contact, body string) error
	// SendBulk is only invoked once per approved submission.
	SendBulk(ctx context.Context, submissionID string, contacts []model.Contact, body string) (BulkResult, error)
}

// ReaderFor chooses a tabular reader for an uploaded file name.
type ReaderFor func(fileName string) (tabular.Reader, error)
