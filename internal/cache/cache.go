package cache

import (
	"context"
	"time"
)

// Receipt records that one contact of a submission was handed to the provider.
type Receipt struct {
	ContactID       int       `json:"contactId"`
	RemoteMessageID string    `json:"remoteMessageId"`
	SentAt          time.Time `json:"sentAt"`
}

// ReceiptCache keeps short-lived dispatch receipts for checker dashboards.
type ReceiptCache interface {
	StoreSent(ctx context.Context, submissionID string, contactID int, remoteMessageID string, sentAt time.Time) error
	Receipts(ctx context.Context, submissionID string) ([]Receipt, error)
}
