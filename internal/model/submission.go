package model

import (
	"time"
	"unicode/utf8"
)

type Status string

const (
	Draft           Status = "draft"
	PendingApproval Status = "pending_approval"
	Approved        Status = "approved"
	Rejected        Status = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == Approved || s == Rejected
}

// Known reports whether s is one of the defined statuses.
func (s Status) Known() bool {
	switch s {
	case Draft, PendingApproval, Approved, Rejected:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	switch from {
	case Draft:
		return to == PendingApproval
	case PendingApproval:
		return to == Approved || to == Rejected
	}
	return false
}

// TestMessageAttempt records one test send made from a draft. Target is the
// contact as it was when the message went out.
type TestMessageAttempt struct {
	Target    Contact   `json:"target"`
	Body      string    `json:"body"`
	Succeeded bool      `json:"succeeded"`
	Detail    string    `json:"detail,omitempty"`
	SentAt    time.Time `json:"sentAt"`
}

type Submission struct {
	ID                  string     `json:"id"`
	OwnerID             string     `json:"ownerId"`
	FileName            string     `json:"fileName"`
	FileSizeBytes       int64      `json:"fileSizeBytes"`
	Contacts            []Contact  `json:"contacts"`
	TestMessage         string     `json:"testMessage"`
	AcceptedTestContact Contact    `json:"acceptedTestContact"`
	BulkMessage         string     `json:"bulkMessage"`
	Status              Status     `json:"status"`
	SubmittedAt         time.Time  `json:"submittedAt"`
	DecidedAt           *time.Time `json:"decidedAt,omitempty"`
	RejectionReason     *string    `json:"rejectionReason,omitempty"`
	ResubmitOf          *string    `json:"resubmitOf,omitempty"`
}

const smsSegmentLength = 160

// SegmentCount returns how many 160-character SMS segments body occupies.
// An empty body still counts as one segment.
func SegmentCount(body string) int {
	n := utf8.RuneCountInString(body)
	if n == 0 {
		return 1
	}
	return (n + smsSegmentLength - 1) / smsSegmentLength
}
