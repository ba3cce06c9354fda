package model

import (
	"strings"
	"testing"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := []struct{ from, to Status }{
		{Draft, PendingApproval},
		{PendingApproval, Approved},
		{PendingApproval, Rejected},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	all := []Status{Draft, PendingApproval, Approved, Rejected}
	for _, from := range []Status{Approved, Rejected} {
		for _, to := range all {
			if CanTransition(from, to) {
				t.Fatalf("expected terminal %s -> %s to be illegal", from, to)
			}
		}
	}
	if CanTransition(Draft, Approved) {
		t.Fatalf("draft must not skip review")
	}
	if CanTransition(PendingApproval, Draft) {
		t.Fatalf("status must not move backwards")
	}
}

func TestStatus_Terminal(t *testing.T) {
	t.Parallel()

	if PendingApproval.Terminal() || Draft.Terminal() {
		t.Fatalf("draft and pending must not be terminal")
	}
	if !Approved.Terminal() || !Rejected.Terminal() {
		t.Fatalf("approved and rejected must be terminal")
	}
	if Status("sent").Known() {
		t.Fatalf("unexpected known status")
	}
}

func TestSegmentCount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		body string
		want int
	}{
		{"", 1},
		{"hello", 1},
		{strings.Repeat("a", 160), 1},
		{strings.Repeat("a", 161), 2},
		{strings.Repeat("é", 320), 2},
	}
	for _, tc := range cases {
		if got := SegmentCount(tc.body); got != tc.want {
			t.Fatalf("SegmentCount(len=%d): expected %d, got %d", len(tc.body), tc.want, got)
		}
	}
}

func TestValidContacts_PreservesOrder(t *testing.T) {
	t.Parallel()

	in := []Contact{
		{ID: 1, Valid: true},
		{ID: 2, Valid: false, Reasons: []ReasonCode{MissingPhone}},
		{ID: 3, Valid: true},
	}
	got := ValidContacts(in)
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Fatalf("unexpected valid contacts: %+v", got)
	}
}
