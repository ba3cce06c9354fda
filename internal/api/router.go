package api

import (
	"net/http"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/identity"
)

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	maker := func(fn http.HandlerFunc) http.HandlerFunc { return requireRole(h.resolver, identity.Maker, fn) }
	checker := func(fn http.HandlerFunc) http.HandlerFunc { return requireRole(h.resolver, identity.Checker, fn) }
	anyone := func(fn http.HandlerFunc) http.HandlerFunc { return requireRole(h.resolver, "", fn) }

	mux.HandleFunc("GET /v1/health", h.Health)
	mux.HandleFunc("GET /v1/scheduler/status", h.SchedulerStatus)

	mux.HandleFunc("POST /v1/drafts", maker(h.CreateDraft))
	mux.HandleFunc("GET /v1/drafts/{id}", maker(h.GetDraft))
	mux.HandleFunc("DELETE /v1/drafts/{id}", maker(h.DeleteDraft))
	mux.HandleFunc("POST /v1/drafts/{id}/retry", maker(h.RetryDraft))
	mux.HandleFunc("GET /v1/drafts/{id}/contacts", maker(h.ListDraftContacts))
	mux.HandleFunc("PATCH /v1/drafts/{id}/contacts/{contactID}", maker(h.ReviseContact))
	mux.HandleFunc("POST /v1/drafts/{id}/test", maker(h.SendTest))
	mux.HandleFunc("POST /v1/drafts/{id}/submit", maker(h.Submit))

	mux.HandleFunc("GET /v1/submissions", checker(h.ListSubmissions))
	mux.HandleFunc("GET /v1/submissions/mine", maker(h.ListMySubmissions))
	mux.HandleFunc("GET /v1/submissions/{id}", anyone(h.GetSubmission))
	mux.HandleFunc("GET /v1/submissions/{id}/contacts", anyone(h.ListSubmissionContacts))
	mux.HandleFunc("GET /v1/submissions/{id}/receipts", checker(h.ListReceipts))
	mux.HandleFunc("POST /v1/submissions/{id}/approve", checker(h.Approve))
	mux.HandleFunc("POST /v1/submissions/{id}/reject", checker(h.Reject))

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("bulk-sms-approvals"))
	})

	return mux
}
