package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/apperr"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/cache"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/identity"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/model"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/query"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/repo"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/scheduler"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/workflow"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// multipart framing allowance on top of the file itself
	uploadOverhead = 1 << 20
)

type Handler struct {
	engine      *workflow.Engine
	submissions repo.SubmissionRepository
	drafts      *DraftStore
	sched       *scheduler.Scheduler
	receipts    cache.ReceiptCache
	resolver    identity.Resolver
}

// Deps are the collaborators the handler needs. Receipts may be nil when no
// cache is configured.
type Deps struct {
	Engine      *workflow.Engine
	Submissions repo.SubmissionRepository
	Drafts      *DraftStore
	Scheduler   *scheduler.Scheduler
	Receipts    cache.ReceiptCache
	Resolver    identity.Resolver
}

func NewHandler(d Deps) *Handler {
	resolver := d.Resolver
	if resolver == nil {
		resolver = identity.HeaderResolver{}
	}
	return &Handler{
		engine:      d.Engine,
		submissions: d.Submissions,
		drafts:      d.Drafts,
		sched:       d.Scheduler,
		receipts:    d.Receipts,
		resolver:    resolver,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"scheduler": h.sched.Status(),
		"drafts":    h.drafts.Len(),
	})
}

func (h *Handler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, workflow.MaxFileSize+uploadOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			writeError(w, apperr.Newf(apperr.CodeFileTooLarge, "upload", "file exceeds %d bytes", workflow.MaxFileSize))
			return
		}
		writeError(w, apperr.Wrap(apperr.CodeInvalidInput, "upload", `multipart field "file" is required`, err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, workflow.MaxFileSize+1))
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeInvalidInput, "upload", "could not read file", err))
		return
	}

	d, err := h.engine.Import(r.Context(), caller(r).UserID, workflow.Upload{Name: header.Filename, Data: data})
	if err != nil {
		// A halted draft cannot be continued; anything else can be retried.
		if d != nil && d.Stage() != workflow.StageHalted {
			h.drafts.Put(d)
			writeErrorFor(w, err, d.ID())
			return
		}
		writeError(w, err)
		return
	}

	h.drafts.Put(d)
	writeJSON(w, http.StatusCreated, d.View())
}

func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := h.draft(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, d.View())
}

func (h *Handler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.drafts.Delete(caller(r).UserID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetryDraft resumes a draft whose scan failed for an external reason.
func (h *Handler) RetryDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := h.draft(w, r)
	if !ok {
		return
	}

	if d.Stage() == workflow.StageAdmitted {
		if _, err := h.engine.Scan(r.Context(), d); err != nil {
			writeErrorFor(w, err, d.ID())
			return
		}
	}
	if d.Stage() == workflow.StageScanned {
		if _, err := h.engine.Parse(r.Context(), d); err != nil {
			writeErrorFor(w, err, d.ID())
			return
		}
	}
	writeJSON(w, http.StatusOK, d.View())
}

func (h *Handler) ListDraftContacts(w http.ResponseWriter, r *http.Request) {
	d, ok := h.draft(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, contactPage(r, d.Contacts()))
}

type reviseContactRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (h *Handler) ReviseContact(w http.ResponseWriter, r *http.Request) {
	d, ok := h.draft(w, r)
	if !ok {
		return
	}
	contactID, err := strconv.Atoi(r.PathValue("contactID"))
	if err != nil {
		writeError(w, apperr.Newf(apperr.CodeInvalidInput, "revise contact", "invalid contact id %q", r.PathValue("contactID")))
		return
	}

	var req reviseContactRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := h.engine.ReviseContact(d, contactID, req.Name, req.Phone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type sendTestRequest struct {
	ContactID int    `json:"contact_id"`
	Body      string `json:"body"`
}

func (h *Handler) SendTest(w http.ResponseWriter, r *http.Request) {
	d, ok := h.draft(w, r)
	if !ok {
		return
	}

	var req sendTestRequest
	if !decodeBody(w, r, &req) {
		return
	}

	attempt, err := h.engine.SendTest(r.Context(), d, req.ContactID, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

type submitRequest struct {
	BulkMessage string `json:"bulk_message"`
	ResubmitOf  string `json:"resubmit_of"`
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	d, ok := h.draft(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s, err := h.engine.Submit(r.Context(), d, workflow.SubmitInput{
		BulkMessage: req.BulkMessage,
		ResubmitOf:  req.ResubmitOf,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	status := model.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Known() {
		writeError(w, apperr.Newf(apperr.CodeInvalidInput, "list submissions", "unknown status %q", status))
		return
	}

	items, err := h.submissions.ListByStatus(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submissionPage(r, items))
}

// ListMySubmissions is the maker's activity feed, newest first.
func (h *Handler) ListMySubmissions(w http.ResponseWriter, r *http.Request) {
	items, err := h.submissions.ListByOwner(r.Context(), caller(r).UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submissionPage(r, items))
}

func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	s, ok := h.submission(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) ListSubmissionContacts(w http.ResponseWriter, r *http.Request) {
	s, ok := h.submission(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, contactPage(r, s.Contacts))
}

func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	s, ok := h.submission(w, r)
	if !ok {
		return
	}
	if h.receipts == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false, "items": []cache.Receipt{}})
		return
	}

	items, err := h.receipts.Receipts(r.Context(), s.ID)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeCollaborator, "list receipts", "receipt cache unavailable", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true, "items": items})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Approve(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s, err := h.engine.Reject(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) draft(w http.ResponseWriter, r *http.Request) (*workflow.Draft, bool) {
	d, err := h.drafts.Get(caller(r).UserID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return d, true
}

// submission loads the submission in the path. Makers only see their own.
func (h *Handler) submission(w http.ResponseWriter, r *http.Request) (*model.Submission, bool) {
	id := r.PathValue("id")
	s, err := h.submissions.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if who := caller(r); who.Role == identity.Maker && s.OwnerID != who.UserID {
		writeError(w, apperr.Newf(apperr.CodeNotFound, "get submission", "submission %q not found", id))
		return nil, false
	}
	return s, true
}

func contactPage(r *http.Request, items []model.Contact) query.Page[model.Contact] {
	q := r.URL.Query()
	filtered := query.FilterBySearch(items, q.Get("search"), query.ContactFields)
	return query.NewPage(filtered, parseInt(q.Get("page"), 1), pageSize(q.Get("page_size")))
}

func submissionPage(r *http.Request, items []model.Submission) query.Page[model.Submission] {
	q := r.URL.Query()
	filtered := query.FilterBySearch(items, q.Get("search"), query.SubmissionFields)
	return query.NewPage(filtered, parseInt(q.Get("page"), 1), pageSize(q.Get("page_size")))
}

func pageSize(raw string) int {
	return min(parseInt(raw, defaultPageSize), maxPageSize)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		writeError(w, apperr.Wrap(apperr.CodeInvalidInput, "decode request", "invalid JSON body", err))
		return false
	}
	return true
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
