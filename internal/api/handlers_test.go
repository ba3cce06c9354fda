package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/apperr"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/cache"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/identity"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/model"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/repo"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/scheduler"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/workflow"
)

type fakeScanner struct{ clean bool }

func (f fakeScanner) Scan(context.Context, string, []byte) (workflow.ScanVerdict, error) {
	return workflow.ScanVerdict{Clean: f.clean, Detail: "signature match"}, nil
}

type fakeSender struct {
	mu   sync.Mutex
	bulk int
}

func (f *fakeSender) SendOne(context.Context, model.Contact, string) (workflow.SendResult, error) {
	return workflow.SendResult{Succeeded: true, RemoteID: "r-1"}, nil
}

func (f *fakeSender) Check([]model.Contact, string) error { return nil }

func (f *fakeSender) SendBulk(_ context.Context, _ string, contacts []model.Contact, _ string) (workflow.BulkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulk++
	return workflow.BulkResult{SentCount: len(contacts)}, nil
}

type fakeReceipts struct{ items []cache.Receipt }

func (f fakeReceipts) StoreSent(context.Context, string, int, string, time.Time) error { return nil }

func (f fakeReceipts) Receipts(context.Context, string) ([]cache.Receipt, error) {
	return f.items, nil
}

type testServer struct {
	mux    http.Handler
	sender *fakeSender
	drafts *DraftStore
	sched  *scheduler.Scheduler
}

func newTestServer(t *testing.T, clean bool) *testServer {
	t.Helper()

	s, err := scheduler.New("draft-sweep", time.Hour, func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	sender := &fakeSender{}
	submissions := repo.NewMemorySubmissionRepo()
	drafts := NewDraftStore(time.Hour)
	engine := workflow.New(submissions, fakeScanner{clean: clean}, sender, time.Second)

	h := NewHandler(Deps{
		Engine:      engine,
		Submissions: submissions,
		Drafts:      drafts,
		Scheduler:   s,
		Receipts:    fakeReceipts{items: []cache.Receipt{{ContactID: 1, RemoteMessageID: "r-1"}}},
	})
	return &testServer{mux: Router(h), sender: sender, drafts: drafts, sched: s}
}

func (ts *testServer) do(t *testing.T, method, path, user string, role identity.Role, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	setIdentity(req, user, role)

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) upload(t *testing.T, user, fileName, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = fw.Write([]byte(content))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/drafts", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	setIdentity(req, user, identity.Maker)

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)
	return rr
}

func setIdentity(req *http.Request, user string, role identity.Role) {
	if user != "" {
		req.Header.Set(identity.HeaderUserID, user)
	}
	if role != "" {
		req.Header.Set(identity.HeaderRole, string(role))
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("failed to decode json: %v body=%q", err, rr.Body.String())
	}
	return m
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()

	e, ok := decodeJSON(t, rr)["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error body, got %q", rr.Body.String())
	}
	code, _ := e["code"].(string)
	return code
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d body=%q", want, rr.Code, rr.Body.String())
	}
}

const contactsCSV = "Full Name,Mobile Number\nAlice,0300-1234567\n12345,0300\nBob,\nCara,+44 20 7946 0000\n"

func TestHealth(t *testing.T) {
	ts := newTestServer(t, true)

	rr := ts.do(t, http.MethodGet, "/v1/health", "", "", nil)
	expectStatus(t, rr, http.StatusOK)

	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("expected Content-Type application/json, got %q", ct)
	}
	if v, ok := decodeJSON(t, rr)["ok"].(bool); !ok || !v {
		t.Fatalf("expected {ok:true}, got %q", rr.Body.String())
	}
}

func TestSchedulerStatus(t *testing.T) {
	ts := newTestServer(t, true)

	rr := ts.do(t, http.MethodGet, "/v1/scheduler/status", "", "", nil)
	expectStatus(t, rr, http.StatusOK)

	body := decodeJSON(t, rr)
	sched, ok := body["scheduler"].(map[string]any)
	if !ok || sched["running"] != false || sched["name"] != "draft-sweep" {
		t.Fatalf("unexpected status %v", body)
	}
}

func TestMakerCheckerFlow(t *testing.T) {
	ts := newTestServer(t, true)

	rr := ts.upload(t, "maker-1", "contacts.csv", contactsCSV)
	expectStatus(t, rr, http.StatusCreated)
	draft := decodeJSON(t, rr)
	draftID, _ := draft["id"].(string)
	if draft["stage"] != string(workflow.StageParsed) {
		t.Fatalf("expected parsed draft, got %v", draft["stage"])
	}
	if stats := draft["stats"].(map[string]any); stats["valid"] != float64(2) || stats["invalid"] != float64(2) {
		t.Fatalf("unexpected stats %v", stats)
	}

	rr = ts.do(t, http.MethodGet, "/v1/drafts/"+draftID+"/contacts?search=ali&page=1&page_size=10", "maker-1", identity.Maker, nil)
	expectStatus(t, rr, http.StatusOK)
	if page := decodeJSON(t, rr); page["total"] != float64(1) {
		t.Fatalf("expected one search hit, got %v", page)
	}

	rr = ts.do(t, http.MethodPost, "/v1/drafts/"+draftID+"/submit", "maker-1", identity.Maker, submitRequest{})
	expectStatus(t, rr, http.StatusConflict)
	if code := errorCode(t, rr); code != "test_gate_not_passed" {
		t.Fatalf("unexpected code %q", code)
	}

	rr = ts.do(t, http.MethodPatch, "/v1/drafts/"+draftID+"/contacts/3", "maker-1", identity.Maker, reviseContactRequest{Name: "Bob", Phone: "0301"})
	expectStatus(t, rr, http.StatusOK)
	if c := decodeJSON(t, rr); c["valid"] != true {
		t.Fatalf("expected revised contact to be valid, got %v", c)
	}

	rr = ts.do(t, http.MethodPost, "/v1/drafts/"+draftID+"/test", "maker-1", identity.Maker, sendTestRequest{ContactID: 1})
	expectStatus(t, rr, http.StatusOK)

	rr = ts.do(t, http.MethodPost, "/v1/drafts/"+draftID+"/submit", "maker-1", identity.Maker, submitRequest{BulkMessage: "Hi {name}"})
	expectStatus(t, rr, http.StatusCreated)
	sub := decodeJSON(t, rr)
	subID, _ := sub["id"].(string)
	if sub["status"] != string(model.PendingApproval) || len(sub["contacts"].([]any)) != 3 {
		t.Fatalf("unexpected submission %v", sub)
	}

	rr = ts.do(t, http.MethodPost, "/v1/drafts/"+draftID+"/submit", "maker-1", identity.Maker, submitRequest{})
	expectStatus(t, rr, http.StatusConflict)

	rr = ts.do(t, http.MethodGet, "/v1/submissions?status=pending_approval", "checker-1", identity.Checker, nil)
	expectStatus(t, rr, http.StatusOK)
	if page := decodeJSON(t, rr); page["total"] != float64(1) {
		t.Fatalf("expected one pending submission, got %v", page)
	}

	rr = ts.do(t, http.MethodPost, "/v1/submissions/"+subID+"/approve", "maker-1", identity.Maker, nil)
	expectStatus(t, rr, http.StatusForbidden)

	rr = ts.do(t, http.MethodPost, "/v1/submissions/"+subID+"/approve", "checker-1", identity.Checker, nil)
	expectStatus(t, rr, http.StatusOK)
	if res := decodeJSON(t, rr); res["messagesSent"] != float64(3) {
		t.Fatalf("unexpected approval %v", res)
	}

	rr = ts.do(t, http.MethodPost, "/v1/submissions/"+subID+"/approve", "checker-1", identity.Checker, nil)
	expectStatus(t, rr, http.StatusConflict)
	if code := errorCode(t, rr); code != "invalid_state" {
		t.Fatalf("unexpected code %q", code)
	}
	if ts.sender.bulk != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", ts.sender.bulk)
	}

	rr = ts.do(t, http.MethodGet, "/v1/submissions/"+subID+"/receipts", "checker-1", identity.Checker, nil)
	expectStatus(t, rr, http.StatusOK)
	if body := decodeJSON(t, rr); body["enabled"] != true || len(body["items"].([]any)) != 1 {
		t.Fatalf("unexpected receipts %v", body)
	}

	rr = ts.do(t, http.MethodGet, "/v1/submissions/mine", "maker-1", identity.Maker, nil)
	expectStatus(t, rr, http.StatusOK)
	if page := decodeJSON(t, rr); page["total"] != float64(1) {
		t.Fatalf("expected activity feed entry, got %v", page)
	}

	rr = ts.do(t, http.MethodGet, "/v1/submissions/"+subID, "maker-2", identity.Maker, nil)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestRejectRequiresReason(t *testing.T) {
	ts := newTestServer(t, true)
	subID := submitViaAPI(t, ts)

	rr := ts.do(t, http.MethodPost, "/v1/submissions/"+subID+"/reject", "checker-1", identity.Checker, rejectRequest{Reason: "  "})
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	rr = ts.do(t, http.MethodGet, "/v1/submissions/"+subID, "checker-1", identity.Checker, nil)
	if s := decodeJSON(t, rr); s["status"] != string(model.PendingApproval) {
		t.Fatalf("expected still pending, got %v", s["status"])
	}

	rr = ts.do(t, http.MethodPost, "/v1/submissions/"+subID+"/reject", "checker-1", identity.Checker, rejectRequest{Reason: "wrong audience"})
	expectStatus(t, rr, http.StatusOK)
	if s := decodeJSON(t, rr); s["rejectionReason"] != "wrong audience" {
		t.Fatalf("unexpected rejection %v", s)
	}
}

func TestCreateDraft_Failures(t *testing.T) {
	cases := []struct {
		name    string
		clean   bool
		file    string
		content string
		status  int
		code    string
	}{
		{"unsupported type", true, "list.pdf", "x", http.StatusBadRequest, "unsupported_file_type"},
		{"empty file", true, "list.csv", "", http.StatusBadRequest, "empty_file"},
		{"missing columns", true, "list.csv", "Email\na@b.c\n", http.StatusBadRequest, "missing_columns"},
		{"threat", false, "list.csv", contactsCSV, http.StatusBadGateway, "threat_detected"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, tc.clean)

			rr := ts.upload(t, "maker-1", tc.file, tc.content)
			expectStatus(t, rr, tc.status)
			if code := errorCode(t, rr); code != tc.code {
				t.Fatalf("expected code %q, got %q", tc.code, code)
			}
			if ts.drafts.Len() != 0 {
				t.Fatalf("expected halted drafts not to be kept")
			}
		})
	}
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, true)

	rr := ts.do(t, http.MethodGet, "/v1/submissions", "", "", nil)
	expectStatus(t, rr, http.StatusUnauthorized)

	rr = ts.do(t, http.MethodGet, "/v1/submissions", "maker-1", identity.Maker, nil)
	expectStatus(t, rr, http.StatusForbidden)

	rr = ts.do(t, http.MethodGet, "/v1/submissions?status=bogus", "checker-1", identity.Checker, nil)
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestDraftsAreOwnerScoped(t *testing.T) {
	ts := newTestServer(t, true)

	rr := ts.upload(t, "maker-1", "contacts.csv", contactsCSV)
	expectStatus(t, rr, http.StatusCreated)
	draftID, _ := decodeJSON(t, rr)["id"].(string)

	rr = ts.do(t, http.MethodGet, "/v1/drafts/"+draftID, "maker-2", identity.Maker, nil)
	expectStatus(t, rr, http.StatusNotFound)

	rr = ts.do(t, http.MethodDelete, "/v1/drafts/"+draftID, "maker-1", identity.Maker, nil)
	expectStatus(t, rr, http.StatusNoContent)

	rr = ts.do(t, http.MethodGet, "/v1/drafts/"+draftID, "maker-1", identity.Maker, nil)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestDraftStore_Sweep(t *testing.T) {
	ts := newTestServer(t, true)

	rr := ts.upload(t, "maker-1", "contacts.csv", contactsCSV)
	expectStatus(t, rr, http.StatusCreated)

	ts.drafts.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	removed, err := ts.drafts.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}
	if removed != 1 || ts.drafts.Len() != 0 {
		t.Fatalf("expected stale draft removed, removed=%d len=%d", removed, ts.drafts.Len())
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[string]int{
		"timeout":              http.StatusGatewayTimeout,
		"collaborator_failed":  http.StatusBadGateway,
		"no_valid_contacts":    http.StatusBadRequest,
		"test_gate_not_passed": http.StatusConflict,
		"empty_reason":         http.StatusUnprocessableEntity,
		"not_found":            http.StatusNotFound,
	}
	for code, want := range cases {
		rr := httptest.NewRecorder()
		writeError(rr, apperr.New(apperr.Code(code), "test", "boom"))
		if rr.Code != want {
			t.Fatalf("code %s: expected %d, got %d", code, want, rr.Code)
		}
	}
}

func submitViaAPI(t *testing.T, ts *testServer) string {
	t.Helper()

	rr := ts.upload(t, "maker-1", "contacts.csv", contactsCSV)
	expectStatus(t, rr, http.StatusCreated)
	draftID, _ := decodeJSON(t, rr)["id"].(string)

	rr = ts.do(t, http.MethodPost, "/v1/drafts/"+draftID+"/test", "maker-1", identity.Maker, sendTestRequest{ContactID: 1, Body: "ping"})
	expectStatus(t, rr, http.StatusOK)

	rr = ts.do(t, http.MethodPost, "/v1/drafts/"+draftID+"/submit", "maker-1", identity.Maker, submitRequest{})
	expectStatus(t, rr, http.StatusCreated)
	id, _ := decodeJSON(t, rr)["id"].(string)
	return id
}
