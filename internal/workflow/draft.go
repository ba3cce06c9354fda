package workflow

import (
	"slices"
	"sync"
	"time"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/apperr"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/contacts"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/model"
)

// Stage is how far a draft has progressed through the maker pipeline.
type Stage string

const (
	StageAdmitted  Stage = "admitted"
	StageScanned   Stage = "scanned"
	StageParsed    Stage = "parsed"
	StageSubmitted Stage = "submitted"
	// StageHalted drafts failed a fatal check and need a new upload.
	StageHalted Stage = "halted"
)

// Upload is a file handed over by the maker.
type Upload struct {
	Name string
	Data []byte
}

// Draft is the maker's work in progress. It lives only in memory and is
// never persisted; submitting it creates a Submission.
//
// A draft runs one stage at a time. Its mutex is never held while a
// collaborator is being called; the busy flag rejects overlapping stages.
type Draft struct {
	mu sync.Mutex

	id        string
	ownerID   string
	file      Upload
	createdAt time.Time
	updatedAt time.Time

	stage        Stage
	busy         bool
	verdict      *ScanVerdict
	contacts     []model.Contact
	attempts     []model.TestMessageAttempt
	submissionID string
}

// DraftView is a point-in-time copy of a draft for display.
type DraftView struct {
	ID           string                     `json:"id"`
	OwnerID      string                     `json:"ownerId"`
	FileName     string                     `json:"fileName"`
	FileSize     int64                      `json:"fileSizeBytes"`
	Stage        Stage                      `json:"stage"`
	Scan         *ScanVerdict               `json:"scan,omitempty"`
	Contacts     []model.Contact            `json:"contacts"`
	Stats        contacts.Stats             `json:"stats"`
	Attempts     []model.TestMessageAttempt `json:"attempts"`
	GatePassed   bool                       `json:"testGatePassed"`
	Segments     int                        `json:"segments"`
	SubmissionID string                     `json:"submissionId,omitempty"`
	CreatedAt    time.Time                  `json:"createdAt"`
	UpdatedAt    time.Time                  `json:"updatedAt"`
}

func (d *Draft) ID() string      { return d.id }
func (d *Draft) OwnerID() string { return d.ownerID }

// UpdatedAt is the time of the last completed stage.
func (d *Draft) UpdatedAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updatedAt
}

func (d *Draft) Stage() Stage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stage
}

// Contacts returns a copy of the imported contacts, valid and invalid.
func (d *Draft) Contacts() []model.Contact {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.contacts)
}

func (d *Draft) View() DraftView {
	d.mu.Lock()
	defer d.mu.Unlock()

	v := DraftView{
		ID:           d.id,
		OwnerID:      d.ownerID,
		FileName:     d.file.Name,
		FileSize:     int64(len(d.file.Data)),
		Stage:        d.stage,
		Contacts:     slices.Clone(d.contacts),
		Stats:        contacts.Summarize(d.contacts),
		Attempts:     slices.Clone(d.attempts),
		GatePassed:   d.gatePassedLocked(),
		Segments:     model.SegmentCount(d.lastBodyLocked()),
		SubmissionID: d.submissionID,
		CreatedAt:    d.createdAt,
		UpdatedAt:    d.updatedAt,
	}
	if v.Contacts == nil {
		v.Contacts = []model.Contact{}
	}
	if v.Attempts == nil {
		v.Attempts = []model.TestMessageAttempt{}
	}
	if d.verdict != nil {
		verdict := *d.verdict
		v.Scan = &verdict
	}
	return v
}

// begin reserves the draft for op if it is idle and in one of the stages.
func (d *Draft) begin(op string, stages ...Stage) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLocked(op, stages...); err != nil {
		return err
	}
	d.busy = true
	return nil
}

func (d *Draft) checkLocked(op string, stages ...Stage) error {
	if d.busy {
		return apperr.New(apperr.CodeInvalidState, op, "another step is still running for this draft")
	}
	if d.stage == StageSubmitted {
		return apperr.Newf(apperr.CodeInvalidState, op, "draft was already submitted as %s", d.submissionID)
	}
	if !slices.Contains(stages, d.stage) {
		return apperr.Newf(apperr.CodeInvalidState, op, "draft is %s", d.stage)
	}
	return nil
}

// gatePassedLocked follows the most recent test attempt only. The gate closes
// again when the tested contact is revised after the test, and reopens if
// the row is restored.
func (d *Draft) gatePassedLocked() bool {
	if len(d.attempts) == 0 {
		return false
	}
	last := d.attempts[len(d.attempts)-1]
	if !last.Succeeded {
		return false
	}
	i, ok := d.findLocked(last.Target.ID)
	if !ok {
		return false
	}
	cur := d.contacts[i]
	return cur.Valid && cur.Name == last.Target.Name && cur.Phone == last.Target.Phone
}

// lastBodyLocked is the body of the latest test attempt, or the default test
// message when nothing was sent yet.
func (d *Draft) lastBodyLocked() string {
	if len(d.attempts) == 0 {
		return DefaultTestMessage
	}
	return d.attempts[len(d.attempts)-1].Body
}

func (d *Draft) findLocked(contactID int) (int, bool) {
	for i, c := range d.contacts {
		if c.ID == contactID {
			return i, true
		}
	}
	return -1, false
}
