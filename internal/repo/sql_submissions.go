package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/apperr"
	"github.com/LeventeLantos/bulk-sms-approvals/internal/model"
)

// SQLSubmissionRepo stores submissions in Postgres or SQLite. Status changes
// are conditional updates, so the database arbitrates racing decisions.
type SQLSubmissionRepo struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLSubmissionRepo applies the schema for dialect and returns the repo.
func NewSQLSubmissionRepo(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLSubmissionRepo, error) {
	if dialect != Postgres && dialect != SQLite {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if err := migrate(ctx, db, dialect); err != nil {
		return nil, err
	}
	return &SQLSubmissionRepo{db: db, dialect: dialect}, nil
}

const submissionColumns = `id, owner_id, file_name, file_size_bytes, contacts, test_message,
	accepted_test_contact, bulk_message, status, submitted_at, decided_at,
	rejection_reason, resubmit_of`

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func (r *SQLSubmissionRepo) Create(ctx context.Context, s *model.Submission) error {
	if err := checkNew(s); err != nil {
		return err
	}

	contacts, err := json.Marshal(s.Contacts)
	if err != nil {
		return fmt.Errorf("marshal contacts: %w", err)
	}
	tested, err := json.Marshal(s.AcceptedTestContact)
	if err != nil {
		return fmt.Errorf("marshal test contact: %w", err)
	}

	var decidedAt sql.NullInt64
	if s.DecidedAt != nil {
		decidedAt = sql.NullInt64{Int64: toMillis(*s.DecidedAt), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, r.dialect.bind(`
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`),
		s.ID,
		s.OwnerID,
		s.FileName,
		s.FileSizeBytes,
		string(contacts),
		s.TestMessage,
		string(tested),
		s.BulkMessage,
		string(s.Status),
		toMillis(s.SubmittedAt),
		decidedAt,
		nullString(s.RejectionReason),
		nullString(s.ResubmitOf),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.CodeInvalidState, "create submission",
				fmt.Sprintf("submission %q already exists", s.ID), err)
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

const (
	pgUniqueViolation      = "23505"
	sqliteConstraintUnique = 2067 // SQLITE_CONSTRAINT_UNIQUE
	sqliteConstraintPK     = 1555 // SQLITE_CONSTRAINT_PRIMARYKEY
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqliteConstraintUnique || code == sqliteConstraintPK
	}
	return false
}

func (r *SQLSubmissionRepo) Get(ctx context.Context, id string) (*model.Submission, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.bind(`
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE id = $1
	`), id)

	s, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get submission", id)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SQLSubmissionRepo) ListByStatus(ctx context.Context, status model.Status) ([]model.Submission, error) {
	if status == "" {
		return r.list(ctx, `SELECT `+submissionColumns+` FROM submissions ORDER BY seq ASC`)
	}
	return r.list(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE status = $1
		ORDER BY seq ASC
	`, string(status))
}

func (r *SQLSubmissionRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Submission, error) {
	return r.list(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE owner_id = $1
		ORDER BY seq DESC
	`, ownerID)
}

func (r *SQLSubmissionRepo) UpdateStatus(ctx context.Context, id string, from, to model.Status, fields StatusFields) (*model.Submission, error) {
	if !model.CanTransition(from, to) {
		return nil, illegalTransition(id, from, to)
	}

	var decidedAt sql.NullInt64
	if fields.DecidedAt != nil {
		decidedAt = sql.NullInt64{Int64: toMillis(*fields.DecidedAt), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, r.dialect.bind(`
		UPDATE submissions
		SET status = $1,
		    decided_at = COALESCE($2, decided_at),
		    rejection_reason = COALESCE($3, rejection_reason)
		WHERE id = $4 AND status = $5
	`), string(to), decidedAt, nullString(fields.RejectionReason), id, string(from))
	if err != nil {
		return nil, fmt.Errorf("update submission status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, staleStatus(id, current.Status, to)
	}
	return current, nil
}

func (r *SQLSubmissionRepo) list(ctx context.Context, query string, args ...any) ([]model.Submission, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	out := []model.Submission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	var (
		s           model.Submission
		contacts    string
		tested      string
		status      string
		submittedAt int64
		decidedAt   sql.NullInt64
		reason      sql.NullString
		resubmitOf  sql.NullString
	)
	if err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&s.FileName,
		&s.FileSizeBytes,
		&contacts,
		&s.TestMessage,
		&tested,
		&s.BulkMessage,
		&status,
		&submittedAt,
		&decidedAt,
		&reason,
		&resubmitOf,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(contacts), &s.Contacts); err != nil {
		return nil, fmt.Errorf("unmarshal contacts of %s: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(tested), &s.AcceptedTestContact); err != nil {
		return nil, fmt.Errorf("unmarshal test contact of %s: %w", s.ID, err)
	}

	s.Status = model.Status(status)
	s.SubmittedAt = fromMillis(submittedAt)
	if decidedAt.Valid {
		t := fromMillis(decidedAt.Int64)
		s.DecidedAt = &t
	}
	if reason.Valid {
		v := reason.String
		s.RejectionReason = &v
	}
	if resubmitOf.Valid {
		v := resubmitOf.String
		s.ResubmitOf = &v
	}
	return &s, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
