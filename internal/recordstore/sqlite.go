package recordstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"maestro/internal/applications"
	"maestro/internal/identity"
)

// SQLiteStore keeps applications in a local SQLite file. Handy for demos
// and offline use; it has no mail scanner.
type SQLiteStore struct {
	DB *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore { return &SQLiteStore{DB: db} }

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	company TEXT NOT NULL,
	position TEXT NOT NULL,
	status TEXT NOT NULL,
	applied_date TEXT NOT NULL,
	location TEXT,
	salary TEXT,
	job_url TEXT,
	notes TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS jobs_user_applied ON jobs (user_id, applied_date DESC);
`)
	if err != nil {
		return fmt.Errorf("migrate jobs: %w", err)
	}
	return nil
}

func currentUser(ctx context.Context) string {
	if p, ok := identity.PrincipalFrom(ctx); ok {
		return p.UserID
	}
	return ""
}

// List returns the current user's applications, newest first
func (s *SQLiteStore) List(ctx context.Context) ([]applications.Record, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, user_id, company, position, status, applied_date,
		       COALESCE(location, ''), COALESCE(salary, ''), COALESCE(job_url, ''), COALESCE(notes, '')
		FROM jobs
		WHERE user_id = ?
		ORDER BY applied_date DESC, created_at DESC`,
		currentUser(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	records := []applications.Record{}
	for rows.Next() {
		var r applications.Record
		if err := rows.Scan(&r.ID, &r.UserID, &r.Company, &r.Position, &r.Status, &r.AppliedDate,
			&r.Location, &r.Salary, &r.JobURL, &r.Notes); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return records, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts a new application
func (s *SQLiteStore) Create(ctx context.Context, in applications.CreateInput) (*applications.Record, error) {
	rec := applications.Record{
		ID:          uuid.NewString(),
		UserID:      currentUser(ctx),
		Company:     in.Company,
		Position:    in.Position,
		Status:      in.Status,
		AppliedDate: in.AppliedDate,
		Location:    in.Location,
		Salary:      in.Salary,
		JobURL:      in.JobURL,
		Notes:       in.Notes,
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO jobs (id, user_id, company, position, status, applied_date, location, salary, job_url, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.UserID,
		rec.Company,
		rec.Position,
		rec.Status,
		rec.AppliedDate,
		nullable(rec.Location),
		nullable(rec.Salary),
		nullable(rec.JobURL),
		nullable(rec.Notes),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return &rec, nil
}

// SyncEmails is not available for the local store
func (s *SQLiteStore) SyncEmails(ctx context.Context) (*applications.SyncResult, error) {
	return nil, applications.ErrSyncUnsupported
}
