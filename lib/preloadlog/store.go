// Package preloadlog keeps a local journal of completed preloads. The
// refresh daemon uses it to skip patients refreshed recently, and the
// diagnostic dump reads it back for support.
package preloadlog

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return Store{db: db}
}

// Init creates the journal tables when missing.
func (s Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// Entry is one completed study preload.
type Entry struct {
	PatientKey  string
	StudyUID    string
	ImageCount  int
	StudyDate   string
	CompletedAt time.Time
}

func (s Store) Record(ctx context.Context, entry Entry) error {
	completedAt := entry.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preload (patient_key, study_uid, image_count, study_date, completed_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.PatientKey,
		entry.StudyUID,
		entry.ImageCount,
		entry.StudyDate,
		completedAt.Unix(),
	)
	return err
}

// RefreshedSince reports whether any preload completed for the patient
// after the given time.
func (s Store) RefreshedSince(ctx context.Context, patientKey string, since time.Time) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM preload
		WHERE patient_key = ? AND completed_at > ?`,
		patientKey, since.Unix(),
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// Recent returns the latest journal entries, newest first.
func (s Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT patient_key, study_uid, image_count, study_date, completed_at
		FROM preload
		ORDER BY completed_at DESC, id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var completedAt int64
		err := rows.Scan(
			&entry.PatientKey,
			&entry.StudyUID,
			&entry.ImageCount,
			&entry.StudyDate,
			&completedAt,
		)
		if err != nil {
			return nil, err
		}
		entry.CompletedAt = time.Unix(completedAt, 0)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
