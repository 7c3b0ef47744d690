package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/mediscan/mediscan-api/internal/domain/analysis"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Save insert/update AnalysisRecord
func (r *AnalysisRepository) Save(ctx context.Context, rec *domain.AnalysisRecord) error {
	const q = `
INSERT INTO analyses
 (id, user_id, nom, description, image_url, details_analyse, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 nom=VALUES(nom), description=VALUES(description),
 image_url=VALUES(image_url), details_analyse=VALUES(details_analyse),
 updated_at=VALUES(updated_at);
`
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	name := stringOrDash(rec.Name)
	owner := stringOrDash(rec.OwnerID)
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	_, err = r.db.ExecContext(ctx, q,
		rec.ID, owner, name, rec.Description, rec.ImageURL, details, created, updated,
	)
	return err
}

// Get by ID + owner (tenant isolation lives in the WHERE clause)
func (r *AnalysisRepository) Get(ctx context.Context, owner string, id domain.RecordID) (*domain.AnalysisRecord, error) {
	const q = `
SELECT id, user_id, nom, description, image_url, details_analyse, created_at, updated_at
FROM analyses
WHERE user_id=? AND id=? LIMIT 1;
`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, owner, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

// Latest analyses per owner, newest first
func (r *AnalysisRepository) Latest(ctx context.Context, owner string, limit int) ([]*domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, user_id, nom, description, image_url, details_analyse, created_at, updated_at
FROM analyses
WHERE user_id=? ORDER BY created_at DESC, id DESC LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AnalysisRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a record; deleting someone else's record is a not-found.
func (r *AnalysisRepository) Delete(ctx context.Context, owner string, id domain.RecordID) error {
	const q = `DELETE FROM analyses WHERE user_id=? AND id=?;`
	res, err := r.db.ExecContext(ctx, q, owner, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.AnalysisRecord, error) {
	var rec domain.AnalysisRecord
	var details []byte
	if err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.Name, &rec.Description, &rec.ImageURL,
		&details, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &rec.Details); err != nil {
			return nil, fmt.Errorf("unmarshal details: %w", err)
		}
	}
	return &rec, nil
}
