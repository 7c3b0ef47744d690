package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	domain "github.com/mediscan/mediscan-api/internal/domain/analysis"
)

// Connect opens a postgres pool with the same limits as the mysql variant.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		return nil, err
	}
	return db, nil
}

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Save inserts or updates an analysis record
func (r *AnalysisRepository) Save(ctx context.Context, rec *domain.AnalysisRecord) error {
	const q = `
INSERT INTO analyses
  (id, user_id, nom, description, image_url, details_analyse, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  nom=EXCLUDED.nom,
  description=EXCLUDED.description,
  image_url=EXCLUDED.image_url,
  details_analyse=EXCLUDED.details_analyse,
  updated_at=EXCLUDED.updated_at;
`
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	owner := stringOrDash(rec.OwnerID)
	name := stringOrDash(rec.Name)
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	_, err = r.db.ExecContext(ctx, q, rec.ID, owner, name, rec.Description, rec.ImageURL, details, created, updated)
	return err
}

// Get returns one record by id, owner-scoped
func (r *AnalysisRepository) Get(ctx context.Context, owner string, id domain.RecordID) (*domain.AnalysisRecord, error) {
	const q = `
SELECT id, user_id, nom, description, image_url, details_analyse, created_at, updated_at
FROM analyses
WHERE user_id=$1 AND id=$2
LIMIT 1;`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, owner, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

// Latest returns the owner's records ordered by created_at desc
func (r *AnalysisRepository) Latest(ctx context.Context, owner string, limit int) ([]*domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, user_id, nom, description, image_url, details_analyse, created_at, updated_at
FROM analyses
WHERE user_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2;`
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

// Delete removes one record, owner-scoped
func (r *AnalysisRepository) Delete(ctx context.Context, owner string, id domain.RecordID) error {
	const q = `DELETE FROM analyses WHERE user_id=$1 AND id=$2;`
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

func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
