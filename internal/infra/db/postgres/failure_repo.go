package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	domain "github.com/buildsite/safesight/internal/domain/analysis"
)

type FailureRepository struct {
	db *sql.DB
}

func NewFailureRepository(db *sql.DB) *FailureRepository {
	return &FailureRepository{db: db}
}

// Save inserts one attempt-failure row.
func (r *FailureRepository) Save(ctx context.Context, f *domain.AttemptFailure) error {
	const q = `
INSERT INTO analysis_failures
  (site_id, request_id, strategy, phase, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6);
`
	site := f.SiteID
	if strings.TrimSpace(site) == "" {
		site = "-"
	}
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		site, f.RequestID, f.Strategy, f.Phase, f.Message, createdAt)
	return err
}

// ListByRequest returns failures for one cascade, newest first.
func (r *FailureRepository) ListByRequest(ctx context.Context, site string, requestID string, limit int) ([]*domain.AttemptFailure, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, site_id, request_id, strategy, phase, message, created_at
FROM analysis_failures
WHERE site_id=$1 AND request_id=$2
ORDER BY created_at DESC, id DESC
LIMIT $3;
`
	rows, err := r.db.QueryContext(ctx, q, site, requestID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AttemptFailure
	for rows.Next() {
		var f domain.AttemptFailure
		var created time.Time
		if err := rows.Scan(&f.ID, &f.SiteID, &f.RequestID, &f.Strategy, &f.Phase, &f.Message, &created); err != nil {
			return nil, err
		}
		f.CreatedAt = created
		out = append(out, &f)
	}
	return out, rows.Err()
}
