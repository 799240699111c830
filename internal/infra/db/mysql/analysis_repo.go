package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	domain "github.com/buildsite/safesight/internal/domain/analysis"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Save upserts a completed analysis row.
func (r *AnalysisRepository) Save(ctx context.Context, rec *domain.AnalysisRecord) error {
	const q = `
INSERT INTO safety_analyses
  (id, site_id, work_type, result_json, image_url, report_url, source,
   critical_count, high_count, medium_count, low_count, total_count,
   duration_ms, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  site_id=VALUES(site_id), work_type=VALUES(work_type), result_json=VALUES(result_json),
  image_url=VALUES(image_url), report_url=VALUES(report_url), source=VALUES(source),
  critical_count=VALUES(critical_count), high_count=VALUES(high_count),
  medium_count=VALUES(medium_count), low_count=VALUES(low_count),
  total_count=VALUES(total_count), duration_ms=VALUES(duration_ms);
`
	site := stringOrDash(rec.SiteID)
	result := rec.ResultJSON
	if strings.TrimSpace(result) == "" {
		// result_json column requires valid JSON; use empty object
		result = "{}"
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, q,
		rec.ID, site, rec.WorkType, result, rec.ImageURL, rec.ReportURL, rec.Source,
		rec.Counts.Critical, rec.Counts.High, rec.Counts.Medium, rec.Counts.Low, rec.Counts.Total,
		rec.DurationMS, createdAt,
	)
	return err
}

// Get returns one analysis by id, scoped to the site.
func (r *AnalysisRepository) Get(ctx context.Context, site string, id domain.AnalysisID) (*domain.AnalysisRecord, error) {
	const q = `
SELECT id, site_id, work_type, result_json, image_url, report_url, source,
       critical_count, high_count, medium_count, low_count, total_count,
       duration_ms, created_at
FROM safety_analyses
WHERE site_id=? AND id=?;
`
	row := r.db.QueryRowContext(ctx, q, site, id)
	return scanRecord(row)
}

// Latest returns the N most recent analyses for a site.
func (r *AnalysisRepository) Latest(ctx context.Context, site string, limit int) ([]*domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, site_id, work_type, result_json, image_url, report_url, source,
       critical_count, high_count, medium_count, low_count, total_count,
       duration_ms, created_at
FROM safety_analyses
WHERE site_id=?
ORDER BY created_at DESC, id DESC
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, site, limit)
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

// Summary aggregates hazard counts over the last N days.
func (r *AnalysisRepository) Summary(ctx context.Context, site string, sinceDays int) (total, critical, high, medium int, err error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	const q = `
SELECT COUNT(*), COALESCE(SUM(critical_count),0), COALESCE(SUM(high_count),0), COALESCE(SUM(medium_count),0)
FROM safety_analyses
WHERE site_id=? AND created_at >= DATE_SUB(NOW(), INTERVAL ? DAY);
`
	err = r.db.QueryRowContext(ctx, q, site, sinceDays).Scan(&total, &critical, &high, &medium)
	return
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.AnalysisRecord, error) {
	var rec domain.AnalysisRecord
	var created time.Time
	err := row.Scan(
		&rec.ID, &rec.SiteID, &rec.WorkType, &rec.ResultJSON, &rec.ImageURL, &rec.ReportURL, &rec.Source,
		&rec.Counts.Critical, &rec.Counts.High, &rec.Counts.Medium, &rec.Counts.Low, &rec.Counts.Total,
		&rec.DurationMS, &created,
	)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = created
	return &rec, nil
}
