package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq"

	domain "github.com/buildsite/safesight/internal/domain/analysis"
)

// AnalysisRepository is the Postgres implementation of the history port for
// deployments that already run Postgres instead of MySQL.
type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

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

func (r *AnalysisRepository) Save(ctx context.Context, rec *domain.AnalysisRecord) error {
	const q = `
INSERT INTO safety_analyses
  (id, site_id, work_type, result_json, image_url, report_url, source,
   critical_count, high_count, medium_count, low_count, total_count,
   duration_ms, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
  site_id=EXCLUDED.site_id, work_type=EXCLUDED.work_type, result_json=EXCLUDED.result_json,
  image_url=EXCLUDED.image_url, report_url=EXCLUDED.report_url, source=EXCLUDED.source,
  critical_count=EXCLUDED.critical_count, high_count=EXCLUDED.high_count,
  medium_count=EXCLUDED.medium_count, low_count=EXCLUDED.low_count,
  total_count=EXCLUDED.total_count, duration_ms=EXCLUDED.duration_ms;
`
	site := rec.SiteID
	if strings.TrimSpace(site) == "" {
		site = "-"
	}
	result := rec.ResultJSON
	if strings.TrimSpace(result) == "" {
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

func (r *AnalysisRepository) Get(ctx context.Context, site string, id domain.AnalysisID) (*domain.AnalysisRecord, error) {
	const q = `
SELECT id, site_id, work_type, result_json, image_url, report_url, source,
       critical_count, high_count, medium_count, low_count, total_count,
       duration_ms, created_at
FROM safety_analyses
WHERE site_id=$1 AND id=$2;
`
	var rec domain.AnalysisRecord
	var created time.Time
	err := r.db.QueryRowContext(ctx, q, site, id).Scan(
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

func (r *AnalysisRepository) Latest(ctx context.Context, site string, limit int) ([]*domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, site_id, work_type, result_json, image_url, report_url, source,
       critical_count, high_count, medium_count, low_count, total_count,
       duration_ms, created_at
FROM safety_analyses
WHERE site_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2;
`
	rows, err := r.db.QueryContext(ctx, q, site, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AnalysisRecord
	for rows.Next() {
		var rec domain.AnalysisRecord
		var created time.Time
		if err := rows.Scan(
			&rec.ID, &rec.SiteID, &rec.WorkType, &rec.ResultJSON, &rec.ImageURL, &rec.ReportURL, &rec.Source,
			&rec.Counts.Critical, &rec.Counts.High, &rec.Counts.Medium, &rec.Counts.Low, &rec.Counts.Total,
			&rec.DurationMS, &created,
		); err != nil {
			return nil, err
		}
		rec.CreatedAt = created
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (r *AnalysisRepository) Summary(ctx context.Context, site string, sinceDays int) (total, critical, high, medium int, err error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	const q = `
SELECT COUNT(*), COALESCE(SUM(critical_count),0), COALESCE(SUM(high_count),0), COALESCE(SUM(medium_count),0)
FROM safety_analyses
WHERE site_id=$1 AND created_at >= NOW() - ($2 || ' days')::interval;
`
	err = r.db.QueryRowContext(ctx, q, site, sinceDays).Scan(&total, &critical, &high, &medium)
	return
}
