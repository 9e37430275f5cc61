package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/reports"
)

type ReportRepository struct{ db *sql.DB }

func NewReportRepository(db *sql.DB) *ReportRepository { return &ReportRepository{db: db} }

// Get by ID
func (r *ReportRepository) Get(ctx context.Context, id string) (*domain.Report, error) {
	const q = `
SELECT id, owner_id, title, category, status, priority, assigned_department,
       photo_url, photo_public_id, s3_key, s3_bucket, ai_tags, ml, created_at, updated_at
FROM reports WHERE id=$1`
	var rep domain.Report
	var tags, ml []byte
	var created, updated int64
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&rep.ID, &rep.OwnerID, &rep.Title, &rep.Category, &rep.Status, &rep.Priority, &rep.AssignedDepartment,
		&rep.PhotoURL, &rep.PhotoPublicID, &rep.S3Key, &rep.S3Bucket, &tags, &ml, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &rep.AITags); err != nil {
			return nil, fmt.Errorf("decode ai_tags: %w", err)
		}
	}
	if len(ml) > 0 {
		rep.ML = &domain.MLAnalysis{}
		if err := json.Unmarshal(ml, rep.ML); err != nil {
			return nil, fmt.Errorf("decode ml: %w", err)
		}
	}
	rep.CreatedAt = time.UnixMilli(created)
	rep.UpdatedAt = time.UnixMilli(updated)
	return &rep, nil
}

// SaveAnalysis writes only the columns the analysis pipeline owns.
func (r *ReportRepository) SaveAnalysis(ctx context.Context, rep *domain.Report) error {
	const q = `
UPDATE reports
SET category=$1, assigned_department=$2, priority=$3, ai_tags=$4, ml=$5, updated_at=$6
WHERE id=$7`
	tags, err := jsonOrNil(rep.AITags, len(rep.AITags) == 0)
	if err != nil {
		return err
	}
	ml, err := jsonOrNil(rep.ML, rep.ML == nil)
	if err != nil {
		return err
	}
	updated := rep.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	res, err := r.db.ExecContext(ctx, q,
		rep.Category, rep.AssignedDepartment, string(rep.Priority), tags, ml, updated.UnixMilli(), rep.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrReportNotFound
	}
	return nil
}

// RouteRepository reads the departments table.
type RouteRepository struct{ db *sql.DB }

func NewRouteRepository(db *sql.DB) *RouteRepository { return &RouteRepository{db: db} }

func (r *RouteRepository) Route(ctx context.Context, category string) (domain.Route, bool, error) {
	const q = `SELECT department, priority FROM departments WHERE LOWER(category)=LOWER($1) LIMIT 1`
	var rt domain.Route
	err := r.db.QueryRowContext(ctx, q, category).Scan(&rt.Department, &rt.Priority)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Route{}, false, nil
	}
	if err != nil {
		return domain.Route{}, false, err
	}
	if rt.Priority == "-" {
		rt.Priority = ""
	}
	return rt, rt.Department != "", nil
}

// Seed inserts routes for categories the table does not have yet; admin
// rows are left alone.
func (r *RouteRepository) Seed(ctx context.Context, routes map[string]domain.Route) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for cat, rt := range routes {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO departments (category, department, priority)
SELECT $1::text, $2::text, $3::text
WHERE NOT EXISTS (SELECT 1 FROM departments WHERE LOWER(category)=LOWER($1::text))`,
			cat, rt.Department, string(rt.Priority)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func jsonOrNil(v any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

var (
	_ domain.Repository = (*ReportRepository)(nil)
	_ domain.Router     = (*RouteRepository)(nil)
)
