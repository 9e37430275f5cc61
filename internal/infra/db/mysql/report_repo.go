package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/reports"
)

type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = `id, owner_id, title, category, status, priority, assigned_department,
       photo_url, photo_public_id, s3_key, s3_bucket, ai_tags, ml, created_at, updated_at`

// Get by ID
func (r *ReportRepository) Get(ctx context.Context, id string) (*domain.Report, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id=? LIMIT 1`, id)

	var rep domain.Report
	var tags, ml sql.NullString
	var created, updated int64
	if err := row.Scan(
		&rep.ID, &rep.OwnerID, &rep.Title, &rep.Category, &rep.Status, &rep.Priority, &rep.AssignedDepartment,
		&rep.PhotoURL, &rep.PhotoPublicID, &rep.S3Key, &rep.S3Bucket, &tags, &ml, &created, &updated,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrReportNotFound
		}
		return nil, err
	}
	if err := decodeJSON(tags, &rep.AITags); err != nil {
		return nil, fmt.Errorf("decode ai_tags: %w", err)
	}
	if ml.Valid {
		rep.ML = &domain.MLAnalysis{}
		if err := decodeJSON(ml, rep.ML); err != nil {
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
SET category=?, assigned_department=?, priority=?, ai_tags=?, ml=?, updated_at=?
WHERE id=?`
	tags, err := encodeTags(rep.AITags)
	if err != nil {
		return err
	}
	ml, err := encodeML(rep.ML)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q,
		rep.Category, rep.AssignedDepartment, stringOrDash(string(rep.Priority)), tags, ml, millis(rep.UpdatedAt), rep.ID)
	if err != nil {
		return err
	}
	// MySQL reports 0 affected rows when nothing changed, so confirm existence
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM reports WHERE id=?`, rep.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrReportNotFound
		}
		return err
	}
	return nil
}

// Create inserts a report. The reporting platform owns this path in
// production; the CLI and tests use it to seed data.
func (r *ReportRepository) Create(ctx context.Context, rep *domain.Report) error {
	const q = `
INSERT INTO reports
(id, owner_id, title, category, status, priority, assigned_department,
 photo_url, photo_public_id, s3_key, s3_bucket, ai_tags, ml, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
	tags, err := encodeTags(rep.AITags)
	if err != nil {
		return err
	}
	ml, err := encodeML(rep.ML)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q,
		rep.ID, rep.OwnerID, rep.Title, stringOrDash(rep.Category), stringOrDash(string(rep.Status)),
		stringOrDash(string(rep.Priority)), rep.AssignedDepartment,
		rep.PhotoURL, rep.PhotoPublicID, rep.S3Key, rep.S3Bucket, tags, ml,
		millis(rep.CreatedAt), millis(rep.UpdatedAt),
	)
	return err
}

var _ domain.Repository = (*ReportRepository)(nil)
