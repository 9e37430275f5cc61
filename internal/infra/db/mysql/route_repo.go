package mysql

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/reports"
)

// RouteRepository reads the department routing table managed by admins.
type RouteRepository struct {
	db *sql.DB
}

func NewRouteRepository(db *sql.DB) *RouteRepository {
	return &RouteRepository{db: db}
}

func (r *RouteRepository) Route(ctx context.Context, category string) (domain.Route, bool, error) {
	const q = `SELECT department, priority FROM departments WHERE LOWER(category)=LOWER(?) LIMIT 1`
	var rt domain.Route
	err := r.db.QueryRowContext(ctx, q, category).Scan(&rt.Department, &rt.Priority)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Route{}, false, nil
	}
	if err != nil {
		return domain.Route{}, false, err
	}
	if rt.Department == "" {
		return domain.Route{}, false, nil
	}
	if rt.Priority == "-" {
		rt.Priority = ""
	}
	return rt, true, nil
}

// Seed inserts routes for categories the table does not have yet. Existing
// rows belong to the admins and are never changed or removed.
func (r *RouteRepository) Seed(ctx context.Context, routes map[string]domain.Route) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for cat, rt := range routes {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM departments WHERE LOWER(category)=LOWER(?)`, cat).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO departments (category, department, priority) VALUES (?,?,?)`,
			cat, rt.Department, string(rt.Priority)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

var _ domain.Router = (*RouteRepository)(nil)
