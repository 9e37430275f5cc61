package mysql

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/civic-triage/internal/domain/analysis"
	domain "github.com/bryanwahyu/civic-triage/internal/domain/reports"
	"github.com/bryanwahyu/civic-triage/internal/infra/db/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, EnsureSchema(context.Background(), db))
	return db
}

func TestReportRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewReportRepository(openTestDB(t))
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &domain.Report{
		ID: "r1", OwnerID: "u1", Title: "Hole on Main St", Category: "Other",
		Status: domain.StatusSubmitted, Priority: domain.PriorityLow,
		PhotoURL: "https://img.example.com/r1.jpg", CreatedAt: created, UpdatedAt: created,
	}))

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Hole on Main St", got.Title)
	assert.Equal(t, domain.StatusSubmitted, got.Status)
	assert.Nil(t, got.ML)
	assert.Empty(t, got.AITags)
	assert.True(t, created.Equal(got.CreatedAt))

	analyzed := created.Add(time.Minute)
	got.Category = "Pothole"
	got.AssignedDepartment = "Public Works"
	got.Priority = domain.PriorityMedium
	got.AITags = []string{"pothole", "road"}
	got.ML = &domain.MLAnalysis{
		Label: "pothole", Severity: 0.8, Confidence: 0.9,
		Source: analysis.SourceLocal, Category: "Pothole", AnalyzedAt: analyzed,
	}
	got.UpdatedAt = analyzed
	require.NoError(t, repo.SaveAnalysis(ctx, got))

	again, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Pothole", again.Category)
	assert.Equal(t, "Public Works", again.AssignedDepartment)
	assert.Equal(t, domain.PriorityMedium, again.Priority)
	assert.Equal(t, []string{"pothole", "road"}, again.AITags)
	require.NotNil(t, again.ML)
	assert.Equal(t, analysis.SourceLocal, again.ML.Source)
	assert.InDelta(t, 0.8, again.ML.Severity, 1e-9)
	assert.True(t, analyzed.Equal(again.UpdatedAt))
	// columns outside the analysis are untouched
	assert.Equal(t, "Hole on Main St", again.Title)
	assert.Equal(t, "https://img.example.com/r1.jpg", again.PhotoURL)
}

func TestReportRepositoryNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewReportRepository(openTestDB(t))

	_, err := repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrReportNotFound)

	err = repo.SaveAnalysis(ctx, &domain.Report{ID: "nope", Category: "Pothole"})
	assert.ErrorIs(t, err, domain.ErrReportNotFound)
}

func TestRouteRepository(t *testing.T) {
	ctx := context.Background()
	routes := NewRouteRepository(openTestDB(t))
	require.NoError(t, routes.Seed(ctx, domain.DefaultRoutes()))

	rt, ok, err := routes.Route(ctx, "water leak")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.Route{Department: "Utilities", Priority: domain.PriorityHigh}, rt)

	_, ok, err = routes.Route(ctx, "Snow Removal")
	require.NoError(t, err)
	assert.False(t, ok)

	// a route without priority reads back empty so reports keep theirs
	require.NoError(t, routes.Seed(ctx, map[string]domain.Route{"Snow Removal": {Department: "Street Services"}}))
	rt, ok, err = routes.Route(ctx, "snow removal")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.Route{Department: "Street Services"}, rt)
}

func TestRouteSeedKeepsAdminRows(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	routes := NewRouteRepository(db)
	require.NoError(t, routes.Seed(ctx, domain.DefaultRoutes()))

	// admins add a category and reassign an existing one
	_, err := db.ExecContext(ctx,
		`INSERT INTO departments (category, department, priority) VALUES ('Illegal Dumping','Sanitation','High')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `UPDATE departments SET department='Roads Agency' WHERE category='Pothole'`)
	require.NoError(t, err)

	// restart: seed again with the config defaults
	require.NoError(t, routes.Seed(ctx, domain.DefaultRoutes()))

	rt, ok, err := routes.Route(ctx, "Illegal Dumping")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.Route{Department: "Sanitation", Priority: domain.PriorityHigh}, rt)

	rt, ok, err = routes.Route(ctx, "pothole")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Roads Agency", rt.Department)

	// legacy rows written with "-" read as no priority
	_, err = db.ExecContext(ctx, `INSERT INTO departments (category, department, priority) VALUES ('Noise','Environment','-')`)
	require.NoError(t, err)
	rt, ok, err = routes.Route(ctx, "Noise")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, rt.Priority)
}
