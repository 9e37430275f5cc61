package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/jobs"
)

// Dialect selects SQL flavour details (placeholders, DDL).
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// claimRaces bounds how often Claim retries after losing a row to another worker.
const claimRaces = 8

const jobColumns = `id, payload, state, attempts, max_attempts, last_error, visible_at, created_at, updated_at`

// SQL is a durable queue on one table. Claims are optimistic: a row is taken
// by an UPDATE guarded on its previous state and attempt count, so any
// number of workers can share the table without row locks. Timestamps are
// stored as unix milliseconds.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	opts    Options
}

func NewSQL(db *sql.DB, dialect Dialect, opts Options) *SQL {
	opts.defaults()
	return &SQL{db: db, dialect: dialect, opts: opts}
}

// EnsureTable creates the analysis_jobs table and its index.
func (q *SQL) EnsureTable(ctx context.Context) error {
	var stmts []string
	switch q.dialect {
	case MySQL:
		stmts = []string{`
CREATE TABLE IF NOT EXISTS analysis_jobs (
  id           VARCHAR(64)   NOT NULL PRIMARY KEY,
  queue        VARCHAR(64)   NOT NULL,
  report_id    VARCHAR(64)   NOT NULL,
  payload      TEXT          NOT NULL,
  state        VARCHAR(16)   NOT NULL,
  attempts     INT           NOT NULL DEFAULT 0,
  max_attempts INT           NOT NULL,
  last_error   VARCHAR(1024) NOT NULL DEFAULT '',
  visible_at   BIGINT        NOT NULL,
  created_at   BIGINT        NOT NULL,
  updated_at   BIGINT        NOT NULL,
  INDEX idx_analysis_jobs_visible (queue, state, visible_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`}
	default:
		stmts = []string{`
CREATE TABLE IF NOT EXISTS analysis_jobs (
  id           VARCHAR(64)   NOT NULL PRIMARY KEY,
  queue        VARCHAR(64)   NOT NULL,
  report_id    VARCHAR(64)   NOT NULL,
  payload      TEXT          NOT NULL,
  state        VARCHAR(16)   NOT NULL,
  attempts     INTEGER       NOT NULL DEFAULT 0,
  max_attempts INTEGER       NOT NULL,
  last_error   VARCHAR(1024) NOT NULL DEFAULT '',
  visible_at   BIGINT        NOT NULL,
  created_at   BIGINT        NOT NULL,
  updated_at   BIGINT        NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_analysis_jobs_visible ON analysis_jobs (queue, state, visible_at)`,
		}
	}
	for _, s := range stmts {
		if _, err := q.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("ensure analysis_jobs: %w", err)
		}
	}
	return nil
}

func (q *SQL) Enqueue(ctx context.Context, p domain.Payload) (*domain.Job, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	now := q.opts.Clock.Now()
	j := &domain.Job{
		ID:          domain.ID(uuid.NewString()),
		Payload:     p,
		State:       domain.StateQueued,
		MaxAttempts: q.opts.MaxAttempts,
		VisibleAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	const stmt = `
INSERT INTO analysis_jobs
  (id, queue, report_id, payload, state, attempts, max_attempts, last_error, visible_at, created_at, updated_at)
VALUES (?,?,?,?,?,0,?,'',?,?,?)`
	ms := now.UnixMilli()
	if _, err := q.exec(ctx, stmt, j.ID, q.opts.Name, p.ReportID, string(body), j.State, j.MaxAttempts, ms, ms, ms); err != nil {
		return nil, err
	}
	return j, nil
}

func (q *SQL) Claim(ctx context.Context) (*domain.Job, error) {
	for i := 0; i < claimRaces; i++ {
		now := q.opts.Clock.Now()
		ms := now.UnixMilli()

		row := q.db.QueryRowContext(ctx, q.rebind(`
SELECT `+jobColumns+`
FROM analysis_jobs
WHERE queue = ? AND state IN ('queued','active') AND visible_at <= ?
ORDER BY visible_at ASC, created_at ASC
LIMIT 1`), q.opts.Name, ms)

		j, rawPayload, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		// lease ran out on the last allowed delivery
		if j.State == domain.StateActive && j.Attempt >= j.MaxAttempts {
			if _, err := q.exec(ctx, `
UPDATE analysis_jobs SET state='dead', last_error=?, updated_at=?
WHERE id=? AND state='active' AND attempts=?`,
				errLeaseExpired, ms, j.ID, j.Attempt); err != nil {
				return nil, err
			}
			continue
		}

		res, err := q.exec(ctx, `
UPDATE analysis_jobs SET state='active', attempts=attempts+1, visible_at=?, updated_at=?
WHERE id=? AND state=? AND attempts=? AND visible_at <= ?`,
			now.Add(q.opts.Visibility).UnixMilli(), ms, j.ID, j.State, j.Attempt, ms)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue // another worker took it
		}

		j.State = domain.StateActive
		j.Attempt++
		j.VisibleAt = now.Add(q.opts.Visibility)
		j.UpdatedAt = now

		if err := json.Unmarshal([]byte(rawPayload), &j.Payload); err != nil {
			if _, ferr := q.Fail(ctx, j, domain.Permanent(fmt.Errorf("decode payload: %w", err))); ferr != nil {
				return nil, ferr
			}
			continue
		}
		return j, nil
	}
	return nil, nil
}

func (q *SQL) Complete(ctx context.Context, j *domain.Job) error {
	res, err := q.exec(ctx,
		`DELETE FROM analysis_jobs WHERE id=? AND state='active' AND attempts=?`, j.ID, j.Attempt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

func (q *SQL) Fail(ctx context.Context, j *domain.Job, cause error) (domain.State, error) {
	now := q.opts.Clock.Now()
	state, delay := q.opts.Backoff.Next(j.Attempt, j.MaxAttempts, errors.Is(cause, domain.ErrPermanent))
	res, err := q.exec(ctx, `
UPDATE analysis_jobs SET state=?, visible_at=?, last_error=?, updated_at=?
WHERE id=? AND state='active' AND attempts=?`,
		state, now.Add(delay).UnixMilli(), errorText(cause), now.UnixMilli(), j.ID, j.Attempt)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", domain.ErrLeaseLost
	}
	return state, nil
}

func (q *SQL) Get(ctx context.Context, id domain.ID) (*domain.Job, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(`
SELECT `+jobColumns+` FROM analysis_jobs WHERE id=? AND queue=?`), id, q.opts.Name)
	j, raw, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(raw), &j.Payload)
	return j, nil
}

func (q *SQL) Dead(ctx context.Context, limit int) ([]*domain.Job, error) {
	rows, err := q.db.QueryContext(ctx, q.rebind(`
SELECT `+jobColumns+`
FROM analysis_jobs
WHERE queue=? AND state='dead'
ORDER BY updated_at DESC, id DESC
LIMIT ?`), q.opts.Name, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		j, raw, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		// undecodable payloads are exactly what the dead set is for; keep the row
		_ = json.Unmarshal([]byte(raw), &j.Payload)
		out = append(out, j)
	}
	return out, rows.Err()
}

func (q *SQL) Retry(ctx context.Context, id domain.ID) error {
	ms := q.opts.Clock.Now().UnixMilli()
	res, err := q.exec(ctx, `
UPDATE analysis_jobs SET state='queued', attempts=0, max_attempts=?, visible_at=?, updated_at=?
WHERE id=? AND queue=? AND state='dead'`,
		q.opts.MaxAttempts, ms, ms, id, q.opts.Name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (q *SQL) Stats(ctx context.Context) (domain.Stats, error) {
	rows, err := q.db.QueryContext(ctx, q.rebind(`
SELECT state, COUNT(*), COALESCE(SUM(CASE WHEN visible_at > ? THEN 1 ELSE 0 END), 0)
FROM analysis_jobs
WHERE queue=?
GROUP BY state`), q.opts.Clock.Now().UnixMilli(), q.opts.Name)
	if err != nil {
		return domain.Stats{}, err
	}
	defer rows.Close()

	var s domain.Stats
	for rows.Next() {
		var state string
		var total, later int64
		if err := rows.Scan(&state, &total, &later); err != nil {
			return domain.Stats{}, err
		}
		switch domain.State(state) {
		case domain.StateQueued:
			s.Delayed += int(later)
			s.Queued += int(total - later)
		case domain.StateActive:
			s.Active += int(total)
		case domain.StateDead:
			s.Dead += int(total)
		}
	}
	return s, rows.Err()
}

func (q *SQL) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, q.rebind(query), args...)
}

// rebind turns ? placeholders into $n for Postgres.
func (q *SQL) rebind(query string) string {
	if q.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*domain.Job, string, error) {
	var j domain.Job
	var payload, state string
	var visible, created, updated int64
	if err := s.Scan(&j.ID, &payload, &state, &j.Attempt, &j.MaxAttempts, &j.LastError,
		&visible, &created, &updated); err != nil {
		return nil, "", err
	}
	j.State = domain.State(state)
	j.VisibleAt = time.UnixMilli(visible)
	j.CreatedAt = time.UnixMilli(created)
	j.UpdatedAt = time.UnixMilli(updated)
	return &j, payload, nil
}

var _ domain.Queue = (*SQL)(nil)
