package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/jobs"
)

// Memory is an in-process queue with the same lease and retry semantics as
// the SQL queue. Jobs are lost on restart; use it for local runs and tests.
type Memory struct {
	mu   sync.Mutex
	jobs map[domain.ID]*domain.Job
	seq  map[domain.ID]uint64 // enqueue order, breaks visible_at ties
	next uint64
	opts Options
}

func NewMemory(opts Options) *Memory {
	opts.defaults()
	return &Memory{jobs: make(map[domain.ID]*domain.Job), seq: make(map[domain.ID]uint64), opts: opts}
}

func (m *Memory) Enqueue(_ context.Context, p domain.Payload) (*domain.Job, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	now := m.opts.Clock.Now()
	j := &domain.Job{
		ID:          domain.ID(uuid.NewString()),
		Payload:     p,
		State:       domain.StateQueued,
		MaxAttempts: m.opts.MaxAttempts,
		VisibleAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.mu.Lock()
	m.jobs[j.ID] = j
	m.next++
	m.seq[j.ID] = m.next
	m.mu.Unlock()
	cp := *j
	return &cp, nil
}

func (m *Memory) Claim(_ context.Context) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Clock.Now()
	for {
		j := m.oldestVisible(now)
		if j == nil {
			return nil, nil
		}
		if j.State == domain.StateActive && j.Attempt >= j.MaxAttempts {
			j.State = domain.StateDead
			j.LastError = errLeaseExpired
			j.UpdatedAt = now
			continue
		}
		j.State = domain.StateActive
		j.Attempt++
		j.VisibleAt = now.Add(m.opts.Visibility)
		j.UpdatedAt = now
		cp := *j
		return &cp, nil
	}
}

func (m *Memory) oldestVisible(now time.Time) *domain.Job {
	var best *domain.Job
	for _, j := range m.jobs {
		if j.State == domain.StateDead || j.VisibleAt.After(now) {
			continue
		}
		if best == nil || j.VisibleAt.Before(best.VisibleAt) ||
			(j.VisibleAt.Equal(best.VisibleAt) && m.seq[j.ID] < m.seq[best.ID]) {
			best = j
		}
	}
	return best
}

// held returns the stored job if the caller still owns its lease.
func (m *Memory) held(j *domain.Job) (*domain.Job, error) {
	cur, ok := m.jobs[j.ID]
	if !ok {
		return nil, domain.ErrLeaseLost
	}
	if cur.State != domain.StateActive || cur.Attempt != j.Attempt {
		return nil, domain.ErrLeaseLost
	}
	return cur, nil
}

func (m *Memory) Complete(_ context.Context, j *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.held(j); err != nil {
		return err
	}
	delete(m.jobs, j.ID)
	delete(m.seq, j.ID)
	return nil
}

func (m *Memory) Fail(_ context.Context, j *domain.Job, cause error) (domain.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, err := m.held(j)
	if err != nil {
		return "", err
	}
	now := m.opts.Clock.Now()
	state, delay := m.opts.Backoff.Next(cur.Attempt, cur.MaxAttempts, errors.Is(cause, domain.ErrPermanent))
	cur.State = state
	cur.VisibleAt = now.Add(delay)
	cur.LastError = errorText(cause)
	cur.UpdatedAt = now
	return state, nil
}

func (m *Memory) Get(_ context.Context, id domain.ID) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *Memory) Dead(_ context.Context, limit int) ([]*domain.Job, error) {
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Job
	for _, j := range m.jobs {
		if j.State == domain.StateDead {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.After(out[b].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Retry(_ context.Context, id domain.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.State != domain.StateDead {
		return domain.ErrJobNotFound
	}
	now := m.opts.Clock.Now()
	j.State = domain.StateQueued
	j.Attempt = 0
	j.MaxAttempts = m.opts.MaxAttempts
	j.VisibleAt = now
	j.UpdatedAt = now
	return nil
}

func (m *Memory) Stats(_ context.Context) (domain.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.opts.Clock.Now()
	var s domain.Stats
	for _, j := range m.jobs {
		switch j.State {
		case domain.StateQueued:
			if j.VisibleAt.After(now) {
				s.Delayed++
			} else {
				s.Queued++
			}
		case domain.StateActive:
			s.Active++
		case domain.StateDead:
			s.Dead++
		}
	}
	return s, nil
}

var _ domain.Queue = (*Memory)(nil)
