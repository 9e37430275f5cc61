package jobs

import "context"

// Queue is the durable at-least-once work queue. The SQL and in-memory
// implementations share these semantics:
//
//   - Claim moves the oldest visible job to active, increments Attempt and
//     hides it for the visibility window. It returns (nil, nil) when idle.
//     Active jobs whose window ran out are redelivered, or moved to dead if
//     their attempts are spent.
//   - Complete deletes the job.
//   - Fail requeues with backoff or moves the job to dead, returning the new state.
type Queue interface {
	Enqueue(ctx context.Context, p Payload) (*Job, error)
	Claim(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, j *Job) error
	Fail(ctx context.Context, j *Job, cause error) (State, error)

	Get(ctx context.Context, id ID) (*Job, error)
	Dead(ctx context.Context, limit int) ([]*Job, error)
	Retry(ctx context.Context, id ID) error
	Stats(ctx context.Context) (Stats, error)
}
