package reports

import "context"

// Repository port for the report fields this service reads and writes.
type Repository interface {
	Get(ctx context.Context, id string) (*Report, error)
	// SaveAnalysis persists category, department, priority, tags, ml block
	// and updated_at. Other columns are left alone.
	SaveAnalysis(ctx context.Context, r *Report) error
}

// Router resolves the department for a category. ok is false when no
// department handles it.
type Router interface {
	Route(ctx context.Context, category string) (route Route, ok bool, err error)
}

// Notifier delivers a notification to the report owner's channel.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
