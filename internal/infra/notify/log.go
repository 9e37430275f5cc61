package notify

import (
	"context"
	"log/slog"

	"github.com/bryanwahyu/civic-triage/internal/domain/reports"
)

// Log writes notifications to the logger; used when no channel is configured.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(_ context.Context, n reports.Notification) error {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("notification", "owner_id", n.OwnerID, "report_id", n.ReportID, "title", n.Title, "message", n.Message)
	return nil
}

// Multi sends to every notifier and returns the first error after trying all.
type Multi []reports.Notifier

func (m Multi) Notify(ctx context.Context, n reports.Notification) error {
	var first error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var (
	_ reports.Notifier = Log{}
	_ reports.Notifier = Multi(nil)
)
