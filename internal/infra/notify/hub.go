package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bryanwahyu/civic-triage/internal/domain/reports"
)

// subscriberBuffer is how many events a slow subscriber may lag before
// new events for it are dropped.
const subscriberBuffer = 16

// Hub is an in-process pub/sub keyed by owner id. It backs the SSE stream
// when the API and the worker run in the same process.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan reports.Notification]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[string]map[chan reports.Notification]struct{}), logger: logger}
}

// Subscribe registers a channel for owner. Call cancel to unsubscribe.
func (h *Hub) Subscribe(owner string) (<-chan reports.Notification, func()) {
	ch := make(chan reports.Notification, subscriberBuffer)
	h.mu.Lock()
	if h.subs[owner] == nil {
		h.subs[owner] = make(map[chan reports.Notification]struct{})
	}
	h.subs[owner][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[owner], ch)
			if len(h.subs[owner]) == 0 {
				delete(h.subs, owner)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Notify never blocks; full subscriber buffers drop the event.
func (h *Hub) Notify(_ context.Context, n reports.Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[n.OwnerID] {
		select {
		case ch <- n:
		default:
			h.logger.Warn("subscriber lagging, event dropped", "owner_id", n.OwnerID, "report_id", n.ReportID)
		}
	}
	return nil
}

// Subscribers counts live subscriptions for owner.
func (h *Hub) Subscribers(owner string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[owner])
}

// ServeSSE streams events for the {owner} URL param as Server-Sent Events.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	if owner == "" {
		http.Error(w, "owner required", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	events, cancel := h.Subscribe(owner)
	defer cancel()

	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case n, ok := <-events:
			if !ok {
				return
			}
			b, err := json.Marshal(n)
			if err != nil {
				h.logger.Error("encode event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", EventReportUpdated, b)
			flusher.Flush()
		}
	}
}

var _ reports.Notifier = (*Hub)(nil)
