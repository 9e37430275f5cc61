// Package notify delivers "report updated" events to report owners.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bryanwahyu/civic-triage/internal/domain/reports"
)

// EventReportUpdated is the event name clients subscribe to.
const EventReportUpdated = "report_updated"

// Envelope is what the fan-out service receives: emit Event with Payload to Room.
type Envelope struct {
	Room    string               `json:"room"`
	Event   string               `json:"event"`
	Payload reports.Notification `json:"payload"`
}

// Webhook posts envelopes to a real-time fan-out service.
type Webhook struct {
	URL     string
	Secret  string // sent as X-Notify-Secret when set
	Client  *http.Client
	Timeout time.Duration
}

func (w *Webhook) Notify(ctx context.Context, n reports.Notification) error {
	body, err := json.Marshal(Envelope{Room: n.OwnerID, Event: EventReportUpdated, Payload: n})
	if err != nil {
		return err
	}
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Secret != "" {
		req.Header.Set("X-Notify-Secret", w.Secret)
	}
	hc := w.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify webhook: status %d", resp.StatusCode)
	}
	return nil
}

var _ reports.Notifier = (*Webhook)(nil)
