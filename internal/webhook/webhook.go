// Package webhook is a minimal fire-and-forget POST dispatcher, invoked
// after a delta commits, kept out of the mutation engine's transaction
// boundary. It supplements the core with the original hecate
// implementation's webhook-on-update behavior (its AuthWebhooks list of
// list/delete/update hooks), reduced here to a single "delta committed"
// event the way this repo has a single commit point.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Event is the payload posted to the configured webhook URL. EventID is a
// fresh uuid per event so a receiver can correlate it, the way
// views/geoview.go generates a uuid per request for downstream correlation.
// Each event is posted once; a failed delivery is logged and not retried.
type Event struct {
	EventID   string    `json:"event_id"`
	DeltaID   int64     `json:"delta_id"`
	UserID    int64     `json:"user_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatcher posts Events to a fixed URL, best-effort. An empty URL disables
// dispatch entirely.
type Dispatcher struct {
	URL    string
	Client *http.Client
}

func New(url string) *Dispatcher {
	return &Dispatcher{URL: url, Client: &http.Client{Timeout: 5 * time.Second}}
}

// Fire posts ev in its own goroutine and never returns an error to the
// caller — a failed webhook must not affect the mutation that triggered it.
func (d *Dispatcher) Fire(ev Event) {
	if d == nil || d.URL == "" {
		return
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	go d.post(ev)
}

func (d *Dispatcher) post(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("webhook: failed to marshal event: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.Client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		log.Printf("webhook: failed to build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		log.Printf("webhook: dispatch to %s failed: %v", d.URL, err)
		return
	}
	resp.Body.Close()
}
