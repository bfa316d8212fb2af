package memstore

import (
	"context"
	"sync"
)

// WebhookDelivery is one recorded fan-out.
type WebhookDelivery struct {
	URLs    []string
	Payload any
}

// WebhookRecorder is a ports.WebhookClient that records deliveries instead
// of performing HTTP calls. Every URL is reported as delivered.
type WebhookRecorder struct {
	mu         sync.Mutex
	deliveries []WebhookDelivery
}

func NewWebhookRecorder() *WebhookRecorder {
	return &WebhookRecorder{}
}

func (w *WebhookRecorder) Deliver(_ context.Context, urls []string, payload any) (map[string]bool, error) {
	seen := make(map[string]bool, len(urls))
	unique := make([]string, 0, len(urls))
	for _, u := range urls {
		if !seen[u] {
			seen[u] = true
			unique = append(unique, u)
		}
	}

	w.mu.Lock()
	w.deliveries = append(w.deliveries, WebhookDelivery{URLs: unique, Payload: payload})
	w.mu.Unlock()

	status := make(map[string]bool, len(unique))
	for _, u := range unique {
		status[u] = true
	}
	return status, nil
}

// Deliveries returns a copy of everything delivered so far.
func (w *WebhookRecorder) Deliveries() []WebhookDelivery {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]WebhookDelivery(nil), w.deliveries...)
}
