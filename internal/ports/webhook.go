package ports

import "context"

// WebhookClient fans a JSON payload out to callback URLs. Implementations
// deduplicate identical URLs within one invocation and deliver
// concurrently with bounded parallelism.
type WebhookClient interface {
	// Deliver POSTs the payload to each unique URL and reports per-URL
	// success keyed by URL. It returns an error only when every delivery
	// failed.
	Deliver(ctx context.Context, urls []string, payload any) (map[string]bool, error)
}
