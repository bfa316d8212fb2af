package ports

import "context"

// LanguageModel is the embedding and generation provider plus the wallet
// that attests search provenance.
type LanguageModel interface {
	// Embed returns the embedding vector for a text. Vectors are
	// L2-normalised so similarity is a plain dot product.
	Embed(ctx context.Context, text string) ([]float32, error)

	// GenerateRAG answers a rendered prompt conditioned on the ordered
	// context extracts.
	GenerateRAG(ctx context.Context, prompt string, context []string) (string, error)

	// IssueCredential issues a verifiable credential describing the
	// provenance of a completed search and returns its URL.
	IssueCredential(ctx context.Context, searchID string) (string, error)
}
