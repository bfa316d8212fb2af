// Package llm implements the LanguageModel port on the OpenAI API, with a
// small HTTP client against the wallet service for credential issuance.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/knowledged/internal/faults"
	"github.com/fyrsmithlabs/knowledged/internal/vectorindex"
)

// Config holds the provider settings.
type Config struct {
	// APIKey authenticates against the OpenAI API.
	APIKey string
	// BaseURL overrides the API endpoint, for proxies and compatible
	// servers. Empty means the public API.
	BaseURL string
	// EmbeddingModel is the embedding model id.
	EmbeddingModel string
	// ChatModel is the generation model id.
	ChatModel string
	// RequestsPerSecond throttles outbound API calls. Zero disables
	// throttling.
	RequestsPerSecond float64
	// WalletBaseURL is the credential wallet endpoint. Empty means no
	// wallet; a placeholder credential reference is issued instead.
	WalletBaseURL string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		EmbeddingModel:    string(openai.EmbeddingModelTextEmbedding3Small),
		ChatModel:         openai.ChatModelGPT4oMini,
		RequestsPerSecond: 10,
	}
}

// OpenAI is the ports.LanguageModel backed by the OpenAI API.
type OpenAI struct {
	client  openai.Client
	cfg     Config
	limiter *rate.Limiter
	http    *http.Client
}

// New builds the provider. The API key is required.
func New(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	def := DefaultConfig()
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = def.EmbeddingModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = def.ChatModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &OpenAI{
		client:  openai.NewClient(opts...),
		cfg:     cfg,
		limiter: limiter,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (o *OpenAI) wait(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}
	return o.limiter.Wait(ctx)
}

// Embed returns the L2-normalised embedding of a text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, faults.Validation("embed", "cannot embed empty text")
	}
	if err := o.wait(ctx); err != nil {
		return nil, faults.Transient("embed", err)
	}

	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.cfg.EmbeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
	})
	if err != nil {
		return nil, faults.Transient("embed", err)
	}
	if len(resp.Data) == 0 {
		return nil, faults.Internal("embed", errors.New("empty embedding response"))
	}

	raw := resp.Data[0].Embedding
	v := make([]float32, len(raw))
	for i, x := range raw {
		v[i] = float32(x)
	}
	return vectorindex.Normalise(v), nil
}

// GenerateRAG answers a rendered prompt. The context extracts are already
// substituted into the prompt by the caller; they are passed again so
// implementations that support separate grounding inputs can use them.
func (o *OpenAI) GenerateRAG(ctx context.Context, prompt string, _ []string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", faults.Validation("generate_rag", "cannot generate from an empty prompt")
	}
	if err := o.wait(ctx); err != nil {
		return "", faults.Transient("generate_rag", err)
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.cfg.ChatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", faults.Transient("generate_rag", err)
	}
	if len(resp.Choices) == 0 {
		return "", faults.Internal("generate_rag", errors.New("empty completion response"))
	}
	return resp.Choices[0].Message.Content, nil
}

// IssueCredential asks the wallet service for a verifiable credential
// describing the completed search and returns its URL. Without a wallet
// the search still completes; a placeholder reference is returned.
func (o *OpenAI) IssueCredential(ctx context.Context, searchID string) (string, error) {
	if o.cfg.WalletBaseURL == "" {
		return "https://credentials.invalid/" + searchID, nil
	}
	if err := o.wait(ctx); err != nil {
		return "", faults.Transient("issue_credential", err)
	}

	body, err := json.Marshal(map[string]string{"search_id": searchID})
	if err != nil {
		return "", faults.Internal("issue_credential", err)
	}
	url := strings.TrimSuffix(o.cfg.WalletBaseURL, "/") + "/credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", faults.Internal("issue_credential", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return "", faults.Transient("issue_credential", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", faults.Transient("issue_credential",
			fmt.Errorf("wallet returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return "", faults.Errorf(faults.KindInternal, "issue_credential",
			"wallet rejected request with %d", resp.StatusCode)
	}

	var payload struct {
		CredentialURL string `json:"credential_url"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return "", faults.Internal("issue_credential", err)
	}
	if payload.CredentialURL == "" {
		return "", faults.Internal("issue_credential", errors.New("wallet response missing credential_url"))
	}
	return payload.CredentialURL, nil
}
