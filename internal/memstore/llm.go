package memstore

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/knowledged/internal/vectorindex"
)

// StaticLanguageModel is a deterministic ports.LanguageModel for tests and
// the offline embedded mode. Embeddings are derived from a hash of the
// text, so equal texts always embed identically and similar texts do not.
type StaticLanguageModel struct {
	// Dimensions is the embedding width. Zero means 16.
	Dimensions int

	mu          sync.Mutex
	embedCalls  int
	genCalls    int
	credentials []string
}

func NewStaticLanguageModel() *StaticLanguageModel {
	return &StaticLanguageModel{}
}

func (m *StaticLanguageModel) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.embedCalls++
	m.mu.Unlock()

	dims := m.Dimensions
	if dims <= 0 {
		dims = 16
	}
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, dims)
	for i := range v {
		// Stretch the digest by hashing the digest plus the lane index.
		lane := sha256.Sum256(append(sum[:], byte(i)))
		bits := binary.BigEndian.Uint32(lane[:4])
		v[i] = float32(bits%2000)/1000 - 1 // [-1, 1)
	}
	return vectorindex.Normalise(v), nil
}

func (m *StaticLanguageModel) GenerateRAG(_ context.Context, prompt string, context []string) (string, error) {
	m.mu.Lock()
	m.genCalls++
	m.mu.Unlock()
	return fmt.Sprintf("answer(%d sources): %s", len(context), firstLine(prompt)), nil
}

func (m *StaticLanguageModel) IssueCredential(_ context.Context, searchID string) (string, error) {
	url := "https://credentials.invalid/" + searchID
	m.mu.Lock()
	m.credentials = append(m.credentials, url)
	m.mu.Unlock()
	return url, nil
}

// EmbedCalls reports how many embeddings were requested.
func (m *StaticLanguageModel) EmbedCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCalls
}

// GenerateCalls reports how many generations were requested.
func (m *StaticLanguageModel) GenerateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.genCalls
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
