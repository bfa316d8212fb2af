// Package chunker splits extracted markdown into retrieval chunks.
//
// Two strategies exist. Structured resource types go through a
// header-aware markdown split that records the section path of each chunk;
// plain types go through a recursive character split. Both produce
// sequences 0..n-1 in document order.
package chunker

import (
	"context"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
	"github.com/fyrsmithlabs/knowledged/internal/faults"
)

// Config tunes chunk geometry.
type Config struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int
	// ChunkOverlap is the overlap between adjacent chunks.
	ChunkOverlap int
	// ContextWindow is how many characters of the neighbouring chunks are
	// kept as preamble and postamble.
	ContextWindow int
}

// DefaultConfig returns the chunk geometry used in production.
func DefaultConfig() Config {
	return Config{ChunkSize: 1200, ChunkOverlap: 200, ContextWindow: 240}
}

// Chunker is the ports.Chunker implementation.
type Chunker struct {
	cfg Config
}

// New builds a chunker; zero config fields fall back to defaults.
func New(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = def.ChunkOverlap
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = def.ContextWindow
	}
	return &Chunker{cfg: cfg}
}

// plainTypes are the resource type names split without header awareness.
var plainTypes = map[string]bool{
	"plain_text": true,
	"plaintext":  true,
	"text":       true,
	"log":        true,
}

// Chunk splits the resource's markdown rendition. The resource must have
// been through extraction.
func (c *Chunker) Chunk(_ context.Context, rt *domain.ResourceType, r *domain.Resource) ([]domain.ResourceChunk, error) {
	if r.MarkdownContent == "" {
		return nil, faults.Validation("chunk_resource", "resource %s has no extracted content", r.ID)
	}

	var splitter textsplitter.TextSplitter
	if rt != nil && plainTypes[strings.ToLower(rt.Name)] {
		splitter = textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(c.cfg.ChunkSize),
			textsplitter.WithChunkOverlap(c.cfg.ChunkOverlap),
		)
	} else {
		splitter = textsplitter.NewMarkdownTextSplitter(
			textsplitter.WithChunkSize(c.cfg.ChunkSize),
			textsplitter.WithChunkOverlap(c.cfg.ChunkOverlap),
		)
	}

	parts, err := splitter.SplitText(r.MarkdownContent)
	if err != nil {
		return nil, faults.Internal("chunk_resource", err)
	}

	chunks := make([]domain.ResourceChunk, 0, len(parts))
	offset := 0
	for _, text := range parts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		path, nextOffset := sectionPath(r.MarkdownContent, text, offset)
		offset = nextOffset

		chunks = append(chunks, domain.ResourceChunk{
			ID:         domain.NewID(),
			ResourceID: r.ID,
			Sequence:   len(chunks),
			Text:       text,
			Extract:    extractFor(path, text),
			Path:       path,
			Metadata: map[string]string{
				"file_name": r.FileName,
				"file_type": r.FileType,
			},
		})
	}

	c.attachContext(chunks)
	return chunks, nil
}

// extractFor prefixes the chunk text with its section breadcrumb so the
// embedding carries document structure.
func extractFor(path []domain.SectionHeader, text string) string {
	if len(path) == 0 {
		return text
	}
	headings := make([]string, len(path))
	for i, h := range path {
		headings[i] = h.Heading
	}
	return strings.Join(headings, " > ") + "\n" + text
}

// attachContext sets each chunk's preamble and postamble from its
// neighbours.
func (c *Chunker) attachContext(chunks []domain.ResourceChunk) {
	for i := range chunks {
		if i > 0 {
			chunks[i].Preamble = tail(chunks[i-1].Text, c.cfg.ContextWindow)
		}
		if i < len(chunks)-1 {
			chunks[i].Postamble = head(chunks[i+1].Text, c.cfg.ContextWindow)
		}
	}
}

func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

func head(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

var headingRe = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+?)\s*$`)

// sectionPath locates the chunk within the source document and returns the
// stack of headings open at that position. Search starts at offset so
// repeated chunk text resolves to successive occurrences; the returned
// offset is where the next chunk should start looking.
func sectionPath(source, chunk string, offset int) ([]domain.SectionHeader, int) {
	// The markdown splitter may re-emit the heading at the top of the
	// chunk; locate by the first non-heading line to anchor in the source.
	anchor := anchorLine(chunk)
	pos := strings.Index(source[min(offset, len(source)):], anchor)
	if pos < 0 {
		pos = strings.Index(source, anchor)
		if pos < 0 {
			return nil, offset
		}
	} else {
		pos += min(offset, len(source))
	}

	var stack []domain.SectionHeader
	var levels []int
	for _, m := range headingRe.FindAllStringSubmatchIndex(source[:pos], -1) {
		level := m[3] - m[2]
		heading := source[m[4]:m[5]]
		for len(levels) > 0 && levels[len(levels)-1] >= level {
			levels = levels[:len(levels)-1]
			stack = stack[:len(stack)-1]
		}
		levels = append(levels, level)
		stack = append(stack, domain.SectionHeader{ID: domain.NewID(), Heading: heading})
	}
	return stack, pos + len(anchor)
}

// anchorLine returns a short prefix of the first non-heading line of the
// chunk. The splitter may re-wrap long lines, so only the leading 40 runes
// are used; a prefix that short survives re-wrapping.
func anchorLine(chunk string) string {
	var first string
	for _, line := range strings.Split(chunk, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if first == "" {
			first = line
		}
		if !strings.HasPrefix(line, "#") {
			return head(line, 40)
		}
	}
	return head(first, 40)
}
