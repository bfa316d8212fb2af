package filemanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
	"github.com/fyrsmithlabs/knowledged/internal/faults"
)

func TestDetectType(t *testing.T) {
	fm := New()
	ctx := t.Context()

	tests := []struct {
		name     string
		fileName string
		content  []byte
		want     string
	}{
		{"markdown by marker", "notes", []byte("# Title\n\nBody text."), "text/markdown"},
		{"markdown by extension", "notes.md", []byte("plain prose without markers"), "text/markdown"},
		{"html", "page", []byte("<html><body><p>hi</p></body></html>"), "text/html"},
		{"plain text", "readme", []byte("just some sentences here"), "text/plain"},
		{"png signature", "image", []byte("\x89PNG\r\n\x1a\n0000"), "image/png"},
		{"binary junk", "blob", []byte{0x00, 0xff, 0xfe, 0x01}, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &domain.Resource{ID: "r1", FileName: tt.fileName, File: tt.content}
			got, err := fm.DetectType(ctx, r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectTypeEmptyFile(t *testing.T) {
	fm := New()
	_, err := fm.DetectType(t.Context(), &domain.Resource{ID: "r1"})
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))
}

func TestValidateFormat(t *testing.T) {
	fm := New()
	ctx := t.Context()

	r := &domain.Resource{ID: "r1", FileName: "a.md", FileType: "text/markdown", File: []byte("# Title")}
	ok, err := fm.ValidateFormat(ctx, r)
	require.NoError(t, err)
	assert.True(t, ok)

	// Plain prose declared as markdown is acceptable.
	r = &domain.Resource{ID: "r2", FileName: "a", FileType: "text/markdown", File: []byte("prose only")}
	ok, err = fm.ValidateFormat(ctx, r)
	require.NoError(t, err)
	assert.True(t, ok)

	// HTML declared as markdown is not.
	r = &domain.Resource{ID: "r3", FileName: "a", FileType: "text/markdown", File: []byte("<html><body>x</body></html>")}
	ok, err = fm.ValidateFormat(ctx, r)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractMarkdownPassthrough(t *testing.T) {
	fm := New()
	r := &domain.Resource{ID: "r1", FileType: "text/markdown", File: []byte("# Title\n\nBody.")}
	md, err := fm.ExtractMarkdown(t.Context(), r)
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nBody.", md)
}

func TestExtractMarkdownFromHTML(t *testing.T) {
	fm := New()
	r := &domain.Resource{
		ID:       "r1",
		FileType: "text/html",
		File:     []byte("<h1>Title</h1><p>Body with <strong>bold</strong> text.</p>"),
	}
	md, err := fm.ExtractMarkdown(t.Context(), r)
	require.NoError(t, err)
	assert.Contains(t, md, "# Title")
	assert.Contains(t, md, "**bold**")
}

func TestExtractMarkdownUnsupportedType(t *testing.T) {
	fm := New()
	r := &domain.Resource{ID: "r1", FileType: "image/png", File: []byte("\x89PNG")}
	_, err := fm.ExtractMarkdown(t.Context(), r)
	assert.Equal(t, faults.KindInvalidFormat, faults.KindOf(err))
}

func TestSupportedTypes(t *testing.T) {
	assert.ElementsMatch(t,
		[]string{"text/markdown", "text/html", "text/plain"},
		New().SupportedTypes())
}
