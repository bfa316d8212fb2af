// Package filemanager analyses uploaded files: MIME sniffing, declared
// format validation and conversion to the markdown rendition every
// downstream stage works on.
package filemanager

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/h2non/filetype"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
	"github.com/fyrsmithlabs/knowledged/internal/faults"
)

const (
	MIMEMarkdown = "text/markdown"
	MIMEHTML     = "text/html"
	MIMEPlain    = "text/plain"
)

// FileManager implements ports.FileManager for text-family content.
// Binary formats are detected but not extractable.
type FileManager struct{}

func New() *FileManager {
	return &FileManager{}
}

// SupportedTypes lists the MIME types ExtractMarkdown accepts.
func (f *FileManager) SupportedTypes() []string {
	return []string{MIMEMarkdown, MIMEHTML, MIMEPlain}
}

// DetectType sniffs the MIME type of the file content. Binary signatures
// are checked first; anything that decodes as UTF-8 text is classified by
// content shape and file extension.
func (f *FileManager) DetectType(_ context.Context, r *domain.Resource) (string, error) {
	if len(r.File) == 0 {
		return "", faults.Validation("detect_type", "resource %s has no file content", r.ID)
	}

	if kind, err := filetype.Match(r.File); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value, nil
	}

	if !utf8.Valid(r.File) {
		return "application/octet-stream", nil
	}

	text := string(r.File)
	switch {
	case looksLikeHTML(text):
		return MIMEHTML, nil
	case hasExt(r.FileName, ".md", ".markdown") || looksLikeMarkdown(text):
		return MIMEMarkdown, nil
	default:
		return MIMEPlain, nil
	}
}

// ValidateFormat checks the declared file type against the sniffed
// content. Markdown and plain text are mutually acceptable because plain
// prose is valid markdown.
func (f *FileManager) ValidateFormat(ctx context.Context, r *domain.Resource) (bool, error) {
	if r.FileType == "" {
		return false, faults.Validation("validate_format", "resource %s has no declared file type", r.ID)
	}
	detected, err := f.DetectType(ctx, r)
	if err != nil {
		return false, err
	}
	if detected == r.FileType {
		return true, nil
	}
	textFamily := map[string]bool{MIMEMarkdown: true, MIMEPlain: true}
	return textFamily[detected] && textFamily[r.FileType], nil
}

// ExtractMarkdown converts the file content into markdown. Markdown passes
// through verbatim, HTML is converted, plain text is taken as-is.
func (f *FileManager) ExtractMarkdown(_ context.Context, r *domain.Resource) (string, error) {
	switch r.FileType {
	case MIMEMarkdown, MIMEPlain:
		return string(r.File), nil
	case MIMEHTML:
		md, err := htmltomarkdown.ConvertString(string(r.File))
		if err != nil {
			return "", faults.Errorf(faults.KindInvalidFormat, "extract_markdown",
				"resource %s: html conversion failed: %v", r.ID, err)
		}
		return md, nil
	default:
		return "", faults.InvalidFormat("extract_markdown",
			"resource %s: unsupported file type %q", r.ID, r.FileType)
	}
}

var htmlTagRe = regexp.MustCompile(`(?i)<(!doctype\s+html|html|head|body|div|p|h[1-6]|table|a\s)[^>]*>`)

func looksLikeHTML(text string) bool {
	return htmlTagRe.MatchString(text)
}

var markdownMarkerRe = regexp.MustCompile(`(?m)^(#{1,6}\s|\* |- |\d+\. |> |` + "```" + `)`)

func looksLikeMarkdown(text string) bool {
	return markdownMarkerRe.MatchString(text)
}

func hasExt(name string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
