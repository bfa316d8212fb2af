package ports

import (
	"context"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
)

// ScanVerdict is the outcome of an antivirus scan.
type ScanVerdict string

const (
	ScanClean    ScanVerdict = "CLEAN"
	ScanInfected ScanVerdict = "INFECTED"
	ScanError    ScanVerdict = "ERROR"
)

// FileManager analyses uploaded files: MIME detection, declared-format
// validation and markdown extraction. Format-specific extraction
// algorithms live entirely behind this port.
type FileManager interface {
	// SupportedTypes lists the MIME types the service can extract.
	SupportedTypes() []string

	// DetectType sniffs the MIME type of the resource's file content.
	DetectType(ctx context.Context, r *domain.Resource) (string, error)

	// ValidateFormat checks the declared file type against the content.
	ValidateFormat(ctx context.Context, r *domain.Resource) (bool, error)

	// ExtractMarkdown produces the markdown rendition of the resource.
	// The resource must have a known file type.
	ExtractMarkdown(ctx context.Context, r *domain.Resource) (string, error)
}

// AntivirusScanner screens file content for malware.
type AntivirusScanner interface {
	Scan(ctx context.Context, r *domain.Resource) (ScanVerdict, error)
}

// Quarantine isolates infected resources.
type Quarantine interface {
	// QuarantineResource moves the resource's content into quarantine.
	QuarantineResource(ctx context.Context, r *domain.Resource) error

	// IsQuarantined reports whether a resource is held in quarantine.
	IsQuarantined(ctx context.Context, resourceID string) (bool, error)
}

// Chunker splits extracted markdown into retrieval chunks. The strategy is
// selected by the resource type.
type Chunker interface {
	// Chunk returns the resource's chunks in document order, sequences
	// 0..n-1.
	Chunk(ctx context.Context, rt *domain.ResourceType, r *domain.Resource) ([]domain.ResourceChunk, error)
}
