// Package antivirus screens uploaded content before anything else touches
// it. The scanner is signature based: it always recognises the EICAR test
// string and can be armed with additional byte markers, which is also how
// the test suites provoke the quarantine path.
package antivirus

import (
	"bytes"
	"context"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
	"github.com/fyrsmithlabs/knowledged/internal/ports"
)

// EICAR is the standard antivirus test signature. Any file containing it
// must be treated as infected.
const EICAR = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

// Scanner implements ports.AntivirusScanner.
type Scanner struct {
	signatures [][]byte
}

// NewScanner builds a scanner armed with the EICAR signature plus any
// extra markers.
func NewScanner(extraSignatures ...string) *Scanner {
	sigs := [][]byte{[]byte(EICAR)}
	for _, s := range extraSignatures {
		if s != "" {
			sigs = append(sigs, []byte(s))
		}
	}
	return &Scanner{signatures: sigs}
}

// Scan checks the resource content against the armed signatures. An empty
// file scans clean; the upload layer rejects empties before this point.
func (s *Scanner) Scan(ctx context.Context, r *domain.Resource) (ports.ScanVerdict, error) {
	if err := ctx.Err(); err != nil {
		return ports.ScanError, err
	}
	for _, sig := range s.signatures {
		if bytes.Contains(r.File, sig) {
			return ports.ScanInfected, nil
		}
	}
	return ports.ScanClean, nil
}
