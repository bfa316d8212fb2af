package antivirus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
	"github.com/fyrsmithlabs/knowledged/internal/ports"
)

func TestScanClean(t *testing.T) {
	s := NewScanner()
	verdict, err := s.Scan(t.Context(), &domain.Resource{File: []byte("harmless prose")})
	require.NoError(t, err)
	assert.Equal(t, ports.ScanClean, verdict)
}

func TestScanEicar(t *testing.T) {
	s := NewScanner()
	content := append([]byte("prefix "), []byte(EICAR)...)
	verdict, err := s.Scan(t.Context(), &domain.Resource{File: content})
	require.NoError(t, err)
	assert.Equal(t, ports.ScanInfected, verdict)
}

func TestScanExtraSignature(t *testing.T) {
	s := NewScanner("VIRUS")
	verdict, err := s.Scan(t.Context(), &domain.Resource{File: []byte("contains VIRUS marker")})
	require.NoError(t, err)
	assert.Equal(t, ports.ScanInfected, verdict)
}

func TestScanCancelledContext(t *testing.T) {
	s := NewScanner()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	verdict, err := s.Scan(ctx, &domain.Resource{File: []byte("x")})
	assert.Error(t, err)
	assert.Equal(t, ports.ScanError, verdict)
}
