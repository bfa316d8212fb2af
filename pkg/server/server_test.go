package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/antivirus"
	"github.com/fyrsmithlabs/knowledged/internal/chunker"
	"github.com/fyrsmithlabs/knowledged/internal/faults"
	"github.com/fyrsmithlabs/knowledged/internal/filemanager"
	"github.com/fyrsmithlabs/knowledged/internal/memstore"
	"github.com/fyrsmithlabs/knowledged/internal/ports"
	"github.com/fyrsmithlabs/knowledged/internal/registry"
	"github.com/fyrsmithlabs/knowledged/internal/usecases"
)

// newTestServer wires the full service to in-memory adapters with an
// inline dispatcher, so pipelines settle before a request returns.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	dispatcher := memstore.NewDispatcher()
	reg, err := registry.New(registry.Options{
		Dispatch:      dispatcher,
		Subscriptions: memstore.NewSubscriptionStore(),
		Collections:   memstore.NewCollectionStore(),
		ResourceTypes: memstore.NewResourceTypeStore(),
		Resources:     memstore.NewResourceStore(),
		Searches:      memstore.NewSearchStore(),
		Graph:         memstore.NewGraphStore(nil),
		FileManager:   filemanager.New(),
		Antivirus:     antivirus.NewScanner(),
		Quarantine:    memstore.NewQuarantine(),
		LanguageModel: memstore.NewStaticLanguageModel(),
		Chunker:       chunker.New(chunker.Config{ChunkSize: 16, ChunkOverlap: 0}),
		Webhooks:      memstore.NewWebhookRecorder(),
	})
	require.NoError(t, err)

	svc, err := usecases.New(usecases.Config{}, reg, zap.NewNop())
	require.NoError(t, err)

	dispatcher.OnResourceStage(func(ctx context.Context, stage ports.Stage, id string) error {
		if err := svc.RunResourceStage(ctx, stage, id); err != nil && !faults.Retryable(err) {
			_ = svc.MarkResourceFailed(ctx, id, err.Error())
		}
		return nil
	})
	dispatcher.OnSearchStage(func(ctx context.Context, stage ports.Stage, id string) error {
		if err := svc.RunSearchStage(ctx, stage, id); err != nil && !faults.Retryable(err) {
			_ = svc.MarkSearchFailed(ctx, id, err.Error())
		}
		return nil
	})

	srv, err := New(svc, zap.NewNop(), Config{})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

// seedTenant creates a resource type, subscription and collection over the
// API and returns their ids.
func seedTenant(t *testing.T, srv *Server) (subID, colID, typeID string) {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/resource-types/", map[string]any{
		"name": "markdown", "tooltip": "markdown documents",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var rt struct {
		ID string `json:"id"`
	}
	decode(t, rec, &rt)

	rec = doJSON(t, srv, http.MethodPost, "/subscriptions/", map[string]any{
		"name": "S", "resource_type_ids": []string{rt.ID}, "status": "active",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var sub struct {
		ID string `json:"id"`
	}
	decode(t, rec, &sub)

	rec = doJSON(t, srv, http.MethodPost, "/subscriptions/"+sub.ID+"/collections", map[string]any{
		"name": "C", "resource_type_ids": []string{rt.ID},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var col struct {
		ID string `json:"id"`
	}
	decode(t, rec, &col)

	return sub.ID, col.ID, rt.ID
}

func uploadResource(t *testing.T, srv *Server, colID, typeID, fileName, content string, webhooks ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("new_resource", fileName)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	for _, url := range webhooks {
		require.NoError(t, w.WriteField("webhooks", url))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/collections/"+colID+"/"+typeID, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndRoot(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)

	rec = doJSON(t, srv, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "knowledged")
}

func TestSubscriptionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	subID, colID, _ := seedTenant(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/subscriptions/"+subID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), colID)

	rec = doJSON(t, srv, http.MethodGet, "/subscriptions/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/subscriptions/"+subID+"/resource-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "markdown")

	rec = doJSON(t, srv, http.MethodDelete, "/subscriptions/"+subID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)

	rec = doJSON(t, srv, http.MethodGet, "/subscriptions/"+subID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollectionNameConflictIs409(t *testing.T) {
	srv := newTestServer(t)
	subID, _, typeID := seedTenant(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/subscriptions/"+subID+"/collections", map[string]any{
		"name": "C", "resource_type_ids": []string{typeID},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "conflict")
}

func TestValidationErrorsAre422(t *testing.T) {
	srv := newTestServer(t)
	subID, colID, _ := seedTenant(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/subscriptions/"+subID+"/collections", map[string]any{
		"name": "", "resource_type_ids": []string{},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/collections/"+colID+"/query", map[string]any{
		"prompt": "   ",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUploadAndIngestToReady(t *testing.T) {
	srv := newTestServer(t)
	_, colID, typeID := seedTenant(t, srv)

	rec := uploadResource(t, srv, colID, typeID, "guide.md", "# Guide\n\nfirst part\n\nsecond part")
	require.Equal(t, http.StatusOK, rec.Code)

	var upload struct {
		ResourceID  string `json:"resource_id"`
		Status      string `json:"status"`
		ResourceURL string `json:"resource_url"`
	}
	decode(t, rec, &upload)
	assert.NotEmpty(t, upload.ResourceID)
	assert.Equal(t, fmt.Sprintf("/resources/%s", upload.ResourceID), upload.ResourceURL)

	// Inline dispatch means the pipeline has already settled.
	rec = doJSON(t, srv, http.MethodGet, upload.ResourceURL, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resource struct {
		Status   string `json:"status"`
		FileType string `json:"file_type"`
	}
	decode(t, rec, &resource)
	assert.Equal(t, "ready", resource.Status)
	assert.Equal(t, "text/markdown", resource.FileType)

	rec = doJSON(t, srv, http.MethodGet, "/collections/"+colID+"/resources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "guide.md")

	rec = doJSON(t, srv, http.MethodGet, "/collections/"+colID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"num_resources":1`)
}

func TestUploadRejectsDisallowedType(t *testing.T) {
	srv := newTestServer(t)
	_, colID, _ := seedTenant(t, srv)

	rec := uploadResource(t, srv, colID, "00000000-0000-0000-0000-000000000000", "a.md", "# a")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUploadRequiresFilePart(t *testing.T) {
	srv := newTestServer(t)
	_, colID, typeID := seedTenant(t, srv)

	req := httptest.NewRequest(http.MethodPost, "/collections/"+colID+"/"+typeID,
		strings.NewReader("plain body"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	_, colID, typeID := seedTenant(t, srv)

	rec := uploadResource(t, srv, colID, typeID, "notes.md", "# Notes\n\nalpha beta\n\ngamma delta")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/collections/"+colID+"/query", map[string]any{
		"prompt": "what is alpha?",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var search struct {
		SearchID  string `json:"search_id"`
		SearchURL string `json:"search_url"`
	}
	decode(t, rec, &search)
	require.NotEmpty(t, search.SearchID)

	rec = doJSON(t, srv, http.MethodGet, search.SearchURL, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		Status        string `json:"status"`
		Response      string `json:"response"`
		CredentialURL string `json:"credential_url"`
		Results       []struct {
			ChunkID string  `json:"chunk_id"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	decode(t, rec, &result)
	assert.Equal(t, "ready", result.Status)
	assert.NotEmpty(t, result.Response)
	assert.NotEmpty(t, result.CredentialURL)
	assert.NotEmpty(t, result.Results)

	rec = doJSON(t, srv, http.MethodGet, "/query-results/"+search.SearchID+"/metadata", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "what is alpha?")
}

func TestQueryResourceScopesToResource(t *testing.T) {
	srv := newTestServer(t)
	_, colID, typeID := seedTenant(t, srv)

	rec := uploadResource(t, srv, colID, typeID, "one.md", "# One\n\ncontent one here")
	require.Equal(t, http.StatusOK, rec.Code)
	var upload struct {
		ResourceID string `json:"resource_id"`
	}
	decode(t, rec, &upload)

	rec = doJSON(t, srv, http.MethodPost, "/resource/"+upload.ResourceID+"/query", map[string]any{
		"prompt": "content?",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var search struct {
		SearchID string `json:"search_id"`
	}
	decode(t, rec, &search)

	rec = doJSON(t, srv, http.MethodGet, "/query-results/"+search.SearchID+"/metadata", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), upload.ResourceID)
}

func TestUnknownIDsAre404(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{
		"/subscriptions/missing",
		"/collections/missing",
		"/resources/missing",
		"/query-results/missing",
	} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestDeleteResource(t *testing.T) {
	srv := newTestServer(t)
	_, colID, typeID := seedTenant(t, srv)

	rec := uploadResource(t, srv, colID, typeID, "gone.md", "# Gone\n\nbye")
	require.Equal(t, http.StatusOK, rec.Code)
	var upload struct {
		ResourceID string `json:"resource_id"`
	}
	decode(t, rec, &upload)

	rec = doJSON(t, srv, http.MethodDelete, "/resources/"+upload.ResourceID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/resources/"+upload.ResourceID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
