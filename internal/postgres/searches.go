package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
)

// SearchStore is the PostgreSQL ports.SearchStore.
type SearchStore struct {
	s *Store
}

func NewSearchStore(s *Store) *SearchStore {
	return &SearchStore{s: s}
}

func (st *SearchStore) SaveRequest(ctx context.Context, sr *domain.SearchRequest) error {
	const op = "save_search_request"
	filters, err := json.Marshal(orEmpty(sr.Filters))
	if err != nil {
		return wrapErr(op, err)
	}
	_, err = st.s.pool.Exec(ctx,
		`INSERT INTO search_requests
			(id, collection_id, query, resource_ids, filters, callback_urls,
			 max_results, created_at, deadline, status, embedding, prompt,
			 response, credential_url, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, embedding = EXCLUDED.embedding,
			prompt = EXCLUDED.prompt, response = EXCLUDED.response,
			credential_url = EXCLUDED.credential_url, error = EXCLUDED.error`,
		sr.ID, sr.CollectionID, sr.Query, sr.ResourceIDs, filters, sr.CallbackURLs,
		sr.MaxResults, sr.CreatedAt, nullTime(sr.Deadline), string(sr.Status),
		sr.Embedding, sr.Prompt, sr.Response, sr.CredentialURL, sr.Error)
	return wrapErr(op, err)
}

func (st *SearchStore) Get(ctx context.Context, id string) (*domain.SearchRequest, error) {
	const op = "get_search_request"
	var sr domain.SearchRequest
	var filters []byte
	var deadline *time.Time
	var status string
	err := st.s.pool.QueryRow(ctx,
		`SELECT id, collection_id, query, resource_ids, filters, callback_urls,
			max_results, created_at, deadline, status, embedding, prompt,
			response, credential_url, error
		 FROM search_requests WHERE id = $1`, id).
		Scan(&sr.ID, &sr.CollectionID, &sr.Query, &sr.ResourceIDs, &filters,
			&sr.CallbackURLs, &sr.MaxResults, &sr.CreatedAt, &deadline, &status,
			&sr.Embedding, &sr.Prompt, &sr.Response, &sr.CredentialURL, &sr.Error)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	if err := json.Unmarshal(filters, &sr.Filters); err != nil {
		return nil, wrapErr(op, err)
	}
	if deadline != nil {
		sr.Deadline = *deadline
	}
	sr.Status = domain.SearchStatus(status)
	return &sr, nil
}

func (st *SearchStore) Update(ctx context.Context, sr *domain.SearchRequest) error {
	tag, err := st.s.pool.Exec(ctx,
		`UPDATE search_requests SET
			status = $2, embedding = $3, prompt = $4, response = $5,
			credential_url = $6, error = $7
		 WHERE id = $1`,
		sr.ID, string(sr.Status), sr.Embedding, sr.Prompt, sr.Response,
		sr.CredentialURL, sr.Error)
	if err != nil {
		return wrapErr("update_search_request", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapErr("update_search_request", errNoRows())
	}
	return nil
}

func (st *SearchStore) SaveResults(ctx context.Context, searchID string, results []*domain.SearchResult) error {
	const op = "save_search_results"
	tx, err := st.s.pool.Begin(ctx)
	if err != nil {
		return wrapErr(op, err)
	}
	defer tx.Rollback(ctx)

	// Replays overwrite the evidence set wholesale.
	if _, err := tx.Exec(ctx, `DELETE FROM search_results WHERE search_id = $1`, searchID); err != nil {
		return wrapErr(op, err)
	}
	for _, r := range results {
		_, err := tx.Exec(ctx,
			`INSERT INTO search_results (id, search_id, chunk_id, content, score, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			r.ID, searchID, r.ChunkID, r.Content, r.Score, r.CreatedAt)
		if err != nil {
			return wrapErr(op, err)
		}
	}
	return wrapErr(op, tx.Commit(ctx))
}

func (st *SearchStore) Results(ctx context.Context, searchID string) ([]*domain.SearchResult, error) {
	const op = "get_search_results"
	rows, err := st.s.pool.Query(ctx,
		`SELECT id, search_id, chunk_id, content, score, created_at
		 FROM search_results WHERE search_id = $1 ORDER BY score DESC, created_at`, searchID)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var out []*domain.SearchResult
	for rows.Next() {
		var r domain.SearchResult
		if err := rows.Scan(&r.ID, &r.SearchID, &r.ChunkID, &r.Content, &r.Score, &r.CreatedAt); err != nil {
			return nil, wrapErr(op, err)
		}
		out = append(out, &r)
	}
	return out, wrapErr(op, rows.Err())
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
