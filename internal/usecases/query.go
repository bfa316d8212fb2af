package usecases

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
	"github.com/fyrsmithlabs/knowledged/internal/faults"
	"github.com/fyrsmithlabs/knowledged/internal/ports"
)

// loadSearch resolves the search request and enforces the end-to-end
// deadline. An exceeded deadline marks the search failed and reports done.
func (s *service) loadSearch(ctx context.Context, op, searchID string) (*domain.SearchRequest, bool, error) {
	sr, err := s.reg.Searches().Get(ctx, searchID)
	if err != nil {
		return nil, true, err
	}
	if sr.Status.Terminal() {
		return sr, true, nil
	}
	if sr.DeadlineExceeded(time.Now()) {
		s.logger.Warn("search deadline exceeded",
			zap.String("search_id", searchID),
			zap.String("stage", op))
		return sr, true, s.MarkSearchFailed(ctx, searchID, "timeout")
	}
	return sr, false, nil
}

// InitiateSearchRequest verifies the search exists and starts the
// pipeline.
func (s *service) InitiateSearchRequest(ctx context.Context, searchID string) error {
	ctx, span := s.stageSpan(ctx, "usecases.InitiateSearchRequest")
	defer span.End()

	_, done, err := s.loadSearch(ctx, "initiate_search_request", searchID)
	if done || err != nil {
		return err
	}
	return s.reg.Dispatch().EnqueueSearchStage(ctx, ports.StageVectoriseSearchQuery, searchID)
}

// VectoriseSearchQuery embeds the query text and stores the vector on the
// search node.
func (s *service) VectoriseSearchQuery(ctx context.Context, searchID string) error {
	ctx, span := s.stageSpan(ctx, "usecases.VectoriseSearchQuery")
	defer span.End()

	sr, done, err := s.loadSearch(ctx, "vectorise_search_query", searchID)
	if done || err != nil {
		return err
	}

	if len(sr.Embedding) == 0 {
		vector, err := s.reg.LanguageModel().Embed(ctx, sr.Query)
		if err != nil {
			return err
		}
		sr.Embedding = vector
		if err := s.reg.Graph().StoreSearchEmbedding(ctx, sr.ID, vector); err != nil {
			return err
		}
	}
	if _, err := s.advanceSearch(ctx, sr, domain.SearchVectorised); err != nil {
		return err
	}
	return s.reg.Dispatch().EnqueueSearchStage(ctx, ports.StageIdentifyRelatedContent, searchID)
}

// IdentifyRelatedContent ranks the scoped chunks against the query
// embedding and stores the top matches as search results. No candidates is
// not an error; the search continues with an empty evidence list.
func (s *service) IdentifyRelatedContent(ctx context.Context, searchID string) error {
	ctx, span := s.stageSpan(ctx, "usecases.IdentifyRelatedContent")
	defer span.End()

	sr, done, err := s.loadSearch(ctx, "identify_related_content", searchID)
	if done || err != nil {
		return err
	}
	if sr.Status.Replay(domain.SearchMatched) {
		// Duplicate delivery; the stored results stand.
		return s.reg.Dispatch().EnqueueSearchStage(ctx, ports.StageExecuteRagPrompt, searchID)
	}

	k := sr.MaxResults
	if k <= 0 {
		k = s.cfg.TopKDefault
	}
	matches, err := s.reg.Graph().RankRelevantChunks(ctx, sr, k)
	if err != nil {
		return err
	}
	if err := s.reg.Graph().SaveSearchMatches(ctx, sr.ID, matches); err != nil {
		return err
	}

	now := time.Now().UTC()
	results := make([]*domain.SearchResult, len(matches))
	for i, m := range matches {
		results[i] = &domain.SearchResult{
			ID:        domain.NewID(),
			SearchID:  sr.ID,
			ChunkID:   m.Chunk.ID,
			Content:   m.Chunk.Extract,
			Score:     m.Score,
			CreatedAt: now,
		}
	}
	if err := s.reg.Searches().SaveResults(ctx, sr.ID, results); err != nil {
		return err
	}
	s.logger.Info("search matched",
		zap.String("search_id", sr.ID),
		zap.Int("matches", len(matches)))

	if _, err := s.advanceSearch(ctx, sr, domain.SearchMatched); err != nil {
		return err
	}
	return s.reg.Dispatch().EnqueueSearchStage(ctx, ports.StageExecuteRagPrompt, searchID)
}

// ExecuteRAGPrompt renders the prompt from the matched extracts and runs
// the language model.
func (s *service) ExecuteRAGPrompt(ctx context.Context, searchID string) error {
	ctx, span := s.stageSpan(ctx, "usecases.ExecuteRAGPrompt")
	defer span.End()

	sr, done, err := s.loadSearch(ctx, "execute_rag_prompt", searchID)
	if done || err != nil {
		return err
	}

	if sr.Response == "" {
		matches, err := s.reg.Graph().RelevantChunks(ctx, sr.ID)
		if err != nil {
			return err
		}
		extracts := make([]string, len(matches))
		for i, m := range matches {
			extracts[i] = m.Chunk.Extract
		}

		prompt := s.cfg.QueryType.Render(sr.Query, extracts)
		response, err := s.reg.LanguageModel().GenerateRAG(ctx, prompt, extracts)
		if err != nil {
			return err
		}
		sr.Prompt = prompt
		sr.Response = response
		if err := s.reg.Graph().SaveSearchResponse(ctx, sr.ID, prompt, response); err != nil {
			return err
		}
	}

	if _, err := s.advanceSearch(ctx, sr, domain.SearchGenerated); err != nil {
		return err
	}
	return s.reg.Dispatch().EnqueueSearchStage(ctx, ports.StageIssueCredentials, searchID)
}

// IssueCredentials obtains the provenance credential for the search.
func (s *service) IssueCredentials(ctx context.Context, searchID string) error {
	ctx, span := s.stageSpan(ctx, "usecases.IssueCredentials")
	defer span.End()

	sr, done, err := s.loadSearch(ctx, "issue_credentials", searchID)
	if done || err != nil {
		return err
	}

	if sr.CredentialURL == "" {
		url, err := s.reg.LanguageModel().IssueCredential(ctx, sr.ID)
		if err != nil {
			return err
		}
		sr.CredentialURL = url
		if err := s.reg.Graph().SaveCredentialURL(ctx, sr.ID, url); err != nil {
			return err
		}
	}

	if _, err := s.advanceSearch(ctx, sr, domain.SearchCredentialled); err != nil {
		return err
	}
	return s.reg.Dispatch().EnqueueSearchStage(ctx, ports.StageVentilateSearchResults, searchID)
}

// VentilateSearchResults fans the completion event out and marks the
// search ready. An already-ready search posts nothing.
func (s *service) VentilateSearchResults(ctx context.Context, searchID string) error {
	ctx, span := s.stageSpan(ctx, "usecases.VentilateSearchResults")
	defer span.End()

	sr, done, err := s.loadSearch(ctx, "ventilate_search_results", searchID)
	if done || err != nil {
		return err
	}

	if len(sr.CallbackURLs) > 0 {
		event := WebhookEvent{
			EventType: "search.ready",
			SearchID:  sr.ID,
			Status:    string(domain.SearchReady),
			Timestamp: time.Now().UTC(),
		}
		if _, err := s.reg.Webhooks().Deliver(ctx, sr.CallbackURLs, event); err != nil {
			return faults.Transient("ventilate_search_results", err)
		}
	}

	advanced, err := s.advanceSearch(ctx, sr, domain.SearchReady)
	if err != nil {
		return err
	}
	if advanced {
		s.searchesDone.Add(ctx, 1)
	}
	return nil
}
