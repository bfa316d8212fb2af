// Package neo4j implements the property-graph store on Neo4j. The graph
// carries the ownership chain
// (:Subscription)-[:OWNS]->(:Collection)-[:CONTAINS]->(:Resource)-[:HAS_CHUNK]->(:Chunk)
// plus (:Search)-[:ABOUT]->(:Collection) and (:Search)-[:MATCHES {score}]->(:Chunk)
// edges. Deleted resources stay in the graph with is_deleted=true.
package neo4j

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
	"github.com/fyrsmithlabs/knowledged/internal/faults"
	"github.com/fyrsmithlabs/knowledged/internal/ports"
	"github.com/fyrsmithlabs/knowledged/internal/vectorindex"
)

// Config holds the driver settings.
type Config struct {
	URI      string
	User     string
	Password string
	// Database selects the target database. Empty means the server default.
	Database string
}

// GraphStore is the Neo4j ports.GraphStore.
type GraphStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// Connect opens the driver and verifies connectivity.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*GraphStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("invalid neo4j config: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to reach neo4j: %w", err)
	}
	return &GraphStore{driver: driver, database: cfg.Database, logger: logger.Named("neo4j")}, nil
}

// Close shuts the driver down.
func (g *GraphStore) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

func (g *GraphStore) session(ctx context.Context) neo4j.SessionWithContext {
	return g.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.database})
}

func (g *GraphStore) write(ctx context.Context, op, query string, params map[string]any) error {
	session := g.session(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	if err != nil {
		return faults.Transient(op, err)
	}
	return nil
}

func (g *GraphStore) ResourceNodeExists(ctx context.Context, resourceID string) (bool, error) {
	const op = "graph_resource_exists"
	session := g.session(ctx)
	defer session.Close(ctx)
	exists, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			`MATCH (r:Resource {id: $id}) RETURN count(r) > 0 AS present`,
			map[string]any{"id": resourceID})
		if err != nil {
			return false, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return false, err
		}
		present, _ := record.Get("present")
		return present, nil
	})
	if err != nil {
		return false, faults.Transient(op, err)
	}
	return exists.(bool), nil
}

func (g *GraphStore) UpsertResourceNode(ctx context.Context, sub *domain.Subscription, col *domain.Collection, r *domain.Resource) error {
	return g.write(ctx, "graph_upsert_resource",
		`MERGE (s:Subscription {id: $sub_id})
		 SET s.name = $sub_name
		 MERGE (c:Collection {id: $col_id})
		 SET c.name = $col_name
		 MERGE (r:Resource {id: $res_id})
		 SET r.name = $res_name, r.file_name = $file_name,
		     r.file_type = $file_type,
		     r.is_deleted = coalesce(r.is_deleted, false)
		 MERGE (s)-[:OWNS]->(c)
		 MERGE (c)-[:CONTAINS]->(r)`,
		map[string]any{
			"sub_id":    sub.ID,
			"sub_name":  sub.Name,
			"col_id":    col.ID,
			"col_name":  col.Name,
			"res_id":    r.ID,
			"res_name":  r.Name,
			"file_name": r.FileName,
			"file_type": r.FileType,
		})
}

func (g *GraphStore) CreateChunkNodes(ctx context.Context, chunks []domain.ResourceChunk) error {
	const op = "graph_create_chunks"
	rows := make([]map[string]any, 0, len(chunks))
	for _, c := range chunks {
		props, err := chunkProps(c)
		if err != nil {
			return faults.Internal(op, err)
		}
		rows = append(rows, props)
	}
	return g.write(ctx, op,
		`UNWIND $chunks AS chunk
		 MATCH (r:Resource {id: chunk.resource_id})
		 MERGE (c:Chunk {id: chunk.id})
		 ON CREATE SET
		     c.resource_id = chunk.resource_id, c.sequence = chunk.sequence,
		     c.text = chunk.text, c.extract = chunk.extract,
		     c.preamble = chunk.preamble, c.postamble = chunk.postamble,
		     c.path = chunk.path, c.metadata = chunk.metadata
		 MERGE (r)-[:HAS_CHUNK]->(c)`,
		map[string]any{"chunks": rows})
}

func (g *GraphStore) UpdateChunkEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	return g.write(ctx, "graph_update_embedding",
		`MATCH (c:Chunk {id: $id}) SET c.embedding = $embedding`,
		map[string]any{"id": chunkID, "embedding": toFloat64(embedding)})
}

func (g *GraphStore) ChunksMissingEmbeddings(ctx context.Context, resourceID string) ([]domain.ResourceChunk, error) {
	return g.chunksWhere(ctx, "graph_chunks_missing_embeddings",
		`MATCH (:Resource {id: $id})-[:HAS_CHUNK]->(c:Chunk)
		 WHERE c.embedding IS NULL
		 RETURN c ORDER BY c.sequence`, resourceID)
}

func (g *GraphStore) Chunks(ctx context.Context, resourceID string) ([]domain.ResourceChunk, error) {
	return g.chunksWhere(ctx, "graph_chunks",
		`MATCH (:Resource {id: $id})-[:HAS_CHUNK]->(c:Chunk)
		 RETURN c ORDER BY c.sequence`, resourceID)
}

func (g *GraphStore) chunksWhere(ctx context.Context, op, query, resourceID string) ([]domain.ResourceChunk, error) {
	session := g.session(ctx)
	defer session.Close(ctx)
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"id": resourceID})
		if err != nil {
			return nil, err
		}
		var chunks []domain.ResourceChunk
		for res.Next(ctx) {
			node, ok := res.Record().Get("c")
			if !ok {
				continue
			}
			chunk, err := chunkFromNode(node.(neo4j.Node))
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, chunk)
		}
		return chunks, res.Err()
	})
	if err != nil {
		return nil, faults.Transient(op, err)
	}
	return out.([]domain.ResourceChunk), nil
}

func (g *GraphStore) SoftDeleteResource(ctx context.Context, resourceID string) error {
	return g.write(ctx, "graph_soft_delete_resource",
		`MATCH (r:Resource {id: $id}) SET r.is_deleted = true`,
		map[string]any{"id": resourceID})
}

func (g *GraphStore) SaveSearchRequest(ctx context.Context, sr *domain.SearchRequest) error {
	return g.write(ctx, "graph_save_search",
		`MERGE (s:Search {id: $id})
		 SET s.query = $query, s.status = $status
		 WITH s
		 MATCH (c:Collection {id: $col_id})
		 MERGE (s)-[:ABOUT]->(c)`,
		map[string]any{
			"id":     sr.ID,
			"query":  sr.Query,
			"status": string(sr.Status),
			"col_id": sr.CollectionID,
		})
}

func (g *GraphStore) StoreSearchEmbedding(ctx context.Context, searchID string, embedding []float32) error {
	return g.write(ctx, "graph_store_search_embedding",
		`MATCH (s:Search {id: $id}) SET s.embedding = $embedding`,
		map[string]any{"id": searchID, "embedding": toFloat64(embedding)})
}

func (g *GraphStore) RankRelevantChunks(ctx context.Context, sr *domain.SearchRequest, k int) ([]ports.ScoredChunk, error) {
	const op = "graph_rank_chunks"
	query := `MATCH (s:Search {id: $search_id})-[:ABOUT]->(col:Collection)
		 MATCH (col)-[:CONTAINS]->(r:Resource)-[:HAS_CHUNK]->(c:Chunk)
		 WHERE r.is_deleted = false AND c.embedding IS NOT NULL
		 RETURN c, s.embedding AS query_embedding`
	params := map[string]any{"search_id": sr.ID}
	if len(sr.ResourceIDs) > 0 {
		query = `MATCH (s:Search {id: $search_id})
		 MATCH (r:Resource)-[:HAS_CHUNK]->(c:Chunk)
		 WHERE r.id IN $resource_ids AND r.is_deleted = false
		   AND c.embedding IS NOT NULL
		 RETURN c, s.embedding AS query_embedding`
		params["resource_ids"] = sr.ResourceIDs
	}

	session := g.session(ctx)
	defer session.Close(ctx)
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var scored []ports.ScoredChunk
		for res.Next(ctx) {
			record := res.Record()
			node, ok := record.Get("c")
			if !ok {
				continue
			}
			chunk, err := chunkFromNode(node.(neo4j.Node))
			if err != nil {
				return nil, err
			}
			if !matchesFilters(chunk.Metadata, sr.Filters) {
				continue
			}
			qv, _ := record.Get("query_embedding")
			score := vectorindex.Cosine(toFloat32List(qv), chunk.Embedding)
			chunk.Score = &score
			scored = append(scored, ports.ScoredChunk{Chunk: chunk, Score: score})
		}
		return scored, res.Err()
	})
	if err != nil {
		return nil, faults.Transient(op, err)
	}

	scored := out.([]ports.ScoredChunk)
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Chunk.Sequence != scored[j].Chunk.Sequence {
			return scored[i].Chunk.Sequence < scored[j].Chunk.Sequence
		}
		return scored[i].Chunk.ResourceID < scored[j].Chunk.ResourceID
	})
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (g *GraphStore) SaveSearchMatches(ctx context.Context, searchID string, matches []ports.ScoredChunk) error {
	rows := make([]map[string]any, 0, len(matches))
	for i, m := range matches {
		rows = append(rows, map[string]any{
			"chunk_id": m.Chunk.ID,
			"score":    m.Score,
			"rank":     i,
		})
	}
	return g.write(ctx, "graph_save_matches",
		`MATCH (s:Search {id: $search_id})
		 OPTIONAL MATCH (s)-[old:MATCHES]->()
		 DELETE old
		 WITH DISTINCT s
		 UNWIND $matches AS m
		 MATCH (c:Chunk {id: m.chunk_id})
		 MERGE (s)-[e:MATCHES]->(c)
		 SET e.score = m.score, e.rank = m.rank`,
		map[string]any{"search_id": searchID, "matches": rows})
}

func (g *GraphStore) RelevantChunks(ctx context.Context, searchID string) ([]ports.ScoredChunk, error) {
	const op = "graph_relevant_chunks"
	session := g.session(ctx)
	defer session.Close(ctx)
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			`MATCH (:Search {id: $id})-[e:MATCHES]->(c:Chunk)
			 RETURN c, e.score AS score ORDER BY e.rank`,
			map[string]any{"id": searchID})
		if err != nil {
			return nil, err
		}
		var scored []ports.ScoredChunk
		for res.Next(ctx) {
			record := res.Record()
			node, ok := record.Get("c")
			if !ok {
				continue
			}
			chunk, err := chunkFromNode(node.(neo4j.Node))
			if err != nil {
				return nil, err
			}
			score, _ := record.Get("score")
			s := score.(float64)
			chunk.Score = &s
			scored = append(scored, ports.ScoredChunk{Chunk: chunk, Score: s})
		}
		return scored, res.Err()
	})
	if err != nil {
		return nil, faults.Transient(op, err)
	}
	return out.([]ports.ScoredChunk), nil
}

func (g *GraphStore) SaveSearchResponse(ctx context.Context, searchID, prompt, response string) error {
	return g.write(ctx, "graph_save_response",
		`MATCH (s:Search {id: $id}) SET s.prompt = $prompt, s.response = $response`,
		map[string]any{"id": searchID, "prompt": prompt, "response": response})
}

func (g *GraphStore) SaveCredentialURL(ctx context.Context, searchID, credentialURL string) error {
	return g.write(ctx, "graph_save_credential",
		`MATCH (s:Search {id: $id}) SET s.credential_url = $credential_url`,
		map[string]any{"id": searchID, "credential_url": credentialURL})
}

func matchesFilters(metadata, filters map[string]string) bool {
	for key, want := range filters {
		if metadata[key] != want {
			return false
		}
	}
	return true
}

// chunkProps renders a chunk as node properties. Path and Metadata are
// stored as JSON strings since Neo4j properties cannot hold nested maps.
func chunkProps(c domain.ResourceChunk) (map[string]any, error) {
	path, err := json.Marshal(c.Path)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          c.ID,
		"resource_id": c.ResourceID,
		"sequence":    c.Sequence,
		"text":        c.Text,
		"extract":     c.Extract,
		"preamble":    c.Preamble,
		"postamble":   c.Postamble,
		"path":        string(path),
		"metadata":    string(metadata),
	}, nil
}

func chunkFromNode(node neo4j.Node) (domain.ResourceChunk, error) {
	props := node.Props
	chunk := domain.ResourceChunk{
		ID:         stringProp(props, "id"),
		ResourceID: stringProp(props, "resource_id"),
		Sequence:   int(intProp(props, "sequence")),
		Text:       stringProp(props, "text"),
		Extract:    stringProp(props, "extract"),
		Preamble:   stringProp(props, "preamble"),
		Postamble:  stringProp(props, "postamble"),
		Embedding:  toFloat32List(props["embedding"]),
	}
	if raw := stringProp(props, "path"); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &chunk.Path); err != nil {
			return chunk, fmt.Errorf("corrupt chunk path on %s: %w", chunk.ID, err)
		}
	}
	if raw := stringProp(props, "metadata"); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &chunk.Metadata); err != nil {
			return chunk, fmt.Errorf("corrupt chunk metadata on %s: %w", chunk.ID, err)
		}
	}
	return chunk, nil
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func intProp(props map[string]any, key string) int64 {
	if v, ok := props[key].(int64); ok {
		return v
	}
	return 0
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func toFloat32List(v any) []float32 {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(list))
	for _, x := range list {
		f, ok := x.(float64)
		if !ok {
			return nil
		}
		out = append(out, float32(f))
	}
	return out
}
