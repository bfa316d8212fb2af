package ports

import "context"

// Stage names one atomic unit of a pipeline. Stage names double as the
// broker subject suffix, so they are stable identifiers.
type Stage string

// Ingest pipeline stages, in order, plus the two notification fan-outs
// that branch off the scan stage.
const (
	StageInitiateProcessing          Stage = "initiate-processing"
	StageInitialiseResourceGraph     Stage = "initialise-resource-graph"
	StageExtractPlainText            Stage = "extract-plain-text"
	StageChunkResourceText           Stage = "chunk-resource-text"
	StageUpdateChunksWithEmbeddings  Stage = "update-chunks-with-embeddings"
	StageVentilateResourceProcessing Stage = "ventilate-resource-processing"
	StageQuarantineNotification      Stage = "quarantine-notification"
	StageValidationErrorNotification Stage = "validation-error-notification"
)

// Query pipeline stages, in order.
const (
	StageInitiateSearchRequest  Stage = "initiate-search-request"
	StageVectoriseSearchQuery   Stage = "vectorise-search-query"
	StageIdentifyRelatedContent Stage = "identify-related-content"
	StageExecuteRagPrompt       Stage = "execute-rag-prompt"
	StageIssueCredentials       Stage = "issue-credentials"
	StageVentilateSearchResults Stage = "ventilate-search-results"
)

// ResourceStages lists the ingest stages a worker consumes.
func ResourceStages() []Stage {
	return []Stage{
		StageInitiateProcessing,
		StageInitialiseResourceGraph,
		StageExtractPlainText,
		StageChunkResourceText,
		StageUpdateChunksWithEmbeddings,
		StageVentilateResourceProcessing,
		StageQuarantineNotification,
		StageValidationErrorNotification,
	}
}

// SearchStages lists the query stages a worker consumes.
func SearchStages() []Stage {
	return []Stage{
		StageInitiateSearchRequest,
		StageVectoriseSearchQuery,
		StageIdentifyRelatedContent,
		StageExecuteRagPrompt,
		StageIssueCredentials,
		StageVentilateSearchResults,
	}
}

// TaskDispatch places stage messages on a durable queue. Delivery is
// at-least-once; ordering per (stage, id) is not guaranteed, so every
// stage must be idempotent under duplicate delivery.
type TaskDispatch interface {
	// EnqueueStage enqueues an ingest pipeline stage for a resource.
	EnqueueStage(ctx context.Context, stage Stage, resourceID string) error

	// EnqueueSearchStage enqueues a query pipeline stage for a search.
	EnqueueSearchStage(ctx context.Context, stage Stage, searchID string) error
}
