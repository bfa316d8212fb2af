package usecases

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
	"github.com/fyrsmithlabs/knowledged/internal/faults"
	"github.com/fyrsmithlabs/knowledged/internal/ports"
)

// WebhookEvent is the JSON payload posted to callback URLs.
type WebhookEvent struct {
	EventType  string    `json:"event_type"`
	ResourceID string    `json:"resource_id,omitempty"`
	SearchID   string    `json:"search_id,omitempty"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message,omitempty"`
}

// InitiateProcessing is the first ingest stage: virus scan, type detection
// and declared-format validation.
func (s *service) InitiateProcessing(ctx context.Context, resourceID string) error {
	ctx, span := s.stageSpan(ctx, "usecases.InitiateProcessing")
	defer span.End()

	r, err := s.reg.Resources().Get(ctx, resourceID)
	if err != nil {
		return err
	}
	if r.Status.Terminal() {
		return nil
	}
	if len(r.File) == 0 {
		return faults.Validation("initiate_processing", "resource %s has no file content", resourceID)
	}
	if _, err := s.advanceResource(ctx, r, domain.ResourceScanning); err != nil {
		return err
	}

	verdict, err := s.reg.Antivirus().Scan(ctx, r)
	if err != nil {
		return faults.Transient("initiate_processing", err)
	}
	switch verdict {
	case ports.ScanInfected:
		return s.quarantine(ctx, r)
	case ports.ScanError:
		return faults.Errorf(faults.KindTransient, "initiate_processing",
			"antivirus scan errored for resource %s", resourceID)
	}

	if r.FileType == "" {
		detected, err := s.reg.FileManager().DetectType(ctx, r)
		if err != nil {
			return err
		}
		r.FileType = detected
		if err := s.reg.Resources().SetFileType(ctx, r.ID, detected); err != nil {
			return err
		}
	} else {
		ok, err := s.reg.FileManager().ValidateFormat(ctx, r)
		if err != nil {
			return err
		}
		if !ok {
			return s.rejectFormat(ctx, r)
		}
	}

	s.logger.Info("resource scanned clean",
		zap.String("resource_id", r.ID),
		zap.String("file_type", r.FileType))
	return s.reg.Dispatch().EnqueueStage(ctx, ports.StageInitialiseResourceGraph, r.ID)
}

// quarantine isolates an infected resource and schedules the notification.
func (s *service) quarantine(ctx context.Context, r *domain.Resource) error {
	if err := s.reg.Quarantine().QuarantineResource(ctx, r); err != nil {
		return err
	}
	r.Status = domain.ResourceQuarantined
	r.Error = "virus detected"
	r.File = nil
	if err := s.reg.Resources().Update(ctx, r); err != nil {
		return err
	}
	if err := s.reg.Dispatch().EnqueueStage(ctx, ports.StageQuarantineNotification, r.ID); err != nil {
		return err
	}
	return faults.VirusDetected("initiate_processing", "resource %s quarantined", r.ID)
}

// rejectFormat marks a declared-vs-content mismatch and schedules the
// notification.
func (s *service) rejectFormat(ctx context.Context, r *domain.Resource) error {
	r.Status = domain.ResourceInvalidFormat
	r.Error = "declared file type does not match content"
	if err := s.reg.Resources().Update(ctx, r); err != nil {
		return err
	}
	if err := s.reg.Dispatch().EnqueueStage(ctx, ports.StageValidationErrorNotification, r.ID); err != nil {
		return err
	}
	return faults.InvalidFormat("initiate_processing",
		"resource %s: declared type %q does not match content", r.ID, r.FileType)
}

// InitialiseResourceGraph merges the subscription, collection and resource
// nodes into the graph.
func (s *service) InitialiseResourceGraph(ctx context.Context, resourceID string) error {
	ctx, span := s.stageSpan(ctx, "usecases.InitialiseResourceGraph")
	defer span.End()

	r, err := s.reg.Resources().Get(ctx, resourceID)
	if err != nil {
		return err
	}
	if r.Status.Terminal() {
		return nil
	}
	col, err := s.reg.Collections().Get(ctx, r.CollectionID)
	if err != nil {
		return err
	}
	sub, err := s.reg.Subscriptions().Get(ctx, col.SubscriptionID)
	if err != nil {
		return err
	}

	if err := s.reg.Graph().UpsertResourceNode(ctx, sub, col, r); err != nil {
		return err
	}
	if _, err := s.advanceResource(ctx, r, domain.ResourceGraphed); err != nil {
		return err
	}
	return s.reg.Dispatch().EnqueueStage(ctx, ports.StageExtractPlainText, r.ID)
}

// ExtractPlainText converts the file into its markdown rendition. Already
// extracted content short-circuits to the next stage.
func (s *service) ExtractPlainText(ctx context.Context, resourceID string) error {
	ctx, span := s.stageSpan(ctx, "usecases.ExtractPlainText")
	defer span.End()

	r, err := s.reg.Resources().Get(ctx, resourceID)
	if err != nil {
		return err
	}
	if r.Status.Terminal() {
		return nil
	}
	if r.MarkdownContent == "" {
		if r.FileType == "" {
			return faults.Internal("extract_plain_text",
				errors.New("resource "+r.ID+" reached extraction without a file type"))
		}
		md, err := s.reg.FileManager().ExtractMarkdown(ctx, r)
		if err != nil {
			return err
		}
		r.MarkdownContent = md
	}
	if _, err := s.advanceResource(ctx, r, domain.ResourceExtracted); err != nil {
		return err
	}
	return s.reg.Dispatch().EnqueueStage(ctx, ports.StageChunkResourceText, r.ID)
}

// ChunkResourceText splits the markdown and persists the chunk nodes.
// Existing chunks mean a replay; the set is left untouched.
func (s *service) ChunkResourceText(ctx context.Context, resourceID string) error {
	ctx, span := s.stageSpan(ctx, "usecases.ChunkResourceText")
	defer span.End()

	r, err := s.reg.Resources().Get(ctx, resourceID)
	if err != nil {
		return err
	}
	if r.Status.Terminal() {
		return nil
	}
	if r.MarkdownContent == "" {
		return faults.Validation("chunk_resource_text", "resource %s has no extracted content", resourceID)
	}

	existing, err := s.reg.Graph().Chunks(ctx, resourceID)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		rt, err := s.reg.ResourceTypes().Get(ctx, r.ResourceTypeID)
		if err != nil {
			return err
		}
		chunks, err := s.reg.Chunker().Chunk(ctx, rt, r)
		if err != nil {
			return err
		}
		if err := s.reg.Graph().CreateChunkNodes(ctx, chunks); err != nil {
			return err
		}
		s.logger.Info("resource chunked",
			zap.String("resource_id", r.ID),
			zap.Int("chunks", len(chunks)))
	}

	if _, err := s.advanceResource(ctx, r, domain.ResourceChunked); err != nil {
		return err
	}
	return s.reg.Dispatch().EnqueueStage(ctx, ports.StageUpdateChunksWithEmbeddings, r.ID)
}

// UpdateChunksWithEmbeddings embeds every chunk that does not have a vector
// yet. Nothing missing means a replay and is a no-op.
func (s *service) UpdateChunksWithEmbeddings(ctx context.Context, resourceID string) error {
	ctx, span := s.stageSpan(ctx, "usecases.UpdateChunksWithEmbeddings")
	defer span.End()

	r, err := s.reg.Resources().Get(ctx, resourceID)
	if err != nil {
		return err
	}
	if r.Status.Terminal() {
		return nil
	}

	missing, err := s.reg.Graph().ChunksMissingEmbeddings(ctx, resourceID)
	if err != nil {
		return err
	}
	for _, chunk := range missing {
		vector, err := s.reg.LanguageModel().Embed(ctx, chunk.Extract)
		if err != nil {
			return err
		}
		if err := s.reg.Graph().UpdateChunkEmbedding(ctx, chunk.ID, vector); err != nil {
			return err
		}
	}
	if len(missing) > 0 {
		s.logger.Info("chunks embedded",
			zap.String("resource_id", resourceID),
			zap.Int("count", len(missing)))
	}

	if _, err := s.advanceResource(ctx, r, domain.ResourceEmbedded); err != nil {
		return err
	}
	return s.reg.Dispatch().EnqueueStage(ctx, ports.StageVentilateResourceProcessing, r.ID)
}

// VentilateResourceProcessing fans the completion event out to the callback
// URLs and marks the resource ready. A resource already ready is a replay
// and posts nothing.
func (s *service) VentilateResourceProcessing(ctx context.Context, resourceID string) error {
	ctx, span := s.stageSpan(ctx, "usecases.VentilateResourceProcessing")
	defer span.End()

	r, err := s.reg.Resources().Get(ctx, resourceID)
	if err != nil {
		if faults.KindOf(err) == faults.KindNotFound {
			return nil
		}
		return err
	}
	if r.Status.Terminal() {
		return nil
	}

	if len(r.CallbackURLs) > 0 {
		event := WebhookEvent{
			EventType:  "resource.ready",
			ResourceID: r.ID,
			Status:     string(domain.ResourceReady),
			Timestamp:  time.Now().UTC(),
		}
		if _, err := s.reg.Webhooks().Deliver(ctx, r.CallbackURLs, event); err != nil {
			return faults.Transient("ventilate_resource_processing", err)
		}
	}

	_, err = s.advanceResource(ctx, r, domain.ResourceReady)
	return err
}

// NotifyQuarantine posts the quarantine event to the callback URLs.
func (s *service) NotifyQuarantine(ctx context.Context, resourceID string) error {
	ctx, span := s.stageSpan(ctx, "usecases.NotifyQuarantine")
	defer span.End()
	return s.notifyTerminal(ctx, resourceID, "resource.quarantined", domain.ResourceQuarantined)
}

// NotifyValidationError posts the invalid-format event to the callback
// URLs.
func (s *service) NotifyValidationError(ctx context.Context, resourceID string) error {
	ctx, span := s.stageSpan(ctx, "usecases.NotifyValidationError")
	defer span.End()
	return s.notifyTerminal(ctx, resourceID, "resource.invalid_format", domain.ResourceInvalidFormat)
}

func (s *service) notifyTerminal(ctx context.Context, resourceID, eventType string, status domain.ResourceStatus) error {
	r, err := s.reg.Resources().Get(ctx, resourceID)
	if err != nil {
		if faults.KindOf(err) == faults.KindNotFound {
			return nil
		}
		return err
	}
	if r.Status != status || len(r.CallbackURLs) == 0 {
		return nil
	}
	event := WebhookEvent{
		EventType:  eventType,
		ResourceID: r.ID,
		Status:     string(status),
		Timestamp:  time.Now().UTC(),
		Message:    r.Error,
	}
	if _, err := s.reg.Webhooks().Deliver(ctx, r.CallbackURLs, event); err != nil {
		return faults.Transient("notify_terminal", err)
	}
	return nil
}
