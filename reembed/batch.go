package reembed

import (
	"context"
	"fmt"

	"github.com/poiesic/clinrag/ai"
	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/retry"
	"github.com/poiesic/clinrag/storage"
)

// BatchProcessor re-embeds batches of segments.
type BatchProcessor struct {
	segments storage.SegmentStore
	embedder ai.Embedder
	policy   retry.Policy
}

// NewBatchProcessor creates a new batch processor. Embedding calls are
// retried under policy.
func NewBatchProcessor(segments storage.SegmentStore, embedder ai.Embedder, policy retry.Policy) *BatchProcessor {
	return &BatchProcessor{
		segments: segments,
		embedder: embedder,
		policy:   policy,
	}
}

// Process embeds the hydrated text of each segment and stores the new
// vectors. Vectors are normalized to unit length.
func (bp *BatchProcessor) Process(ctx context.Context, segments []*core.Segment) error {
	if len(segments) == 0 {
		return nil
	}

	texts := make([]string, len(segments))
	for i, segment := range segments {
		texts[i] = segment.HydratedText()
	}

	embeddings, err := retry.Do(ctx, bp.policy, func(ctx context.Context) ([][]float32, error) {
		return bp.embedder.EmbedTexts(ctx, texts)
	})
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.policy.MaxAttempts, err)
	}

	if len(embeddings) != len(segments) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(segments), len(embeddings))
	}

	for i := range segments {
		segments[i].Vector = storage.Normalize(embeddings[i])
	}

	if err := bp.segments.UpdateSegments(ctx, segments...); err != nil {
		return fmt.Errorf("failed to update segments: %w", err)
	}

	return nil
}
