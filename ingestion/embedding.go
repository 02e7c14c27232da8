package ingestion

import (
	"context"
	"fmt"

	"github.com/poiesic/clinrag/ai"
	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/retry"
	"github.com/poiesic/clinrag/storage"
)

// embedSegments embeds the hydrated text of every segment in one batch and
// assigns the vectors back by position, scaled to unit length.
func embedSegments(ctx context.Context, embedder ai.Embedder, policy retry.Policy, segments []*core.Segment) error {
	texts := make([]string, len(segments))
	for i, segment := range segments {
		texts[i] = segment.HydratedText()
	}

	vectors, err := retry.Do(ctx, policy, func(ctx context.Context) ([][]float32, error) {
		return embedder.EmbedTexts(ctx, texts)
	})
	if err != nil {
		return err
	}
	if len(vectors) != len(segments) {
		return fmt.Errorf("embedding result mismatch. expected %d, received %d", len(segments), len(vectors))
	}
	for i := range vectors {
		segments[i].Vector = storage.Normalize(vectors[i])
	}
	return nil
}
