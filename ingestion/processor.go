package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/clinrag/ai"
	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/retry"
	"github.com/poiesic/clinrag/storage"
)

// processor runs the chunking pipeline for one claimed document.
type processor struct {
	claims    storage.DocumentStore
	workerID  string
	segments  storage.SegmentStore
	hydrator  *Hydrator
	embedder  ai.Embedder
	policy    retry.Policy
	chunkSize int
	overlap   int
	logger    *slog.Logger
}

// process splits, hydrates, embeds and persists doc's segments. It does not
// touch the document's stage.
func (p *processor) process(ctx context.Context, doc *core.Document) error {
	text := doc.FullText()
	chunks, err := Split(text, p.chunkSize, p.overlap)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return ErrNoSegments
	}
	p.logger.Debug("split document", "document_id", doc.Id, "segments", len(chunks))

	contexts, err := p.hydrator.Hydrate(ctx, text, chunks)
	if err != nil {
		return fmt.Errorf("failed to hydrate segments: %w", err)
	}

	segments := make([]*core.Segment, len(chunks))
	for i, chunk := range chunks {
		segments[i] = &core.Segment{
			DocumentId: doc.Id,
			Index:      i,
			Text:       chunk,
			Context:    contexts[i],
		}
	}

	if err := embedSegments(ctx, p.embedder, p.policy, segments); err != nil {
		return fmt.Errorf("failed to embed segments: %w", err)
	}

	// A reaped claim may already belong to another worker; don't overwrite
	// its segments.
	if err := p.claims.RenewClaim(ctx, doc.Id, p.workerID); err != nil {
		return fmt.Errorf("failed to confirm claim: %w", err)
	}
	if _, err := p.segments.PersistSegments(ctx, doc.Id, segments); err != nil {
		return fmt.Errorf("failed to persist segments: %w", err)
	}
	return nil
}
