package search

import (
	"context"
	"log/slog"

	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/storage"
	"golang.org/x/sync/errgroup"
)

// DefaultK is the number of segments retrieved for an answer.
const DefaultK = 10

// Retriever ranks stored segments against several query embeddings.
type Retriever struct {
	segments storage.SegmentStore
	logger   *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRetriever creates a new retriever over segments.
func NewRetriever(segments storage.SegmentStore, opts ...Option) (*Retriever, error) {
	if segments == nil {
		return nil, ErrSegmentStoreRequired
	}
	r := &Retriever{
		segments: segments,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Retrieve returns at most k segments ordered by their minimum cosine
// distance to any of vectors. Equal distances order by segment ID.
func (r *Retriever) Retrieve(ctx context.Context, vectors [][]float32, k int) ([]core.Candidate, error) {
	return r.RetrieveWithMonitor(ctx, vectors, k, nil)
}

// RetrieveWithMonitor is Retrieve with a monitor receiving callbacks at each
// stage.
//
// Each vector is searched independently for its k×len(vectors) nearest
// segments; the true minimum is computed over the union of those pools.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, vectors [][]float32, k int, monitor RetrievalMonitor) ([]core.Candidate, error) {
	if len(vectors) == 0 {
		return nil, ErrNoQueryVectors
	}
	if k <= 0 {
		return nil, ErrInvalidLimit
	}
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(len(vectors), k)

	limit := k * len(vectors)
	pools := make([][]core.Candidate, len(vectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, vector := range vectors {
		g.Go(func() error {
			found, err := r.segments.NearestNeighbors(gctx, vector, limit)
			if err != nil {
				return err
			}
			pools[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.Error("error searching query variants", "variants", len(vectors), "err", err)
		return nil, err
	}

	best := make(map[core.ID]core.Candidate)
	for i, pool := range pools {
		monitor.AfterVariantSearch(i, pool)
		for _, c := range pool {
			if c.Segment == nil {
				continue
			}
			if prev, ok := best[c.Segment.Id]; !ok || c.Distance < prev.Distance {
				best[c.Segment.Id] = c
			}
		}
	}
	monitor.AfterAggregation(len(best))

	merged := make([]core.Candidate, 0, len(best))
	for _, c := range best {
		merged = append(merged, c)
	}
	results := storage.TopCandidates(merged, k)
	monitor.Finish(results)

	r.logger.Debug("retrieved segments", "variants", len(vectors), "pool", len(best), "results", len(results))
	return results, nil
}
