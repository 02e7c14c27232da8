package search

import (
	"log/slog"

	"github.com/poiesic/clinrag/core"
)

// RetrievalMonitor provides hooks to observe a retrieval.
// Implement this interface to inspect intermediate results, for example
// when tuning the number of paraphrase variants.
type RetrievalMonitor interface {
	Start(variants, k int)
	AfterVariantSearch(variant int, candidates []core.Candidate)
	AfterAggregation(pool int)
	Finish(results []core.Candidate)
}

// noopMonitor is a no-op implementation of RetrievalMonitor
type noopMonitor struct{}

var _ RetrievalMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_, _ int)                               {}
func (n *noopMonitor) AfterVariantSearch(_ int, _ []core.Candidate) {}
func (n *noopMonitor) AfterAggregation(_ int)                       {}
func (n *noopMonitor) Finish(_ []core.Candidate)                    {}

// LoggingMonitor reports each retrieval stage at debug level.
type LoggingMonitor struct {
	logger *slog.Logger
}

var _ RetrievalMonitor = (*LoggingMonitor)(nil)

// NewLoggingMonitor creates a LoggingMonitor. A nil logger uses slog.Default().
func NewLoggingMonitor(logger *slog.Logger) *LoggingMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingMonitor{logger: logger.With("component", "retrieval-monitor")}
}

func (m *LoggingMonitor) Start(variants, k int) {
	m.logger.Debug("retrieval started", "variants", variants, "k", k)
}

func (m *LoggingMonitor) AfterVariantSearch(variant int, candidates []core.Candidate) {
	attrs := []any{"variant", variant, "candidates", len(candidates)}
	if len(candidates) > 0 {
		attrs = append(attrs, "nearest", nearestDistance(candidates))
	}
	m.logger.Debug("variant searched", attrs...)
}

func (m *LoggingMonitor) AfterAggregation(pool int) {
	m.logger.Debug("variant pools merged", "distinct", pool)
}

func (m *LoggingMonitor) Finish(results []core.Candidate) {
	ids := make([]core.ID, 0, len(results))
	for _, c := range results {
		if c.Segment != nil {
			ids = append(ids, c.Segment.Id)
		}
	}
	m.logger.Debug("retrieval finished", "results", len(results), "segments", ids)
}

func nearestDistance(candidates []core.Candidate) float32 {
	nearest := candidates[0].Distance
	for _, c := range candidates[1:] {
		nearest = min(nearest, c.Distance)
	}
	return nearest
}
