package notes

import (
	"context"
	"log/slog"
	"strings"

	"github.com/poiesic/clinrag/ai"
	"github.com/poiesic/clinrag/retry"
)

// Summarizer condenses a document with a single scorer call.
type Summarizer struct {
	scorer ai.Scorer
	policy retry.Policy
	logger *slog.Logger
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(scorer ai.Scorer, opts ...Option) (*Summarizer, error) {
	if scorer == nil {
		return nil, ErrScorerRequired
	}
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Summarizer{
		scorer: scorer,
		policy: cfg.policy,
		logger: cfg.logger.With("component", "summarizer"),
	}, nil
}

// Summarize returns a prose summary of text.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyNote
	}
	out, err := retry.Do(ctx, s.policy, func(ctx context.Context) (string, error) {
		return s.scorer.Complete(ctx, ai.Request{
			Instructions: summarizeInstructions,
			Input:        documentInput(text),
		})
	})
	if err != nil {
		s.logger.Error("summary failed", "err", err)
		return "", err
	}
	return strings.TrimSpace(out), nil
}
