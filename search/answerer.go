// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/poiesic/clinrag/ai"
	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/retry"
)

// Answerer answers questions from retrieved segments.
type Answerer struct {
	retriever *Retriever
	embedder  ai.Embedder
	scorer    ai.Scorer
	policy    retry.Policy
	monitor   RetrievalMonitor
	k         int
	logger    *slog.Logger
}

// AnswererOption configures an Answerer.
type AnswererOption func(*Answerer) error

// WithK sets how many segments are retrieved per question.
// Default is DefaultK.
func WithK(k int) AnswererOption {
	return func(a *Answerer) error {
		if k <= 0 {
			return ErrInvalidLimit
		}
		a.k = k
		return nil
	}
}

// WithRetryPolicy sets the policy applied to each remote call.
func WithRetryPolicy(p retry.Policy) AnswererOption {
	return func(a *Answerer) error {
		a.policy = p
		return nil
	}
}

// WithMonitor sets the monitor observing each retrieval.
// Default is a LoggingMonitor on the answerer's logger.
func WithMonitor(m RetrievalMonitor) AnswererOption {
	return func(a *Answerer) error {
		a.monitor = m
		return nil
	}
}

// WithAnswererLogger sets a custom logger.
func WithAnswererLogger(logger *slog.Logger) AnswererOption {
	return func(a *Answerer) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// NewAnswerer creates an Answerer.
func NewAnswerer(retriever *Retriever, provider ai.AIProvider, opts ...AnswererOption) (*Answerer, error) {
	if retriever == nil {
		return nil, ErrSegmentStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	a := &Answerer{
		retriever: retriever,
		embedder:  provider.Embedder(),
		scorer:    provider.Scorer(),
		policy:    retry.DefaultPolicy(),
		k:         DefaultK,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.monitor == nil {
		a.monitor = NewLoggingMonitor(a.logger)
	}
	return a, nil
}

type variantsResponse struct {
	Variants []string `json:"variants"`
}

type answerResponse struct {
	Answer    string `json:"answer"`
	Citations []any  `json:"citations"`
}

// Ask answers question from the stored segments. Citations are rendered as
// "[<segment id>]: <segment text>"; ids the model cites that were not among
// the retrieved segments are dropped.
func (a *Answerer) Ask(ctx context.Context, question string) (core.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return core.Answer{}, ErrEmptyQuestion
	}

	variants, err := retry.Do(ctx, a.policy, func(ctx context.Context) ([]string, error) {
		var resp variantsResponse
		err := a.scorer.CompleteJSON(ctx, ai.Request{
			Instructions: variantsInstructions,
			Input:        variantsInput(question),
			Schema:       variantsSchema,
		}, &resp)
		return resp.Variants, err
	})
	if err != nil {
		return core.Answer{}, fmt.Errorf("failed to generate question variants: %w", err)
	}
	variants = distinctVariants(question, variants)
	a.logger.Debug("question variants", "question", question, "variants", variants)

	vectors, err := retry.Do(ctx, a.policy, func(ctx context.Context) ([][]float32, error) {
		return a.embedder.EmbedTexts(ctx, append([]string{question}, variants...))
	})
	if err != nil {
		return core.Answer{}, fmt.Errorf("failed to embed question: %w", err)
	}

	candidates, err := a.retriever.RetrieveWithMonitor(ctx, vectors, a.k, a.monitor)
	if err != nil {
		return core.Answer{}, fmt.Errorf("failed to retrieve segments: %w", err)
	}
	if len(candidates) == 0 {
		return core.Answer{Answer: insufficientAnswer, Citations: []string{}}, nil
	}

	resp, err := retry.Do(ctx, a.policy, func(ctx context.Context) (answerResponse, error) {
		var resp answerResponse
		err := a.scorer.CompleteJSON(ctx, ai.Request{
			Instructions: answerInstructions,
			Input:        answerInput(question, candidates),
			Schema:       answerSchema,
		}, &resp)
		return resp, err
	})
	if err != nil {
		return core.Answer{}, fmt.Errorf("failed to generate answer: %w", err)
	}

	return core.Answer{
		Answer:    strings.TrimSpace(resp.Answer),
		Citations: renderCitations(resp.Citations, candidates),
	}, nil
}

// renderCitations maps cited ids back to retrieved segments, in citation
// order, skipping unknown and repeated ids.
func renderCitations(cited []any, candidates []core.Candidate) []string {
	byID := make(map[core.ID]*core.Segment, len(candidates))
	for _, c := range candidates {
		byID[c.Segment.Id] = c.Segment
	}
	out := make([]string, 0, len(cited))
	seen := make(map[core.ID]bool, len(cited))
	for _, raw := range cited {
		id, ok := citationID(raw)
		if !ok || seen[id] {
			continue
		}
		segment, ok := byID[id]
		if !ok {
			continue
		}
		seen[id] = true
		out = append(out, fmt.Sprintf("[%d]: %s", id, segment.Text))
	}
	return out
}

// citationID accepts 12, "12" and "[12]".
func citationID(raw any) (core.ID, bool) {
	switch v := raw.(type) {
	case float64:
		if v <= 0 || v != float64(uint64(v)) {
			return 0, false
		}
		return core.ID(v), true
	case string:
		s := strings.Trim(strings.TrimSpace(v), "[]")
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil || n == 0 {
			return 0, false
		}
		return core.ID(n), true
	}
	return 0, false
}
