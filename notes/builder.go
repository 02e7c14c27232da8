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

package notes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/poiesic/clinrag/ai"
	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/lookup"
	"github.com/poiesic/clinrag/retry"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency caps concept resolutions in flight for one note. The
// lookup agents apply their own per-backend limit underneath.
const DefaultConcurrency = 8

type options struct {
	policy      retry.Policy
	concurrency int
	logger      *slog.Logger
}

func defaultOptions() options {
	return options{
		policy:      retry.DefaultPolicy(),
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
}

// Option configures a Builder or Summarizer.
type Option func(*options)

// WithRetryPolicy sets the policy applied to scorer calls and concept
// resolution.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithConcurrency caps concurrent concept resolutions.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Builder produces coded structured notes.
type Builder struct {
	scorer   ai.Scorer
	registry *lookup.Registry
	opts     options
	logger   *slog.Logger
}

// NewBuilder creates a Builder resolving codes through registry.
func NewBuilder(scorer ai.Scorer, registry *lookup.Registry, opts ...Option) (*Builder, error) {
	if scorer == nil {
		return nil, ErrScorerRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Builder{
		scorer:   scorer,
		registry: registry,
		opts:     cfg,
		logger:   cfg.logger.With("component", "note-builder"),
	}, nil
}

type extractResponse struct {
	Concepts []core.MedicalConcept `json:"concepts"`
}

// planResponse keeps the system loose; models write "ICD10" or null.
type planResponse struct {
	System *string `json:"system"`
	Name   string  `json:"name"`
}

// Build turns a raw clinical note into a structured note.
func (b *Builder) Build(ctx context.Context, raw string) (*core.StructuredNote, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyNote
	}

	concepts, err := b.extract(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to extract concepts: %w", err)
	}
	b.logger.Debug("extracted concepts", "count", len(concepts))

	resolved, err := b.resolveAll(ctx, concepts)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve concepts: %w", err)
	}

	note, err := b.assemble(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble note: %w", err)
	}
	return note, nil
}

func (b *Builder) extract(ctx context.Context, raw string) ([]core.MedicalConcept, error) {
	resp, err := retry.Do(ctx, b.opts.policy, func(ctx context.Context) (extractResponse, error) {
		var resp extractResponse
		err := b.scorer.CompleteJSON(ctx, ai.Request{
			Instructions: extractInstructions,
			Input:        noteInput(raw),
			Schema:       extractSchema,
		}, &resp)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	concepts := make([]core.MedicalConcept, 0, len(resp.Concepts))
	for _, c := range resp.Concepts {
		if strings.TrimSpace(c.RawText) == "" {
			continue
		}
		// Codes come only from lookups.
		c.Name, c.Code, c.System = "", "", ""
		concepts = append(concepts, c)
	}
	return concepts, nil
}

// resolveAll resolves every concept concurrently and returns them in
// extraction order.
func (b *Builder) resolveAll(ctx context.Context, concepts []core.MedicalConcept) ([]core.MedicalConcept, error) {
	resolved := make([]core.MedicalConcept, len(concepts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.concurrency)
	for i, concept := range concepts {
		g.Go(func() error {
			out, err := retry.Do(gctx, b.opts.policy, func(ctx context.Context) (core.MedicalConcept, error) {
				return b.resolve(ctx, concept)
			})
			if err != nil {
				return err
			}
			resolved[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resolved, nil
}

// resolve plans a lookup for one concept and applies its result. A concept
// with no applicable system, or whose lookup finds nothing, is returned as is.
func (b *Builder) resolve(ctx context.Context, concept core.MedicalConcept) (core.MedicalConcept, error) {
	payload, err := sonic.MarshalString(concept)
	if err != nil {
		return concept, err
	}
	var plan planResponse
	err = b.scorer.CompleteJSON(ctx, ai.Request{
		Instructions: planInstructions,
		Input:        "<concept>" + payload + "</concept>",
		Schema:       planSchema,
		Tier:         ai.TierMini,
	}, &plan)
	if err != nil {
		return concept, err
	}

	action, ok := b.action(concept, plan)
	if !ok {
		return concept, nil
	}
	// The planned name is a normalised term; the note's own wording is the
	// fallback when it finds nothing.
	result, err := b.registry.Run(ctx, action, concept.RawText)
	if err != nil {
		// Unregistered system; nothing to look up.
		b.logger.Warn("skipping lookup", "concept", concept.RawText, "err", err)
		return concept, nil
	}
	if result == nil {
		b.logger.Debug("no code found", "concept", concept.RawText, "system", action.System)
	}
	return concept.Resolve(result), nil
}

func (b *Builder) action(concept core.MedicalConcept, plan planResponse) (core.CodeLookupAction, bool) {
	if plan.System == nil || strings.TrimSpace(*plan.System) == "" || strings.EqualFold(strings.TrimSpace(*plan.System), "null") {
		return core.CodeLookupAction{}, false
	}
	system, err := core.ParseCodeSystem(*plan.System)
	if err != nil {
		b.logger.Warn("unknown code system in plan", "concept", concept.RawText, "system", *plan.System)
		return core.CodeLookupAction{}, false
	}
	name := strings.TrimSpace(plan.Name)
	if name == "" {
		name = strings.TrimSpace(concept.RawText)
	}
	return core.CodeLookupAction{System: system, Name: name}, true
}

func (b *Builder) assemble(ctx context.Context, concepts []core.MedicalConcept) (*core.StructuredNote, error) {
	payload, err := sonic.MarshalString(concepts)
	if err != nil {
		return nil, err
	}
	note, err := retry.Do(ctx, b.opts.policy, func(ctx context.Context) (*core.StructuredNote, error) {
		var note core.StructuredNote
		if err := b.scorer.CompleteJSON(ctx, ai.Request{
			Instructions: assembleInstructions,
			Input:        "<concepts>" + payload + "</concepts>",
			Schema:       assembleSchema,
		}, &note); err != nil {
			return nil, err
		}
		return &note, nil
	})
	if err != nil {
		return nil, err
	}
	fillEmpty(note)
	return note, nil
}

// fillEmpty replaces nil categories so the note always renders lists.
func fillEmpty(note *core.StructuredNote) {
	for _, list := range []*[]core.MedicalConcept{
		&note.Conditions, &note.Diagnoses, &note.Treatments,
		&note.Medications, &note.Observations, &note.PlanActions,
	} {
		if *list == nil {
			*list = []core.MedicalConcept{}
		}
	}
}
