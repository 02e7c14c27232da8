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

package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/clinrag/ai"
	"github.com/poiesic/clinrag/retry"
)

// Hydrator requests a context string for every segment of a document
// concurrently, on a bounded goroutine pool.
type Hydrator struct {
	scorer ai.Scorer
	pool   *ants.Pool
	policy retry.Policy
	logger *slog.Logger
}

// NewHydrator creates a Hydrator. The pool is shared and owned by the caller.
func NewHydrator(scorer ai.Scorer, pool *ants.Pool, policy retry.Policy, logger *slog.Logger) *Hydrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hydrator{
		scorer: scorer,
		pool:   pool,
		policy: policy,
		logger: logger.With("component", "hydrator"),
	}
}

// Hydrate returns one context per segment, in segment order. Each request is
// retried under the hydrator's policy. The first failure cancels requests not
// yet finished and is returned.
func (h *Hydrator) Hydrate(ctx context.Context, document string, segments []string) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	instructions := hydrationInstructions(document)
	contexts := make([]string, len(segments))

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i, segment := range segments {
		wg.Add(1)
		err := h.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					fail(fmt.Errorf("panic hydrating segment %d: %v", i, r))
				}
			}()
			out, err := retry.Do(ctx, h.policy, func(ctx context.Context) (string, error) {
				return h.scorer.Complete(ctx, ai.Request{
					Instructions: instructions,
					Input:        segment,
					Tier:         ai.TierMini,
				})
			})
			if err != nil {
				h.logger.Warn("hydration failed", "segment", i, "err", err)
				fail(err)
				return
			}
			contexts[i] = strings.TrimSpace(out)
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return contexts, nil
}
