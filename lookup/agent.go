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

package lookup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/retry"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultConcurrency is the number of in-flight calls allowed per backend.
	DefaultConcurrency = 2

	// DefaultTimeout bounds each outbound call.
	DefaultTimeout = 20 * time.Second

	// DefaultMinDelay and DefaultMaxDelay bound the politeness pause taken
	// after every call before its permit is released.
	DefaultMinDelay = time.Second
	DefaultMaxDelay = 1750 * time.Millisecond

	maxResponseBytes = 4 << 20
)

// Backend describes one external coding system.
type Backend interface {
	// System identifies the coding system this backend resolves terms in.
	System() core.CodeSystem

	// URL builds the request address for a search term.
	URL(term string) string

	// Parse extracts the first well-formed match from a response body.
	// It returns nil, nil when the body holds no usable match.
	Parse(body []byte) (*core.CodeResult, error)
}

// Agent calls a single Backend under a concurrency cap and a politeness
// delay. Transport and parse failures are retried; once retries run out they
// are reported as absent results, never as errors.
type Agent struct {
	backend Backend
	client  *http.Client
	permits *semaphore.Weighted
	delay   func() time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	policy  retry.Policy
	cache   *Cache
	logger  *slog.Logger
}

// Option configures an Agent.
type Option func(*Agent) error

// WithConcurrency sets the per-backend permit count.
func WithConcurrency(n int) Option {
	return func(a *Agent) error {
		if n < 1 {
			return ErrInvalidConcurrency
		}
		a.permits = semaphore.NewWeighted(int64(n))
		return nil
	}
}

// WithHTTPClient replaces the default client (20s timeout).
func WithHTTPClient(client *http.Client) Option {
	return func(a *Agent) error {
		if client != nil {
			a.client = client
		}
		return nil
	}
}

// WithDelay sets the politeness delay source and the function used to sleep.
func WithDelay(delay func() time.Duration, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Agent) error {
		if delay != nil {
			a.delay = delay
		}
		if sleep != nil {
			a.sleep = sleep
		}
		return nil
	}
}

// WithRetryPolicy sets the policy for transport and parse failures.
// Non-200 responses are a definite "no match" and are not retried.
func WithRetryPolicy(p retry.Policy) Option {
	return func(a *Agent) error {
		a.policy = p
		return nil
	}
}

// WithCache enables result caching. Only successful lookups are cached.
func WithCache(cache *Cache) Option {
	return func(a *Agent) error {
		a.cache = cache
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// NewAgent creates an Agent for backend.
func NewAgent(backend Backend, opts ...Option) (*Agent, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}

	a := &Agent{
		backend: backend,
		client:  &http.Client{Timeout: DefaultTimeout},
		permits: semaphore.NewWeighted(DefaultConcurrency),
		delay:   politenessDelay,
		sleep:   sleepContext,
		policy:  retry.DefaultPolicy(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.logger = a.logger.With("backend", strings.ToLower(string(backend.System())))
	if a.policy.Logger == nil {
		a.policy.Logger = a.logger
	}

	return a, nil
}

// System returns the coding system served by this agent.
func (a *Agent) System() core.CodeSystem {
	return a.backend.System()
}

// Lookup resolves term and returns nil when nothing usable comes back.
func (a *Agent) Lookup(ctx context.Context, term string) *core.CodeResult {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}

	if a.cache != nil {
		if hit, ok := a.cache.Get(a.backend.System(), term); ok {
			a.logger.Debug("lookup cache hit", "term", term)
			return hit
		}
	}

	if err := a.permits.Acquire(ctx, 1); err != nil {
		return nil
	}
	defer a.permits.Release(1)

	url := a.backend.URL(term)
	result, err := retry.Do(ctx, a.policy, func(ctx context.Context) (*core.CodeResult, error) {
		return a.call(ctx, url)
	})
	if err != nil {
		a.logger.Warn("code lookup failed", "term", term, "err", err)
		result = nil
	}

	// The pause happens while still holding the permit.
	_ = a.sleep(ctx, a.delay())

	if result != nil && a.cache != nil {
		a.cache.Set(a.backend.System(), term, result)
	}
	return result
}

// LookupFirst tries each term in order and returns the first match. Blank
// and repeated terms are skipped.
func (a *Agent) LookupFirst(ctx context.Context, terms ...string) *core.CodeResult {
	tried := make(map[string]bool, len(terms))
	for _, term := range terms {
		if ctx.Err() != nil {
			return nil
		}
		key := strings.ToLower(strings.TrimSpace(term))
		if key == "" || tried[key] {
			continue
		}
		tried[key] = true
		if result := a.Lookup(ctx, term); result != nil {
			return result
		}
	}
	return nil
}

func (a *Agent) call(ctx context.Context, url string) (*core.CodeResult, error) {
	a.logger.Debug("calling code lookup backend", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.logger.Debug("code lookup returned non-200", "status", resp.StatusCode)
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	result, err := a.backend.Parse(body)
	if err != nil {
		return nil, err
	}
	if result != nil {
		result.System = a.backend.System()
	}
	return result, nil
}

// politenessDelay is uniform in [DefaultMinDelay, DefaultMaxDelay).
func politenessDelay() time.Duration {
	spread := DefaultMaxDelay - DefaultMinDelay
	return DefaultMinDelay + time.Duration(rand.Int64N(int64(spread)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
