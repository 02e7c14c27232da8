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
	"log/slog"
	"time"

	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/storage"
)

const (
	// DefaultStaleAfter is how long a claim may go untouched before the
	// reaper returns the document to the queue.
	DefaultStaleAfter = 30 * time.Minute

	// DefaultReapInterval is how often the reaper checks.
	DefaultReapInterval = time.Minute
)

// Reaper returns documents stuck in progress to the queue. Failed documents
// are never touched; they need an explicit Requeue.
type Reaper struct {
	docs       storage.DocumentStore
	staleAfter time.Duration
	interval   time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger
}

// ReaperOption configures a Reaper.
type ReaperOption func(*Reaper)

// WithStaleAfter sets the claim age after which a document is requeued.
func WithStaleAfter(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		r.staleAfter = d
	}
}

// WithReapInterval sets the delay between sweeps.
func WithReapInterval(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		r.interval = d
	}
}

// WithReaperClock overrides the time source and sleep, mostly for tests.
func WithReaperClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) ReaperOption {
	return func(r *Reaper) {
		r.now = now
		r.sleep = sleep
	}
}

// WithReaperLogger sets a custom logger.
func WithReaperLogger(logger *slog.Logger) ReaperOption {
	return func(r *Reaper) {
		r.logger = logger
	}
}

// NewReaper creates a Reaper over docs.
func NewReaper(docs storage.DocumentStore, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		docs:       docs,
		staleAfter: DefaultStaleAfter,
		interval:   DefaultReapInterval,
		now:        time.Now,
		sleep:      sleepContext,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "reaper")
	return r
}

// Sweep requeues every document whose claim is older than the stale age.
func (r *Reaper) Sweep(ctx context.Context) ([]core.ID, error) {
	ids, err := r.docs.RequeueStale(ctx, r.now().Add(-r.staleAfter))
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		r.logger.Warn("requeued stale documents", "count", len(ids), "ids", ids)
	}
	return ids, nil
}

// Run sweeps every interval until ctx is cancelled. Sweep errors are logged.
func (r *Reaper) Run(ctx context.Context) error {
	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("reaper sweep failed", "err", err)
		}
		if err := r.sleep(ctx, r.interval); err != nil {
			return nil
		}
	}
}
