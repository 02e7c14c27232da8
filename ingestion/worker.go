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
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/clinrag/ai"
	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/retry"
	"github.com/poiesic/clinrag/storage"
)

const (
	// DefaultIdleDelay is slept when no document is pending, and after a loop
	// iteration fails outside any single document.
	DefaultIdleDelay = 2 * time.Second

	// DefaultHeartbeat is how often a worker renews the claim on the document
	// it is processing. It must stay well below the reaper's stale age.
	DefaultHeartbeat = time.Minute
)

// Worker is the long-running chunking loop.
type Worker struct {
	store     storage.Store
	provider  ai.AIProvider
	pool      *ants.Pool
	proc      *processor
	id        string
	idle      time.Duration
	heartbeat time.Duration
	policy    retry.Policy
	chunkSize int
	overlap   int
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker) error

// WithPoolSize sets the hydration pool size.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(w *Worker) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if w.pool != nil {
			w.pool.Release()
		}
		w.pool = pool
		return nil
	}
}

// WithChunking sets the segment size and overlap in characters.
func WithChunking(size, overlap int) Option {
	return func(w *Worker) error {
		if size <= 0 || overlap < 0 || overlap >= size {
			return ErrInvalidChunking
		}
		w.chunkSize = size
		w.overlap = overlap
		return nil
	}
}

// WithIdleDelay sets how long the loop sleeps when nothing is pending.
func WithIdleDelay(d time.Duration) Option {
	return func(w *Worker) error {
		w.idle = d
		return nil
	}
}

// WithHeartbeat sets how often the claim on an in-flight document is
// renewed. Zero disables renewal.
func WithHeartbeat(d time.Duration) Option {
	return func(w *Worker) error {
		w.heartbeat = d
		return nil
	}
}

// WithRetryPolicy sets the policy for hydration and embedding calls.
func WithRetryPolicy(p retry.Policy) Option {
	return func(w *Worker) error {
		w.policy = p
		return nil
	}
}

// WithWorkerID sets the identity recorded on claimed documents.
// Default is a random UUID.
func WithWorkerID(id string) Option {
	return func(w *Worker) error {
		w.id = id
		return nil
	}
}

// WithSleep replaces the context-aware idle timer, mostly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(w *Worker) error {
		w.sleep = sleep
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// NewWorker creates a chunking worker over store, using provider for
// hydration and embeddings.
func NewWorker(store storage.Store, provider ai.AIProvider, opts ...Option) (*Worker, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		store:     store,
		provider:  provider,
		pool:      pool,
		id:        uuid.NewString(),
		idle:      DefaultIdleDelay,
		heartbeat: DefaultHeartbeat,
		policy:    retry.DefaultPolicy(),
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		sleep:     sleepContext,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if optErr := opt(w); optErr != nil {
			w.Release()
			return nil, optErr
		}
	}
	w.logger = w.logger.With("component", "chunking-worker", "worker_id", w.id)
	if w.policy.Logger == nil {
		w.policy.Logger = w.logger
	}

	w.proc = &processor{
		claims:    store,
		workerID:  w.id,
		segments:  store,
		hydrator:  NewHydrator(provider.Scorer(), w.pool, w.policy, w.logger),
		embedder:  provider.Embedder(),
		policy:    w.policy,
		chunkSize: w.chunkSize,
		overlap:   w.overlap,
		logger:    w.logger,
	}
	return w, nil
}

// ID returns the identity the worker claims documents under.
func (w *Worker) ID() string {
	return w.id
}

// Run claims and processes documents until ctx is cancelled, which is the
// shutdown signal. A failing document is marked failed; a failing iteration
// is logged and retried after the idle delay. Run returns nil on shutdown.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("chunking worker started")
	defer w.logger.Info("chunking worker stopped")

	for ctx.Err() == nil {
		processed, err := w.ProcessNext(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			w.logger.Error("worker iteration failed", "err", err)
			_ = w.sleep(ctx, w.idle)
		case err == nil && !processed:
			_ = w.sleep(ctx, w.idle)
		}
	}
	return nil
}

// ProcessNext claims one pending document and runs it through the pipeline.
// It reports false when nothing was pending. An error means the iteration
// itself failed (for example the store was unavailable); a document that
// fails processing is marked failed and is not an error here.
func (w *Worker) ProcessNext(ctx context.Context) (processed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()

	doc, err := w.store.ClaimNextPending(ctx, w.id)
	if err != nil {
		return false, fmt.Errorf("failed to claim document: %w", err)
	}
	if doc == nil {
		return false, nil
	}
	return true, w.processDocument(ctx, doc)
}

func (w *Worker) processDocument(ctx context.Context, doc *core.Document) error {
	logger := w.logger.With("document_id", doc.Id)
	logger.Info("claimed document", "title", doc.Title)
	start := time.Now()

	procCtx, cancel := context.WithCancelCause(ctx)
	stopHeartbeat := w.keepClaim(procCtx, cancel, doc.Id, logger)
	procErr := w.safeProcess(procCtx, doc)
	cancel(nil)
	stopHeartbeat()

	stage := core.StageCompleted
	switch {
	case errors.Is(procErr, storage.ErrClaimLost) || errors.Is(context.Cause(procCtx), storage.ErrClaimLost):
		// Another worker owns the document now; leave it to them.
		logger.Warn("claim lost while processing, abandoning document", "err", procErr)
		return nil
	case procErr == nil:
		logger.Info("document completed", "elapsed", time.Since(start))
	case ctx.Err() != nil && errors.Is(procErr, ctx.Err()):
		// Shutdown, not a document failure: put it back in the queue.
		stage = core.StageNotStarted
		logger.Warn("document interrupted by shutdown, returning to queue")
	default:
		stage = core.StageFailed
		logger.Error("document failed", "err", procErr)
	}

	err := w.store.ReleaseClaim(context.WithoutCancel(ctx), doc.Id, w.id, stage)
	if errors.Is(err, storage.ErrClaimLost) {
		logger.Warn("claim lost before release, leaving document to its new owner", "err", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to set stage %s for document %d: %w", stage, doc.Id, err)
	}
	return nil
}

// keepClaim renews the claim on id every heartbeat until the returned stop
// function is called. Losing the claim cancels ctx with ErrClaimLost.
func (w *Worker) keepClaim(ctx context.Context, cancel context.CancelCauseFunc, id core.ID, logger *slog.Logger) (stop func()) {
	if w.heartbeat <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(w.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			err := w.store.RenewClaim(ctx, id, w.id)
			switch {
			case errors.Is(err, storage.ErrClaimLost):
				cancel(err)
				return
			case err != nil && ctx.Err() == nil:
				logger.Warn("failed to renew claim", "err", err)
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// safeProcess converts a panic inside the pipeline into a document failure.
func (w *Worker) safeProcess(ctx context.Context, doc *core.Document) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing document: %v", r)
		}
	}()
	return w.proc.process(ctx, doc)
}

// Release releases the hydration pool.
// The worker should not be used after calling Release.
func (w *Worker) Release() {
	if w.pool != nil {
		w.pool.Release()
	}
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
