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

package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/clinrag/ai"
	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/retry"
	"github.com/poiesic/clinrag/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of segments embedded per call
	BatchSize int

	// ReportInterval is how often to report progress (number of segments)
	ReportInterval int

	// Policy governs retries of each embedding call
	Policy retry.Policy
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		Policy:         retry.DefaultPolicy(),
	}
}

// Reembedder re-embeds every stored segment.
type Reembedder struct {
	segments  storage.SegmentStore
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *SegmentIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(segments storage.SegmentStore, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if segments == nil {
		return nil, ErrSegmentStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		segments:  segments,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(segments, embedder, config.Policy),
		iterator:  NewSegmentIterator(segments, config.BatchSize),
		logger:    slog.Default().With("component", "reembedder"),
	}, nil
}

// Run re-embeds all segments and returns how many were processed. A failed
// batch stops the run; segments already processed keep their new vectors.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	total, err := r.segments.CountSegments(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count segments: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No segments found in database\n")
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Re-embedding %d segments (batch size: %d)\n",
		total, r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	err = r.iterator.ForEach(ctx, func(segments []*core.Segment) error {
		if err := r.processor.Process(ctx, segments); err != nil {
			return fmt.Errorf("failed to process batch starting at segment %d: %w", segments[0].Id, err)
		}
		processed += len(segments)
		tracker.Update(processed)
		return nil
	})
	if err != nil {
		r.logger.Error("reembedding stopped", "processed", processed, "err", err)
		return processed, err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(processed) / elapsed.Seconds()
	}
	fmt.Fprintf(r.progress, "Re-embedding complete. Processed %d segments in %v (%.1f segments/sec)\n",
		processed, elapsed.Round(time.Second), rate)

	return processed, nil
}
