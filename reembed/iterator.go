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

	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/storage"
)

const (
	// DefaultBatchSize is the default number of segments to fetch in each batch
	DefaultBatchSize = 100
)

// SegmentIterator pages over all stored segments in ID order.
type SegmentIterator struct {
	segments  storage.SegmentStore
	batchSize int
}

// NewSegmentIterator creates a new segment iterator.
// batchSize: number of segments to fetch per page (defaults when <= 0)
func NewSegmentIterator(segments storage.SegmentStore, batchSize int) *SegmentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &SegmentIterator{
		segments:  segments,
		batchSize: batchSize,
	}
}

// ForEach calls fn with each page of segments until the store is exhausted.
// Iteration stops on the first error from fn. Context cancellation is
// checked between pages.
//
// Pages are keyed by the last ID seen, so segments added while iterating
// with a higher ID are visited and deleted ones are skipped.
func (it *SegmentIterator) ForEach(ctx context.Context, fn func([]*core.Segment) error) error {
	var after core.ID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := it.segments.ListSegments(ctx, after, it.batchSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}

		if err := fn(page); err != nil {
			return err
		}

		after = page[len(page)-1].Id
		if len(page) < it.batchSize {
			return nil
		}
	}
}
