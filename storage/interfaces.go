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

package storage

import (
	"context"
	"time"

	"github.com/poiesic/clinrag/core"
)

// DocumentStore owns documents and their chunking lifecycle.
type DocumentStore interface {
	// AddDocument stores a new document as not started and assigns its ID,
	// fingerprint and timestamps. If a document with the same fingerprint
	// already exists it is returned instead and created is false.
	AddDocument(ctx context.Context, doc *core.Document) (stored *core.Document, created bool, err error)

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// ListDocuments returns documents in the given stage ordered by ID.
	// An empty stage lists every document.
	ListDocuments(ctx context.Context, stage core.Stage) ([]*core.Document, error)

	// DeleteDocument removes a document and all of its segments.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id core.ID) error

	// ClaimNextPending atomically moves one not-started document to in
	// progress, recording workerID as the claimant. It never waits on a
	// document another caller is claiming. Returns nil, nil when nothing
	// is pending.
	ClaimNextPending(ctx context.Context, workerID string) (*core.Document, error)

	// SetStage records a document's new lifecycle stage.
	// Returns ErrNotFound if the document doesn't exist.
	SetStage(ctx context.Context, id core.ID, stage core.Stage) error

	// RenewClaim refreshes the claim time of an in-progress document so the
	// reaper leaves it alone. Returns ErrClaimLost unless workerID holds it.
	RenewClaim(ctx context.Context, id core.ID, workerID string) error

	// ReleaseClaim moves an in-progress document held by workerID to stage
	// and clears the claim. Returns ErrClaimLost unless workerID holds it.
	ReleaseClaim(ctx context.Context, id core.ID, workerID string, stage core.Stage) error

	// Requeue moves a failed document back to not started.
	// Returns ErrInvalidTransition for documents in any other stage.
	Requeue(ctx context.Context, id core.ID) error

	// RequeueStale moves in-progress documents claimed before olderThan back
	// to not started and returns their IDs. Failed documents are untouched.
	RequeueStale(ctx context.Context, olderThan time.Time) ([]core.ID, error)
}

// SegmentStore owns segments and vector search over them.
type SegmentStore interface {
	// PersistSegments stores a document's segments as one batch, assigning
	// IDs in slice order. Segments the document already had are replaced, so
	// reprocessing a requeued document leaves one set.
	// Returns ErrNotFound if the document doesn't exist.
	PersistSegments(ctx context.Context, docID core.ID, segments []*core.Segment) ([]*core.Segment, error)

	// UpdateSegments overwrites the context and vector of existing segments.
	// It exists for corrective edits such as re-embedding.
	// Returns ErrNotFound if any segment doesn't exist.
	UpdateSegments(ctx context.Context, segments ...*core.Segment) error

	// SegmentsForDocument returns a document's segments in index order.
	SegmentsForDocument(ctx context.Context, docID core.ID) ([]*core.Segment, error)

	// ListSegments returns up to limit segments with IDs greater than afterID,
	// in ID order. Pass 0 to start from the beginning.
	ListSegments(ctx context.Context, afterID core.ID, limit int) ([]*core.Segment, error)

	// CountSegments returns the number of stored segments.
	CountSegments(ctx context.Context) (int, error)

	// NearestNeighbors returns up to limit segments ordered by ascending
	// cosine distance to vector. Equal distances are ordered by segment ID.
	NearestNeighbors(ctx context.Context, vector []float32, limit int) ([]core.Candidate, error)
}

// Store combines document and segment storage under one lifecycle.
type Store interface {
	DocumentStore
	SegmentStore

	// Close closes the storage backend and releases resources.
	Close() error
}
