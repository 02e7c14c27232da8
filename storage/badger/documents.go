package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/storage"
)

// AddDocument stores a new not-started document, or returns the existing
// document with the same fingerprint.
func (s *Store) AddDocument(ctx context.Context, doc *core.Document) (*core.Document, bool, error) {
	if doc == nil {
		return nil, false, core.ValidateDocument(doc)
	}
	candidate := *doc
	candidate.Stage = core.StageNotStarted
	if err := core.ValidateDocument(&candidate); err != nil {
		return nil, false, err
	}
	candidate.Fingerprint = core.Fingerprint(candidate.Title, candidate.Body)

	var (
		stored  *core.Document
		created bool
	)
	err := s.backend.Update(func(tx *badger.Txn) error {
		stored, created = nil, false
		item, err := tx.Get(makeFingerprintKey(candidate.Fingerprint))
		switch {
		case err == nil:
			var existingID core.ID
			if err := item.Value(func(val []byte) error {
				var err error
				existingID, err = storage.UnmarshalID(val)
				return err
			}); err != nil {
				return err
			}
			stored, err = readDocument(tx, existingID)
			if err != nil {
				return err
			}
			if stored != nil {
				return nil
			}
			// Dangling index entry; fall through and overwrite it.
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		id, err := nextID(s.docSeq)
		if err != nil {
			return err
		}
		fresh := candidate
		fresh.Id = id
		fresh.ClaimedBy = ""
		fresh.ClaimedAt = time.Time{}
		fresh.InsertedAt = s.timestamp()
		fresh.UpdatedAt = fresh.InsertedAt
		if err := writeDocument(tx, nil, &fresh); err != nil {
			return err
		}
		if err := tx.Set(makeFingerprintKey(fresh.Fingerprint), storage.MarshalID(fresh.Id)); err != nil {
			return err
		}
		stored, created = &fresh, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		doc.Id = stored.Id
		doc.Stage = stored.Stage
		doc.Fingerprint = stored.Fingerprint
		doc.InsertedAt = stored.InsertedAt
		doc.UpdatedAt = stored.UpdatedAt
	}
	return stored, created, nil
}

// GetDocument retrieves a single document by ID.
func (s *Store) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var doc *core.Document
	err := s.backend.View(func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return doc, err
}

// ListDocuments returns documents in stage, or all documents, in ID order.
func (s *Store) ListDocuments(ctx context.Context, stage core.Stage) ([]*core.Document, error) {
	if stage != "" {
		if err := core.ValidateStage(stage); err != nil {
			return nil, err
		}
	}
	var docs []*core.Document
	err := s.backend.View(func(tx *badger.Txn) error {
		if stage == "" {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(documentPrefix)
			iter := tx.NewIterator(opts)
			defer iter.Close()
			for iter.Rewind(); iter.Valid(); iter.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				var doc *core.Document
				if err := iter.Item().Value(func(val []byte) error {
					var err error
					doc, err = storage.UnmarshalDocument(val)
					return err
				}); err != nil {
					return err
				}
				docs = append(docs, doc)
			}
			return nil
		}

		ids := stageIDs(tx, stage, 0)
		for _, id := range ids {
			doc, err := readDocument(tx, id)
			if err != nil {
				return err
			}
			if doc != nil {
				docs = append(docs, doc)
			}
		}
		return nil
	})
	return docs, err
}

// DeleteDocument removes a document, its indices and all of its segments.
func (s *Store) DeleteDocument(ctx context.Context, id core.ID) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}

		if err := deleteDocumentSegments(tx, id); err != nil {
			return err
		}
		if err := tx.Delete(makeStageKey(doc.Stage, id)); err != nil {
			return err
		}
		if err := tx.Delete(makeFingerprintKey(doc.Fingerprint)); err != nil {
			return err
		}
		return tx.Delete(makeDocumentKey(id))
	})
}

// ClaimNextPending moves the lowest-ID not-started document to in progress.
func (s *Store) ClaimNextPending(ctx context.Context, workerID string) (*core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	var claimed *core.Document
	err := s.backend.Update(func(tx *badger.Txn) error {
		claimed = nil
		for _, id := range stageIDs(tx, core.StageNotStarted, 0) {
			doc, err := readDocument(tx, id)
			if err != nil {
				return err
			}
			if doc == nil || doc.Stage != core.StageNotStarted {
				s.logger.Warn("stale stage index entry", "document_id", id)
				continue
			}
			next := *doc
			next.Stage = core.StageInProgress
			next.ClaimedBy = workerID
			next.ClaimedAt = s.timestamp()
			next.UpdatedAt = next.ClaimedAt
			if err := writeDocument(tx, doc, &next); err != nil {
				return err
			}
			claimed = &next
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// SetStage records a document's new stage.
func (s *Store) SetStage(ctx context.Context, id core.ID, stage core.Stage) error {
	if err := core.ValidateStage(stage); err != nil {
		return err
	}
	return s.backend.Update(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		next := *doc
		next.Stage = stage
		next.UpdatedAt = s.timestamp()
		return writeDocument(tx, doc, &next)
	})
}

// Requeue moves a failed document back to not started.
func (s *Store) Requeue(ctx context.Context, id core.ID) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if doc.Stage != core.StageFailed {
			return fmt.Errorf("%w: document %d is %s", storage.ErrInvalidTransition, id, doc.Stage)
		}
		return writeDocument(tx, doc, requeued(doc, s.timestamp()))
	})
}

// RequeueStale moves in-progress documents claimed before olderThan back to
// not started.
func (s *Store) RequeueStale(ctx context.Context, olderThan time.Time) ([]core.ID, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	var reset []core.ID
	err := s.backend.Update(func(tx *badger.Txn) error {
		reset = nil
		for _, id := range stageIDs(tx, core.StageInProgress, 0) {
			doc, err := readDocument(tx, id)
			if err != nil {
				return err
			}
			if doc == nil || doc.Stage != core.StageInProgress || !doc.ClaimedAt.Before(olderThan) {
				continue
			}
			if err := writeDocument(tx, doc, requeued(doc, s.timestamp())); err != nil {
				return err
			}
			reset = append(reset, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reset, nil
}

// RenewClaim refreshes ClaimedAt on a document workerID still holds.
func (s *Store) RenewClaim(ctx context.Context, id core.ID, workerID string) error {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	return s.backend.Update(func(tx *badger.Txn) error {
		doc, err := claimedDocument(tx, id, workerID)
		if err != nil {
			return err
		}
		next := *doc
		next.ClaimedAt = s.timestamp()
		next.UpdatedAt = next.ClaimedAt
		return writeDocument(tx, doc, &next)
	})
}

// ReleaseClaim moves a document workerID still holds to stage and clears the
// claim.
func (s *Store) ReleaseClaim(ctx context.Context, id core.ID, workerID string, stage core.Stage) error {
	if err := core.ValidateStage(stage); err != nil {
		return err
	}
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	return s.backend.Update(func(tx *badger.Txn) error {
		doc, err := claimedDocument(tx, id, workerID)
		if err != nil {
			return err
		}
		next := *doc
		next.Stage = stage
		next.ClaimedBy = ""
		next.ClaimedAt = time.Time{}
		next.UpdatedAt = s.timestamp()
		return writeDocument(tx, doc, &next)
	})
}

// claimedDocument reads id and checks that workerID holds its claim.
func claimedDocument(tx *badger.Txn, id core.ID, workerID string) (*core.Document, error) {
	doc, err := readDocument(tx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, storage.ErrNotFound
	}
	if doc.Stage != core.StageInProgress || doc.ClaimedBy != workerID {
		return nil, fmt.Errorf("%w: document %d is %s, claimed by %q", storage.ErrClaimLost, id, doc.Stage, doc.ClaimedBy)
	}
	return doc, nil
}

func requeued(doc *core.Document, now time.Time) *core.Document {
	next := *doc
	next.Stage = core.StageNotStarted
	next.ClaimedBy = ""
	next.ClaimedAt = time.Time{}
	next.UpdatedAt = now
	return &next
}

// writeDocument stores next and moves its stage index entry if the stage
// changed from old. old is nil for new documents.
func writeDocument(tx *badger.Txn, old, next *core.Document) error {
	value, err := storage.MarshalDocument(next)
	if err != nil {
		return err
	}
	if err := tx.Set(makeDocumentKey(next.Id), value); err != nil {
		return err
	}
	if old != nil && old.Stage == next.Stage {
		return nil
	}
	if old != nil {
		if err := tx.Delete(makeStageKey(old.Stage, old.Id)); err != nil {
			return err
		}
	}
	return tx.Set(makeStageKey(next.Stage, next.Id), []byte{})
}

// stageIDs lists document IDs in the stage index in ID order. A positive
// limit caps the result.
func stageIDs(tx *badger.Txn, stage core.Stage, limit int) []core.ID {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = makeStagePrefix(stage)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var ids []core.ID
	for iter.Rewind(); iter.Valid(); iter.Next() {
		ids = append(ids, idFromKeySuffix(iter.Item().Key()))
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids
}
