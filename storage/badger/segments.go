package badger

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/storage"
)

// PersistSegments stores a document's segments in one transaction, replacing
// any it already has.
func (s *Store) PersistSegments(ctx context.Context, docID core.ID, segments []*core.Segment) ([]*core.Segment, error) {
	for _, segment := range segments {
		if segment == nil {
			return nil, core.ValidateSegment(segment)
		}
		segment.DocumentId = docID
		if err := core.ValidateSegment(segment); err != nil {
			return nil, err
		}
	}

	err := s.backend.Update(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, docID)
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("document %d: %w", docID, storage.ErrNotFound)
		}
		if err := deleteDocumentSegments(tx, docID); err != nil {
			return err
		}
		now := s.timestamp()
		for _, segment := range segments {
			id, err := nextID(s.segSeq)
			if err != nil {
				return err
			}
			segment.Id = id
			segment.InsertedAt = now
			segment.UpdatedAt = now

			value, err := storage.MarshalSegment(segment)
			if err != nil {
				return err
			}
			if err := tx.Set(makeSegmentKey(segment.Id), value); err != nil {
				return err
			}
			if err := tx.Set(makeDocSegmentKey(docID, segment.Index), storage.MarshalID(segment.Id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return segments, nil
}

// UpdateSegments overwrites the context and vector of existing segments.
func (s *Store) UpdateSegments(ctx context.Context, segments ...*core.Segment) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		now := s.timestamp()
		for _, segment := range segments {
			old, err := readSegment(tx, segment.Id)
			if err != nil {
				return err
			}
			if old == nil {
				return fmt.Errorf("segment %d: %w", segment.Id, storage.ErrNotFound)
			}
			next := *old
			next.Context = segment.Context
			next.Vector = segment.Vector
			next.UpdatedAt = now
			if err := core.ValidateSegment(&next); err != nil {
				return err
			}
			value, err := storage.MarshalSegment(&next)
			if err != nil {
				return err
			}
			if err := tx.Set(makeSegmentKey(next.Id), value); err != nil {
				return err
			}
			segment.UpdatedAt = now
		}
		return nil
	})
}

// SegmentsForDocument returns a document's segments in index order.
func (s *Store) SegmentsForDocument(ctx context.Context, docID core.ID) ([]*core.Segment, error) {
	var segments []*core.Segment
	err := s.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeDocSegmentPrefix(docID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var segID core.ID
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				segID, err = storage.UnmarshalID(val)
				return err
			}); err != nil {
				return err
			}
			segment, err := readSegment(tx, segID)
			if err != nil {
				return err
			}
			if segment != nil {
				segments = append(segments, segment)
			}
		}
		return nil
	})
	return segments, err
}

// ListSegments returns up to limit segments after afterID in ID order.
func (s *Store) ListSegments(ctx context.Context, afterID core.ID, limit int) ([]*core.Segment, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	var segments []*core.Segment
	err := s.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(segmentPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makeSegmentKey(afterID + 1)); iter.Valid() && len(segments) < limit; iter.Next() {
			var segment *core.Segment
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				segment, err = storage.UnmarshalSegment(val)
				return err
			}); err != nil {
				return err
			}
			segments = append(segments, segment)
		}
		return nil
	})
	return segments, err
}

// CountSegments returns the number of stored segments.
func (s *Store) CountSegments(ctx context.Context) (int, error) {
	count := 0
	err := s.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(segmentPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// NearestNeighbors scans every segment and returns the limit closest by
// cosine distance.
func (s *Store) NearestNeighbors(ctx context.Context, vector []float32, limit int) ([]core.Candidate, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidQuery, core.ErrEmptyVector)
	}
	if limit <= 0 {
		return []core.Candidate{}, nil
	}

	var candidates []core.Candidate
	err := s.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(segmentPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var segment *core.Segment
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				segment, err = storage.UnmarshalSegment(val)
				return err
			}); err != nil {
				return err
			}
			if len(segment.Vector) == 0 {
				continue
			}
			candidates = append(candidates, core.Candidate{
				Segment:  segment,
				Distance: storage.CosineDistance(vector, segment.Vector),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return storage.TopCandidates(candidates, limit), nil
}

// deleteDocumentSegments removes a document's segment records and their
// index keys.
func deleteDocumentSegments(tx *badger.Txn, docID core.ID) error {
	var indexKeys [][]byte
	var segmentIDs []core.ID
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makeDocSegmentPrefix(docID)
	iter := tx.NewIterator(opts)
	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		indexKeys = append(indexKeys, item.KeyCopy(nil))
		var segID core.ID
		if err := item.Value(func(val []byte) error {
			var err error
			segID, err = storage.UnmarshalID(val)
			return err
		}); err != nil {
			iter.Close()
			return err
		}
		segmentIDs = append(segmentIDs, segID)
	}
	iter.Close()

	for i, key := range indexKeys {
		if err := tx.Delete(key); err != nil {
			return err
		}
		if err := tx.Delete(makeSegmentKey(segmentIDs[i])); err != nil {
			return err
		}
	}
	return nil
}
