package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/storage"
)

const segmentColumns = `id, document_id, idx, text, context, embedding, inserted_at, updated_at`

func scanSegment(row pgx.Row) (*core.Segment, error) {
	var (
		seg       core.Segment
		id, docID int64
		vec       pgvector.Vector
	)
	if err := row.Scan(&id, &docID, &seg.Index, &seg.Text, &seg.Context, &vec, &seg.InsertedAt, &seg.UpdatedAt); err != nil {
		return nil, err
	}
	seg.Id = core.ID(id)
	seg.DocumentId = core.ID(docID)
	seg.Vector = vec.Slice()
	seg.InsertedAt = seg.InsertedAt.UTC()
	seg.UpdatedAt = seg.UpdatedAt.UTC()
	return &seg, nil
}

func collectSegments(rows pgx.Rows) ([]*core.Segment, error) {
	defer rows.Close()
	var segments []*core.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// PersistSegments inserts a document's segments in one transaction, replacing
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

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// The row lock serializes concurrent persists for one document.
		var locked int64
		err := tx.QueryRow(ctx, `SELECT id FROM documents WHERE id = $1 FOR UPDATE`, int64(docID)).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("document %d: %w", docID, storage.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM segments WHERE document_id = $1`, int64(docID)); err != nil {
			return err
		}

		now := s.timestamp()
		batch := &pgx.Batch{}
		for _, segment := range segments {
			batch.Queue(`
				INSERT INTO segments (document_id, idx, text, context, embedding, inserted_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $6)
				RETURNING id`,
				int64(docID), segment.Index, segment.Text, segment.Context, pgvector.NewVector(segment.Vector), now)
		}
		results := tx.SendBatch(ctx, batch)
		for _, segment := range segments {
			var id int64
			if err := results.QueryRow().Scan(&id); err != nil {
				results.Close()
				return err
			}
			segment.Id = core.ID(id)
			segment.InsertedAt = now
			segment.UpdatedAt = now
		}
		return results.Close()
	})
	if err != nil {
		return nil, err
	}
	return segments, nil
}

// UpdateSegments overwrites the context and vector of existing segments.
func (s *Store) UpdateSegments(ctx context.Context, segments ...*core.Segment) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		now := s.timestamp()
		for _, segment := range segments {
			if len(segment.Vector) == 0 {
				return fmt.Errorf("%w: %w", core.ErrInvalidSegment, core.ErrEmptyVector)
			}
			tag, err := tx.Exec(ctx,
				`UPDATE segments SET context = $1, embedding = $2, updated_at = $3 WHERE id = $4`,
				segment.Context, pgvector.NewVector(segment.Vector), now, int64(segment.Id))
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("segment %d: %w", segment.Id, storage.ErrNotFound)
			}
			segment.UpdatedAt = now
		}
		return nil
	})
}

// SegmentsForDocument returns a document's segments in index order.
func (s *Store) SegmentsForDocument(ctx context.Context, docID core.ID) ([]*core.Segment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE document_id = $1 ORDER BY idx`, int64(docID))
	if err != nil {
		return nil, err
	}
	return collectSegments(rows)
}

// ListSegments returns up to limit segments after afterID in ID order.
func (s *Store) ListSegments(ctx context.Context, afterID core.ID, limit int) ([]*core.Segment, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE id > $1 ORDER BY id LIMIT $2`, int64(afterID), limit)
	if err != nil {
		return nil, err
	}
	return collectSegments(rows)
}

// CountSegments returns the number of stored segments.
func (s *Store) CountSegments(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM segments`).Scan(&n)
	return n, err
}

// NearestNeighbors orders segments by pgvector cosine distance, breaking ties
// by ID.
func (s *Store) NearestNeighbors(ctx context.Context, vector []float32, limit int) ([]core.Candidate, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidQuery, core.ErrEmptyVector)
	}
	if limit <= 0 {
		return []core.Candidate{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+segmentColumns+`, embedding <=> $1 AS distance
		FROM segments
		ORDER BY distance, id
		LIMIT $2`, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []core.Candidate
	for rows.Next() {
		var (
			seg       core.Segment
			id, docID int64
			vec       pgvector.Vector
			distance  float64
		)
		if err := rows.Scan(&id, &docID, &seg.Index, &seg.Text, &seg.Context, &vec, &seg.InsertedAt, &seg.UpdatedAt, &distance); err != nil {
			return nil, err
		}
		seg.Id = core.ID(id)
		seg.DocumentId = core.ID(docID)
		seg.Vector = vec.Slice()
		candidates = append(candidates, core.Candidate{Segment: &seg, Distance: float32(distance)})
	}
	return candidates, rows.Err()
}
