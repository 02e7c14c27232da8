package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/storage"
)

// Store implements storage.Store on a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	now    func() time.Time
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps and claims.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open connects to the database at dsn and registers the pgvector types on
// every pooled connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if err := ensureExtension(ctx, config.ConnConfig); err != nil {
		return nil, err
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &Store{
		pool:   pool,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "postgres-store")
	return s, nil
}

// ensureExtension installs pgvector over a plain connection. The pool's
// AfterConnect hook cannot register the vector type until it exists.
func ensureExtension(ctx context.Context, cfg *pgx.ConnConfig) error {
	conn, err := pgx.ConnectConfig(ctx, cfg.Copy())
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

const documentColumns = `id, title, body, stage, fingerprint, claimed_by, claimed_at, inserted_at, updated_at`

func scanDocument(row pgx.Row) (*core.Document, error) {
	var (
		doc       core.Document
		id        int64
		stage     string
		fp        int64
		claimedAt *time.Time
	)
	err := row.Scan(&id, &doc.Title, &doc.Body, &stage, &fp, &doc.ClaimedBy, &claimedAt, &doc.InsertedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	doc.Id = core.ID(id)
	doc.Stage = core.Stage(stage)
	doc.Fingerprint = uint64(fp)
	if claimedAt != nil {
		doc.ClaimedAt = claimedAt.UTC()
	}
	doc.InsertedAt = doc.InsertedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return &doc, nil
}

func collectDocuments(rows pgx.Rows) ([]*core.Document, error) {
	defer rows.Close()
	var docs []*core.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// AddDocument inserts a not-started document unless one with the same
// fingerprint exists.
func (s *Store) AddDocument(ctx context.Context, doc *core.Document) (*core.Document, bool, error) {
	if doc == nil {
		return nil, false, core.ValidateDocument(doc)
	}
	candidate := *doc
	candidate.Stage = core.StageNotStarted
	if err := core.ValidateDocument(&candidate); err != nil {
		return nil, false, err
	}
	fp := core.Fingerprint(candidate.Title, candidate.Body)
	now := s.timestamp()

	stored, err := scanDocument(s.pool.QueryRow(ctx, `
		INSERT INTO documents (title, body, stage, fingerprint, inserted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (fingerprint) DO NOTHING
		RETURNING `+documentColumns,
		candidate.Title, candidate.Body, string(core.StageNotStarted), int64(fp), now))
	switch {
	case err == nil:
		doc.Id = stored.Id
		doc.Stage = stored.Stage
		doc.Fingerprint = stored.Fingerprint
		doc.InsertedAt = stored.InsertedAt
		doc.UpdatedAt = stored.UpdatedAt
		return stored, true, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, false, err
	}

	existing, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE fingerprint = $1`, int64(fp)))
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetDocument retrieves a single document by ID.
func (s *Store) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	return scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, int64(id)))
}

// ListDocuments returns documents in stage, or all documents, in ID order.
func (s *Store) ListDocuments(ctx context.Context, stage core.Stage) ([]*core.Document, error) {
	if stage == "" {
		rows, err := s.pool.Query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY id`)
		if err != nil {
			return nil, err
		}
		return collectDocuments(rows)
	}
	if err := core.ValidateStage(stage); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE stage = $1 ORDER BY id`, string(stage))
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

// DeleteDocument removes a document; segments go with it via ON DELETE CASCADE.
func (s *Store) DeleteDocument(ctx context.Context, id core.ID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, int64(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ClaimNextPending claims the lowest-ID not-started document, skipping rows
// locked by concurrent claimers.
func (s *Store) ClaimNextPending(ctx context.Context, workerID string) (*core.Document, error) {
	doc, err := scanDocument(s.pool.QueryRow(ctx, `
		UPDATE documents
		SET stage = $1, claimed_by = $2, claimed_at = $3, updated_at = $3
		WHERE id = (
			SELECT id FROM documents
			WHERE stage = $4
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+documentColumns,
		string(core.StageInProgress), workerID, s.timestamp(), string(core.StageNotStarted)))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

// SetStage records a document's new stage.
func (s *Store) SetStage(ctx context.Context, id core.ID, stage core.Stage) error {
	if err := core.ValidateStage(stage); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET stage = $1, updated_at = $2 WHERE id = $3`,
		string(stage), s.timestamp(), int64(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RenewClaim refreshes claimed_at on a document workerID still holds.
func (s *Store) RenewClaim(ctx context.Context, id core.ID, workerID string) error {
	now := s.timestamp()
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET claimed_at = $1, updated_at = $1
		WHERE id = $2 AND stage = $3 AND claimed_by = $4`,
		now, int64(id), string(core.StageInProgress), workerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.claimLost(ctx, id)
}

// ReleaseClaim moves a document workerID still holds to stage and clears the
// claim.
func (s *Store) ReleaseClaim(ctx context.Context, id core.ID, workerID string, stage core.Stage) error {
	if err := core.ValidateStage(stage); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET stage = $1, claimed_by = '', claimed_at = NULL, updated_at = $2
		WHERE id = $3 AND stage = $4 AND claimed_by = $5`,
		string(stage), s.timestamp(), int64(id), string(core.StageInProgress), workerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.claimLost(ctx, id)
}

// claimLost explains why a fenced update matched no row.
func (s *Store) claimLost(ctx context.Context, id core.ID) error {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: document %d is %s, claimed by %q", storage.ErrClaimLost, id, doc.Stage, doc.ClaimedBy)
}

// Requeue moves a failed document back to not started.
func (s *Store) Requeue(ctx context.Context, id core.ID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET stage = $1, claimed_by = '', claimed_at = NULL, updated_at = $2
		WHERE id = $3 AND stage = $4`,
		string(core.StageNotStarted), s.timestamp(), int64(id), string(core.StageFailed))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: document %d is %s", storage.ErrInvalidTransition, id, doc.Stage)
}

// RequeueStale moves in-progress documents claimed before olderThan back to
// not started.
func (s *Store) RequeueStale(ctx context.Context, olderThan time.Time) ([]core.ID, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE documents
		SET stage = $1, claimed_by = '', claimed_at = NULL, updated_at = $2
		WHERE stage = $3 AND claimed_at < $4
		RETURNING id`,
		string(core.StageNotStarted), s.timestamp(), string(core.StageInProgress), olderThan)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	out := make([]core.ID, len(ids))
	for i, id := range ids {
		out[i] = core.ID(id)
	}
	slices.Sort(out)
	return out, nil
}
