package postgres

import (
	"context"
	"fmt"
)

// schemaTemplate creates the tables the store needs. The embedding column is
// sized to the configured vector dimension.
const schemaTemplate = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	id          BIGSERIAL PRIMARY KEY,
	title       TEXT NOT NULL,
	body        TEXT NOT NULL,
	stage       TEXT NOT NULL DEFAULT 'not_started',
	fingerprint BIGINT NOT NULL UNIQUE,
	claimed_by  TEXT NOT NULL DEFAULT '',
	claimed_at  TIMESTAMPTZ,
	inserted_at TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS documents_stage_idx ON documents (stage, id);

CREATE TABLE IF NOT EXISTS segments (
	id          BIGSERIAL PRIMARY KEY,
	document_id BIGINT NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
	idx         INTEGER NOT NULL,
	text        TEXT NOT NULL,
	context     TEXT NOT NULL,
	embedding   VECTOR(%d) NOT NULL,
	inserted_at TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, idx)
);
`

// EnsureSchema creates the extension and tables if they are missing. It is a
// convenience for development and tests, not a migration tool.
func (s *Store) EnsureSchema(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("postgres: invalid vector dimensions %d", dimensions)
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(schemaTemplate, dimensions))
	return err
}
