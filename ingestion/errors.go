package ingestion

import "errors"

var (
	// ErrStoreRequired is returned when a store is not provided.
	ErrStoreRequired = errors.New("store required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrInvalidChunking is returned for a non-positive chunk size or an
	// overlap that would stop the window from advancing.
	ErrInvalidChunking = errors.New("overlap must be non-negative and less than chunk size")

	// ErrNoSegments is returned when a document produced nothing to embed.
	ErrNoSegments = errors.New("document produced no segments")
)
