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

package clinrag

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/clinrag/ai"
	"github.com/poiesic/clinrag/ai/openai"
	"github.com/poiesic/clinrag/ingestion"
	"github.com/poiesic/clinrag/lookup"
	"github.com/poiesic/clinrag/notes"
	"github.com/poiesic/clinrag/reembed"
	"github.com/poiesic/clinrag/search"
	"github.com/poiesic/clinrag/storage"
	"github.com/poiesic/clinrag/storage/badger"
	"github.com/poiesic/clinrag/storage/postgres"
)

const (
	lookupCacheEntries = 10_000
	lookupCacheTTL     = 24 * time.Hour
)

// Database wires a document store, the AI provider and the code lookup
// agents together and hands out the components built on them.
type Database struct {
	store    storage.Store
	provider ai.AIProvider
	registry *lookup.Registry
	cache    *lookup.Cache
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig    *ai.Config
	provider    ai.AIProvider
	postgresDSN string
	lookupOpts  []lookup.Option
	logger      *slog.Logger
}

// WithAIConfig sets the configuration of the OpenAI-compatible provider.
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = config
	}
}

// WithProvider supplies a ready provider instead of building one from the
// AI config. The Database takes ownership and closes it.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithPostgres stores documents and segments in PostgreSQL instead of the
// embedded store. The path given to NewDatabase is then ignored.
func WithPostgres(dsn string) DatabaseOption {
	return func(o *databaseOptions) {
		o.postgresDSN = dsn
	}
}

// WithLookupOptions passes options to every code lookup agent.
func WithLookupOptions(opts ...lookup.Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.lookupOpts = append(o.lookupOpts, opts...)
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens the store at path (a badger directory) and builds the
// AI provider and lookup registry.
func NewDatabase(path string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	store, err := openStore(path, options)
	if err != nil {
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig, openai.WithLogger(options.logger))
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	cache, err := lookup.NewCache(lookupCacheEntries, lookupCacheTTL)
	if err != nil {
		provider.Close()
		store.Close()
		return nil, err
	}
	lookupOpts := append([]lookup.Option{lookup.WithCache(cache), lookup.WithLogger(options.logger)}, options.lookupOpts...)
	registry, err := lookup.NewDefaultRegistry(lookupOpts...)
	if err != nil {
		cache.Close()
		provider.Close()
		store.Close()
		return nil, err
	}

	return &Database{
		store:    store,
		provider: provider,
		registry: registry,
		cache:    cache,
		logger:   options.logger,
	}, nil
}

func openStore(path string, options *databaseOptions) (storage.Store, error) {
	if options.postgresDSN == "" {
		return badger.Open(path, badger.WithLogger(options.logger))
	}

	ctx := context.Background()
	store, err := postgres.Open(ctx, options.postgresDSN, postgres.WithLogger(options.logger))
	if err != nil {
		return nil, err
	}
	dims := ai.DefaultConfig().EmbeddingDimensions
	if options.aiConfig != nil {
		dims = options.aiConfig.EmbeddingDimensions
	}
	if err := store.EnsureSchema(ctx, dims); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the provider, the lookup cache and the store.
func (db *Database) Close() error {
	var errs []error
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	db.cache.Close()
	if err := db.store.Close(); err != nil {
		db.logger.Error("error closing store", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (db *Database) Store() storage.Store {
	return db.store
}

func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

func (db *Database) Registry() *lookup.Registry {
	return db.registry
}

// NewWorker creates a chunking worker. Call Release on it when done.
func (db *Database) NewWorker(opts ...ingestion.Option) (*ingestion.Worker, error) {
	opts = append([]ingestion.Option{ingestion.WithLogger(db.logger)}, opts...)
	return ingestion.NewWorker(db.store, db.provider, opts...)
}

func (db *Database) NewReaper(opts ...ingestion.ReaperOption) *ingestion.Reaper {
	opts = append([]ingestion.ReaperOption{ingestion.WithReaperLogger(db.logger)}, opts...)
	return ingestion.NewReaper(db.store, opts...)
}

func (db *Database) NewRetriever(opts ...search.Option) (*search.Retriever, error) {
	return search.NewRetriever(db.store, opts...)
}

func (db *Database) NewAnswerer(opts ...search.AnswererOption) (*search.Answerer, error) {
	retriever, err := db.NewRetriever(search.WithLogger(db.logger))
	if err != nil {
		return nil, err
	}
	opts = append([]search.AnswererOption{search.WithAnswererLogger(db.logger)}, opts...)
	return search.NewAnswerer(retriever, db.provider, opts...)
}

func (db *Database) NewNoteBuilder(opts ...notes.Option) (*notes.Builder, error) {
	opts = append([]notes.Option{notes.WithLogger(db.logger)}, opts...)
	return notes.NewBuilder(db.provider.Scorer(), db.registry, opts...)
}

func (db *Database) NewSummarizer(opts ...notes.Option) (*notes.Summarizer, error) {
	opts = append([]notes.Option{notes.WithLogger(db.logger)}, opts...)
	return notes.NewSummarizer(db.provider.Scorer(), opts...)
}

func (db *Database) NewReembedder(config *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(db.store, db.provider.Embedder(), config, progress)
}
