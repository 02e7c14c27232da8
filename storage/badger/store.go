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

package badger

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/storage"
)

// Store implements storage.Store on BadgerDB.
type Store struct {
	backend *Backend
	ownsDB  bool
	docSeq  *badger.Sequence
	segSeq  *badger.Sequence
	now     func() time.Time
	logger  *slog.Logger

	// claimMu serializes claim and reaper transactions inside this process so
	// they do not conflict with each other. Transaction conflict detection
	// still guards against every other writer.
	claimMu sync.Mutex
}

var _ storage.Store = (*Store)(nil)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used for timestamps and claims.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a Store on an open backend. The caller keeps ownership of
// the backend and must close it after the store.
func NewStore(backend *Backend, opts ...StoreOption) (*Store, error) {
	docSeq, err := backend.GetSequence(documentIDSeq)
	if err != nil {
		return nil, err
	}
	segSeq, err := backend.GetSequence(segmentIDSeq)
	if err != nil {
		docSeq.Release()
		return nil, err
	}

	s := &Store{
		backend: backend,
		docSeq:  docSeq,
		segSeq:  segSeq,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "badger-store")
	return s, nil
}

// Open opens (or creates) a database directory and returns a store that owns it.
func Open(path string, opts ...StoreOption) (*Store, error) {
	return open(path, false, opts...)
}

// OpenMemory returns a store over an in-memory database.
func OpenMemory(opts ...StoreOption) (*Store, error) {
	return open("", true, opts...)
}

func open(path string, inMemory bool, opts ...StoreOption) (*Store, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}
	s, err := NewStore(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// Close releases the ID sequences, and the database if the store opened it.
func (s *Store) Close() error {
	err := errors.Join(s.docSeq.Release(), s.segSeq.Release())
	if s.ownsDB {
		err = errors.Join(err, s.backend.Close())
	}
	return err
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// nextID draws from seq, skipping the zero BadgerDB can return on first use.
func nextID(seq *badger.Sequence) (core.ID, error) {
	id, err := seq.Next()
	if err != nil {
		return 0, err
	}
	if id == 0 {
		if id, err = seq.Next(); err != nil {
			return 0, err
		}
	}
	return core.ID(id), nil
}

// readDocument returns nil, nil if the document doesn't exist.
func readDocument(tx *badger.Txn, id core.ID) (*core.Document, error) {
	item, err := tx.Get(makeDocumentKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var doc *core.Document
	err = item.Value(func(val []byte) error {
		var err error
		doc, err = storage.UnmarshalDocument(val)
		return err
	})
	return doc, err
}

// readSegment returns nil, nil if the segment doesn't exist.
func readSegment(tx *badger.Txn, id core.ID) (*core.Segment, error) {
	item, err := tx.Get(makeSegmentKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var segment *core.Segment
	err = item.Value(func(val []byte) error {
		var err error
		segment, err = storage.UnmarshalSegment(val)
		return err
	})
	return segment, err
}
