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

// Package storage defines the document and segment stores clinrag runs on.
//
// Two implementations exist:
//
//   - storage/badger: embedded default, no external services
//   - storage/postgres: PostgreSQL with the pgvector extension
//
// Both satisfy Store and the shared contract tests in each package.
//
// # Claiming
//
// ClaimNextPending is the only operation with special isolation. Exactly one
// caller may move a given document from not started to in progress, and a
// caller never blocks on a document someone else is claiming; it moves on to
// the next one or reports that nothing is pending.
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access from
// multiple goroutines.
package storage
