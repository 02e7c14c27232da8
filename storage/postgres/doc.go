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

// Package postgres implements storage.Store on PostgreSQL with the pgvector
// extension.
//
// Claims use SELECT ... FOR UPDATE SKIP LOCKED, so any number of worker
// processes can share one database: a claimer never waits on a row another
// transaction holds, it takes the next free one. Nearest-neighbour queries
// use pgvector's cosine distance operator.
package postgres
