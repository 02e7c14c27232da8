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

// Package ingestion turns queued documents into persisted, embedded segments.
//
// A Worker claims one not-started document at a time, splits it with Split,
// asks the scorer for a short hydrating context per segment through the
// Hydrator, embeds the hydrated segments in one metered batch and persists
// them. Any failure marks that document failed and the loop moves on.
//
// A Reaper can run beside the worker to return documents abandoned in
// progress (for example by a crashed process) to the queue.
package ingestion
