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

package search

import "errors"

var (
	// ErrSegmentStoreRequired is returned when a segment store is not provided.
	ErrSegmentStoreRequired = errors.New("segment store required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrNoQueryVectors is returned when Retrieve is called without vectors.
	ErrNoQueryVectors = errors.New("at least one query vector required")

	// ErrInvalidLimit is returned for a non-positive k.
	ErrInvalidLimit = errors.New("k must be positive")

	// ErrEmptyQuestion is returned when Ask gets a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
)
