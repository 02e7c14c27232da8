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

package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidSegment indicates a Segment failed validation.
	ErrInvalidSegment = errors.New("invalid segment")

	// ErrEmptyContent indicates a document has neither title nor body.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidStage indicates an unknown Stage value.
	ErrInvalidStage = errors.New("invalid chunking stage")

	// ErrMissingDocument indicates a segment is not attached to a document.
	ErrMissingDocument = errors.New("segment has no document")

	// ErrEmptyVector indicates a segment is missing its embedding.
	ErrEmptyVector = errors.New("segment has no embedding")

	// ErrInvalidCodeSystem indicates an unknown CodeSystem value.
	ErrInvalidCodeSystem = errors.New("invalid code system")
)
