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

import (
	"fmt"
	"slices"
	"strings"
)

func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if strings.TrimSpace(doc.Title) == "" && strings.TrimSpace(doc.Body) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)
	}

	if err := ValidateStage(doc.Stage); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	return nil
}

func ValidateSegment(segment *Segment) error {
	if segment == nil {
		return fmt.Errorf("%w: segment is nil", ErrInvalidSegment)
	}

	if segment.DocumentId == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSegment, ErrMissingDocument)
	}

	if segment.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidSegment, ErrEmptyContent)
	}

	if len(segment.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSegment, ErrEmptyVector)
	}

	return nil
}

func ValidateStage(stage Stage) error {
	if !slices.Contains(Stages, stage) {
		return fmt.Errorf("%w: %q", ErrInvalidStage, stage)
	}
	return nil
}

// ParseCodeSystem accepts the canonical names plus the "ICD10" spelling
// language models tend to produce.
func ParseCodeSystem(s string) (CodeSystem, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ICD", "ICD10", "ICD-10":
		return CodeSystemICD, nil
	case "RXNORM":
		return CodeSystemRxNorm, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCodeSystem, s)
}
