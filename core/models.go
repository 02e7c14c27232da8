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
	"encoding/binary"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ID identifies documents and segments. Zero is never assigned.
type ID uint64

// Fingerprint derives a stable 64-bit digest of a document's title and body.
// It is used to detect duplicate submissions, not as a primary key.
func Fingerprint(title, body string) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(body))
	return binary.LittleEndian.Uint64(h.Sum(nil))
}

// Stage is the chunking lifecycle state of a Document.
type Stage string

const (
	StageNotStarted Stage = "not_started"
	StageInProgress Stage = "in_progress"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// Stages lists every valid stage in lifecycle order.
var Stages = []Stage{StageNotStarted, StageInProgress, StageCompleted, StageFailed}

// Terminal reports whether no worker will touch a document in this stage again
// without an explicit re-queue.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Document is a unit of free text queued for chunking.
type Document struct {
	Id          ID
	Title       string
	Body        string
	Stage       Stage
	Fingerprint uint64
	ClaimedBy   string    // Worker identity holding the document while in progress
	ClaimedAt   time.Time // When the current claim was taken
	InsertedAt  time.Time
	UpdatedAt   time.Time
}

// FullText is the text a worker splits: title and body separated by a blank line.
func (d *Document) FullText() string {
	return d.Title + "\n\n" + d.Body
}

// Segment is a bounded substring of a document plus its hydrating context
// and embedding vector.
type Segment struct {
	Id         ID
	DocumentId ID
	Index      int // Position of the segment within its document
	Text       string
	Context    string
	Vector     []float32
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// HydratedText is the text that gets embedded for a segment.
func (s *Segment) HydratedText() string {
	return HydrateText(s.Context, s.Text)
}

// HydrateText joins a hydration context and raw segment text.
func HydrateText(context, text string) string {
	return context + "\n\n" + text
}

// Candidate pairs a stored segment with its cosine distance to a query.
// Candidates are produced per retrieval call and never persisted.
type Candidate struct {
	Segment  *Segment
	Distance float32
}

// CodeSystem names an external clinical coding system.
type CodeSystem string

const (
	CodeSystemICD    CodeSystem = "ICD"
	CodeSystemRxNorm CodeSystem = "RXNORM"
)

// CodeResult is a single match returned by a code lookup backend.
type CodeResult struct {
	Name   string     `json:"name"`
	Code   string     `json:"code"`
	System CodeSystem `json:"system"`
}

// Answer is a question-answering result. Citations are rendered as
// "[<segment id>]: <segment text>".
type Answer struct {
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
}
