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
	"encoding/binary"

	"github.com/poiesic/clinrag/core"
)

// Key layout. Record and index keys embed IDs big-endian so that prefix
// iteration visits them in ID order.
//
//	doc:<id>                      document record
//	docstg:<stage>:<id>           stage index, empty value
//	docfp:<fingerprint>           fingerprint index, value is the document ID
//	seg:<id>                      segment record
//	docseg:<docID><index>         document segment index, value is the segment ID
const (
	documentPrefix    = "doc:"
	stagePrefix       = "docstg:"
	fingerprintPrefix = "docfp:"
	segmentPrefix     = "seg:"
	docSegmentPrefix  = "docseg:"
	documentIDSeq     = "docseq"
	segmentIDSeq      = "segseq"
)

func appendUint64(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return appendUint64([]byte(documentPrefix), uint64(id))
}

// makeStagePrefix generates the iteration prefix for one stage.
// Format: prefix:stage:
func makeStagePrefix(stage core.Stage) []byte {
	return []byte(stagePrefix + string(stage) + ":")
}

// makeStageKey generates a composite key for the stage index.
// Format: prefix:stage:id
func makeStageKey(stage core.Stage, id core.ID) []byte {
	return appendUint64(makeStagePrefix(stage), uint64(id))
}

// makeFingerprintKey generates a key for the fingerprint index.
func makeFingerprintKey(fp uint64) []byte {
	return appendUint64([]byte(fingerprintPrefix), fp)
}

// makeSegmentKey generates a key for a segment by ID.
func makeSegmentKey(id core.ID) []byte {
	return appendUint64([]byte(segmentPrefix), uint64(id))
}

// makeDocSegmentPrefix generates the iteration prefix for one document's segments.
func makeDocSegmentPrefix(docID core.ID) []byte {
	return appendUint64([]byte(docSegmentPrefix), uint64(docID))
}

// makeDocSegmentKey generates a composite key for the document segment index.
// Format: prefix:docID:index
func makeDocSegmentKey(docID core.ID, index int) []byte {
	return appendUint64(makeDocSegmentPrefix(docID), uint64(index))
}

// idFromKeySuffix reads the big-endian ID in the last 8 bytes of key.
func idFromKeySuffix(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}
