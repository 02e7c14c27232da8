// Package reembed recomputes the embeddings of stored segments, typically
// after the embedding model changes.
//
// Segments are read in ID order in fixed-size batches. Each batch's hydrated
// text is embedded in one metered call under the retry policy, and the new
// vectors are written back through SegmentStore.UpdateSegments. Progress is
// reported to a writer.
package reembed
