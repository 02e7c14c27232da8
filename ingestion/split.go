package ingestion

const (
	// DefaultChunkSize is the segment length in characters.
	DefaultChunkSize = 1024

	// DefaultChunkOverlap is how many characters consecutive segments share.
	DefaultChunkOverlap = 128
)

// Split cuts text into overlapping windows of size characters. Segment i
// starts at i*(size-overlap); the last segment may be shorter. Lengths and
// offsets count runes, so a multi-byte character is never cut in half.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, ErrInvalidChunking
	}
	runes := []rune(text)
	step := size - overlap

	var segments []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		segments = append(segments, string(runes[start:end]))
	}
	return segments, nil
}
