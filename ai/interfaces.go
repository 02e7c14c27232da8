package ai

import "context"

// Embedder generates vector embeddings from text for similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple texts in one
	// metered call. The returned slice is in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Tier selects the model a request runs on.
type Tier int

const (
	// TierFull is the primary chat model.
	TierFull Tier = iota
	// TierMini is the smaller model used for high-volume calls.
	TierMini
)

// Request is a single instruction-plus-input call to the scoring service.
// Instructions come first and are identical across calls that share them, so
// providers with prompt caching can reuse the prefix.
type Request struct {
	Instructions string
	Input        string
	Tier         Tier

	// Schema describes the expected JSON shape for CompleteJSON. It is
	// appended to the instructions.
	Schema string
}

// Scorer is the opaque remote oracle that produces text or structured values.
// Implementations must be thread-safe for concurrent use.
type Scorer interface {
	// Complete returns the model's text output.
	Complete(ctx context.Context, req Request) (string, error)

	// CompleteJSON decodes the model's JSON output into out.
	CompleteJSON(ctx context.Context, req Request, out any) error
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Scorer returns the completion service.
	Scorer() Scorer

	// Close releases resources held by the provider and its services.
	Close() error
}
