package mock

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/poiesic/clinrag/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIsDeterministicUnitLength(t *testing.T) {
	a := Vector("hello", 16)
	b := Vector("hello", 16)
	c := Vector("world", 16)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestMockEmbedderRecordsBatches(t *testing.T) {
	m := NewMockEmbedder().WithDimensions(4)
	vectors, err := m.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 4)
	assert.Equal(t, [][]string{{"a", "b"}}, m.Batches())
	assert.Equal(t, 1, m.CallCount())

	m.Reset()
	assert.Equal(t, 0, m.CallCount())
	assert.Empty(t, m.Batches())
}

func TestMockScorerDefaultsAndOverrides(t *testing.T) {
	s := NewMockScorer()
	s.JSONResponse = `{"answer":"yes","citations":["1"]}`

	var out struct {
		Answer    string   `json:"answer"`
		Citations []string `json:"citations"`
	}
	require.NoError(t, s.CompleteJSON(context.Background(), ai.Request{Input: "q"}, &out))
	assert.Equal(t, "yes", out.Answer)
	assert.Equal(t, []string{"1"}, out.Citations)

	boom := errors.New("boom")
	s.CompleteFunc = func(ctx context.Context, req ai.Request) (string, error) {
		return "", boom
	}
	_, err := s.Complete(context.Background(), ai.Request{Input: "x"})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 2, s.CallCount())
	assert.Equal(t, "x", s.Requests()[1].Input)
}

func TestMockProvider(t *testing.T) {
	p := NewMockProviderWithServices(NewMockEmbedder(), NewMockScorer())
	var provider ai.AIProvider = p
	assert.NotNil(t, provider.Embedder())
	assert.NotNil(t, provider.Scorer())
	require.NoError(t, provider.Close())
	assert.True(t, p.Closed())
}
