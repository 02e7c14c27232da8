package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/clinrag/ai"
	"github.com/poiesic/clinrag/quota"
	"github.com/poiesic/clinrag/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// fakeAPI serves the two OpenAI endpoints the provider uses.
type fakeAPI struct {
	mu          sync.Mutex
	chatReplies []string
	chatModels  []string
	jsonModes   []bool
	embedCalls  int
	dims        int
	status      int
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.status != 0 {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(`{"error":{"message":"unavailable"}}`))
			return
		}
		f.chatModels = append(f.chatModels, gjson.GetBytes(body, "model").String())
		f.jsonModes = append(f.jsonModes, gjson.GetBytes(body, "response_format.type").String() == "json_object")

		reply := ""
		if len(f.chatReplies) > 0 {
			reply = f.chatReplies[0]
			f.chatReplies = f.chatReplies[1:]
		}
		content, _ := jsonString(reply)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"m",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}],`+
			`"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`, content)
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		f.mu.Lock()
		f.embedCalls++
		dims := f.dims
		f.mu.Unlock()

		inputs := gjson.GetBytes(body, "input").Array()
		var data []string
		for i := range inputs {
			vec := make([]string, dims)
			for d := range vec {
				vec[d] = fmt.Sprintf("%d.5", i)
			}
			data = append(data, fmt.Sprintf(`{"object":"embedding","embedding":[%s],"index":%d}`, strings.Join(vec, ","), i))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"object":"list","data":[%s],"model":"m","usage":{"prompt_tokens":1,"total_tokens":1}}`,
			strings.Join(data, ","))
	})
	return mux
}

func jsonString(s string) (string, error) {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String(), nil
}

func newTestProvider(t *testing.T, api *fakeAPI, gate *quota.Gate) *Provider {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	cfg := ai.NewConfig(
		ai.WithBaseURL(srv.URL),
		ai.WithAPIKey("test"),
		ai.WithEmbeddingModel("embed", 3),
		ai.WithTimeout(5*time.Second),
	)
	opts := []ProviderOption{WithTokenCounter(ai.NewEstimatingTokenCounter())}
	if gate != nil {
		opts = append(opts, WithGate(gate))
	}
	p, err := newProvider(cfg, opts...)
	require.NoError(t, err)
	return p
}

func TestNewProviderRejectsInvalidConfig(t *testing.T) {
	_, err := NewProvider(ai.NewConfig(ai.WithChatModel("")))
	assert.Error(t, err)
}

func TestEmbedTextsBatchesThroughGate(t *testing.T) {
	gate, err := quota.NewGate(1000, 10)
	require.NoError(t, err)
	api := &fakeAPI{dims: 3}
	p := newTestProvider(t, api, gate)

	vectors, err := p.Embedder().EmbedTexts(context.Background(), []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{0.5, 0.5, 0.5}, vectors[0])
	assert.Equal(t, []float32{2.5, 2.5, 2.5}, vectors[2])

	units, calls := gate.Usage()
	assert.Equal(t, 1, calls, "one batch is one admitted call")
	assert.Equal(t, ai.NewEstimatingTokenCounter().Units("alpha", "beta", "gamma"), units)
	assert.Equal(t, 1, api.embedCalls)
}

func TestEmbedTextRejectsWrongDimensions(t *testing.T) {
	api := &fakeAPI{dims: 2}
	p := newTestProvider(t, api, nil)

	_, err := p.Embedder().EmbedText(context.Background(), "alpha")
	assert.ErrorIs(t, err, ai.ErrDimensionMismatch)
}

func TestEmbedTextsEmptyInput(t *testing.T) {
	api := &fakeAPI{dims: 3}
	p := newTestProvider(t, api, nil)

	vectors, err := p.Embedder().EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Equal(t, 0, api.embedCalls)
}

func TestCompleteUsesTierModel(t *testing.T) {
	api := &fakeAPI{chatReplies: []string{"full reply", "mini reply"}}
	p := newTestProvider(t, api, nil)
	ctx := context.Background()

	out, err := p.Scorer().Complete(ctx, ai.Request{Instructions: "Say hi.", Input: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "full reply", out)

	out, err = p.Scorer().Complete(ctx, ai.Request{Instructions: "Say hi.", Input: "hello", Tier: ai.TierMini})
	require.NoError(t, err)
	assert.Equal(t, "mini reply", out)

	assert.Equal(t, []string{"gpt-4.1", "gpt-4.1-mini"}, api.chatModels)
	assert.Equal(t, []bool{false, false}, api.jsonModes)

	_, calls := p.Gate().Usage()
	assert.Equal(t, 2, calls)
}

func TestCompleteJSONStripsFences(t *testing.T) {
	api := &fakeAPI{chatReplies: []string{"```json\n{\"variants\": [\"a\", \"b\"]}\n```"}}
	p := newTestProvider(t, api, nil)

	var out struct {
		Variants []string `json:"variants"`
	}
	err := p.Scorer().CompleteJSON(context.Background(), ai.Request{
		Instructions: "Rephrase.",
		Input:        "question",
		Schema:       `{"type":"object"}`,
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Variants)
	assert.Equal(t, []bool{true}, api.jsonModes)
}

func TestCompleteJSONMalformedOutputCostsOneCall(t *testing.T) {
	api := &fakeAPI{chatReplies: []string{"nope", `{"ok":true}`}}
	p := newTestProvider(t, api, nil)

	var out map[string]any
	err := p.Scorer().CompleteJSON(context.Background(), ai.Request{Input: "x"}, &out)
	assert.ErrorIs(t, err, ai.ErrMalformedJSON)
	assert.Len(t, api.chatModels, 1, "re-requesting is left to the caller's retry policy")
}

func TestCompleteJSONUnderRetryPolicy(t *testing.T) {
	api := &fakeAPI{chatReplies: []string{"nope", "still nope", "nope again", `{"ok":true}`}}
	p := newTestProvider(t, api, nil)

	policy := retry.DefaultPolicy()
	policy.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	var out map[string]any
	err := retry.Run(context.Background(), policy, func(ctx context.Context) error {
		return p.Scorer().CompleteJSON(ctx, ai.Request{Input: "x"}, &out)
	})
	assert.ErrorIs(t, err, ai.ErrMalformedJSON)
	assert.Len(t, api.chatModels, 3, "one gated call per attempt")
}

func TestCompleteSurfacesServiceErrors(t *testing.T) {
	api := &fakeAPI{status: http.StatusServiceUnavailable}
	p := newTestProvider(t, api, nil)

	_, err := p.Scorer().Complete(context.Background(), ai.Request{Input: "x"})
	assert.Error(t, err)
}

func TestBuildInstructions(t *testing.T) {
	assert.Equal(t, "Do it.", buildInstructions("Do it.", ""))

	got := buildInstructions("Do it.\n", `{"type":"object"}`)
	assert.True(t, strings.HasPrefix(got, "Do it.\n\n"))
	assert.True(t, strings.HasSuffix(got, `{"type":"object"}`))
}

func TestSanitizeAndFences(t *testing.T) {
	assert.Equal(t, "a\tb\nc", sanitize("  a\tb\x00\nc\x07 "))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}
