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

package openai

import (
	"log/slog"
	"net/http"

	"github.com/poiesic/clinrag/ai"
	"github.com/poiesic/clinrag/quota"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider implements ai.AIProvider using OpenAI-compatible services.
// The embedder and scorer share one quota gate.
type Provider struct {
	config   *ai.Config
	gate     *quota.Gate
	embedder *Embedder
	scorer   *Scorer
	logger   *slog.Logger
}

type providerOptions struct {
	gate       *quota.Gate
	counter    *ai.TokenCounter
	httpClient *http.Client
	logger     *slog.Logger
}

// ProviderOption configures NewProvider.
type ProviderOption func(*providerOptions)

// WithGate shares an existing gate instead of building one from the config budgets.
func WithGate(g *quota.Gate) ProviderOption {
	return func(o *providerOptions) {
		o.gate = g
	}
}

// WithTokenCounter overrides the token counter used to size calls.
func WithTokenCounter(c *ai.TokenCounter) ProviderOption {
	return func(o *providerOptions) {
		o.counter = c
	}
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(o *providerOptions) {
		o.httpClient = c
	}
}

// WithLogger sets the parent logger.
func WithLogger(l *slog.Logger) ProviderOption {
	return func(o *providerOptions) {
		o.logger = l
	}
}

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is validated and normalized before use.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config, opts ...ProviderOption) (ai.AIProvider, error) {
	return newProvider(config, opts...)
}

func newProvider(config *ai.Config, opts ...ProviderOption) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	o := providerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.counter == nil {
		o.counter = ai.NewTokenCounter(ai.DefaultEncoding)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: config.Timeout}
	}
	if o.gate == nil {
		g, err := quota.NewGate(config.MaxTokensPerMinute, config.MaxRequestsPerMinute,
			quota.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
		o.gate = g
	}

	client, err := newClient(config, o.httpClient)
	if err != nil {
		return nil, err
	}
	embedder, err := newEmbedder(config, client, o.gate, o.counter, o.logger)
	if err != nil {
		return nil, err
	}
	scorer := newScorer(config, client, o.gate, o.counter, o.logger)

	return &Provider{
		config:   config,
		gate:     o.gate,
		embedder: embedder,
		scorer:   scorer,
		logger:   o.logger.With("component", "openai-provider"),
	}, nil
}

// newClient builds the langchaingo client shared by both services. Local
// OpenAI-compatible services that don't require authentication get "none".
func newClient(config *ai.Config, httpClient *http.Client) (*openai.LLM, error) {
	token := config.APIKey
	if token == "" {
		token = "none"
	}
	return openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithToken(token),
		openai.WithModel(config.ChatModel),
		openai.WithEmbeddingModel(config.EmbeddingModel),
		openai.WithHTTPClient(httpClient),
	)
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Scorer returns the completion service.
func (p *Provider) Scorer() ai.Scorer {
	return p.scorer
}

// Gate returns the quota gate shared by the provider's services.
func (p *Provider) Gate() *quota.Gate {
	return p.gate
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
