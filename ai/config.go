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

package ai

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for the scoring/embedding service.
type Config struct {
	// BaseURL is the OpenAI-compatible API root.
	// Example: "https://api.openai.com/v1", "http://localhost:11434/v1"
	BaseURL string

	// APIKey authenticates requests. Local servers usually accept any value.
	APIKey string

	// ChatModel answers questions, plans lookups and builds notes.
	ChatModel string

	// HydrationModel writes per-segment context; a smaller model is enough.
	HydrationModel string

	// EmbeddingModel is the model identifier used for vector embeddings.
	EmbeddingModel string

	// EmbeddingDimensions is the fixed vector length produced by EmbeddingModel.
	EmbeddingDimensions int

	// Temperature is applied to every completion.
	Temperature float64

	// Timeout bounds each individual call.
	Timeout time.Duration

	// MaxTokensPerMinute and MaxRequestsPerMinute size the quota gate.
	MaxTokensPerMinute   int
	MaxRequestsPerMinute int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithBaseURL sets the API root.
func WithBaseURL(url string) ConfigOption {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithChatModel sets the completion model.
func WithChatModel(model string) ConfigOption {
	return func(c *Config) {
		c.ChatModel = model
	}
}

// WithHydrationModel sets the model used for segment context.
func WithHydrationModel(model string) ConfigOption {
	return func(c *Config) {
		c.HydrationModel = model
	}
}

// WithEmbeddingModel sets the embedding model and its vector length.
func WithEmbeddingModel(model string, dimensions int) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
		c.EmbeddingDimensions = dimensions
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = t
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithQuota sets the per-minute token and request budgets.
func WithQuota(tokensPerMinute, requestsPerMinute int) ConfigOption {
	return func(c *Config) {
		c.MaxTokensPerMinute = tokensPerMinute
		c.MaxRequestsPerMinute = requestsPerMinute
	}
}

// DefaultConfig returns a Config for the hosted OpenAI API.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:              "https://api.openai.com/v1",
		ChatModel:            "gpt-4.1",
		HydrationModel:       "gpt-4.1-mini",
		EmbeddingModel:       "text-embedding-3-small",
		EmbeddingDimensions:  1536,
		Temperature:          0.5,
		Timeout:              20 * time.Second,
		MaxTokensPerMinute:   200000,
		MaxRequestsPerMinute: 20,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    WithQuota(90000, 10),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to BaseURL if missing and falls back to the chat
// model when no hydration model is set.
func (c *Config) Normalize() {
	if c.BaseURL != "" && !strings.HasSuffix(c.BaseURL, "/v1") {
		c.BaseURL = strings.TrimSuffix(c.BaseURL, "/") + "/v1"
	}
	if c.HydrationModel == "" {
		c.HydrationModel = c.ChatModel
	}
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.BaseURL == "" {
		return errors.New("ai config: BaseURL is required")
	}
	if c.ChatModel == "" {
		return errors.New("ai config: ChatModel is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.EmbeddingDimensions <= 0 {
		return errors.New("ai config: EmbeddingDimensions must be greater than 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("ai config: Temperature must be between 0 and 2")
	}
	if c.Timeout <= 0 {
		return errors.New("ai config: Timeout must be greater than 0")
	}
	if c.MaxTokensPerMinute <= 0 || c.MaxRequestsPerMinute <= 0 {
		return errors.New("ai config: quota budgets must be greater than 0")
	}
	return nil
}
