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
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	"github.com/poiesic/clinrag/ai"
	"github.com/poiesic/clinrag/quota"
	"github.com/tidwall/gjson"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Scorer implements ai.Scorer using OpenAI-compatible chat APIs.
type Scorer struct {
	client      llms.Model
	models      map[ai.Tier]string
	temperature float64
	gate        *quota.Gate
	counter     *ai.TokenCounter
	timeout     time.Duration
	logger      *slog.Logger
}

func newScorer(config *ai.Config, client *openai.LLM, gate *quota.Gate, counter *ai.TokenCounter, logger *slog.Logger) *Scorer {
	return &Scorer{
		client: client,
		models: map[ai.Tier]string{
			ai.TierFull: config.ChatModel,
			ai.TierMini: config.HydrationModel,
		},
		temperature: config.Temperature,
		gate:        gate,
		counter:     counter,
		timeout:     config.Timeout,
		logger:      logger.With("component", "openai-scorer"),
	}
}

// Complete returns the model's text output for req.
func (s *Scorer) Complete(ctx context.Context, req ai.Request) (string, error) {
	return s.generate(ctx, req, false)
}

// CompleteJSON requests JSON output and decodes it into out. A response that
// does not parse is reported as ai.ErrMalformedJSON; callers re-request under
// their retry policy.
func (s *Scorer) CompleteJSON(ctx context.Context, req ai.Request, out any) error {
	text, err := s.generate(ctx, req, true)
	if err != nil {
		return err
	}
	text = stripCodeFence(text)
	if !gjson.Valid(text) {
		err := fmt.Errorf("%w: %q", ai.ErrMalformedJSON, truncate(text, 200))
		s.logger.Warn("error parsing structured response", "err", err)
		return err
	}
	if err := sonic.UnmarshalString(text, out); err != nil {
		s.logger.Warn("error decoding structured response", "err", err)
		return fmt.Errorf("%w: %w", ai.ErrMalformedJSON, err)
	}
	return nil
}

func (s *Scorer) generate(ctx context.Context, req ai.Request, jsonMode bool) (string, error) {
	system := buildInstructions(req.Instructions, req.Schema)
	input := sanitize(req.Input)
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(input)},
		},
	}

	model := s.models[req.Tier]
	units := s.counter.Units(system, input)
	if err := s.gate.Acquire(ctx, units); err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := []llms.CallOption{
		llms.WithModel(model),
		llms.WithTemperature(s.temperature),
	}
	if jsonMode {
		opts = append(opts, llms.WithJSONMode())
	}
	s.logger.Debug("generating content", "model", model, "units", units, "json", jsonMode)

	response, err := s.client.GenerateContent(callCtx, content, opts...)
	if err != nil {
		s.logger.Error("failed to generate content", "model", model, "err", err)
		return "", err
	}
	if len(response.Choices) < 1 {
		return "", ai.ErrEmptyResponse
	}
	return response.Choices[0].Content, nil
}
