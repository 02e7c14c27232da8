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

// Package ai defines the scoring/embedding service the rest of clinrag
// depends on.
//
// Two interfaces cover every remote call:
//
//   - Embedder: turns text into fixed-dimension vectors
//   - Scorer: runs an instruction over an input and returns text or JSON
//
// AIProvider aggregates both for lifecycle management. Every production call
// is metered in token units (see TokenCounter) and must pass the process-wide
// quota.Gate before it reaches the network.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible implementation built on langchaingo
//   - ai/mock: deterministic test doubles
//
// Public constructors in ai/openai return interface types. Mock constructors
// return concrete types so tests can inject behavior and read call counts.
//
//	cfg := ai.NewConfig(ai.WithAPIKey(key))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, texts)
package ai
