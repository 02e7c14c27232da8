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

// Package mock provides deterministic test doubles for the ai interfaces.
//
// The doubles are safe for concurrent use, so they can stand in for the
// production services behind worker pools and errgroups.
//
//	embedder := mock.NewMockEmbedder().WithDimensions(8)
//	scorer := mock.NewMockScorer()
//	scorer.CompleteFunc = func(ctx context.Context, req ai.Request) (string, error) {
//	    return "context", nil
//	}
//
//	// Check call counts
//	count := embedder.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: returns unit vectors derived from a hash of the text
//   - MockScorer: Complete echoes nothing; CompleteJSON decodes JSONResponse
//   - MockProvider: aggregates one of each
package mock
