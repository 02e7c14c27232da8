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

package mock

import (
	"context"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/poiesic/clinrag/ai"
)

// MockScorer is a test double for ai.Scorer.
type MockScorer struct {
	// CompleteFunc is called by Complete if set.
	CompleteFunc func(ctx context.Context, req ai.Request) (string, error)

	// CompleteJSONFunc is called by CompleteJSON if set.
	CompleteJSONFunc func(ctx context.Context, req ai.Request, out any) error

	// JSONResponse is decoded into out by CompleteJSON when no func is set.
	JSONResponse string

	mu       sync.Mutex
	requests []ai.Request
}

// NewMockScorer creates a mock scorer with default behavior.
func NewMockScorer() *MockScorer {
	return &MockScorer{}
}

// Complete returns the result of CompleteFunc, or an empty string.
func (m *MockScorer) Complete(ctx context.Context, req ai.Request) (string, error) {
	m.record(req)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "", nil
}

// CompleteJSON returns the result of CompleteJSONFunc, or decodes JSONResponse.
func (m *MockScorer) CompleteJSON(ctx context.Context, req ai.Request, out any) error {
	m.record(req)
	if m.CompleteJSONFunc != nil {
		return m.CompleteJSONFunc(ctx, req, out)
	}
	if m.JSONResponse == "" {
		return nil
	}
	return sonic.UnmarshalString(m.JSONResponse, out)
}

func (m *MockScorer) record(req ai.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
}

// CallCount returns the number of calls made.
func (m *MockScorer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns every request received, in arrival order.
func (m *MockScorer) Requests() []ai.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ai.Request(nil), m.requests...)
}

// Decode is a helper for CompleteJSONFunc implementations.
func Decode(raw string, out any) error {
	return sonic.UnmarshalString(raw, out)
}
