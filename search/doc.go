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

// Package search retrieves segments for a question and answers it from them.
//
// The Retriever takes several embeddings of the same question (the question
// itself plus paraphrases) and ranks every stored segment by its smallest
// cosine distance to any of them. A segment close to one phrasing is a valid
// candidate; no reranking is applied.
//
// The Answerer drives the whole flow: it asks the scorer for paraphrase
// variants, embeds them with the question in one batch, retrieves the best
// segments and asks for an answer with citations.
package search
