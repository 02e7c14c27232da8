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

// Package notes turns free-text clinical notes into coded structured notes
// and summaries.
//
// Builder runs in three rounds: it extracts the concepts mentioned in a note,
// then for every concept concurrently asks the scorer which coding system to
// query and resolves the code through a lookup.Registry, and finally asks the
// scorer to arrange the resolved concepts into a core.StructuredNote.
package notes
