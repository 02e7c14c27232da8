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

import "strings"

const schemaPreamble = `Output ONLY valid JSON which complies with the schema given below. Do not include any preamble,
explanation, or markdown. Start your response with the opening brace { and end with the closing brace }.

Schema:
`

// buildInstructions appends the JSON schema, if any, to the caller's
// instructions. The instruction text stays first so calls sharing it share a
// cacheable prefix.
func buildInstructions(instructions, schema string) string {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return instructions
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(instructions, "\n"))
	b.WriteString("\n\n")
	b.WriteString(schemaPreamble)
	b.WriteString(schema)
	return b.String()
}
