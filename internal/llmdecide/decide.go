// Copyright 2025 Kadir Pekel
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

// Package llmdecide implements the LLM Decide Contract (C7): a single
// abstract call that turns a prompt into a raw response, a parsed
// Instruction (if parseable), and token usage, retrying once on parse
// failure with a stricter instruction.
package llmdecide

import (
	"context"

	"github.com/kadirpekel/agentnet/internal/action"
	"github.com/kadirpekel/agentnet/internal/runlog"
)

// Result is the full C7 return value.
type Result struct {
	Text            string
	Parsed          *action.Instruction
	Usage           runlog.Usage
	ResponsePayload map[string]any
}

// Decider is the C7 contract. Implementations must request JSON-only
// output and must themselves retry once on parse failure with a stricter
// instruction, returning combined usage across both attempts.
type Decider interface {
	Decide(ctx context.Context, prompt string, model string) (Result, error)
}

const retryInstruction = "\n\nYour previous response could not be parsed as JSON. Return only raw JSON, no markdown, no commentary, no code fences."
