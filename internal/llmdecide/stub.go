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

package llmdecide

import (
	"context"
	"fmt"

	"github.com/kadirpekel/agentnet/internal/action"
	"github.com/kadirpekel/agentnet/internal/runlog"
)

// StubResponse is one scripted reply for StubDecider.
type StubResponse struct {
	Text  string // raw JSON text; text that does not parse makes Decide return an error
	Usage runlog.Usage
}

// StubDecider returns scripted responses in order, one per call, and repeats
// the last response once the script is exhausted. Used by step-loop and
// task-group tests to drive deterministic end-to-end scenarios without a
// live model.
type StubDecider struct {
	Responses []StubResponse
	calls     int
}

// Decide implements Decider by replaying the scripted responses in order.
func (s *StubDecider) Decide(ctx context.Context, prompt string, model string) (Result, error) {
	if len(s.Responses) == 0 {
		return Result{}, fmt.Errorf("stub decider: no responses configured")
	}
	idx := s.calls
	if idx >= len(s.Responses) {
		idx = len(s.Responses) - 1
	}
	s.calls++

	resp := s.Responses[idx]
	parsed, err := action.ParseInstruction([]byte(resp.Text))
	if err != nil {
		return Result{
			Text:            resp.Text,
			Usage:           resp.Usage,
			ResponsePayload: map[string]any{"text": resp.Text},
		}, fmt.Errorf("stub decider: parse failed: %w", err)
	}

	return Result{
		Text:            resp.Text,
		Parsed:          parsed,
		Usage:           resp.Usage,
		ResponsePayload: map[string]any{"text": resp.Text},
	}, nil
}

// CallCount returns how many times Decide has been invoked.
func (s *StubDecider) CallCount() int {
	return s.calls
}
