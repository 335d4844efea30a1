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

package tools

import (
	"context"
	"fmt"
	"sync"
)

// DialogflowCXClient is the collaborator contract for the out-of-scope
// concrete DialogFlow CX integration (spec.md §1). The provider only owns
// the per-session first-utterance warm-up bookkeeping; the actual protocol
// call is delegated here.
type DialogflowCXClient interface {
	DetectIntent(ctx context.Context, sessionID, text string, warm bool) (map[string]any, error)
}

// DialogflowCXProvider implements "dialogflow:cx": a stateful provider that
// tracks, per session id, whether the first utterance warm-up call has
// already been made.
type DialogflowCXProvider struct {
	client DialogflowCXClient

	mu   sync.Mutex
	seen map[string]bool
}

// NewDialogflowCXProvider builds a DialogflowCXProvider. A nil client makes
// the provider fail every call with a config_missing-flavored error,
// matching the out-of-scope collaborator contract: implementers wire a real
// client, we only define the shape.
func NewDialogflowCXProvider(client DialogflowCXClient) *DialogflowCXProvider {
	return &DialogflowCXProvider{client: client, seen: make(map[string]bool)}
}

// Run implements Provider.
func (p *DialogflowCXProvider) Run(ctx context.Context, in Input) (Output, error) {
	if p.client == nil {
		return Output{OK: false, Error: "dialogflow:cx client not configured"}, nil
	}

	sessionID, _ := in.System["dialogflow_session_id"].(string)
	if sessionID == "" {
		return Output{OK: false, Error: "missing system.dialogflow_session_id"}, nil
	}
	text, _ := in.Params["text"].(string)
	if text == "" {
		return Output{OK: false, Error: "missing text param"}, nil
	}

	p.mu.Lock()
	warm := p.seen[sessionID]
	p.seen[sessionID] = true
	p.mu.Unlock()

	result, err := p.client.DetectIntent(ctx, sessionID, text, !warm)
	if err != nil {
		return Output{OK: false, Error: fmt.Sprintf("detect_intent: %v", err)}, nil
	}
	return Output{OK: true, Result: result}, nil
}
