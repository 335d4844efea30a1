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

package runlog

import (
	"encoding/json"

	"github.com/kadirpekel/agentnet/internal/graph"
)

// Preview renders v as compact JSON and truncates it to maxChars runes,
// appending an ellipsis marker when truncated. Used to build the
// request/response previews carried on ToolEntry.
func Preview(v any, maxChars int) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	s := string(encoded)
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + "…"
}

// RequestPreview renders a tool request per the graph's execution-log policy
// for toolKey. When the policy configures request fields for toolKey, the
// preview is the labeled extraction of those fields; otherwise it falls back
// to a truncated dump of the whole payload.
func RequestPreview(policy *graph.ExecutionLogPolicy, toolKey string, v any) string {
	if rendered, ok := collectFieldPairs(v, policy.RequestFieldsFor(toolKey), policy.RequestLimitFor(toolKey)); ok {
		return rendered
	}
	return Preview(v, policy.RequestLimitFor(toolKey))
}

// ResponsePreview renders a tool response per the graph's execution-log
// policy for toolKey. When the policy configures response fields for
// toolKey, the preview is the labeled extraction of those fields; otherwise
// it falls back to a truncated dump of the whole payload.
func ResponsePreview(policy *graph.ExecutionLogPolicy, toolKey string, v any) string {
	if rendered, ok := collectFieldPairs(v, policy.ResponseFieldsFor(toolKey), policy.ResponseLimitFor(toolKey)); ok {
		return rendered
	}
	return Preview(v, policy.ResponseLimitFor(toolKey))
}
