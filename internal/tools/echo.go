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

import "context"

// EchoProvider implements "builtin:echo": it returns its inputs verbatim,
// useful for wiring tests and as a template for new providers.
type EchoProvider struct{}

// Run implements Provider.
func (EchoProvider) Run(ctx context.Context, in Input) (Output, error) {
	return Output{
		OK: true,
		Result: map[string]any{
			"echo":     in.Params,
			"system":   in.System,
			"metadata": in.Metadata,
		},
	}, nil
}
