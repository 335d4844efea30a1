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

// Package tools implements the Tool Registry & Provider Contract (C3): a
// process-wide table mapping provider_type to an executor, and the reference
// built-in providers. Providers are pure with respect to the orchestrator's
// state — they see only the merged input for one call.
package tools

import "context"

// Input is what a provider receives for one invocation.
type Input struct {
	// Params are the merged tool_params: agent-supplied values plus
	// system-injected and default values, already validated by the
	// Instruction Executor (C4) before the provider is invoked.
	Params map[string]any

	// System is the active RunConfig.SystemParams, made available to
	// providers that need ambient context (session ids, locale, etc.)
	// beyond what was merged into Params.
	System map[string]any

	// Metadata is the CompiledTool.Metadata for the invoked tool.
	Metadata map[string]any
}

// Output is the uniform result shape returned by every provider.
type Output struct {
	OK     bool           `json:"ok"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Provider is the contract every tool implementation satisfies.
type Provider interface {
	Run(ctx context.Context, in Input) (Output, error)
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func(ctx context.Context, in Input) (Output, error)

// Run implements Provider.
func (f ProviderFunc) Run(ctx context.Context, in Input) (Output, error) {
	return f(ctx, in)
}
