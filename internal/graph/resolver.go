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

package graph

import "context"

// Ref names the network snapshot a caller wants: either an explicit inline
// snapshot, or a (network_name, version) pair resolved by the out-of-scope
// configuration store. Version is empty to mean "current".
type Ref struct {
	Snapshot    *CompiledGraph
	NetworkName string
	Version     string
}

// Resolver is the contract for the configuration-store collaborator
// (out of scope per spec.md §6): it turns a Ref into a built CompiledGraph.
// Callers that already hold an inline snapshot never need a Resolver.
type Resolver interface {
	Resolve(ctx context.Context, ref Ref) (*CompiledGraph, error)
}
