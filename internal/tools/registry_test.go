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
	"testing"
)

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Resolve("builtin:echo"); ok {
		t.Fatal("expected an empty registry to resolve nothing")
	}

	r.Register("builtin:echo", EchoProvider{})
	p, ok := r.Resolve("builtin:echo")
	if !ok {
		t.Fatal("expected the registered provider to resolve")
	}
	out, err := p.Run(context.Background(), Input{Params: map[string]any{"a": 1}})
	if err != nil || !out.OK {
		t.Fatalf("unexpected provider result: %+v err=%v", out, err)
	}
}

func TestRegistryRegisterOverwritesExisting(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Register("x", ProviderFunc(func(ctx context.Context, in Input) (Output, error) {
		calls++
		return Output{OK: true}, nil
	}))
	r.Register("x", ProviderFunc(func(ctx context.Context, in Input) (Output, error) {
		return Output{OK: false}, nil
	}))

	p, _ := r.Resolve("x")
	out, _ := p.Run(context.Background(), Input{})
	if out.OK {
		t.Fatal("expected the second registration to overwrite the first")
	}
	if calls != 0 {
		t.Fatal("expected the first provider to never have been invoked")
	}
}

func TestNewRegistryWithBuiltinsRegistersAllFourProviders(t *testing.T) {
	r := NewRegistryWithBuiltins(BuiltinOptions{})
	types := r.ProviderTypes()
	want := []string{"builtin:echo", "dialogflow:cx", "http:request", "rag:hybrid"}
	if len(types) != len(want) {
		t.Fatalf("expected %d builtin providers, got %v", len(want), types)
	}
	for _, w := range want {
		found := false
		for _, got := range types {
			if got == w {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected %q to be registered, got %v", w, types)
		}
	}
}

func TestErrUnknownProviderType(t *testing.T) {
	err := ErrUnknownProviderType("does:not-exist")
	if err == nil {
		t.Fatal("expected a non-nil error")
	}
}
