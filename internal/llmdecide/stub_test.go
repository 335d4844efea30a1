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
	"testing"
)

func TestStubDeciderReplaysScriptedResponsesInOrder(t *testing.T) {
	s := &StubDecider{Responses: []StubResponse{
		{Text: `{"reasoning":"a","action":{"type":"RESPOND","payload":"first"}}`},
		{Text: `{"reasoning":"b","action":{"type":"RESPOND","payload":"second"}}`},
	}}

	r1, err := s.Decide(context.Background(), "prompt", "model")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if r1.Parsed.Action.Respond.Payload != "first" {
		t.Fatalf("unexpected first response: %+v", r1.Parsed.Action.Respond)
	}

	r2, err := s.Decide(context.Background(), "prompt", "model")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if r2.Parsed.Action.Respond.Payload != "second" {
		t.Fatalf("unexpected second response: %+v", r2.Parsed.Action.Respond)
	}

	if s.CallCount() != 2 {
		t.Fatalf("expected CallCount 2, got %d", s.CallCount())
	}
}

func TestStubDeciderRepeatsLastResponseOnceExhausted(t *testing.T) {
	s := &StubDecider{Responses: []StubResponse{
		{Text: `{"reasoning":"a","action":{"type":"RESPOND","payload":"only"}}`},
	}}

	s.Decide(context.Background(), "p", "m")
	r2, err := s.Decide(context.Background(), "p", "m")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if r2.Parsed.Action.Respond.Payload != "only" {
		t.Fatalf("expected the script to repeat its last response, got %+v", r2.Parsed.Action.Respond)
	}
}

func TestStubDeciderSurfacesParseFailures(t *testing.T) {
	s := &StubDecider{Responses: []StubResponse{{Text: `not json`}}}
	res, err := s.Decide(context.Background(), "p", "m")
	if err == nil {
		t.Fatal("expected a parse failure to be surfaced as an error")
	}
	if res.Text != "not json" {
		t.Fatalf("expected the raw text to still be returned alongside the error, got %q", res.Text)
	}
}

func TestStubDeciderWithNoResponsesConfigured(t *testing.T) {
	s := &StubDecider{}
	if _, err := s.Decide(context.Background(), "p", "m"); err == nil {
		t.Fatal("expected an error when no responses are configured")
	}
}
