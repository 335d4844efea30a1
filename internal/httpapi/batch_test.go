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

package httpapi

import (
	"strings"
	"testing"
)

func TestParseCSVBatchNestsSystemParamsAndMetadata(t *testing.T) {
	csv := "iterations,user_message,system_params.locale,extra\n" +
		"3,hi there,en-US,foo\n" +
		"1,bye,fr-FR,bar\n"

	items, warnings, errs := parseCSVBatch(strings.NewReader(csv))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Iterations != 3 || items[0].UserMessage != "hi there" {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[0].SystemParams["locale"] != "en-US" {
		t.Fatalf("expected locale nested under system_params, got %+v", items[0].SystemParams)
	}
	if items[0].Metadata["extra"] != "foo" {
		t.Fatalf("expected unrecognized column under metadata, got %+v", items[0].Metadata)
	}
	if items[0].ItemIndex != 0 || items[1].ItemIndex != 1 {
		t.Fatalf("expected item_index assigned by position, got %d and %d", items[0].ItemIndex, items[1].ItemIndex)
	}
}

func TestParseCSVBatchRequiresIterationsColumn(t *testing.T) {
	_, _, errs := parseCSVBatch(strings.NewReader("user_message\nhi\n"))
	if len(errs) != 1 {
		t.Fatalf("expected one error for a missing iterations column, got %v", errs)
	}
}

func TestParseCSVBatchCollectsPerRowErrorsAndKeepsParsing(t *testing.T) {
	csv := "iterations,user_message\n" +
		"not-a-number,hi\n" +
		"2,bye\n"
	items, _, errs := parseCSVBatch(strings.NewReader(csv))
	if len(items) != 1 {
		t.Fatalf("expected the valid row to still parse, got %d items", len(items))
	}
	if len(errs) != 1 {
		t.Fatalf("expected one error for the invalid row, got %v", errs)
	}
}

func TestParseJSONLBatch(t *testing.T) {
	jsonl := `{"iterations": 2, "user_message": "hi", "system_params": {"locale": "en"}, "tag": "a"}
{"iterations": "3", "correct_answer": "42"}
`
	items, _, errs := parseJSONLBatch(strings.NewReader(jsonl))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Iterations != 2 || items[0].SystemParams["locale"] != "en" {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[0].Metadata["tag"] != "a" {
		t.Fatalf("expected tag under metadata, got %+v", items[0].Metadata)
	}
	if items[1].Iterations != 3 || items[1].CorrectAnswer != "42" {
		t.Fatalf("unexpected second item (string iterations should coerce): %+v", items[1])
	}
}

func TestParseJSONLBatchRejectsNonPositiveIterations(t *testing.T) {
	items, _, errs := parseJSONLBatch(strings.NewReader(`{"iterations": 0, "user_message": "hi"}` + "\n"))
	if len(items) != 0 {
		t.Fatalf("expected no items for a zero iterations count, got %d", len(items))
	}
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %v", errs)
	}
}

func TestIdempotencyKeyIsDeterministicAndUnique(t *testing.T) {
	a := idempotencyKey("exp-1", 0, 0)
	b := idempotencyKey("exp-1", 0, 0)
	if a != b {
		t.Fatalf("expected the same key for the same (experiment, item, iteration), got %q vs %q", a, b)
	}
	if a == idempotencyKey("exp-1", 0, 1) {
		t.Fatal("expected a different key for a different iteration")
	}
	if a == idempotencyKey("exp-1", 1, 0) {
		t.Fatal("expected a different key for a different item index")
	}
	if a == idempotencyKey("exp-2", 0, 0) {
		t.Fatal("expected a different key for a different experiment")
	}
}

func TestMergeMaps(t *testing.T) {
	if mergeMaps(nil, nil) != nil {
		t.Fatal("expected nil when both inputs are empty")
	}
	merged := mergeMaps(map[string]any{"a": 1, "b": 1}, map[string]any{"b": 2})
	if merged["a"] != 1 || merged["b"] != 2 {
		t.Fatalf("expected override to win on conflict, got %+v", merged)
	}
}
