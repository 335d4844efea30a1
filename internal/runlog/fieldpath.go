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
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/kadirpekel/agentnet/internal/graph"
)

// parsePath splits a field path into traversal tokens. Both dot notation and
// bracket notation are accepted, and bracket keys may be quoted, bare, or
// integer: "result.items[0].name" and `response["data"]["id"]` both parse to
// ["result", "items", "0", "name"] and ["response", "data", "id"].
func parsePath(path string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(path); {
		switch c := path[i]; {
		case c == '.':
			flush()
			i++
		case c == '[':
			flush()
			end := strings.IndexByte(path[i+1:], ']')
			if end < 0 {
				cur.WriteString(path[i:])
				i = len(path)
				break
			}
			inner := strings.Trim(path[i+1:i+1+end], `"'`)
			if inner != "" {
				tokens = append(tokens, inner)
			}
			i += end + 2
		default:
			cur.WriteByte(c)
			i++
		}
	}
	flush()
	return tokens
}

// stepValue resolves one path token against a container value: map key
// lookup, slice/array indexing (negative indices count from the end), or a
// struct field lookup as a getattr-style fallback.
func stepValue(v any, token string) (any, bool) {
	switch val := v.(type) {
	case map[string]any:
		out, ok := val[token]
		return out, ok
	case []any:
		idx, ok := sliceIndex(len(val), token)
		if !ok {
			return nil, false
		}
		return val[idx], true
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		key := reflect.ValueOf(token)
		if !key.Type().AssignableTo(rv.Type().Key()) {
			return nil, false
		}
		item := rv.MapIndex(key)
		if !item.IsValid() {
			return nil, false
		}
		return item.Interface(), true
	case reflect.Slice, reflect.Array:
		idx, ok := sliceIndex(rv.Len(), token)
		if !ok {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	case reflect.Struct:
		field := rv.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, token)
		})
		if !field.IsValid() {
			return nil, false
		}
		return field.Interface(), true
	}
	return nil, false
}

// sliceIndex resolves a bracket token to a slice index, supporting negative
// indices that count from the end.
func sliceIndex(length int, token string) (int, bool) {
	idx, err := strconv.Atoi(token)
	if err != nil {
		return 0, false
	}
	if idx < 0 {
		idx += length
	}
	if idx < 0 || idx >= length {
		return 0, false
	}
	return idx, true
}

// traverseTokens walks v through each token in order, failing as soon as one
// step can't be resolved.
func traverseTokens(v any, tokens []string) (any, bool) {
	cur := v
	for _, tok := range tokens {
		next, ok := stepValue(cur, tok)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// resolvePath parses path and traverses v to find it. If the full path
// fails to resolve and it has more than one token, it retries after
// dropping the leading token, since configured paths sometimes assume a
// synthetic root key that isn't actually present in v.
func resolvePath(v any, path string) (any, bool) {
	tokens := parsePath(path)
	if len(tokens) == 0 {
		return nil, false
	}
	if out, ok := traverseTokens(v, tokens); ok {
		return out, true
	}
	if len(tokens) > 1 {
		return traverseTokens(v, tokens[1:])
	}
	return nil, false
}

// stringifyField renders a resolved field value as text, truncated to
// maxChars runes with an ellipsis marker. Strings pass through verbatim;
// anything else is JSON-encoded first.
func stringifyField(v any, maxChars int) string {
	s, ok := v.(string)
	if !ok {
		encoded, err := json.Marshal(v)
		if err != nil {
			s = fmt.Sprintf("%v", v)
		} else {
			s = string(encoded)
		}
	}
	runes := []rune(s)
	if maxChars > 0 && len(runes) > maxChars {
		return string(runes[:maxChars]) + "…"
	}
	return s
}

// collectFieldPairs renders each configured field as a "label=value" pair,
// falling back to the field's own path as its label when none is set, and a
// "<missing>" marker when the path doesn't resolve against v. The second
// return value is false when fields is empty, signaling the caller to fall
// back to whole-payload truncation.
func collectFieldPairs(v any, fields []graph.ExecutionLogField, fallbackLimit int) (string, bool) {
	if len(fields) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		limit := f.MaxChars
		if limit <= 0 {
			limit = fallbackLimit
		}
		label := f.Label
		if label == "" {
			label = f.Path
		}
		val, ok := resolvePath(v, f.Path)
		if !ok {
			parts = append(parts, label+"=<missing>")
			continue
		}
		parts = append(parts, label+"="+stringifyField(val, limit))
	}
	return strings.Join(parts, "; "), true
}
