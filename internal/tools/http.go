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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kadirpekel/agentnet/internal/httpclient"
)

// HTTPRequestProvider implements "http:request": a generic declarative HTTP
// caller driven by a tool's metadata.http configuration (base_url+path or
// url, method, and per-parameter source bindings for query/header/body).
type HTTPRequestProvider struct {
	client *httpclient.Client
}

// NewHTTPRequestProvider builds an HTTPRequestProvider. A nil client gets
// httpclient defaults.
func NewHTTPRequestProvider(client *httpclient.Client) *HTTPRequestProvider {
	if client == nil {
		client = httpclient.New()
	}
	return &HTTPRequestProvider{client: client}
}

// httpParamBinding describes where one merged param is placed on the
// outgoing request.
type httpParamBinding struct {
	Name   string `json:"name"`
	Source string `json:"source"` // query | header | body
	As     string `json:"as,omitempty"` // destination key/header name, defaults to Name
}

type httpMetadata struct {
	BaseURL  string             `json:"base_url"`
	Path     string             `json:"path"`
	URL      string             `json:"url"`
	Method   string             `json:"method"`
	Bindings []httpParamBinding `json:"bindings"`
	Unwrap   string             `json:"unwrap"`
	Keys     []string           `json:"keys"`
}

// Run implements Provider.
func (p *HTTPRequestProvider) Run(ctx context.Context, in Input) (Output, error) {
	cfg, err := decodeHTTPMetadata(in.Metadata)
	if err != nil {
		return Output{OK: false, Error: err.Error()}, nil
	}

	target, err := cfg.resolveURL()
	if err != nil {
		return Output{OK: false, Error: err.Error()}, nil
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	query := target.Query()
	headers := http.Header{}
	body := map[string]any{}

	for _, binding := range cfg.Bindings {
		val, ok := in.Params[binding.Name]
		if !ok {
			continue
		}
		key := binding.As
		if key == "" {
			key = binding.Name
		}
		switch binding.Source {
		case "query":
			query.Set(key, fmt.Sprintf("%v", val))
		case "header":
			headers.Set(key, fmt.Sprintf("%v", val))
		case "body", "":
			body[key] = val
		}
	}
	target.RawQuery = query.Encode()

	var bodyReader io.Reader
	if method != http.MethodGet && method != http.MethodHead && len(body) > 0 {
		payload, err := json.Marshal(body)
		if err != nil {
			return Output{OK: false, Error: err.Error()}, nil
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), bodyReader)
	if err != nil {
		return Output{OK: false, Error: err.Error()}, nil
	}
	for k := range headers {
		req.Header.Set(k, headers.Get(k))
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Output{OK: false, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Output{OK: false, Error: err.Error()}, nil
	}

	if resp.StatusCode >= 400 {
		return Output{OK: false, Error: fmt.Sprintf("http %d: %s", resp.StatusCode, string(raw))}, nil
	}

	var parsed any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			parsed = string(raw)
		}
	}

	result := shape(parsed, cfg.Unwrap, cfg.Keys)
	return Output{OK: true, Result: result}, nil
}

func (c *httpMetadata) resolveURL() (*url.URL, error) {
	if c.URL != "" {
		return url.Parse(c.URL)
	}
	if c.BaseURL == "" {
		return nil, fmt.Errorf("http:request metadata missing url or base_url")
	}
	return url.Parse(strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(c.Path, "/"))
}

func decodeHTTPMetadata(metadata map[string]any) (*httpMetadata, error) {
	raw, ok := metadata["http"]
	if !ok {
		return nil, fmt.Errorf("http:request tool missing metadata.http")
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var cfg httpMetadata
	if err := json.Unmarshal(encoded, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// shape applies optional response unwrap/keys projection: unwrap descends
// into a nested field of a map response, keys then filters to a subset.
func shape(parsed any, unwrap string, keys []string) map[string]any {
	if unwrap != "" {
		if m, ok := parsed.(map[string]any); ok {
			if nested, ok := m[unwrap]; ok {
				parsed = nested
			}
		}
	}

	m, ok := parsed.(map[string]any)
	if !ok {
		return map[string]any{"value": parsed}
	}
	if len(keys) == 0 {
		return m
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}
