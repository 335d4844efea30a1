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

// Package httpclient wraps net/http.Client with exponential-backoff retry
// for transient failures, used by the http:request tool provider.
package httpclient

import (
	"bytes"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// Client wraps http.Client with bounded retry on 5xx and 429 responses.
type Client struct {
	HTTP       *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTP = hc }
}

// WithMaxRetries bounds the number of retries after the initial attempt.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.MaxRetries = n }
}

// New builds a Client with sane defaults, overridden by opts.
func New(opts ...Option) *Client {
	c := &Client{
		HTTP:       &http.Client{Timeout: 30 * time.Second},
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes req, retrying on 429/5xx responses and transport errors with
// exponential backoff plus jitter, up to MaxRetries additional attempts.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	var bodyBytes []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		bodyBytes = b
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(c.backoff(attempt))
			if bodyBytes != nil {
				req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			}
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &StatusError{StatusCode: resp.StatusCode}
			resp.Body.Close()
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

func (c *Client) backoff(attempt int) time.Duration {
	d := time.Duration(float64(c.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d + jitter
}

// StatusError reports an HTTP response status that was treated as retryable
// or, after exhausting retries, fatal.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return http.StatusText(e.StatusCode)
}
