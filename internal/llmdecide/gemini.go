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
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/kadirpekel/agentnet/internal/action"
	"github.com/kadirpekel/agentnet/internal/apperrors"
	"github.com/kadirpekel/agentnet/internal/runlog"
)

// GeminiDecider implements Decider against the Gemini API via the official
// google.golang.org/genai SDK.
type GeminiDecider struct {
	client       *genai.Client
	defaultModel string
	logger       *slog.Logger
}

// NewGeminiDecider creates a GeminiDecider. apiKey must be non-empty: an
// LLM provider with no credentials is a configuration failure, fatal to
// any run that reaches it.
func NewGeminiDecider(apiKey, defaultModel string, logger *slog.Logger) (*GeminiDecider, error) {
	if apiKey == "" {
		return nil, apperrors.New(apperrors.KindConfigMissing, "llmdecide", "NewGeminiDecider",
			"GEMINI_API_KEY is required", nil)
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, apperrors.New(apperrors.KindConfigMissing, "llmdecide", "NewGeminiDecider",
			"failed to create Gemini client", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &GeminiDecider{client: client, defaultModel: defaultModel, logger: logger}, nil
}

// Decide implements the C7 contract: request JSON-only output, attempt to
// parse the agent-decision union, and retry exactly once with a stricter
// instruction on parse failure.
func (d *GeminiDecider) Decide(ctx context.Context, prompt string, model string) (Result, error) {
	if model == "" {
		model = d.defaultModel
	}

	text, usage, err := d.generate(ctx, model, prompt)
	if err != nil {
		return Result{}, apperrors.New(apperrors.KindConfigMissing, "llmdecide", "Decide",
			"gemini generation failed", err)
	}

	parsed, parseErr := action.ParseInstruction([]byte(text))
	if parseErr == nil {
		return Result{
			Text:            text,
			Parsed:          parsed,
			Usage:           usage,
			ResponsePayload: map[string]any{"text": text},
		}, nil
	}

	d.logger.Warn("llm decide parse failed, retrying with stricter instruction", "error", parseErr)

	retryText, retryUsage, err := d.generate(ctx, model, prompt+retryInstruction)
	if err != nil {
		return Result{}, apperrors.New(apperrors.KindConfigMissing, "llmdecide", "Decide",
			"gemini generation failed on retry", err)
	}
	combined := usage.Add(retryUsage)

	retryParsed, retryParseErr := action.ParseInstruction([]byte(retryText))
	if retryParseErr != nil {
		return Result{
				Text:            retryText,
				Usage:           combined,
				ResponsePayload: map[string]any{"text": retryText},
			}, apperrors.New(apperrors.KindLLMParseError, "llmdecide", "Decide",
				fmt.Sprintf("could not parse decision after retry: %v", retryParseErr), retryParseErr)
	}

	return Result{
		Text:            retryText,
		Parsed:          retryParsed,
		Usage:           combined,
		ResponsePayload: map[string]any{"text": retryText},
	}, nil
}

func (d *GeminiDecider) generate(ctx context.Context, model, prompt string) (string, runlog.Usage, error) {
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	resp, err := d.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", runlog.Usage{}, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", runlog.Usage{}, fmt.Errorf("gemini returned no candidates")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}

	usage := runlog.Usage{}
	if resp.UsageMetadata != nil {
		usage = runlog.Usage{
			PromptTokens:   int(resp.UsageMetadata.PromptTokenCount),
			ResponseTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:    int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return text, usage, nil
}
