/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package llm

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/marketfeed/newsdigest/internal/errkind"
)

// langchainCaller adapts langchaingo's unified llms.Model interface to
// APICaller, so openai, ollama and gemini share one call path and only
// differ in how their llms.Model is constructed.
type langchainCaller struct {
	model llms.Model
	base  *baseProvider
}

func (c *langchainCaller) CallAPI(ctx context.Context, prompt string) (CallResult, error) {
	resp, err := c.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, llms.WithTemperature(0.1))
	if err != nil {
		return CallResult{}, errors.Wrap(err, "langchain generate content")
	}
	if len(resp.Choices) == 0 {
		return CallResult{}, errors.New("langchain returned no choices")
	}

	choice := resp.Choices[0]
	tokensIn := c.base.estimateTokens(prompt, "")
	tokensOut := c.base.estimateTokens(choice.Content, "")
	if info := choice.GenerationInfo; info != nil {
		if v, ok := info["PromptTokens"].(int); ok && v > 0 {
			tokensIn = v
		}
		if v, ok := info["CompletionTokens"].(int); ok && v > 0 {
			tokensOut = v
		}
	}
	cost := c.base.computeCost(tokensIn, tokensOut)

	return CallResult{RawOutput: choice.Content, TokensUsed: tokensIn + tokensOut, CostUSD: cost}, nil
}

// openaiPrices is the known per-1K-token USD price table.
var openaiPrices = map[string]PriceTable{
	"gpt-4o-mini": {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"gpt-4o":      {InputPer1K: 0.0025, OutputPer1K: 0.01},
}

func newOpenAIProvider(opts Options) (Provider, error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.APIKey == "" {
		return nil, &errkind.ProviderConfigMissing{Provider: "openai", Reason: "OPENAI_API_KEY not configured"}
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	llm, err := openai.New(openai.WithToken(opts.APIKey), openai.WithModel(model))
	if err != nil {
		return nil, errors.Wrap(err, "construct openai client")
	}

	prompts := NewPromptLoader(opts.PromptsDir, opts.PromptVer)
	base := newBaseProvider("openai", model, prompts, openaiPrices, log, nil)
	base.caller = &langchainCaller{model: llm, base: base}
	return base, nil
}

// geminiPrices is the known per-1K-token USD price table.
var geminiPrices = map[string]PriceTable{
	"gemini-pro": {InputPer1K: 0.00025, OutputPer1K: 0.0005},
}

func newGeminiProvider(opts Options) (Provider, error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.APIKey == "" {
		return nil, &errkind.ProviderConfigMissing{Provider: "gemini", Reason: "GEMINI_API_KEY not configured"}
	}
	model := opts.Model
	if model == "" {
		model = "gemini-pro"
	}

	ctx := context.Background()
	gopts := []googleai.Option{googleai.WithAPIKey(opts.APIKey), googleai.WithDefaultModel(model)}
	llm, err := googleai.New(ctx, gopts...)
	if err != nil {
		return nil, errors.Wrap(err, "construct gemini client")
	}

	prompts := NewPromptLoader(opts.PromptsDir, opts.PromptVer)
	base := newBaseProvider("gemini", model, prompts, geminiPrices, log, nil)
	base.caller = &langchainCaller{model: llm, base: base}
	return base, nil
}

func newOllamaProvider(opts Options) (Provider, error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	model := opts.Model
	if model == "" {
		model = "llama3"
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(baseURL))
	if err != nil {
		return nil, errors.Wrap(err, "construct ollama client")
	}

	prompts := NewPromptLoader(opts.PromptsDir, opts.PromptVer)
	// Ollama is self-hosted: no known per-token price, always estimated.
	base := newBaseProvider("ollama", model, prompts, nil, log, nil)
	base.caller = &langchainCaller{model: llm, base: base}
	return base, nil
}

func init() {
	Register("openai", newOpenAIProvider)
	Register("gemini", newGeminiProvider)
	Register("ollama", newOllamaProvider)
}
