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

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/internal/errkind"
)

// claudePrices is the known per-1K-token USD price table (2024 rates);
// token counts always come from the API's usage report, and an unlisted
// model is accounted at zero cost.
var claudePrices = map[string]PriceTable{
	"claude-3-haiku-20240307":   {InputPer1K: 0.00025, OutputPer1K: 0.00125},
	"claude-3-5-sonnet-20240620": {InputPer1K: 0.003, OutputPer1K: 0.015},
}

type claudeCaller struct {
	client *anthropic.Client
	model  string
	base   *baseProvider
}

func (c *claudeCaller) CallAPI(ctx context.Context, prompt string) (CallResult, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(0.1),
	})
	if err != nil {
		return CallResult{}, errors.Wrap(err, "claude messages.new")
	}

	var text string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}

	tokensIn := int(msg.Usage.InputTokens)
	tokensOut := int(msg.Usage.OutputTokens)
	cost := c.base.computeCost(tokensIn, tokensOut)

	return CallResult{RawOutput: text, TokensUsed: tokensIn + tokensOut, CostUSD: cost}, nil
}

func newClaudeProvider(opts Options) (Provider, error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.APIKey == "" {
		return nil, &errkind.ProviderConfigMissing{Provider: "claude", Reason: "CLAUDE_API_KEY not configured"}
	}
	model := opts.Model
	if model == "" {
		model = "claude-3-haiku-20240307"
	}

	client := anthropic.NewClient(option.WithAPIKey(opts.APIKey))
	prompts := NewPromptLoader(opts.PromptsDir, opts.PromptVer)

	base := newBaseProvider("claude", model, prompts, claudePrices, log, nil)
	base.caller = &claudeCaller{client: &client, model: model, base: base}
	return base, nil
}

func init() {
	Register("claude", newClaudeProvider)
}
