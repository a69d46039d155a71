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
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/pkg/types"
)

// PriceTable is the per-1K-token USD price for a model; providers with
// an unknown model fall back to estimating tokens as len(text)/4
// (spec §4.5 cost accounting).
type PriceTable struct {
	InputPer1K  float64
	OutputPer1K float64
}

// baseProvider implements the shared analyze/repair/fallback/summary
// flow every concrete provider composes via embedding. Concrete
// providers supply only CallAPI (the actual network round trip) and a
// name/price table.
type baseProvider struct {
	name    string
	prompts *PromptLoader
	prices  map[string]PriceTable
	model   string
	log     *logrus.Logger
	caller  APICaller
}

func newBaseProvider(name, model string, prompts *PromptLoader, prices map[string]PriceTable, log *logrus.Logger, caller APICaller) *baseProvider {
	return &baseProvider{name: name, model: model, prompts: prompts, prices: prices, log: log, caller: caller}
}

func (b *baseProvider) Name() string { return b.name }

// estimateTokens approximates token usage as len(text)/4, for callers
// whose backend reports no token counts. computeCost below prices tokens
// from b.model's table and returns 0 when the model is unpriced.
func (b *baseProvider) estimateTokens(promptText, output string) int {
	return (len(promptText) + len(output)) / 4
}

func (b *baseProvider) computeCost(tokensIn, tokensOut int) float64 {
	price, ok := b.prices[b.model]
	if !ok {
		return 0
	}
	return float64(tokensIn)/1000*price.InputPer1K + float64(tokensOut)/1000*price.OutputPer1K
}

// Analyze runs the strict-JSON protocol: first attempt, one-shot
// repair on validation failure, deterministic fallback if repair also
// fails. Tokens and cost are summed across every attempt made.
func (b *baseProvider) Analyze(ctx context.Context, news types.NewsItem, thesis string) (types.AnalysisResult, int, float64, error) {
	prompt, err := b.prompts.FormatNewsAnalysisPrompt(news, thesis)
	if err != nil {
		return types.AnalysisResult{}, 0, 0, errors.Wrap(err, "format prompt")
	}

	call, err := b.caller.CallAPI(ctx, prompt)
	if err != nil {
		return types.AnalysisResult{}, 0, 0, errors.Wrapf(err, "%s: call api", b.name)
	}
	totalTokens := call.TokensUsed
	totalCost := call.CostUSD

	result, parseErr := parseAndValidateAnalysis(call.RawOutput)
	if parseErr == nil {
		return annotate(result, b.name, b.model), totalTokens, totalCost, nil
	}

	b.log.WithError(parseErr).WithField("provider", b.name).Warn("first analysis attempt failed validation, retrying with repair prompt")

	repairPrompt := prompt + repairClause(parseErr)
	call2, err := b.caller.CallAPI(ctx, repairPrompt)
	if err != nil {
		return types.AnalysisResult{}, totalTokens, totalCost, errors.Wrapf(err, "%s: repair call api", b.name)
	}
	totalTokens += call2.TokensUsed
	totalCost += call2.CostUSD

	result, parseErr2 := parseAndValidateAnalysis(call2.RawOutput)
	if parseErr2 == nil {
		return annotate(result, b.name, b.model), totalTokens, totalCost, nil
	}

	b.log.WithError(parseErr2).WithField("provider", b.name).Error("second analysis attempt also failed validation, using deterministic fallback")
	return annotate(fallbackAnalysis(news.Title), b.name, b.model), totalTokens, totalCost, nil
}

func annotate(result types.AnalysisResult, provider, model string) types.AnalysisResult {
	result.Provider = provider
	result.Model = model
	result.PromptVersion = "v1.0"
	return result
}

// GenerateTickerSummary produces the per-ticker daily synthesis. A
// failed or unparsable response falls back to a deterministic tally
// rather than failing the run (spec §4.6 step 8).
func (b *baseProvider) GenerateTickerSummary(ctx context.Context, ticker, companyName string, items []TickerSummaryInput, thesis string) (types.TickerSummary, int, float64, error) {
	prompt, err := b.prompts.FormatTickerSummaryPrompt(ticker, companyName, thesis, items)
	if err != nil {
		return fallbackSummary(ticker, items), 0, 0, nil
	}

	call, err := b.caller.CallAPI(ctx, prompt)
	if err != nil {
		b.log.WithError(err).WithField("ticker", ticker).Warn("ticker summary generation failed, using fallback")
		return fallbackSummary(ticker, items), 0, 0, nil
	}
	if strings.TrimSpace(call.RawOutput) == "" {
		return fallbackSummary(ticker, items), call.TokensUsed, call.CostUSD, nil
	}

	summary, ok := parseSummaryOutput(call.RawOutput)
	if !ok {
		return fallbackSummary(ticker, items), call.TokensUsed, call.CostUSD, nil
	}
	summary.Ticker = ticker
	summary.CompanyName = companyName
	summary.NewsCount = len(items)
	return summary, call.TokensUsed, call.CostUSD, nil
}

// fallbackSummary is the deterministic counting fallback: sentiment
// tally, first three titles, a standing "continue monitoring" action.
func fallbackSummary(ticker string, items []TickerSummaryInput) types.TickerSummary {
	var bullish, bearish, neutral int
	var titles []string
	for i, item := range items {
		if item.Analysis != nil {
			switch item.Analysis.ImpactDirection {
			case types.ImpactBullish:
				bullish++
			case types.ImpactBearish:
				bearish++
			default:
				neutral++
			}
		}
		if i < 3 {
			titles = append(titles, item.News.Title)
		}
	}

	sentiment := "neutral"
	switch {
	case bullish > bearish:
		sentiment = "bullish"
	case bearish > bullish:
		sentiment = "bearish"
	}

	return types.TickerSummary{
		Ticker:           ticker,
		NewsCount:        len(items),
		OverallSentiment: sentiment,
		Summary:          fmt.Sprintf("Today: %d news items (%d bullish, %d bearish)", len(items), bullish, bearish),
		KeyEvents:        titles,
		ThesisImpact:     "Requires manual assessment",
		ActionSuggestion: "Continue monitoring",
		RiskAlerts:       nil,
		BullishCount:     bullish,
		BearishCount:     bearish,
		NeutralCount:     neutral,
	}
}
