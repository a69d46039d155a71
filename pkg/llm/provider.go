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

// Package llm is the strategy layer over every configured AI provider:
// a common Provider interface, strict-JSON parsing with one-shot
// repair and deterministic fallback, cost accounting, and a
// self-registering factory keyed by provider name.
package llm

import (
	"context"

	"github.com/marketfeed/newsdigest/pkg/types"
)

// TickerSummaryInput is one news item (with its analysis, if any)
// folded into a per-ticker daily summary prompt.
type TickerSummaryInput struct {
	News     types.NewsItem
	Analysis *types.AnalysisResult
}

// Provider is the strategy every concrete AI backend implements.
// analyze and generate_ticker_summary both return accumulated
// token/cost totals across any repair attempt.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, news types.NewsItem, thesis string) (types.AnalysisResult, int, float64, error)
	GenerateTickerSummary(ctx context.Context, ticker, companyName string, items []TickerSummaryInput, thesis string) (types.TickerSummary, int, float64, error)
}

// CallResult is what a concrete provider's low-level API call returns:
// the raw text plus token/cost accounting for that one call.
type CallResult struct {
	RawOutput  string
	TokensUsed int
	CostUSD    float64
}

// APICaller is the one method a concrete provider must implement; all
// prompt formatting, parsing, repair, and fallback logic is shared.
type APICaller interface {
	CallAPI(ctx context.Context, prompt string) (CallResult, error)
}
