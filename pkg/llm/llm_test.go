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
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/pkg/types"
)

func TestLLM(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "llm Suite")
}

type fakeCaller struct {
	responses []string
	calls     int
}

func (f *fakeCaller) CallAPI(ctx context.Context, prompt string) (CallResult, error) {
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return CallResult{RawOutput: f.responses[idx], TokensUsed: 100, CostUSD: 0.001}, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(GinkgoWriter)
	return log
}

const validAnalysisJSON = `{
  "event_type": "earnings",
  "impact_direction": "bullish",
  "impact_horizon": "short",
  "thesis_relation": "supports",
  "confidence": "high",
  "confidence_reason": "beat on revenue and EPS",
  "summary": "Company beat quarterly estimates on both revenue and EPS",
  "key_facts": ["EPS beat by 10%", "Revenue up 20% YoY"],
  "watch_next": "next quarter guidance"
}`

var _ = Describe("baseProvider.Analyze", func() {
	news := types.NewsItem{Title: "Apple beats Q3 estimates", Tickers: []string{"AAPL"}, Source: "finnhub"}

	It("accepts a well-formed first response", func() {
		caller := &fakeCaller{responses: []string{validAnalysisJSON}}
		prompts := NewPromptLoader("", "v1.0")
		base := newBaseProvider("test", "test-model", prompts, nil, testLogger(), caller)

		result, tokens, cost, err := base.Analyze(context.Background(), news, "thesis")
		Expect(err).ToNot(HaveOccurred())
		Expect(result.EventType).To(Equal(types.EventEarnings))
		Expect(result.Provider).To(Equal("test"))
		Expect(tokens).To(Equal(100))
		Expect(cost).To(BeNumerically(">", 0))
	})

	It("strips markdown fences before parsing", func() {
		fenced := "```json\n" + validAnalysisJSON + "\n```"
		caller := &fakeCaller{responses: []string{fenced}}
		prompts := NewPromptLoader("", "v1.0")
		base := newBaseProvider("test", "test-model", prompts, nil, testLogger(), caller)

		result, _, _, err := base.Analyze(context.Background(), news, "")
		Expect(err).ToNot(HaveOccurred())
		Expect(result.EventType).To(Equal(types.EventEarnings))
	})

	It("repairs once on an invalid enum and succeeds on the second attempt", func() {
		invalid := `{"event_type": "not-a-real-type", "impact_direction": "bullish", "impact_horizon": "short", "thesis_relation": "supports", "confidence": "high", "confidence_reason": "x", "summary": "x", "key_facts": [], "watch_next": ""}`
		caller := &fakeCaller{responses: []string{invalid, validAnalysisJSON}}
		prompts := NewPromptLoader("", "v1.0")
		base := newBaseProvider("test", "test-model", prompts, nil, testLogger(), caller)

		result, tokens, _, err := base.Analyze(context.Background(), news, "")
		Expect(err).ToNot(HaveOccurred())
		Expect(caller.calls).To(Equal(2))
		Expect(result.EventType).To(Equal(types.EventEarnings))
		Expect(tokens).To(Equal(200))
	})

	It("falls back to the deterministic record when repair also fails", func() {
		invalid := `not json at all`
		caller := &fakeCaller{responses: []string{invalid, invalid}}
		prompts := NewPromptLoader("", "v1.0")
		base := newBaseProvider("test", "test-model", prompts, nil, testLogger(), caller)

		result, _, _, err := base.Analyze(context.Background(), news, "")
		Expect(err).ToNot(HaveOccurred())
		Expect(caller.calls).To(Equal(2))
		Expect(result.EventType).To(Equal(types.EventOther))
		Expect(result.ImpactDirection).To(Equal(types.ImpactNeutral))
		Expect(result.Confidence).To(Equal(types.ConfidenceLow))
		Expect(result.Summary).To(Equal(news.Title))
	})
})

var _ = Describe("baseProvider.GenerateTickerSummary", func() {
	It("falls back to a deterministic tally when the model returns an empty response", func() {
		caller := &fakeCaller{responses: []string{""}}
		prompts := NewPromptLoader("", "v1.0")
		base := newBaseProvider("test", "test-model", prompts, nil, testLogger(), caller)

		bullish := types.ImpactBullish
		items := []TickerSummaryInput{
			{News: types.NewsItem{Title: "Story A", PublishedAt: time.Now()}, Analysis: &types.AnalysisResult{ImpactDirection: bullish}},
			{News: types.NewsItem{Title: "Story B", PublishedAt: time.Now()}},
		}

		summary, _, _, err := base.GenerateTickerSummary(context.Background(), "AAPL", "Apple Inc", items, "")
		Expect(err).ToNot(HaveOccurred())
		Expect(summary.BullishCount).To(Equal(1))
		Expect(summary.ActionSuggestion).To(Equal("Continue monitoring"))
	})
})

var _ = Describe("Registry", func() {
	It("returns a config-missing error for an unknown provider", func() {
		_, err := Create("unknown-provider", Options{})
		Expect(err).To(HaveOccurred())
	})

	It("lists the four self-registered providers", func() {
		names := ListProviders()
		Expect(names).To(ContainElements("claude", "openai", "gemini", "ollama"))
	})
})
