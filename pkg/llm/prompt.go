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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marketfeed/newsdigest/pkg/types"
)

const defaultNewsAnalysisPrompt = `You are a senior equity research analyst. Analyze the following news and output a JSON object.

News:
- Ticker(s): {tickers}
- Title: {title}
- Source: {source}
- Published: {published_at}
- Summary: {content}

Investment Thesis: {thesis}

Output ONLY a valid JSON object with these exact fields:
{
  "event_type": "<earnings|guidance|regulatory|contract|product|accident|macro|rumor|other>",
  "impact_direction": "<bullish|bearish|neutral>",
  "impact_horizon": "<short|medium|long>",
  "thesis_relation": "<supports|weakens|unrelated>",
  "confidence": "<high|medium|low>",
  "confidence_reason": "<max 100 chars>",
  "summary": "<max 100 chars>",
  "key_facts": ["<fact1>", "<fact2>"],
  "watch_next": "<max 50 chars>"
}

No markdown, no extra text. JSON only.
`

const defaultTickerSummaryPrompt = `You are a professional equity analyst. Based on today's news about {ticker} ({company_name}), produce a concise daily summary.

Investment Thesis: {thesis}

Today's news:
{news_list}

Output JSON in this exact shape:
{
  "overall_sentiment": "bullish|bearish|neutral|mixed",
  "summary": "one or two sentence summary",
  "key_events": ["event1", "event2"],
  "thesis_impact": "impact on the thesis",
  "action_suggestion": "suggested action",
  "risk_alerts": ["risk1"]
}

JSON only, no markdown.
`

// PromptLoader reads versioned prompt templates from a configured
// directory, falling back to the embedded defaults above when the file
// is absent — the file on disk always wins so operators can iterate on
// prompt wording without a rebuild.
type PromptLoader struct {
	Dir     string
	Version string
}

func NewPromptLoader(dir, version string) *PromptLoader {
	if version == "" {
		version = "v1.0"
	}
	return &PromptLoader{Dir: dir, Version: version}
}

func (p *PromptLoader) newsAnalysisTemplate() string {
	path := filepath.Join(p.Dir, fmt.Sprintf("news_analysis_%s.txt", p.Version))
	if content, err := os.ReadFile(path); err == nil {
		return string(content)
	}
	return defaultNewsAnalysisPrompt
}

func (p *PromptLoader) tickerSummaryTemplate() string {
	path := filepath.Join(p.Dir, fmt.Sprintf("ticker_summary_%s.txt", p.Version))
	if content, err := os.ReadFile(path); err == nil {
		return string(content)
	}
	return defaultTickerSummaryPrompt
}

// FormatNewsAnalysisPrompt renders the news-analysis prompt for one item,
// substituting the documented {tickers, title, source, published_at,
// content, thesis} placeholders (spec §4.5/§6 "{placeholder} substitution
// at render time").
func (p *PromptLoader) FormatNewsAnalysisPrompt(news types.NewsItem, thesis string) (string, error) {
	tickers := "N/A"
	if len(news.Tickers) > 0 {
		tickers = strings.Join(news.Tickers, ", ")
	}
	published := "Unknown"
	if !news.PublishedAt.IsZero() {
		published = news.PublishedAt.Format("2006-01-02 15:04 UTC")
	}
	content := news.Summary
	if content == "" {
		content = "(No summary available)"
	}
	if thesis == "" {
		thesis = "(No specific investment thesis provided)"
	}

	replacer := strings.NewReplacer(
		"{tickers}", tickers,
		"{title}", news.Title,
		"{source}", news.Source,
		"{published_at}", published,
		"{content}", content,
		"{thesis}", thesis,
	)
	return replacer.Replace(p.newsAnalysisTemplate()), nil
}

// FormatTickerSummaryPrompt renders the per-ticker daily summary prompt,
// substituting {ticker, company_name, thesis, news_list}.
func (p *PromptLoader) FormatTickerSummaryPrompt(ticker, companyName, thesis string, items []TickerSummaryInput) (string, error) {
	var lines []string
	for i, item := range items {
		line := fmt.Sprintf("%d. [%s] %s", i+1, item.News.PublishedAt.Format("15:04"), item.News.Title)
		if item.Analysis != nil {
			line += fmt.Sprintf("\n   - Impact: %s (%s)", item.Analysis.ImpactDirection, item.Analysis.EventType)
			line += fmt.Sprintf("\n   - Summary: %s", item.Analysis.Summary)
		}
		lines = append(lines, line)
	}
	if thesis == "" {
		thesis = "(No specific investment thesis)"
	}

	replacer := strings.NewReplacer(
		"{ticker}", ticker,
		"{company_name}", companyName,
		"{thesis}", thesis,
		"{news_list}", strings.Join(lines, "\n\n"),
	)
	return replacer.Replace(p.tickerSummaryTemplate()), nil
}

// truncate is used by the deterministic fallback to cap news.title at
// 100 characters for AnalysisResult.Summary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
