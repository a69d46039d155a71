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

package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/pkg/types"
)

// MarkdownOutput saves a Digest as a local Markdown file. Chart
// rendering is out of scope; the report is text and tables only.
type MarkdownOutput struct {
	dir string
	log *logrus.Logger
}

func NewMarkdownOutput(dir string, log *logrus.Logger) (*MarkdownOutput, error) {
	if dir == "" {
		dir = "data/digests"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create markdown output dir")
	}
	return &MarkdownOutput{dir: dir, log: log}, nil
}

func (m *MarkdownOutput) Name() string { return "markdown" }

func (m *MarkdownOutput) Deliver(ctx context.Context, digest types.Digest) (string, error) {
	filename := fmt.Sprintf("digest_%s.md", digest.GeneratedAt.Format("2006-01-02_1504"))
	path := filepath.Join(m.dir, filename)

	content := buildMarkdown(digest)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", errors.Wrap(err, "write digest file")
	}

	m.log.WithField("path", path).WithField("items", len(digest.Items)).Info("digest saved to markdown")
	return path, nil
}

func buildMarkdown(digest types.Digest) string {
	var b strings.Builder

	dateStr := digest.GeneratedAt.Format("2006-01-02")
	timeStr := digest.GeneratedAt.Format("15:04 UTC")

	fmt.Fprintf(&b, "# Daily Stock News Digest\n### %s | Generated at %s\n\n---\n\n", dateStr, timeStr)

	var bullish, bearish, neutral int
	for _, it := range digest.Items {
		if it.Analysis == nil {
			continue
		}
		switch it.Analysis.ImpactDirection {
		case types.ImpactBullish:
			bullish++
		case types.ImpactBearish:
			bearish++
		default:
			neutral++
		}
	}
	total := bullish + bearish + neutral

	mood, moodDesc := "NEUTRAL", "Insufficient data"
	if total > 0 {
		score := float64(bullish-bearish) / float64(total) * 100
		switch {
		case score > 20:
			mood, moodDesc = "BULLISH", "Market sentiment is positive"
		case score < -20:
			mood, moodDesc = "BEARISH", "Market sentiment is negative"
		default:
			mood, moodDesc = "MIXED", "Market sentiment is mixed"
		}
	}

	fmt.Fprintf(&b, "## Market Sentiment Dashboard\n\n> **Overall: %s**\n>\n> %s\n\n", mood, moodDesc)
	b.WriteString("| Metric | Value |\n|:-------|------:|\n")
	fmt.Fprintf(&b, "| Bullish News | **%d** |\n", bullish)
	fmt.Fprintf(&b, "| Bearish News | **%d** |\n", bearish)
	fmt.Fprintf(&b, "| Neutral News | **%d** |\n", neutral)
	fmt.Fprintf(&b, "| Total Analyzed | **%d** |\n", digest.TotalAnalyzed)
	fmt.Fprintf(&b, "| Time Window | %s - %s |\n\n---\n\n",
		digest.WindowStart.Format("01/02 15:04"), digest.WindowEnd.Format("01/02 15:04"))

	if high := digest.HighImpactItems(); len(high) > 0 {
		b.WriteString("## Top Stories\n\n> The most significant news items that could impact your portfolio\n\n")
		limit := len(high)
		if limit > 5 {
			limit = 5
		}
		for i, item := range high[:limit] {
			writeTopStory(&b, item, i+1)
		}
		b.WriteString("---\n\n")
	}

	byTicker := digest.ByTicker()
	if len(byTicker) > 0 {
		b.WriteString("## Analysis by Ticker\n\n")
		tickers := make([]string, 0, len(byTicker))
		for t := range byTicker {
			tickers = append(tickers, t)
		}
		sort.Slice(tickers, func(i, j int) bool {
			_, iHas := digest.TickerSummaries[tickers[i]]
			_, jHas := digest.TickerSummaries[tickers[j]]
			if iHas != jHas {
				return iHas
			}
			return tickers[i] < tickers[j]
		})
		for _, ticker := range tickers {
			writeTickerSection(&b, ticker, byTicker[ticker], digest.TickerSummaries)
		}
	}

	b.WriteString("---\n\n<details>\n<summary>View All News Items</summary>\n\n")
	b.WriteString("| Time | Ticker | Impact | Title |\n|:-----|:-------|:------:|:------|\n")
	items := append([]types.DigestItem(nil), digest.Items...)
	sort.Slice(items, func(i, j int) bool { return items[i].News.PublishedAt.After(items[j].News.PublishedAt) })
	for _, item := range items {
		t := item.News.PublishedAt.Format("15:04")
		tickers := "-"
		if len(item.News.Tickers) > 0 {
			tickers = strings.Join(item.News.Tickers, ", ")
		}
		impact := "-"
		if item.Analysis != nil {
			switch item.Analysis.ImpactDirection {
			case types.ImpactBullish:
				impact = "up"
			case types.ImpactBearish:
				impact = "down"
			}
		}
		title := item.News.Title
		if len(title) > 60 {
			title = title[:60] + "..."
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", t, tickers, impact, title)
	}
	b.WriteString("\n</details>\n\n---\n\n")
	fmt.Fprintf(&b, "*Generated %s*\n", digest.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))

	return b.String()
}

func writeTopStory(b *strings.Builder, item types.DigestItem, index int) {
	news := item.News
	analysis := item.Analysis

	badge := "UNANALYZED"
	if analysis != nil {
		switch analysis.ImpactDirection {
		case types.ImpactBullish:
			badge = "BULLISH"
		case types.ImpactBearish:
			badge = "BEARISH"
		default:
			badge = "NEUTRAL"
		}
	}

	tickers := ""
	for _, t := range news.Tickers {
		tickers += fmt.Sprintf("`$%s` ", t)
	}

	fmt.Fprintf(b, "### %d. %s\n\n**%s** | %s | %s\n\n", index, news.Title, strings.TrimSpace(tickers), badge, news.PublishedAt.Format("01/02 15:04"))

	if analysis != nil {
		fmt.Fprintf(b, "> **Summary**: %s\n>\n", analysis.Summary)
		if len(analysis.KeyFacts) > 0 {
			b.WriteString("> **Key Facts**:\n")
			limit := len(analysis.KeyFacts)
			if limit > 3 {
				limit = 3
			}
			for _, fact := range analysis.KeyFacts[:limit] {
				fmt.Fprintf(b, "> - %s\n", fact)
			}
			b.WriteString(">\n")
		}
		fmt.Fprintf(b, "> **Thesis Impact**: %s | **Horizon**: %s\n", strings.ToUpper(string(analysis.ThesisRelation)), analysis.ImpactHorizon)
		if analysis.WatchNext != "" {
			fmt.Fprintf(b, ">\n> **Watch**: %s\n", analysis.WatchNext)
		}
	}

	fmt.Fprintf(b, "\n[Read more](%s) | Source: %s\n\n", news.CanonicalURL, news.Source)
}

func writeTickerSection(b *strings.Builder, ticker string, items []types.DigestItem, summaries map[string]types.TickerSummary) {
	summary, hasSummary := summaries[ticker]

	company := ticker
	if hasSummary {
		company = summary.CompanyName
	}
	fmt.Fprintf(b, "### $%s - %s\n\n", ticker, company)

	if hasSummary {
		b.WriteString("**AI Daily Analysis**\n\n| | |\n|:--|:--|\n")
		fmt.Fprintf(b, "| **Sentiment** | %s (%d up, %d down, %d flat) |\n", summary.OverallSentiment, summary.BullishCount, summary.BearishCount, summary.NeutralCount)
		fmt.Fprintf(b, "| **Summary** | %s |\n", summary.Summary)
		if summary.ThesisImpact != "" {
			fmt.Fprintf(b, "| **Thesis Impact** | %s |\n", summary.ThesisImpact)
		}
		if summary.ActionSuggestion != "" {
			fmt.Fprintf(b, "| **Suggestion** | %s |\n", summary.ActionSuggestion)
		}
		b.WriteString("\n")
		if len(summary.KeyEvents) > 0 {
			b.WriteString("**Key Events:**\n")
			limit := len(summary.KeyEvents)
			if limit > 3 {
				limit = 3
			}
			for _, ev := range summary.KeyEvents[:limit] {
				fmt.Fprintf(b, "- %s\n", ev)
			}
			b.WriteString("\n")
		}
		if len(summary.RiskAlerts) > 0 {
			b.WriteString("**Risk Alerts:**\n")
			limit := len(summary.RiskAlerts)
			if limit > 2 {
				limit = 2
			}
			for _, r := range summary.RiskAlerts[:limit] {
				fmt.Fprintf(b, "- %s\n", r)
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(b, "**Today's News (%d items):**\n\n", len(items))
	limit := len(items)
	if limit > 5 {
		limit = 5
	}
	for _, item := range items[:limit] {
		impact := "-"
		if item.Analysis != nil {
			switch item.Analysis.ImpactDirection {
			case types.ImpactBullish:
				impact = "up"
			case types.ImpactBearish:
				impact = "down"
			}
		}
		fmt.Fprintf(b, "- %s **[%s]** %s\n", impact, item.News.PublishedAt.Format("15:04"), item.News.Title)
		if item.Analysis != nil && item.Analysis.Summary != "" {
			fmt.Fprintf(b, "  - _%s_\n", item.Analysis.Summary)
		}
	}
	if len(items) > 5 {
		fmt.Fprintf(b, "  - _... and %d more_\n", len(items)-5)
	}
	b.WriteString("\n")
}
