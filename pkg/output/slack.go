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

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"github.com/marketfeed/newsdigest/pkg/ratelimit"
	"github.com/marketfeed/newsdigest/pkg/types"
)

// slackBlockLimit is Slack's per-message block-kit ceiling; overflow is
// posted as follow-up messages threaded under the first (mirroring how
// a 100-block Notion page overflow is appended in batches).
const slackBlockLimit = 50

// SlackOutput posts a Digest as a block-kit message to one channel.
type SlackOutput struct {
	client    *slack.Client
	limiter   *ratelimit.Limiter
	channelID string
	log       *logrus.Logger
}

func NewSlackOutput(token, channelID string, limiter *ratelimit.Limiter, log *logrus.Logger) *SlackOutput {
	return &SlackOutput{client: slack.New(token), limiter: limiter, channelID: channelID, log: log}
}

func (s *SlackOutput) Name() string { return "slack" }

func (s *SlackOutput) Deliver(ctx context.Context, digest types.Digest) (string, error) {
	blocks := buildSlackBlocks(digest)
	if len(blocks) == 0 {
		blocks = []slack.Block{slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, "No news items in this digest.", false, false), nil, nil)}
	}

	first := blocks
	if len(first) > slackBlockLimit {
		first = first[:slackBlockLimit]
	}

	var timestamp string
	err := s.limiter.Execute(ctx, "slack", func(ctx context.Context) error {
		_, ts, postErr := s.client.PostMessageContext(ctx, s.channelID, slack.MsgOptionBlocks(first...))
		if postErr != nil {
			return postErr
		}
		timestamp = ts
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "post digest message")
	}

	for i := slackBlockLimit; i < len(blocks); i += slackBlockLimit {
		end := i + slackBlockLimit
		if end > len(blocks) {
			end = len(blocks)
		}
		batch := blocks[i:end]
		err := s.limiter.Execute(ctx, "slack", func(ctx context.Context) error {
			_, _, threadErr := s.client.PostMessageContext(ctx, s.channelID,
				slack.MsgOptionBlocks(batch...), slack.MsgOptionTS(timestamp))
			return threadErr
		})
		if err != nil {
			s.log.WithError(err).WithField("batch_start", i).Warn("slack overflow batch failed, digest already delivered")
			break
		}
	}

	return timestamp, nil
}

func buildSlackBlocks(digest types.Digest) []slack.Block {
	var blocks []slack.Block

	header := fmt.Sprintf("Daily Stock News Digest — %s", digest.GeneratedAt.Format("2006-01-02"))
	blocks = append(blocks, slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, header, false, false)))

	var bullish, bearish int
	for _, it := range digest.Items {
		if it.Analysis == nil {
			continue
		}
		switch it.Analysis.ImpactDirection {
		case types.ImpactBullish:
			bullish++
		case types.ImpactBearish:
			bearish++
		}
	}
	summary := fmt.Sprintf("*Window:* %s – %s | *Analyzed:* %d | *Bullish:* %d | *Bearish:* %d",
		digest.WindowStart.Format("01/02 15:04"), digest.WindowEnd.Format("01/02 15:04"),
		digest.TotalAnalyzed, bullish, bearish)
	blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, summary, false, false), nil, nil))
	blocks = append(blocks, slack.NewDividerBlock())

	high := digest.HighImpactItems()
	if len(high) > 0 {
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, "*Top Stories*", false, false), nil, nil))
		limit := len(high)
		if limit > 5 {
			limit = 5
		}
		for _, item := range high[:limit] {
			blocks = append(blocks, storyBlock(item))
		}
		blocks = append(blocks, slack.NewDividerBlock())
	}

	byTicker := digest.ByTicker()
	for ticker, items := range byTicker {
		summary, ok := digest.TickerSummaries[ticker]
		title := fmt.Sprintf("*$%s*", ticker)
		if ok {
			title = fmt.Sprintf("*$%s* — %s (%s)", ticker, summary.OverallSentiment, summary.ActionSuggestion)
		}
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, title, false, false), nil, nil))
		if ok && summary.Summary != "" {
			blocks = append(blocks, slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, summary.Summary, false, false)))
		}
		blocks = append(blocks, slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("%d news item(s)", len(items)), false, false)))
	}

	return blocks
}

func storyBlock(item types.DigestItem) slack.Block {
	badge := "•"
	if item.Analysis != nil {
		switch item.Analysis.ImpactDirection {
		case types.ImpactBullish:
			badge = ":chart_with_upwards_trend:"
		case types.ImpactBearish:
			badge = ":chart_with_downwards_trend:"
		}
	}
	text := fmt.Sprintf("%s <%s|%s>", badge, item.News.CanonicalURL, item.News.Title)
	if item.Analysis != nil && item.Analysis.Summary != "" {
		text += fmt.Sprintf("\n%s", item.Analysis.Summary)
	}
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}
