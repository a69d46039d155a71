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

package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/marketfeed/newsdigest/pkg/ratelimit"
	"github.com/marketfeed/newsdigest/pkg/types"
)

type finnhubNews struct {
	ID       int64  `json:"id"`
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	Source   string `json:"source"`
	URL      string `json:"url"`
	Datetime int64  `json:"datetime"`
	Related  string `json:"related"`
	Category string `json:"category"`
	Image    string `json:"image"`
}

// FinnhubCollector collects medium-credibility aggregated financial news.
type FinnhubCollector struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	log        *logrus.Logger
	apiKey     string
	baseURL    string
	enabled    bool
}

func NewFinnhubCollector(httpClient *http.Client, limiter *ratelimit.Limiter, log *logrus.Logger, apiKey string, enabled bool) *FinnhubCollector {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &FinnhubCollector{
		httpClient: httpClient,
		limiter:    limiter,
		log:        log,
		apiKey:     apiKey,
		baseURL:    "https://finnhub.io/api/v1",
		enabled:    enabled,
	}
}

func (c *FinnhubCollector) Source() string            { return "finnhub" }
func (c *FinnhubCollector) SourceType() types.SourceType { return types.SourceTypeNews }

// Collect fans out one request per ticker, bounded by the shared rate
// limiter, and merges results deduplicated by URL.
func (c *FinnhubCollector) Collect(ctx context.Context, tickers []string, since, until time.Time) ([]types.RawItem, error) {
	if !c.enabled {
		c.log.Info("finnhub collector disabled")
		return nil, nil
	}
	if c.apiKey == "" {
		c.log.Error("finnhub api key not configured")
		return nil, nil
	}
	if until.IsZero() {
		until = time.Now().UTC()
	}

	fromDate := since.Format("2006-01-02")
	toDate := until.Format("2006-01-02")

	perTicker := make([][]types.RawItem, len(tickers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i, ticker := range tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			items, err := c.collectTicker(gctx, ticker, fromDate, toDate)
			if err != nil {
				c.log.WithError(err).WithField("ticker", ticker).Error("failed to collect finnhub news for ticker")
				return nil
			}
			perTicker[i] = items
			return nil
		})
	}
	_ = g.Wait()

	var all []types.RawItem
	for _, items := range perTicker {
		all = append(all, items...)
	}
	return dedupeByURL(all), nil
}

func (c *FinnhubCollector) collectTicker(ctx context.Context, ticker, fromDate, toDate string) ([]types.RawItem, error) {
	var raw []finnhubNews

	err := c.limiter.Execute(ctx, "finnhub", func(ctx context.Context) error {
		u := fmt.Sprintf("%s/company-news?symbol=%s&from=%s&to=%s&token=%s",
			c.baseURL, url.QueryEscape(strings.ToUpper(ticker)), fromDate, toDate, url.QueryEscape(c.apiKey))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return &ratelimit.HTTPStatusError{StatusCode: resp.StatusCode}
		}
		return json.NewDecoder(resp.Body).Decode(&raw)
	})
	if err != nil {
		return nil, err
	}

	items := make([]types.RawItem, 0, len(raw))
	for _, n := range raw {
		items = append(items, c.parseItem(n, ticker))
	}
	return items, nil
}

func (c *FinnhubCollector) parseItem(n finnhubNews, primaryTicker string) types.RawItem {
	publishedAt := time.Now().UTC()
	if n.Datetime > 0 {
		publishedAt = time.Unix(n.Datetime, 0).UTC()
	}

	var tickers []string
	if n.Related != "" {
		for _, t := range strings.Split(n.Related, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				tickers = append(tickers, t)
			}
		}
	}
	primary := strings.ToUpper(primaryTicker)
	found := false
	for _, t := range tickers {
		if t == primary {
			found = true
			break
		}
	}
	if !found {
		tickers = append([]string{primary}, tickers...)
	}

	return types.RawItem{
		Source:      c.Source(),
		SourceType:  c.SourceType(),
		ExternalID:  fmt.Sprintf("%d", n.ID),
		URL:         n.URL,
		Title:       n.Headline,
		Summary:     n.Summary,
		FetchedAt:   time.Now().UTC(),
		PublishedAt: publishedAt,
		Tickers:     tickers,
		RawPayload:  map[string]interface{}{"id": n.ID, "headline": n.Headline, "source": n.Source, "category": n.Category, "image": n.Image},
	}
}
