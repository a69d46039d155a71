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
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/marketfeed/newsdigest/pkg/ratelimit"
	"github.com/marketfeed/newsdigest/pkg/types"
)

// cikMap is the collector's only ticker->CIK source; an unmapped ticker
// is simply skipped rather than failing the batch.
var cikMap = map[string]string{
	"AAPL": "320193", "GOOGL": "1652044", "GOOG": "1652044", "MSFT": "789019",
	"AMZN": "1018724", "NVDA": "1045810", "TSM": "1046179", "AMD": "2488",
	"INTC": "50863", "MU": "723125", "WDC": "106040", "RKLB": "1819994",
	"META": "1326801", "TSLA": "1318605", "AVGO": "1730168", "MRVL": "1058057",
}

// filingTypes are the forms this collector watches for: 8-K (material
// events), 10-Q/10-K (periodic reports), Form 4 (insider trades).
var filingTypes = map[string]bool{"8-K": true, "10-Q": true, "10-K": true, "4": true}

var filingDescriptions = map[string]string{
	"8-K":  "Current Report (Material Event)",
	"10-Q": "Quarterly Report",
	"10-K": "Annual Report",
	"4":    "Insider Trading Report",
}

type secSubmissions struct {
	CIK     string `json:"cik"`
	Name    string `json:"name"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			Form            []string `json:"form"`
			FilingDate      []string `json:"filingDate"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// SECCollector collects high-credibility regulatory filings from EDGAR.
// The SEC requires a descriptive User-Agent with a contact address on
// every request and caps callers at ~10 req/s (spec §4.1).
type SECCollector struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	log        *logrus.Logger
	userAgent  string
	baseURL    string
	enabled    bool
	cik        map[string]string
}

func NewSECCollector(httpClient *http.Client, limiter *ratelimit.Limiter, log *logrus.Logger, userAgent string, enabled bool) *SECCollector {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	cik := make(map[string]string, len(cikMap))
	for k, v := range cikMap {
		cik[k] = v
	}
	return &SECCollector{
		httpClient: httpClient,
		limiter:    limiter,
		log:        log,
		userAgent:  userAgent,
		baseURL:    "https://data.sec.gov",
		enabled:    enabled,
		cik:        cik,
	}
}

func (c *SECCollector) Source() string               { return "sec" }
func (c *SECCollector) SourceType() types.SourceType { return types.SourceTypeFiling }

func (c *SECCollector) Collect(ctx context.Context, tickers []string, since, until time.Time) ([]types.RawItem, error) {
	if !c.enabled {
		c.log.Info("sec collector disabled")
		return nil, nil
	}
	if c.userAgent == "" {
		c.log.Error("sec user-agent not configured, refusing to call EDGAR")
		return nil, nil
	}

	perTicker := make([][]types.RawItem, len(tickers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, ticker := range tickers {
		i, ticker := i, ticker
		cik, ok := c.cik[strings.ToUpper(ticker)]
		if !ok {
			c.log.WithField("ticker", ticker).Debug("no CIK mapping, skipping SEC collection for ticker")
			continue
		}
		g.Go(func() error {
			items, err := c.collectTicker(gctx, ticker, cik, since, until)
			if err != nil {
				c.log.WithError(err).WithField("ticker", ticker).Error("failed to collect SEC filings for ticker")
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

func (c *SECCollector) collectTicker(ctx context.Context, ticker, cik string, since, until time.Time) ([]types.RawItem, error) {
	var data secSubmissions
	cikPadded := fmt.Sprintf("%010s", cik)

	err := c.limiter.Execute(ctx, "sec", func(ctx context.Context) error {
		u := fmt.Sprintf("%s/submissions/CIK%s.json", c.baseURL, cikPadded)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return &ratelimit.HTTPStatusError{StatusCode: resp.StatusCode}
		}
		return json.NewDecoder(resp.Body).Decode(&data)
	})
	if err != nil {
		return nil, err
	}

	recent := data.Filings.Recent
	items := make([]types.RawItem, 0, len(recent.Form))
	for i, form := range recent.Form {
		if !filingTypes[form] {
			continue
		}
		if i >= len(recent.FilingDate) || i >= len(recent.AccessionNumber) || i >= len(recent.PrimaryDocument) {
			continue
		}
		filedAt, err := time.Parse("2006-01-02", recent.FilingDate[i])
		if err != nil {
			continue
		}
		if filedAt.Before(since) || filedAt.After(until) {
			continue
		}

		accession := strings.ReplaceAll(recent.AccessionNumber[i], "-", "")
		docURL := fmt.Sprintf("https://www.sec.gov/Archives/edgar/data/%s/%s/%s", cik, accession, recent.PrimaryDocument[i])
		desc := filingDescriptions[form]
		if desc == "" {
			desc = form
		}

		items = append(items, types.RawItem{
			Source:      c.Source(),
			SourceType:  c.SourceType(),
			ExternalID:  recent.AccessionNumber[i],
			URL:         docURL,
			Title:       fmt.Sprintf("%s %s: %s", ticker, form, desc),
			FetchedAt:   time.Now().UTC(),
			PublishedAt: filedAt,
			Tickers:     []string{strings.ToUpper(ticker)},
			RawPayload:  map[string]interface{}{"form": form, "accession_number": recent.AccessionNumber[i], "cik": cik},
		})
	}
	return items, nil
}
