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

// Package collector defines the source contract every news/filing
// provider implements, plus the bounded concurrent fan-out the
// orchestrator uses to collect across a watchlist's tickers.
package collector

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/marketfeed/newsdigest/pkg/types"
)

// Collector fetches RawItems for a set of tickers within a time window.
// Implementations deduplicate by URL within their own batch and isolate
// per-ticker failures: one bad ticker never fails the whole collect.
type Collector interface {
	Source() string
	SourceType() types.SourceType
	Collect(ctx context.Context, tickers []string, since, until time.Time) ([]types.RawItem, error)
}

// CollectAll runs every collector concurrently, at most maxConcurrency
// collectors at a time (each collector bounds its own per-ticker
// fan-out), and merges their output.
// A single collector's error does not prevent the others from
// contributing items — it is logged and that collector's results are
// simply absent from the merged set (spec §4.6 step-level isolation).
func CollectAll(ctx context.Context, log *logrus.Logger, collectors []Collector, tickers []string, since, until time.Time, maxConcurrency int) []types.RawItem {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}

	type result struct {
		items []types.RawItem
	}
	results := make([]result, len(collectors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for i, c := range collectors {
		i, c := i, c
		g.Go(func() error {
			items, err := c.Collect(gctx, tickers, since, until)
			if err != nil {
				log.WithError(err).WithField("source", c.Source()).Error("collector failed, continuing without it")
				return nil
			}
			results[i] = result{items: items}
			return nil
		})
	}
	// Collector failures are swallowed inside the goroutine, which
	// always returns nil, so Wait has no error to report.
	_ = g.Wait()

	var all []types.RawItem
	for _, r := range results {
		all = append(all, r.items...)
	}
	return all
}

// dedupeByURL removes same-batch duplicates, keeping first occurrence —
// every concrete collector must apply this to its own output before
// returning (spec §4.2 contract: "collector MUST deduplicate by URL
// within its own batch").
func dedupeByURL(items []types.RawItem) []types.RawItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]types.RawItem, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.URL]; ok {
			continue
		}
		seen[item.URL] = struct{}{}
		out = append(out, item)
	}
	return out
}
