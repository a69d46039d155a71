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

// Command newsdigest runs one pipeline execution from the terminal:
// collect, dedup, analyze, deliver, then print a run summary and exit
// non-zero if opening the store or the orchestrator returns an error (a
// partial run exits 0) (spec.md §6 CLI contract).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/internal/config"
	"github.com/marketfeed/newsdigest/internal/logging"
	"github.com/marketfeed/newsdigest/internal/wiring"
	"github.com/marketfeed/newsdigest/pkg/pipeline"
	"github.com/marketfeed/newsdigest/pkg/types"
)

func main() {
	hours := flag.Int("hours", 0, "override digest lookback window in hours (0 = use configured default)")
	tickers := flag.String("tickers", "", "comma-separated ticker filter (empty = full watchlist)")
	limit := flag.Int("limit", 0, "override per-ticker item cap (0 = use configured default)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg := config.Load()
	if *debug {
		cfg.Debug = true
	}

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	log := logging.New(level, false)

	if err := run(context.Background(), cfg, log, *hours, *tickers, *limit); err != nil {
		log.WithError(err).Error("pipeline run failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger, hoursOverride int, tickerFilter string, limitOverride int) error {
	st, err := wiring.OpenStore(ctx, cfg, log)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer st.Close()

	orch := wiring.NewOrchestrator(cfg, log, st, hoursOverride, limitOverride)

	var tickers []string
	if tickerFilter != "" {
		for _, t := range strings.Split(tickerFilter, ",") {
			if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
				tickers = append(tickers, t)
			}
		}
	}

	digest, pr, err := orch.RunWithOverrides(ctx, "", pipeline.RunOverrides{Tickers: tickers})
	printSummary(pr, digest)
	return err
}

func printSummary(run types.PipelineRun, digest types.Digest) {
	fmt.Printf("run_id=%s status=%s collected=%d after_dedup=%d analyzed_success=%d analyzed_failed=%d delivered=%d\n",
		run.RunID, run.Status, run.RawCollected, run.AfterDedup, run.AnalyzedSuccess, run.AnalyzedFailed, run.Delivered)
	for ticker, summary := range digest.TickerSummaries {
		fmt.Printf("  %s: %s\n", ticker, summary.Summary)
	}
}
