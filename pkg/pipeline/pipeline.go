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

// Package pipeline composes collectors, the deduplicator/normalizer,
// the LLM layer, persistence, and outputs into one observable run.
// Orchestrator.Run implements the eleven-step sequence, grounded on
// original_source/app/core/pipeline.py's NewsPipeline.run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/internal/errkind"
	"github.com/marketfeed/newsdigest/internal/logging"
	"github.com/marketfeed/newsdigest/internal/runctx"
	"github.com/marketfeed/newsdigest/internal/telemetry"
	"github.com/marketfeed/newsdigest/pkg/collector"
	"github.com/marketfeed/newsdigest/pkg/llm"
	"github.com/marketfeed/newsdigest/pkg/normalize"
	"github.com/marketfeed/newsdigest/pkg/output"
	"github.com/marketfeed/newsdigest/pkg/store"
	"github.com/marketfeed/newsdigest/pkg/types"
	"github.com/marketfeed/newsdigest/pkg/watchlist"
)

// Options configures one Orchestrator instance; built once per run by
// the CLI/HTTP entrypoints from internal/config.
type Options struct {
	Collectors         []collector.Collector
	Processor          *normalize.DataProcessor
	Provider           llm.Provider // nil means no-AI mode
	Outputs            []output.Output
	Store              store.Store
	Watchlist          *watchlist.Loader
	Log                *logrus.Logger
	HoursLookback      int
	LimitPerTicker     int
	CollectConcurrency int
}

// Orchestrator runs the pipeline end to end, one run at a time per
// instance (a fresh Orchestrator, or at least a fresh Run call, per
// pipeline execution — state below is entirely request-scoped).
type Orchestrator struct {
	opts Options
}

func New(opts Options) *Orchestrator {
	return &Orchestrator{opts: opts}
}

// RunOverrides narrows a single run's window/scope below the
// orchestrator's configured defaults (spec.md §6's `/jobs/run` query
// params and the CLI's --tickers flag both resolve to this; the CLI's
// --hours flag is applied through Options.HoursLookback instead).
// A zero value changes nothing.
type RunOverrides struct {
	HoursLookback int
	Tickers       []string
}

// Run executes the eleven-step sequence (spec.md §4.6) and returns the
// assembled Digest plus the final PipelineRun record.
func (o *Orchestrator) Run(ctx context.Context, runID string) (types.Digest, types.PipelineRun, error) {
	return o.RunWithOverrides(ctx, runID, RunOverrides{})
}

// RunWithOverrides is Run with a per-call hours-lookback/ticker-filter
// narrowing, used by the CLI's --tickers flag.
func (o *Orchestrator) RunWithOverrides(ctx context.Context, runID string, overrides RunOverrides) (types.Digest, types.PipelineRun, error) {
	ctx, runID = runctx.EnsureRunID(withRunIDIfSet(ctx, runID))
	log := logging.FromContext(ctx, o.opts.Log)

	run, err := o.createRun(ctx, runID)
	if err != nil {
		return types.Digest{}, run, err
	}

	digest, run, runErr := o.execute(ctx, log, runID, run, overrides)
	return digest, run, runErr
}

// StartBackground synchronously records a new PipelineRun (so a caller
// can immediately poll its status) and runs the eleven-step sequence on
// a detached goroutine bound to the same run id — the HTTP control
// plane's `POST /jobs/run` returns 202 and lets this run to completion
// in the background (spec.md §5 "background pipeline execution").
func (o *Orchestrator) StartBackground(ctx context.Context, runID string, overrides RunOverrides) (types.PipelineRun, error) {
	ctx, runID = runctx.EnsureRunID(withRunIDIfSet(ctx, runID))
	log := logging.FromContext(ctx, o.opts.Log)

	run, err := o.createRun(ctx, runID)
	if err != nil {
		return run, err
	}

	detached := runctx.WithRunID(context.Background(), runID)
	go func() {
		if _, _, err := o.execute(detached, log, runID, run, overrides); err != nil {
			log.WithError(err).Error("background pipeline run ended with error")
		}
	}()

	return run, nil
}

func (o *Orchestrator) createRun(ctx context.Context, runID string) (types.PipelineRun, error) {
	run := types.PipelineRun{RunID: runID, StartedAt: time.Now(), Status: types.RunRunning}
	if err := o.opts.Store.CreateRun(ctx, run); err != nil {
		return run, errors.Wrap(err, "create pipeline run record")
	}
	return run, nil
}

// execute runs steps 2-11 and persists the terminal PipelineRun status,
// shared by the synchronous (Run/RunWithOverrides) and background
// (StartBackground) entrypoints.
func (o *Orchestrator) execute(ctx context.Context, log *logrus.Entry, runID string, run types.PipelineRun, overrides RunOverrides) (types.Digest, types.PipelineRun, error) {
	digest, finalStatus, runErr := o.runStages(ctx, log, runID, &run, overrides)

	errLog := ""
	if runErr != nil {
		errLog = runErr.Error()
	}
	if err := o.opts.Store.FinishRun(ctx, runID, finalStatus, errLog); err != nil {
		log.WithError(err).Error("failed to persist final run status")
	}
	run.Status = finalStatus
	run.ErrorLog = errLog
	run.FinishedAt = time.Now()
	telemetry.RunsTotal.WithLabelValues(string(finalStatus)).Inc()

	return digest, run, runErr
}

func withRunIDIfSet(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return runctx.WithRunID(ctx, runID)
}

// runStages runs steps 2-11, translating any stage failure that occurs
// before a digest exists into a "failed" terminal status (spec step 11)
// and any partial per-item/per-channel failure into "partial".
func (o *Orchestrator) runStages(ctx context.Context, log *logrus.Entry, runID string, run *types.PipelineRun, overrides RunOverrides) (types.Digest, types.RunStatus, error) {
	partial := false

	// Step 2: load watchlist.
	stageCtx, done := telemetry.StartStage(ctx, runID, "load_watchlist")
	entries, err := o.opts.Watchlist.Load(stageCtx)
	done(err)
	if err != nil {
		return types.Digest{}, types.RunFailed, errors.Wrap(err, "load watchlist")
	}
	if len(overrides.Tickers) > 0 {
		entries = filterWatchlist(entries, overrides.Tickers)
	}
	thesisByTicker := make(map[string]string, len(entries))
	companyByTicker := make(map[string]string, len(entries))
	tickers := make([]string, 0, len(entries))
	for _, e := range entries {
		thesisByTicker[e.Ticker] = e.Thesis
		companyByTicker[e.Ticker] = e.CompanyName
		tickers = append(tickers, e.Ticker)
	}

	// Step 3: compute window.
	hoursLookback := o.opts.HoursLookback
	if overrides.HoursLookback > 0 {
		hoursLookback = overrides.HoursLookback
	}
	windowEnd := time.Now()
	windowStart := windowEnd.Add(-time.Duration(hoursLookback) * time.Hour)

	// Step 4: collect.
	stageCtx, done = telemetry.StartStage(ctx, runID, "collect")
	raw := collector.CollectAll(stageCtx, o.opts.Log, o.opts.Collectors, tickers, windowStart, windowEnd, o.opts.CollectConcurrency)
	done(nil)
	run.RawCollected = len(raw)
	o.persistCounters(ctx, log, runID, run)

	// Step 5: normalize + deduplicate (dedup first, then normalize).
	_, done = telemetry.StartStage(ctx, runID, "dedup_normalize")
	processed := o.opts.Processor.Process(raw)
	done(nil)
	run.AfterNormalize = len(processed.Items)
	run.AfterDedup = len(processed.Items)
	o.persistCounters(ctx, log, runID, run)
	for i, cluster := range processed.Clusters {
		cluster.ClusterID = clusterIDOrDefault(cluster.ClusterID, runID, i)
		if err := o.opts.Store.CreateDedupCluster(ctx, runID, cluster); err != nil {
			log.WithError(err).Warn("failed to persist dedup cluster, continuing")
		}
	}

	// Step 6: optional per-ticker cap.
	items := processed.Items
	if o.opts.LimitPerTicker > 0 {
		items = applyPerTickerCap(items, o.opts.LimitPerTicker)
	}

	// Step 7: analyze + persist.
	stageCtx, done = telemetry.StartStage(ctx, runID, "analyze_persist")
	digestItems, analyzeFailed := o.analyzeAndPersist(stageCtx, log, items, thesisByTicker)
	done(nil)
	if analyzeFailed {
		partial = true
	}
	run.AnalyzedSuccess, run.AnalyzedFailed = countAnalysis(digestItems)
	o.persistCounters(ctx, log, runID, run)

	// Step 8: per-ticker summaries.
	stageCtx, done = telemetry.StartStage(ctx, runID, "ticker_summaries")
	summaries, summaryFailed := o.tickerSummaries(stageCtx, log, digestItems, thesisByTicker, companyByTicker)
	done(nil)
	if summaryFailed {
		partial = true
	}

	// Step 9: assemble digest.
	digest := types.Digest{
		RunID:           runID,
		GeneratedAt:     time.Now(),
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		Items:           digestItems,
		TotalCollected:  run.RawCollected,
		TotalAfterDedup: run.AfterDedup,
		TotalAnalyzed:   run.AnalyzedSuccess,
		TotalFailed:     run.AnalyzedFailed,
		TickerSummaries: summaries,
	}

	// Step 10: deliver.
	stageCtx, done = telemetry.StartStage(ctx, runID, "deliver")
	delivered, deliverFailed := o.deliver(stageCtx, log, runID, digest)
	done(nil)
	if deliverFailed {
		partial = true
	}
	run.Delivered = delivered
	o.persistCounters(ctx, log, runID, run)

	// Step 11: finalize.
	status := types.RunSuccess
	if partial {
		status = types.RunPartial
	}
	return digest, status, nil
}

func (o *Orchestrator) persistCounters(ctx context.Context, log *logrus.Entry, runID string, run *types.PipelineRun) {
	if err := o.opts.Store.UpdateRunCounters(ctx, runID, run.RunCounters); err != nil {
		log.WithError(err).Warn("failed to persist run counters")
	}
}

// filterWatchlist narrows entries to the requested tickers, preserving
// watchlist order (spec.md §6's `/jobs/run?tickers=` and the CLI's
// --tickers flag both narrow scope this way, never add to it).
func filterWatchlist(entries []types.WatchlistEntry, wanted []string) []types.WatchlistEntry {
	want := make(map[string]bool, len(wanted))
	for _, t := range wanted {
		want[t] = true
	}
	out := make([]types.WatchlistEntry, 0, len(entries))
	for _, e := range entries {
		if want[e.Ticker] {
			out = append(out, e)
		}
	}
	return out
}

func clusterIDOrDefault(existing, runID string, index int) string {
	if existing != "" {
		return existing
	}
	return fmt.Sprintf("%s-%d", runID, index)
}

// applyPerTickerCap keeps an item if at least one of its tickers has
// not yet hit the cap, incrementing every one of its tickers' counts
// on inclusion (spec.md §4.6 step 6, exact wording).
func applyPerTickerCap(items []types.NewsItem, limit int) []types.NewsItem {
	counts := make(map[string]int)
	out := make([]types.NewsItem, 0, len(items))
	for _, item := range items {
		include := false
		for _, t := range item.Tickers {
			if counts[t] < limit {
				include = true
				break
			}
		}
		if !include {
			continue
		}
		for _, t := range item.Tickers {
			counts[t]++
		}
		out = append(out, item)
	}
	return out
}

// analyzeAndPersist runs spec.md §4.6 step 7: idempotency skip, analysis
// with per-item failure isolation, then a single PersistBatch call so
// every item's RawItem/NewsItem/AnalysisResult writes for this stage
// land in one committed unit of work (spec §4.6 step 7's transactional
// boundary) rather than one commit per item.
func (o *Orchestrator) analyzeAndPersist(ctx context.Context, log *logrus.Entry, items []types.NewsItem, thesisByTicker map[string]string) ([]types.DigestItem, bool) {
	anyFailed := false

	type pending struct {
		news           types.NewsItem
		analysis       *types.AnalysisResult
		analysisFailed bool
	}
	var batch []pending

	for _, item := range items {
		exists, err := o.opts.Store.NewsItemExistsByURL(ctx, item.CanonicalURL)
		if err != nil {
			log.WithError(err).WithField("url", item.CanonicalURL).Warn("existence check failed, treating as new")
		}
		if exists {
			continue
		}

		p := pending{news: item}
		if o.opts.Provider != nil {
			thesis := firstThesis(item.Tickers, thesisByTicker)
			analysis, _, _, err := o.opts.Provider.Analyze(ctx, item, thesis)
			if err != nil {
				log.WithError(err).WithField("url", item.CanonicalURL).Warn("analysis failed, keeping item unanalyzed")
				anyFailed = true
				p.analysisFailed = true
			} else {
				p.analysis = &analysis
			}
		}
		batch = append(batch, p)
	}

	if len(batch) == 0 {
		return nil, anyFailed
	}

	writeItems := make([]store.AnalyzedItem, len(batch))
	for i, p := range batch {
		writeItems[i] = store.AnalyzedItem{Raw: rawFromNews(p.news), News: p.news, Analysis: p.analysis}
	}

	persisted, err := o.opts.Store.PersistBatch(ctx, writeItems)
	if err != nil {
		log.WithError(err).Error("failed to persist analyzed item batch, digest is empty for this run")
		return nil, true
	}

	digestItems := make([]types.DigestItem, len(batch))
	for i, p := range batch {
		news := p.news
		news.RawItemID = persisted[i].RawItemID
		news.ID = persisted[i].NewsItemID

		digestItem := types.DigestItem{News: news, AnalysisFailed: p.analysisFailed}
		if p.analysis != nil {
			a := *p.analysis
			a.NewsItemID = persisted[i].NewsItemID
			digestItem.Analysis = &a
		}
		digestItems[i] = digestItem
	}

	return digestItems, anyFailed
}

// rawFromNews reconstructs the RawItem record persisted alongside a
// NewsItem (spec.md §4.6 step 7b: "persist RawItem then NewsItem, link
// by foreign key"). By step 7 the collector's original RawItem has
// already been folded into a NewsItem by normalization, so this
// rebuilds the row from the fields normalization preserved.
func rawFromNews(item types.NewsItem) types.RawItem {
	return types.RawItem{
		Source:      item.Source,
		SourceType:  item.SourceType,
		URL:         item.CanonicalURL,
		Title:       item.Title,
		Summary:     item.Summary,
		FetchedAt:   time.Now(),
		PublishedAt: item.PublishedAt,
		Tickers:     item.Tickers,
	}
}

func firstThesis(tickers []string, thesisByTicker map[string]string) string {
	for _, t := range tickers {
		if thesis, ok := thesisByTicker[t]; ok && thesis != "" {
			return thesis
		}
	}
	return ""
}

// countAnalysis tallies attempted analyses only: an item with no
// provider configured (Analysis nil, AnalysisFailed false) was never
// attempted and counts toward neither total (spec §4.6 step 7: no-AI
// mode "persists items without analysis", which is not a failure).
func countAnalysis(items []types.DigestItem) (success, failed int) {
	for _, it := range items {
		switch {
		case it.Analysis != nil:
			success++
		case it.AnalysisFailed:
			failed++
		}
	}
	return
}

// tickerSummaries runs spec.md §4.6 step 8.
func (o *Orchestrator) tickerSummaries(ctx context.Context, log *logrus.Entry, items []types.DigestItem, thesisByTicker, companyByTicker map[string]string) (map[string]types.TickerSummary, bool) {
	if o.opts.Provider == nil {
		return nil, false
	}

	byTicker := make(map[string][]llm.TickerSummaryInput)
	for _, item := range items {
		for _, t := range item.News.Tickers {
			byTicker[t] = append(byTicker[t], llm.TickerSummaryInput{News: item.News, Analysis: item.Analysis})
		}
	}

	anyFailed := false
	summaries := make(map[string]types.TickerSummary, len(byTicker))
	for ticker, tickerItems := range byTicker {
		company := companyByTicker[ticker]
		if company == "" {
			company = ticker
		}
		summary, _, _, err := o.opts.Provider.GenerateTickerSummary(ctx, ticker, company, tickerItems, thesisByTicker[ticker])
		if err != nil {
			log.WithError(err).WithField("ticker", ticker).Warn("ticker summary generation failed")
			anyFailed = true
			continue
		}
		summaries[ticker] = summary
	}
	return summaries, anyFailed
}

// deliver runs spec.md §4.6 step 10: one DeliveryLog per channel,
// channel failures isolated from one another.
func (o *Orchestrator) deliver(ctx context.Context, log *logrus.Entry, runID string, digest types.Digest) (int, bool) {
	delivered := 0
	anyFailed := false

	for _, out := range o.opts.Outputs {
		logID, err := o.opts.Store.CreateDeliveryLog(ctx, types.DeliveryLog{RunID: runID, Channel: out.Name(), Status: types.DeliveryPending})
		if err != nil {
			log.WithError(err).WithField("channel", out.Name()).Error("failed to create delivery log, skipping channel")
			anyFailed = true
			continue
		}

		ref, err := out.Deliver(ctx, digest)
		if err != nil {
			anyFailed = true
			delivErr := &errkind.OutputDeliveryFailure{Channel: out.Name(), Err: err}
			log.WithError(delivErr).Warn("channel delivery failed")
			if updErr := o.opts.Store.UpdateDeliveryLog(ctx, logID, types.DeliveryFailed, "", err.Error()); updErr != nil {
				log.WithError(updErr).Warn("failed to persist delivery failure")
			}
			continue
		}

		if updErr := o.opts.Store.UpdateDeliveryLog(ctx, logID, types.DeliverySuccess, ref, ""); updErr != nil {
			log.WithError(updErr).Warn("failed to persist delivery success")
		}
		delivered++
	}

	return delivered, anyFailed
}
