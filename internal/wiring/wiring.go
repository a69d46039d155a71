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

// Package wiring builds the collaborator graph (store, rate limiter,
// collectors, LLM provider, outputs, orchestrator) shared by both
// entrypoints — the one-shot CLI and the HTTP control plane server —
// so the two never drift out of sync on how a component is constructed.
package wiring

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/internal/config"
	"github.com/marketfeed/newsdigest/pkg/collector"
	"github.com/marketfeed/newsdigest/pkg/llm"
	"github.com/marketfeed/newsdigest/pkg/normalize"
	"github.com/marketfeed/newsdigest/pkg/output"
	"github.com/marketfeed/newsdigest/pkg/pipeline"
	"github.com/marketfeed/newsdigest/pkg/ratelimit"
	"github.com/marketfeed/newsdigest/pkg/store"
	"github.com/marketfeed/newsdigest/pkg/watchlist"
)

// OpenStore connects to postgres (running migrations on first use) with
// a redis fast-path cache in front, falling back to an in-memory store
// if postgres is unreachable (no-DB mode).
func OpenStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (store.QueryStore, error) {
	pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Warn("failed to connect to postgres, falling back to in-memory store")
		return store.NewMemStore(), nil
	}
	return store.NewCachedStore(pg, cfg.RedisAddr, log), nil
}

// AcquireProvider constructs the configured LLM provider. An AI provider
// name that is not registered is a fatal config error and exits the
// process; a registered provider whose construction fails falls back to
// no-AI mode (nil) instead (spec §7's ProviderConfigMissing handling).
func AcquireProvider(cfg *config.Config, log *logrus.Logger) llm.Provider {
	registered := false
	for _, name := range llm.ListProviders() {
		if name == cfg.AIProvider {
			registered = true
			break
		}
	}
	if !registered {
		log.WithField("provider", cfg.AIProvider).Fatal("configured AI provider is not registered")
		return nil
	}

	provider, err := llm.Create(cfg.AIProvider, llm.Options{
		APIKey:     cfg.CurrentAIAPIKey(),
		Model:      cfg.CurrentAIModel(),
		BaseURL:    cfg.OllamaBaseURL,
		PromptsDir: cfg.PromptsDir,
		PromptVer:  "v1.0",
		Log:        log,
	})
	if err != nil {
		log.WithError(err).Warn("AI provider unavailable, continuing in no-AI mode")
		return nil
	}
	return provider
}

func ToRatelimitConfigs(in map[string]config.RateLimitConfig) map[string]ratelimit.Config {
	out := make(map[string]ratelimit.Config, len(in))
	for name, c := range in {
		out[name] = ratelimit.Config{Rate: c.Rate, Per: c.Per, UserAgentRequired: c.UserAgentRequired, UserAgent: c.UserAgent}
	}
	return out
}

func BuildCollectors(cfg *config.Config, limiter *ratelimit.Limiter, log *logrus.Logger) []collector.Collector {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return []collector.Collector{
		collector.NewFinnhubCollector(httpClient, limiter, log, cfg.FinnhubAPIKey, cfg.FinnhubEnabled),
		collector.NewSECCollector(httpClient, limiter, log, cfg.SECUserAgent, cfg.SECEnabled),
	}
}

func BuildOutputs(cfg *config.Config, limiter *ratelimit.Limiter, log *logrus.Logger) []output.Output {
	var outs []output.Output
	for _, name := range cfg.Outputs {
		switch strings.ToLower(name) {
		case "markdown":
			md, err := output.NewMarkdownOutput(cfg.MarkdownOutDir, log)
			if err != nil {
				log.WithError(err).Error("failed to initialize markdown output, skipping")
				continue
			}
			outs = append(outs, md)
		case "slack":
			if cfg.SlackBotToken == "" || cfg.SlackChannelID == "" {
				log.Warn("slack output configured but bot token or channel id missing, skipping")
				continue
			}
			outs = append(outs, output.NewSlackOutput(cfg.SlackBotToken, cfg.SlackChannelID, limiter, log))
		default:
			log.WithField("output", name).Warn("unknown output channel, skipping")
		}
	}
	return outs
}

// NewOrchestrator builds a pipeline.Orchestrator with every collaborator
// wired from cfg, a shared construction path for both entrypoints.
func NewOrchestrator(cfg *config.Config, log *logrus.Logger, st store.Store, hoursOverride, limitOverride int) *pipeline.Orchestrator {
	limiter := ratelimit.New(log, ToRatelimitConfigs(cfg.RateLimits))
	wl := watchlist.NewLoader(cfg.WatchlistPath, st, log)
	provider := AcquireProvider(cfg, log)

	hours := cfg.DigestHoursLookback
	if hoursOverride > 0 {
		hours = hoursOverride
	}
	limitPerTicker := cfg.LimitPerTicker
	if limitOverride > 0 {
		limitPerTicker = limitOverride
	}

	return pipeline.New(pipeline.Options{
		Collectors:         BuildCollectors(cfg, limiter, log),
		Processor:          normalize.NewDataProcessor(log, cfg.DedupSimilarityThreshold, cfg.DedupSimilarityImpl),
		Provider:           provider,
		Outputs:            BuildOutputs(cfg, limiter, log),
		Store:              st,
		Watchlist:          wl,
		Log:                log,
		HoursLookback:      hours,
		LimitPerTicker:     limitPerTicker,
		CollectConcurrency: 4,
	})
}
