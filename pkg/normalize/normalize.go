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

// Package normalize maps deduplicated RawItems into canonical NewsItems
// and composes that mapping with pkg/dedup into the single "dedup then
// normalize" pass the orchestrator calls per run.
package normalize

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/pkg/dedup"
	"github.com/marketfeed/newsdigest/pkg/types"
)

// credibilityBySource is the source→credibility lookup table; anything
// absent falls back to low. source_type == filing always overrides this
// to high regardless of source (spec invariant (d) on NewsItem).
var credibilityBySource = map[string]types.Credibility{
	"sec":     types.CredibilityHigh,
	"finnhub": types.CredibilityMedium,
	"polygon": types.CredibilityMedium,
}

// Normalizer maps one RawItem to a NewsItem, never failing the batch:
// a bad item is logged and skipped.
type Normalizer struct {
	log *logrus.Logger
}

func NewNormalizer(log *logrus.Logger) *Normalizer {
	return &Normalizer{log: log}
}

// Normalize converts kept RawItems into NewsItems, skipping any item
// that cannot be normalized rather than aborting the batch.
func (n *Normalizer) Normalize(items []types.RawItem) []types.NewsItem {
	out := make([]types.NewsItem, 0, len(items))
	for _, raw := range items {
		news, err := n.normalizeItem(raw)
		if err != nil {
			n.log.WithError(err).WithField("url", raw.URL).Warn("failed to normalize item, skipping")
			continue
		}
		out = append(out, news)
	}
	return out
}

func (n *Normalizer) normalizeItem(raw types.RawItem) (types.NewsItem, error) {
	publishedAt := raw.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now().UTC()
	}

	return types.NewsItem{
		RawItemID:       raw.ID,
		CanonicalURL:    dedup.CanonicalizeURL(raw.URL),
		Title:           raw.Title,
		TitleNormalized: dedup.NormalizeTitle(raw.Title),
		ContentHash:     dedup.ContentHash(raw.Title, publishedAt, raw.Source),
		Summary:         raw.Summary,
		PublishedAt:     publishedAt,
		Source:          raw.Source,
		SourceType:      raw.SourceType,
		Credibility:     determineCredibility(raw.Source, raw.SourceType),
		Tickers:         raw.Tickers,
		RawPayload:      raw.RawPayload,
	}, nil
}

// determineCredibility implements the filing-always-high override plus
// the per-source lookup table with a low default.
func determineCredibility(source string, sourceType types.SourceType) types.Credibility {
	if sourceType == types.SourceTypeFiling {
		return types.CredibilityHigh
	}
	if c, ok := credibilityBySource[source]; ok {
		return c
	}
	return types.CredibilityLow
}

// ProcessResult bundles the DataProcessor composition's output with the
// counters the orchestrator records per run.
type ProcessResult struct {
	Items        []types.NewsItem
	Clusters     []types.DedupCluster
	TotalBefore  int
	RemovedCount int
}

// DataProcessor composes dedup (first) then normalize (second), exactly
// the order the pipeline's step 5 requires.
type DataProcessor struct {
	Dedup      *dedup.Deduplicator
	Normalizer *Normalizer
}

func NewDataProcessor(log *logrus.Logger, similarityThreshold float64, similarityImpl string) *DataProcessor {
	return &DataProcessor{
		Dedup:      dedup.New(similarityThreshold, similarityImpl),
		Normalizer: NewNormalizer(log),
	}
}

// Process runs dedup then normalize over raw, returning the resulting
// NewsItems alongside the counters the orchestrator needs for
// after_dedup (spec §9 open question 3: after_normalize mirrors it
// until a distinct normalization-drop counter exists).
func (p *DataProcessor) Process(raw []types.RawItem) ProcessResult {
	if len(raw) == 0 {
		return ProcessResult{}
	}

	dedupResult := p.Dedup.Deduplicate(raw)
	normalized := p.Normalizer.Normalize(dedupResult.Kept)

	return ProcessResult{
		Items:        normalized,
		Clusters:     dedupResult.Clusters,
		TotalBefore:  len(raw),
		RemovedCount: dedupResult.Removed,
	}
}
