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

// Package store defines the narrow persistence contract the pipeline
// core needs (spec.md §6 treats the store as an opaque collaborator;
// this package is where that collaborator is actually implemented).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/marketfeed/newsdigest/pkg/types"
)

// ErrNotFound is returned by lookups that find nothing, so callers can
// errors.Is rather than comparing against a nil/zero-value sentinel.
var ErrNotFound = errors.New("store: not found")

// AnalyzedItem is one item's full step-7 write set: the RawItem to
// persist, the NewsItem it normalized to, and an AnalysisResult if one
// was produced (nil in no-AI mode or when analysis failed).
type AnalyzedItem struct {
	Raw      types.RawItem
	News     types.NewsItem
	Analysis *types.AnalysisResult
}

// PersistedItem carries the ids a PersistBatch call assigned to one
// AnalyzedItem's writes, in the same order as the input slice.
// AnalysisID is zero when the input item had no Analysis.
type PersistedItem struct {
	RawItemID  int64
	NewsItemID int64
	AnalysisID int64
}

// Store is every operation pkg/pipeline needs from persistence. Nothing
// beyond this set is exposed to the pipeline core.
type Store interface {
	// NewsItemExistsByURL reports whether a NewsItem with this exact
	// canonical URL has already been persisted, for the idempotent-sink
	// check the orchestrator runs before analyzing an item again.
	NewsItemExistsByURL(ctx context.Context, canonicalURL string) (bool, error)

	CreateRawItem(ctx context.Context, item types.RawItem) (int64, error)
	CreateNewsItem(ctx context.Context, item types.NewsItem) (int64, error)
	CreateDedupCluster(ctx context.Context, runID string, cluster types.DedupCluster) error
	CreateAnalysisResult(ctx context.Context, result types.AnalysisResult) (int64, error)

	// PersistBatch writes every item's RawItem, NewsItem, and (if
	// present) AnalysisResult as a single committed unit of work (spec
	// §4.6 step 7: "all writes for this stage occur on a single unit of
	// work committed after the loop").
	PersistBatch(ctx context.Context, items []AnalyzedItem) ([]PersistedItem, error)

	CreateRun(ctx context.Context, run types.PipelineRun) error
	UpdateRunCounters(ctx context.Context, runID string, counters types.RunCounters) error
	FinishRun(ctx context.Context, runID string, status types.RunStatus, errorLog string) error

	CreateDeliveryLog(ctx context.Context, log types.DeliveryLog) (int64, error)
	UpdateDeliveryLog(ctx context.Context, id int64, status types.DeliveryStatus, channelRef, errMsg string) error

	GetWatchlist(ctx context.Context) ([]types.WatchlistEntry, error)
	UpsertWatchlistEntry(ctx context.Context, entry types.WatchlistEntry) error
	DeleteWatchlistEntry(ctx context.Context, ticker string) error

	ListRecentNewsItems(ctx context.Context, since, until time.Time, tickers []string) ([]types.NewsItem, error)

	Close() error
}
