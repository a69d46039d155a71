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

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marketfeed/newsdigest/pkg/types"
)

// MemStore is an in-memory Store: the substitute for the original's
// sqlite dev-mode URL, used by pipeline tests and local runs without a
// configured database.
type MemStore struct {
	mu sync.Mutex

	rawItems    []types.RawItem
	newsByURL   map[string]int64
	newsItems   map[int64]types.NewsItem
	clusters    []types.DedupCluster
	analyses    map[int64]types.AnalysisResult
	runs        map[string]types.PipelineRun
	deliveries  map[int64]types.DeliveryLog
	watchlist   map[string]types.WatchlistEntry
	nextID      int64
	nextDelivID int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		newsByURL:  make(map[string]int64),
		newsItems:  make(map[int64]types.NewsItem),
		analyses:   make(map[int64]types.AnalysisResult),
		runs:       make(map[string]types.PipelineRun),
		deliveries: make(map[int64]types.DeliveryLog),
		watchlist:  make(map[string]types.WatchlistEntry),
	}
}

func (m *MemStore) NewsItemExistsByURL(_ context.Context, canonicalURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.newsByURL[canonicalURL]
	return ok, nil
}

func (m *MemStore) CreateRawItem(_ context.Context, item types.RawItem) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	item.ID = m.nextID
	m.rawItems = append(m.rawItems, item)
	return item.ID, nil
}

func (m *MemStore) CreateRawItems(ctx context.Context, items []types.RawItem) ([]int64, error) {
	ids := make([]int64, len(items))
	for i, item := range items {
		id, err := m.CreateRawItem(ctx, item)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func (m *MemStore) CreateNewsItem(_ context.Context, item types.NewsItem) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	item.ID = m.nextID
	m.newsItems[item.ID] = item
	m.newsByURL[item.CanonicalURL] = item.ID
	return item.ID, nil
}

// PersistBatch writes every item sequentially; MemStore has no
// transaction primitive of its own, so the "single unit of work" spec
// §4.6 step 7 asks for is approximated the same way
// PostgresStore.persistBatchSequential does for its non-pooled path.
func (m *MemStore) PersistBatch(ctx context.Context, items []AnalyzedItem) ([]PersistedItem, error) {
	out := make([]PersistedItem, len(items))
	for i, item := range items {
		rawID, err := m.CreateRawItem(ctx, item.Raw)
		if err != nil {
			return nil, err
		}

		news := item.News
		news.RawItemID = rawID
		newsID, err := m.CreateNewsItem(ctx, news)
		if err != nil {
			return nil, err
		}

		var analysisID int64
		if item.Analysis != nil {
			a := *item.Analysis
			a.NewsItemID = newsID
			analysisID, err = m.CreateAnalysisResult(ctx, a)
			if err != nil {
				return nil, err
			}
		}

		out[i] = PersistedItem{RawItemID: rawID, NewsItemID: newsID, AnalysisID: analysisID}
	}
	return out, nil
}

func (m *MemStore) CreateDedupCluster(_ context.Context, _ string, cluster types.DedupCluster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clusters = append(m.clusters, cluster)
	return nil
}

func (m *MemStore) CreateAnalysisResult(_ context.Context, result types.AnalysisResult) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	result.ID = m.nextID
	m.analyses[result.ID] = result
	return result.ID, nil
}

func (m *MemStore) CreateRun(_ context.Context, run types.PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.RunID] = run
	return nil
}

func (m *MemStore) UpdateRunCounters(_ context.Context, runID string, counters types.RunCounters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	run.RunCounters = counters
	m.runs[runID] = run
	return nil
}

func (m *MemStore) FinishRun(_ context.Context, runID string, status types.RunStatus, errorLog string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	run.Status = status
	run.ErrorLog = errorLog
	run.FinishedAt = time.Now()
	m.runs[runID] = run
	return nil
}

func (m *MemStore) CreateDeliveryLog(_ context.Context, log types.DeliveryLog) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextDelivID++
	log.ID = m.nextDelivID
	m.deliveries[log.ID] = log
	return log.ID, nil
}

func (m *MemStore) UpdateDeliveryLog(_ context.Context, id int64, status types.DeliveryStatus, channelRef, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	log.Status = status
	log.ChannelRef = channelRef
	log.ErrorMessage = errMsg
	m.deliveries[id] = log
	return nil
}

func (m *MemStore) GetWatchlist(_ context.Context) ([]types.WatchlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.WatchlistEntry, 0, len(m.watchlist))
	for _, e := range m.watchlist {
		out = append(out, e)
	}
	return out, nil
}

func (m *MemStore) UpsertWatchlistEntry(_ context.Context, entry types.WatchlistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchlist[entry.Ticker] = entry
	return nil
}

func (m *MemStore) DeleteWatchlistEntry(_ context.Context, ticker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watchlist, ticker)
	return nil
}

func (m *MemStore) ListRecentNewsItems(_ context.Context, since, until time.Time, tickers []string) ([]types.NewsItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		wanted[t] = true
	}

	var out []types.NewsItem
	for _, item := range m.newsItems {
		if item.PublishedAt.Before(since) || item.PublishedAt.After(until) {
			continue
		}
		if len(wanted) > 0 {
			match := false
			for _, t := range item.Tickers {
				if wanted[t] {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, item)
	}
	return out, nil
}

func (m *MemStore) GetRun(_ context.Context, runID string) (types.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return types.PipelineRun{}, ErrNotFound
	}
	return run, nil
}

func (m *MemStore) ListRuns(_ context.Context, filter RunFilter) ([]types.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.PipelineRun
	for _, run := range m.runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return paginateRuns(out, filter.Limit, filter.Offset), nil
}

func (m *MemStore) GetNewsItem(_ context.Context, id int64) (types.NewsItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.newsItems[id]
	if !ok {
		return types.NewsItem{}, ErrNotFound
	}
	return item, nil
}

func (m *MemStore) ListNewsItems(_ context.Context, filter NewsItemFilter) ([]types.NewsItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.NewsItem
	for _, item := range m.newsItems {
		if !matchesNewsFilter(item, filter) {
			continue
		}
		if filter.EventType != "" || filter.ImpactDirection != "" {
			analysis, ok := m.analysisForNewsItemLocked(item.ID)
			if !ok {
				continue
			}
			if filter.EventType != "" && analysis.EventType != filter.EventType {
				continue
			}
			if filter.ImpactDirection != "" && analysis.ImpactDirection != filter.ImpactDirection {
				continue
			}
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	return paginateNews(out, filter.Limit, filter.Offset), nil
}

// analysisForNewsItemLocked looks up an analysis by news item id; caller
// must already hold m.mu.
func (m *MemStore) analysisForNewsItemLocked(newsItemID int64) (types.AnalysisResult, bool) {
	for _, a := range m.analyses {
		if a.NewsItemID == newsItemID {
			return a, true
		}
	}
	return types.AnalysisResult{}, false
}

func (m *MemStore) GetAnalysisByNewsItemID(_ context.Context, newsItemID int64) (types.AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.analyses {
		if a.NewsItemID == newsItemID {
			return a, nil
		}
	}
	return types.AnalysisResult{}, ErrNotFound
}

func matchesNewsFilter(item types.NewsItem, filter NewsItemFilter) bool {
	if filter.Ticker != "" && !containsString(item.Tickers, filter.Ticker) {
		return false
	}
	if filter.Source != "" && item.Source != filter.Source {
		return false
	}
	if filter.SourceType != "" && item.SourceType != filter.SourceType {
		return false
	}
	if !filter.Since.IsZero() && item.PublishedAt.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && item.PublishedAt.After(filter.Until) {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func paginateNews(items []types.NewsItem, limit, offset int) []types.NewsItem {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func paginateRuns(runs []types.PipelineRun, limit, offset int) []types.PipelineRun {
	if offset > 0 {
		if offset >= len(runs) {
			return nil
		}
		runs = runs[offset:]
	}
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs
}

func (m *MemStore) Close() error { return nil }
