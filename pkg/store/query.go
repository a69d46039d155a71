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
	"time"

	"github.com/marketfeed/newsdigest/pkg/types"
)

// NewsItemFilter narrows ListNewsItems; zero-value fields are ignored.
type NewsItemFilter struct {
	Ticker          string
	Source          string
	SourceType      types.SourceType
	EventType       types.EventType
	ImpactDirection types.ImpactDirection
	Since           time.Time
	Until           time.Time
	Limit           int
	Offset          int
}

// RunFilter narrows ListRuns; zero-value fields are ignored.
type RunFilter struct {
	Status types.RunStatus
	Limit  int
	Offset int
}

// QueryStore extends Store with the read paths the HTTP control plane
// needs (spec.md §6) but the pipeline core never calls — kept separate
// so pkg/pipeline's Store contract stays the narrow write-and-idempotency
// set it actually uses.
type QueryStore interface {
	Store

	GetRun(ctx context.Context, runID string) (types.PipelineRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]types.PipelineRun, error)

	GetNewsItem(ctx context.Context, id int64) (types.NewsItem, error)
	ListNewsItems(ctx context.Context, filter NewsItemFilter) ([]types.NewsItem, error)
	GetAnalysisByNewsItemID(ctx context.Context, newsItemID int64) (types.AnalysisResult, error)
}
