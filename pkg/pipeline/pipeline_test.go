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

package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/pkg/collector"
	"github.com/marketfeed/newsdigest/pkg/llm"
	"github.com/marketfeed/newsdigest/pkg/normalize"
	"github.com/marketfeed/newsdigest/pkg/output"
	"github.com/marketfeed/newsdigest/pkg/pipeline"
	"github.com/marketfeed/newsdigest/pkg/store"
	"github.com/marketfeed/newsdigest/pkg/types"
	"github.com/marketfeed/newsdigest/pkg/watchlist"
)

func TestPipeline(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "pipeline Suite")
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(GinkgoWriter)
	return log
}

// fakeCollector returns a fixed batch of RawItems, ignoring the window.
type fakeCollector struct {
	name  string
	items []types.RawItem
	err   error
}

func (f *fakeCollector) Source() string                 { return f.name }
func (f *fakeCollector) SourceType() types.SourceType    { return types.SourceTypeNews }
func (f *fakeCollector) Collect(_ context.Context, _ []string, _, _ time.Time) ([]types.RawItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

// fakeProvider is a deterministic llm.Provider test double: every
// Analyze call succeeds unless the item's title is exactly "fail".
type fakeProvider struct{}

func (fakeProvider) Name() string { return "fake" }

func (fakeProvider) Analyze(_ context.Context, news types.NewsItem, thesis string) (types.AnalysisResult, int, float64, error) {
	if news.Title == "fail" {
		return types.AnalysisResult{}, 0, 0, errors.New("analysis boom")
	}
	relation := types.ThesisSupports
	if thesis == "" {
		relation = types.ThesisUnrelated
	}
	return types.AnalysisResult{
		EventType:       types.EventOther,
		ImpactDirection: types.ImpactBullish,
		ImpactHorizon:   types.HorizonShort,
		ThesisRelation:  relation,
		Confidence:      types.ConfidenceLow,
		Summary:         "summary",
	}, 10, 0.01, nil
}

func (fakeProvider) GenerateTickerSummary(_ context.Context, ticker, companyName string, items []llm.TickerSummaryInput, _ string) (types.TickerSummary, int, float64, error) {
	return types.TickerSummary{Ticker: ticker, CompanyName: companyName, NewsCount: len(items), Summary: "ticker summary"}, 5, 0.005, nil
}

// fakeOutput records whether Deliver was called and can be made to fail.
type fakeOutput struct {
	name   string
	failOn bool
	calls  int
}

func (f *fakeOutput) Name() string { return f.name }
func (f *fakeOutput) Deliver(_ context.Context, _ types.Digest) (string, error) {
	f.calls++
	if f.failOn {
		return "", errors.New("delivery boom")
	}
	return "ref-" + f.name, nil
}

func newFixture(s store.Store, provider llm.Provider, collectors []*fakeCollector, outputs []output.Output) *pipeline.Orchestrator {
	log := testLogger()

	collectorSlice := make([]collector.Collector, len(collectors))
	for i, c := range collectors {
		collectorSlice[i] = c
	}

	processor := normalize.NewDataProcessor(log, 0.85, "jaccard")
	loader := watchlist.NewLoader("", s, log)

	return pipeline.New(pipeline.Options{
		Collectors:         collectorSlice,
		Processor:          processor,
		Provider:           provider,
		Outputs:            outputs,
		Store:              s,
		Watchlist:          loader,
		Log:                log,
		HoursLookback:      24,
		LimitPerTicker:     0,
		CollectConcurrency: 2,
	})
}

var _ = Describe("Orchestrator", func() {
	var s *store.MemStore

	BeforeEach(func() {
		s = store.NewMemStore()
		Expect(s.UpsertWatchlistEntry(context.Background(), types.WatchlistEntry{
			Ticker: "AAPL", CompanyName: "Apple Inc", Thesis: "services growth", Priority: 1,
		})).To(Succeed())
	})

	It("runs end to end with a successful provider and output", func() {
		collectors := []*fakeCollector{{
			name: "finnhub",
			items: []types.RawItem{
				{Source: "finnhub", SourceType: types.SourceTypeNews, URL: "https://example.com/a", Title: "ok", Tickers: []string{"AAPL"}, PublishedAt: time.Now(), FetchedAt: time.Now()},
			},
		}}
		out := &fakeOutput{name: "markdown"}
		orch := newFixture(s, fakeProvider{}, collectors, []output.Output{out})

		digest, run, err := orch.Run(context.Background(), "")
		Expect(err).ToNot(HaveOccurred())
		Expect(run.Status).To(Equal(types.RunSuccess))
		Expect(digest.Items).To(HaveLen(1))
		Expect(digest.Items[0].IsAnalyzed()).To(BeTrue())
		Expect(out.calls).To(Equal(1))
		Expect(digest.TickerSummaries).To(HaveKey("AAPL"))
	})

	It("marks the run partial when analysis fails for one item", func() {
		collectors := []*fakeCollector{{
			name: "finnhub",
			items: []types.RawItem{
				{Source: "finnhub", SourceType: types.SourceTypeNews, URL: "https://example.com/ok", Title: "ok", Tickers: []string{"AAPL"}, PublishedAt: time.Now(), FetchedAt: time.Now()},
				{Source: "finnhub", SourceType: types.SourceTypeNews, URL: "https://example.com/fail", Title: "fail", Tickers: []string{"AAPL"}, PublishedAt: time.Now(), FetchedAt: time.Now()},
			},
		}}
		out := &fakeOutput{name: "markdown"}
		orch := newFixture(s, fakeProvider{}, collectors, []output.Output{out})

		digest, run, err := orch.Run(context.Background(), "")
		Expect(err).ToNot(HaveOccurred())
		Expect(run.Status).To(Equal(types.RunPartial))
		Expect(digest.Items).To(HaveLen(2))
		Expect(run.AnalyzedFailed).To(Equal(1))
		Expect(run.AnalyzedSuccess).To(Equal(1))
	})

	It("marks the run partial when a delivery channel fails", func() {
		collectors := []*fakeCollector{{
			name: "finnhub",
			items: []types.RawItem{
				{Source: "finnhub", SourceType: types.SourceTypeNews, URL: "https://example.com/a", Title: "ok", Tickers: []string{"AAPL"}, PublishedAt: time.Now(), FetchedAt: time.Now()},
			},
		}}
		good := &fakeOutput{name: "markdown"}
		bad := &fakeOutput{name: "slack", failOn: true}
		orch := newFixture(s, fakeProvider{}, collectors, []output.Output{good, bad})

		_, run, err := orch.Run(context.Background(), "")
		Expect(err).ToNot(HaveOccurred())
		Expect(run.Status).To(Equal(types.RunPartial))
		Expect(run.Delivered).To(Equal(1))
	})

	It("runs in no-AI mode when no provider is configured", func() {
		collectors := []*fakeCollector{{
			name: "finnhub",
			items: []types.RawItem{
				{Source: "finnhub", SourceType: types.SourceTypeNews, URL: "https://example.com/a", Title: "ok", Tickers: []string{"AAPL"}, PublishedAt: time.Now(), FetchedAt: time.Now()},
			},
		}}
		orch := newFixture(s, nil, collectors, nil)

		digest, run, err := orch.Run(context.Background(), "")
		Expect(err).ToNot(HaveOccurred())
		Expect(run.Status).To(Equal(types.RunSuccess))
		Expect(digest.Items).To(HaveLen(1))
		Expect(digest.Items[0].IsAnalyzed()).To(BeFalse())
		Expect(run.AnalyzedFailed).To(Equal(0))
		Expect(digest.TotalFailed).To(Equal(0))
		Expect(digest.TickerSummaries).To(BeEmpty())
	})

	It("skips items already present in the store", func() {
		Expect(s.UpsertWatchlistEntry(context.Background(), types.WatchlistEntry{Ticker: "AAPL", CompanyName: "Apple Inc", Priority: 1})).To(Succeed())
		_, err := s.CreateNewsItem(context.Background(), types.NewsItem{CanonicalURL: "https://example.com/dup", Title: "dup", Tickers: []string{"AAPL"}})
		Expect(err).ToNot(HaveOccurred())

		collectors := []*fakeCollector{{
			name: "finnhub",
			items: []types.RawItem{
				{Source: "finnhub", SourceType: types.SourceTypeNews, URL: "https://example.com/dup", Title: "dup", Tickers: []string{"AAPL"}, PublishedAt: time.Now(), FetchedAt: time.Now()},
			},
		}}
		orch := newFixture(s, fakeProvider{}, collectors, nil)

		digest, _, err := orch.Run(context.Background(), "")
		Expect(err).ToNot(HaveOccurred())
		Expect(digest.Items).To(BeEmpty())
	})
})
