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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/pkg/types"
)

func TestStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "store Suite")
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(GinkgoWriter)
	return log
}

func newMockStore() (*PostgresStore, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(false))
	Expect(err).ToNot(HaveOccurred())
	db := sqlx.NewDb(mockDB, "sqlmock")
	return newPostgresStoreWithDB(db, testLogger()), mock
}

var _ = Describe("PostgresStore", func() {
	var (
		s    *PostgresStore
		mock sqlmock.Sqlmock
		ctx  context.Context
	)

	BeforeEach(func() {
		s, mock = newMockStore()
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("reports an existing canonical URL", func() {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("https://example.com/a").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := s.NewsItemExistsByURL(ctx, "https://example.com/a")
		Expect(err).ToNot(HaveOccurred())
		Expect(exists).To(BeTrue())
	})

	It("inserts a raw item and returns its generated id", func() {
		item := types.RawItem{Source: "finnhub", SourceType: types.SourceTypeNews, URL: "https://example.com/a", FetchedAt: time.Now()}
		mock.ExpectQuery(`INSERT INTO raw_items`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

		id, err := s.CreateRawItem(ctx, item)
		Expect(err).ToNot(HaveOccurred())
		Expect(id).To(Equal(int64(7)))
	})

	It("returns ErrNotFound when finishing a run that doesn't exist", func() {
		mock.ExpectExec(`UPDATE pipeline_runs SET status`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.FinishRun(ctx, "missing-run", types.RunSuccess, "")
		Expect(err).To(MatchError(ErrNotFound))
	})

	It("upserts a watchlist entry", func() {
		mock.ExpectExec(`INSERT INTO watchlist`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := s.UpsertWatchlistEntry(ctx, types.WatchlistEntry{Ticker: "AAPL", CompanyName: "Apple Inc", Priority: 1})
		Expect(err).ToNot(HaveOccurred())
	})
})

var _ = Describe("MemStore", func() {
	It("round-trips a news item through existence check", func() {
		m := NewMemStore()
		ctx := context.Background()

		exists, err := m.NewsItemExistsByURL(ctx, "https://example.com/x")
		Expect(err).ToNot(HaveOccurred())
		Expect(exists).To(BeFalse())

		_, err = m.CreateNewsItem(ctx, types.NewsItem{CanonicalURL: "https://example.com/x", Title: "Story"})
		Expect(err).ToNot(HaveOccurred())

		exists, err = m.NewsItemExistsByURL(ctx, "https://example.com/x")
		Expect(err).ToNot(HaveOccurred())
		Expect(exists).To(BeTrue())
	})

	It("filters recent news items by window and ticker", func() {
		m := NewMemStore()
		ctx := context.Background()
		now := time.Now()

		_, _ = m.CreateNewsItem(ctx, types.NewsItem{CanonicalURL: "https://a", Tickers: []string{"AAPL"}, PublishedAt: now})
		_, _ = m.CreateNewsItem(ctx, types.NewsItem{CanonicalURL: "https://b", Tickers: []string{"MSFT"}, PublishedAt: now})
		_, _ = m.CreateNewsItem(ctx, types.NewsItem{CanonicalURL: "https://c", Tickers: []string{"AAPL"}, PublishedAt: now.Add(-48 * time.Hour)})

		items, err := m.ListRecentNewsItems(ctx, now.Add(-time.Hour), now.Add(time.Hour), []string{"AAPL"})
		Expect(err).ToNot(HaveOccurred())
		Expect(items).To(HaveLen(1))
		Expect(items[0].CanonicalURL).To(Equal("https://a"))
	})

	It("tracks run lifecycle from create through finish", func() {
		m := NewMemStore()
		ctx := context.Background()

		Expect(m.CreateRun(ctx, types.PipelineRun{RunID: "run-1", Status: types.RunRunning})).To(Succeed())
		Expect(m.UpdateRunCounters(ctx, "run-1", types.RunCounters{RawCollected: 10})).To(Succeed())
		Expect(m.FinishRun(ctx, "run-1", types.RunSuccess, "")).To(Succeed())
		Expect(m.FinishRun(ctx, "does-not-exist", types.RunFailed, "boom")).To(MatchError(ErrNotFound))
	})
})
