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

package watchlist_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/pkg/store"
	"github.com/marketfeed/newsdigest/pkg/types"
	"github.com/marketfeed/newsdigest/pkg/watchlist"
)

func TestWatchlist(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "watchlist Suite")
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(GinkgoWriter)
	return log
}

const sampleYAML = `
watchlist:
  - ticker: AAPL
    company_name: Apple Inc
    thesis: "Services growth offsets hardware saturation"
    priority: 1
  - ticker: MSFT
    company_name: Microsoft Corp
    thesis: "Azure share gains"
    priority: 2
`

var _ = Describe("Loader", func() {
	It("prefers the YAML file when present", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "watchlist.yaml")
		Expect(os.WriteFile(path, []byte(sampleYAML), 0o644)).To(Succeed())

		s := store.NewMemStore()
		l := watchlist.NewLoader(path, s, testLogger())

		entries, err := l.Load(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Ticker).To(Equal("AAPL"))
	})

	It("falls back to the store when no file is configured", func() {
		s := store.NewMemStore()
		Expect(s.UpsertWatchlistEntry(context.Background(), types.WatchlistEntry{Ticker: "NVDA", CompanyName: "Nvidia", Priority: 1})).To(Succeed())

		l := watchlist.NewLoader("", s, testLogger())
		entries, err := l.Load(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Ticker).To(Equal("NVDA"))
	})

	It("caches until invalidated", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "watchlist.yaml")
		Expect(os.WriteFile(path, []byte(sampleYAML), 0o644)).To(Succeed())

		s := store.NewMemStore()
		l := watchlist.NewLoader(path, s, testLogger())

		first, err := l.Load(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(first).To(HaveLen(2))

		Expect(os.WriteFile(path, []byte(sampleYAML+"  - ticker: TSLA\n    company_name: Tesla\n    thesis: x\n    priority: 3\n"), 0o644)).To(Succeed())

		cachedAgain, err := l.Load(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(cachedAgain).To(HaveLen(2))

		l.Invalidate()
		fresh, err := l.Load(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(fresh).To(HaveLen(3))
	})

	It("invalidates automatically when the watched file is rewritten", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "watchlist.yaml")
		Expect(os.WriteFile(path, []byte(sampleYAML), 0o644)).To(Succeed())

		s := store.NewMemStore()
		l := watchlist.NewLoader(path, s, testLogger())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		Expect(l.WatchForChanges(ctx)).To(Succeed())

		_, err := l.Load(ctx)
		Expect(err).ToNot(HaveOccurred())

		Expect(os.WriteFile(path, []byte(sampleYAML+"  - ticker: TSLA\n    company_name: Tesla\n    thesis: x\n    priority: 3\n"), 0o644)).To(Succeed())

		Eventually(func() ([]types.WatchlistEntry, error) {
			return l.Load(ctx)
		}, "2s", "50ms").Should(HaveLen(3))
	})
})
