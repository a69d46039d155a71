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

package output_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/pkg/output"
	"github.com/marketfeed/newsdigest/pkg/types"
)

func TestOutput(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "output Suite")
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(GinkgoWriter)
	return log
}

func sampleDigest() types.Digest {
	now := time.Now()
	bullish := types.ImpactBullish
	return types.Digest{
		RunID:       "run-1",
		GeneratedAt: now,
		WindowStart: now.Add(-24 * time.Hour),
		WindowEnd:   now,
		Items: []types.DigestItem{
			{
				News: types.NewsItem{Title: "Apple beats Q3 estimates", Tickers: []string{"AAPL"}, PublishedAt: now, CanonicalURL: "https://example.com/a", Source: "finnhub"},
				Analysis: &types.AnalysisResult{
					ImpactDirection: bullish,
					ThesisRelation:  types.ThesisSupports,
					ImpactHorizon:   types.HorizonShort,
					Summary:         "Beat on revenue and EPS",
				},
			},
			{
				News: types.NewsItem{Title: "Market holds steady", Tickers: []string{"AAPL"}, PublishedAt: now, CanonicalURL: "https://example.com/b", Source: "finnhub"},
			},
		},
		TotalCollected:  2,
		TotalAfterDedup: 2,
		TotalAnalyzed:   1,
		TickerSummaries: map[string]types.TickerSummary{
			"AAPL": {Ticker: "AAPL", CompanyName: "Apple Inc", OverallSentiment: "bullish", Summary: "Strong quarter", ActionSuggestion: "Continue monitoring", BullishCount: 1},
		},
	}
}

var _ = Describe("MarkdownOutput", func() {
	It("writes a digest file under the configured directory", func() {
		dir := GinkgoT().TempDir()
		out, err := output.NewMarkdownOutput(dir, testLogger())
		Expect(err).ToNot(HaveOccurred())

		path, err := out.Deliver(context.Background(), sampleDigest())
		Expect(err).ToNot(HaveOccurred())
		Expect(filepath.Dir(path)).To(Equal(dir))

		content, err := os.ReadFile(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(content)).To(ContainSubstring("Apple beats Q3 estimates"))
		Expect(string(content)).To(ContainSubstring("$AAPL"))
	})

	It("defaults to data/digests when no directory is configured", func() {
		cwd, err := os.Getwd()
		Expect(err).ToNot(HaveOccurred())
		tmp := GinkgoT().TempDir()
		Expect(os.Chdir(tmp)).To(Succeed())
		defer func() { _ = os.Chdir(cwd) }()

		out, err := output.NewMarkdownOutput("", testLogger())
		Expect(err).ToNot(HaveOccurred())
		_, err = os.Stat(filepath.Join(tmp, "data", "digests"))
		Expect(err).ToNot(HaveOccurred())
		Expect(out.Name()).To(Equal("markdown"))
	})
})

var _ = Describe("DeliverAll", func() {
	It("isolates a failing channel from the others", func() {
		goodDir := GinkgoT().TempDir()
		good, err := output.NewMarkdownOutput(goodDir, testLogger())
		Expect(err).ToNot(HaveOccurred())

		badDir := GinkgoT().TempDir()
		bad, err := output.NewMarkdownOutput(badDir, testLogger())
		Expect(err).ToNot(HaveOccurred())
		Expect(os.Chmod(badDir, 0o500)).To(Succeed())
		defer func() { _ = os.Chmod(badDir, 0o755) }()

		results := output.DeliverAll(context.Background(), []output.Output{good, bad}, sampleDigest())
		Expect(results[0].Err).ToNot(HaveOccurred())
		Expect(results[1].Err).To(HaveOccurred())
		Expect(results[1].Channel).To(Equal("markdown"))
	})
})
