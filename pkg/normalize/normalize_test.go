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

package normalize_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/pkg/normalize"
	"github.com/marketfeed/newsdigest/pkg/types"
)

func TestNormalize(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "normalize Suite")
}

func silentLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(GinkgoWriter)
	return log
}

var _ = Describe("Normalizer", func() {
	It("overrides credibility to high for filings regardless of source", func() {
		n := normalize.NewNormalizer(silentLogger())
		out := n.Normalize([]types.RawItem{{
			Source: "unknown-wire", SourceType: types.SourceTypeFiling,
			URL: "https://sec.gov/1", Title: "8-K filed", PublishedAt: time.Now(),
		}})
		Expect(out).To(HaveLen(1))
		Expect(out[0].Credibility).To(Equal(types.CredibilityHigh))
	})

	It("falls back to low credibility for unknown sources", func() {
		n := normalize.NewNormalizer(silentLogger())
		out := n.Normalize([]types.RawItem{{
			Source: "random-blog", SourceType: types.SourceTypeNews,
			URL: "https://blog.example.com/1", Title: "Some post", PublishedAt: time.Now(),
		}})
		Expect(out[0].Credibility).To(Equal(types.CredibilityLow))
	})

	It("assigns medium credibility to finnhub news", func() {
		n := normalize.NewNormalizer(silentLogger())
		out := n.Normalize([]types.RawItem{{
			Source: "finnhub", SourceType: types.SourceTypeNews,
			URL: "https://finnhub.io/1", Title: "Earnings beat", PublishedAt: time.Now(),
		}})
		Expect(out[0].Credibility).To(Equal(types.CredibilityMedium))
	})

	It("defaults published_at to now when missing", func() {
		n := normalize.NewNormalizer(silentLogger())
		before := time.Now()
		out := n.Normalize([]types.RawItem{{
			Source: "finnhub", SourceType: types.SourceTypeNews,
			URL: "https://finnhub.io/2", Title: "No date story",
		}})
		Expect(out[0].PublishedAt).To(BeTemporally(">=", before))
	})
})

var _ = Describe("DataProcessor", func() {
	It("runs dedup before normalize and reports after_dedup count", func() {
		p := normalize.NewDataProcessor(silentLogger(), 0.85, "simhash")
		day := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
		raw := []types.RawItem{
			{Source: "finnhub", ExternalID: "1", URL: "https://a.com/x?utm_source=y", Title: "Fed holds rates steady", PublishedAt: day},
			{Source: "finnhub", ExternalID: "2", URL: "https://a.com/x?utm_source=z", Title: "Fed holds rates steady", PublishedAt: day},
			{Source: "finnhub", ExternalID: "3", URL: "https://a.com/other", Title: "Unrelated headline about oil", PublishedAt: day},
		}
		result := p.Process(raw)
		Expect(result.TotalBefore).To(Equal(3))
		Expect(result.RemovedCount).To(Equal(1))
		Expect(result.Items).To(HaveLen(2))
	})
})
