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

package dedup_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marketfeed/newsdigest/pkg/dedup"
	"github.com/marketfeed/newsdigest/pkg/types"
)

func TestDedup(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "dedup Suite")
}

var _ = Describe("CanonicalizeURL", func() {
	It("strips tracking params and is idempotent", func() {
		raw := "https://Example.com/a/b/?utm_source=x&id=1&ref=foo"
		once := dedup.CanonicalizeURL(raw)
		twice := dedup.CanonicalizeURL(once)
		Expect(once).To(Equal(twice))
		Expect(once).ToNot(ContainSubstring("utm_source"))
		Expect(once).ToNot(ContainSubstring("ref="))
		Expect(once).To(ContainSubstring("id=1"))
	})

	It("lowercases scheme and host and drops trailing slash and fragment", func() {
		got := dedup.CanonicalizeURL("HTTPS://Example.COM/Path/#section")
		Expect(got).To(Equal("https://example.com/Path"))
	})
})

var _ = Describe("NormalizeTitle", func() {
	It("is deterministic across punctuation and case variants", func() {
		a := dedup.NormalizeTitle("Apple Q3 Earnings: Beat Expectations!")
		b := dedup.NormalizeTitle("apple q3 earnings beat expectations")
		Expect(a).To(Equal(b))
	})
})

func rawItem(source, id, url, title string, published time.Time) types.RawItem {
	return types.RawItem{Source: source, ExternalID: id, URL: url, Title: title, PublishedAt: published}
}

var _ = Describe("Deduplicator", func() {
	var d *dedup.Deduplicator

	BeforeEach(func() {
		d = dedup.New(0.85, "simhash")
	})

	It("never inflates the item count", func() {
		now := time.Now()
		items := []types.RawItem{
			rawItem("finnhub", "1", "https://a.com/1", "Apple reports record revenue", now),
			rawItem("finnhub", "2", "https://a.com/2", "Tesla recalls vehicles", now),
		}
		res := d.Deduplicate(items)
		Expect(len(res.Kept)).To(BeNumerically("<=", len(items)))
	})

	It("merges exact-duplicate canonical URLs at stage 1", func() {
		now := time.Now()
		items := []types.RawItem{
			rawItem("finnhub", "1", "https://a.com/story?utm_source=x", "Apple earnings beat", now),
			rawItem("finnhub", "2", "https://a.com/story?utm_source=y", "Apple earnings beat (updated)", now),
		}
		res := d.Deduplicate(items)
		Expect(res.Kept).To(HaveLen(1))
		Expect(res.Clusters).To(HaveLen(1))
		Expect(res.Clusters[0].Method).To(Equal(types.DedupURLExact))
	})

	It("merges same title+date+source at stage 2 even with distinct URLs", func() {
		day := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
		items := []types.RawItem{
			rawItem("finnhub", "1", "https://a.com/x", "Fed raises interest rates", day),
			rawItem("finnhub", "2", "https://b.com/y", "Fed raises interest rates", day),
		}
		res := d.Deduplicate(items)
		Expect(res.Kept).To(HaveLen(1))
		Expect(res.Clusters[0].Method).To(Equal(types.DedupHashMatch))
	})

	It("merges near-duplicate titles at stage 3 via similarity", func() {
		day := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
		dayLater := day.Add(2 * time.Hour)
		items := []types.RawItem{
			rawItem("finnhub", "1", "https://a.com/x", "Apple Inc reports third quarter revenue growth", day),
			rawItem("reuters", "2", "https://b.com/y", "Apple Inc reports third-quarter revenue growth!", dayLater),
		}
		res := d.Deduplicate(items)
		Expect(res.Kept).To(HaveLen(1))
	})

	It("keeps clearly distinct stories across all three stages", func() {
		now := time.Now()
		items := []types.RawItem{
			rawItem("finnhub", "1", "https://a.com/1", "Apple reports record revenue", now),
			rawItem("finnhub", "2", "https://a.com/2", "Tesla recalls 50000 vehicles", now),
			rawItem("finnhub", "3", "https://a.com/3", "Fed signals rate pause", now),
		}
		res := d.Deduplicate(items)
		Expect(res.Kept).To(HaveLen(3))
		Expect(res.Clusters).To(BeEmpty())
	})

	It("respects stage precedence: a stage-1 merge is never revisited by stage 3", func() {
		day := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
		items := []types.RawItem{
			rawItem("finnhub", "1", "https://a.com/story?ref=home", "Totally unrelated headline one", day),
			rawItem("finnhub", "2", "https://a.com/story?ref=feed", "Totally unrelated headline one", day),
		}
		res := d.Deduplicate(items)
		Expect(res.Kept).To(HaveLen(1))
		Expect(res.Clusters).To(HaveLen(1))
		Expect(res.Clusters[0].Method).To(Equal(types.DedupURLExact))
	})
})
