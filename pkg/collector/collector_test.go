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

package collector_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/pkg/collector"
	"github.com/marketfeed/newsdigest/pkg/ratelimit"
)

func TestCollector(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "collector Suite")
}

func testLimiter() *ratelimit.Limiter {
	log := logrus.New()
	log.SetOutput(GinkgoWriter)
	return ratelimit.New(log, map[string]ratelimit.Config{
		"finnhub": {Rate: 1000, Per: time.Second, MaxRetries: 1},
		"sec":     {Rate: 1000, Per: time.Second, MaxRetries: 1},
	})
}

// redirectTransport sends every request to target, whatever host the
// collector built the URL for.
type redirectTransport struct{ target *url.URL }

func (t redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = t.target.Scheme
	r.URL.Host = t.target.Host
	r.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func serverClient(server *httptest.Server) *http.Client {
	target, _ := url.Parse(server.URL)
	return &http.Client{Transport: redirectTransport{target: target}}
}

var _ = Describe("FinnhubCollector", func() {
	It("fetches and merges per-ticker news deduplicated by URL", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			symbol := r.URL.Query().Get("symbol")
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": 1, "headline": symbol + " beats earnings", "url": "https://news.example.com/" + symbol, "datetime": time.Now().Unix(), "related": symbol},
			})
		}))
		defer server.Close()

		log := logrus.New()
		log.SetOutput(GinkgoWriter)
		c := collector.NewFinnhubCollector(serverClient(server), testLimiter(), log, "test-key", true)

		items, err := c.Collect(context.Background(), []string{"AAPL", "MSFT"}, time.Now().Add(-24*time.Hour), time.Now())
		Expect(err).ToNot(HaveOccurred())
		Expect(items).To(HaveLen(2))
	})

	It("returns no items and no error when disabled", func() {
		log := logrus.New()
		log.SetOutput(GinkgoWriter)
		c := collector.NewFinnhubCollector(http.DefaultClient, testLimiter(), log, "test-key", false)

		items, err := c.Collect(context.Background(), []string{"AAPL"}, time.Now().Add(-24*time.Hour), time.Now())
		Expect(err).ToNot(HaveOccurred())
		Expect(items).To(BeEmpty())
	})

	It("isolates a failing ticker without failing the whole batch", func() {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			symbol := r.URL.Query().Get("symbol")
			if symbol == "BAD" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": 2, "headline": "ok story", "url": "https://news.example.com/ok", "datetime": time.Now().Unix(), "related": symbol},
			})
		}))
		defer server.Close()

		log := logrus.New()
		log.SetOutput(GinkgoWriter)
		lim := ratelimit.New(log, map[string]ratelimit.Config{"finnhub": {Rate: 1000, Per: time.Second, MaxRetries: 0}})
		c := collector.NewFinnhubCollector(serverClient(server), lim, log, "test-key", true)

		items, err := c.Collect(context.Background(), []string{"BAD", "GOOD"}, time.Now().Add(-24*time.Hour), time.Now())
		Expect(err).ToNot(HaveOccurred())
		Expect(items).To(HaveLen(1))
	})
})

var _ = Describe("SECCollector", func() {
	It("refuses to call EDGAR without a configured user-agent", func() {
		log := logrus.New()
		log.SetOutput(GinkgoWriter)
		c := collector.NewSECCollector(http.DefaultClient, testLimiter(), log, "", true)

		items, err := c.Collect(context.Background(), []string{"AAPL"}, time.Now().Add(-24*time.Hour), time.Now())
		Expect(err).ToNot(HaveOccurred())
		Expect(items).To(BeEmpty())
	})
})
