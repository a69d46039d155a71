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

package ratelimit_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/internal/errkind"
	"github.com/marketfeed/newsdigest/pkg/ratelimit"
)

func TestRatelimit(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ratelimit Suite")
}

func newTestLimiter() *ratelimit.Limiter {
	log := logrus.New()
	log.SetOutput(GinkgoWriter)
	return ratelimit.New(log, map[string]ratelimit.Config{
		"finnhub": {Rate: 1000, Per: time.Second, MaxRetries: 2},
	})
}

var _ = Describe("Limiter", func() {
	var lim *ratelimit.Limiter

	BeforeEach(func() {
		lim = newTestLimiter()
	})

	It("runs fn once and returns nil on success", func() {
		calls := 0
		err := lim.Execute(context.Background(), "finnhub", func(ctx context.Context) error {
			calls++
			return nil
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(calls).To(Equal(1))
	})

	It("rejects unknown API names", func() {
		err := lim.Acquire(context.Background(), "unknown")
		var cfgErr *errkind.ProviderConfigMissing
		Expect(err).To(BeAssignableToTypeOf(cfgErr))
	})

	It("retries on 5xx and eventually succeeds", func() {
		attempts := 0
		err := lim.Execute(context.Background(), "finnhub", func(ctx context.Context) error {
			attempts++
			if attempts < 2 {
				return &ratelimit.HTTPStatusError{StatusCode: http.StatusServiceUnavailable}
			}
			return nil
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(attempts).To(Equal(2))
	})

	It("propagates non-retryable 4xx immediately without exhausting retries", func() {
		attempts := 0
		err := lim.Execute(context.Background(), "finnhub", func(ctx context.Context) error {
			attempts++
			return &ratelimit.HTTPStatusError{StatusCode: http.StatusUnauthorized}
		})
		Expect(attempts).To(Equal(1))
		var nonRetryable *errkind.NonRetryableHTTP
		Expect(err).To(BeAssignableToTypeOf(nonRetryable))
	})

	It("surfaces RateLimitExceeded after exhausting retry budget on 429", func() {
		attempts := 0
		err := lim.Execute(context.Background(), "finnhub", func(ctx context.Context) error {
			attempts++
			return &ratelimit.HTTPStatusError{StatusCode: http.StatusTooManyRequests}
		})
		Expect(attempts).To(Equal(3)) // initial + 2 retries
		var rle *errkind.RateLimitExceeded
		Expect(err).To(BeAssignableToTypeOf(rle))
	})
})
