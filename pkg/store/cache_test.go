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

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marketfeed/newsdigest/pkg/types"
)

var _ = Describe("CachedStore", func() {
	It("falls through to the inner store on a cache miss, then warms the cache", func() {
		mr, err := miniredis.Run()
		Expect(err).ToNot(HaveOccurred())
		defer mr.Close()

		inner := NewMemStore()
		cached := NewCachedStore(inner, mr.Addr(), testLogger())
		ctx := context.Background()

		_, err = cached.CreateNewsItem(ctx, types.NewsItem{CanonicalURL: "https://example.com/z", Title: "Story"})
		Expect(err).ToNot(HaveOccurred())

		exists, err := cached.NewsItemExistsByURL(ctx, "https://example.com/z")
		Expect(err).ToNot(HaveOccurred())
		Expect(exists).To(BeTrue())
		Expect(mr.Exists("newsdigest:seen:https://example.com/z")).To(BeTrue())
	})

	It("behaves exactly like the inner store when redis is not configured", func() {
		inner := NewMemStore()
		cached := NewCachedStore(inner, "", testLogger())
		ctx := context.Background()

		exists, err := cached.NewsItemExistsByURL(ctx, "https://example.com/unset")
		Expect(err).ToNot(HaveOccurred())
		Expect(exists).To(BeFalse())
	})
})
