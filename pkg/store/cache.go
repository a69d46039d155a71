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

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/pkg/types"
)

// CachedStore wraps a Store with a redis fast path in front of
// NewsItemExistsByURL. A cache miss or a down redis always falls
// through to the wrapped Store — redis absence changes latency, never
// correctness (spec.md's idempotent-sink non-goal).
type CachedStore struct {
	QueryStore
	rdb *redis.Client
	ttl time.Duration
	log *logrus.Logger
}

func NewCachedStore(inner QueryStore, addr string, log *logrus.Logger) *CachedStore {
	var rdb *redis.Client
	if addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
	}
	return &CachedStore{QueryStore: inner, rdb: rdb, ttl: 24 * time.Hour, log: log}
}

func (c *CachedStore) NewsItemExistsByURL(ctx context.Context, canonicalURL string) (bool, error) {
	if c.rdb == nil {
		return c.QueryStore.NewsItemExistsByURL(ctx, canonicalURL)
	}

	key := "newsdigest:seen:" + canonicalURL
	n, err := c.rdb.Exists(ctx, key).Result()
	if err == nil && n > 0 {
		return true, nil
	}
	if err != nil {
		c.log.WithError(err).Debug("redis existence check failed, falling through to store")
	}

	exists, err := c.QueryStore.NewsItemExistsByURL(ctx, canonicalURL)
	if err != nil {
		return false, err
	}
	if exists && c.rdb != nil {
		if setErr := c.rdb.Set(ctx, key, "1", c.ttl).Err(); setErr != nil {
			c.log.WithError(setErr).Debug("redis cache set failed")
		}
	}
	return exists, nil
}

func (c *CachedStore) CreateNewsItem(ctx context.Context, item types.NewsItem) (int64, error) {
	id, err := c.QueryStore.CreateNewsItem(ctx, item)
	if err == nil && c.rdb != nil {
		key := "newsdigest:seen:" + item.CanonicalURL
		if setErr := c.rdb.Set(ctx, key, "1", c.ttl).Err(); setErr != nil {
			c.log.WithError(setErr).Debug("redis cache set failed")
		}
	}
	return id, err
}
