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

// Package ratelimit is the single middleware every outbound call to a
// third-party API passes through: a per-API token bucket, exponential
// backoff with jitter and Retry-After support, and a circuit breaker
// that stops hammering an API that is already down.
package ratelimit

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/marketfeed/newsdigest/internal/errkind"
)

// Config is one API's token-bucket + user-agent policy.
type Config struct {
	Rate              int
	Per               time.Duration
	UserAgentRequired bool
	UserAgent         string
	MaxRetries        int
}

// HTTPStatusError lets callers report the status code a round trip
// returned without the limiter depending on net/http response bodies.
type HTTPStatusError struct {
	StatusCode int
	RetryAfter time.Duration
}

func (e *HTTPStatusError) Error() string {
	return http.StatusText(e.StatusCode)
}

type apiLimiter struct {
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	cfg        Config
}

// Limiter multiplexes a token bucket and circuit breaker per API name.
type Limiter struct {
	log   *logrus.Logger
	apis  map[string]*apiLimiter
	clock func() float64 // jitter source, rand.Float64
}

// New builds a Limiter from a name->Config map (spec §4.1 rate-limit table).
func New(log *logrus.Logger, configs map[string]Config) *Limiter {
	l := &Limiter{
		log:   log,
		apis:  make(map[string]*apiLimiter, len(configs)),
		clock: rand.Float64,
	}
	for name, cfg := range configs {
		l.register(name, cfg)
	}
	return l
}

func (l *Limiter) register(name string, cfg Config) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	every := cfg.Per / time.Duration(cfg.Rate)
	st := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	l.apis[name] = &apiLimiter{
		limiter: rate.NewLimiter(rate.Every(every), cfg.Rate),
		breaker: gobreaker.NewCircuitBreaker(st),
		cfg:     cfg,
	}
}

// Acquire blocks until a token for api is available, or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, api string) error {
	a, ok := l.apis[api]
	if !ok {
		return &errkind.ProviderConfigMissing{Provider: api, Reason: "unknown rate-limit config"}
	}
	return a.limiter.Wait(ctx)
}

// Execute runs fn under the named API's rate limit, circuit breaker and
// retry policy. fn should return *HTTPStatusError for HTTP failures so
// Execute can distinguish retryable (429/5xx) from terminal (other 4xx)
// outcomes; any other error is treated as a retryable network failure.
func (l *Limiter) Execute(ctx context.Context, api string, fn func(ctx context.Context) error) error {
	a, ok := l.apis[api]
	if !ok {
		return &errkind.ProviderConfigMissing{Provider: api, Reason: "unknown rate-limit config"}
	}

	var lastErr error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}

		_, err := a.breaker.Execute(func() (interface{}, error) {
			return nil, fn(ctx)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &errkind.CircuitOpen{API: api}
		}

		var httpErr *HTTPStatusError
		switch {
		case errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests:
			if attempt >= a.cfg.MaxRetries {
				return &errkind.RateLimitExceeded{API: api, Attempts: attempt + 1, RetryAfter: httpErr.RetryAfter}
			}
			l.sleep(ctx, l.backoff(attempt, httpErr.RetryAfter))
			lastErr = err
			continue
		case errors.As(err, &httpErr) && isServerError(httpErr.StatusCode):
			if attempt >= a.cfg.MaxRetries {
				return &errkind.RateLimitExceeded{API: api, Attempts: attempt + 1}
			}
			l.sleep(ctx, l.backoff(attempt, 0))
			lastErr = err
			continue
		case errors.As(err, &httpErr):
			return &errkind.NonRetryableHTTP{API: api, StatusCode: httpErr.StatusCode}
		default:
			if attempt >= a.cfg.MaxRetries {
				return &errkind.RateLimitExceeded{API: api, Attempts: attempt + 1}
			}
			l.sleep(ctx, l.backoff(attempt, 0))
			lastErr = err
		}
	}
	return lastErr
}

func isServerError(code int) bool {
	return code == 500 || code == 502 || code == 503 || code == 504
}

// backoff computes base 2^attempt seconds jittered by ±25%, floored by
// retryAfter when the server supplied one, capped at 60s.
func (l *Limiter) backoff(attempt int, retryAfter time.Duration) time.Duration {
	base := math.Pow(2, float64(attempt))
	jitter := 0.75 + l.clock()*0.5
	wait := time.Duration(base * jitter * float64(time.Second))
	if retryAfter > wait {
		wait = retryAfter
	}
	if wait > 60*time.Second {
		wait = 60 * time.Second
	}
	return wait
}

func (l *Limiter) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
