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

// Package errkind defines the error taxonomy every outbound-call layer
// classifies its failures into (spec §7). Kinds are exported types so
// callers can errors.As into them rather than matching on strings.
package errkind

import (
	"fmt"
	"time"
)

// RateLimitExceeded is surfaced once the rate-limit middleware has
// exhausted its retry budget for one call.
type RateLimitExceeded struct {
	API        string
	Attempts   int
	RetryAfter time.Duration
}

func (e *RateLimitExceeded) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s after %d attempts", e.API, e.Attempts)
}

// CircuitOpen is surfaced when a per-API circuit breaker is open and a
// call is rejected without consuming retry budget.
type CircuitOpen struct {
	API string
}

func (e *CircuitOpen) Error() string {
	return fmt.Sprintf("circuit open for %s", e.API)
}

// NonRetryableHTTP is a 4xx (other than 429) that the middleware
// propagates immediately without retrying.
type NonRetryableHTTP struct {
	API        string
	StatusCode int
}

func (e *NonRetryableHTTP) Error() string {
	return fmt.Sprintf("non-retryable HTTP %d from %s", e.StatusCode, e.API)
}

// ProviderConfigMissing means no usable LLM provider could be
// constructed; the pipeline falls back to no-AI mode rather than
// treating this as fatal.
type ProviderConfigMissing struct {
	Provider string
	Reason   string
}

func (e *ProviderConfigMissing) Error() string {
	return fmt.Sprintf("provider %s not configured: %s", e.Provider, e.Reason)
}

// SchemaValidation is raised by the LLM response parser when a decoded
// payload fails AnalysisResult validation. The caller retries once with
// a repair prompt before falling back to a deterministic record.
type SchemaValidation struct {
	Err error
}

func (e *SchemaValidation) Error() string { return "schema validation failed: " + e.Err.Error() }
func (e *SchemaValidation) Unwrap() error { return e.Err }

// OutputDeliveryFailure is confined to one channel's DeliveryLog and
// never propagates past the orchestrator's delivery loop.
type OutputDeliveryFailure struct {
	Channel string
	Err     error
}

func (e *OutputDeliveryFailure) Error() string {
	return fmt.Sprintf("delivery failed on channel %s: %v", e.Channel, e.Err)
}
func (e *OutputDeliveryFailure) Unwrap() error { return e.Err }
