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

// Package runctx carries the ambient pipeline run identifier through
// context.Context — the explicit-context equivalent of the task-local
// run id the original implementation attached implicitly (spec §5/§9).
// Every goroutine spawned during collector or output fan-out must be
// handed a context derived from the one holding the run id; there is no
// implicit propagation in Go, so callers copy it in explicitly.
package runctx

import (
	"context"

	"github.com/google/uuid"
)

type runIDKey struct{}

// WithRunID returns a context carrying runID, replacing any existing one.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID returns the run id carried by ctx, or "" if none was attached.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey{}).(string)
	return v
}

// NewRunID allocates a fresh run identifier (spec §4.6 step 1: "if none
// supplied, allocate a fresh UUID").
func NewRunID() string {
	return uuid.NewString()
}

// EnsureRunID returns ctx unchanged if it already carries a run id,
// otherwise binds a fresh one and returns the new context plus the id.
func EnsureRunID(ctx context.Context) (context.Context, string) {
	if id := RunID(ctx); id != "" {
		return ctx, id
	}
	id := NewRunID()
	return WithRunID(ctx, id), id
}
