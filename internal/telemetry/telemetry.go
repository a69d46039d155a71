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

// Package telemetry is the purely observational layer wrapped around
// every pipeline stage: an OpenTelemetry span per step and a
// Prometheus counter per stage outcome. Neither changes control flow.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/marketfeed/newsdigest/pkg/pipeline")

// StageTotal counts every pipeline.<step> invocation, labeled by stage
// name and outcome, mirroring news_pipeline_stage_total from SPEC_FULL §4.6.
var StageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "news_pipeline_stage_total",
	Help: "Count of pipeline stage invocations by stage and outcome.",
}, []string{"stage", "outcome"})

// RunsTotal counts completed PipelineRuns by terminal status.
var RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "news_pipeline_runs_total",
	Help: "Count of completed pipeline runs by terminal status.",
}, []string{"status"})

// StartStage opens a span named pipeline.<step> carrying the run id,
// returning a done func the caller defers to record the outcome.
func StartStage(ctx context.Context, runID, step string) (context.Context, func(err error)) {
	ctx, span := tracer.Start(ctx, "pipeline."+step)
	span.SetAttributes(runIDAttr(runID))

	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
		}
		StageTotal.WithLabelValues(step, outcome).Inc()
		span.End()
	}
}

func runIDAttr(runID string) attribute.KeyValue {
	return attribute.String("run_id", runID)
}
