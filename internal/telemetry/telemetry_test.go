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

package telemetry_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/marketfeed/newsdigest/internal/telemetry"
)

func TestTelemetry(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "telemetry Suite")
}

var _ = Describe("StartStage", func() {
	It("records an ok outcome when the stage succeeds", func() {
		before := testutil.ToFloat64(telemetry.StageTotal.WithLabelValues("collect", "ok"))

		_, done := telemetry.StartStage(context.Background(), "run-1", "collect")
		done(nil)

		after := testutil.ToFloat64(telemetry.StageTotal.WithLabelValues("collect", "ok"))
		Expect(after).To(Equal(before + 1))
	})

	It("records an error outcome when the stage fails", func() {
		before := testutil.ToFloat64(telemetry.StageTotal.WithLabelValues("deliver", "error"))

		_, done := telemetry.StartStage(context.Background(), "run-1", "deliver")
		done(errors.New("boom"))

		after := testutil.ToFloat64(telemetry.StageTotal.WithLabelValues("deliver", "error"))
		Expect(after).To(Equal(before + 1))
	})
})
