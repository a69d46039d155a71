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

package httpapi

import (
	"context"
	_ "embed"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-faster/errors"
)

//go:embed openapi.yaml
var jobsRunSpec []byte

// jobsRunSchema holds the per-parameter JSON schemas lifted from the
// embedded OpenAPI document describing POST /jobs/run, so its query
// params are checked against a schema instead of by hand (SPEC_FULL
// §4.10's "schema-first validation style").
type jobsRunSchema struct {
	hoursLookback *openapi3.Schema
	tickers       *openapi3.Schema
}

func mustLoadJobsRunSchema() *jobsRunSchema {
	doc, err := openapi3.NewLoader().LoadFromData(jobsRunSpec)
	if err != nil {
		panic(errors.Wrap(err, "parse embedded openapi document"))
	}
	if err := doc.Validate(context.Background()); err != nil {
		panic(errors.Wrap(err, "validate embedded openapi document"))
	}

	op := doc.Paths.Find("/jobs/run").Post
	schema := &jobsRunSchema{}
	for _, p := range op.Parameters {
		switch p.Value.Name {
		case "hours_lookback":
			schema.hoursLookback = p.Value.Schema.Value
		case "tickers":
			schema.tickers = p.Value.Schema.Value
		}
	}
	return schema
}

// validateHoursLookback checks a raw query value against the embedded
// schema's integer/min/max constraints, returning the parsed int.
func (s *jobsRunSchema) validateHoursLookback(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrap(err, "hours_lookback must be an integer")
	}
	if err := s.hoursLookback.VisitJSON(float64(n)); err != nil {
		return 0, errors.Wrap(err, "hours_lookback out of range")
	}
	return n, nil
}

// validateTickers checks a raw CSV query value against the embedded
// schema's pattern constraint.
func (s *jobsRunSchema) validateTickers(raw string) error {
	if raw == "" {
		return nil
	}
	if err := s.tickers.VisitJSON(raw); err != nil {
		return errors.Wrap(err, "tickers must be a comma-separated ticker list")
	}
	return nil
}
