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

package llm

import (
	"strings"

	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"

	"github.com/marketfeed/newsdigest/internal/errkind"
	"github.com/marketfeed/newsdigest/pkg/types"
)

var validate = validator.New()

// extractJSONObject strips markdown code fences and slices to the
// outer {...} window, mirroring the defensive cleanup every provider
// applies before attempting to decode (spec §4.5 strict-JSON protocol
// steps 1-2).
func extractJSONObject(raw string) string {
	cleaned := strings.TrimSpace(raw)

	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
			lines = lines[1:]
		}
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
			lines = lines[:len(lines)-1]
		}
		cleaned = strings.Join(lines, "\n")
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		cleaned = cleaned[start : end+1]
	}
	return cleaned
}

// decodeAnalysis parses the cleaned JSON via go-faster/jx into an
// AnalysisResult. Any "error" object in the payload (a provider
// returning an API-level error body instead of the expected schema) is
// treated the same as a schema validation failure.
func decodeAnalysis(cleaned string) (types.AnalysisResult, error) {
	var result types.AnalysisResult
	d := jx.DecodeStr(cleaned)

	var hasErrorField bool
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "error":
			hasErrorField = true
			return d.Skip()
		case "event_type":
			v, err := d.Str()
			result.EventType = types.EventType(v)
			return err
		case "impact_direction":
			v, err := d.Str()
			result.ImpactDirection = types.ImpactDirection(v)
			return err
		case "impact_horizon":
			v, err := d.Str()
			result.ImpactHorizon = types.ImpactHorizon(v)
			return err
		case "thesis_relation":
			v, err := d.Str()
			result.ThesisRelation = types.ThesisRelation(v)
			return err
		case "confidence":
			v, err := d.Str()
			result.Confidence = types.Confidence(v)
			return err
		case "confidence_reason":
			v, err := d.Str()
			result.ConfidenceReason = v
			return err
		case "summary":
			v, err := d.Str()
			result.Summary = v
			return err
		case "watch_next":
			v, err := d.Str()
			result.WatchNext = v
			return err
		case "key_facts":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Str()
				if err != nil {
					return err
				}
				result.KeyFacts = append(result.KeyFacts, v)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return result, &errkind.SchemaValidation{Err: err}
	}
	if hasErrorField {
		return result, &errkind.SchemaValidation{Err: errFromProvider}
	}
	return result, nil
}

var errFromProvider = schemaErr("provider returned an error object instead of an analysis payload")

type schemaErr string

func (e schemaErr) Error() string { return string(e) }

// parseAndValidateAnalysis runs the full defensive pipeline: cleanup,
// decode, struct-tag validation.
func parseAndValidateAnalysis(raw string) (types.AnalysisResult, error) {
	cleaned := extractJSONObject(raw)
	result, err := decodeAnalysis(cleaned)
	if err != nil {
		return result, err
	}
	if err := validate.Struct(&result); err != nil {
		return result, &errkind.SchemaValidation{Err: err}
	}
	return result, nil
}

// repairClause enumerates the exact constraints the model must honor,
// appended to the original prompt on the one-shot repair attempt.
func repairClause(validationErr error) string {
	return "\n\nIMPORTANT: Your previous response had validation errors: " + validationErr.Error() + `

Please ensure:
1. Output is ONLY valid JSON, no markdown or extra text
2. event_type must be exactly one of: earnings, guidance, regulatory, contract, product, accident, macro, rumor, other
3. impact_direction must be exactly one of: bullish, bearish, neutral
4. impact_horizon must be exactly one of: short, medium, long
5. thesis_relation must be exactly one of: supports, weakens, unrelated
6. confidence must be exactly one of: high, medium, low
7. summary must be 100 characters or less
8. key_facts must be an array with at most 3 items
9. watch_next must be 50 characters or less`
}

// fallbackAnalysis is the deterministic record returned once the
// one-shot repair attempt also fails (spec §4.5 step 4).
func fallbackAnalysis(newsTitle string) types.AnalysisResult {
	summary := newsTitle
	if summary == "" {
		summary = "No summary"
	}
	return types.AnalysisResult{
		EventType:        types.EventOther,
		ImpactDirection:  types.ImpactNeutral,
		ImpactHorizon:    types.HorizonShort,
		ThesisRelation:   types.ThesisUnrelated,
		Confidence:       types.ConfidenceLow,
		ConfidenceReason: "Analysis failed, using fallback",
		Summary:          truncate(summary, 100),
		KeyFacts:         nil,
		WatchNext:        "",
	}
}

// parseSummaryOutput applies the same markdown/brace cleanup to a
// ticker-summary response, decoding into a best-effort map of fields
// rather than a strict struct (the original's summary schema has no
// enum constraints to validate).
func parseSummaryOutput(raw string) (types.TickerSummary, bool) {
	cleaned := extractJSONObject(raw)
	var out types.TickerSummary
	d := jx.DecodeStr(cleaned)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "overall_sentiment":
			v, err := d.Str()
			out.OverallSentiment = v
			return err
		case "summary":
			v, err := d.Str()
			out.Summary = v
			return err
		case "thesis_impact":
			v, err := d.Str()
			out.ThesisImpact = v
			return err
		case "action_suggestion":
			v, err := d.Str()
			out.ActionSuggestion = v
			return err
		case "key_events":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Str()
				if err != nil {
					return err
				}
				out.KeyEvents = append(out.KeyEvents, v)
				return nil
			})
		case "risk_alerts":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Str()
				if err != nil {
					return err
				}
				out.RiskAlerts = append(out.RiskAlerts, v)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	return out, err == nil
}
