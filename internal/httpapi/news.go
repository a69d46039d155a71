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
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/itchyny/gojq"

	"github.com/marketfeed/newsdigest/pkg/store"
	"github.com/marketfeed/newsdigest/pkg/types"
)

const newsListMaxLimit = 200

// listNews implements `GET /news?ticker=&source=&source_type=&event_type=
// &impact_direction=&since=&until=&limit&offset=`, plus an optional `jq`
// query parameter evaluated against each item's raw_payload (SPEC_FULL
// §4.10): only items where the expression yields a truthy result survive.
func (h *handler) listNews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.NewsItemFilter{
		Ticker:          q.Get("ticker"),
		Source:          q.Get("source"),
		SourceType:      types.SourceType(q.Get("source_type")),
		EventType:       types.EventType(q.Get("event_type")),
		ImpactDirection: types.ImpactDirection(q.Get("impact_direction")),
		Limit:           atoiDefault(q.Get("limit"), newsListMaxLimit),
		Offset:          atoiDefault(q.Get("offset"), 0),
	}
	if filter.Limit <= 0 || filter.Limit > newsListMaxLimit {
		filter.Limit = newsListMaxLimit
	}

	var err error
	if filter.Since, err = parseTimeParam(q.Get("since")); err != nil {
		writeError(h.deps.Log, w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Until, err = parseTimeParam(q.Get("until")); err != nil {
		writeError(h.deps.Log, w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.deps.Store.ListNewsItems(r.Context(), filter)
	if err != nil {
		writeError(h.deps.Log, w, http.StatusInternalServerError, err.Error())
		return
	}

	if jqExpr := q.Get("jq"); jqExpr != "" {
		items, err = filterByJQ(items, jqExpr)
		if err != nil {
			writeError(h.deps.Log, w, http.StatusBadRequest, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, items)
}

// filterByJQ keeps only the NewsItems whose raw_payload the compiled jq
// expression evaluates to a truthy (non-false, non-null) result; an item
// with no raw_payload never matches a non-trivial filter.
func filterByJQ(items []types.NewsItem, expr string) ([]types.NewsItem, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, errors.Wrap(err, "parse jq expression")
	}

	out := make([]types.NewsItem, 0, len(items))
	for _, item := range items {
		var input interface{} = item.RawPayload
		if input == nil {
			input = map[string]interface{}{}
		}
		iter := query.Run(input)
		v, ok := iter.Next()
		if !ok {
			continue
		}
		if err, ok := v.(error); ok {
			return nil, errors.Wrap(err, "evaluate jq expression")
		}
		if isTruthy(v) {
			out = append(out, item)
		}
	}
	return out, nil
}

func isTruthy(v interface{}) bool {
	switch vv := v.(type) {
	case nil:
		return false
	case bool:
		return vv
	default:
		return true
	}
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "must be RFC3339")
	}
	return t, nil
}

// getNewsItem implements `GET /news/{id}`.
func (h *handler) getNewsItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(h.deps.Log, w, http.StatusBadRequest, "id must be numeric")
		return
	}
	item, err := h.deps.Store.GetNewsItem(r.Context(), id)
	if err != nil {
		writeError(h.deps.Log, w, storeErrStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// getNewsItemAnalysis implements `GET /news/{id}/analysis`.
func (h *handler) getNewsItemAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(h.deps.Log, w, http.StatusBadRequest, "id must be numeric")
		return
	}
	analysis, err := h.deps.Store.GetAnalysisByNewsItemID(r.Context(), id)
	if err != nil {
		writeError(h.deps.Log, w, storeErrStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
