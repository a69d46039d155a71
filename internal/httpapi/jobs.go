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
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/marketfeed/newsdigest/pkg/pipeline"
	"github.com/marketfeed/newsdigest/pkg/store"
	"github.com/marketfeed/newsdigest/pkg/types"
)

// postJobsRun implements `POST /jobs/run?hours_lookback=&tickers=`
// (spec.md §6): schedule the pipeline in the background and return
// 202 Accepted with the just-created run record immediately.
func (h *handler) postJobsRun(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	hours, err := h.openapi.validateHoursLookback(q.Get("hours_lookback"))
	if err != nil {
		writeError(h.deps.Log, w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.openapi.validateTickers(q.Get("tickers")); err != nil {
		writeError(h.deps.Log, w, http.StatusBadRequest, err.Error())
		return
	}

	var tickers []string
	if raw := q.Get("tickers"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
				tickers = append(tickers, t)
			}
		}
	}

	run, err := h.deps.Orchestrator.StartBackground(r.Context(), "", pipeline.RunOverrides{
		HoursLookback: hours,
		Tickers:       tickers,
	})
	if err != nil {
		writeError(h.deps.Log, w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, run)
}

// getJob implements `GET /jobs/{run_id}`.
func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := h.deps.Store.GetRun(r.Context(), runID)
	if err != nil {
		writeError(h.deps.Log, w, storeErrStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// listJobs implements `GET /jobs?status=&limit=&offset=`.
func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Status: types.RunStatus(q.Get("status")),
		Limit:  atoiDefault(q.Get("limit"), 0),
		Offset: atoiDefault(q.Get("offset"), 0),
	}

	runs, err := h.deps.Store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(h.deps.Log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func atoiDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
