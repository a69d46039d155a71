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
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/marketfeed/newsdigest/pkg/types"
)

// listWatchlist implements `GET /watchlist`.
func (h *handler) listWatchlist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.Store.GetWatchlist(r.Context())
	if err != nil {
		writeError(h.deps.Log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// getWatchlistEntry implements `GET /watchlist/{ticker}`.
func (h *handler) getWatchlistEntry(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(chi.URLParam(r, "ticker"))
	entries, err := h.deps.Store.GetWatchlist(r.Context())
	if err != nil {
		writeError(h.deps.Log, w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, e := range entries {
		if e.Ticker == ticker {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}
	writeError(h.deps.Log, w, http.StatusNotFound, "ticker not found")
}

// createWatchlistEntry implements `POST /watchlist`: 400 on a duplicate
// ticker (spec.md §6's canonical exit codes), 201 on success.
func (h *handler) createWatchlistEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.decodeWatchlistEntry(w, r)
	if !ok {
		return
	}

	existing, err := h.deps.Store.GetWatchlist(r.Context())
	if err != nil {
		writeError(h.deps.Log, w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, e := range existing {
		if e.Ticker == entry.Ticker {
			writeError(h.deps.Log, w, http.StatusBadRequest, "ticker already exists")
			return
		}
	}

	if err := h.deps.Store.UpsertWatchlistEntry(r.Context(), entry); err != nil {
		writeError(h.deps.Log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// updateWatchlistEntry implements `PUT /watchlist/{ticker}`.
func (h *handler) updateWatchlistEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.decodeWatchlistEntry(w, r)
	if !ok {
		return
	}
	entry.Ticker = strings.ToUpper(chi.URLParam(r, "ticker"))

	if err := h.deps.Store.UpsertWatchlistEntry(r.Context(), entry); err != nil {
		writeError(h.deps.Log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// deleteWatchlistEntry implements `DELETE /watchlist/{ticker}`.
func (h *handler) deleteWatchlistEntry(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(chi.URLParam(r, "ticker"))
	if err := h.deps.Store.DeleteWatchlistEntry(r.Context(), ticker); err != nil {
		writeError(h.deps.Log, w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) decodeWatchlistEntry(w http.ResponseWriter, r *http.Request) (types.WatchlistEntry, bool) {
	var entry types.WatchlistEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(h.deps.Log, w, http.StatusBadRequest, "invalid request body")
		return entry, false
	}
	entry.Ticker = strings.ToUpper(entry.Ticker)
	if entry.Priority == 0 {
		entry.Priority = 3
	}
	if err := h.validate.Struct(entry); err != nil {
		writeError(h.deps.Log, w, http.StatusBadRequest, err.Error())
		return entry, false
	}
	return entry, true
}
