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

// Package httpapi implements the collaborator HTTP control plane
// documented in spec.md §6: job submission/status, news browsing, and
// watchlist CRUD. It holds no pipeline decision logic of its own — it
// translates requests into calls against pkg/pipeline and pkg/store.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/pkg/pipeline"
	"github.com/marketfeed/newsdigest/pkg/store"
)

// Deps are every collaborator the control plane needs; nothing here
// runs pipeline stages directly, it only calls into pkg/pipeline.
type Deps struct {
	Store        store.QueryStore
	Orchestrator *pipeline.Orchestrator
	Log          *logrus.Logger
	CORSOrigins  []string
}

// NewRouter builds the chi router implementing every endpoint spec.md
// §6 documents, plus a Prometheus /metrics endpoint.
func NewRouter(deps Deps) http.Handler {
	h := &handler{deps: deps, validate: validator.New(), openapi: mustLoadJobsRunSchema()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/run", h.postJobsRun)
		r.Get("/", h.listJobs)
		r.Get("/{runID}", h.getJob)
	})

	r.Route("/news", func(r chi.Router) {
		r.Get("/", h.listNews)
		r.Get("/{id}", h.getNewsItem)
		r.Get("/{id}/analysis", h.getNewsItemAnalysis)
	})

	r.Route("/watchlist", func(r chi.Router) {
		r.Get("/", h.listWatchlist)
		r.Post("/", h.createWatchlistEntry)
		r.Get("/{ticker}", h.getWatchlistEntry)
		r.Put("/{ticker}", h.updateWatchlistEntry)
		r.Delete("/{ticker}", h.deleteWatchlistEntry)
	})

	return r
}

// requestLogger mirrors the teacher's logrus-per-request middleware
// idiom: one structured entry per completed request, no access log file.
func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"duration": time.Since(start).String(),
			}).Info("http request")
		})
	}
}

type handler struct {
	deps     Deps
	validate *validator.Validate
	openapi  *jobsRunSchema
}
