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

// Command newsdigest-server exposes the control plane described in
// spec.md §6 over HTTP: job scheduling, news/analysis lookups, and
// watchlist CRUD, backed by the same pipeline the CLI drives.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/internal/config"
	"github.com/marketfeed/newsdigest/internal/httpapi"
	"github.com/marketfeed/newsdigest/internal/logging"
	"github.com/marketfeed/newsdigest/internal/wiring"
)

func main() {
	cfg := config.Load()

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	log := logging.New(level, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := wiring.OpenStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer st.Close()

	orch := wiring.NewOrchestrator(cfg, log, st, 0, 0)

	router := httpapi.NewRouter(httpapi.Deps{
		Store:        st,
		Orchestrator: orch,
		Log:          log,
		CORSOrigins:  cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("http server shutdown")
		}
	}()

	log.WithField("addr", cfg.HTTPAddr).Info("starting newsdigest control plane")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("http server failed")
	}
	logShutdownComplete(log)
}

func logShutdownComplete(log *logrus.Logger) {
	log.Info("newsdigest control plane stopped")
}
