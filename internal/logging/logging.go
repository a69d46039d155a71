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

// Package logging wires the ambient run id (internal/runctx) into every
// structured log entry emitted along the pipeline's control flow.
package logging

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/internal/runctx"
)

// New builds the base logger. Level and format are config-driven so the
// CLI's --debug flag and the DEBUG env var both route through the same
// constructor.
func New(level string, jsonFormat bool) *logrus.Logger {
	log := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if jsonFormat {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return log
}

// FromContext returns an entry pre-populated with the run id carried by
// ctx, so every downstream log line along this call chain carries it
// without the caller threading it through by hand.
func FromContext(ctx context.Context, log *logrus.Logger) *logrus.Entry {
	entry := logrus.NewEntry(log)
	if id := runctx.RunID(ctx); id != "" {
		entry = entry.WithField("run_id", id)
	}
	return entry
}
