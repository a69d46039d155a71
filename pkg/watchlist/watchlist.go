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

// Package watchlist loads the per-ticker investment thesis list the
// orchestrator analyzes against: prefer watchlist.yaml, fall back to
// the store (spec.md §2/§6), grounded on
// original_source/app/core/pipeline.py's _load_watchlist.
package watchlist

import (
	"context"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/marketfeed/newsdigest/pkg/store"
	"github.com/marketfeed/newsdigest/pkg/types"
)

type yamlDoc struct {
	Watchlist []types.WatchlistEntry `yaml:"watchlist"`
}

// Loader resolves the current watchlist from a YAML file if present,
// else the store, and caches the result until invalidated — either by
// an explicit Invalidate() call or an fsnotify write event on the file.
type Loader struct {
	path  string
	store store.Store
	log   *logrus.Logger

	mu      sync.Mutex
	cached  []types.WatchlistEntry
	primed  bool
	watcher *fsnotify.Watcher
}

func NewLoader(path string, s store.Store, log *logrus.Logger) *Loader {
	return &Loader{path: path, store: s, log: log}
}

// Load returns the cached watchlist, populating it on first use.
func (l *Loader) Load(ctx context.Context) ([]types.WatchlistEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.primed {
		return l.cached, nil
	}
	entries, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	l.cached = entries
	l.primed = true
	return entries, nil
}

// Invalidate forces the next Load to re-read the source.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.primed = false
}

func (l *Loader) load(ctx context.Context) ([]types.WatchlistEntry, error) {
	if l.path != "" {
		if _, err := os.Stat(l.path); err == nil {
			return l.loadYAML()
		}
	}
	entries, err := l.store.GetWatchlist(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load watchlist from store")
	}
	return entries, nil
}

func (l *Loader) loadYAML() ([]types.WatchlistEntry, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, errors.Wrap(err, "read watchlist file")
	}
	var doc yamlDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parse watchlist yaml")
	}
	return doc.Watchlist, nil
}

// WatchForChanges starts an fsnotify watch on the configured file (if
// any) that invalidates the cache on write — the Python original
// re-read the file on every run because each run was a fresh process;
// a long-lived Go service needs this to pick up edits without a restart.
func (l *Loader) WatchForChanges(ctx context.Context) error {
	if l.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create fsnotify watcher")
	}
	if err := watcher.Add(l.path); err != nil {
		watcher.Close()
		// The file may not exist yet (store-backed mode) — not fatal.
		l.log.WithError(err).WithField("path", l.path).Warn("watchlist file not watchable, store fallback remains active")
		return nil
	}
	l.watcher = watcher

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					l.log.WithField("path", l.path).Info("watchlist file changed, invalidating cache")
					l.Invalidate()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.log.WithError(err).Warn("watchlist file watcher error")
			}
		}
	}()
	return nil
}

func (l *Loader) Close() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
