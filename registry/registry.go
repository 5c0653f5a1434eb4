/*
 * Copyright 2025 Schmitech Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package registry holds the two-level adapter registry and the retriever
// factory. Both reference constructors by name so packages stay decoupled
// and resolution happens lazily at Create time.
package registry

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/retriever"
)

// Constructor builds a component from a merged configuration map.
type Constructor func(cfg map[string]any) (any, error)

// Entry is one registered implementation with its default configuration.
type Entry struct {
	Implementation string
	Construct      Constructor
	DefaultConfig  map[string]any
}

// Registry is the two-level hierarchy kind -> backend -> name -> entry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]map[string]map[string]Entry

	// Fallbacks are conventional constructors consulted when a lookup
	// misses, keyed kind/backend/name. They stand in for the dynamic
	// import fallback of interpreted runtimes.
	fallbacks map[string]Constructor

	log *logrus.Logger
}

// New builds an empty registry. A nil logger falls back to the standard one.
func New(log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		entries:   make(map[string]map[string]map[string]Entry),
		fallbacks: make(map[string]Constructor),
		log:       log,
	}
}

func key(kind, backend, name string) string {
	return kind + "/" + backend + "/" + name
}

// Register stores an entry. Overwriting an existing registration is allowed
// and logged at info level.
func (r *Registry) Register(kind, backend, name string, entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byBackend, ok := r.entries[kind]
	if !ok {
		byBackend = make(map[string]map[string]Entry)
		r.entries[kind] = byBackend
	}
	byName, ok := byBackend[backend]
	if !ok {
		byName = make(map[string]Entry)
		byBackend[backend] = byName
	}
	if _, exists := byName[name]; exists {
		r.log.WithFields(logrus.Fields{
			"kind": kind, "backend": backend, "name": name,
		}).Info("overwriting adapter registration")
	}
	byName[name] = entry
}

// RegisterFallback installs a conventional constructor tried when Get misses.
func (r *Registry) RegisterFallback(kind, backend, name string, ctor Constructor) {
	r.mu.Lock()
	r.fallbacks[key(kind, backend, name)] = ctor
	r.mu.Unlock()
}

// Get is a pure lookup; the second return reports presence.
func (r *Registry) Get(kind, backend, name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if byBackend, ok := r.entries[kind]; ok {
		if byName, ok := byBackend[backend]; ok {
			entry, ok := byName[name]
			return entry, ok
		}
	}
	return Entry{}, false
}

// Create merges the entry's default config with the override (override wins)
// and invokes the constructor. On a registry miss the conventional fallback
// table is consulted; a final miss is retriever.ErrNotFound.
func (r *Registry) Create(kind, backend, name string, override map[string]any) (any, error) {
	entry, ok := r.Get(kind, backend, name)
	if ok {
		return entry.Construct(mergeConfig(entry.DefaultConfig, override))
	}

	r.mu.RLock()
	fallback, ok := r.fallbacks[key(kind, backend, name)]
	r.mu.RUnlock()
	if ok {
		r.log.WithFields(logrus.Fields{
			"kind": kind, "backend": backend, "name": name,
		}).Debug("using conventional constructor fallback")
		return fallback(override)
	}

	return nil, fmt.Errorf("[registry.Create] %s/%s/%s: %w", kind, backend, name, retriever.ErrNotFound)
}

// LoadFromConfig registers every complete adapter entry. Entries missing
// type, datasource, adapter or implementation are skipped with a warning.
func (r *Registry) LoadFromConfig(entries []config.AdapterEntry) {
	for _, e := range entries {
		if e.Type == "" || e.Datasource == "" || e.Adapter == "" || e.Implementation == "" {
			r.log.WithFields(logrus.Fields{
				"type": e.Type, "datasource": e.Datasource, "adapter": e.Adapter,
			}).Warn("skipping incomplete adapter entry")
			continue
		}
		if !e.IsEnabled() {
			continue
		}
		r.Register(e.Type, e.Datasource, e.Adapter, Entry{
			Implementation: e.Implementation,
			DefaultConfig:  e.Config,
		})
	}
}

// mergeConfig overlays override onto defaults without mutating either.
func mergeConfig(defaults, override map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(override))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
