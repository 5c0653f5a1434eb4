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

package registry

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/schmitech/orbit-sub000/retriever"
)

// RetrieverConstructor builds a retriever from a configuration map.
type RetrieverConstructor func(cfg map[string]any) (retriever.Retriever, error)

// Factory instantiates concrete retrievers by their registered type string.
type Factory struct {
	mu    sync.RWMutex
	ctors map[string]RetrieverConstructor
	log   *logrus.Logger
}

// NewFactory builds an empty factory.
func NewFactory(log *logrus.Logger) *Factory {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Factory{ctors: make(map[string]RetrieverConstructor), log: log}
}

// RegisterRetriever binds a retriever type string to its constructor.
// Re-registration overwrites with an info log, matching the adapter registry.
func (f *Factory) RegisterRetriever(retrieverType string, ctor RetrieverConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.ctors[retrieverType]; exists {
		f.log.WithField("type", retrieverType).Info("overwriting retriever registration")
	}
	f.ctors[retrieverType] = ctor
}

// CreateRetriever instantiates the named retriever type or fails with
// retriever.ErrUnknownType.
func (f *Factory) CreateRetriever(retrieverType string, cfg map[string]any) (retriever.Retriever, error) {
	f.mu.RLock()
	ctor, ok := f.ctors[retrieverType]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("[CreateRetriever] %q: %w", retrieverType, retriever.ErrUnknownType)
	}
	return ctor(cfg)
}

// Types returns the registered retriever type names.
func (f *Factory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.ctors))
	for t := range f.ctors {
		out = append(out, t)
	}
	return out
}
