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

package retriever

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/schema"
)

// Base carries the state every concrete retriever shares: the datasource
// identity and config, the bound collection and the logger. Concrete
// retrievers embed Base and use ResolveCollection inside GetRelevantContext.
type Base struct {
	DatasourceName string
	Datasource     config.DatasourceConfig
	Resolver       CollectionResolver

	mu         sync.RWMutex
	collection string

	log *logrus.Logger
}

// NewBase builds a Base. A nil logger falls back to the standard logger, or
// to an owned logger when verbose would change its level; verbose switches
// the logger to debug level.
func NewBase(name string, ds config.DatasourceConfig, verbose bool, log *logrus.Logger) Base {
	if log == nil {
		if verbose {
			log = logrus.New()
		} else {
			log = logrus.StandardLogger()
		}
	}
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return Base{DatasourceName: name, Datasource: ds, log: log}
}

// Logger returns the configured logger.
func (b *Base) Logger() *logrus.Logger {
	if b.log == nil {
		return logrus.StandardLogger()
	}
	return b.log
}

// Collection returns the currently bound collection name.
func (b *Base) Collection() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.collection
}

// BindCollection records the collection name after the backend confirmed it.
func (b *Base) BindCollection(name string) {
	b.mu.Lock()
	b.collection = name
	b.mu.Unlock()
}

// ResolveCollection applies the resolution order: explicit request value,
// API-key derived value, datasource default. An empty result is ErrNoCollection.
func (b *Base) ResolveCollection(ctx context.Context, req Request) (string, error) {
	if req.Collection != "" {
		return req.Collection, nil
	}
	if req.APIKey != "" && b.Resolver != nil {
		name, err := b.Resolver.ResolveCollection(ctx, req.APIKey)
		if err != nil {
			return "", fmt.Errorf("[ResolveCollection] api key resolution failed: %w", err)
		}
		if name != "" {
			return name, nil
		}
	}
	if b.Datasource.Collection != "" {
		return b.Datasource.Collection, nil
	}
	return "", ErrNoCollection
}

// SortByConfidence orders items by confidence descending, stable so equal
// scores keep backend order.
func SortByConfidence(items []schema.ContextItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Confidence > items[j].Confidence
	})
}

// Truncate limits items to n, tolerating n <= 0 as "no limit reached yet".
func Truncate(items []schema.ContextItem, n int) []schema.ContextItem {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
