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

// Package composite routes a query across multiple intent retrievers and
// delegates execution to the one owning the best-matching template.
package composite

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/retriever"
	"github.com/schmitech/orbit-sub000/schema"
	"github.com/schmitech/orbit-sub000/template"
)

const defaultSearchTimeout = 5 * time.Second

// Child is the view the router needs of an intent retriever: its template
// store for probing and the full retriever contract for delegation.
type Child interface {
	retriever.Retriever
	Store() template.Store
	ConfidenceThreshold() float64
	MaxTemplates() int
}

// AdapterManager resolves child retrievers by name. The manager owns the
// children's lifecycle; the router never closes them.
type AdapterManager interface {
	GetAdapter(name string) (Child, bool)
}

// Options configures the composite router.
type Options struct {
	DatasourceName string
	Datasource     config.DatasourceConfig
	Verbose        bool
	Logger         *logrus.Logger

	Manager    AdapterManager
	ChildNames []string
	Embedder   embedding.Embedder

	// ConfidenceThreshold gates the winning match; zero means "use the
	// winning child's own threshold".
	ConfidenceThreshold float64
	// SearchTimeout bounds each child's store probe, default 5s. A timed
	// out child contributes no matches.
	SearchTimeout time.Duration
}

// Retriever fans the query across children's template stores, picks the
// single best match and delegates to its owner.
type Retriever struct {
	retriever.Base

	manager    AdapterManager
	childNames []string
	embedder   embedding.Embedder

	confidenceThreshold float64
	searchTimeout       time.Duration
}

// New builds a composite router.
func New(opts Options) (*Retriever, error) {
	if opts.Manager == nil {
		return nil, fmt.Errorf("[composite.New] adapter manager not provided: %w", retriever.ErrConfigInvalid)
	}
	if len(opts.ChildNames) == 0 {
		return nil, fmt.Errorf("[composite.New] no child adapters configured: %w", retriever.ErrConfigInvalid)
	}
	if opts.Embedder == nil {
		return nil, fmt.Errorf("[composite.New] embedder not provided: %w", retriever.ErrConfigInvalid)
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = defaultSearchTimeout
	}
	return &Retriever{
		Base:                retriever.NewBase(opts.DatasourceName, opts.Datasource, opts.Verbose, opts.Logger),
		manager:             opts.Manager,
		childNames:          opts.ChildNames,
		embedder:            opts.Embedder,
		confidenceThreshold: opts.ConfidenceThreshold,
		searchTimeout:       opts.SearchTimeout,
	}, nil
}

// Initialize verifies every configured child resolves.
func (r *Retriever) Initialize(ctx context.Context) error {
	for _, name := range r.childNames {
		if _, ok := r.manager.GetAdapter(name); !ok {
			return fmt.Errorf("[Initialize] child adapter %q not found: %w", name, retriever.ErrConfigInvalid)
		}
	}
	return nil
}

// Close releases nothing: the children belong to the manager.
func (r *Retriever) Close(ctx context.Context) error { return nil }

// SetCollection records the name for item metadata only.
func (r *Retriever) SetCollection(ctx context.Context, name string) error {
	r.BindCollection(name)
	return nil
}

type childMatches struct {
	name    string
	matches []schema.TemplateMatch
}

// GetRelevantContext probes every child's template store concurrently,
// routes to the best match's owner and tags the returned items with the
// routing decision.
func (r *Retriever) GetRelevantContext(ctx context.Context, req retriever.Request) ([]schema.ContextItem, error) {
	log := r.Logger().WithField("component", "composite_retriever")

	if req.Query == "" {
		return r.noMatch("Please provide a question.", nil, 0), nil
	}

	vectors, err := r.embedder.EmbedStrings(ctx, []string{req.Query})
	if err != nil || len(vectors) != 1 {
		log.WithError(err).Error("query embedding failed")
		return r.noMatch("I could not process that question.", nil, 0), nil
	}
	vector := vectors[0]

	var (
		group   errgroup.Group
		mu      sync.Mutex
		results []childMatches
	)
	searched := make([]string, 0, len(r.childNames))
	for _, name := range r.childNames {
		child, ok := r.manager.GetAdapter(name)
		if !ok {
			log.WithField("adapter", name).Warn("child adapter missing, skipping")
			continue
		}
		searched = append(searched, name)
		name, child := name, child
		group.Go(func() error {
			searchCtx, cancel := context.WithTimeout(ctx, r.searchTimeout)
			defer cancel()
			matches, err := child.Store().SearchSimilar(searchCtx, vector, child.MaxTemplates(), child.ConfidenceThreshold())
			if err != nil {
				// Timeouts and backend errors alike contribute nothing.
				log.WithError(err).WithField("adapter", name).Debug("child template search failed")
				return nil
			}
			for i := range matches {
				matches[i].SourceAdapter = name
			}
			mu.Lock()
			results = append(results, childMatches{name: name, matches: matches})
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	var merged []schema.TemplateMatch
	for _, cm := range results {
		merged = append(merged, cm.matches...)
	}
	if len(merged) == 0 {
		return r.noMatch("I could not find a matching query for that question.", searched, 0), nil
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})

	best := merged[0]
	winner, _ := r.manager.GetAdapter(best.SourceAdapter)
	threshold := r.confidenceThreshold
	if threshold <= 0 {
		threshold = winner.ConfidenceThreshold()
	}
	if best.Similarity < threshold {
		return r.noMatch("I could not find a confident match for that question.", searched, len(merged)), nil
	}

	items, err := winner.GetRelevantContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("[GetRelevantContext] delegate to %s: %w", best.SourceAdapter, err)
	}
	routing := map[string]any{
		"selected_adapter":    best.SourceAdapter,
		"template_id":         best.TemplateID,
		"similarity_score":    best.Similarity,
		"adapters_searched":   searched,
		"total_matches_found": len(merged),
	}
	for i := range items {
		items[i].WithMeta(schema.MetaCompositeRouting, routing)
	}
	return items, nil
}

// noMatch builds the structured below-threshold result.
func (r *Retriever) noMatch(content string, searched []string, total int) []schema.ContextItem {
	item := schema.ContextItem{Content: content, Confidence: 0}
	item.WithMeta(schema.MetaSource, r.DatasourceName)
	item.WithMeta(schema.MetaError, schema.ErrValueNoMatchingTemplate)
	if searched != nil {
		item.WithMeta(schema.MetaCompositeRouting, map[string]any{
			"selected_adapter":    "",
			"template_id":         "",
			"similarity_score":    0.0,
			"adapters_searched":   searched,
			"total_matches_found": total,
		})
	}
	return []schema.ContextItem{item}
}

var _ retriever.Retriever = &Retriever{}
