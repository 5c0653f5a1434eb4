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

// Package vector implements the shared vector retrieval pipeline:
// embed -> search -> score conversion -> threshold -> format -> sort ->
// domain filter -> truncate. Backends plug in through the Searcher interface.
package vector

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/sirupsen/logrus"

	"github.com/schmitech/orbit-sub000/adapter"
	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/retriever"
	"github.com/schmitech/orbit-sub000/schema"
)

// Hit is one raw result from a backend vector search. Score carries either a
// similarity or a distance; the retriever's ScoreConverter decides.
type Hit struct {
	Document string
	Metadata map[string]any
	Score    float64
}

// Searcher is the narrow backend driver contract each vector backend
// implements.
type Searcher interface {
	// Connect establishes the backend connection. Called from Initialize.
	Connect(ctx context.Context) error

	// EnsureCollection verifies the collection exists, optionally creating
	// it when the datasource enables auto creation. A confirmed absence is
	// retriever.ErrCollectionNotFound.
	EnsureCollection(ctx context.Context, name string) error

	// VectorSearch runs a similarity search and returns raw hits.
	VectorSearch(ctx context.Context, collection string, vector []float64, limit int) ([]Hit, error)

	// Close releases the backend handle. Safe to call more than once.
	Close(ctx context.Context) error
}

// dimensionMismatch matches backend error text reporting an embedding
// dimension conflict, e.g. "dimension 384 does not match collection 768" or
// "expected dimension".
var dimensionMismatch = regexp.MustCompile(`(?i)dimension.*(match|expect)`)

// Retriever is the generic vector retriever. Concrete backends construct it
// with their Searcher and ScoreConverter.
type Retriever struct {
	retriever.Base

	searcher Searcher
	adapter  adapter.Adapter
	embedder embedding.Embedder
	convert  ScoreConverter

	embeddingEnabled bool

	initMu      sync.Mutex
	initialized bool
	closed      bool
}

// Options configures a generic vector retriever.
type Options struct {
	DatasourceName string
	Datasource     config.DatasourceConfig
	Verbose        bool
	Logger         *logrus.Logger

	Searcher Searcher
	Adapter  adapter.Adapter
	Embedder embedding.Embedder
	Convert  ScoreConverter

	// EmbeddingEnabled mirrors embedding.enabled from the config; when
	// false every query returns an empty list.
	EmbeddingEnabled bool

	Resolver retriever.CollectionResolver
}

// New builds a generic vector retriever around a backend searcher.
func New(opts Options) (*Retriever, error) {
	if opts.Searcher == nil {
		return nil, fmt.Errorf("[vector.New] searcher not provided: %w", retriever.ErrConfigInvalid)
	}
	if opts.Adapter == nil {
		opts.Adapter = adapter.NewGenericAdapter()
	}
	if opts.Convert == nil {
		opts.Convert = FallbackDistance(opts.Datasource.EffectiveDistanceScaling())
	}
	r := &Retriever{
		Base:             retriever.NewBase(opts.DatasourceName, opts.Datasource, opts.Verbose, opts.Logger),
		searcher:         opts.Searcher,
		adapter:          opts.Adapter,
		embedder:         opts.Embedder,
		convert:          opts.Convert,
		embeddingEnabled: opts.EmbeddingEnabled,
	}
	r.Resolver = opts.Resolver
	return r, nil
}

// Initialize connects the backend. Idempotent: repeated calls after the
// first success are no-ops.
func (r *Retriever) Initialize(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	if r.initialized {
		return nil
	}
	if err := r.searcher.Connect(ctx); err != nil {
		return fmt.Errorf("[Initialize] %s: %w", r.DatasourceName, err)
	}
	r.initialized = true
	return nil
}

// Close releases the backend handle exactly once and is safe on
// uninitialized instances.
func (r *Retriever) Close(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	if !r.initialized || r.closed {
		return nil
	}
	r.closed = true
	return r.searcher.Close(ctx)
}

// SetCollection verifies the collection against the backend and binds it.
func (r *Retriever) SetCollection(ctx context.Context, name string) error {
	if err := r.Initialize(ctx); err != nil {
		return err
	}
	if err := r.searcher.EnsureCollection(ctx, name); err != nil {
		return fmt.Errorf("[SetCollection] %s/%s: %w", r.DatasourceName, name, err)
	}
	r.BindCollection(name)
	return nil
}

// GetRelevantContext runs the vector pipeline for one query. Backend
// failures during search are logged and yield an empty list; a missing
// collection surfaces to the caller.
func (r *Retriever) GetRelevantContext(ctx context.Context, req retriever.Request) ([]schema.ContextItem, error) {
	log := r.Logger().WithFields(logrus.Fields{
		"component": "vector_retriever",
		"backend":   r.DatasourceName,
	})

	collection, err := r.ResolveCollection(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := r.SetCollection(ctx, collection); err != nil {
		return nil, err
	}

	if !r.embeddingEnabled {
		log.Debug("embedding disabled, returning empty context")
		return []schema.ContextItem{}, nil
	}
	if req.Query == "" {
		return []schema.ContextItem{}, nil
	}

	vec, err := r.embedQuery(ctx, req.Query)
	if err != nil {
		log.WithError(err).Error("query embedding failed")
		return []schema.ContextItem{}, nil
	}
	if len(vec) == 0 {
		return []schema.ContextItem{}, nil
	}

	hits, err := r.searcher.VectorSearch(ctx, collection, vec, r.Datasource.EffectiveMaxResults())
	if err != nil {
		if dimensionMismatch.MatchString(err.Error()) {
			log.WithFields(logrus.Fields{
				"collection":      collection,
				"query_dimension": len(vec),
			}).WithError(err).Error("embedding dimension mismatch with collection")
			return []schema.ContextItem{}, nil
		}
		log.WithError(err).Error("vector search failed")
		return []schema.ContextItem{}, nil
	}

	threshold := r.Datasource.ConfidenceThreshold
	if r.Datasource.RelevanceThreshold > threshold {
		threshold = r.Datasource.RelevanceThreshold
	}

	items := make([]schema.ContextItem, 0, len(hits))
	for _, hit := range hits {
		confidence := r.convert(hit.Score)
		if confidence < threshold {
			continue
		}
		item := r.adapter.FormatDocument(hit.Document, hit.Metadata)
		item.Confidence = confidence
		item.WithMeta(schema.MetaSource, r.DatasourceName)
		item.WithMeta(schema.MetaCollection, collection)
		item.WithMeta(schema.MetaSimilarity, confidence)
		items = append(items, item)
	}

	retriever.SortByConfidence(items)
	items = r.adapter.ApplyDomainFiltering(items, req.Query)
	retriever.SortByConfidence(items)
	items = retriever.Truncate(items, r.Datasource.EffectiveReturnResults())

	log.WithFields(logrus.Fields{
		"collection": collection,
		"results":    len(items),
	}).Debug("vector retrieval complete")
	return items, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float64, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("[embedQuery] embedder not provided: %w", retriever.ErrConfigInvalid)
	}
	vectors, err := r.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("[embedQuery] invalid return length of vector, got=%d, expected=1", len(vectors))
	}
	return vectors[0], nil
}

var _ retriever.Retriever = &Retriever{}
