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

// Package intent implements the shared NL -> template match -> parameter
// extraction -> execute -> answer pipeline used by the SQL and HTTP intent
// retrievers. Backends plug in through the Executor interface.
package intent

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/sirupsen/logrus"

	"github.com/schmitech/orbit-sub000/adapter"
	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/domain"
	"github.com/schmitech/orbit-sub000/retriever"
	"github.com/schmitech/orbit-sub000/schema"
	"github.com/schmitech/orbit-sub000/template"
)

const (
	defaultMaxTemplates        = 5
	defaultConfidenceThreshold = 0.4
)

// Executor runs one matched template against its backend. Execution errors
// advance the pipeline to the next candidate template.
type Executor interface {
	Connect(ctx context.Context) error
	Execute(ctx context.Context, t *schema.Template, params map[string]any) ([]map[string]any, error)
	Close(ctx context.Context) error
}

// Options configures an intent retriever.
type Options struct {
	DatasourceName string
	Datasource     config.DatasourceConfig
	Verbose        bool
	Logger         *logrus.Logger

	Adapter  *adapter.IntentAdapter
	Executor Executor

	// Embedder is the preferred query embedder; FallbackEmbedder is tried
	// when the preferred one fails its initialization probe.
	Embedder         embedding.Embedder
	FallbackEmbedder embedding.Embedder

	// Inference powers parameter fallback and response generation. Optional.
	Inference model.BaseChatModel

	// Store is the template vector index, default in-memory.
	Store template.Store

	// ConfidenceThreshold gates template matches, default 0.4.
	ConfidenceThreshold float64
	// MaxTemplates bounds candidates per query, default 5.
	MaxTemplates int

	// ReloadTemplatesOnStart forces re-embedding even when the store is
	// already populated with the right dimension.
	ReloadTemplatesOnStart bool

	Resolver retriever.CollectionResolver
}

// Retriever is the shared intent pipeline.
type Retriever struct {
	retriever.Base

	adapter   *adapter.IntentAdapter
	executor  Executor
	embedder  embedding.Embedder
	fallback  embedding.Embedder
	inference model.BaseChatModel
	store     template.Store

	processor *template.Processor
	extractor *domain.ParameterExtractor
	responder *domain.ResponseGenerator
	reranker  *domain.Reranker

	confidenceThreshold float64
	maxTemplates        int
	reloadOnStart       bool

	initMu      sync.Mutex
	initialized bool
	closed      bool
}

// New builds an intent retriever around a backend executor.
func New(opts Options) (*Retriever, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("[intent.New] adapter not provided: %w", retriever.ErrConfigInvalid)
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("[intent.New] executor not provided: %w", retriever.ErrConfigInvalid)
	}
	if opts.Embedder == nil && opts.FallbackEmbedder == nil {
		return nil, fmt.Errorf("[intent.New] embedder not provided: %w", retriever.ErrConfigInvalid)
	}
	if opts.Store == nil {
		opts.Store = template.NewMemoryStore()
	}
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = defaultConfidenceThreshold
	}
	if opts.MaxTemplates <= 0 {
		opts.MaxTemplates = defaultMaxTemplates
	}

	domainCfg := opts.Adapter.Domain()
	library := opts.Adapter.Library()
	strategy := domain.NewStrategyRegistry(opts.Logger).GetStrategy(domainCfg)

	r := &Retriever{
		Base:                retriever.NewBase(opts.DatasourceName, opts.Datasource, opts.Verbose, opts.Logger),
		adapter:             opts.Adapter,
		executor:            opts.Executor,
		embedder:            opts.Embedder,
		fallback:            opts.FallbackEmbedder,
		inference:           opts.Inference,
		store:               opts.Store,
		processor:           template.NewProcessor(domainCfg),
		extractor:           domain.NewParameterExtractor(domainCfg, strategy, opts.Inference, opts.Logger),
		responder:           domain.NewResponseGenerator(domainCfg, strategy, opts.Inference, opts.Logger),
		reranker:            domain.NewReranker(domainCfg, strategy, library),
		confidenceThreshold: opts.ConfidenceThreshold,
		maxTemplates:        opts.MaxTemplates,
		reloadOnStart:       opts.ReloadTemplatesOnStart,
	}
	r.Resolver = opts.Resolver
	return r, nil
}

// Store exposes the template store for the composite router.
func (r *Retriever) Store() template.Store { return r.store }

// ConfidenceThreshold exposes the match gate for the composite router.
func (r *Retriever) ConfidenceThreshold() float64 { return r.confidenceThreshold }

// MaxTemplates exposes the candidate bound for the composite router.
func (r *Retriever) MaxTemplates() int { return r.maxTemplates }

// Initialize connects the backend, probes the embedder (switching to the
// fallback on failure), reconciles the template store dimension and embeds
// the library. Idempotent after first success.
func (r *Retriever) Initialize(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	if r.initialized {
		return nil
	}
	log := r.Logger().WithField("component", "intent_retriever")

	if err := r.executor.Connect(ctx); err != nil {
		return fmt.Errorf("[Initialize] %s: %w", r.DatasourceName, err)
	}

	dim, err := r.probeEmbedder(ctx)
	if err != nil {
		return fmt.Errorf("[Initialize] %s: %w", r.DatasourceName, err)
	}

	storedDim, err := r.store.Dimension(ctx)
	if err != nil {
		return fmt.Errorf("[Initialize] template store dimension: %w", err)
	}
	dimensionChanged := storedDim != 0 && storedDim != dim
	if dimensionChanged {
		log.WithFields(logrus.Fields{
			"stored_dimension":  storedDim,
			"current_dimension": dim,
		}).Info("embedding dimension changed, rebuilding template store")
		if err := r.store.Clear(ctx); err != nil {
			return fmt.Errorf("[Initialize] clear template store: %w", err)
		}
	}

	count, err := r.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("[Initialize] template store count: %w", err)
	}
	if r.reloadOnStart || count == 0 || dimensionChanged {
		if err := r.loadTemplates(ctx); err != nil {
			return fmt.Errorf("[Initialize] load templates: %w", err)
		}
	} else {
		log.WithField("templates", count).Debug("template store already populated, skipping reload")
	}

	r.initialized = true
	return nil
}

// probeEmbedder verifies the preferred embedder with one call and returns
// the embedding dimension, switching to the fallback on failure.
func (r *Retriever) probeEmbedder(ctx context.Context) (int, error) {
	probe := func(e embedding.Embedder) (int, error) {
		vectors, err := e.EmbedStrings(ctx, []string{"dimension probe"})
		if err != nil {
			return 0, err
		}
		if len(vectors) != 1 || len(vectors[0]) == 0 {
			return 0, fmt.Errorf("embedder returned no vector")
		}
		return len(vectors[0]), nil
	}

	if r.embedder != nil {
		dim, err := probe(r.embedder)
		if err == nil {
			return dim, nil
		}
		if r.fallback == nil {
			return 0, fmt.Errorf("embedder probe failed: %w", err)
		}
		r.Logger().WithError(err).Warn("preferred embedder failed, switching to fallback")
		r.embedder = r.fallback
	} else {
		r.embedder = r.fallback
	}

	dim, err := probe(r.embedder)
	if err != nil {
		return 0, fmt.Errorf("fallback embedder probe failed: %w", err)
	}
	return dim, nil
}

// loadTemplates batch-embeds every template's embedding text and inserts
// the vectors into the store.
func (r *Retriever) loadTemplates(ctx context.Context) error {
	library := r.adapter.Library()
	if len(library.Templates) == 0 {
		return nil
	}

	texts := make([]string, 0, len(library.Templates))
	for i := range library.Templates {
		texts = append(texts, template.EmbeddingText(&library.Templates[i], r.adapter.Domain()))
	}
	vectors, err := r.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed templates: %w", err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embed templates: got %d vectors for %d texts", len(vectors), len(texts))
	}

	entries := make([]template.Entry, 0, len(vectors))
	for i := range library.Templates {
		t := &library.Templates[i]
		entries = append(entries, template.Entry{
			TemplateID:    t.ID,
			Embedding:     vectors[i],
			EmbeddingText: texts[i],
			Metadata: map[string]any{
				"description":   t.Description,
				"result_format": string(t.ResultFormat),
			},
		})
	}
	return r.store.Insert(ctx, entries)
}

// Close shuts the backend down exactly once.
func (r *Retriever) Close(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	if !r.initialized || r.closed {
		return nil
	}
	r.closed = true
	return r.executor.Close(ctx)
}

// SetCollection binds the template collection name. The store itself is
// fixed at construction; the name only labels returned items.
func (r *Retriever) SetCollection(ctx context.Context, name string) error {
	r.BindCollection(name)
	return nil
}

// GetRelevantContext runs the intent pipeline. After a successful
// Initialize it never fails the call: failures produce a single sentinel
// item with confidence 0.
func (r *Retriever) GetRelevantContext(ctx context.Context, req retriever.Request) ([]schema.ContextItem, error) {
	if err := r.Initialize(ctx); err != nil {
		return nil, err
	}
	log := r.Logger().WithFields(logrus.Fields{
		"component": "intent_retriever",
		"backend":   r.DatasourceName,
	})

	if req.Query == "" {
		return r.sentinel(schema.ErrValueNoMatchingTemplate, "Please provide a question."), nil
	}

	vec, err := r.embedQuery(ctx, req.Query)
	if err != nil || len(vec) == 0 {
		log.WithError(err).Error("query embedding failed")
		return r.sentinel(schema.ErrValueNoMatchingTemplate, "I could not process that question."), nil
	}

	matches, err := r.store.SearchSimilar(ctx, vec, r.maxTemplates, r.confidenceThreshold)
	if err != nil {
		log.WithError(err).Error("template search failed")
		return r.sentinel(schema.ErrValueNoMatchingTemplate, "I could not process that question."), nil
	}
	if len(matches) == 0 {
		return r.sentinel(schema.ErrValueNoMatchingTemplate,
			"I could not find a matching query for that question."), nil
	}

	matches = r.reranker.Rerank(matches, req.Query)

	validationFailed := false
	for _, match := range matches {
		if match.Similarity < r.confidenceThreshold {
			continue
		}
		item, ok, failedValidation := r.tryTemplate(ctx, req.Query, match, log)
		if ok {
			return []schema.ContextItem{item}, nil
		}
		if failedValidation {
			validationFailed = true
		}
	}

	if validationFailed {
		return r.sentinel(schema.ErrValueParameterExtractionFail,
			"I understood the question but could not extract the details needed to answer it."), nil
	}
	return r.sentinel(schema.ErrValueNoMatchingTemplate,
		"I could not find a matching query for that question."), nil
}

// tryTemplate attempts one candidate end to end. failedValidation reports
// whether the skip was due to parameter validation, which changes the
// sentinel when every candidate fails.
func (r *Retriever) tryTemplate(ctx context.Context, query string, match schema.TemplateMatch, log *logrus.Entry) (item schema.ContextItem, ok, failedValidation bool) {
	t := r.adapter.Library().Get(match.TemplateID)
	if t == nil {
		log.WithField("template_id", match.TemplateID).Debug("matched template missing from library")
		return schema.ContextItem{}, false, false
	}

	params, err := r.extractor.Extract(ctx, query, t)
	if err != nil {
		log.WithError(err).WithField("template_id", t.ID).Debug("parameter extraction failed")
		return schema.ContextItem{}, false, true
	}
	if valid, errs := r.extractor.Validate(params, t); !valid {
		log.WithFields(logrus.Fields{
			"template_id": t.ID,
			"errors":      errs,
		}).Debug("parameter validation failed")
		return schema.ContextItem{}, false, true
	}

	rows, err := r.executor.Execute(ctx, t, params)
	if err != nil {
		log.WithError(err).WithField("template_id", t.ID).Debug("template execution failed, trying next")
		return schema.ContextItem{}, false, false
	}

	answer, err := r.responder.Generate(ctx, query, rows, t)
	if err != nil {
		log.WithError(err).WithField("template_id", t.ID).Debug("response generation failed")
		answer = r.responder.FormatRows(rows, t)
	}

	result := schema.ContextItem{
		Content:    answer,
		Confidence: match.Similarity,
	}
	result.WithMeta(schema.MetaSource, r.DatasourceName)
	result.WithMeta(schema.MetaTemplateID, t.ID)
	result.WithMeta(schema.MetaQueryIntent, t.Description)
	result.WithMeta(schema.MetaParametersUsed, params)
	result.WithMeta(schema.MetaSimilarity, match.Similarity)
	result.WithMeta(schema.MetaResultCount, len(rows))
	if t.ResultFormat == schema.ResultFormatTable && len(rows) > 0 {
		result.WithMeta(schema.MetaFormattedData, r.responder.FormatRows(rows, t))
	}
	if collection := r.Collection(); collection != "" {
		result.WithMeta(schema.MetaCollection, collection)
	}
	return result, true, false
}

// Processor exposes the template renderer for executors.
func (r *Retriever) Processor() *template.Processor { return r.processor }

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float64, error) {
	vectors, err := r.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("[embedQuery] invalid return length of vector, got=%d, expected=1", len(vectors))
	}
	return vectors[0], nil
}

// sentinel builds the single failure item intent pipelines return instead
// of an error.
func (r *Retriever) sentinel(errValue, content string) []schema.ContextItem {
	item := schema.ContextItem{Content: content, Confidence: 0}
	item.WithMeta(schema.MetaSource, r.DatasourceName)
	item.WithMeta(schema.MetaError, errValue)
	return []schema.ContextItem{item}
}

var _ retriever.Retriever = &Retriever{}
