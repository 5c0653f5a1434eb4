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

package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitech/orbit-sub000/adapter"
	"github.com/schmitech/orbit-sub000/retriever"
	"github.com/schmitech/orbit-sub000/schema"
	"github.com/schmitech/orbit-sub000/template"
)

// fakeEmbedder maps texts mentioning "customer" onto one axis and everything
// else onto the other, so match outcomes are deterministic.
type fakeEmbedder struct {
	fail  bool
	calls int
}

func (f *fakeEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("embedder offline")
	}
	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		if strings.Contains(strings.ToLower(text), "customer") {
			out = append(out, []float64{1, 0})
		} else {
			out = append(out, []float64{0, 1})
		}
	}
	return out, nil
}

type fakeExecutor struct {
	connectErr error
	rows       map[string][]map[string]any
	errs       map[string]error

	connects int
	closes   int
	executed []string
}

func (f *fakeExecutor) Connect(ctx context.Context) error {
	f.connects++
	return f.connectErr
}

func (f *fakeExecutor) Execute(ctx context.Context, t *schema.Template, params map[string]any) ([]map[string]any, error) {
	f.executed = append(f.executed, t.ID)
	if err := f.errs[t.ID]; err != nil {
		return nil, err
	}
	return f.rows[t.ID], nil
}

func (f *fakeExecutor) Close(ctx context.Context) error {
	f.closes++
	return nil
}

func intentDomain() *schema.DomainConfig {
	return &schema.DomainConfig{
		DomainName: "customer_orders",
		DomainType: "ecommerce",
		Entities: map[string]schema.Entity{
			"customer": {Name: "customer", EntityType: "primary", TableName: "customers", PrimaryKey: "id"},
			"order":    {Name: "order", EntityType: "secondary", TableName: "orders", PrimaryKey: "id"},
		},
		Fields: map[string]map[string]schema.Field{
			"customer": {
				"id":   {Name: "id", DataType: "integer", SemanticType: "identifier"},
				"name": {Name: "name", DataType: "string", SemanticType: "person_name"},
			},
		},
	}
}

func customerOrdersTemplate() schema.Template {
	return schema.Template{
		ID:          "customer_orders",
		Description: "Find orders for a customer",
		SQLTemplate: "SELECT * FROM orders WHERE customer_id = %(customer_id)s",
		Parameters: []schema.Parameter{
			{Name: "customer_id", Type: "integer", Required: true, Entity: "customer", Field: "id"},
		},
		ResultFormat: schema.ResultFormatTable,
	}
}

func newIntentRetriever(t *testing.T, opts Options, templates ...schema.Template) *Retriever {
	t.Helper()
	opts.DatasourceName = "sqlite"
	opts.Adapter = adapter.NewIntentAdapterFromParts(intentDomain(),
		&schema.TemplateLibrary{Templates: templates})
	if opts.Executor == nil {
		opts.Executor = &fakeExecutor{}
	}
	if opts.Embedder == nil && opts.FallbackEmbedder == nil {
		opts.Embedder = &fakeEmbedder{}
	}
	r, err := New(opts)
	require.NoError(t, err)
	return r
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, retriever.ErrConfigInvalid)

	_, err = New(Options{Adapter: adapter.NewIntentAdapterFromParts(intentDomain(), &schema.TemplateLibrary{})})
	assert.ErrorIs(t, err, retriever.ErrConfigInvalid)

	_, err = New(Options{
		Adapter:  adapter.NewIntentAdapterFromParts(intentDomain(), &schema.TemplateLibrary{}),
		Executor: &fakeExecutor{},
	})
	assert.ErrorIs(t, err, retriever.ErrConfigInvalid)
}

func TestIntentHappyPath(t *testing.T) {
	exec := &fakeExecutor{
		rows: map[string][]map[string]any{
			"customer_orders": {
				{"id": 1, "total": 120.5},
				{"id": 2, "total": 42.0},
			},
		},
	}
	r := newIntentRetriever(t, Options{Executor: exec}, customerOrdersTemplate())

	items, err := r.GetRelevantContext(context.Background(), retriever.Request{
		Query: "show orders for customer 42",
	})
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Greater(t, item.Confidence, 0.9)
	assert.Equal(t, "customer_orders", item.Metadata[schema.MetaTemplateID])
	assert.Equal(t, "Find orders for a customer", item.Metadata[schema.MetaQueryIntent])
	assert.Equal(t, "sqlite", item.Metadata[schema.MetaSource])
	assert.Equal(t, 2, item.Metadata[schema.MetaResultCount])

	params, ok := item.Metadata[schema.MetaParametersUsed].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(42), params["customer_id"])

	formatted, ok := item.Metadata[schema.MetaFormattedData].(string)
	require.True(t, ok)
	assert.Contains(t, formatted, "120.50")

	assert.Equal(t, []string{"customer_orders"}, exec.executed)
	assert.Equal(t, 1, exec.connects)
}

func TestIntentNoMatchingTemplate(t *testing.T) {
	r := newIntentRetriever(t, Options{}, customerOrdersTemplate())

	items, err := r.GetRelevantContext(context.Background(), retriever.Request{
		Query: "what is the meaning of life",
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Zero(t, items[0].Confidence)
	assert.Equal(t, schema.ErrValueNoMatchingTemplate, items[0].Metadata[schema.MetaError])
}

func TestIntentEmptyQuery(t *testing.T) {
	r := newIntentRetriever(t, Options{}, customerOrdersTemplate())

	items, err := r.GetRelevantContext(context.Background(), retriever.Request{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, schema.ErrValueNoMatchingTemplate, items[0].Metadata[schema.MetaError])
}

func TestIntentParameterExtractionSentinel(t *testing.T) {
	r := newIntentRetriever(t, Options{}, customerOrdersTemplate())

	// Matches the template but carries no extractable customer id.
	items, err := r.GetRelevantContext(context.Background(), retriever.Request{
		Query: "show orders for my customer",
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Zero(t, items[0].Confidence)
	assert.Equal(t, schema.ErrValueParameterExtractionFail, items[0].Metadata[schema.MetaError])
}

func TestIntentExecutionErrorTriesNextTemplate(t *testing.T) {
	second := schema.Template{
		ID:           "customer_order_count",
		Description:  "Count orders for a customer",
		SQLTemplate:  "SELECT COUNT(*) AS order_count FROM orders",
		ResultFormat: schema.ResultFormatSummary,
	}
	exec := &fakeExecutor{
		errs: map[string]error{"customer_orders": errors.New("table locked")},
		rows: map[string][]map[string]any{
			"customer_order_count": {{"order_count": 7}},
		},
	}
	r := newIntentRetriever(t, Options{Executor: exec}, customerOrdersTemplate(), second)

	items, err := r.GetRelevantContext(context.Background(), retriever.Request{
		Query: "show orders for customer 42",
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "customer_order_count", items[0].Metadata[schema.MetaTemplateID])
	assert.Equal(t, []string{"customer_orders", "customer_order_count"}, exec.executed)
}

func TestInitializeSkipsReloadWhenPopulated(t *testing.T) {
	ctx := context.Background()
	store := template.NewMemoryStore()
	require.NoError(t, store.Insert(ctx, []template.Entry{
		{TemplateID: "preloaded", Embedding: []float64{1, 0}},
	}))

	embedder := &fakeEmbedder{}
	r := newIntentRetriever(t, Options{Store: store, Embedder: embedder}, customerOrdersTemplate())
	require.NoError(t, r.Initialize(ctx))

	// Only the dimension probe hit the embedder; the store kept its contents.
	assert.Equal(t, 1, embedder.calls)
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInitializeReloadOnStart(t *testing.T) {
	ctx := context.Background()
	store := template.NewMemoryStore()
	require.NoError(t, store.Insert(ctx, []template.Entry{
		{TemplateID: "preloaded", Embedding: []float64{1, 0}},
	}))

	r := newIntentRetriever(t, Options{Store: store, ReloadTemplatesOnStart: true}, customerOrdersTemplate())
	require.NoError(t, r.Initialize(ctx))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInitializeRebuildsOnDimensionChange(t *testing.T) {
	ctx := context.Background()
	store := template.NewMemoryStore()
	require.NoError(t, store.Insert(ctx, []template.Entry{
		{TemplateID: "stale", Embedding: []float64{1, 0, 0}},
	}))

	r := newIntentRetriever(t, Options{Store: store}, customerOrdersTemplate())
	require.NoError(t, r.Initialize(ctx))

	dim, err := store.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, dim)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	matches, err := store.SearchSimilar(ctx, []float64{1, 0}, 10, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "customer_orders", matches[0].TemplateID)
}

func TestEmbedderFallbackSwitch(t *testing.T) {
	exec := &fakeExecutor{
		rows: map[string][]map[string]any{"customer_orders": {{"id": 1}}},
	}
	fallback := &fakeEmbedder{}
	r := newIntentRetriever(t, Options{
		Executor:         exec,
		Embedder:         &fakeEmbedder{fail: true},
		FallbackEmbedder: fallback,
	}, customerOrdersTemplate())

	items, err := r.GetRelevantContext(context.Background(), retriever.Request{
		Query: "orders for customer 7",
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "customer_orders", items[0].Metadata[schema.MetaTemplateID])
	assert.Greater(t, fallback.calls, 0)
}

func TestInitializeConnectFailure(t *testing.T) {
	exec := &fakeExecutor{connectErr: errors.New("dial refused")}
	r := newIntentRetriever(t, Options{Executor: exec}, customerOrdersTemplate())

	err := r.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial refused")
}

func TestCloseOnce(t *testing.T) {
	exec := &fakeExecutor{}
	r := newIntentRetriever(t, Options{Executor: exec}, customerOrdersTemplate())
	ctx := context.Background()

	// Close before Initialize is a no-op.
	require.NoError(t, r.Close(ctx))
	assert.Zero(t, exec.closes)

	require.NoError(t, r.Initialize(ctx))
	require.NoError(t, r.Close(ctx))
	require.NoError(t, r.Close(ctx))
	assert.Equal(t, 1, exec.closes)
}

func TestSetCollectionLabelsItems(t *testing.T) {
	exec := &fakeExecutor{
		rows: map[string][]map[string]any{"customer_orders": {{"id": 1}}},
	}
	r := newIntentRetriever(t, Options{Executor: exec}, customerOrdersTemplate())
	ctx := context.Background()

	require.NoError(t, r.SetCollection(ctx, "support_templates"))
	items, err := r.GetRelevantContext(ctx, retriever.Request{Query: "orders for customer 7"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "support_templates", items[0].Metadata[schema.MetaCollection])
}
