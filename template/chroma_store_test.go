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

package template

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitech/orbit-sub000/internal/chromaclient"
)

func newTestChromaStore(t *testing.T) *ChromaStore {
	t.Helper()
	client, err := chromaclient.NewPersistentClient(t.TempDir())
	require.NoError(t, err)
	return NewChromaStore(client, "intent_templates")
}

func TestChromaStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestChromaStore(t)

	// Empty store reports zero without erroring.
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	dim, err := store.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, dim)

	err = store.Insert(ctx, []Entry{
		{
			TemplateID:    "find_customer",
			Embedding:     []float64{1, 0, 0},
			EmbeddingText: "find a customer by name",
			Metadata:      map[string]any{"description": "find a customer"},
		},
		{
			TemplateID:    "orders_total",
			Embedding:     []float64{0, 1, 0},
			EmbeddingText: "total value of orders",
			Metadata:      map[string]any{"description": "sum orders"},
		},
	})
	require.NoError(t, err)

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	dim, err = store.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dim)

	matches, err := store.SearchSimilar(ctx, []float64{1, 0, 0}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "find_customer", matches[0].TemplateID)
	assert.Equal(t, "find a customer by name", matches[0].EmbeddingText)
	assert.Equal(t, "find a customer", matches[0].TemplateData["description"])
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
}

func TestChromaStoreClear(t *testing.T) {
	ctx := context.Background()
	store := newTestChromaStore(t)

	// Clearing a missing collection is not an error.
	require.NoError(t, store.Clear(ctx))

	require.NoError(t, store.Insert(ctx, []Entry{
		{TemplateID: "a", Embedding: []float64{1, 0}},
	}))
	require.NoError(t, store.Clear(ctx))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
