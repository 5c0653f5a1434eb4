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

package qdrant

import (
	"context"
	"testing"

	qdrant "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/retriever"
)

func TestNewRetrieverValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewRetriever(ctx, nil)
	assert.ErrorIs(t, err, retriever.ErrConfigInvalid)

	_, err = NewRetriever(ctx, &RetrieverConfig{})
	assert.ErrorIs(t, err, retriever.ErrConfigInvalid)

	r, err := NewRetriever(ctx, &RetrieverConfig{
		Datasource: config.DatasourceConfig{Host: "localhost", Collection: "docs"},
	})
	require.NoError(t, err)
	assert.Equal(t, "qdrant", r.DatasourceName)
}

func TestPooledClientSharesChannel(t *testing.T) {
	ds := config.DatasourceConfig{Host: "qdrant.internal", Port: 6334}

	first, err := pooledClient(ds)
	require.NoError(t, err)
	second, err := pooledClient(ds)
	require.NoError(t, err)
	assert.Same(t, first, second)

	// A different endpoint gets its own client.
	other, err := pooledClient(config.DatasourceConfig{Host: "qdrant.internal", Port: 7334})
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}

func TestValueToAny(t *testing.T) {
	assert.Equal(t, "open", valueToAny(qdrant.NewValueString("open")))
	assert.Equal(t, int64(42), valueToAny(qdrant.NewValueInt(42)))
	assert.Equal(t, 0.5, valueToAny(qdrant.NewValueDouble(0.5)))
	assert.Equal(t, true, valueToAny(qdrant.NewValueBool(true)))
	assert.Nil(t, valueToAny(qdrant.NewValueNull()))

	list := valueToAny(qdrant.NewValueList(&qdrant.ListValue{Values: []*qdrant.Value{
		qdrant.NewValueString("a"),
		qdrant.NewValueInt(1),
	}}))
	assert.Equal(t, []any{"a", int64(1)}, list)

	nested := valueToAny(qdrant.NewValueStruct(&qdrant.Struct{Fields: map[string]*qdrant.Value{
		"city": qdrant.NewValueString("Boston"),
	}}))
	assert.Equal(t, map[string]any{"city": "Boston"}, nested)
}
