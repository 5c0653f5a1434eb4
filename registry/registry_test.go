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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/retriever"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := New(nil)

	r.Register("retriever", "sqlite", "intent", Entry{
		Implementation: "sqlite_intent",
		DefaultConfig:  map[string]any{"confidence_threshold": 0.4},
	})

	entry, ok := r.Get("retriever", "sqlite", "intent")
	require.True(t, ok)
	assert.Equal(t, "sqlite_intent", entry.Implementation)

	_, ok = r.Get("retriever", "sqlite", "qa")
	assert.False(t, ok)
	_, ok = r.Get("retriever", "mysql", "intent")
	assert.False(t, ok)
	_, ok = r.Get("datasource", "sqlite", "intent")
	assert.False(t, ok)
}

func TestRegistryCreateMergesConfig(t *testing.T) {
	r := New(nil)

	var got map[string]any
	r.Register("retriever", "sqlite", "intent", Entry{
		Implementation: "sqlite_intent",
		DefaultConfig:  map[string]any{"confidence_threshold": 0.4, "max_results": 10},
		Construct: func(cfg map[string]any) (any, error) {
			got = cfg
			return "built", nil
		},
	})

	out, err := r.Create("retriever", "sqlite", "intent", map[string]any{"max_results": 3})
	require.NoError(t, err)
	assert.Equal(t, "built", out)
	assert.Equal(t, 0.4, got["confidence_threshold"])
	assert.Equal(t, 3, got["max_results"])
}

func TestRegistryCreateFallback(t *testing.T) {
	r := New(nil)

	r.RegisterFallback("retriever", "postgres", "intent", func(cfg map[string]any) (any, error) {
		return "conventional", nil
	})

	out, err := r.Create("retriever", "postgres", "intent", nil)
	require.NoError(t, err)
	assert.Equal(t, "conventional", out)

	_, err = r.Create("retriever", "postgres", "missing", nil)
	assert.ErrorIs(t, err, retriever.ErrNotFound)
}

func TestRegistryLoadFromConfig(t *testing.T) {
	r := New(nil)
	disabled := false

	r.LoadFromConfig([]config.AdapterEntry{
		{Type: "retriever", Datasource: "sqlite", Adapter: "intent", Implementation: "sqlite_intent"},
		{Type: "retriever", Datasource: "chroma", Adapter: "qa", Implementation: "chroma_qa", Enabled: &disabled},
		{Type: "retriever", Datasource: "", Adapter: "broken", Implementation: "x"},
	})

	_, ok := r.Get("retriever", "sqlite", "intent")
	assert.True(t, ok)
	_, ok = r.Get("retriever", "chroma", "qa")
	assert.False(t, ok)
	_, ok = r.Get("retriever", "", "broken")
	assert.False(t, ok)
}

func TestFactoryCreateRetriever(t *testing.T) {
	f := NewFactory(nil)
	RegisterBuiltinRetrievers(f)

	assert.ElementsMatch(t,
		[]string{"chroma", "qdrant", "pinecone", "redis", "elasticsearch", "milvus"},
		f.Types())

	r, err := f.CreateRetriever("chroma", map[string]any{
		"datasource_name": "chroma_main",
		"datasource":      map[string]any{"host": "localhost", "port": 8000},
	})
	require.NoError(t, err)
	assert.NotNil(t, r)

	_, err = f.CreateRetriever("faiss", nil)
	assert.ErrorIs(t, err, retriever.ErrUnknownType)
}

func TestCommonFrom(t *testing.T) {
	common, err := commonFrom(map[string]any{
		"datasource_name": "qdrant_main",
		"verbose":         true,
		"datasource": config.DatasourceConfig{
			Host: "qdrant.internal", Port: 6334, Collection: "docs",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "qdrant_main", common.name)
	assert.True(t, common.verbose)
	assert.Equal(t, "docs", common.ds.Collection)

	common, err = commonFrom(map[string]any{
		"datasource": map[string]any{
			"host":                 "redis.internal",
			"port":                 6379,
			"confidence_threshold": 0.3,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "redis.internal", common.ds.Host)
	assert.Equal(t, 6379, common.ds.Port)
	assert.Equal(t, 0.3, common.ds.ConfidenceThreshold)

	_, err = commonFrom(map[string]any{"datasource": 42})
	assert.ErrorIs(t, err, retriever.ErrConfigInvalid)
}
