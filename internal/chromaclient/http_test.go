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

package chromaclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientCollectionFlow(t *testing.T) {
	ctx := context.Background()

	var gotAdd map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"nanosecond heartbeat": 1})
	})
	mux.HandleFunc("/api/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["get_or_create"])
		_ = json.NewEncoder(w).Encode(collectionInfo{
			ID:       "col-1",
			Name:     body["name"].(string),
			Metadata: map[string]any{"hnsw:space": "cosine"},
		})
	})
	mux.HandleFunc("/api/v1/collections/docs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(collectionInfo{ID: "col-1", Name: "docs"})
		case http.MethodDelete:
			w.WriteHeader(http.StatusOK)
		}
	})
	mux.HandleFunc("/api/v1/collections/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/api/v1/collections/col-1/add", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotAdd))
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/api/v1/collections/col-1/count", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("2"))
	})
	mux.HandleFunc("/api/v1/collections/col-1/query", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(queryResponse{
			IDs:       [][]string{{"a", "b"}},
			Documents: [][]string{{"doc a", "doc b"}},
			Metadatas: [][]map[string]any{{{"k": "va"}, {"k": "vb"}}},
			Distances: [][]float64{{0.1, 0.6}},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	client := NewHTTPClient(srv.URL, time.Second)

	require.NoError(t, client.Heartbeat(ctx))

	_, err := client.GetCollection(ctx, "missing")
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	col, err := client.GetOrCreateCollection(ctx, "docs", map[string]any{"hnsw:space": "cosine"})
	require.NoError(t, err)
	assert.Equal(t, "docs", col.Name())
	assert.Equal(t, "cosine", col.Metadata()["hnsw:space"])

	err = col.Add(ctx, []string{"a"}, [][]float64{{1, 0}}, []string{"doc a"}, []map[string]any{{"k": "va"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, gotAdd["ids"])

	count, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := col.Query(ctx, []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "doc b", results[1].Document)
	assert.Equal(t, 0.6, results[1].Distance)
	assert.Equal(t, "vb", results[1].Metadata["k"])

	require.NoError(t, client.DeleteCollection(ctx, "docs"))
	require.NoError(t, client.Close())
}

func TestHTTPClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, time.Second)
	err := client.Heartbeat(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
