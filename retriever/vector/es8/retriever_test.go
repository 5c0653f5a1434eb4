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

package es8

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/retriever"
)

// mockTransport answers the typed client by request path so searcher calls
// can run without a server.
type mockTransport struct {
	respond func(req *http.Request) (int, string)
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	status, body := m.respond(req)
	return &http.Response{
		StatusCode: status,
		Header: http.Header{
			"X-Elastic-Product": []string{"Elasticsearch"},
			"Content-Type":      []string{"application/json"},
		},
		Body:    io.NopCloser(strings.NewReader(body)),
		Request: req,
	}, nil
}

func mockClient(t *testing.T, respond func(req *http.Request) (int, string)) *elasticsearch.TypedClient {
	t.Helper()
	client, err := elasticsearch.NewTypedClient(elasticsearch.Config{
		Addresses: []string{"http://localhost:9200"},
		Transport: &mockTransport{respond: respond},
	})
	require.NoError(t, err)
	return client
}

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
	assert.Equal(t, "elasticsearch", r.DatasourceName)
}

func TestEnsureCollection(t *testing.T) {
	s := &searcher{
		client: mockClient(t, func(req *http.Request) (int, string) {
			if strings.Contains(req.URL.Path, "present") {
				return http.StatusOK, ""
			}
			return http.StatusNotFound, ""
		}),
		vectorField:  defaultVectorField,
		contentField: defaultContentField,
	}

	assert.NoError(t, s.EnsureCollection(context.Background(), "present_docs"))
	assert.ErrorIs(t, s.EnsureCollection(context.Background(), "missing_docs"), retriever.ErrCollectionNotFound)
}

func TestVectorSearchConvertsHits(t *testing.T) {
	const response = `{
		"took": 2,
		"timed_out": false,
		"_shards": {"total": 1, "successful": 1, "skipped": 0, "failed": 0},
		"hits": {
			"total": {"value": 2, "relation": "eq"},
			"hits": [
				{
					"_index": "docs",
					"_id": "1",
					"_score": 0.91,
					"_source": {"content": "refund policy text", "embedding": [0.1, 0.2], "topic": "refunds"}
				},
				{
					"_index": "docs",
					"_id": "2",
					"_score": 0.42,
					"_source": {"topic": "shipping"}
				}
			]
		}
	}`

	var gotPath string
	s := &searcher{
		client: mockClient(t, func(req *http.Request) (int, string) {
			gotPath = req.URL.Path
			return http.StatusOK, response
		}),
		vectorField:  defaultVectorField,
		contentField: defaultContentField,
	}

	hits, err := s.VectorSearch(context.Background(), "docs", []float64{0.1, 0.2}, 5)
	require.NoError(t, err)
	assert.Equal(t, "/docs/_search", gotPath)

	require.Len(t, hits, 2)
	assert.Equal(t, "refund policy text", hits[0].Document)
	assert.InDelta(t, 0.91, hits[0].Score, 1e-6)
	// Vector and content fields never leak into the metadata.
	assert.Equal(t, map[string]any{"topic": "refunds"}, hits[0].Metadata)

	assert.Equal(t, "", hits[1].Document)
	assert.Equal(t, "shipping", hits[1].Metadata["topic"])
}

func TestConnectUnavailable(t *testing.T) {
	s := &searcher{
		client: mockClient(t, func(req *http.Request) (int, string) {
			return http.StatusServiceUnavailable, `{"error": "unavailable"}`
		}),
	}
	assert.ErrorIs(t, s.Connect(context.Background()), retriever.ErrBackendUnavailable)
}
