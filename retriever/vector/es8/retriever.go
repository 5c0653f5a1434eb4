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

// Package es8 retrieves documents from Elasticsearch 8 using approximate KNN
// search over a dense vector field.
package es8

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/core/search"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/sirupsen/logrus"

	"github.com/schmitech/orbit-sub000/adapter"
	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/retriever"
	"github.com/schmitech/orbit-sub000/retriever/vector"
)

const (
	defaultVectorField  = "embedding"
	defaultContentField = "content"
	minNumCandidates    = 100
)

// RetrieverConfig configures the Elasticsearch retriever.
type RetrieverConfig struct {
	// DatasourceName is the key of the datasource in the configuration,
	// default="elasticsearch".
	DatasourceName string
	// Datasource carries node address, credentials and retrieval thresholds.
	// The vector and content field names come from the "vector_field" and
	// "content_field" extra keys.
	Datasource config.DatasourceConfig

	// Client overrides the typed client built from the datasource.
	Client *elasticsearch.TypedClient

	// Embedder vectorizes queries. Required when embedding is enabled.
	Embedder embedding.Embedder
	// EmbeddingEnabled mirrors embedding.enabled from the configuration.
	EmbeddingEnabled bool

	// Adapter shapes raw documents into context items, default generic.
	Adapter adapter.Adapter

	Verbose bool
	Logger  *logrus.Logger
}

// NewRetriever builds an Elasticsearch-backed vector retriever.
func NewRetriever(ctx context.Context, conf *RetrieverConfig) (*vector.Retriever, error) {
	if conf == nil {
		return nil, fmt.Errorf("[NewRetriever] es8 config is nil: %w", retriever.ErrConfigInvalid)
	}
	if conf.DatasourceName == "" {
		conf.DatasourceName = "elasticsearch"
	}
	client := conf.Client
	if client == nil {
		if conf.Datasource.Host == "" {
			return nil, fmt.Errorf("[NewRetriever] es node not provided: %w", retriever.ErrConfigInvalid)
		}
		scheme := "http"
		if conf.Datasource.UseTLS {
			scheme = "https"
		}
		port := conf.Datasource.Port
		if port == 0 {
			port = 9200
		}
		var err error
		client, err = elasticsearch.NewTypedClient(elasticsearch.Config{
			Addresses: []string{fmt.Sprintf("%s://%s:%d", scheme, conf.Datasource.Host, port)},
			Username:  config.ResolveEnv(conf.Datasource.Username),
			Password:  config.ResolveEnv(conf.Datasource.Password),
			APIKey:    config.ResolveEnv(conf.Datasource.APIKey),
		})
		if err != nil {
			return nil, fmt.Errorf("[NewRetriever] new es client failed, %w", err)
		}
	}

	vectorField := conf.Datasource.ExtraString("vector_field")
	if vectorField == "" {
		vectorField = defaultVectorField
	}
	contentField := conf.Datasource.ExtraString("content_field")
	if contentField == "" {
		contentField = defaultContentField
	}

	return vector.New(vector.Options{
		DatasourceName: conf.DatasourceName,
		Datasource:     conf.Datasource,
		Verbose:        conf.Verbose,
		Logger:         conf.Logger,
		Searcher: &searcher{
			client:       client,
			vectorField:  vectorField,
			contentField: contentField,
		},
		Adapter:          conf.Adapter,
		Embedder:         conf.Embedder,
		Convert:          vector.ScaledSimilarity(conf.Datasource.ScoreScalingFactor),
		EmbeddingEnabled: conf.EmbeddingEnabled,
	})
}

type searcher struct {
	client       *elasticsearch.TypedClient
	vectorField  string
	contentField string
}

func (s *searcher) Connect(ctx context.Context) error {
	if _, err := s.client.Info().Do(ctx); err != nil {
		return fmt.Errorf("[Connect] es info failed: %v: %w", err, retriever.ErrBackendUnavailable)
	}
	return nil
}

func (s *searcher) EnsureCollection(ctx context.Context, name string) error {
	exists, err := s.client.Indices.Exists(name).Do(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return retriever.ErrCollectionNotFound
	}
	return nil
}

func (s *searcher) VectorSearch(ctx context.Context, collection string, vec []float64, limit int) ([]vector.Hit, error) {
	vec32 := make([]float32, len(vec))
	for i, v := range vec {
		vec32[i] = float32(v)
	}

	// num_candidates widens the per-shard candidate pool beyond k for recall.
	numCandidates := limit * 2
	if numCandidates < minNumCandidates {
		numCandidates = minNumCandidates
	}

	knn := types.KnnSearch{
		Field:         s.vectorField,
		K:             &limit,
		NumCandidates: &numCandidates,
		QueryVector:   vec32,
	}
	resp, err := s.client.Search().
		Index(collection).
		Request(&search.Request{Knn: []types.KnnSearch{knn}, Size: &limit}).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	hits := make([]vector.Hit, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var source map[string]any
		if err := json.Unmarshal(hit.Source_, &source); err != nil {
			return nil, fmt.Errorf("[VectorSearch] unexpected hit source, source=%v", string(hit.Source_))
		}

		document := ""
		if v, ok := source[s.contentField].(string); ok {
			document = v
		}
		metadata := make(map[string]any, len(source))
		for k, v := range source {
			if k == s.contentField || k == s.vectorField {
				continue
			}
			metadata[k] = v
		}

		score := 0.0
		if hit.Score_ != nil {
			score = float64(*hit.Score_)
		}
		hits = append(hits, vector.Hit{Document: document, Metadata: metadata, Score: score})
	}
	return hits, nil
}

func (s *searcher) Close(ctx context.Context) error { return nil }

var _ vector.Searcher = &searcher{}
