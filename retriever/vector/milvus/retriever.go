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

// Package milvus retrieves documents from Milvus using the v2 client.
// Collections are loaded on demand before the first search.
package milvus

import (
	"context"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"github.com/sirupsen/logrus"

	"github.com/schmitech/orbit-sub000/adapter"
	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/retriever"
	"github.com/schmitech/orbit-sub000/retriever/vector"
)

const (
	defaultVectorField  = "embedding"
	defaultContentField = "content"
	metadataField       = "metadata"
)

// RetrieverConfig configures the Milvus retriever.
type RetrieverConfig struct {
	// DatasourceName is the key of the datasource in the configuration,
	// default="milvus".
	DatasourceName string
	// Datasource carries host, port, credentials and retrieval thresholds.
	// Extra keys: "vector_field", "content_field" and "metric_type"
	// (COSINE, IP or L2, default COSINE).
	Datasource config.DatasourceConfig

	// Client overrides the Milvus client built from the datasource.
	Client *milvusclient.Client

	// Embedder vectorizes queries. Required when embedding is enabled.
	Embedder embedding.Embedder
	// EmbeddingEnabled mirrors embedding.enabled from the configuration.
	EmbeddingEnabled bool

	// Adapter shapes raw documents into context items, default generic.
	Adapter adapter.Adapter

	Verbose bool
	Logger  *logrus.Logger
}

// NewRetriever builds a Milvus-backed vector retriever.
func NewRetriever(ctx context.Context, conf *RetrieverConfig) (*vector.Retriever, error) {
	if conf == nil {
		return nil, fmt.Errorf("[NewRetriever] milvus config is nil: %w", retriever.ErrConfigInvalid)
	}
	if conf.DatasourceName == "" {
		conf.DatasourceName = "milvus"
	}
	if conf.Client == nil && conf.Datasource.Host == "" {
		return nil, fmt.Errorf("[NewRetriever] milvus host not provided: %w", retriever.ErrConfigInvalid)
	}

	vectorField := conf.Datasource.ExtraString("vector_field")
	if vectorField == "" {
		vectorField = defaultVectorField
	}
	contentField := conf.Datasource.ExtraString("content_field")
	if contentField == "" {
		contentField = defaultContentField
	}
	metric := conf.Datasource.ExtraString("metric_type")
	if metric == "" {
		metric = "COSINE"
	}

	return vector.New(vector.Options{
		DatasourceName: conf.DatasourceName,
		Datasource:     conf.Datasource,
		Verbose:        conf.Verbose,
		Logger:         conf.Logger,
		Searcher: &searcher{
			client:       conf.Client,
			datasource:   conf.Datasource,
			vectorField:  vectorField,
			contentField: contentField,
			loaded:       map[string]bool{},
		},
		Adapter:          conf.Adapter,
		Embedder:         conf.Embedder,
		Convert:          vector.MilvusScore(metric, conf.Datasource.EffectiveDistanceScaling()),
		EmbeddingEnabled: conf.EmbeddingEnabled,
	})
}

type searcher struct {
	datasource   config.DatasourceConfig
	vectorField  string
	contentField string

	mu     sync.Mutex
	client *milvusclient.Client
	loaded map[string]bool
}

func (s *searcher) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return nil
	}
	port := s.datasource.Port
	if port == 0 {
		port = 19530
	}
	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  fmt.Sprintf("%s:%d", s.datasource.Host, port),
		Username: config.ResolveEnv(s.datasource.Username),
		Password: config.ResolveEnv(s.datasource.Password),
	})
	if err != nil {
		return fmt.Errorf("[Connect] milvus connect failed: %v: %w", err, retriever.ErrBackendUnavailable)
	}
	s.client = client
	return nil
}

func (s *searcher) EnsureCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	client := s.client
	alreadyLoaded := s.loaded[name]
	s.mu.Unlock()
	if alreadyLoaded {
		return nil
	}

	has, err := client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return err
	}
	if !has {
		return retriever.ErrCollectionNotFound
	}

	state, err := client.GetLoadState(ctx, milvusclient.NewGetLoadStateOption(name))
	if err != nil {
		return fmt.Errorf("[EnsureCollection] load state of %s: %w", name, err)
	}
	if state.State == entity.LoadStateNotLoad {
		if _, err := client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name)); err != nil {
			return fmt.Errorf("[EnsureCollection] load %s: %w", name, err)
		}
	}

	s.mu.Lock()
	s.loaded[name] = true
	s.mu.Unlock()
	return nil
}

func (s *searcher) VectorSearch(ctx context.Context, collection string, vec []float64, limit int) ([]vector.Hit, error) {
	vec32 := make([]float32, len(vec))
	for i, v := range vec {
		vec32[i] = float32(v)
	}

	searchOpt := milvusclient.NewSearchOption(collection, limit, []entity.Vector{entity.FloatVector(vec32)}).
		WithANNSField(s.vectorField).
		WithOutputFields(s.contentField, metadataField).
		WithConsistencyLevel(entity.ClBounded)

	results, err := s.client.Search(ctx, searchOpt)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	result := results[0]
	if result.Err != nil {
		return nil, result.Err
	}

	documents := make([]string, result.ResultCount)
	metadatas := make([]map[string]any, result.ResultCount)
	for i := range metadatas {
		metadatas[i] = map[string]any{}
	}
	for _, col := range result.Fields {
		for i := 0; i < col.Len() && i < result.ResultCount; i++ {
			val, err := col.Get(i)
			if err != nil {
				continue
			}
			switch col.Name() {
			case s.contentField:
				if str, ok := val.(string); ok {
					documents[i] = str
				}
			case metadataField:
				if raw, ok := val.([]byte); ok {
					_ = sonic.Unmarshal(raw, &metadatas[i])
				}
			default:
				metadatas[i][col.Name()] = val
			}
		}
	}

	hits := make([]vector.Hit, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		score := 0.0
		if i < len(result.Scores) {
			score = float64(result.Scores[i])
		}
		hits = append(hits, vector.Hit{
			Document: documents[i],
			Metadata: metadatas[i],
			Score:    score,
		})
	}
	return hits, nil
}

func (s *searcher) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close(ctx)
	s.client = nil
	return err
}

var _ vector.Searcher = &searcher{}
