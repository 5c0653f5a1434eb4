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

// Package qdrant retrieves documents from Qdrant over gRPC. Clients are
// shared per endpoint so several retriever instances reuse one connection.
package qdrant

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	qdrant "github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"

	"github.com/schmitech/orbit-sub000/adapter"
	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/retriever"
	"github.com/schmitech/orbit-sub000/retriever/vector"
)

const defaultContentKey = "content"

// RetrieverConfig configures the Qdrant retriever.
type RetrieverConfig struct {
	// DatasourceName is the key of the datasource in the configuration,
	// default="qdrant".
	DatasourceName string
	// Datasource carries host, port, api key and retrieval thresholds.
	Datasource config.DatasourceConfig

	// Client overrides the pooled Qdrant client.
	Client *qdrant.Client

	// Embedder vectorizes queries. Required when embedding is enabled.
	Embedder embedding.Embedder
	// EmbeddingEnabled mirrors embedding.enabled from the configuration.
	EmbeddingEnabled bool

	// Adapter shapes raw documents into context items, default generic.
	Adapter adapter.Adapter

	Verbose bool
	Logger  *logrus.Logger
}

// Qdrant clients are pooled per endpoint. A client holds a gRPC channel, so
// retrievers pointed at the same server must share one.
var (
	poolMu sync.Mutex
	pool   = map[string]*qdrant.Client{}
)

func pooledClient(ds config.DatasourceConfig) (*qdrant.Client, error) {
	port := ds.Port
	if port == 0 {
		port = 6334
	}
	key := fmt.Sprintf("%s:%d:%s", ds.Host, port, ds.APIKey)

	poolMu.Lock()
	defer poolMu.Unlock()
	if client, ok := pool[key]; ok {
		return client, nil
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   ds.Host,
		Port:   port,
		APIKey: config.ResolveEnv(ds.APIKey),
		UseTLS: ds.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("[NewRetriever] qdrant client failed: %w", err)
	}
	pool[key] = client
	return client, nil
}

// NewRetriever builds a Qdrant-backed vector retriever.
func NewRetriever(ctx context.Context, conf *RetrieverConfig) (*vector.Retriever, error) {
	if conf == nil {
		return nil, fmt.Errorf("[NewRetriever] qdrant config is nil: %w", retriever.ErrConfigInvalid)
	}
	if conf.DatasourceName == "" {
		conf.DatasourceName = "qdrant"
	}
	client := conf.Client
	if client == nil {
		if conf.Datasource.Host == "" {
			return nil, fmt.Errorf("[NewRetriever] qdrant host not provided: %w", retriever.ErrConfigInvalid)
		}
		var err error
		client, err = pooledClient(conf.Datasource)
		if err != nil {
			return nil, err
		}
	}

	return vector.New(vector.Options{
		DatasourceName:   conf.DatasourceName,
		Datasource:       conf.Datasource,
		Verbose:          conf.Verbose,
		Logger:           conf.Logger,
		Searcher:         &searcher{client: client, shared: conf.Client == nil},
		Adapter:          conf.Adapter,
		Embedder:         conf.Embedder,
		Convert:          vector.DirectSimilarity,
		EmbeddingEnabled: conf.EmbeddingEnabled,
	})
}

type searcher struct {
	client *qdrant.Client
	shared bool
}

func (s *searcher) Connect(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("[Connect] qdrant health check failed: %v: %w", err, retriever.ErrBackendUnavailable)
	}
	return nil
}

func (s *searcher) EnsureCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		// Creation needs the vector dimension, which only the indexing side
		// knows, so a missing collection is always an error here.
		return retriever.ErrCollectionNotFound
	}
	return nil
}

func (s *searcher) VectorSearch(ctx context.Context, collection string, vec []float64, limit int) ([]vector.Hit, error) {
	vec32 := make([]float32, len(vec))
	for i, v := range vec {
		vec32[i] = float32(v)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vec32),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	hits := make([]vector.Hit, 0, len(points))
	for _, pt := range points {
		document := ""
		metadata := make(map[string]any, len(pt.Payload))
		for k, v := range pt.Payload {
			if k == defaultContentKey {
				document = v.GetStringValue()
				continue
			}
			metadata[k] = valueToAny(v)
		}
		hits = append(hits, vector.Hit{
			Document: document,
			Metadata: metadata,
			Score:    float64(pt.Score),
		})
	}
	return hits, nil
}

// Close is a no-op for pooled clients; the pool owns the gRPC channel.
func (s *searcher) Close(ctx context.Context) error {
	if s.shared {
		return nil
	}
	return s.client.Close()
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		out := make(map[string]any, len(kind.StructValue.GetFields()))
		for k, f := range kind.StructValue.GetFields() {
			out[k] = valueToAny(f)
		}
		return out
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]any, 0, len(values))
		for _, f := range values {
			out = append(out, valueToAny(f))
		}
		return out
	default:
		return nil
	}
}

var _ vector.Searcher = &searcher{}
