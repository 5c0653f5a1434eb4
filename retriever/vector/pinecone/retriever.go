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

// Package pinecone retrieves documents from a Pinecone index. The collection
// name maps onto the index namespace.
package pinecone

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	pc "github.com/pinecone-io/go-pinecone/v3/pinecone"
	"github.com/sirupsen/logrus"

	"github.com/schmitech/orbit-sub000/adapter"
	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/retriever"
	"github.com/schmitech/orbit-sub000/retriever/vector"
)

// contentKeys are the metadata fields probed, in order, for document text.
var contentKeys = []string{"content", "text", "document"}

// RetrieverConfig configures the Pinecone retriever.
type RetrieverConfig struct {
	// DatasourceName is the key of the datasource in the configuration,
	// default="pinecone".
	DatasourceName string
	// Datasource carries the api key and retrieval thresholds. The index
	// name comes from the datasource "index" extra key, default "default".
	Datasource config.DatasourceConfig

	// Client overrides the Pinecone client built from the api key.
	Client *pc.Client

	// Embedder vectorizes queries. Required when embedding is enabled.
	Embedder embedding.Embedder
	// EmbeddingEnabled mirrors embedding.enabled from the configuration.
	EmbeddingEnabled bool

	// Adapter shapes raw documents into context items, default generic.
	Adapter adapter.Adapter

	Verbose bool
	Logger  *logrus.Logger
}

// NewRetriever builds a Pinecone-backed vector retriever.
func NewRetriever(ctx context.Context, conf *RetrieverConfig) (*vector.Retriever, error) {
	if conf == nil {
		return nil, fmt.Errorf("[NewRetriever] pinecone config is nil: %w", retriever.ErrConfigInvalid)
	}
	if conf.DatasourceName == "" {
		conf.DatasourceName = "pinecone"
	}
	client := conf.Client
	if client == nil {
		apiKey := config.ResolveEnv(conf.Datasource.APIKey)
		if apiKey == "" {
			return nil, fmt.Errorf("[NewRetriever] pinecone api key not provided: %w", retriever.ErrConfigInvalid)
		}
		var err error
		client, err = pc.NewClient(pc.NewClientParams{ApiKey: apiKey})
		if err != nil {
			return nil, fmt.Errorf("[NewRetriever] pinecone client failed: %w", err)
		}
	}

	indexName := conf.Datasource.ExtraString("index")
	if indexName == "" {
		indexName = "default"
	}

	return vector.New(vector.Options{
		DatasourceName:   conf.DatasourceName,
		Datasource:       conf.Datasource,
		Verbose:          conf.Verbose,
		Logger:           conf.Logger,
		Searcher:         &searcher{client: client, indexName: indexName},
		Adapter:          conf.Adapter,
		Embedder:         conf.Embedder,
		Convert:          vector.ScaledSimilarity(conf.Datasource.ScoreScalingFactor),
		EmbeddingEnabled: conf.EmbeddingEnabled,
	})
}

type searcher struct {
	client    *pc.Client
	indexName string

	mu   sync.Mutex
	host string
}

func (s *searcher) Connect(ctx context.Context) error {
	index, err := s.client.DescribeIndex(ctx, s.indexName)
	if err != nil {
		return fmt.Errorf("[Connect] describe index %s: %v: %w", s.indexName, err, retriever.ErrBackendUnavailable)
	}
	s.mu.Lock()
	s.host = index.Host
	s.mu.Unlock()
	return nil
}

// EnsureCollection checks nothing against the server: Pinecone namespaces
// materialize on first upsert, so every name is accepted.
func (s *searcher) EnsureCollection(ctx context.Context, name string) error {
	return nil
}

func (s *searcher) VectorSearch(ctx context.Context, collection string, vec []float64, limit int) ([]vector.Hit, error) {
	s.mu.Lock()
	host := s.host
	s.mu.Unlock()
	if host == "" {
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
		host = s.host
		s.mu.Unlock()
	}

	indexConn, err := s.client.Index(pc.NewIndexConnParams{
		Host:      host,
		Namespace: collection,
	})
	if err != nil {
		return nil, fmt.Errorf("[VectorSearch] index connection failed: %w", err)
	}

	vec32 := make([]float32, len(vec))
	for i, v := range vec {
		vec32[i] = float32(v)
	}
	resp, err := indexConn.QueryByVectorValues(ctx, &pc.QueryByVectorValuesRequest{
		Vector:          vec32,
		TopK:            uint32(limit),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}

	return convertMatches(resp.Matches), nil
}

// convertMatches maps scored vectors onto hits, probing the metadata content
// keys for the document text.
func convertMatches(matches []*pc.ScoredVector) []vector.Hit {
	hits := make([]vector.Hit, 0, len(matches))
	for _, match := range matches {
		document := ""
		metadata := map[string]any{}
		if match.Vector != nil && match.Vector.Metadata != nil {
			metadata = match.Vector.Metadata.AsMap()
			for _, key := range contentKeys {
				if v, ok := metadata[key]; ok {
					if s, ok := v.(string); ok && s != "" {
						document = s
						delete(metadata, key)
						break
					}
				}
			}
		}
		hits = append(hits, vector.Hit{
			Document: document,
			Metadata: metadata,
			Score:    float64(match.Score),
		})
	}
	return hits
}

func (s *searcher) Close(ctx context.Context) error { return nil }

var _ vector.Searcher = &searcher{}
