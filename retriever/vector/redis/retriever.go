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

// Package redis retrieves documents from Redis with RediSearch KNN vector
// queries. The collection name maps onto the FT index name.
package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/schmitech/orbit-sub000/adapter"
	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/retriever"
	"github.com/schmitech/orbit-sub000/retriever/vector"
)

const (
	defaultVectorField  = "embedding"
	defaultContentField = "content"
	distanceAttribute   = "distance"
	paramVector         = "vector"
)

// RetrieverConfig configures the Redis retriever.
type RetrieverConfig struct {
	// DatasourceName is the key of the datasource in the configuration,
	// default="redis".
	DatasourceName string
	// Datasource carries host, port, credentials and retrieval thresholds.
	// Extra keys: "vector_field", "content_field" and "distance_metric"
	// (COSINE, L2 or IP, default COSINE).
	Datasource config.DatasourceConfig

	// Client overrides the pooled Redis client. FT.SEARCH requires RESP2
	// with UnstableResp3, which the built-in client sets up.
	Client *redis.Client

	// Embedder vectorizes queries. Required when embedding is enabled.
	Embedder embedding.Embedder
	// EmbeddingEnabled mirrors embedding.enabled from the configuration.
	EmbeddingEnabled bool

	// Adapter shapes raw documents into context items, default generic.
	Adapter adapter.Adapter

	Verbose bool
	Logger  *logrus.Logger
}

// NewRetriever builds a Redis-backed vector retriever.
func NewRetriever(ctx context.Context, conf *RetrieverConfig) (*vector.Retriever, error) {
	if conf == nil {
		return nil, fmt.Errorf("[NewRetriever] redis config is nil: %w", retriever.ErrConfigInvalid)
	}
	if conf.DatasourceName == "" {
		conf.DatasourceName = "redis"
	}
	client := conf.Client
	if client == nil {
		if conf.Datasource.Host == "" {
			return nil, fmt.Errorf("[NewRetriever] redis host not provided: %w", retriever.ErrConfigInvalid)
		}
		port := conf.Datasource.Port
		if port == 0 {
			port = 6379
		}
		client = redis.NewClient(&redis.Options{
			Addr:          fmt.Sprintf("%s:%d", conf.Datasource.Host, port),
			Username:      config.ResolveEnv(conf.Datasource.Username),
			Password:      config.ResolveEnv(conf.Datasource.Password),
			Protocol:      2,
			UnstableResp3: true,
		})
	}

	vectorField := conf.Datasource.ExtraString("vector_field")
	if vectorField == "" {
		vectorField = defaultVectorField
	}
	contentField := conf.Datasource.ExtraString("content_field")
	if contentField == "" {
		contentField = defaultContentField
	}
	metric := conf.Datasource.ExtraString("distance_metric")
	if metric == "" {
		metric = "COSINE"
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
		Convert:          vector.RedisScore(metric, conf.Datasource.EffectiveDistanceScaling()),
		EmbeddingEnabled: conf.EmbeddingEnabled,
	})
}

type searcher struct {
	client       *redis.Client
	vectorField  string
	contentField string
}

func (s *searcher) Connect(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("[Connect] redis ping failed: %v: %w", err, retriever.ErrBackendUnavailable)
	}
	return nil
}

func (s *searcher) EnsureCollection(ctx context.Context, name string) error {
	if _, err := s.client.FTInfo(ctx, name).Result(); err != nil {
		return fmt.Errorf("[EnsureCollection] index %s: %w", name, retriever.ErrCollectionNotFound)
	}
	return nil
}

func (s *searcher) VectorSearch(ctx context.Context, collection string, vec []float64, limit int) ([]vector.Hit, error) {
	searchQuery := fmt.Sprintf("(*)=>[KNN %d @%s $%s AS %s]",
		limit, s.vectorField, paramVector, distanceAttribute)

	result, err := s.client.FTSearchWithArgs(ctx, collection, searchQuery, &redis.FTSearchOptions{
		SortBy:         []redis.FTSearchSortBy{{FieldName: distanceAttribute, Asc: true}},
		Limit:          limit,
		DialectVersion: 2,
		Params:         map[string]any{paramVector: vector2Bytes(vec)},
	}).Result()
	if err != nil {
		return nil, err
	}

	hits := make([]vector.Hit, 0, len(result.Docs))
	for _, doc := range result.Docs {
		hit := vector.Hit{Metadata: map[string]any{}}
		for field, val := range doc.Fields {
			switch field {
			case s.contentField:
				hit.Document = val
			case s.vectorField:
				// raw vector bytes, not useful downstream
			case distanceAttribute:
				d, err := strconv.ParseFloat(val, 64)
				if err != nil {
					return nil, fmt.Errorf("[VectorSearch] bad distance %q: %w", val, err)
				}
				hit.Score = d
			default:
				hit.Metadata[field] = val
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *searcher) Close(ctx context.Context) error {
	return s.client.Close()
}

// vector2Bytes encodes the query vector as little-endian float32, the layout
// RediSearch vector fields expect.
func vector2Bytes(vec []float64) []byte {
	out := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
	}
	return out
}

var _ vector.Searcher = &searcher{}
