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

// Package chroma retrieves documents from Chroma, either a remote server over
// its REST API or a local persistent store.
package chroma

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/sirupsen/logrus"

	"github.com/schmitech/orbit-sub000/adapter"
	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/internal/chromaclient"
	"github.com/schmitech/orbit-sub000/retriever"
	"github.com/schmitech/orbit-sub000/retriever/vector"
)

// RetrieverConfig configures the Chroma retriever.
type RetrieverConfig struct {
	// DatasourceName is the key of the datasource in the configuration,
	// default="chroma".
	DatasourceName string
	// Datasource carries host, port, collection and retrieval thresholds.
	Datasource config.DatasourceConfig

	// Client overrides the Chroma client. When nil, an HTTP client is built
	// from the datasource host and port, or a persistent local store when
	// PersistentPath is set.
	Client chromaclient.Client
	// PersistentPath selects the local file-backed store instead of a server.
	PersistentPath string

	// Embedder vectorizes queries. Required when embedding is enabled.
	Embedder embedding.Embedder
	// EmbeddingEnabled mirrors embedding.enabled from the configuration.
	EmbeddingEnabled bool

	// Adapter shapes raw documents into context items, default generic.
	Adapter adapter.Adapter

	Verbose bool
	Logger  *logrus.Logger
}

func (c *RetrieverConfig) check() error {
	if c.DatasourceName == "" {
		c.DatasourceName = "chroma"
	}
	if c.Client == nil && c.PersistentPath == "" && c.Datasource.Host == "" {
		return fmt.Errorf("[NewRetriever] chroma host or persistent path required: %w", retriever.ErrConfigInvalid)
	}
	return nil
}

// NewRetriever builds a Chroma-backed vector retriever.
func NewRetriever(ctx context.Context, conf *RetrieverConfig) (*vector.Retriever, error) {
	if conf == nil {
		return nil, fmt.Errorf("[NewRetriever] chroma config is nil: %w", retriever.ErrConfigInvalid)
	}
	if err := conf.check(); err != nil {
		return nil, err
	}

	client := conf.Client
	if client == nil {
		if conf.PersistentPath != "" {
			pc, err := chromaclient.NewPersistentClient(conf.PersistentPath)
			if err != nil {
				return nil, fmt.Errorf("[NewRetriever] open persistent store: %w", err)
			}
			client = pc
		} else {
			scheme := "http"
			if conf.Datasource.UseTLS {
				scheme = "https"
			}
			port := conf.Datasource.Port
			if port == 0 {
				port = 8000
			}
			base := fmt.Sprintf("%s://%s:%d", scheme, conf.Datasource.Host, port)
			client = chromaclient.NewHTTPClient(base, conf.Datasource.EffectiveTimeout())
		}
	}

	searcher := &searcher{
		client:     client,
		autoCreate: conf.Datasource.AutoCreateCollection,
	}
	return vector.New(vector.Options{
		DatasourceName:   conf.DatasourceName,
		Datasource:       conf.Datasource,
		Verbose:          conf.Verbose,
		Logger:           conf.Logger,
		Searcher:         searcher,
		Adapter:          conf.Adapter,
		Embedder:         conf.Embedder,
		Convert:          vector.ChromaCosineDistance,
		EmbeddingEnabled: conf.EmbeddingEnabled,
	})
}

type searcher struct {
	client     chromaclient.Client
	autoCreate bool
}

func (s *searcher) Connect(ctx context.Context) error {
	if err := s.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("[Connect] chroma heartbeat failed: %v: %w", err, retriever.ErrBackendUnavailable)
	}
	return nil
}

func (s *searcher) EnsureCollection(ctx context.Context, name string) error {
	_, err := s.client.GetCollection(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, chromaclient.ErrCollectionNotFound) {
		return err
	}
	if !s.autoCreate {
		return fmt.Errorf("[EnsureCollection] %s: %w", name, retriever.ErrCollectionNotFound)
	}
	// New collections index with cosine distance so scores convert uniformly.
	_, err = s.client.GetOrCreateCollection(ctx, name, map[string]any{"hnsw:space": "cosine"})
	return err
}

func (s *searcher) VectorSearch(ctx context.Context, collection string, vec []float64, limit int) ([]vector.Hit, error) {
	col, err := s.client.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	results, err := col.Query(ctx, vec, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]vector.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, vector.Hit{
			Document: r.Document,
			Metadata: r.Metadata,
			Score:    r.Distance,
		})
	}
	return hits, nil
}

func (s *searcher) Close(ctx context.Context) error {
	return s.client.Close()
}

var _ vector.Searcher = &searcher{}
