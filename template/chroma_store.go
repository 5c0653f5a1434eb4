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

package template

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/schmitech/orbit-sub000/internal/chromaclient"
	"github.com/schmitech/orbit-sub000/schema"
)

const (
	metaKeyEmbeddingText = "embedding_text"
	metaKeyTemplate      = "template_json"
)

// ChromaStore persists template vectors in a Chroma collection. Template
// metadata is stored as a JSON string field since Chroma metadata values are
// scalar.
type ChromaStore struct {
	client     chromaclient.Client
	collection string
}

// NewChromaStore opens (or creates) the named collection on the client.
func NewChromaStore(client chromaclient.Client, collection string) *ChromaStore {
	return &ChromaStore{client: client, collection: collection}
}

func (s *ChromaStore) Insert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	// The dimension lands in collection metadata at creation time so it can
	// be probed across restarts.
	col, err := s.client.GetOrCreateCollection(ctx, s.collection, map[string]any{
		"hnsw:space": "cosine",
		"dimension":  len(entries[0].Embedding),
	})
	if err != nil {
		return fmt.Errorf("[template store] open %s: %w", s.collection, err)
	}

	ids := make([]string, 0, len(entries))
	embeddings := make([][]float64, 0, len(entries))
	documents := make([]string, 0, len(entries))
	metadatas := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		encoded, err := sonic.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("[template store] encode metadata of %s: %w", e.TemplateID, err)
		}
		ids = append(ids, e.TemplateID)
		embeddings = append(embeddings, e.Embedding)
		documents = append(documents, e.EmbeddingText)
		metadatas = append(metadatas, map[string]any{
			metaKeyEmbeddingText: e.EmbeddingText,
			metaKeyTemplate:      string(encoded),
		})
	}
	return col.Add(ctx, ids, embeddings, documents, metadatas)
}

func (s *ChromaStore) SearchSimilar(ctx context.Context, embedding []float64, limit int, threshold float64) ([]schema.TemplateMatch, error) {
	col, err := s.client.GetCollection(ctx, s.collection)
	if err != nil {
		if errors.Is(err, chromaclient.ErrCollectionNotFound) {
			return nil, nil
		}
		return nil, err
	}

	results, err := col.Query(ctx, embedding, limit)
	if err != nil {
		return nil, err
	}

	matches := make([]schema.TemplateMatch, 0, len(results))
	for _, r := range results {
		// Cosine distance in [0,2] maps to similarity in [0,1].
		sim := 1 - r.Distance/2
		if sim < threshold {
			continue
		}
		match := schema.TemplateMatch{
			TemplateID: r.ID,
			Similarity: sim,
		}
		if raw, ok := r.Metadata[metaKeyTemplate].(string); ok {
			var data map[string]any
			if err := sonic.Unmarshal([]byte(raw), &data); err == nil {
				match.TemplateData = data
			}
		}
		if text, ok := r.Metadata[metaKeyEmbeddingText].(string); ok {
			match.EmbeddingText = text
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func (s *ChromaStore) Count(ctx context.Context) (int, error) {
	col, err := s.client.GetCollection(ctx, s.collection)
	if err != nil {
		if errors.Is(err, chromaclient.ErrCollectionNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return col.Count(ctx)
}

func (s *ChromaStore) Dimension(ctx context.Context) (int, error) {
	col, err := s.client.GetCollection(ctx, s.collection)
	if err != nil {
		if errors.Is(err, chromaclient.ErrCollectionNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if meta := col.Metadata(); meta != nil {
		switch v := meta["dimension"].(type) {
		case float64:
			return int(v), nil
		case int:
			return v, nil
		}
	}
	return 0, nil
}

func (s *ChromaStore) Clear(ctx context.Context) error {
	err := s.client.DeleteCollection(ctx, s.collection)
	if err != nil && !errors.Is(err, chromaclient.ErrCollectionNotFound) {
		return err
	}
	return nil
}

var _ Store = &ChromaStore{}
