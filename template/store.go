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
	"math"
	"sort"
	"sync"

	"github.com/schmitech/orbit-sub000/schema"
)

// Entry is one stored template vector.
type Entry struct {
	TemplateID    string
	Embedding     []float64
	EmbeddingText string
	Metadata      map[string]any
}

// Store is the vector index mapping template ids to embeddings. Mutations
// happen only during retriever initialization; SearchSimilar is safe for
// concurrent use.
type Store interface {
	// Insert adds entries, replacing any with the same template id.
	Insert(ctx context.Context, entries []Entry) error

	// SearchSimilar returns up to limit matches with similarity >= threshold,
	// ordered by descending similarity.
	SearchSimilar(ctx context.Context, embedding []float64, limit int, threshold float64) ([]schema.TemplateMatch, error)

	// Count reports the number of stored templates.
	Count(ctx context.Context) (int, error)

	// Dimension reports the stored embedding dimension, 0 when empty.
	Dimension(ctx context.Context) (int, error)

	// Clear drops all entries.
	Clear(ctx context.Context) error
}

// MemoryStore is an ephemeral in-process store using cosine similarity.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore builds an empty in-memory template store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		replaced := false
		for i := range s.entries {
			if s.entries[i].TemplateID == e.TemplateID {
				s.entries[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			s.entries = append(s.entries, e)
		}
	}
	return nil
}

func (s *MemoryStore) SearchSimilar(ctx context.Context, embedding []float64, limit int, threshold float64) ([]schema.TemplateMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]schema.TemplateMatch, 0, len(s.entries))
	for _, e := range s.entries {
		if len(e.Embedding) != len(embedding) {
			continue
		}
		sim := cosineSimilarity(embedding, e.Embedding)
		if sim < threshold {
			continue
		}
		matches = append(matches, schema.TemplateMatch{
			TemplateID:    e.TemplateID,
			Similarity:    sim,
			TemplateData:  e.Metadata,
			EmbeddingText: e.EmbeddingText,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) Dimension(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return 0, nil
	}
	return len(s.entries[0].Embedding), nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
	return nil
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Store = &MemoryStore{}
