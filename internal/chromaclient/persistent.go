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
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
)

// PersistentClient is a file-backed implementation of the client contract for
// deployments without a Chroma server. Each collection persists as one JSON
// file under the root directory; queries compute cosine distance in process,
// so scores convert exactly like server distances.
type PersistentClient struct {
	root string

	mu          sync.Mutex
	collections map[string]*persistentCollection
}

// NewPersistentClient opens (or creates) a local store rooted at dir.
func NewPersistentClient(dir string) (*PersistentClient, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("[chroma] create store dir %s: %w", dir, err)
	}
	return &PersistentClient{
		root:        dir,
		collections: make(map[string]*persistentCollection),
	}, nil
}

func (c *PersistentClient) Heartbeat(ctx context.Context) error {
	_, err := os.Stat(c.root)
	if err != nil {
		return fmt.Errorf("[chroma] store dir unavailable: %w", err)
	}
	return nil
}

func (c *PersistentClient) path(name string) string {
	return filepath.Join(c.root, name+".json")
}

func (c *PersistentClient) GetCollection(ctx context.Context, name string) (Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.collections[name]; ok {
		return col, nil
	}
	col, err := loadPersistentCollection(c.path(name), name)
	if err != nil {
		return nil, err
	}
	c.collections[name] = col
	return col, nil
}

func (c *PersistentClient) GetOrCreateCollection(ctx context.Context, name string, metadata map[string]any) (Collection, error) {
	col, err := c.GetCollection(ctx, name)
	if err == nil {
		return col, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fresh := &persistentCollection{
		path: c.path(name),
		state: persistentState{
			Name:     name,
			Metadata: metadata,
		},
	}
	if err := fresh.save(); err != nil {
		return nil, err
	}
	c.collections[name] = fresh
	return fresh, nil
}

func (c *PersistentClient) DeleteCollection(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.collections, name)
	if err := os.Remove(c.path(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("[chroma] delete %s: %w", name, ErrCollectionNotFound)
		}
		return fmt.Errorf("[chroma] delete %s: %w", name, err)
	}
	return nil
}

func (c *PersistentClient) Close() error { return nil }

type persistentRecord struct {
	ID        string         `json:"id"`
	Embedding []float64      `json:"embedding"`
	Document  string         `json:"document"`
	Metadata  map[string]any `json:"metadata"`
}

type persistentState struct {
	Name     string             `json:"name"`
	Metadata map[string]any     `json:"metadata"`
	Records  []persistentRecord `json:"records"`
}

type persistentCollection struct {
	path string

	mu    sync.RWMutex
	state persistentState
}

func loadPersistentCollection(path, name string) (*persistentCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("[chroma] collection %s: %w", name, ErrCollectionNotFound)
		}
		return nil, fmt.Errorf("[chroma] read collection %s: %w", name, err)
	}
	var state persistentState
	if err := sonic.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("[chroma] decode collection %s: %w", name, err)
	}
	return &persistentCollection{path: path, state: state}, nil
}

func (col *persistentCollection) save() error {
	data, err := sonic.Marshal(col.state)
	if err != nil {
		return fmt.Errorf("[chroma] encode collection %s: %w", col.state.Name, err)
	}
	if err := os.WriteFile(col.path, data, 0o644); err != nil {
		return fmt.Errorf("[chroma] write collection %s: %w", col.state.Name, err)
	}
	return nil
}

func (col *persistentCollection) Name() string {
	col.mu.RLock()
	defer col.mu.RUnlock()
	return col.state.Name
}

func (col *persistentCollection) Metadata() map[string]any {
	col.mu.RLock()
	defer col.mu.RUnlock()
	return col.state.Metadata
}

func (col *persistentCollection) Query(ctx context.Context, embedding []float64, nResults int) ([]QueryResult, error) {
	col.mu.RLock()
	defer col.mu.RUnlock()

	results := make([]QueryResult, 0, len(col.state.Records))
	for _, rec := range col.state.Records {
		if len(rec.Embedding) != len(embedding) {
			return nil, fmt.Errorf("[chroma] query dimension %d does not match collection dimension %d",
				len(embedding), len(rec.Embedding))
		}
		results = append(results, QueryResult{
			ID:       rec.ID,
			Document: rec.Document,
			Metadata: rec.Metadata,
			Distance: cosineDistance(embedding, rec.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if nResults > 0 && len(results) > nResults {
		results = results[:nResults]
	}
	return results, nil
}

func (col *persistentCollection) Add(ctx context.Context, ids []string, embeddings [][]float64, documents []string, metadatas []map[string]any) error {
	if len(ids) != len(embeddings) {
		return fmt.Errorf("[chroma] add: %d ids but %d embeddings", len(ids), len(embeddings))
	}
	col.mu.Lock()
	defer col.mu.Unlock()
	for i, id := range ids {
		rec := persistentRecord{ID: id, Embedding: embeddings[i]}
		if i < len(documents) {
			rec.Document = documents[i]
		}
		if i < len(metadatas) {
			rec.Metadata = metadatas[i]
		}
		replaced := false
		for j := range col.state.Records {
			if col.state.Records[j].ID == id {
				col.state.Records[j] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			col.state.Records = append(col.state.Records, rec)
		}
	}
	return col.save()
}

func (col *persistentCollection) Count(ctx context.Context) (int, error) {
	col.mu.RLock()
	defer col.mu.RUnlock()
	return len(col.state.Records), nil
}

func cosineDistance(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

var _ Client = &PersistentClient{}
var _ Collection = &persistentCollection{}
