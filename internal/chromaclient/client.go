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

// Package chromaclient is a minimal Chroma client speaking the v1 REST API,
// plus a persistent in-process implementation of the same contract for
// deployments without a Chroma server. Only the operations the retriever
// core needs are modeled.
package chromaclient

import (
	"context"
	"errors"
)

// ErrCollectionNotFound reports a confirmed collection absence.
var ErrCollectionNotFound = errors.New("chroma collection not found")

// QueryResult is one nearest neighbor with its cosine distance.
type QueryResult struct {
	ID       string
	Document string
	Metadata map[string]any
	Distance float64
}

// Collection exposes the per-collection operations.
type Collection interface {
	Name() string
	Metadata() map[string]any
	Query(ctx context.Context, embedding []float64, nResults int) ([]QueryResult, error)
	Add(ctx context.Context, ids []string, embeddings [][]float64, documents []string, metadatas []map[string]any) error
	Count(ctx context.Context) (int, error)
}

// Client exposes collection management. Implemented by the HTTP client and
// the persistent local store.
type Client interface {
	Heartbeat(ctx context.Context) error
	GetCollection(ctx context.Context, name string) (Collection, error)
	GetOrCreateCollection(ctx context.Context, name string, metadata map[string]any) (Collection, error)
	DeleteCollection(ctx context.Context, name string) error
	Close() error
}
