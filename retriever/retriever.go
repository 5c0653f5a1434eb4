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

// Package retriever defines the base retriever contract shared by every
// backend: lazily initialized, collection bound, queried through
// GetRelevantContext and closed exactly once.
package retriever

import (
	"context"
	"errors"

	"github.com/schmitech/orbit-sub000/schema"
)

// Error kinds propagated by the core. Callers match with errors.Is.
var (
	ErrConfigInvalid      = errors.New("config invalid")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrNoCollection       = errors.New("no collection resolved")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrNotFound           = errors.New("not found")
	ErrUnknownType        = errors.New("unknown retriever type")
)

// Request is a single retrieval call.
type Request struct {
	Query string
	// APIKey optionally derives the collection through a CollectionResolver.
	APIKey string
	// Collection explicitly binds the call to a collection, overriding both
	// the API key derivation and the datasource default.
	Collection string
	// Options carries adapter specific knobs.
	Options map[string]any
}

// Retriever is the executable pipeline contract. Implementations must be
// safe for concurrent GetRelevantContext calls; Initialize is idempotent and
// Close is safe on uninitialized instances.
type Retriever interface {
	Initialize(ctx context.Context) error
	Close(ctx context.Context) error
	SetCollection(ctx context.Context, name string) error
	GetRelevantContext(ctx context.Context, req Request) ([]schema.ContextItem, error)
}

// CollectionResolver derives a collection name from an API key. It is an
// external collaborator; a nil resolver disables API key resolution.
type CollectionResolver interface {
	ResolveCollection(ctx context.Context, apiKey string) (string, error)
}
