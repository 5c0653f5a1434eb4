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

// Package adapter shapes raw backend rows into context items and applies
// domain-aware filtering. Adapters are shared by multiple retrievers and must
// be safe for concurrent use.
package adapter

import (
	"github.com/schmitech/orbit-sub000/schema"
)

// Adapter is the document shaping capability every retriever consumes.
type Adapter interface {
	// FormatDocument shapes one raw document and its metadata into a
	// ContextItem. The raw document is preserved in RawDocument.
	FormatDocument(raw string, metadata map[string]any) schema.ContextItem

	// ExtractDirectAnswer returns a short-circuit answer when the context
	// contains one, e.g. a high-confidence QA hit. Empty string means none.
	ExtractDirectAnswer(items []schema.ContextItem) string

	// ApplyDomainFiltering re-ranks or drops items using query knowledge.
	ApplyDomainFiltering(items []schema.ContextItem, query string) []schema.ContextItem
}

// Kind names used in registry keys and adapter config entries.
const (
	KindQA      = "qa"
	KindGeneric = "generic"
	KindFile    = "file"
	KindIntent  = "intent"
)
