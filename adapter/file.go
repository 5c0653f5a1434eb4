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

package adapter

import (
	"path/filepath"
	"strings"

	"github.com/schmitech/orbit-sub000/schema"
)

// FileAdapter specializes QAAdapter for file-derived chunks: formatting adds
// file provenance to the content, and filtering additionally boosts items
// whose filename or type matches terms in the query.
type FileAdapter struct {
	qa *QAAdapter

	// BoostFileMatch is added to confidence when the query mentions the
	// source filename. Zero means the default of 0.1.
	BoostFileMatch float64
}

func NewFileAdapter() *FileAdapter {
	return &FileAdapter{qa: NewQAAdapter()}
}

func (a *FileAdapter) boost() float64 {
	if a.BoostFileMatch <= 0 {
		return 0.1
	}
	return a.BoostFileMatch
}

func (a *FileAdapter) FormatDocument(raw string, metadata map[string]any) schema.ContextItem {
	item := a.qa.FormatDocument(raw, metadata)
	if name, ok := metadata["filename"].(string); ok && name != "" {
		item.Content = "[" + name + "] " + item.Content
	}
	return item
}

func (a *FileAdapter) ExtractDirectAnswer(items []schema.ContextItem) string {
	return a.qa.ExtractDirectAnswer(items)
}

func (a *FileAdapter) ApplyDomainFiltering(items []schema.ContextItem, query string) []schema.ContextItem {
	items = a.qa.ApplyDomainFiltering(items, query)
	lowered := strings.ToLower(query)
	for i := range items {
		name, _ := items[i].Metadata["filename"].(string)
		if name == "" {
			continue
		}
		base := strings.TrimSuffix(strings.ToLower(filepath.Base(name)), filepath.Ext(name))
		if base != "" && strings.Contains(lowered, base) {
			boosted := items[i].Confidence + a.boost()
			if boosted > 1.0 {
				boosted = 1.0
			}
			items[i].Confidence = boosted
		}
	}
	return items
}
