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

import "github.com/schmitech/orbit-sub000/schema"

// GenericAdapter passes documents through unshaped. It never produces a
// direct answer and applies no filtering.
type GenericAdapter struct{}

func NewGenericAdapter() *GenericAdapter { return &GenericAdapter{} }

func (a *GenericAdapter) FormatDocument(raw string, metadata map[string]any) schema.ContextItem {
	return schema.ContextItem{
		Content:     raw,
		RawDocument: raw,
		Metadata:    cloneMeta(metadata),
	}
}

func (a *GenericAdapter) ExtractDirectAnswer([]schema.ContextItem) string { return "" }

func (a *GenericAdapter) ApplyDomainFiltering(items []schema.ContextItem, _ string) []schema.ContextItem {
	return items
}
