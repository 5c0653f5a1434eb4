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

package schema

// TemplateMatch is a template store hit for a query embedding.
// Similarity is in [0,1]; SourceAdapter is set by the composite router when
// merging matches across children.
type TemplateMatch struct {
	TemplateID    string         `json:"template_id"`
	SourceAdapter string         `json:"source_adapter,omitempty"`
	Similarity    float64        `json:"similarity"`
	TemplateData  map[string]any `json:"template_data,omitempty"`
	EmbeddingText string         `json:"embedding_text,omitempty"`
}
