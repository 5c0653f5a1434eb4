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

// Metadata keys attached to every returned context item.
const (
	MetaSource     = "source"
	MetaCollection = "collection"
	MetaSimilarity = "similarity"

	MetaTemplateID     = "template_id"
	MetaQueryIntent    = "query_intent"
	MetaParametersUsed = "parameters_used"
	MetaResultCount    = "result_count"
	MetaFormattedData  = "formatted_data"
	MetaError          = "error"

	MetaCompositeRouting = "composite_routing"
)

// Error sentinels written to metadata[MetaError] on intent pipeline failures.
const (
	ErrValueNoMatchingTemplate      = "no_matching_template"
	ErrValueParameterExtractionFail = "parameter_extraction_failed"
)

// ContextItem is a single ranked piece of context returned to the caller.
// Confidence is the final ranking score in [0,1].
type ContextItem struct {
	Content     string         `json:"content"`
	RawDocument string         `json:"raw_document,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	Confidence  float64        `json:"confidence"`
}

// WithMeta sets a metadata key, allocating the map if needed, and returns the item.
func (c *ContextItem) WithMeta(key string, value any) *ContextItem {
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	c.Metadata[key] = value
	return c
}
