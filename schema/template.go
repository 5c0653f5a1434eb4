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

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ResultFormat selects the response generation strategy for a template.
type ResultFormat string

const (
	ResultFormatTable   ResultFormat = "table"
	ResultFormatSummary ResultFormat = "summary"
)

// SemanticTags describe the intent of a template for reranking and
// embedding-text construction.
type SemanticTags struct {
	Action          string   `yaml:"action" json:"action"`
	PrimaryEntity   string   `yaml:"primary_entity" json:"primary_entity"`
	SecondaryEntity string   `yaml:"secondary_entity" json:"secondary_entity"`
	Qualifiers      []string `yaml:"qualifiers" json:"qualifiers"`
}

// Parameter is a typed template parameter filled from the user query.
type Parameter struct {
	Name         string `yaml:"name" json:"name"`
	Type         string `yaml:"type" json:"type"`
	Description  string `yaml:"description" json:"description"`
	Required     bool   `yaml:"required" json:"required"`
	Default      any    `yaml:"default" json:"default"`
	SemanticType string `yaml:"semantic_type" json:"semantic_type"`

	// Entity/Field bind the parameter to domain metadata for extraction
	// and validation. Optional; when empty the extractor falls back to
	// name-based resolution.
	Entity string `yaml:"entity" json:"entity"`
	Field  string `yaml:"field" json:"field"`

	AllowedValues   []string         `yaml:"allowed_values" json:"allowed_values"`
	ExtractionHints *ExtractionHints `yaml:"extraction_hints" json:"extraction_hints"`
}

// Template is a declarative query pattern with typed parameters,
// natural-language examples and semantic tags. The body is exactly one of
// SQLTemplate, QueryDSL or HTTPRequest.
type Template struct {
	ID           string         `yaml:"id" json:"id"`
	Description  string         `yaml:"description" json:"description"`
	NLExamples   []string       `yaml:"nl_examples" json:"nl_examples"`
	Tags         []string       `yaml:"tags" json:"tags"`
	SemanticTags *SemanticTags  `yaml:"semantic_tags" json:"semantic_tags"`
	Parameters   []Parameter    `yaml:"parameters" json:"parameters"`
	SQLTemplate  string         `yaml:"sql_template" json:"sql_template"`
	QueryDSL     map[string]any `yaml:"query_dsl" json:"query_dsl"`
	HTTPRequest  *HTTPRequest   `yaml:"http_request" json:"http_request"`
	ResultFormat ResultFormat   `yaml:"result_format" json:"result_format"`
	Version      string         `yaml:"version" json:"version"`
}

// HTTPRequest is the body of an HTTP intent template. URL, headers and body
// are rendered through the template processor before execution.
type HTTPRequest struct {
	Method  string            `yaml:"method" json:"method"`
	URL     string            `yaml:"url" json:"url"`
	Headers map[string]string `yaml:"headers" json:"headers"`
	Body    string            `yaml:"body" json:"body"`
}

// Parameter lookup by name; nil when absent.
func (t *Template) Parameter(name string) *Parameter {
	for i := range t.Parameters {
		if t.Parameters[i].Name == name {
			return &t.Parameters[i]
		}
	}
	return nil
}

// TemplateLibrary is the merged set of templates loaded from one or more
// sources. ID collisions keep the last loaded.
type TemplateLibrary struct {
	Templates []Template `yaml:"templates" json:"templates"`
}

// Get returns the template with the given id, or nil.
func (l *TemplateLibrary) Get(id string) *Template {
	for i := range l.Templates {
		if l.Templates[i].ID == id {
			return &l.Templates[i]
		}
	}
	return nil
}

// Merge appends templates from other, replacing entries with the same id.
func (l *TemplateLibrary) Merge(other *TemplateLibrary) {
	for _, t := range other.Templates {
		if existing := l.Get(t.ID); existing != nil {
			*existing = t
			continue
		}
		l.Templates = append(l.Templates, t)
	}
}

// templateFile accepts both supported YAML layouts: a list of templates or a
// map whose keys become fallback template ids.
type templateFile struct {
	Templates yaml.Node `yaml:"templates"`
}

// ParseTemplateLibrary parses one library document. The `templates` key may be
// a list or a map; in the map form the key is used as the template id when
// the entry does not declare one.
func ParseTemplateLibrary(data []byte) (*TemplateLibrary, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("[ParseTemplateLibrary] parse failed: %w", err)
	}

	lib := &TemplateLibrary{}
	switch file.Templates.Kind {
	case 0:
		return lib, nil
	case yaml.SequenceNode:
		if err := file.Templates.Decode(&lib.Templates); err != nil {
			return nil, fmt.Errorf("[ParseTemplateLibrary] decode list failed: %w", err)
		}
	case yaml.MappingNode:
		// Mapping nodes alternate key, value.
		for i := 0; i+1 < len(file.Templates.Content); i += 2 {
			var tpl Template
			if err := file.Templates.Content[i+1].Decode(&tpl); err != nil {
				return nil, fmt.Errorf("[ParseTemplateLibrary] decode entry %q failed: %w", file.Templates.Content[i].Value, err)
			}
			if tpl.ID == "" {
				tpl.ID = file.Templates.Content[i].Value
			}
			lib.Templates = append(lib.Templates, tpl)
		}
	default:
		return nil, fmt.Errorf("[ParseTemplateLibrary] templates must be a list or a map")
	}

	return lib, nil
}

// LoadTemplateLibrary loads and merges one or more library files in order.
func LoadTemplateLibrary(paths ...string) (*TemplateLibrary, error) {
	merged := &TemplateLibrary{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("[LoadTemplateLibrary] read %s: %w", path, err)
		}
		lib, err := ParseTemplateLibrary(data)
		if err != nil {
			return nil, fmt.Errorf("[LoadTemplateLibrary] %s: %w", path, err)
		}
		merged.Merge(lib)
	}
	return merged, nil
}
