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

// DomainConfig is a data-only description of a business domain. It drives
// parameter extraction, validation and response formatting without code
// changes.
type DomainConfig struct {
	DomainName  string `yaml:"domain_name" json:"domain_name"`
	DomainType  string `yaml:"domain_type" json:"domain_type"`
	Description string `yaml:"description" json:"description"`

	Entities map[string]Entity           `yaml:"entities" json:"entities"`
	Fields   map[string]map[string]Field `yaml:"fields" json:"fields"`

	Vocabulary    Vocabulary              `yaml:"vocabulary" json:"vocabulary"`
	Metrics       map[string]any          `yaml:"metrics" json:"metrics"`
	Aggregations  map[string]any          `yaml:"aggregations" json:"aggregations"`
	BusinessRules []map[string]any        `yaml:"business_rules" json:"business_rules"`
	SemanticTypes map[string]SemanticType `yaml:"semantic_types" json:"semantic_types"`
}

// Vocabulary maps domain synonyms onto canonical entity and field names.
type Vocabulary struct {
	EntitySynonyms map[string][]string            `yaml:"entity_synonyms" json:"entity_synonyms"`
	FieldSynonyms  map[string]map[string][]string `yaml:"field_synonyms" json:"field_synonyms"`
}

// Entity describes a queryable domain entity backed by a table or index.
type Entity struct {
	Name             string            `yaml:"name" json:"name"`
	EntityType       string            `yaml:"entity_type" json:"entity_type"`
	TableName        string            `yaml:"table_name" json:"table_name"`
	PrimaryKey       string            `yaml:"primary_key" json:"primary_key"`
	DisplayName      string            `yaml:"display_name" json:"display_name"`
	DisplayNameField string            `yaml:"display_name_field" json:"display_name_field"`
	Relationships    map[string]string `yaml:"relationships" json:"relationships"`
	SearchableFields []string          `yaml:"searchable_fields" json:"searchable_fields"`
	CommonFilters    []string          `yaml:"common_filters" json:"common_filters"`
}

// Field describes a single entity field and how to extract, validate and
// display its values.
type Field struct {
	Name          string `yaml:"name" json:"name"`
	DataType      string `yaml:"data_type" json:"data_type"`
	DisplayName   string `yaml:"display_name" json:"display_name"`
	DisplayFormat string `yaml:"display_format" json:"display_format"`

	Searchable   bool `yaml:"searchable" json:"searchable"`
	Filterable   bool `yaml:"filterable" json:"filterable"`
	Sortable     bool `yaml:"sortable" json:"sortable"`
	Aggregatable bool `yaml:"aggregatable" json:"aggregatable"`

	ValidationRules   *ValidationRules `yaml:"validation_rules" json:"validation_rules"`
	SemanticType      string           `yaml:"semantic_type" json:"semantic_type"`
	SummaryPriority   int              `yaml:"summary_priority" json:"summary_priority"`
	ExtractionPattern string           `yaml:"extraction_pattern" json:"extraction_pattern"`
	ExtractionHints   *ExtractionHints `yaml:"extraction_hints" json:"extraction_hints"`
}

// ValidationRules constrain extracted parameter values.
type ValidationRules struct {
	Required           bool     `yaml:"required" json:"required"`
	Min                *float64 `yaml:"min" json:"min"`
	Max                *float64 `yaml:"max" json:"max"`
	MinLength          *int     `yaml:"min_length" json:"min_length"`
	MaxLength          *int     `yaml:"max_length" json:"max_length"`
	Pattern            string   `yaml:"pattern" json:"pattern"`
	PatternDescription string   `yaml:"pattern_description" json:"pattern_description"`
	AllowedValues      []string `yaml:"allowed_values" json:"allowed_values"`
}

// ExtractionHints steer value extraction for a field or parameter.
type ExtractionHints struct {
	RegexPatterns          []string          `yaml:"regex_patterns" json:"regex_patterns"`
	ValueGroup             int               `yaml:"value_group" json:"value_group"`
	Patterns               []string          `yaml:"patterns" json:"patterns"`
	Formats                []string          `yaml:"formats" json:"formats"`
	RelativeTerms          map[string]string `yaml:"relative_terms" json:"relative_terms"`
	DecimalPlaces          *int              `yaml:"decimal_places" json:"decimal_places"`
	LookForQuotes          bool              `yaml:"look_for_quotes" json:"look_for_quotes"`
	CapitalizationRequired bool              `yaml:"capitalization_required" json:"capitalization_required"`
	NumericRequired        bool              `yaml:"numeric_required" json:"numeric_required"`
}

// SemanticType declares reusable extraction patterns addressed by name from
// fields and template parameters.
type SemanticType struct {
	Description     string   `yaml:"description" json:"description"`
	RegexPatterns   []string `yaml:"regex_patterns" json:"regex_patterns"`
	ValueGroup      int      `yaml:"value_group" json:"value_group"`
	Patterns        []string `yaml:"patterns" json:"patterns"`
	SummaryPriority int      `yaml:"summary_priority" json:"summary_priority"`
}

// Entity returns the named entity, or nil.
func (d *DomainConfig) Entity(name string) *Entity {
	if e, ok := d.Entities[name]; ok {
		return &e
	}
	return nil
}

// Field returns the field declared under entity, or nil.
func (d *DomainConfig) Field(entity, field string) *Field {
	if fields, ok := d.Fields[entity]; ok {
		if f, ok := fields[field]; ok {
			return &f
		}
	}
	return nil
}

// EntitySynonyms returns the synonyms configured for an entity, always
// including the entity name itself.
func (d *DomainConfig) EntitySynonyms(entity string) []string {
	out := []string{entity}
	out = append(out, d.Vocabulary.EntitySynonyms[entity]...)
	return out
}

// FieldSynonyms returns the synonyms configured for entity.field, always
// including the field name itself.
func (d *DomainConfig) FieldSynonyms(entity, field string) []string {
	out := []string{field}
	if byField, ok := d.Vocabulary.FieldSynonyms[entity]; ok {
		out = append(out, byField[field]...)
	}
	return out
}

// PrimaryEntity returns the entity marked entity_type=primary, falling back
// to the only entity when exactly one is declared. Nil when undecidable.
func (d *DomainConfig) PrimaryEntity() *Entity {
	var only *Entity
	for _, e := range d.Entities {
		e := e
		if e.EntityType == "primary" {
			return &e
		}
		if len(d.Entities) == 1 {
			only = &e
		}
	}
	return only
}

// SecondaryEntity returns the entity marked entity_type=secondary, or nil.
func (d *DomainConfig) SecondaryEntity() *Entity {
	for _, e := range d.Entities {
		e := e
		if e.EntityType == "secondary" {
			return &e
		}
	}
	return nil
}

// ParseDomainConfig parses a domain YAML document.
func ParseDomainConfig(data []byte) (*DomainConfig, error) {
	var cfg DomainConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("[ParseDomainConfig] parse failed: %w", err)
	}
	if cfg.DomainName == "" {
		return nil, fmt.Errorf("[ParseDomainConfig] domain_name is required")
	}
	// Backfill names so lookups by map key and by field agree.
	for name, e := range cfg.Entities {
		if e.Name == "" {
			e.Name = name
			cfg.Entities[name] = e
		}
	}
	for entity, fields := range cfg.Fields {
		for name, f := range fields {
			if f.Name == "" {
				f.Name = name
				cfg.Fields[entity][name] = f
			}
		}
	}
	return &cfg, nil
}

// LoadDomainConfig reads and parses a domain YAML file.
func LoadDomainConfig(path string) (*DomainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[LoadDomainConfig] read %s: %w", path, err)
	}
	return ParseDomainConfig(data)
}
