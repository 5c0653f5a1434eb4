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

// Package domain implements the config-driven extraction, validation,
// response generation and reranking subsystem. Everything here is driven by
// the domain YAML; no business logic is hardcoded.
package domain

import (
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/schmitech/orbit-sub000/schema"
)

// ExtractorFunc probes a query for one value.
type ExtractorFunc func(query string) (any, bool)

// Strategy captures the pluggable, per-domain behaviors of the intent
// pipeline. The generic strategy derives all of them from domain metadata;
// specialized strategies may register to override.
type Strategy interface {
	// DomainNames lists the domain_name / domain_type tags this strategy
	// serves.
	DomainNames() []string

	// CalculateDomainBoost may adjust a template's similarity with
	// domain-specific lexical cues. Bounded to [-0.3, 0.3].
	CalculateDomainBoost(match *schema.TemplateMatch, query string) float64

	// ExtractDomainParameter attempts a domain-specific extraction for one
	// template parameter.
	ExtractDomainParameter(query string, param *schema.Parameter) (any, bool)

	// SemanticExtractors maps semantic type names onto extraction functions.
	SemanticExtractors() map[string]ExtractorFunc

	// SummaryFieldPriority ranks a field for row summarization, 0 when the
	// strategy has no opinion.
	SummaryFieldPriority(field *schema.Field) int
}

// StrategyFactory builds a strategy for a domain config.
type StrategyFactory func(cfg *schema.DomainConfig) Strategy

// StrategyRegistry resolves strategies by domain name, then domain type,
// then custom registrations, falling back to the generic strategy.
type StrategyRegistry struct {
	mu        sync.RWMutex
	factories map[string]StrategyFactory
	log       *logrus.Logger
}

// NewStrategyRegistry builds an empty registry.
func NewStrategyRegistry(log *logrus.Logger) *StrategyRegistry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StrategyRegistry{factories: map[string]StrategyFactory{}, log: log}
}

// Register binds a domain name or type tag to a strategy factory.
func (r *StrategyRegistry) Register(tag string, factory StrategyFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[tag]; exists {
		r.log.WithField("tag", tag).Info("overwriting domain strategy registration")
	}
	r.factories[tag] = factory
}

// GetStrategy resolves the best strategy for cfg.
func (r *StrategyRegistry) GetStrategy(cfg *schema.DomainConfig) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.factories[cfg.DomainName]; ok {
		return f(cfg)
	}
	if f, ok := r.factories[cfg.DomainType]; ok {
		return f(cfg)
	}
	return NewGenericStrategy(cfg)
}

// GenericStrategy implements every capability from the declarative
// semantic_types and extraction_hints metadata.
type GenericStrategy struct {
	cfg        *schema.DomainConfig
	extractors map[string]ExtractorFunc
}

// NewGenericStrategy compiles a generic strategy for cfg.
func NewGenericStrategy(cfg *schema.DomainConfig) *GenericStrategy {
	s := &GenericStrategy{cfg: cfg, extractors: map[string]ExtractorFunc{}}
	for name, st := range cfg.SemanticTypes {
		s.extractors[name] = compileSemanticExtractor(st)
	}
	return s
}

func compileSemanticExtractor(st schema.SemanticType) ExtractorFunc {
	group := st.ValueGroup
	if group <= 0 {
		group = 1
	}
	var regexps []*regexp.Regexp
	for _, p := range st.RegexPatterns {
		if re, err := regexp.Compile("(?i)" + p); err == nil {
			regexps = append(regexps, re)
		}
	}
	var literals []*regexp.Regexp
	for _, p := range st.Patterns {
		// literal patterns match as "<pattern>[:= ]<value>"
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(p) + `\s*[:= ]\s*("[^"]+"|'[^']+'|\S+)`)
		if err == nil {
			literals = append(literals, re)
		}
	}
	return func(query string) (any, bool) {
		for _, re := range regexps {
			if m := re.FindStringSubmatch(query); m != nil && len(m) > group {
				return strings.TrimSpace(m[group]), true
			}
		}
		for _, re := range literals {
			if m := re.FindStringSubmatch(query); m != nil {
				return trimQuotes(strings.TrimSpace(m[1])), true
			}
		}
		return nil, false
	}
}

func (s *GenericStrategy) DomainNames() []string {
	return []string{s.cfg.DomainName, s.cfg.DomainType}
}

func (s *GenericStrategy) CalculateDomainBoost(match *schema.TemplateMatch, query string) float64 {
	return 0
}

func (s *GenericStrategy) ExtractDomainParameter(query string, param *schema.Parameter) (any, bool) {
	semanticType := param.SemanticType
	if semanticType == "" && param.Entity != "" && param.Field != "" {
		if f := s.cfg.Field(param.Entity, param.Field); f != nil {
			semanticType = f.SemanticType
		}
	}
	if semanticType == "" {
		return nil, false
	}
	extract, ok := s.extractors[semanticType]
	if !ok {
		return nil, false
	}
	return extract(query)
}

func (s *GenericStrategy) SemanticExtractors() map[string]ExtractorFunc {
	return s.extractors
}

func (s *GenericStrategy) SummaryFieldPriority(field *schema.Field) int {
	if field.SemanticType == "" {
		return 0
	}
	if st, ok := s.cfg.SemanticTypes[field.SemanticType]; ok {
		return st.SummaryPriority
	}
	return 0
}

func trimQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '\'' || first == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

var _ Strategy = &GenericStrategy{}
