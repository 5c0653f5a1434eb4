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

package domain

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/schmitech/orbit-sub000/schema"
)

// ParameterExtractor fills template parameters from a user query. Patterns
// are compiled once per domain at construction.
type ParameterExtractor struct {
	domain   *schema.DomainConfig
	strategy Strategy
	llm      model.BaseChatModel
	log      *logrus.Logger

	idPatterns map[string]*regexp.Regexp // entity.field -> pattern
	email      *regexp.Regexp
	numeric    *regexp.Regexp
	rangeRe    *regexp.Regexp
	phones     []*regexp.Regexp
	dateRes    []*regexp.Regexp
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"02-01-2006",
	"01-02-2006",
}

// NewParameterExtractor compiles the extraction machinery for one domain.
// llm is optional; when nil the LLM fallback step is skipped.
func NewParameterExtractor(domain *schema.DomainConfig, strategy Strategy, llm model.BaseChatModel, log *logrus.Logger) *ParameterExtractor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if strategy == nil {
		strategy = NewGenericStrategy(domain)
	}
	e := &ParameterExtractor{
		domain:     domain,
		strategy:   strategy,
		llm:        llm,
		log:        log,
		idPatterns: map[string]*regexp.Regexp{},
		email:      regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
		numeric:    regexp.MustCompile(`\$?\s*\d{1,3}(?:,\d{3})*(?:\.\d+)?|\$?\s*\d+(?:\.\d+)?`),
		rangeRe:    regexp.MustCompile(`(?i)between\s+(\$?\s*[\d,]+(?:\.\d+)?)\s+and\s+(\$?\s*[\d,]+(?:\.\d+)?)`),
		phones: []*regexp.Regexp{
			regexp.MustCompile(`\(\d{3}\)\s*\d{3}-\d{4}`),
			regexp.MustCompile(`\b\d{3}-\d{3}-\d{4}\b`),
			regexp.MustCompile(`\+1\s\d{3}\s\d{3}\s\d{4}`),
		},
		dateRes: []*regexp.Regexp{
			regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
			regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`),
			regexp.MustCompile(`\b\d{2}-\d{2}-\d{4}\b`),
		},
	}
	e.compileIDPatterns()
	return e
}

// compileIDPatterns builds one pattern per integer field whose name contains
// "id", anchored on the entity name and its synonyms.
func (e *ParameterExtractor) compileIDPatterns() {
	for entityName, fields := range e.domain.Fields {
		for fieldName, field := range fields {
			if !strings.Contains(strings.ToLower(fieldName), "id") {
				continue
			}
			if field.DataType != "" && field.DataType != "integer" && field.DataType != "int" {
				continue
			}
			synonyms := e.domain.EntitySynonyms(entityName)
			quoted := make([]string, 0, len(synonyms))
			for _, s := range synonyms {
				quoted = append(quoted, regexp.QuoteMeta(s))
			}
			pattern := `(?i)\b(?:` + strings.Join(quoted, "|") + `)\s*(?:id\s*)?(?:#|number|id)?\s*(\d+)`
			if re, err := regexp.Compile(pattern); err == nil {
				e.idPatterns[entityName+"."+fieldName] = re
			}
		}
	}
}

// Extract fills t's parameters from query. Missing optional parameters are
// simply absent from the result; missing required parameters may be filled
// by the LLM fallback or a configured default.
func (e *ParameterExtractor) Extract(ctx context.Context, query string, t *schema.Template) (map[string]any, error) {
	params := map[string]any{}

	for i := range t.Parameters {
		p := &t.Parameters[i]
		raw, found := e.extractOne(query, p)
		if !found {
			continue
		}
		val, err := ParseValue(p.Type, raw)
		if err != nil {
			e.log.WithFields(logrus.Fields{
				"parameter": p.Name,
				"value":     raw,
			}).WithError(err).Debug("extracted value failed type parsing")
			continue
		}
		params[p.Name] = val
	}

	e.fillFromLLM(ctx, query, t, params)

	for i := range t.Parameters {
		p := &t.Parameters[i]
		if _, ok := params[p.Name]; !ok && p.Default != nil {
			params[p.Name] = p.Default
		}
	}
	return params, nil
}

func (e *ParameterExtractor) extractOne(query string, p *schema.Parameter) (any, bool) {
	// Field-bound extraction: compiled ID patterns, then the field's own
	// extraction hints.
	if p.Entity != "" && p.Field != "" {
		key := p.Entity + "." + p.Field
		if re, ok := e.idPatterns[key]; ok {
			if m := re.FindStringSubmatch(query); m != nil {
				return m[1], true
			}
		}
		if f := e.domain.Field(p.Entity, p.Field); f != nil {
			if f.ExtractionHints != nil {
				if v, ok := e.applyHints(query, f.ExtractionHints); ok {
					return v, true
				}
			}
			if f.ExtractionPattern != "" {
				if re, err := regexp.Compile("(?i)" + f.ExtractionPattern); err == nil {
					if m := re.FindStringSubmatch(query); m != nil && len(m) > 1 {
						return m[1], true
					}
				}
			}
		}
		// Context form: "<field synonym>: value" or "<synonym> is value".
		if v, ok := e.contextExtract(query, e.domain.FieldSynonyms(p.Entity, p.Field)); ok {
			return v, true
		}
	}

	// Parameter-level hints.
	if p.ExtractionHints != nil {
		if v, ok := e.applyHints(query, p.ExtractionHints); ok {
			return v, true
		}
	}

	// Name-based context extraction for unbound parameters.
	if v, ok := e.contextExtract(query, []string{p.Name, strings.ReplaceAll(p.Name, "_", " ")}); ok {
		return v, true
	}

	// Domain strategy (semantic types).
	if v, ok := e.strategy.ExtractDomainParameter(query, p); ok {
		return v, true
	}

	return e.genericExtract(query, p)
}

// contextExtract matches "<synonym>[:=] value" and "<synonym> (is|equals|of) value".
func (e *ParameterExtractor) contextExtract(query string, synonyms []string) (any, bool) {
	for _, syn := range synonyms {
		if syn == "" {
			continue
		}
		quoted := regexp.QuoteMeta(syn)
		for _, pattern := range []string{
			`(?i)\b` + quoted + `\s*[:=]\s*("[^"]+"|'[^']+'|\S+)`,
			`(?i)\b` + quoted + `\s+(?:is|equals?|of)\s+("[^"]+"|'[^']+'|\S+)`,
		} {
			re, err := regexp.Compile(pattern)
			if err != nil {
				continue
			}
			if m := re.FindStringSubmatch(query); m != nil {
				return trimQuotes(strings.TrimRight(m[1], ".,!?")), true
			}
		}
	}
	return nil, false
}

// applyHints runs the extraction-hints ladder in order.
func (e *ParameterExtractor) applyHints(query string, hints *schema.ExtractionHints) (any, bool) {
	group := hints.ValueGroup
	if group <= 0 {
		group = 1
	}
	for _, p := range hints.RegexPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			continue
		}
		if m := re.FindStringSubmatch(query); m != nil && len(m) > group {
			return strings.TrimSpace(m[group]), true
		}
	}
	for _, p := range hints.Patterns {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(p) + `\s*[:= ]\s*("[^"]+"|'[^']+'|\S+)`)
		if err != nil {
			continue
		}
		if m := re.FindStringSubmatch(query); m != nil {
			return trimQuotes(m[1]), true
		}
	}
	if hints.LookForQuotes {
		if v, ok := quotedValue(query); ok {
			return v, true
		}
	}
	if hints.CapitalizationRequired {
		if v, ok := capitalizedName(query); ok {
			return v, true
		}
	}
	if hints.NumericRequired {
		if m := e.numeric.FindString(query); m != "" {
			return strings.TrimSpace(m), true
		}
	}
	for term, value := range hints.RelativeTerms {
		if strings.Contains(strings.ToLower(query), strings.ToLower(term)) {
			return value, true
		}
	}
	for _, format := range hints.Formats {
		re, err := regexp.Compile(format)
		if err != nil {
			continue
		}
		if m := re.FindString(query); m != "" {
			return m, true
		}
	}
	return nil, false
}

// genericExtract is the last-resort ladder keyed off the declared type.
func (e *ParameterExtractor) genericExtract(query string, p *schema.Parameter) (any, bool) {
	switch p.Type {
	case "date", "datetime":
		for _, re := range e.dateRes {
			if m := re.FindString(query); m != "" {
				return m, true
			}
		}
	case "integer", "int", "decimal", "float", "number":
		if m := e.rangeRe.FindStringSubmatch(query); m != nil {
			return map[string]any{"min": stripNumber(m[1]), "max": stripNumber(m[2])}, true
		}
		if m := e.numeric.FindString(query); m != "" {
			return strings.TrimSpace(m), true
		}
	}

	if len(p.AllowedValues) > 0 {
		lower := strings.ToLower(query)
		for _, v := range p.AllowedValues {
			if strings.Contains(lower, strings.ToLower(v)) {
				return v, true
			}
		}
	}

	if m := e.email.FindString(query); m != "" && strings.Contains(strings.ToLower(p.Name), "email") {
		return m, true
	}
	for _, re := range e.phones {
		if m := re.FindString(query); m != "" && strings.Contains(strings.ToLower(p.Name), "phone") {
			return m, true
		}
	}

	if p.Type == "string" || p.Type == "" {
		if v, ok := quotedValue(query); ok {
			return v, true
		}
		if v, ok := capitalizedName(query); ok {
			return v, true
		}
	}
	return nil, false
}

var (
	quotedRe      = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	capitalizedRe = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)+)\b`)
)

func quotedValue(query string) (string, bool) {
	if m := quotedRe.FindStringSubmatch(query); m != nil {
		if m[1] != "" {
			return m[1], true
		}
		return m[2], true
	}
	return "", false
}

// capitalizedName matches multi-word capitalized runs, e.g. person names.
func capitalizedName(query string) (string, bool) {
	if m := capitalizedRe.FindStringSubmatch(query); m != nil {
		return m[1], true
	}
	return "", false
}

func stripNumber(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	return strings.TrimSpace(s)
}

// ParseValue converts a raw extracted value to the parameter's declared type.
func ParseValue(paramType string, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	// Range values pass through; each bound is parsed recursively.
	if m, ok := raw.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			parsed, err := ParseValue(paramType, v)
			if err != nil {
				return nil, err
			}
			out[k] = parsed
		}
		return out, nil
	}

	s := strings.TrimSpace(cast.ToString(raw))
	switch paramType {
	case "integer", "int":
		n, err := cast.ToInt64E(stripNumber(s))
		if err != nil {
			return nil, fmt.Errorf("[ParseValue] %q is not an integer", s)
		}
		return n, nil
	case "decimal", "float", "number":
		d, err := decimal.NewFromString(stripNumber(s))
		if err != nil {
			return nil, fmt.Errorf("[ParseValue] %q is not a number", s)
		}
		f, _ := d.Float64()
		return f, nil
	case "date", "datetime":
		return NormalizeDate(s)
	case "boolean", "bool":
		switch strings.ToLower(s) {
		case "true", "yes", "1", "active", "enabled":
			return true, nil
		case "false", "no", "0", "inactive", "disabled":
			return false, nil
		}
		return nil, fmt.Errorf("[ParseValue] %q is not a boolean", s)
	default:
		return trimQuotes(s), nil
	}
}

// NormalizeDate parses the accepted date spellings and returns ISO
// YYYY-MM-DD. Ambiguous two-digit forms try day-first before month-first.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("[NormalizeDate] unrecognized date %q", s)
}

// Validate checks params against the template's declarations and the bound
// fields' validation rules. It returns ok plus per-parameter error lists.
func (e *ParameterExtractor) Validate(params map[string]any, t *schema.Template) (bool, map[string][]string) {
	errs := map[string][]string{}
	report := func(name, msg string) {
		errs[name] = append(errs[name], msg)
	}

	for i := range t.Parameters {
		p := &t.Parameters[i]

		var rules *schema.ValidationRules
		if p.Entity != "" && p.Field != "" {
			if f := e.domain.Field(p.Entity, p.Field); f != nil {
				rules = f.ValidationRules
			}
		}

		val, present := params[p.Name]
		if !present {
			if p.Required || (rules != nil && rules.Required) {
				report(p.Name, "required parameter missing")
			}
			continue
		}

		if len(p.AllowedValues) > 0 {
			s := cast.ToString(val)
			allowed := false
			for _, v := range p.AllowedValues {
				if strings.EqualFold(v, s) {
					allowed = true
					break
				}
			}
			if !allowed {
				report(p.Name, fmt.Sprintf("value %q not in allowed values", s))
			}
		}

		if rules == nil {
			continue
		}
		switch v := val.(type) {
		case int64:
			checkNumeric(float64(v), rules, p.Name, report)
		case float64:
			checkNumeric(v, rules, p.Name, report)
		case string:
			if rules.MinLength != nil && len(v) < *rules.MinLength {
				report(p.Name, fmt.Sprintf("shorter than min_length %d", *rules.MinLength))
			}
			if rules.MaxLength != nil && len(v) > *rules.MaxLength {
				report(p.Name, fmt.Sprintf("longer than max_length %d", *rules.MaxLength))
			}
			if rules.Pattern != "" {
				if re, err := regexp.Compile(rules.Pattern); err == nil && !re.MatchString(v) {
					desc := rules.PatternDescription
					if desc == "" {
						desc = "does not match required pattern"
					}
					report(p.Name, desc)
				}
			}
			if len(rules.AllowedValues) > 0 {
				allowed := false
				for _, a := range rules.AllowedValues {
					if strings.EqualFold(a, v) {
						allowed = true
						break
					}
				}
				if !allowed {
					report(p.Name, fmt.Sprintf("value %q not in allowed values", v))
				}
			}
		}
	}
	return len(errs) == 0, errs
}

func checkNumeric(v float64, rules *schema.ValidationRules, name string, report func(string, string)) {
	if rules.Min != nil && v < *rules.Min {
		report(name, fmt.Sprintf("below minimum %v", *rules.Min))
	}
	if rules.Max != nil && v > *rules.Max {
		report(name, fmt.Sprintf("above maximum %v", *rules.Max))
	}
}
