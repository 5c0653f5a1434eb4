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
	"sort"
	"strings"

	"github.com/schmitech/orbit-sub000/schema"
)

// semanticTypeDefaults rank fields by semantic type when neither an explicit
// summary_priority nor a strategy opinion exists.
var semanticTypeDefaults = map[string]int{
	"identifier":     90,
	"person_name":    85,
	"name":           85,
	"monetary":       85,
	"monetary_value": 85,
	"status":         80,
	"email":          75,
	"email_address":  75,
	"date":           70,
	"date_value":     70,
	"phone":          65,
	"location":       60,
}

// nameHeuristics rank fields by substring when nothing else applies.
var nameHeuristics = []struct {
	substrings []string
	priority   int
}{
	{[]string{"id"}, 50},
	{[]string{"name", "title"}, 45},
	{[]string{"status", "state"}, 40},
	{[]string{"date", "time"}, 35},
	{[]string{"amount", "total", "price"}, 30},
}

// FieldPriority ranks a field for row summarization. Higher wins. Every
// field gets at least 1 so it can still appear when space allows.
func FieldPriority(field *schema.Field, strategy Strategy) int {
	if field == nil {
		return 1
	}
	if field.SummaryPriority > 0 {
		return field.SummaryPriority
	}
	if strategy != nil {
		if p := strategy.SummaryFieldPriority(field); p > 0 {
			return p
		}
	}
	if p, ok := semanticTypeDefaults[field.SemanticType]; ok {
		return p
	}
	lower := strings.ToLower(field.Name)
	for _, h := range nameHeuristics {
		for _, sub := range h.substrings {
			if strings.Contains(lower, sub) {
				return h.priority
			}
		}
	}
	return 1
}

// TopFields orders the row's field names by priority and returns up to n.
// Fields absent from the domain config still rank via name heuristics.
func TopFields(row map[string]any, entity string, domain *schema.DomainConfig, strategy Strategy, n int) []string {
	type ranked struct {
		name     string
		priority int
	}
	fields := make([]ranked, 0, len(row))
	for name := range row {
		f := domain.Field(entity, name)
		if f == nil {
			f = &schema.Field{Name: name}
		}
		fields = append(fields, ranked{name: name, priority: FieldPriority(f, strategy)})
	}
	sort.SliceStable(fields, func(i, j int) bool {
		if fields[i].priority != fields[j].priority {
			return fields[i].priority > fields[j].priority
		}
		return fields[i].name < fields[j].name
	})
	if n > 0 && len(fields) > n {
		fields = fields[:n]
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.name)
	}
	return out
}
