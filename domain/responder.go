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
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/schmitech/orbit-sub000/schema"
)

const (
	maxSummarizedRows  = 10
	maxSummarizedField = 5
)

// aggregateMarkers flag result fields that carry metric values in summary
// responses.
var aggregateMarkers = []string{"sum", "avg", "average", "count", "total", "max", "min"}

// ResponseGenerator turns raw result rows into a user-facing answer, shaped
// by the template's result_format and the domain's display metadata.
type ResponseGenerator struct {
	domain   *schema.DomainConfig
	strategy Strategy
	llm      model.BaseChatModel
	log      *logrus.Logger
}

// NewResponseGenerator builds a generator. llm is optional; without it the
// formatted data is returned directly instead of a conversational answer.
func NewResponseGenerator(domain *schema.DomainConfig, strategy Strategy, llm model.BaseChatModel, log *logrus.Logger) *ResponseGenerator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if strategy == nil {
		strategy = NewGenericStrategy(domain)
	}
	return &ResponseGenerator{domain: domain, strategy: strategy, llm: llm, log: log}
}

// Generate produces the answer string for one executed template.
func (g *ResponseGenerator) Generate(ctx context.Context, query string, rows []map[string]any, t *schema.Template) (string, error) {
	if len(rows) == 0 {
		return g.generateNoResults(ctx, query, t)
	}
	switch t.ResultFormat {
	case schema.ResultFormatSummary:
		return g.generateSummary(ctx, query, rows, t)
	default:
		return g.generateTable(ctx, query, rows, t)
	}
}

// GenerateError produces a user-facing message for a failed execution
// without leaking backend detail.
func (g *ResponseGenerator) GenerateError(ctx context.Context, query string) string {
	prompt := fmt.Sprintf(
		"The user asked: %q. The lookup could not be completed. "+
			"Write one short, polite sentence acknowledging the problem and "+
			"suggesting they rephrase or try again. Do not mention technical details.",
		query)
	if answer, ok := g.ask(ctx, prompt); ok {
		return answer
	}
	return "Something went wrong while looking that up. Please try again."
}

// FormatRows renders rows as a plain-text table, used for
// metadata.formatted_data and as the deterministic fallback answer.
func (g *ResponseGenerator) FormatRows(rows []map[string]any, t *schema.Template) string {
	if len(rows) == 0 {
		return ""
	}
	entity := primaryEntityOf(t)
	columns := TopFields(rows[0], entity, g.domain, g.strategy, 0)

	var sb strings.Builder
	sb.WriteString(strings.Join(columns, " | "))
	sb.WriteByte('\n')
	sb.WriteString(strings.Repeat("-", len(strings.Join(columns, " | "))))
	sb.WriteByte('\n')
	for _, row := range rows {
		cells := make([]string, 0, len(columns))
		for _, col := range columns {
			cells = append(cells, FormatValue(row[col], g.domain.Field(entity, col)))
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (g *ResponseGenerator) generateTable(ctx context.Context, query string, rows []map[string]any, t *schema.Template) (string, error) {
	summary := g.summarizeRows(rows, t)
	prompt := fmt.Sprintf(
		"The user asked: %q\nQuery purpose: %s\nTotal results: %d\n\n"+
			"Here are the top results:\n%s\n"+
			"Answer the user conversationally using these results. Be concise.",
		query, t.Description, len(rows), summary)
	if answer, ok := g.ask(ctx, prompt); ok {
		return answer, nil
	}
	return g.FormatRows(rows, t), nil
}

func (g *ResponseGenerator) generateSummary(ctx context.Context, query string, rows []map[string]any, t *schema.Template) (string, error) {
	metrics := extractMetrics(rows)
	var metricsBlock strings.Builder
	if len(metrics) > 0 {
		metricsBlock.WriteString("Key Metrics:\n")
		for _, m := range metrics {
			fmt.Fprintf(&metricsBlock, "- %s: %v\n", m.name, m.value)
		}
	}
	prompt := fmt.Sprintf(
		"The user asked: %q\nQuery purpose: %s\nTotal results: %d\n\n%s\n"+
			"Summarize these aggregated results conversationally. Be concise.",
		query, t.Description, len(rows), metricsBlock.String())
	if answer, ok := g.ask(ctx, prompt); ok {
		return answer, nil
	}
	return metricsBlock.String(), nil
}

func (g *ResponseGenerator) generateNoResults(ctx context.Context, query string, t *schema.Template) (string, error) {
	var criteria strings.Builder
	for name, entity := range g.domain.Entities {
		if len(entity.SearchableFields) == 0 {
			continue
		}
		fmt.Fprintf(&criteria, "- %s: %s\n", name, strings.Join(entity.SearchableFields, ", "))
	}
	prompt := fmt.Sprintf(
		"The user asked: %q but no matching records were found.\n"+
			"Searchable criteria by entity:\n%s\n"+
			"Write a short, helpful reply saying nothing matched and what they can search by.",
		query, criteria.String())
	if answer, ok := g.ask(ctx, prompt); ok {
		return answer, nil
	}
	return "No matching records were found.", nil
}

// summarizeRows formats the top rows using the highest-priority fields.
func (g *ResponseGenerator) summarizeRows(rows []map[string]any, t *schema.Template) string {
	entity := primaryEntityOf(t)
	limit := len(rows)
	if limit > maxSummarizedRows {
		limit = maxSummarizedRows
	}
	var sb strings.Builder
	for i := 0; i < limit; i++ {
		fields := TopFields(rows[i], entity, g.domain, g.strategy, maxSummarizedField)
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parts = append(parts, fmt.Sprintf("%s=%s", f, FormatValue(rows[i][f], g.domain.Field(entity, f))))
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.Join(parts, ", "))
	}
	return sb.String()
}

type metric struct {
	name  string
	value any
}

func extractMetrics(rows []map[string]any) []metric {
	if len(rows) == 0 {
		return nil
	}
	var metrics []metric
	for name, value := range rows[0] {
		lower := strings.ToLower(name)
		for _, marker := range aggregateMarkers {
			if strings.Contains(lower, marker) {
				metrics = append(metrics, metric{name: name, value: value})
				break
			}
		}
	}
	// Map iteration order is random; keep the metrics block stable.
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].name < metrics[j].name })
	return metrics
}

func (g *ResponseGenerator) ask(ctx context.Context, prompt string) (string, bool) {
	if g.llm == nil {
		return "", false
	}
	msg, err := g.llm.Generate(ctx, []*einoschema.Message{einoschema.UserMessage(prompt)})
	if err != nil {
		g.log.WithError(err).Debug("response generation inference failed")
		return "", false
	}
	answer := strings.TrimSpace(msg.Content)
	return answer, answer != ""
}

func primaryEntityOf(t *schema.Template) string {
	if t.SemanticTags != nil {
		return t.SemanticTags.PrimaryEntity
	}
	return ""
}
