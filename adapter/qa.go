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
	"fmt"
	"strings"

	"github.com/schmitech/orbit-sub000/schema"
)

// QAAdapter shapes question/answer style documents. When metadata carries a
// question and an answer the content becomes a readable QA pair and the
// answer can be surfaced as a direct answer.
type QAAdapter struct {
	// ConfidenceCutoff is the minimum confidence for a direct answer.
	// Zero means the default of 0.8.
	ConfidenceCutoff float64
}

func NewQAAdapter() *QAAdapter { return &QAAdapter{} }

func (a *QAAdapter) cutoff() float64 {
	if a.ConfidenceCutoff <= 0 {
		return 0.8
	}
	return a.ConfidenceCutoff
}

func (a *QAAdapter) FormatDocument(raw string, metadata map[string]any) schema.ContextItem {
	item := schema.ContextItem{
		Content:     raw,
		RawDocument: raw,
		Metadata:    cloneMeta(metadata),
	}

	question, qok := metadata["question"].(string)
	answer, aok := metadata["answer"].(string)
	if qok && aok && question != "" && answer != "" {
		item.Content = fmt.Sprintf("Question: %s\nAnswer: %s", question, answer)
	}
	return item
}

func (a *QAAdapter) ExtractDirectAnswer(items []schema.ContextItem) string {
	if len(items) == 0 {
		return ""
	}
	best := items[0]
	if best.Confidence < a.cutoff() {
		return ""
	}
	if answer, ok := best.Metadata["answer"].(string); ok {
		return answer
	}
	return ""
}

// ApplyDomainFiltering boosts items whose question shares words with the
// query. Items are not dropped; ordering is re-established by the pipeline.
func (a *QAAdapter) ApplyDomainFiltering(items []schema.ContextItem, query string) []schema.ContextItem {
	queryWords := tokenize(query)
	if len(queryWords) == 0 {
		return items
	}
	for i := range items {
		question, _ := items[i].Metadata["question"].(string)
		if question == "" {
			continue
		}
		overlap := wordOverlap(queryWords, tokenize(question))
		if overlap > 0 {
			boosted := items[i].Confidence + 0.05*overlap
			if boosted > 1.0 {
				boosted = 1.0
			}
			items[i].Confidence = boosted
		}
	}
	return items
}

func tokenize(s string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:\"'")
		if len(w) > 2 {
			words[w] = struct{}{}
		}
	}
	return words
}

func wordOverlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 {
		return 0
	}
	var n int
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return float64(n) / float64(len(a))
}

func cloneMeta(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
