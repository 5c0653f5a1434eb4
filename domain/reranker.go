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

// Boost weights applied on top of raw vector similarity.
const (
	boostPrimaryEntity = 0.2
	boostEntitySynonym = 0.15
	boostAction        = 0.15
	boostQualifier     = 0.1
	boostTag           = 0.05
	boostExampleMax    = 0.2
	jaccardFloor       = 0.5
	strategyBoostCap   = 0.3
)

// Reranker adjusts template match similarity with lexical boosts from the
// domain vocabulary, then re-sorts descending.
type Reranker struct {
	domain   *schema.DomainConfig
	strategy Strategy
	library  *schema.TemplateLibrary
}

// NewReranker builds a reranker over the template library.
func NewReranker(domain *schema.DomainConfig, strategy Strategy, library *schema.TemplateLibrary) *Reranker {
	if strategy == nil {
		strategy = NewGenericStrategy(domain)
	}
	return &Reranker{domain: domain, strategy: strategy, library: library}
}

// Rerank returns the matches with adjusted similarity, best first. The input
// slice is not modified.
func (r *Reranker) Rerank(matches []schema.TemplateMatch, query string) []schema.TemplateMatch {
	out := make([]schema.TemplateMatch, len(matches))
	copy(out, matches)

	queryLower := strings.ToLower(query)
	queryTokens := tokenSet(queryLower)

	for i := range out {
		t := r.library.Get(out[i].TemplateID)
		if t == nil {
			continue
		}
		boost := r.boostFor(t, queryLower, queryTokens)
		s := r.strategy.CalculateDomainBoost(&out[i], query)
		if s > strategyBoostCap {
			s = strategyBoostCap
		}
		if s < -strategyBoostCap {
			s = -strategyBoostCap
		}
		adjusted := out[i].Similarity + boost + s
		if adjusted > 1 {
			adjusted = 1
		}
		if adjusted < 0 {
			adjusted = 0
		}
		out[i].Similarity = adjusted
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	return out
}

func (r *Reranker) boostFor(t *schema.Template, queryLower string, queryTokens map[string]bool) float64 {
	var boost float64

	if st := t.SemanticTags; st != nil {
		if st.PrimaryEntity != "" && strings.Contains(queryLower, strings.ToLower(st.PrimaryEntity)) {
			boost += boostPrimaryEntity
		} else if st.PrimaryEntity != "" {
			for _, syn := range r.domain.Vocabulary.EntitySynonyms[st.PrimaryEntity] {
				if strings.Contains(queryLower, strings.ToLower(syn)) {
					boost += boostEntitySynonym
					break
				}
			}
		}
		if st.Action != "" && strings.Contains(queryLower, strings.ToLower(st.Action)) {
			boost += boostAction
		}
		for _, q := range st.Qualifiers {
			if strings.Contains(queryLower, strings.ToLower(q)) {
				boost += boostQualifier
			}
		}
	}

	for _, tag := range t.Tags {
		if strings.Contains(queryLower, strings.ToLower(tag)) {
			boost += boostTag
		}
	}

	best := 0.0
	for _, example := range t.NLExamples {
		if j := jaccard(queryTokens, tokenSet(strings.ToLower(example))); j > best {
			best = j
		}
	}
	if best >= jaccardFloor {
		boost += best * boostExampleMax
	}

	return boost
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, tok := range strings.Fields(s) {
		tok = strings.Trim(tok, ".,!?;:'\"")
		if tok != "" {
			set[tok] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
