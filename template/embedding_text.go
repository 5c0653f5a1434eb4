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

package template

import (
	"strings"

	"github.com/schmitech/orbit-sub000/schema"
)

// EmbeddingText builds the text embedded for a template: description,
// NL examples, tags, parameter names, semantic tags, and the entity synonyms
// of the primary entity. This text is what queries are matched against, so
// the richer it is, the better recall the store gets.
func EmbeddingText(t *schema.Template, domain *schema.DomainConfig) string {
	var parts []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}

	add(t.Description)
	add(strings.Join(t.NLExamples, " "))
	add(strings.Join(t.Tags, " "))

	names := make([]string, 0, len(t.Parameters))
	for _, p := range t.Parameters {
		names = append(names, strings.ReplaceAll(p.Name, "_", " "))
	}
	add(strings.Join(names, " "))

	if st := t.SemanticTags; st != nil {
		add(st.Action)
		add(st.PrimaryEntity)
		add(st.SecondaryEntity)
		add(strings.Join(st.Qualifiers, " "))
		if domain != nil && st.PrimaryEntity != "" {
			add(strings.Join(domain.Vocabulary.EntitySynonyms[st.PrimaryEntity], " "))
		}
	}

	return strings.Join(parts, " ")
}
