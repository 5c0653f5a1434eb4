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

	"github.com/schmitech/orbit-sub000/schema"
)

// IntentAdapter owns the loaded domain configuration and the template
// library of an intent retriever. Document shaping is a passthrough; the
// intent pipeline produces already formatted answers.
type IntentAdapter struct {
	generic GenericAdapter

	domain  *schema.DomainConfig
	library *schema.TemplateLibrary
}

// NewIntentAdapter loads the domain config and merges the template library
// files in order (later files win on id collisions).
func NewIntentAdapter(domainPath string, templatePaths ...string) (*IntentAdapter, error) {
	domain, err := schema.LoadDomainConfig(domainPath)
	if err != nil {
		return nil, fmt.Errorf("[NewIntentAdapter] domain config: %w", err)
	}
	library, err := schema.LoadTemplateLibrary(templatePaths...)
	if err != nil {
		return nil, fmt.Errorf("[NewIntentAdapter] template library: %w", err)
	}
	return &IntentAdapter{domain: domain, library: library}, nil
}

// NewIntentAdapterFromParts builds an adapter around already loaded config,
// used by tests and by callers that assemble configuration themselves.
func NewIntentAdapterFromParts(domain *schema.DomainConfig, library *schema.TemplateLibrary) *IntentAdapter {
	return &IntentAdapter{domain: domain, library: library}
}

// Domain returns the loaded domain configuration.
func (a *IntentAdapter) Domain() *schema.DomainConfig { return a.domain }

// Library returns the loaded template library.
func (a *IntentAdapter) Library() *schema.TemplateLibrary { return a.library }

func (a *IntentAdapter) FormatDocument(raw string, metadata map[string]any) schema.ContextItem {
	return a.generic.FormatDocument(raw, metadata)
}

func (a *IntentAdapter) ExtractDirectAnswer([]schema.ContextItem) string { return "" }

func (a *IntentAdapter) ApplyDomainFiltering(items []schema.ContextItem, _ string) []schema.ContextItem {
	return items
}
