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
	"strings"

	"github.com/bytedance/sonic"
	einoschema "github.com/cloudwego/eino/schema"

	"github.com/schmitech/orbit-sub000/schema"
)

const notFoundSentinel = "NOT_FOUND"

// fillFromLLM asks the inference provider for required parameters the
// pattern ladder could not extract. One call per single missing parameter, a
// batched JSON call when two or more are missing. Values that fail type
// parsing are treated as absent.
func (e *ParameterExtractor) fillFromLLM(ctx context.Context, query string, t *schema.Template, params map[string]any) {
	if e.llm == nil {
		return
	}

	var missing []*schema.Parameter
	for i := range t.Parameters {
		p := &t.Parameters[i]
		if _, ok := params[p.Name]; !ok && p.Required {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return
	}

	if len(missing) == 1 {
		p := missing[0]
		value, ok := e.askSingle(ctx, query, p)
		if !ok {
			return
		}
		if parsed, err := ParseValue(p.Type, value); err == nil {
			params[p.Name] = parsed
		}
		return
	}

	for name, value := range e.askBatch(ctx, query, missing) {
		for _, p := range missing {
			if p.Name != name {
				continue
			}
			if parsed, err := ParseValue(p.Type, value); err == nil {
				params[p.Name] = parsed
			}
		}
	}
}

func (e *ParameterExtractor) askSingle(ctx context.Context, query string, p *schema.Parameter) (string, bool) {
	prompt := fmt.Sprintf(
		"Extract the value of parameter %q (%s) from the user request below.\n"+
			"Parameter description: %s\n"+
			"Reply with ONLY the bare value, or %s if the request does not contain it.\n\n"+
			"Request: %s",
		p.Name, p.Type, p.Description, notFoundSentinel, query)

	msg, err := e.llm.Generate(ctx, []*einoschema.Message{einoschema.UserMessage(prompt)})
	if err != nil {
		e.log.WithError(err).Debug("llm parameter fallback failed")
		return "", false
	}
	answer := strings.TrimSpace(msg.Content)
	if answer == "" || strings.EqualFold(answer, notFoundSentinel) {
		return "", false
	}
	return answer, true
}

func (e *ParameterExtractor) askBatch(ctx context.Context, query string, missing []*schema.Parameter) map[string]string {
	var sb strings.Builder
	for _, p := range missing {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", p.Name, p.Type, p.Description)
	}
	prompt := fmt.Sprintf(
		"Extract the following parameters from the user request below.\n%s"+
			"Reply with ONLY a JSON object mapping each parameter name to its bare value, "+
			"using %q for parameters the request does not contain.\n\n"+
			"Request: %s",
		sb.String(), notFoundSentinel, query)

	msg, err := e.llm.Generate(ctx, []*einoschema.Message{einoschema.UserMessage(prompt)})
	if err != nil {
		e.log.WithError(err).Debug("llm batch parameter fallback failed")
		return nil
	}

	raw := strings.TrimSpace(msg.Content)
	// Tolerate fenced output.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var decoded map[string]any
	if err := sonic.Unmarshal([]byte(strings.TrimSpace(raw)), &decoded); err != nil {
		e.log.WithError(err).Debug("llm batch response is not valid JSON")
		return nil
	}

	out := make(map[string]string, len(decoded))
	for name, v := range decoded {
		s := strings.TrimSpace(fmt.Sprintf("%v", v))
		if s == "" || strings.EqualFold(s, notFoundSentinel) {
			continue
		}
		out[name] = s
	}
	return out
}
