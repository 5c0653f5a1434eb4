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

// Package template renders declarative query templates and maintains the
// vector store used to match user queries against them.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cast"

	"github.com/schmitech/orbit-sub000/schema"
)

// Processor renders template bodies against a variable environment built
// from the domain config plus per-query parameters.
//
// The supported dialect is a deliberate subset: {{ expr }} substitution with
// filter chains, {% if %}/{% else %}/{% endif %} blocks,
// {% set x = joiner(sep) %} declarations, and the sql_string, sql_list,
// sql_identifier and tojson filters.
type Processor struct {
	domain *schema.DomainConfig

	// WrapLikeParameters enables %value% wrapping for LIKE-targeted string
	// parameters whose name contains "name".
	WrapLikeParameters bool
}

// NewProcessor builds a processor for one domain.
func NewProcessor(domain *schema.DomainConfig) *Processor {
	return &Processor{domain: domain, WrapLikeParameters: true}
}

// BaseContext derives the always-available variable environment from the
// domain config. Runtime parameters are merged on top by RenderSQL.
func (p *Processor) BaseContext() map[string]any {
	ctx := map[string]any{}
	if p.domain == nil {
		return ctx
	}
	ctx["domain_name"] = p.domain.DomainName
	ctx["domain_type"] = p.domain.DomainType

	entities := map[string]any{}
	tables := map[string]any{}
	for name, e := range p.domain.Entities {
		entities[name] = map[string]any{
			"name":              e.Name,
			"table_name":        e.TableName,
			"primary_key":       e.PrimaryKey,
			"searchable_fields": e.SearchableFields,
		}
		tables[name] = e.TableName
	}
	ctx["entities"] = entities
	ctx["tables"] = tables

	primary := p.domain.PrimaryEntity()
	if primary != nil {
		ctx["primary_entity"] = primary.Name
		ctx["primary_table"] = primary.TableName
	}
	secondary := p.domain.SecondaryEntity()
	ctx["has_secondary_entity"] = secondary != nil
	if secondary != nil {
		ctx["secondary_entity"] = secondary.Name
		ctx["secondary_table"] = secondary.TableName
	}
	return ctx
}

// RenderSQL applies the LIKE wrapping policy to a copy of params, merges it
// over the base context and renders the template's SQL body. The returned map
// holds the effective parameter values and is what callers must bind with.
func (p *Processor) RenderSQL(t *schema.Template, params map[string]any) (string, map[string]any, error) {
	env := p.BaseContext()
	merged := make(map[string]any, len(params))
	for k, v := range params {
		merged[k] = v
	}
	if p.WrapLikeParameters {
		wrapLikeParams(t.SQLTemplate, merged)
	}
	for k, v := range merged {
		env[k] = v
	}
	env["parameters"] = merged
	rendered, err := p.Render(t.SQLTemplate, env, false)
	if err != nil {
		return "", nil, err
	}
	return rendered, merged, nil
}

// wrapLikeParams rewrites string values of parameters whose name contains
// "name" to %value% when the SQL uses LIKE, matching the matching semantics
// the templates were written against.
func wrapLikeParams(sql string, params map[string]any) {
	if !strings.Contains(strings.ToUpper(sql), "LIKE") {
		return
	}
	for name, v := range params {
		if !strings.Contains(strings.ToLower(name), "name") {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		s = stripOuterQuotes(s)
		if s == "" || (strings.HasPrefix(s, "%") && strings.HasSuffix(s, "%")) {
			continue
		}
		params[name] = "%" + s + "%"
	}
}

func stripOuterQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '\'' || first == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

var (
	tokenRe     = regexp.MustCompile(`\{\{.*?\}\}|\{%.*?%\}`)
	blankLineRe = regexp.MustCompile(`\n[ \t]*\n([ \t]*\n)+`)
)

// Render evaluates body against env. With preserveUnknown, undefined output
// variables round-trip verbatim as {{ var }}; otherwise they are an error.
// Undefined variables in if-conditions are always treated as false.
func (p *Processor) Render(body string, env map[string]any, preserveUnknown bool) (string, error) {
	nodes, err := parse(body)
	if err != nil {
		return "", err
	}
	scope := make(map[string]any, len(env))
	for k, v := range env {
		scope[k] = v
	}
	var sb strings.Builder
	if err := renderNodes(nodes, scope, preserveUnknown, &sb); err != nil {
		return "", err
	}
	return blankLineRe.ReplaceAllString(sb.String(), "\n\n"), nil
}

type nodeKind int

const (
	nodeText nodeKind = iota
	nodeOutput
	nodeSet
	nodeIf
)

type node struct {
	kind nodeKind
	raw  string // original token text, used for preserve_unknown
	expr string // output expression or if condition
	name string // set target

	thenBranch []node
	elseBranch []node
}

func parse(body string) ([]node, error) {
	tokens := tokenize(body)
	nodes, rest, err := parseBlock(tokens, "")
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("[template] unexpected %q", rest[0].raw)
	}
	return nodes, nil
}

type token struct {
	text bool
	raw  string
}

func stmtOf(raw string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(raw, "{%"), "%}"))
}

func tokenize(body string) []token {
	var tokens []token
	last := 0
	for _, loc := range tokenRe.FindAllStringIndex(body, -1) {
		if loc[0] > last {
			tokens = append(tokens, token{text: true, raw: body[last:loc[0]]})
		}
		tokens = append(tokens, token{raw: body[loc[0]:loc[1]]})
		last = loc[1]
	}
	if last < len(body) {
		tokens = append(tokens, token{text: true, raw: body[last:]})
	}
	return tokens
}

// parseBlock consumes tokens until the matching terminator ("endif" or end of
// input when terminator is empty) and returns the remaining tokens.
func parseBlock(tokens []token, terminator string) ([]node, []token, error) {
	var nodes []node
	for len(tokens) > 0 {
		tok := tokens[0]
		if tok.text {
			nodes = append(nodes, node{kind: nodeText, raw: tok.raw})
			tokens = tokens[1:]
			continue
		}
		if strings.HasPrefix(tok.raw, "{{") {
			expr := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(tok.raw, "{{"), "}}"))
			nodes = append(nodes, node{kind: nodeOutput, raw: tok.raw, expr: expr})
			tokens = tokens[1:]
			continue
		}

		stmt := stmtOf(tok.raw)
		switch {
		case stmt == terminator:
			return nodes, tokens, nil
		case stmt == "else" && terminator == "endif":
			return nodes, tokens, nil
		case strings.HasPrefix(stmt, "if "):
			cond := strings.TrimSpace(strings.TrimPrefix(stmt, "if "))
			thenNodes, rest, err := parseBlock(tokens[1:], "endif")
			if err != nil {
				return nil, nil, err
			}
			n := node{kind: nodeIf, raw: tok.raw, expr: cond, thenBranch: thenNodes}
			if len(rest) > 0 && !rest[0].text && stmtOf(rest[0].raw) == "else" {
				elseNodes, afterElse, err := parseBlock(rest[1:], "endif")
				if err != nil {
					return nil, nil, err
				}
				n.elseBranch = elseNodes
				rest = afterElse
			}
			if len(rest) == 0 {
				return nil, nil, fmt.Errorf("[template] unterminated if block")
			}
			tokens = rest[1:] // consume endif
			nodes = append(nodes, n)
		case strings.HasPrefix(stmt, "set "):
			assignment := strings.TrimSpace(strings.TrimPrefix(stmt, "set "))
			name, expr, ok := strings.Cut(assignment, "=")
			if !ok {
				return nil, nil, fmt.Errorf("[template] malformed set: %q", stmt)
			}
			nodes = append(nodes, node{
				kind: nodeSet,
				raw:  tok.raw,
				name: strings.TrimSpace(name),
				expr: strings.TrimSpace(expr),
			})
			tokens = tokens[1:]
		default:
			return nil, nil, fmt.Errorf("[template] unknown statement %q", stmt)
		}
	}
	if terminator != "" {
		return nil, nil, fmt.Errorf("[template] missing {%% %s %%}", terminator)
	}
	return nodes, tokens, nil
}

func renderNodes(nodes []node, scope map[string]any, preserveUnknown bool, sb *strings.Builder) error {
	for _, n := range nodes {
		switch n.kind {
		case nodeText:
			sb.WriteString(n.raw)
		case nodeOutput:
			val, found, err := evalExpr(n.expr, scope)
			if err != nil {
				return err
			}
			if !found {
				if preserveUnknown {
					sb.WriteString(n.raw)
					continue
				}
				return fmt.Errorf("[template] undefined variable %q", n.expr)
			}
			sb.WriteString(stringify(val))
		case nodeSet:
			val, _, err := evalExpr(n.expr, scope)
			if err != nil {
				return err
			}
			scope[n.name] = val
		case nodeIf:
			val, found, err := evalExpr(n.expr, scope)
			if err != nil {
				return err
			}
			branch := n.elseBranch
			if found && truthy(val) {
				branch = n.thenBranch
			}
			if err := renderNodes(branch, scope, preserveUnknown, sb); err != nil {
				return err
			}
		}
	}
	return nil
}

var callRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\(\s*(.*?)\s*\)$`)

// evalExpr evaluates "primary | filter | filter". The found flag is false
// only when the primary is an undefined variable.
func evalExpr(expr string, scope map[string]any) (any, bool, error) {
	parts := strings.Split(expr, "|")
	primary := strings.TrimSpace(parts[0])

	val, found, err := evalPrimary(primary, scope)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	for _, part := range parts[1:] {
		val, err = applyFilter(strings.TrimSpace(part), val)
		if err != nil {
			return nil, false, err
		}
	}
	return val, true, nil
}

func evalPrimary(primary string, scope map[string]any) (any, bool, error) {
	// String literal.
	if len(primary) >= 2 {
		first, last := primary[0], primary[len(primary)-1]
		if first == last && (first == '\'' || first == '"') {
			return primary[1 : len(primary)-1], true, nil
		}
	}

	// Call: joiner("sep") or a stored joiner invocation x().
	if m := callRe.FindStringSubmatch(primary); m != nil {
		name, arg := m[1], m[2]
		if name == "joiner" {
			return newJoiner(stripOuterQuotes(arg)), true, nil
		}
		if v, ok := scope[name]; ok {
			if j, ok := v.(*joinerState); ok {
				return j.next(), true, nil
			}
			return nil, false, fmt.Errorf("[template] %q is not callable", name)
		}
		return nil, false, nil
	}

	// Dotted variable path.
	var cur any = scope
	for _, seg := range strings.Split(primary, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false, nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false, nil
		}
	}
	return cur, true, nil
}

func applyFilter(name string, val any) (any, error) {
	switch name {
	case "sql_string":
		return sqlString(val), nil
	case "sql_list":
		return sqlList(val), nil
	case "sql_identifier":
		s := cast.ToString(val)
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`, nil
	case "json", "tojson":
		out, err := sonic.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("[template] tojson: %w", err)
		}
		return string(out), nil
	default:
		return nil, fmt.Errorf("[template] unknown filter %q", name)
	}
}

func sqlString(val any) string {
	if val == nil {
		return "NULL"
	}
	s := cast.ToString(val)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func sqlList(val any) string {
	if val == nil {
		return "NULL"
	}
	items, err := cast.ToSliceE(val)
	if err != nil || len(items) == 0 {
		return "NULL"
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, sqlString(item))
	}
	return strings.Join(parts, ", ")
}

func stringify(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case *joinerState:
		return ""
	default:
		return cast.ToString(val)
	}
}

func truthy(val any) bool {
	switch v := val.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

// joinerState yields "" on the first call and the separator afterwards.
type joinerState struct {
	sep   string
	fired bool
}

func newJoiner(sep string) *joinerState { return &joinerState{sep: sep} }

func (j *joinerState) next() string {
	if !j.fired {
		j.fired = true
		return ""
	}
	return j.sep
}
