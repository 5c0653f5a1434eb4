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

// Package httpintent executes intent templates against HTTP APIs. Each
// template carries a request directive whose URL, headers and body are
// rendered before dispatch.
package httpintent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"

	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/retriever"
	"github.com/schmitech/orbit-sub000/schema"
	"github.com/schmitech/orbit-sub000/template"
)

// AuthType selects how credentials are attached to outgoing requests.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBasic  AuthType = "basic_auth"
	AuthAPIKey AuthType = "api_key"
	AuthBearer AuthType = "bearer_token"
)

// AuthConfig names the auth scheme and where its credentials live.
// Credential values of the form ${NAME} resolve from the environment.
type AuthConfig struct {
	Type AuthType `yaml:"type"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Header and Key configure api_key auth, default header X-API-Key.
	Header string `yaml:"header"`
	Key    string `yaml:"key"`

	Token string `yaml:"token"`
}

// Executor dispatches rendered HTTP request templates over a pooled client.
type Executor struct {
	baseURL   string
	auth      AuthConfig
	client    *http.Client
	processor *template.Processor
	log       *logrus.Logger
}

// NewExecutor builds an HTTP executor. baseURL prefixes relative template
// URLs; absolute URLs in templates are used as-is.
func NewExecutor(baseURL string, auth AuthConfig, ds config.DatasourceConfig, domain *schema.DomainConfig, log *logrus.Logger) *Executor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if auth.Type == "" {
		auth.Type = AuthNone
	}
	return &Executor{
		baseURL: strings.TrimRight(config.ResolveEnv(baseURL), "/"),
		auth:    auth,
		client: &http.Client{
			Timeout: ds.EffectiveTimeout(),
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 5,
				MaxConnsPerHost:     10,
			},
		},
		processor: template.NewProcessor(domain),
		log:       log,
	}
}

// Connect verifies the auth configuration; the API itself is probed lazily
// per request.
func (e *Executor) Connect(ctx context.Context) error {
	switch e.auth.Type {
	case AuthNone:
		return nil
	case AuthBasic:
		if config.ResolveEnv(e.auth.Username) == "" {
			return fmt.Errorf("[Connect] basic_auth username not configured: %w", retriever.ErrConfigInvalid)
		}
	case AuthAPIKey:
		if config.ResolveEnv(e.auth.Key) == "" {
			return fmt.Errorf("[Connect] api_key credential not configured: %w", retriever.ErrConfigInvalid)
		}
	case AuthBearer:
		if config.ResolveEnv(e.auth.Token) == "" {
			return fmt.Errorf("[Connect] bearer token not configured: %w", retriever.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("[Connect] unknown auth type %q: %w", e.auth.Type, retriever.ErrConfigInvalid)
	}
	return nil
}

// Execute renders and dispatches the template's request. Non-2xx statuses
// are errors so the pipeline moves on to the next template.
func (e *Executor) Execute(ctx context.Context, t *schema.Template, params map[string]any) ([]map[string]any, error) {
	if t.HTTPRequest == nil {
		return nil, fmt.Errorf("[Execute] template %s has no http request", t.ID)
	}
	env := e.processor.BaseContext()
	for k, v := range params {
		env[k] = v
	}
	env["parameters"] = params

	url, err := e.processor.Render(t.HTTPRequest.URL, env, false)
	if err != nil {
		return nil, fmt.Errorf("[Execute] render url for %s: %w", t.ID, err)
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = e.baseURL + "/" + strings.TrimLeft(url, "/")
	}

	var body io.Reader
	if t.HTTPRequest.Body != "" {
		rendered, err := e.processor.Render(t.HTTPRequest.Body, env, false)
		if err != nil {
			return nil, fmt.Errorf("[Execute] render body for %s: %w", t.ID, err)
		}
		body = strings.NewReader(rendered)
	}

	method := t.HTTPRequest.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("[Execute] build request for %s: %w", t.ID, err)
	}
	for name, value := range t.HTTPRequest.Headers {
		rendered, err := e.processor.Render(value, env, false)
		if err != nil {
			return nil, fmt.Errorf("[Execute] render header %s for %s: %w", name, t.ID, err)
		}
		req.Header.Set(name, rendered)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	e.applyAuth(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[Execute] %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("[Execute] read response for %s: %w", t.ID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("[Execute] %s %s: status %d", method, url, resp.StatusCode)
	}
	return decodeRows(payload)
}

func (e *Executor) applyAuth(req *http.Request) {
	switch e.auth.Type {
	case AuthBasic:
		req.SetBasicAuth(config.ResolveEnv(e.auth.Username), config.ResolveEnv(e.auth.Password))
	case AuthAPIKey:
		header := e.auth.Header
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, config.ResolveEnv(e.auth.Key))
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+config.ResolveEnv(e.auth.Token))
	}
}

// decodeRows accepts a JSON array of objects, a single object, or an object
// wrapping the rows under results/data/items.
func decodeRows(payload []byte) ([]map[string]any, error) {
	var asList []map[string]any
	if err := sonic.Unmarshal(payload, &asList); err == nil {
		return asList, nil
	}
	var asObject map[string]any
	if err := sonic.Unmarshal(payload, &asObject); err != nil {
		return nil, fmt.Errorf("[Execute] decode response: %w", err)
	}
	for _, key := range []string{"results", "data", "items"} {
		wrapped, ok := asObject[key].([]any)
		if !ok {
			continue
		}
		rows := make([]map[string]any, 0, len(wrapped))
		for _, item := range wrapped {
			if row, ok := item.(map[string]any); ok {
				rows = append(rows, row)
			}
		}
		return rows, nil
	}
	return []map[string]any{asObject}, nil
}

// Close releases idle connections.
func (e *Executor) Close(ctx context.Context) error {
	e.client.CloseIdleConnections()
	return nil
}
