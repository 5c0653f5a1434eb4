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

package httpintent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/retriever"
	"github.com/schmitech/orbit-sub000/schema"
)

func httpDomain() *schema.DomainConfig {
	return &schema.DomainConfig{
		DomainName: "support_tickets",
		Entities: map[string]schema.Entity{
			"ticket": {Name: "ticket", EntityType: "primary", TableName: "tickets", PrimaryKey: "id"},
		},
	}
}

func newTestExecutor(t *testing.T, handler http.Handler, auth AuthConfig) *Executor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewExecutor(srv.URL, auth, config.DatasourceConfig{}, httpDomain(), nil)
}

func ticketTemplate() *schema.Template {
	return &schema.Template{
		ID: "ticket_lookup",
		HTTPRequest: &schema.HTTPRequest{
			Method: http.MethodGet,
			URL:    "/tickets/{{ ticket_id }}",
		},
	}
}

func TestConnectValidatesAuth(t *testing.T) {
	ds := config.DatasourceConfig{}
	ctx := context.Background()

	e := NewExecutor("http://api.internal", AuthConfig{}, ds, httpDomain(), nil)
	require.NoError(t, e.Connect(ctx))

	e = NewExecutor("http://api.internal", AuthConfig{Type: AuthBasic}, ds, httpDomain(), nil)
	assert.ErrorIs(t, e.Connect(ctx), retriever.ErrConfigInvalid)

	e = NewExecutor("http://api.internal", AuthConfig{Type: AuthAPIKey}, ds, httpDomain(), nil)
	assert.ErrorIs(t, e.Connect(ctx), retriever.ErrConfigInvalid)

	e = NewExecutor("http://api.internal", AuthConfig{Type: AuthBearer}, ds, httpDomain(), nil)
	assert.ErrorIs(t, e.Connect(ctx), retriever.ErrConfigInvalid)

	e = NewExecutor("http://api.internal", AuthConfig{Type: "kerberos"}, ds, httpDomain(), nil)
	assert.ErrorIs(t, e.Connect(ctx), retriever.ErrConfigInvalid)

	t.Setenv("SUPPORT_API_TOKEN", "tok-123")
	e = NewExecutor("http://api.internal", AuthConfig{Type: AuthBearer, Token: "${SUPPORT_API_TOKEN}"}, ds, httpDomain(), nil)
	require.NoError(t, e.Connect(ctx))
}

func TestExecuteRendersURLAndDecodesList(t *testing.T) {
	var gotPath string
	e := newTestExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 7, "subject": "printer on fire"},
		})
	}), AuthConfig{})

	rows, err := e.Execute(context.Background(), ticketTemplate(), map[string]any{"ticket_id": 7})
	require.NoError(t, err)
	assert.Equal(t, "/tickets/7", gotPath)
	require.Len(t, rows, 1)
	assert.Equal(t, "printer on fire", rows[0]["subject"])
}

func TestExecuteRendersBodyAndHeaders(t *testing.T) {
	var gotBody map[string]any
	var gotContentType, gotTenant string
	e := newTestExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotTenant = r.Header.Get("X-Tenant")
		payload, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(payload, &gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"created": true})
	}), AuthConfig{})

	tpl := &schema.Template{
		ID: "ticket_search",
		HTTPRequest: &schema.HTTPRequest{
			Method:  http.MethodPost,
			URL:     "/tickets/search",
			Body:    `{"status": {{ status|tojson }}}`,
			Headers: map[string]string{"X-Tenant": "{{ tenant }}"},
		},
	}
	rows, err := e.Execute(context.Background(), tpl, map[string]any{
		"status": "open",
		"tenant": "acme",
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, true, rows[0]["created"])
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "acme", gotTenant)
	assert.Equal(t, map[string]any{"status": "open"}, gotBody)
}

func TestExecuteAuthSchemes(t *testing.T) {
	var gotAuth, gotAPIKey, gotCustom string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("X-API-Key")
		gotCustom = r.Header.Get("X-Service-Key")
		_, _ = w.Write([]byte("[]"))
	})

	t.Run("basic", func(t *testing.T) {
		e := newTestExecutor(t, handler, AuthConfig{Type: AuthBasic, Username: "svc", Password: "hunter2"})
		_, err := e.Execute(context.Background(), ticketTemplate(), map[string]any{"ticket_id": 1})
		require.NoError(t, err)
		assert.Contains(t, gotAuth, "Basic ")
	})

	t.Run("api key default header", func(t *testing.T) {
		e := newTestExecutor(t, handler, AuthConfig{Type: AuthAPIKey, Key: "k-123"})
		_, err := e.Execute(context.Background(), ticketTemplate(), map[string]any{"ticket_id": 1})
		require.NoError(t, err)
		assert.Equal(t, "k-123", gotAPIKey)
	})

	t.Run("api key custom header", func(t *testing.T) {
		e := newTestExecutor(t, handler, AuthConfig{Type: AuthAPIKey, Header: "X-Service-Key", Key: "k-456"})
		_, err := e.Execute(context.Background(), ticketTemplate(), map[string]any{"ticket_id": 1})
		require.NoError(t, err)
		assert.Equal(t, "k-456", gotCustom)
	})

	t.Run("bearer", func(t *testing.T) {
		e := newTestExecutor(t, handler, AuthConfig{Type: AuthBearer, Token: "tok-789"})
		_, err := e.Execute(context.Background(), ticketTemplate(), map[string]any{"ticket_id": 1})
		require.NoError(t, err)
		assert.Equal(t, "Bearer tok-789", gotAuth)
	})
}

func TestExecuteNon2xxIsError(t *testing.T) {
	e := newTestExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}), AuthConfig{})

	_, err := e.Execute(context.Background(), ticketTemplate(), map[string]any{"ticket_id": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestExecuteRequiresHTTPTemplate(t *testing.T) {
	e := NewExecutor("http://api.internal", AuthConfig{}, config.DatasourceConfig{}, httpDomain(), nil)
	_, err := e.Execute(context.Background(), &schema.Template{ID: "sql_only", SQLTemplate: "SELECT 1"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no http request")
}

func TestExecuteAbsoluteURLBypassesBase(t *testing.T) {
	var hit bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	// Base URL points nowhere; the template's absolute URL wins.
	e := NewExecutor("http://base.invalid", AuthConfig{}, config.DatasourceConfig{}, httpDomain(), nil)
	tpl := &schema.Template{
		ID:          "absolute",
		HTTPRequest: &schema.HTTPRequest{URL: srv.URL + "/tickets"},
	}
	_, err := e.Execute(context.Background(), tpl, nil)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestDecodeRows(t *testing.T) {
	rows, err := decodeRows([]byte(`[{"a": 1}, {"a": 2}]`))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = decodeRows([]byte(`{"results": [{"a": 1}]}`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 1, rows[0]["a"])

	rows, err = decodeRows([]byte(`{"data": [{"a": 1}, {"a": 2}]}`))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = decodeRows([]byte(`{"a": 1}`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 1, rows[0]["a"])

	_, err = decodeRows([]byte(`not json`))
	assert.Error(t, err)
}
