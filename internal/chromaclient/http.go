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

package chromaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient talks to a Chroma server over the v1 REST API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a client for the given base URL, e.g.
// "http://localhost:8000". The underlying transport keeps a small pool of
// idle connections.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 5,
				MaxConnsPerHost:     10,
			},
		},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("[chroma] encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("[chroma] build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("[chroma] %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("[chroma] read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("[chroma] %s %s: %w", method, path, ErrCollectionNotFound)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("[chroma] %s %s: status %d: %s", method, path, resp.StatusCode, string(payload))
	}
	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("[chroma] decode response: %w", err)
		}
	}
	return nil
}

func (c *HTTPClient) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/heartbeat", nil, nil)
}

type collectionInfo struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

func (c *HTTPClient) GetCollection(ctx context.Context, name string) (Collection, error) {
	var info collectionInfo
	if err := c.do(ctx, http.MethodGet, "/api/v1/collections/"+name, nil, &info); err != nil {
		return nil, err
	}
	return &httpCollection{client: c, info: info}, nil
}

func (c *HTTPClient) GetOrCreateCollection(ctx context.Context, name string, metadata map[string]any) (Collection, error) {
	body := map[string]any{"name": name, "get_or_create": true}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}
	var info collectionInfo
	if err := c.do(ctx, http.MethodPost, "/api/v1/collections", body, &info); err != nil {
		return nil, err
	}
	return &httpCollection{client: c, info: info}, nil
}

func (c *HTTPClient) DeleteCollection(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/collections/"+name, nil, nil)
}

func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

type httpCollection struct {
	client *HTTPClient
	info   collectionInfo
}

func (col *httpCollection) Name() string             { return col.info.Name }
func (col *httpCollection) Metadata() map[string]any { return col.info.Metadata }

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

func (col *httpCollection) Query(ctx context.Context, embedding []float64, nResults int) ([]QueryResult, error) {
	body := map[string]any{
		"query_embeddings": [][]float64{embedding},
		"n_results":        nResults,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	var resp queryResponse
	if err := col.client.do(ctx, http.MethodPost, "/api/v1/collections/"+col.info.ID+"/query", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	results := make([]QueryResult, 0, len(resp.IDs[0]))
	for i, id := range resp.IDs[0] {
		r := QueryResult{ID: id}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			r.Document = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			r.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			r.Distance = resp.Distances[0][i]
		}
		results = append(results, r)
	}
	return results, nil
}

func (col *httpCollection) Add(ctx context.Context, ids []string, embeddings [][]float64, documents []string, metadatas []map[string]any) error {
	body := map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	return col.client.do(ctx, http.MethodPost, "/api/v1/collections/"+col.info.ID+"/add", body, nil)
}

func (col *httpCollection) Count(ctx context.Context) (int, error) {
	var count int
	if err := col.client.do(ctx, http.MethodGet, "/api/v1/collections/"+col.info.ID+"/count", nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

var _ Client = &HTTPClient{}
