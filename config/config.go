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

// Package config holds the read-only per-request configuration bundle
// consumed by the retriever core. A Config is never mutated after load.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration bundle.
type Config struct {
	General     GeneralConfig               `yaml:"general"`
	Embedding   EmbeddingConfig             `yaml:"embedding"`
	Inference   InferenceConfig             `yaml:"inference"`
	Datasources map[string]DatasourceConfig `yaml:"datasources"`
	Stores      StoresConfig                `yaml:"stores"`
	Adapters    []AdapterEntry              `yaml:"adapters"`
	AdapterCfg  map[string]any              `yaml:"adapter_config"`
	Messages    MessagesConfig              `yaml:"messages"`
}

type GeneralConfig struct {
	Verbose bool `yaml:"verbose"`
}

type EmbeddingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
}

type InferenceConfig struct {
	Provider string `yaml:"provider"`
}

type MessagesConfig struct {
	CollectionNotFound string `yaml:"collection_not_found"`
}

// StoresConfig holds named store definitions, currently vector stores only.
type StoresConfig struct {
	VectorStores map[string]VectorStoreConfig `yaml:"vector_stores"`
}

type VectorStoreConfig struct {
	Type             string         `yaml:"type"`
	ConnectionParams map[string]any `yaml:"connection_params"`
	Enabled          bool           `yaml:"enabled"`
	PoolSize         int            `yaml:"pool_size"`
	Timeout          time.Duration  `yaml:"timeout"`
	AutoCleanup      bool           `yaml:"auto_cleanup"`
}

// AdapterEntry wires a datasource to an adapter implementation. Entries
// missing any of Type, Datasource, Adapter or Implementation are skipped by
// the registry loader with a warning.
type AdapterEntry struct {
	Type           string         `yaml:"type"`
	Datasource     string         `yaml:"datasource"`
	Adapter        string         `yaml:"adapter"`
	Implementation string         `yaml:"implementation"`
	Enabled        *bool          `yaml:"enabled"`
	Config         map[string]any `yaml:"config"`
}

// IsEnabled treats a missing enabled flag as true.
func (e AdapterEntry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// DatasourceConfig carries the connection parameters and retrieval tuning of
// one backend.
type DatasourceConfig struct {
	// Connection parameters, backend specific. Values of the form ${NAME}
	// are resolved from the environment at pull time.
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	APIKey   string `yaml:"api_key"`
	Database string `yaml:"database"`
	UseTLS   bool   `yaml:"use_ssl"`

	Collection           string `yaml:"collection"`
	AutoCreateCollection bool   `yaml:"auto_create_collection"`

	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	RelevanceThreshold  float64 `yaml:"relevance_threshold"`
	MaxResults          int     `yaml:"max_results"`
	ReturnResults       int     `yaml:"return_results"`

	ConnectionTimeout time.Duration `yaml:"connection_timeout"`

	// DistanceScalingFactor tunes the fallback distance->similarity mapping.
	DistanceScalingFactor float64 `yaml:"distance_scaling_factor"`
	// ScoreScalingFactor optionally scales backend similarity scores.
	ScoreScalingFactor float64 `yaml:"score_scaling_factor"`

	// Extra keeps any backend specific keys not modeled above.
	Extra map[string]any `yaml:",inline"`
}

// Defaults mirroring the source behavior when a threshold is unset.
const (
	DefaultMaxResults            = 10
	DefaultReturnResults         = 5
	DefaultDistanceScalingFactor = 200.0
	DefaultConnectionTimeout     = 30 * time.Second
)

// EffectiveMaxResults applies the default when unset.
func (d DatasourceConfig) EffectiveMaxResults() int {
	if d.MaxResults <= 0 {
		return DefaultMaxResults
	}
	return d.MaxResults
}

// EffectiveReturnResults applies the default when unset.
func (d DatasourceConfig) EffectiveReturnResults() int {
	if d.ReturnResults <= 0 {
		return DefaultReturnResults
	}
	return d.ReturnResults
}

// EffectiveDistanceScaling applies the default when unset.
func (d DatasourceConfig) EffectiveDistanceScaling() float64 {
	if d.DistanceScalingFactor <= 0 {
		return DefaultDistanceScalingFactor
	}
	return d.DistanceScalingFactor
}

// EffectiveTimeout applies the default when unset.
func (d DatasourceConfig) EffectiveTimeout() time.Duration {
	if d.ConnectionTimeout <= 0 {
		return DefaultConnectionTimeout
	}
	return d.ConnectionTimeout
}

// ExtraString pulls a string key out of Extra with env resolution applied.
func (d DatasourceConfig) ExtraString(key string) string {
	if v, ok := d.Extra[key]; ok {
		if s, ok := v.(string); ok {
			return ResolveEnv(s)
		}
	}
	return ""
}

// Datasource returns the named datasource config.
func (c *Config) Datasource(name string) (DatasourceConfig, bool) {
	ds, ok := c.Datasources[name]
	return ds, ok
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[config.Load] read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses a YAML configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("[config.Parse] parse failed: %w", err)
	}
	return &cfg, nil
}
