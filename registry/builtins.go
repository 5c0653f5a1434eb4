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

package registry

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/retriever"
	"github.com/schmitech/orbit-sub000/retriever/vector/chroma"
	"github.com/schmitech/orbit-sub000/retriever/vector/es8"
	"github.com/schmitech/orbit-sub000/retriever/vector/milvus"
	"github.com/schmitech/orbit-sub000/retriever/vector/pinecone"
	"github.com/schmitech/orbit-sub000/retriever/vector/qdrant"
	"github.com/schmitech/orbit-sub000/retriever/vector/redis"
)

// Factory config keys carrying typed runtime collaborators. Everything else
// in the map is decoded as datasource parameters.
const (
	cfgKeyDatasourceName = "datasource_name"
	cfgKeyDatasource     = "datasource"
	cfgKeyEmbedder       = "embedder"
	cfgKeyVerbose        = "verbose"
	cfgKeyLogger         = "logger"
)

// RegisterBuiltinRetrievers installs the constructor for every vector
// backend shipped with the core. Intent and composite retrievers need typed
// collaborators (adapters, executors, managers) and are wired directly.
func RegisterBuiltinRetrievers(f *Factory) {
	f.RegisterRetriever("chroma", func(cfg map[string]any) (retriever.Retriever, error) {
		common, err := commonFrom(cfg)
		if err != nil {
			return nil, err
		}
		return chroma.NewRetriever(context.Background(), &chroma.RetrieverConfig{
			DatasourceName: common.name,
			Datasource:     common.ds,
			Embedder:       common.embedder,
			Verbose:        common.verbose,
			Logger:         common.logger,
		})
	})
	f.RegisterRetriever("qdrant", func(cfg map[string]any) (retriever.Retriever, error) {
		common, err := commonFrom(cfg)
		if err != nil {
			return nil, err
		}
		return qdrant.NewRetriever(context.Background(), &qdrant.RetrieverConfig{
			DatasourceName: common.name,
			Datasource:     common.ds,
			Embedder:       common.embedder,
			Verbose:        common.verbose,
			Logger:         common.logger,
		})
	})
	f.RegisterRetriever("pinecone", func(cfg map[string]any) (retriever.Retriever, error) {
		common, err := commonFrom(cfg)
		if err != nil {
			return nil, err
		}
		return pinecone.NewRetriever(context.Background(), &pinecone.RetrieverConfig{
			DatasourceName: common.name,
			Datasource:     common.ds,
			Embedder:       common.embedder,
			Verbose:        common.verbose,
			Logger:         common.logger,
		})
	})
	f.RegisterRetriever("redis", func(cfg map[string]any) (retriever.Retriever, error) {
		common, err := commonFrom(cfg)
		if err != nil {
			return nil, err
		}
		return redis.NewRetriever(context.Background(), &redis.RetrieverConfig{
			DatasourceName: common.name,
			Datasource:     common.ds,
			Embedder:       common.embedder,
			Verbose:        common.verbose,
			Logger:         common.logger,
		})
	})
	f.RegisterRetriever("elasticsearch", func(cfg map[string]any) (retriever.Retriever, error) {
		common, err := commonFrom(cfg)
		if err != nil {
			return nil, err
		}
		return es8.NewRetriever(context.Background(), &es8.RetrieverConfig{
			DatasourceName: common.name,
			Datasource:     common.ds,
			Embedder:       common.embedder,
			Verbose:        common.verbose,
			Logger:         common.logger,
		})
	})
	f.RegisterRetriever("milvus", func(cfg map[string]any) (retriever.Retriever, error) {
		common, err := commonFrom(cfg)
		if err != nil {
			return nil, err
		}
		return milvus.NewRetriever(context.Background(), &milvus.RetrieverConfig{
			DatasourceName: common.name,
			Datasource:     common.ds,
			Embedder:       common.embedder,
			Verbose:        common.verbose,
			Logger:         common.logger,
		})
	})
}

type commonConfig struct {
	name     string
	ds       config.DatasourceConfig
	embedder embedding.Embedder
	verbose  bool
	logger   *logrus.Logger
}

// commonFrom pulls the shared collaborators out of a factory config map.
// The datasource may be a typed config.DatasourceConfig or a plain YAML-ish
// map, which is decoded through its yaml tags.
func commonFrom(cfg map[string]any) (commonConfig, error) {
	out := commonConfig{}
	if v, ok := cfg[cfgKeyDatasourceName].(string); ok {
		out.name = v
	}
	if v, ok := cfg[cfgKeyEmbedder].(embedding.Embedder); ok {
		out.embedder = v
	}
	if v, ok := cfg[cfgKeyVerbose].(bool); ok {
		out.verbose = v
	}
	if v, ok := cfg[cfgKeyLogger].(*logrus.Logger); ok {
		out.logger = v
	}

	switch ds := cfg[cfgKeyDatasource].(type) {
	case nil:
	case config.DatasourceConfig:
		out.ds = ds
	case map[string]any:
		data, err := yaml.Marshal(ds)
		if err != nil {
			return out, fmt.Errorf("[registry] encode datasource config: %w", err)
		}
		if err := yaml.Unmarshal(data, &out.ds); err != nil {
			return out, fmt.Errorf("[registry] decode datasource config: %w", err)
		}
	default:
		return out, fmt.Errorf("[registry] unsupported datasource config type %T: %w", ds, retriever.ErrConfigInvalid)
	}
	return out, nil
}
