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

package redis

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/retriever"
)

func TestNewRetrieverValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewRetriever(ctx, nil)
	assert.ErrorIs(t, err, retriever.ErrConfigInvalid)

	_, err = NewRetriever(ctx, &RetrieverConfig{})
	assert.ErrorIs(t, err, retriever.ErrConfigInvalid)

	r, err := NewRetriever(ctx, &RetrieverConfig{
		Datasource: config.DatasourceConfig{Host: "localhost", Collection: "docs"},
	})
	require.NoError(t, err)
	assert.Equal(t, "redis", r.DatasourceName)

	r, err = NewRetriever(ctx, &RetrieverConfig{
		DatasourceName: "redis_main",
		Client:         redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "redis_main", r.DatasourceName)
}

func TestVector2Bytes(t *testing.T) {
	out := vector2Bytes([]float64{1, 0.5})
	require.Len(t, out, 8)

	first := math.Float32frombits(binary.LittleEndian.Uint32(out[:4]))
	second := math.Float32frombits(binary.LittleEndian.Uint32(out[4:]))
	assert.Equal(t, float32(1), first)
	assert.Equal(t, float32(0.5), second)

	assert.Empty(t, vector2Bytes(nil))
}
