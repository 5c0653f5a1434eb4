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

package vector

// ScoreConverter maps a backend score or distance onto confidence in [0,1].
// Each backend wires exactly one converter.
type ScoreConverter func(score float64) float64

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ChromaCosineDistance maps a cosine distance in [0,2] onto similarity:
// sim = 1 - d/2, clamped to [0,1].
func ChromaCosineDistance(distance float64) float64 {
	return clamp01(1 - distance/2)
}

// DirectSimilarity passes a similarity score through, clamped to [0,1].
// Used by Qdrant, whose scores are already similarities.
func DirectSimilarity(score float64) float64 {
	return clamp01(score)
}

// ScaledSimilarity passes the backend similarity through an optional scaling
// factor. Used by Pinecone and Elasticsearch.
func ScaledSimilarity(scaling float64) ScoreConverter {
	if scaling <= 0 {
		scaling = 1
	}
	return func(score float64) float64 {
		return clamp01(score * scaling)
	}
}

// MilvusScore converts by metric: IP and COSINE scores in [-1,1] shift to
// [0,1]; L2 distances decay with the scaling factor.
func MilvusScore(metric string, scale float64) ScoreConverter {
	switch metric {
	case "IP", "COSINE":
		return func(score float64) float64 {
			return clamp01((score + 1) / 2)
		}
	case "L2":
		return FallbackDistance(scale)
	default:
		return FallbackDistance(scale)
	}
}

// RedisScore converts RediSearch distances by metric. COSINE distances map
// to max(0, 1-d); L2 decays; IP passes through clamped.
func RedisScore(metric string, scale float64) ScoreConverter {
	switch metric {
	case "COSINE":
		return func(d float64) float64 {
			return clamp01(1 - d)
		}
	case "L2":
		return FallbackDistance(scale)
	case "IP":
		return DirectSimilarity
	default:
		return FallbackDistance(scale)
	}
}

// FallbackDistance is the default distance->similarity mapping
// sim = 1/(1 + d/scale).
func FallbackDistance(scale float64) ScoreConverter {
	if scale <= 0 {
		scale = 1
	}
	return func(distance float64) float64 {
		if distance < 0 {
			distance = 0
		}
		return clamp01(1 / (1 + distance/scale))
	}
}
