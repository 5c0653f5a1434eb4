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

package sqlintent

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// normalizeRow converts driver-native values into portable ones so rows can
// be formatted and serialized uniformly across backends.
func normalizeRow(row map[string]any) map[string]any {
	for name, value := range row {
		row[name] = normalizeValue(value)
	}
	return row
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case []byte:
		return strings.ToValidUTF8(string(v), "�")
	case time.Time:
		return v.Format(time.RFC3339)
	case uuid.UUID:
		return v.String()
	case decimal.Decimal:
		f, _ := v.Float64()
		return f
	case [16]byte:
		return uuid.UUID(v).String()
	default:
		return value
	}
}
