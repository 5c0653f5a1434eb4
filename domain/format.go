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
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/schmitech/orbit-sub000/schema"
)

// FormatValue shapes a raw result value according to the field's
// display_format. Unknown formats fall back to plain stringification; bare
// floats round to the field's decimal_places hint (default 2).
func FormatValue(value any, field *schema.Field) string {
	if value == nil {
		return ""
	}
	format := ""
	if field != nil {
		format = field.DisplayFormat
	}

	switch format {
	case "currency":
		if d, err := toDecimal(value); err == nil {
			return "$" + formatThousands(d.StringFixed(2))
		}
	case "percentage":
		if d, err := toDecimal(value); err == nil {
			// Fractions scale up: 0.153 displays as 15.3%.
			if d.Abs().LessThan(decimal.NewFromInt(1)) && !d.IsZero() {
				d = d.Mul(decimal.NewFromInt(100))
			}
			return d.StringFixed(1) + "%"
		}
	case "date":
		if t, ok := toTime(value); ok {
			return t.Format("January 2, 2006")
		}
	case "datetime":
		if t, ok := toTime(value); ok {
			return t.Format("January 2, 2006 at 3:04 PM")
		}
	case "phone":
		if formatted, ok := formatPhone(cast.ToString(value)); ok {
			return formatted
		}
	case "title_case":
		return titleCase(cast.ToString(value))
	case "upper_case":
		return strings.ToUpper(cast.ToString(value))
	case "lower_case":
		return strings.ToLower(cast.ToString(value))
	}

	switch v := value.(type) {
	case float32, float64:
		places := 2
		if field != nil && field.ExtractionHints != nil && field.ExtractionHints.DecimalPlaces != nil {
			places = *field.ExtractionHints.DecimalPlaces
		}
		if d, err := toDecimal(v); err == nil {
			return d.StringFixed(int32(places))
		}
	}
	return cast.ToString(value)
}

func toDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case string:
		return decimal.NewFromString(stripNumber(v))
	default:
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromFloat(f), nil
	}
}

// formatThousands inserts comma separators into the integer part of a fixed
// decimal string.
func formatThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, fracPart, hasFrac := strings.Cut(s, ".")

	var sb strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	out := sb.String()
	if hasFrac {
		out += "." + fracPart
	}
	if neg {
		out = "-" + out
	}
	return out
}

func toTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

var nonDigitRe = regexp.MustCompile(`\D`)

func formatPhone(s string) (string, bool) {
	digits := nonDigitRe.ReplaceAllString(s, "")
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", false
	}
	return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:]), true
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
