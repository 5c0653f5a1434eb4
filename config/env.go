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

package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

var envRefPattern = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// ResolveEnv resolves values written as ${NAME} from the environment.
// A missing variable logs a warning and yields the empty string; any other
// value is returned unchanged.
func ResolveEnv(value string) string {
	m := envRefPattern.FindStringSubmatch(value)
	if m == nil {
		return value
	}
	resolved, ok := os.LookupEnv(m[1])
	if !ok {
		logrus.WithField("variable", m[1]).Warn("environment variable not set, using empty value")
		return ""
	}
	return resolved
}

// Keys whose values are masked in log output.
var secretKeys = []string{"password", "api_key", "apikey", "secret", "token", "credential"}

// MaskSecrets returns a copy of params with secret-looking values replaced
// by "***" so connection parameters can be logged safely.
func MaskSecrets(params map[string]any) map[string]any {
	masked := make(map[string]any, len(params))
	for k, v := range params {
		if isSecretKey(k) {
			if s, ok := v.(string); !ok || s != "" {
				masked[k] = "***"
				continue
			}
		}
		masked[k] = v
	}
	return masked
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
