// Package logging builds the application logger and masks credentials in
// log output.
package logging

import (
	"regexp"
	"strings"
)

// SensitiveFields contains attribute keys whose values are never logged.
var SensitiveFields = map[string]bool{
	"api_key":        true,
	"apikey":         true,
	"secret":         true,
	"token":          true,
	"password":       true,
	"authorization":  true,
	"x-api-key":      true,
	"x-goog-api-key": true,
}

// MaskedValue is the string used to replace sensitive values.
const MaskedValue = "[REDACTED]"

// IsSensitiveField checks if an attribute key is sensitive.
func IsSensitiveField(fieldName string) bool {
	lowerField := strings.ToLower(fieldName)

	if SensitiveFields[lowerField] {
		return true
	}

	for sensitive := range SensitiveFields {
		if strings.Contains(lowerField, sensitive) {
			return true
		}
	}

	return false
}

// MaskAPIKey masks an API key, showing only the first and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return MaskedValue
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// SensitivePatterns match credentials embedded in free text such as
// upstream error messages.
var SensitivePatterns = []*regexp.Regexp{
	// key=... and api_key: ... forms, including URL query parameters
	regexp.MustCompile(`(?i)(api[_-]?key|key|token|secret)(["':\s]*[=:]\s*["']?)([a-zA-Z0-9_\-\.]{8,})`),
	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.]+`),
	// Google API keys
	regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`),
}

// MaskSensitivePatterns masks sensitive patterns in a raw string.
func MaskSensitivePatterns(s string) string {
	result := s
	for _, pattern := range SensitivePatterns {
		result = pattern.ReplaceAllString(result, MaskedValue)
	}
	return result
}
