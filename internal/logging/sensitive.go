// Package logging keeps secrets out of slog records. The daemon echoes
// its configuration at startup, and several settings (webhook URLs,
// bucket credentials, the reset-code hash) must not land in the journal
// verbatim.
package logging

import "strings"

// SensitiveFields names config keys whose values are masked in logs.
// Matching is by substring, so "s3_secret_access_key" is caught by
// "secret" and "access_key", and "slack_webhook_url" by "webhook".
var SensitiveFields = map[string]bool{
	"password":        true,
	"passwd":          true,
	"secret":          true,
	"token":           true,
	"api_key":         true,
	"apikey":          true,
	"access_key":      true,
	"secret_key":      true,
	"credentials":     true,
	"auth":            true,
	"authorization":   true,
	"webhook":         true,
	"webhook_url":     true,
	"reset_code":      true,
	"reset_code_hash": true,
}

// MaskedValue replaces sensitive values in log output.
const MaskedValue = "[REDACTED]"

// IsSensitiveField reports whether a field name should be masked.
func IsSensitiveField(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	if SensitiveFields[lower] {
		return true
	}
	for sensitive := range SensitiveFields {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}

// MaskSensitiveValue masks value if fieldName is sensitive; empty values
// pass through so log lines still show which settings are unset.
func MaskSensitiveValue(fieldName, value string) string {
	if value == "" {
		return value
	}
	if IsSensitiveField(fieldName) {
		return MaskedValue
	}
	return value
}

// MaskString keeps the first and last few characters of a sensitive
// string, for operators matching a masked webhook URL or key against
// their records. Too-short strings are masked entirely.
func MaskString(s string, showFirst, showLast int) string {
	if s == "" {
		return s
	}
	if len(s) <= showFirst+showLast+3 {
		return MaskedValue
	}
	return s[:showFirst] + "***" + s[len(s)-showLast:]
}

// SafeLogValue returns a loggable version of value based on its field
// name, masking strings, byte slices, and string slices element-wise.
func SafeLogValue(fieldName string, value interface{}) interface{} {
	if value == nil {
		return nil
	}
	if !IsSensitiveField(fieldName) {
		return value
	}

	switch v := value.(type) {
	case string:
		if v == "" {
			return v
		}
		return MaskedValue
	case []byte:
		return MaskedValue
	case []string:
		masked := make([]string, len(v))
		for i := range v {
			masked[i] = MaskedValue
		}
		return masked
	default:
		return MaskedValue
	}
}
