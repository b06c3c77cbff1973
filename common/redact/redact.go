// Package redact strips sensitive values from structured payloads before they
// leave the process boundary.
//
// # Threat model
//
// Secrets (client secrets, bearer tokens, cookies, …) must never appear in:
//   - Audit events written to stdout or SQLite
//   - Response envelopes returned to MCP callers
//   - Log lines emitted by the broker
//
// Redaction operates on key names: any mapping entry whose lowercased key
// contains one of the sensitive keywords is masked wholesale. It is NOT a
// substitute for keeping secrets out of payloads in the first place.
package redact

import (
	"strconv"
	"strings"
)

// Placeholder is the literal written in place of a masked value.
const Placeholder = "***REDACTED***"

// sensitiveKeywords are matched as substrings of lowercased key names.
var sensitiveKeywords = []string{
	"token",
	"secret",
	"authorization",
	"cookie",
	"password",
	"api_key",
}

// Record describes a single masked field.
type Record struct {
	// Field is the dot-joined path of the masked entry. Sequence elements
	// use bracketed indices, e.g. "items[2].api_key". The root segment has
	// no leading dot.
	Field string `json:"field"`

	// Reason is always "sensitive" for keyword matches.
	Reason string `json:"reason"`
}

// Payload returns a structurally identical copy of v with sensitive mapping
// entries replaced by Placeholder, plus one Record per masked entry.
//
// Traversal is depth-first. A masked value is not descended into. Scalars and
// sequences of scalars are returned as-is, never copied or re-stringified.
func Payload(v any) (any, []Record) {
	var records []Record
	out := walk(v, "", &records)
	if records == nil {
		records = []Record{}
	}
	return out, records
}

// IsSensitiveKey reports whether a key name suggests its value is a secret.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range sensitiveKeywords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func walk(v any, path string, records *[]Record) any {
	switch value := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(value))
		for key, item := range value {
			keyPath := key
			if path != "" {
				keyPath = path + "." + key
			}
			if IsSensitiveKey(key) {
				*records = append(*records, Record{Field: keyPath, Reason: "sensitive"})
				out[key] = Placeholder
				continue
			}
			out[key] = walk(item, keyPath, records)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = walk(item, path+"["+strconv.Itoa(i)+"]", records)
		}
		return out
	default:
		return v
	}
}
