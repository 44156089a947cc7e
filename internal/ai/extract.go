package ai

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"appforge/internal/logging"
)

// ExtractJSON returns the first balanced JSON object embedded in text.
// The scan tracks brace depth and string-literal state so braces inside
// string values (including escaped quotes) do not count. It is a
// balanced-brace slicer, not a JSON tokenizer: the returned substring
// still has to survive json.Unmarshal.
//
// ok is false when no opening brace is found or the braces never
// balance.
func ExtractJSON(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if escaped {
			escaped = false
			continue
		}

		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inString && depth > 0 {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}

	return "", false
}

// ExtractJSONArray returns the substring from the first '[' to the last
// ']'. Unlike ExtractJSON this is not brace-aware; array callers accept
// the looser slice because generated file lists are the only array
// payload and they never embed stray brackets outside strings.
func ExtractJSONArray(text string) (string, bool) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseJSONFromText extracts a JSON object from free-form model text,
// parses it into T, and validates that every required field is present
// and non-empty. Any failure along the way returns the fallback
// unchanged; this function never errors because the pipeline must keep
// running with defaults rather than abort on one malformed response.
func ParseJSONFromText[T any](text string, requiredFields []string, fallback T) T {
	log := logging.L().Named("extract")

	raw, ok := ExtractJSON(text)
	if !ok {
		log.Debug("no JSON object found in model output", zap.Int("text_len", len(text)))
		return fallback
	}

	var parsed T
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		log.Debug("extracted JSON failed to parse", zap.Error(err))
		return fallback
	}

	if len(requiredFields) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			log.Debug("extracted JSON is not an object", zap.Error(err))
			return fallback
		}
		for _, field := range requiredFields {
			val, present := fields[field]
			if !present || emptyJSONValue(val) {
				log.Debug("required field missing or empty", zap.String("field", field))
				return fallback
			}
		}
	}

	return parsed
}

// emptyJSONValue reports whether a raw JSON value is null, an empty
// string, empty array, or empty object.
func emptyJSONValue(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	switch s {
	case "", "null", `""`, "[]", "{}":
		return true
	}
	return false
}

// StripCodeFences removes a leading/trailing markdown code fence from
// model output, tolerating a language tag on the opening fence.
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx != -1 {
		// Drop the language tag line ("json", "tsx", ...).
		firstLine := strings.TrimSpace(trimmed[:idx])
		if len(firstLine) <= 20 && !strings.ContainsAny(firstLine, "{}[]();") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
