// internal/llmutil/parser.go
package llmutil

import (
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// The fences a model is known to wrap JSON in. Anything else is left alone and
// will fail to parse.
const (
	fenceJSON  = "```json"
	fencePlain = "```"
)

var (
	// ErrEmptyResponse is returned for a blank response.
	ErrEmptyResponse = errors.New("empty LLM response")
	// ErrResponseTooLarge is returned when a response exceeds the caller's size bound.
	ErrResponseTooLarge = errors.New("LLM response exceeds size limit")
	// ErrNotJSONObject is returned when the unwrapped payload is not a single JSON object.
	ErrNotJSONObject = errors.New("LLM response is not a JSON object")
)

// StripFences removes one leading ```json or ``` marker and one trailing ```
// marker from a trimmed response. Text outside the fences is not searched.
func StripFences(response string) string {
	s := strings.TrimSpace(response)
	switch {
	case strings.HasPrefix(s, fenceJSON):
		s = s[len(fenceJSON):]
	case strings.HasPrefix(s, fencePlain):
		s = s[len(fencePlain):]
	default:
		return s
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, fencePlain)
	return strings.TrimSpace(s)
}

// ParseJSONObject parses an LLM response into T. The response is bounded to
// maxBytes (zero disables the bound), stripped of known fences, and must then be
// exactly one JSON object. There is no fuzzy recovery: conversational text around
// the object is an error.
func ParseJSONObject[T any](response string, maxBytes int) (*T, error) {
	if maxBytes > 0 && len(response) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrResponseTooLarge, len(response), maxBytes)
	}
	payload := StripFences(response)
	if payload == "" {
		return nil, ErrEmptyResponse
	}
	if !strings.HasPrefix(payload, "{") || !strings.HasSuffix(payload, "}") {
		return nil, fmt.Errorf("%w: %s", ErrNotJSONObject, Truncate(payload, 200))
	}

	var result T
	if err := json.UnmarshalFromString(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, Truncate(payload, 500))
	}
	return &result, nil
}

// Truncate shortens s to at most maxRunes runes, appending "..." when cut.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
