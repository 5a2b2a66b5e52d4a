package adapter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Generation-service responses are frequently wrapped in markdown fences or
// explanatory prose. ExtractJSON tries a sequence of strategies before
// giving up: raw parse, ```json fence, bare fence, regex-located object,
// regex-located array.

var (
	jsonFencePattern    = regexp.MustCompile("(?is)```json\\s*\\n?(.*?)\\n?```")
	genericFencePattern = regexp.MustCompile("(?s)```\\s*\\n?(.*?)\\n?```")
	jsonObjectPattern   = regexp.MustCompile(`(?s)\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
	jsonArrayPattern    = regexp.MustCompile(`(?s)\[.*\]`)
)

// ExtractJSON locates the first parseable JSON payload in a raw model
// response. Returns the payload and true, or "" and false when every
// strategy fails.
func ExtractJSON(response string) (string, bool) {
	text := strings.TrimSpace(response)
	if text == "" {
		return "", false
	}

	if json.Valid([]byte(text)) {
		return text, true
	}

	if m := jsonFencePattern.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}

	if m := genericFencePattern.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}

	if m := jsonObjectPattern.FindString(text); m != "" {
		if json.Valid([]byte(m)) {
			return m, true
		}
	}

	if m := jsonArrayPattern.FindString(text); m != "" {
		if json.Valid([]byte(m)) {
			return m, true
		}
	}

	return "", false
}

// ExtractJSONInto extracts JSON from a model response and unmarshals it
// into v.
func ExtractJSONInto(response string, v interface{}) error {
	raw, ok := ExtractJSON(response)
	if !ok {
		preview := response
		if len(preview) > 100 {
			preview = preview[:100]
		}
		return fmt.Errorf("no parseable JSON in response (length %d, starts %q)", len(response), preview)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to unmarshal extracted JSON: %w", err)
	}
	return nil
}
