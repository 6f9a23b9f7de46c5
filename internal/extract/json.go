// Package extract locates the JSON object inside free-form model output.
// Models wrap their answer in prose or Markdown code fences even when told
// not to, so the raw text is never parsed directly.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrMalformedResponse is the parent of every extraction failure.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrNoJSONObject means no balanced {...} span was found.
	ErrNoJSONObject = fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)

	// ErrInvalidJSON means a {...} span was found but does not parse.
	ErrInvalidJSON = fmt.Errorf("%w: invalid JSON", ErrMalformedResponse)
)

// codeFence matches ``` markers with an optional language tag, anywhere.
var codeFence = regexp.MustCompile("```[A-Za-z0-9_+-]*")

// StripCodeFences removes every Markdown code-fence marker from text.
func StripCodeFences(text string) string {
	return codeFence.ReplaceAllString(text, "")
}

// JSON returns the span from the first '{' to the last '}' of raw once code
// fences are removed. The span must parse as a JSON object.
func JSON(raw string) (json.RawMessage, error) {
	text := StripCodeFences(raw)

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < 0 || end < start {
		return nil, ErrNoJSONObject
	}

	span := text[start : end+1]
	var obj map[string]any
	if err := json.Unmarshal([]byte(span), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return json.RawMessage(span), nil
}

// Object is JSON decoded into a generic map.
func Object(raw string) (map[string]any, error) {
	span, err := JSON(raw)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(span, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return obj, nil
}

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
	"no puedo ayudar",
	"no puedo cumplir",
}

// LooksLikeRefusal reports whether text reads like the model declining the task.
func LooksLikeRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
