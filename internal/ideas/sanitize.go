package ideas

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"ideaforge/internal/replicate"
)

// maxCandidates bounds how many balanced objects the scanner will try.
const maxCandidates = 64

var fenceReplacer = strings.NewReplacer("```json", "", "```JSON", "", "```", "")

// OutputText normalizes a prediction output to text.
func OutputText(out replicate.Output) (string, error) {
	text, ok := out.Text()
	if !ok {
		return "", &ParseError{Kind: KindInvalidOutputFormat, Reason: "output kind " + out.Kind.String()}
	}
	if strings.TrimSpace(text) == "" {
		return "", &ParseError{Kind: KindEmptyOutput, Raw: text}
	}
	return text, nil
}

// Clean strips code fences and whatever surrounds the outermost JSON value.
// It is a heuristic: prose containing brackets can still confuse it.
func Clean(text string) string {
	s := strings.TrimSpace(fenceReplacer.Replace(text))
	if i := strings.IndexAny(s, "{["); i > 0 {
		s = s[i:]
	}
	if j := strings.LastIndexAny(s, "}]"); j >= 0 && j < len(s)-1 {
		s = s[:j+1]
	}
	return strings.TrimSpace(s)
}

// Extract isolates the JSON payload embedded in model text. On failure the
// returned *ParseError keeps text unchanged in Raw.
func Extract(text string) (json.RawMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{Kind: KindEmptyOutput, Raw: text}
	}
	cleaned := Clean(text)

	var firstErr error
	try := func(candidate string) (json.RawMessage, bool) {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			return nil, false
		}
		if raw, err := decodeValue(candidate); err == nil {
			return raw, true
		} else if firstErr == nil {
			firstErr = err
		}
		return nil, false
	}

	if raw, ok := try(cleaned); ok {
		return raw, nil
	}
	if i, j := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}"); i >= 0 && j > i {
		if raw, ok := try(cleaned[i : j+1]); ok {
			return raw, nil
		}
	}
	for _, candidate := range balancedObjects(text) {
		if raw, ok := try(candidate); ok {
			return raw, nil
		}
	}
	if quoted := strings.TrimSpace(fenceReplacer.Replace(text)); strings.HasPrefix(quoted, `"`) {
		if raw, ok := try(quoted); ok {
			return raw, nil
		}
	}
	return nil, &ParseError{Kind: KindJSONParse, Raw: text, Err: firstErr}
}

// decodeValue parses s strictly. A JSON string that itself holds an object or
// array is unwrapped once.
func decodeValue(s string) (json.RawMessage, error) {
	var v any
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	if inner, ok := v.(string); ok {
		inner = strings.TrimSpace(inner)
		if strings.HasPrefix(inner, "{") || strings.HasPrefix(inner, "[") {
			return decodeValue(inner)
		}
		return nil, errors.New("payload is a bare string")
	}
	return json.RawMessage(bytes.TrimSpace([]byte(s))), nil
}

// balancedObjects returns every top-level {...} span of text whose braces
// balance outside string literals, longest first.
func balancedObjects(text string) []string {
	var out []string
	depth, start := 0, -1
	inString, escaped := false, false
scan:
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				out = append(out, text[start:i+1])
				start = -1
				if len(out) >= maxCandidates {
					break scan
				}
			}
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return len(out[a]) > len(out[b]) })
	return out
}
