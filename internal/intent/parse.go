package intent

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSONObject is returned when no JSON object can be located in the text.
var ErrNoJSONObject = errors.New("no JSON object found in model output")

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

var smartQuoteReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`,
	"‘", `'`, "’", `'`,
)

// ParseExtraction parses model output into an Extraction, tolerating the
// usual formatting noise: code fences, smart quotes, trailing commas, and
// prose around the object. Fails if no single valid object can be recovered.
func ParseExtraction(raw string) (*Extraction, error) {
	obj, err := ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}
	var e Extraction
	if err := json.Unmarshal([]byte(obj), &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// ExtractJSONObject locates and cleans the first balanced JSON object in text.
func ExtractJSONObject(raw string) (string, error) {
	text := stripCodeFences(raw)
	text = smartQuoteReplacer.Replace(text)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoJSONObject
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
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
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				obj := text[start : i+1]
				return trailingCommaRe.ReplaceAllString(obj, "$1"), nil
			}
		}
	}
	return "", ErrNoJSONObject
}

func stripCodeFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		// Keep fenced content; the fence markers themselves are the noise.
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
