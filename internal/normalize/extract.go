package normalize

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	fencePattern         = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")
	trailingCommaPattern = regexp.MustCompile(`,(\s*[\]}])`)
	adjacentObjects      = regexp.MustCompile(`\}(\s*)\{`)
	adjacentArrays       = regexp.MustCompile(`\](\s*)\[`)
	unquotedKeyPattern   = regexp.MustCompile(`([{,]\s*)(\w+)(\s*:)`)
)

// stripFence returns the contents of the first fenced code block in raw, or
// raw trimmed when there is none.
func stripFence(raw string) string {
	if m := fencePattern.FindStringSubmatch(raw); m != nil && m[1] != "" {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}

// repair applies textual fixes for common generator defects: trailing commas,
// missing commas between adjacent objects or arrays, and unquoted keys.
func repair(text string) string {
	fixed := trailingCommaPattern.ReplaceAllString(text, "$1")
	fixed = adjacentObjects.ReplaceAllString(fixed, "},{")
	fixed = adjacentArrays.ReplaceAllString(fixed, "],[")
	return unquotedKeyPattern.ReplaceAllString(fixed, `$1"$2"$3`)
}

// outermostObject returns the span from the first '{' to the last '}', for
// output that wraps JSON in prose without a fence.
func outermostObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// parse extracts a JSON document from raw generator text. It returns false
// when no valid JSON can be recovered.
func parse(raw string) (gjson.Result, bool) {
	text := stripFence(raw)
	if text == "" {
		return gjson.Result{}, false
	}

	candidates := []string{text, repair(text)}
	if inner, ok := outermostObject(text); ok {
		candidates = append(candidates, inner, repair(inner))
	}

	for _, c := range candidates {
		if gjson.Valid(c) {
			doc := gjson.Parse(c)
			if doc.IsObject() || doc.IsArray() {
				return doc, true
			}
		}
	}
	return gjson.Result{}, false
}
