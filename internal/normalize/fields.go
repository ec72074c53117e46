package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// score reads a numeric field leniently ("85", "85%", 84.6) and clamps it
// to [lo, hi]. Anything unreadable yields def.
func score(r gjson.Result, def, lo, hi int) int {
	var f float64
	switch r.Type {
	case gjson.Number:
		f = r.Num
	case gjson.String:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(r.Str), "%"))
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return clamp(def, lo, hi)
		}
		f = v
	default:
		return clamp(def, lo, hi)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return clamp(def, lo, hi)
	}
	return clamp(int(math.Round(f)), lo, hi)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// text reads a non-empty string field, trimmed, or returns def.
func text(r gjson.Result, def string) string {
	if r.Type == gjson.String {
		if s := strings.TrimSpace(r.Str); s != "" {
			return s
		}
	}
	return def
}

// texts reads a list of non-empty strings. A missing or empty list yields a
// copy of def.
func texts(r gjson.Result, def []string) []string {
	var out []string
	if r.IsArray() {
		for _, item := range r.Array() {
			if s := text(item, ""); s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return append([]string(nil), def...)
	}
	return out
}

// enum matches a string field against vocab ignoring case and the
// separator used ("short term", "short_term" and "Short-term" are equal).
func enum(r gjson.Result, vocab []string, def string) string {
	if r.Type != gjson.String {
		return def
	}
	want := canonicalWord(r.Str)
	for _, v := range vocab {
		if canonicalWord(v) == want {
			return v
		}
	}
	return def
}

func canonicalWord(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "-", "_", "-").Replace(s)
}

// flag reads a boolean leniently: JSON booleans, "true"/"yes" strings and
// non-zero numbers.
func flag(r gjson.Result) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.String:
		switch canonicalWord(r.Str) {
		case "true", "yes", "completed", "done":
			return true
		}
	case gjson.Number:
		return r.Num != 0
	}
	return false
}
