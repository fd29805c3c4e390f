// Package sanitize repairs raw model output into parseable JSON. Generation
// backends routinely wrap structured output in markdown fences, add
// commentary around it, leave trailing commas, or slip //-comments into the
// body, all of which break strict parsing.
package sanitize

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Result is the outcome of a sanitization attempt. Value is nil when no
// repair pass produced parseable JSON; Sanitize itself never fails.
type Result struct {
	Value  interface{}
	Passes []string
}

// OK reports whether sanitization produced a parsed value.
func (r Result) OK() bool { return r.Value != nil }

// pass is one textual repair step. Passes run in a fixed order and each one
// operates on the previous pass's output; the order is part of the contract
// since later passes assume earlier ones already ran.
type pass struct {
	name string
	fn   func(string) string
}

var pipeline = []pass{
	{"strip_fence_prose", stripFenceProse},
	{"strip_fence_markers", stripFenceMarkers},
	{"trim", strings.TrimSpace},
	{"slice_bracket_span", sliceBracketSpan},
	{"strip_trailing_commas", stripTrailingCommas},
	{"strip_line_comments", stripLineComments},
	{"strip_control_chars", stripControlChars},
}

var (
	fenceOpenRe     = regexp.MustCompile("(?s)^.*?```[a-zA-Z]*\\n?")
	fenceCloseRe    = regexp.MustCompile("(?s)```[^`]*$")
	trailingCommaRe = regexp.MustCompile(`,\s*([\]}])`)
	lineCommentRe   = regexp.MustCompile(`(?m)^\s*//.*$|\s+//[^"]*$`)
	arrayFallbackRe = regexp.MustCompile(`(?s)\[.*\]`)
)

// Sanitize runs the repair pipeline over raw and attempts a strict JSON
// parse of the result. If that fails it makes exactly one fallback attempt:
// extracting the first bracketed array from the original raw string. It
// never panics and never returns an error; a nil Value means the caller
// must fall back to its static payload.
func Sanitize(raw string) Result {
	res := Result{Passes: make([]string, 0, len(pipeline)+2)}

	s := raw
	for _, p := range pipeline {
		s = p.fn(s)
		res.Passes = append(res.Passes, p.name)
	}

	res.Passes = append(res.Passes, "strict_parse")
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		res.Value = v
		return res
	}

	// One fallback attempt against the original input: the repaired string
	// may have been mangled by an earlier pass, but a well-formed array can
	// still be hiding in the raw text.
	res.Passes = append(res.Passes, "array_fallback")
	if m := arrayFallbackRe.FindString(raw); m != "" {
		m = trailingCommaRe.ReplaceAllString(m, "$1")
		if err := json.Unmarshal([]byte(m), &v); err == nil {
			res.Value = v
		}
	}
	return res
}

// stripFenceProse drops leading prose up through the first fence opener and
// trailing prose after the last fence closer. The fence language tag is
// discarded along with the opener. Strings without fences pass unchanged.
func stripFenceProse(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	out := fenceOpenRe.ReplaceAllString(s, "")
	out = fenceCloseRe.ReplaceAllString(out, "")
	return out
}

// stripFenceMarkers removes any literal fence markers that survived, e.g.
// from nested or unbalanced fencing.
func stripFenceMarkers(s string) string {
	return strings.ReplaceAll(s, "```", "")
}

// sliceBracketSpan cuts the string down to the span between the first
// opening bracket/brace and the last closing one, dropping commentary that
// survived fence stripping. Strings with no bracket structure pass through
// so the final parse can reject them.
func sliceBracketSpan(s string) string {
	start := -1
	for i, r := range s {
		if r == '[' || r == '{' {
			start = i
			break
		}
	}
	if start < 0 {
		return s
	}
	end := -1
	for i := len(s) - 1; i >= start; i-- {
		if s[i] == ']' || s[i] == '}' {
			end = i
			break
		}
	}
	if end < start {
		return s
	}
	return s[start : end+1]
}

func stripTrailingCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// stripLineComments removes //-style comments. Comments inside quoted
// strings are left alone by requiring the comment to sit at line start or
// after whitespace with no quote between it and end of line.
func stripLineComments(s string) string {
	return lineCommentRe.ReplaceAllString(s, "")
}

// stripControlChars drops non-printable control characters except newline,
// carriage return and tab.
func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
