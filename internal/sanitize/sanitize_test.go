package sanitize

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestSanitizeFencedArray(t *testing.T) {
	res := Sanitize("```json\n[{\"a\":1},]\n```")
	if !res.OK() {
		t.Fatalf("expected parse to succeed, passes: %v", res.Passes)
	}
	arr, ok := res.Value.([]interface{})
	if !ok {
		t.Fatalf("expected array, got %T", res.Value)
	}
	if len(arr) != 1 {
		t.Fatalf("expected 1 element, got %d", len(arr))
	}
	obj := arr[0].(map[string]interface{})
	if obj["a"].(float64) != 1 {
		t.Errorf("expected a=1, got %v", obj["a"])
	}
}

func TestSanitizeNoJSON(t *testing.T) {
	res := Sanitize("no json here")
	if res.OK() {
		t.Fatalf("expected nil value, got %v", res.Value)
	}
}

func TestSanitizeNeverPanics(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"just prose, nothing else",
		"```",
		"``````",
		"```json\n```",
		"```json\n{\"nested\": \"```inner```\"}\n```",
		"{broken",
		"[1,2,",
		"\x00\x01\x02",
		"{\"a\":1}\n// trailing note",
	}
	for _, in := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Sanitize(%q) panicked: %v", in, r)
				}
			}()
			Sanitize(in)
		}()
	}
}

func TestSanitizeIdempotentOnValidJSON(t *testing.T) {
	cases := []interface{}{
		map[string]interface{}{"a": float64(1), "b": "two"},
		[]interface{}{float64(1), float64(2), float64(3)},
		map[string]interface{}{"nested": map[string]interface{}{"x": []interface{}{"y"}}},
	}
	for _, c := range cases {
		raw, err := json.Marshal(c)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		res := Sanitize(string(raw))
		if !res.OK() {
			t.Fatalf("valid JSON %s failed to parse, passes: %v", raw, res.Passes)
		}
		if !reflect.DeepEqual(res.Value, c) {
			t.Errorf("round trip mismatch: got %v, want %v", res.Value, c)
		}
	}
}

func TestSanitizeLeadingProse(t *testing.T) {
	raw := "Sure! Here is the plan you asked for:\n```json\n{\"steps\": [\"rest\", \"hydrate\"],}\n```\nLet me know if you need more."
	res := Sanitize(raw)
	if !res.OK() {
		t.Fatalf("expected parse to succeed, passes: %v", res.Passes)
	}
	obj := res.Value.(map[string]interface{})
	steps := obj["steps"].([]interface{})
	if len(steps) != 2 || steps[0] != "rest" {
		t.Errorf("unexpected steps: %v", steps)
	}
}

func TestSanitizeLineComments(t *testing.T) {
	raw := "{\n// model added this comment\n\"a\": 1,\n\"b\": 2\n}"
	res := Sanitize(raw)
	if !res.OK() {
		t.Fatalf("expected parse to succeed, passes: %v", res.Passes)
	}
	obj := res.Value.(map[string]interface{})
	if obj["b"].(float64) != 2 {
		t.Errorf("expected b=2, got %v", obj["b"])
	}
}

func TestSanitizeControlChars(t *testing.T) {
	raw := "{\"a\":\x01 1}"
	res := Sanitize(raw)
	if !res.OK() {
		t.Fatalf("expected parse after control char strip, passes: %v", res.Passes)
	}
}

func TestSanitizeArrayFallback(t *testing.T) {
	// Bracket-span slicing grabs the outer {...} of the prose-wrapped text,
	// which is not valid JSON; the fallback should still find the array.
	raw := "The checklist {draft} follows: [\"focus\", \"breathe\",] and that is all."
	res := Sanitize(raw)
	if !res.OK() {
		t.Fatalf("expected array fallback to succeed, passes: %v", res.Passes)
	}
	arr, ok := res.Value.([]interface{})
	if !ok {
		t.Fatalf("expected array, got %T", res.Value)
	}
	if len(arr) != 2 || arr[1] != "breathe" {
		t.Errorf("unexpected array: %v", arr)
	}
}

func TestSanitizePassOrderRecorded(t *testing.T) {
	res := Sanitize("{}")
	want := []string{
		"strip_fence_prose", "strip_fence_markers", "trim",
		"slice_bracket_span", "strip_trailing_commas",
		"strip_line_comments", "strip_control_chars", "strict_parse",
	}
	if len(res.Passes) != len(want) {
		t.Fatalf("got passes %v, want %v", res.Passes, want)
	}
	for i := range want {
		if res.Passes[i] != want[i] {
			t.Errorf("pass %d: got %s, want %s", i, res.Passes[i], want[i])
		}
	}
}
