package statement_test

import (
	"errors"
	"strings"
	"testing"

	"tplc-go/packages/compiler/src/statement"

	"github.com/google/go-cmp/cmp"
)

func TestParseToken(t *testing.T) {
	t.Run("should consume a generic array declaration", func(t *testing.T) {
		input := "Map  <  String , Object  >   [ ]   m  , x"
		end, err := statement.ParseToken(input, 0)
		if err != nil {
			t.Fatalf("ParseToken() error = %v", err)
		}
		if diff := cmp.Diff(strings.Index(input, ", x"), end); diff != "" {
			t.Errorf("ParseToken() end mismatch (-want +got):\n%s", diff)
		}
		v, err := statement.ParseDeclaredVariable(input[:end])
		if err != nil {
			t.Fatalf("ParseDeclaredVariable() error = %v", err)
		}
		expected := statement.DeclaredVariable{Type: "Map<String,Object>[]", Name: "m"}
		if diff := cmp.Diff(expected, v); diff != "" {
			t.Errorf("ParseDeclaredVariable() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should reject malformed generics", func(t *testing.T) {
		cases := map[string]string{
			"<String> x":        "generic marker '<' before any type name",
			"List<String>> x":   "unmatched '>'",
			"List<String x":     "unterminated generic '<'",
			"Map<String, int x": "unterminated generic '<'",
		}
		for input, msg := range cases {
			_, err := statement.ParseToken(input, 0)
			if err == nil || !strings.Contains(err.Error(), msg) {
				t.Errorf("ParseToken(%q) error = %v, want %q", input, err, msg)
			}
		}
	})
}

func TestParseList(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected []statement.DeclaredVariable
	}{
		{"should return an empty list for empty input", "", []statement.DeclaredVariable{}},
		{"should return an empty list for blank input", "   ", []statement.DeclaredVariable{}},
		{
			name:  "should parse untyped names",
			input: "a,b",
			expected: []statement.DeclaredVariable{
				{Name: "a"},
				{Name: "b"},
			},
		},
		{
			name:  "should parse typed declarations",
			input: " String name , List<Map<String, Integer>> rows, int[] counts",
			expected: []statement.DeclaredVariable{
				{Type: "String", Name: "name"},
				{Type: "List<Map<String,Integer>>", Name: "rows"},
				{Type: "int[]", Name: "counts"},
			},
		},
		{
			name:  "should move an array tail after the name to the type",
			input: "String names[]",
			expected: []statement.DeclaredVariable{
				{Type: "String[]", Name: "names"},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := statement.ParseList(tc.input)
			if err != nil {
				t.Fatalf("ParseList(%q) error = %v", tc.input, err)
			}
			if diff := cmp.Diff(tc.expected, result); diff != "" {
				t.Errorf("ParseList(%q) mismatch (-want +got):\n%s", tc.input, diff)
			}
		})
	}

	t.Run("should reject a trailing comma", func(t *testing.T) {
		_, err := statement.ParseList("a, ")
		var se *statement.SyntaxError
		if !errors.As(err, &se) {
			t.Fatalf("ParseList() error = %v, want *SyntaxError", err)
		}
		if diff := cmp.Diff(1, se.Offset); diff != "" {
			t.Errorf("offset mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should reject invalid names", func(t *testing.T) {
		for _, input := range []string{"String 1x", "String x.y", "x[]"} {
			if _, err := statement.ParseList(input); err == nil {
				t.Errorf("ParseList(%q) expected error", input)
			}
		}
	})
}

func TestNormalizeType(t *testing.T) {
	cases := map[string]string{
		"Map  <  String , Object  >   [ ] ": "Map<String,Object>[]",
		"  java.util . List < String >":     "java.util.List<String>",
		"List<String>   rows":               "List<String> rows",
		"int":                               "int",
	}
	for input, expected := range cases {
		if diff := cmp.Diff(expected, statement.NormalizeType(input)); diff != "" {
			t.Errorf("NormalizeType(%q) mismatch (-want +got):\n%s", input, diff)
		}
	}
}

func TestParseFor(t *testing.T) {
	t.Run("should parse the general form", func(t *testing.T) {
		result, err := statement.ParseFor("(i := 0; i < len(items); i++)")
		if err != nil {
			t.Fatalf("ParseFor() error = %v", err)
		}
		expected := &statement.GeneralFor{Init: "i := 0", Condition: "i < len(items)", Post: "i++"}
		if diff := cmp.Diff(expected, result); diff != "" {
			t.Errorf("ParseFor() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should parse the enhanced form", func(t *testing.T) {
		cases := []struct {
			input    string
			expected *statement.EnhancedFor
		}{
			{
				input: "(String s : items)",
				expected: &statement.EnhancedFor{
					Arguments: []statement.DeclaredVariable{{Type: "String", Name: "s"}},
					Value:     "items",
				},
			},
			{
				input: "(item : lookup(\"a:b\"))",
				expected: &statement.EnhancedFor{
					Arguments: []statement.DeclaredVariable{{Name: "item"}},
					Value:     `lookup("a:b")`,
				},
			},
			{
				input: "((k, v) : m)",
				expected: &statement.EnhancedFor{
					Arguments:     []statement.DeclaredVariable{{Name: "k"}, {Name: "v"}},
					Value:         "m",
					Parenthesized: true,
				},
			},
			{
				input: "( (it, String k, Map<String, int> v) : rows )",
				expected: &statement.EnhancedFor{
					Arguments: []statement.DeclaredVariable{
						{Name: "it"},
						{Type: "String", Name: "k"},
						{Type: "Map<String,int>", Name: "v"},
					},
					Value:         "rows",
					Parenthesized: true,
				},
			},
		}
		for _, tc := range cases {
			result, err := statement.ParseFor(tc.input)
			if err != nil {
				t.Fatalf("ParseFor(%q) error = %v", tc.input, err)
			}
			if diff := cmp.Diff(tc.expected, result); diff != "" {
				t.Errorf("ParseFor(%q) mismatch (-want +got):\n%s", tc.input, diff)
			}
		}
	})

	t.Run("should reject malformed statements", func(t *testing.T) {
		cases := map[string]string{
			"String s : items":     "must be enclosed in parentheses",
			"(String s : items":    "unterminated '('",
			"(a; b)":               "exactly three",
			"(a; b; c; d)":         "exactly three",
			"(s : )":               "collection expression",
			"(items)":              "requires ';'",
			"(a, b : m)":           "enclosed in parentheses",
			"((a, b, c, d) : m)":   "at most 3",
			"(() : m)":             "at least one variable",
			"(String s : items) x": "unexpected text",
			"((a, ) : m)":          "expected declaration after ','",
		}
		for input, msg := range cases {
			_, err := statement.ParseFor(input)
			if err == nil || !strings.Contains(err.Error(), msg) {
				t.Errorf("ParseFor(%q) error = %v, want %q", input, err, msg)
			}
		}
	})

	t.Run("should report offsets relative to the body", func(t *testing.T) {
		_, err := statement.ParseFor("((a, ) : m)")
		var se *statement.SyntaxError
		if !errors.As(err, &se) {
			t.Fatalf("ParseFor() error = %v, want *SyntaxError", err)
		}
		if diff := cmp.Diff(3, se.Offset); diff != "" {
			t.Errorf("offset mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestParseWith(t *testing.T) {
	t.Run("should parse bindings in order", func(t *testing.T) {
		result, err := statement.ParseWith(`(String s = pick("a,b", x), n = len(items), Map<String, int> m = counts)`)
		if err != nil {
			t.Fatalf("ParseWith() error = %v", err)
		}
		expected := &statement.WithStatement{Bindings: []statement.WithBinding{
			{Variable: statement.DeclaredVariable{Type: "String", Name: "s"}, Value: `pick("a,b", x)`},
			{Variable: statement.DeclaredVariable{Name: "n"}, Value: "len(items)"},
			{Variable: statement.DeclaredVariable{Type: "Map<String,int>", Name: "m"}, Value: "counts"},
		}}
		if diff := cmp.Diff(expected, result); diff != "" {
			t.Errorf("ParseWith() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should allow comparison operators in values", func(t *testing.T) {
		result, err := statement.ParseWith("(ok = a == b, big = n >= 10)")
		if err != nil {
			t.Fatalf("ParseWith() error = %v", err)
		}
		if diff := cmp.Diff("a == b", result.Bindings[0].Value); diff != "" {
			t.Errorf("value mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff("n >= 10", result.Bindings[1].Value); diff != "" {
			t.Errorf("value mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should reject malformed bindings", func(t *testing.T) {
		cases := map[string]string{
			`(s = "x",)`:         "trailing ','",
			`(s = "x", )`:        "trailing ','",
			"(s)":                "found none",
			"(s = a = b)":        "found more",
			"(s = )":             "requires a value expression",
			"()":                 "at least one binding",
			"s = x":              "must be enclosed in parentheses",
			"(List<String> = x)": "after variable name",
			"(s == x)":           "found none",
			"(s != x)":           "found none",
			"(s <= x)":           "found none",
			"(s >= x)":           "found none",
			"(s := x)":           "found none",
		}
		for input, msg := range cases {
			_, err := statement.ParseWith(input)
			if err == nil || !strings.Contains(err.Error(), msg) {
				t.Errorf("ParseWith(%q) error = %v, want %q", input, err, msg)
			}
		}
	})
}

func TestSplitArguments(t *testing.T) {
	t.Run("should split on top-level commas only", func(t *testing.T) {
		result, err := statement.SplitArguments(` title, fmt.Sprintf("%d, %d", a, b), m[k] `)
		if err != nil {
			t.Fatalf("SplitArguments() error = %v", err)
		}
		expected := []string{"title", `fmt.Sprintf("%d, %d", a, b)`, "m[k]"}
		if diff := cmp.Diff(expected, result); diff != "" {
			t.Errorf("SplitArguments() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should return nothing for an empty list", func(t *testing.T) {
		result, err := statement.SplitArguments("  ")
		if err != nil || result != nil {
			t.Errorf("SplitArguments() = %v, %v, want nil, nil", result, err)
		}
	})

	t.Run("should reject empty arguments", func(t *testing.T) {
		for _, input := range []string{"a,", ", a", "a,,b"} {
			if _, err := statement.SplitArguments(input); err == nil {
				t.Errorf("SplitArguments(%q) expected error", input)
			}
		}
	})
}
