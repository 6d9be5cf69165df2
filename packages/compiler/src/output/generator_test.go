package output_test

import (
	"errors"
	"strings"
	"testing"

	"tplc-go/packages/compiler/src/config"
	"tplc-go/packages/compiler/src/output"
	"tplc-go/packages/compiler/src/parser"
	"tplc-go/packages/compiler/src/util"

	"github.com/google/go-cmp/cmp"
)

func generate(t *testing.T, path, input string, opts ...config.CompilerConfigOption) string {
	t.Helper()
	result, err := generateResult(path, input, opts...)
	if err != nil {
		t.Fatalf("Generate(%q) error = %v", input, err)
	}
	return string(result.Source)
}

func generateResult(path, input string, opts ...config.CompilerConfigOption) (*output.Result, error) {
	model, err := parser.Parse(util.NewParseSourceFile(input, path), config.NewCompilerConfig(opts...))
	if err != nil {
		return nil, err
	}
	return output.Generate(model, strings.TrimSuffix(path, ".html")+"_tpl.go")
}

// bodyLines returns the trimmed lines of the RenderTo body after the
// argument locals.
func bodyLines(src string) []string {
	_, body, _ := strings.Cut(src, "defer out.Recover(&err)\n")
	body, _, _ = strings.Cut(body, "\treturn out.Err()\n")
	var lines []string
	for _, line := range strings.Split(strings.TrimSuffix(body, "\n"), "\n") {
		lines = append(lines, strings.TrimSpace(line))
	}
	return lines
}

const greetingSource = `// Code generated by tplc-go. DO NOT EDIT.
// source: greeting.html

package views

import (
	"io"

	"tplc-go/packages/runtime"
)

// GreetingTemplateName is the source path of the Greeting template.
const GreetingTemplateName = "greeting.html"

// GreetingArguments lists the Greeting template arguments in declaration order.
var GreetingArguments = runtime.Manifest{"name"}

// GreetingTemplate renders greeting.html. An instance renders at most once.
type GreetingTemplate struct {
	guard runtime.Guard
	name  string
}

// NewGreetingTemplate creates a GreetingTemplate bound to its arguments.
func NewGreetingTemplate(name string) *GreetingTemplate {
	return &GreetingTemplate{
		name: name,
	}
}

// Bind sets the argument called name.
func (t *GreetingTemplate) Bind(name string, value any) error {
	switch name {
	case "name":
		v, ok := value.(string)
		if !ok {
			return runtime.NewBindError(GreetingTemplateName, name, "string", value)
		}
		t.name = v
		return nil
	}
	return runtime.NewBindError(GreetingTemplateName, name, "", value)
}

// Render renders the template to w.
func (t *GreetingTemplate) Render(w io.Writer) error {
	out := runtime.NewOutput(w)
	if err := t.RenderTo(out); err != nil {
		return err
	}
	return out.Flush()
}

// RenderTo renders the template into out.
func (t *GreetingTemplate) RenderTo(out *runtime.Output) (err error) {
	if err := t.guard.Enter(GreetingTemplateName); err != nil {
		return err
	}
	defer out.Enter(GreetingTemplateName)()
	defer out.Recover(&err)
	name := t.name
	_ = name
	out.At(1, 19)
	out.Text("Hello ")
	out.At(1, 25)
	out.Value(name)
	out.At(1, 30)
	out.Text("!")
	return out.Err()
}
`

func TestGenerate_File(t *testing.T) {
	t.Run("should generate the full template file", func(t *testing.T) {
		result := generate(t, "greeting.html", "@args(String name)Hello @name!")
		if diff := cmp.Diff(greetingSource, result); diff != "" {
			t.Errorf("Generate() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should keep top-level braces as text", func(t *testing.T) {
		result := generate(t, "greeting.html", "@args(String name){ }Hello @name!{ }")
		expected := []string{
			"name := t.name",
			"_ = name",
			"out.At(1, 19)",
			`out.Text("{ }Hello ")`,
			"out.At(1, 28)",
			"out.Value(name)",
			"out.At(1, 33)",
			`out.Text("!{ }")`,
		}
		if diff := cmp.Diff(expected, bodyLines(result)); diff != "" {
			t.Errorf("Generate() body mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should be deterministic", func(t *testing.T) {
		input := "@args(List<String> xs)@for ((it, i, x) : xs) {@with (y = x) {@y}}"
		first := generate(t, "list.html", input)
		for range 3 {
			if diff := cmp.Diff(first, generate(t, "list.html", input)); diff != "" {
				t.Fatalf("Generate() not deterministic (-want +got):\n%s", diff)
			}
		}
	})

	t.Run("should lower declared types in the signature and dispatch", func(t *testing.T) {
		result := generate(t, "page.html", "@args(Map<String, List<Integer>> groups, Object extra, runtime.Content body)")
		for _, expected := range []string{
			`var PageArguments = runtime.Manifest{"groups", "extra", "body"}`,
			"func NewPageTemplate(groups map[string][]int, extra any, body runtime.Content) *PageTemplate {",
			"v, ok := value.(map[string][]int)",
			`return runtime.NewBindError(PageTemplateName, name, "map[string][]int", value)`,
			"t.extra = value",
		} {
			if !strings.Contains(result, expected) {
				t.Errorf("Generate() missing %q in:\n%s", expected, result)
			}
		}
	})

	t.Run("should add requested imports", func(t *testing.T) {
		result := generate(t, "page.html", "@import \"strings\"\n@import fm \"fmt\"\n@(strings.ToUpper(fm.Sprint(1)))")
		for _, expected := range []string{`fm "fmt"`, `"strings"`, "out.Value(strings.ToUpper(fm.Sprint(1)))"} {
			if !strings.Contains(result, expected) {
				t.Errorf("Generate() missing %q in:\n%s", expected, result)
			}
		}
	})

	t.Run("should use the configured package name", func(t *testing.T) {
		result := generate(t, "page.html", "x", config.WithPackageName("web"))
		if !strings.Contains(result, "\npackage web\n") {
			t.Errorf("Generate() missing package clause in:\n%s", result)
		}
	})
}

func TestGenerate_Body(t *testing.T) {
	cases := []struct {
		name     string
		path     string
		input    string
		expected []string
	}{
		{
			name:  "should coalesce adjacent text",
			path:  "a.html",
			input: "a@* c *@b",
			expected: []string{
				"out.At(1, 1)",
				`out.Text("ab")`,
			},
		},
		{
			name:  "should write raw values for plain text templates",
			path:  "a.txt",
			input: "@x",
			expected: []string{
				"out.At(1, 1)",
				"out.Raw(x)",
			},
		},
		{
			name:  "should nest else if chains",
			path:  "a.html",
			input: "@if (a) {A}@else if (b) {B}@else {C}",
			expected: []string{
				"out.At(1, 1)",
				"if a {",
				"out.At(1, 10)",
				`out.Text("A")`,
				"} else {",
				"out.At(1, 12)",
				"if b {",
				"out.At(1, 26)",
				`out.Text("B")`,
				"} else {",
				"out.At(1, 35)",
				`out.Text("C")`,
				"}",
				"}",
			},
		},
		{
			name:  "should emit general for loops verbatim",
			path:  "a.html",
			input: "@for (i := 0; i < 3; i++) {@i}",
			expected: []string{
				"out.At(1, 1)",
				"for i := 0; i < 3; i++ {",
				"out.At(1, 28)",
				"out.Value(i)",
				"}",
			},
		},
		{
			name:  "should re-declare typed loop variables",
			path:  "a.html",
			input: "@for (String s : names) {@s}",
			expected: []string{
				"out.At(1, 1)",
				"for _, s := range names {",
				"var s string = s",
				"_ = s",
				"out.At(1, 26)",
				"out.Value(s)",
				"}",
			},
		},
		{
			name:  "should expose the iterator of three-argument loops",
			path:  "a.html",
			input: "@for ((it, i, v) : rows) {@it.Index()}",
			expected: []string{
				"out.At(1, 1)",
				"{",
				"tplColl1 := rows",
				"it := runtime.NewForIteratorOf(tplColl1)",
				"for i, v := range tplColl1 {",
				"it.Next()",
				"_ = it",
				"_ = i",
				"_ = v",
				"out.At(1, 27)",
				"out.Value(it.Index())",
				"}",
				"}",
			},
		},
		{
			name:  "should bind a single with variable",
			path:  "a.html",
			input: "@with (String s = f()) {@s}@else {none}",
			expected: []string{
				"out.At(1, 1)",
				"if s, tplOK := runtime.Bind(func() string { return f() }); tplOK {",
				"_ = s",
				"out.At(1, 25)",
				"out.Value(s)",
				"} else {",
				"out.At(1, 35)",
				`out.Text("none")`,
				"}",
			},
		},
		{
			name:  "should run else once when any of several bindings is skipped",
			path:  "a.html",
			input: "@with (a = x, b = a.y) {@b}@else {-}",
			expected: []string{
				"out.At(1, 1)",
				"{",
				"tplOK1 := false",
				"runtime.Try(&tplOK1, func() {",
				"a := x",
				"if runtime.IsNil(a) {",
				"return",
				"}",
				"runtime.Try(&tplOK1, func() {",
				"b := a.y",
				"if runtime.IsNil(b) {",
				"return",
				"}",
				"tplOK1 = true",
				"_ = a",
				"_ = b",
				"out.At(1, 25)",
				"out.Value(b)",
				"})",
				"})",
				"if !tplOK1 {",
				"out.At(1, 35)",
				`out.Text("-")`,
				"}",
				"}",
			},
		},
		{
			name:  "should evaluate untyped bindings under recovery",
			path:  "a.html",
			input: "@with (v = xs[5]) {@v}",
			expected: []string{
				"out.At(1, 1)",
				"{",
				"tplOK1 := false",
				"runtime.Try(&tplOK1, func() {",
				"v := xs[5]",
				"if runtime.IsNil(v) {",
				"return",
				"}",
				"tplOK1 = true",
				"_ = v",
				"out.At(1, 20)",
				"out.Value(v)",
				"})",
				"}",
			},
		},
		{
			name:  "should mix typed and untyped bindings",
			path:  "a.html",
			input: "@with (String s = f(), n = len(s)) {@n}",
			expected: []string{
				"out.At(1, 1)",
				"{",
				"tplOK1 := false",
				"if s, tplOK := runtime.Bind(func() string { return f() }); tplOK {",
				"runtime.Try(&tplOK1, func() {",
				"n := len(s)",
				"if runtime.IsNil(n) {",
				"return",
				"}",
				"tplOK1 = true",
				"_ = s",
				"_ = n",
				"out.At(1, 37)",
				"out.Value(n)",
				"})",
				"}",
				"}",
			},
		},
		{
			name:  "should range without variables when all are blank",
			path:  "a.html",
			input: "@for (_ : xs) {x}",
			expected: []string{
				"out.At(1, 1)",
				"for range xs {",
				"out.At(1, 16)",
				`out.Text("x")`,
				"}",
			},
		},
		{
			name:  "should include closures in scope and other templates",
			path:  "a.html",
			input: "@content body {<p>}@include body()@include layouts.main_page(body)",
			expected: []string{
				"out.At(1, 1)",
				"body := runtime.ContentFunc(func(out *runtime.Output) {",
				"defer out.Enter(ATemplateName)()",
				"defer out.Catch()",
				"out.At(1, 16)",
				`out.Text("<p>")`,
				"})",
				"_ = body",
				"out.At(1, 20)",
				"out.Include(body)",
				"out.At(1, 35)",
				"out.Include(layouts.NewMainPageTemplate(body))",
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := bodyLines(generate(t, tc.path, tc.input))
			if diff := cmp.Diff(tc.expected, result); diff != "" {
				t.Errorf("Generate() body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGenerate_LineDirectives(t *testing.T) {
	result := generate(t, "a.html", "x\n@y", config.WithLineDirectives(true))
	for _, expected := range []string{"\n//line a.html:1:1\n\tout.At(1, 1)\n", "\n//line a.html:2:1\n\tout.At(2, 1)\n"} {
		if !strings.Contains(result, expected) {
			t.Errorf("Generate() missing %q in:\n%s", expected, result)
		}
	}
}

func TestGenerate_SourceMap(t *testing.T) {
	result, err := generateResult("a.html", "x@y", config.WithSourceMaps(true))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	sm := result.SourceMap
	if sm == nil {
		t.Fatalf("Generate() SourceMap = nil")
	}
	expected := []any{"a_tpl.go", []string{"a.html"}, "x@y"}
	if diff := cmp.Diff(expected, []any{sm.File, sm.Sources, *sm.SourcesContent[0]}); diff != "" {
		t.Errorf("SourceMap mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(strings.TrimLeft(sm.Mappings, ";"), "CAAA") {
		t.Errorf("SourceMap mappings %q do not map the first statement", sm.Mappings)
	}
}

func TestGenerate_Errors(t *testing.T) {
	cases := []struct {
		input    string
		kind     error
		expected string
	}{
		{"@args(String out)", util.ErrModel, "test.html:1:1: model error: argument name \"out\" is reserved in generated code"},
		{"@args(List<A, B> xs)", util.ErrModel, "test.html:1:1: model error: argument \"xs\": List takes one type argument, got 2"},
		{"@content body {}@include body(x)", util.ErrModel, "test.html:1:17: model error: content \"body\" takes no arguments, got 1"},
		{"@content t {}", util.ErrModel, "test.html:1:1: model error: content name \"t\" is reserved in generated code"},
		{"@for (out : xs) {@out}", util.ErrModel, "test.html:1:1: model error: loop variable name \"out\" is reserved in generated code"},
		{"@for ((i, tplRow) : xs) {}", util.ErrModel, "test.html:1:1: model error: loop variable name \"tplRow\" is reserved in generated code"},
		{"@for ((_, k, v) : xs) {}", util.ErrModel, "test.html:1:1: model error: iterator name must not be blank"},
		{"@with (err = f()) {@err}", util.ErrModel, "test.html:1:1: model error: binding name \"err\" is reserved in generated code"},
		{"@with (String runtime = f()) {}", util.ErrModel, "test.html:1:1: model error: binding name \"runtime\" is reserved in generated code"},
		{"@with (_ = f()) {}", util.ErrModel, "test.html:1:1: model error: binding name must not be blank"},
	}
	for _, tc := range cases {
		_, err := generateResult("test.html", tc.input)
		if !errors.Is(err, tc.kind) {
			t.Errorf("Generate(%q) error = %v, want %v", tc.input, err, tc.kind)
			continue
		}
		if diff := cmp.Diff(tc.expected, err.Error()); diff != "" {
			t.Errorf("Generate(%q) error mismatch (-want +got):\n%s", tc.input, diff)
		}
	}

	t.Run("should map unparsable generated code to the template", func(t *testing.T) {
		_, err := generateResult("test.html", "ok\n@(a +)")
		if !errors.Is(err, util.ErrGeneration) {
			t.Fatalf("Generate() error = %v, want generation error", err)
		}
		var pe *util.ParseError
		if !errors.As(err, &pe) || pe.Span == nil {
			t.Fatalf("Generate() error = %v, want a located ParseError", err)
		}
		if diff := cmp.Diff("test.html:2:1", pe.Span.Start.String()); diff != "" {
			t.Errorf("error location mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestGoType(t *testing.T) {
	cases := map[string]string{
		"":                          "any",
		"String":                    "string",
		"int":                       "int",
		"Long":                      "int64",
		"Boolean[]":                 "[]bool",
		"List<String>":              "[]string",
		"Map<String,Object>[]":      "[]map[string]any",
		"Optional<User>":            "Optional[User]",
		"models.User":               "models.User",
		"[]*models.User":            "[]*models.User",
		"map[string]int":            "map[string]int",
		"pkg.Set[int]":              "pkg.Set[int]",
		"Map<String,List<Long>>":    "map[string][]int64",
		"java.lang.String":          "string",
		"HashMap<Integer,Double>":   "map[int]float64",
		"Collection<Character>[][]": "[][][]rune",
	}
	for declared, expected := range cases {
		got, err := output.GoType(declared)
		if err != nil {
			t.Errorf("GoType(%q) error = %v", declared, err)
			continue
		}
		if diff := cmp.Diff(expected, got); diff != "" {
			t.Errorf("GoType(%q) mismatch (-want +got):\n%s", declared, diff)
		}
	}

	for _, declared := range []string{"List<A,B>", "Map<String>", "List<String", "<T>"} {
		if _, err := output.GoType(declared); err == nil {
			t.Errorf("GoType(%q) error = nil", declared)
		}
	}
}
