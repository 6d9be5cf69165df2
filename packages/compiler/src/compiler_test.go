package compiler_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	compiler "tplc-go/packages/compiler/src"
	"tplc-go/packages/compiler/src/config"
	"tplc-go/packages/compiler/src/util"

	"github.com/google/go-cmp/cmp"
)

func newCompiler(t *testing.T, opts ...config.CompilerConfigOption) *compiler.Compiler {
	t.Helper()
	c, err := compiler.NewCompiler(config.NewCompilerConfig(opts...))
	if err != nil {
		t.Fatalf("NewCompiler() error = %v", err)
	}
	return c
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", p, err)
	}
	return string(data)
}

func TestCompileSource(t *testing.T) {
	examples := []struct {
		pkg   string
		files []string
	}{
		{pkg: "hello", files: []string{"hello"}},
		{pkg: "catalog", files: []string{"loops", "bindings", "card", "page"}},
	}
	for _, ex := range examples {
		dir := filepath.Join("..", "..", "..", "examples", ex.pkg)
		for _, stem := range ex.files {
			t.Run("should match the checked-in "+ex.pkg+"/"+stem+" template", func(t *testing.T) {
				source, err := os.ReadFile(filepath.Join(dir, stem+".html"))
				if err != nil {
					t.Fatal(err)
				}
				result, err := newCompiler(t).CompileSource(source, compiler.Template{Path: stem + ".html", Dir: dir, Package: ex.pkg})
				if err != nil {
					t.Fatalf("CompileSource() error = %v", err)
				}
				expected := readFile(t, filepath.Join(dir, stem+"_tpl.go"))
				if diff := cmp.Diff(expected, string(result.Source)); diff != "" {
					t.Errorf("CompileSource() mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}

	t.Run("should decode the configured charset", func(t *testing.T) {
		c := newCompiler(t, config.WithCharset("windows-1252"))
		result, err := c.CompileSource([]byte("caf\xe9"), compiler.Template{Path: "menu.html", Package: "menu"})
		if err != nil {
			t.Fatalf("CompileSource() error = %v", err)
		}
		if !strings.Contains(string(result.Source), `out.Text("café")`) {
			t.Errorf("CompileSource() did not decode windows-1252:\n%s", result.Source)
		}
	})

	t.Run("should reduce whitespace when not preserving it", func(t *testing.T) {
		c := newCompiler(t, config.WithPreserveWhitespaces(false))
		result, err := c.CompileSource([]byte("a   b  \n   c"), compiler.Template{Path: "ws.txt", Package: "ws"})
		if err != nil {
			t.Fatalf("CompileSource() error = %v", err)
		}
		if !strings.Contains(string(result.Source), `out.Text("a b\nc")`) {
			t.Errorf("CompileSource() did not reduce whitespace:\n%s", result.Source)
		}
	})

	t.Run("should produce a source map on request", func(t *testing.T) {
		c := newCompiler(t, config.WithSourceMaps(true))
		result, err := c.CompileSource([]byte("x"), compiler.Template{Path: "a.html", Package: "a"})
		if err != nil {
			t.Fatalf("CompileSource() error = %v", err)
		}
		if !strings.Contains(string(result.SourceMap), `"file": "a_tpl.go"`) {
			t.Errorf("SourceMap = %s", result.SourceMap)
		}
	})

	t.Run("should surface typed compile errors", func(t *testing.T) {
		cases := map[string]error{
			"@if (x) {":                     util.ErrModel,
			"@for (a) {}":                   util.ErrToken,
			"[[macro:nope]][[/macro:nope]]": util.ErrPostProcess,
		}
		for input, kind := range cases {
			_, err := newCompiler(t).CompileSource([]byte(input), compiler.Template{Path: "bad.html", Package: "bad"})
			if !errors.Is(err, kind) {
				t.Errorf("CompileSource(%q) error = %v, want %v", input, err, kind)
			}
		}
	})
}

func TestNewCompiler(t *testing.T) {
	cases := []config.CompilerConfigOption{
		config.WithCharset("no-such-charset"),
		config.WithWorkers(0),
		config.WithPostProcessors("nope"),
		config.WithPackageName("not a name"),
	}
	for i, opt := range cases {
		if _, err := compiler.NewCompiler(config.NewCompilerConfig(opt)); err == nil {
			t.Errorf("case %d: NewCompiler() error = nil", i)
		}
	}
}

func TestGeneratedPath(t *testing.T) {
	cases := map[string]string{
		"hello.html":         "hello_tpl.go",
		"views/card.txt":     "views/card_tpl.go",
		"a.b/user-card.html": "a.b/user-card_tpl.go",
	}
	for input, expected := range cases {
		if diff := cmp.Diff(expected, compiler.GeneratedPath(input)); diff != "" {
			t.Errorf("GeneratedPath(%q) mismatch (-want +got):\n%s", input, diff)
		}
	}
}

func TestCompile(t *testing.T) {
	t.Run("should mirror the input tree and skip unchanged output", func(t *testing.T) {
		in, out := t.TempDir(), filepath.Join(t.TempDir(), "views")
		writeFiles(t, in, map[string]string{
			"index.html":        "@args(String title)<h1>@title</h1>",
			"mail/welcome.txt":  "Hi @name",
			"_drafts/skip.html": "@if (",
			"mail/notes.md":     "ignored",
		})
		c := newCompiler(t)

		result, err := c.Compile(context.Background(), in, out)
		if err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
		if diff := cmp.Diff(2, result.Written()); diff != "" {
			t.Errorf("Written() mismatch (-want +got):\n%s", diff)
		}
		if src := readFile(t, filepath.Join(out, "index_tpl.go")); !strings.Contains(src, "\npackage views\n") {
			t.Errorf("index_tpl.go has the wrong package:\n%s", src)
		}
		if src := readFile(t, filepath.Join(out, "mail", "welcome_tpl.go")); !strings.Contains(src, "\npackage mail\n") {
			t.Errorf("welcome_tpl.go has the wrong package:\n%s", src)
		}

		again, err := c.Compile(context.Background(), in, out)
		if err != nil {
			t.Fatalf("second Compile() error = %v", err)
		}
		if diff := cmp.Diff(0, again.Written()); diff != "" {
			t.Errorf("second Written() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should collect every failure when not failing fast", func(t *testing.T) {
		in, out := t.TempDir(), t.TempDir()
		writeFiles(t, in, map[string]string{
			"a.html": "@if (x) {",
			"b.html": "fine",
			"c.html": "@else {}",
		})
		result, err := newCompiler(t, config.WithFailFast(false), config.WithWorkers(2)).Compile(context.Background(), in, out)
		var batchErr *compiler.BatchError
		if !errors.As(err, &batchErr) {
			t.Fatalf("Compile() error = %v, want *BatchError", err)
		}
		if diff := cmp.Diff([]string{"a.html", "c.html"}, batchErr.Failed); diff != "" {
			t.Errorf("Failed mismatch (-want +got):\n%s", diff)
		}
		if !errors.Is(err, util.ErrModel) {
			t.Errorf("Compile() error = %v, want model errors", err)
		}
		if diff := cmp.Diff(1, len(result.Files)); diff != "" {
			t.Errorf("Files mismatch (-want +got):\n%s", diff)
		}
		if _, err := os.Stat(filepath.Join(out, "b_tpl.go")); err != nil {
			t.Errorf("b_tpl.go was not written: %v", err)
		}
		if _, err := os.Stat(filepath.Join(out, "a_tpl.go")); !os.IsNotExist(err) {
			t.Errorf("a_tpl.go exists after a failed compile")
		}
	})

	t.Run("should stop at the first failure by default", func(t *testing.T) {
		in, out := t.TempDir(), t.TempDir()
		writeFiles(t, in, map[string]string{"a.html": "@if (x) {"})
		_, err := newCompiler(t).Compile(context.Background(), in, out)
		var batchErr *compiler.BatchError
		if errors.As(err, &batchErr) || !errors.Is(err, util.ErrModel) {
			t.Errorf("Compile() error = %v, want the model error itself", err)
		}
	})

	t.Run("should reject templates generating the same declarations", func(t *testing.T) {
		in := t.TempDir()
		writeFiles(t, in, map[string]string{"page.html": "a", "page.txt": "b"})
		_, err := newCompiler(t).Compile(context.Background(), in, t.TempDir())
		if err == nil || !strings.Contains(err.Error(), "both generate PageTemplate") {
			t.Errorf("Compile() error = %v, want a collision", err)
		}
	})
}
