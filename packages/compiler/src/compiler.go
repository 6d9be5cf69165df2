package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"tplc-go/packages/compiler/src/ast"
	"tplc-go/packages/compiler/src/config"
	"tplc-go/packages/compiler/src/output"
	"tplc-go/packages/compiler/src/parser"
	"tplc-go/packages/compiler/src/postprocess"
	"tplc-go/packages/compiler/src/util"
)

// GeneratedSuffix is appended to the template stem to name generated files.
const GeneratedSuffix = "_tpl.go"

// Compiler compiles templates with one read-only configuration. It is
// safe for concurrent use.
type Compiler struct {
	cfg      *config.CompilerConfig
	pipeline []postprocess.Named
	logger   *slog.Logger
}

// Template identifies one template to compile.
type Template struct {
	// Path is the slash separated template path relative to the input root.
	Path string
	// Dir is the directory holding the template on disk, if any.
	Dir string
	// Package is the package clause of the generated file.
	Package string
}

// Result is the output of compiling one template.
type Result struct {
	Model     *ast.TemplateModel
	Source    []byte
	SourceMap []byte
}

// NewCompiler creates a new compiler instance. A nil cfg uses the defaults.
func NewCompiler(cfg *config.CompilerConfig) (*Compiler, error) {
	if cfg == nil {
		cfg = config.NewCompilerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	pipeline, err := postprocess.NewPipeline(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compiler{cfg: cfg, pipeline: pipeline, logger: logger}, nil
}

// Config returns the compiler configuration.
func (c *Compiler) Config() *config.CompilerConfig {
	return c.cfg
}

// GeneratedPath returns the generated file path for a template path.
func GeneratedPath(templatePath string) string {
	return strings.TrimSuffix(templatePath, path.Ext(templatePath)) + GeneratedSuffix
}

// CompileSource compiles template source bytes encoded in the configured
// charset.
func (c *Compiler) CompileSource(content []byte, tpl Template) (*Result, error) {
	text, err := c.decode(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tpl.Path, err)
	}

	model, err := parser.Parse(util.NewParseSourceFile(text, tpl.Path), c.cfg)
	if err != nil {
		return nil, err
	}
	model.SourceDir = tpl.Dir
	model.Package = tpl.Package

	model, err = postprocess.Run(model, c.pipeline)
	if err != nil {
		return nil, err
	}

	genPath := GeneratedPath(tpl.Path)
	generated, err := output.Generate(model, path.Base(genPath))
	if err != nil {
		return nil, err
	}

	result := &Result{Model: model, Source: generated.Source}
	if generated.SourceMap != nil {
		data, err := generated.SourceMap.Marshal()
		if err != nil {
			return nil, util.NewParseError(util.GenerationError, nil, fmt.Sprintf("encode source map: %v", err))
		}
		result.SourceMap = data
	}
	return result, nil
}

func (c *Compiler) decode(content []byte) (string, error) {
	enc, err := htmlindex.Get(c.cfg.Charset)
	if err != nil {
		return "", fmt.Errorf("charset %q: %w", c.cfg.Charset, err)
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), content)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", c.cfg.Charset, err)
	}
	return string(decoded), nil
}

// FileResult reports what compiling one file wrote.
type FileResult struct {
	Template string
	Output   string
	// Unchanged is set when the generated bytes matched the existing file
	// and nothing was written.
	Unchanged bool
}

// CompileFile compiles inputDir/rel into outputDir. Output is written
// only after the whole template compiled, and only when it changed.
func (c *Compiler) CompileFile(inputDir, rel, outputDir string) (*FileResult, error) {
	rel = filepath.ToSlash(rel)
	src := filepath.Join(inputDir, filepath.FromSlash(rel))
	content, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}

	result, err := c.CompileSource(content, Template{
		Path:    rel,
		Dir:     filepath.Dir(src),
		Package: c.packageFor(rel, outputDir),
	})
	if err != nil {
		return nil, err
	}

	dest := filepath.Join(outputDir, filepath.FromSlash(GeneratedPath(rel)))
	changed, err := writeIfChanged(dest, result.Source)
	if err != nil {
		return nil, err
	}
	if result.SourceMap != nil {
		mapChanged, err := writeIfChanged(dest+".map", result.SourceMap)
		if err != nil {
			return nil, err
		}
		changed = changed || mapChanged
	}
	return &FileResult{Template: rel, Output: dest, Unchanged: !changed}, nil
}

// packageFor names the package of a generated file after its output
// directory; files at the output root use the configured package name.
func (c *Compiler) packageFor(rel, outputDir string) string {
	dir := path.Dir(rel)
	if dir != "." {
		return util.SanitizePackageName(path.Base(dir))
	}
	if c.cfg.PackageName != "" {
		return c.cfg.PackageName
	}
	abs, err := filepath.Abs(outputDir)
	if err != nil {
		abs = outputDir
	}
	return util.SanitizePackageName(filepath.Base(abs))
}

// writeIfChanged atomically replaces dest with data unless dest already
// holds exactly data.
func writeIfChanged(dest string, data []byte) (bool, error) {
	if existing, err := os.ReadFile(dest); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*")
	if err != nil {
		return false, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return true, nil
}

// DiscoverFiles finds the templates under inputDir, as sorted slash
// separated relative paths. Hidden directories and directories starting
// with '_' are skipped.
func (c *Compiler) DiscoverFiles(inputDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(inputDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if p != inputDir && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !slices.Contains(c.cfg.Extensions, filepath.Ext(name)) {
			return nil
		}
		rel, err := filepath.Rel(inputDir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// BatchResult summarizes a batch compilation.
type BatchResult struct {
	Files  []*FileResult
	Failed []string
}

// Written counts the files whose output changed.
func (r *BatchResult) Written() int {
	n := 0
	for _, f := range r.Files {
		if !f.Unchanged {
			n++
		}
	}
	return n
}

// BatchError aggregates the per-file errors of a continue-on-error batch.
type BatchError struct {
	Total  int
	Failed []string
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d of %d templates failed to compile:\n%v", len(e.Failed), e.Total, e.Err)
}

// Unwrap returns the joined per-file errors.
func (e *BatchError) Unwrap() error {
	return e.Err
}

// Compile compiles every template under inputDir into outputDir, mirroring
// the directory layout. Templates compile concurrently on cfg.Workers
// workers. In fail-fast mode the first failure cancels the remaining
// files and is returned as is; otherwise all files are attempted and the
// failures are returned as a *BatchError next to the partial result.
func (c *Compiler) Compile(ctx context.Context, inputDir, outputDir string) (*BatchResult, error) {
	files, err := c.DiscoverFiles(inputDir)
	if err != nil {
		return nil, err
	}
	if err := checkCollisions(files); err != nil {
		return nil, err
	}
	c.logger.Info("compiling templates", "input", inputDir, "output", outputDir, "files", len(files))

	results := make([]*FileResult, len(files))
	errs := make([]error, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)

	for i, rel := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := c.CompileFile(inputDir, rel, outputDir)
			if err != nil {
				c.logger.Error("template failed", "file", rel, "error", err)
				if c.cfg.FailFast {
					return err
				}
				errs[i] = err
				return nil
			}
			if res.Unchanged {
				c.logger.Debug("template unchanged", "file", rel, "output", res.Output)
			} else {
				c.logger.Info("compiled template", "file", rel, "output", res.Output)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := &BatchResult{}
	var failures []error
	for i, rel := range files {
		if errs[i] != nil {
			batch.Failed = append(batch.Failed, rel)
			failures = append(failures, errs[i])
			continue
		}
		batch.Files = append(batch.Files, results[i])
	}
	if len(failures) > 0 {
		return batch, &BatchError{Total: len(files), Failed: batch.Failed, Err: errors.Join(failures...)}
	}
	return batch, nil
}

// checkCollisions rejects templates that would generate the same file or
// the same declarations in one package, such as page.html and page.txt or
// user-card.html and user_card.html.
func checkCollisions(files []string) error {
	seen := make(map[string]string, len(files))
	for _, rel := range files {
		key := path.Join(path.Dir(rel), parser.TemplateName(rel))
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("templates %s and %s both generate %sTemplate", prev, rel, path.Base(key))
		}
		seen[key] = rel
	}
	return nil
}
