package config

import (
	"fmt"
	"go/token"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/mod/module"
	"golang.org/x/text/encoding/htmlindex"
)

// DefaultRuntimeImport is the import path generated code uses for the
// rendering runtime.
const DefaultRuntimeImport = "tplc-go/packages/runtime"

// ContentType selects the stringify strategy for value expressions.
type ContentType int

const (
	// ContentTypeAuto derives the content type from the template file extension.
	ContentTypeAuto ContentType = iota
	ContentTypeRaw
	ContentTypeHTML
)

func (c ContentType) String() string {
	switch c {
	case ContentTypeRaw:
		return "raw"
	case ContentTypeHTML:
		return "html"
	default:
		return "auto"
	}
}

// ParseContentType parses "auto", "raw" or "html".
func ParseContentType(s string) (ContentType, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ContentTypeAuto, nil
	case "raw", "plain":
		return ContentTypeRaw, nil
	case "html":
		return ContentTypeHTML, nil
	}
	return ContentTypeAuto, fmt.Errorf("unknown content type %q", s)
}

// ForFile resolves ContentTypeAuto against a template path.
func (c ContentType) ForFile(path string) ContentType {
	if c != ContentTypeAuto {
		return c
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml", ".xml", ".svg":
		return ContentTypeHTML
	}
	return ContentTypeRaw
}

// CompilerConfig represents the compiler configuration. It is read-only
// once compilation starts and may be shared by concurrent compilations.
type CompilerConfig struct {
	Charset             string
	ContentType         ContentType
	PreserveWhitespaces bool
	PostProcessors      []string
	MacroBaseDir        string
	PackageName         string
	RuntimeImport       string
	Extensions          []string
	OptimizeText        bool
	LineDirectives      bool
	SourceMaps          bool
	ResolveImports      bool
	FailFast            bool
	Workers             int
	Logger              *slog.Logger
}

// NewCompilerConfig creates a new CompilerConfig with optional parameters
func NewCompilerConfig(opts ...CompilerConfigOption) *CompilerConfig {
	config := &CompilerConfig{
		Charset:             "utf-8",
		ContentType:         ContentTypeAuto,
		PreserveWhitespaces: true,
		PostProcessors:      []string{"macro"},
		RuntimeImport:       DefaultRuntimeImport,
		Extensions:          []string{".html", ".txt"},
		OptimizeText:        true,
		FailFast:            true,
		Workers:             runtime.NumCPU(),
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(config)
	}

	return config
}

// CompilerConfigOption is a function that modifies CompilerConfig
type CompilerConfigOption func(*CompilerConfig)

// WithCharset sets the charset template sources are decoded from
func WithCharset(charset string) CompilerConfigOption {
	return func(c *CompilerConfig) {
		c.Charset = charset
	}
}

// WithContentType forces a content type instead of deriving it from the extension
func WithContentType(ct ContentType) CompilerConfigOption {
	return func(c *CompilerConfig) {
		c.ContentType = ct
	}
}

// WithPreserveWhitespaces sets whether to preserve whitespaces
func WithPreserveWhitespaces(preserve bool) CompilerConfigOption {
	return func(c *CompilerConfig) {
		c.PreserveWhitespaces = preserve
	}
}

// WithPostProcessors replaces the ordered post-processor list
func WithPostProcessors(names ...string) CompilerConfigOption {
	return func(c *CompilerConfig) {
		c.PostProcessors = append([]string(nil), names...)
	}
}

// WithMacroBaseDir sets the directory the inline macro resolves files against
func WithMacroBaseDir(dir string) CompilerConfigOption {
	return func(c *CompilerConfig) {
		c.MacroBaseDir = dir
	}
}

// WithPackageName sets the package name of files generated at the output root
func WithPackageName(name string) CompilerConfigOption {
	return func(c *CompilerConfig) {
		c.PackageName = name
	}
}

// WithRuntimeImport sets the runtime import path used by generated code
func WithRuntimeImport(path string) CompilerConfigOption {
	return func(c *CompilerConfig) {
		c.RuntimeImport = path
	}
}

// WithExtensions sets the template file extensions picked up by batch compilation
func WithExtensions(exts ...string) CompilerConfigOption {
	return func(c *CompilerConfig) {
		c.Extensions = append([]string(nil), exts...)
	}
}

// WithOptimizeText sets whether adjacent literal text is coalesced into one write
func WithOptimizeText(optimize bool) CompilerConfigOption {
	return func(c *CompilerConfig) {
		c.OptimizeText = optimize
	}
}

// WithLineDirectives sets whether //line directives are emitted
func WithLineDirectives(enabled bool) CompilerConfigOption {
	return func(c *CompilerConfig) {
		c.LineDirectives = enabled
	}
}

// WithSourceMaps sets whether a source map is written next to each generated file
func WithSourceMaps(enabled bool) CompilerConfigOption {
	return func(c *CompilerConfig) {
		c.SourceMaps = enabled
	}
}

// WithResolveImports sets whether missing imports are resolved while formatting
func WithResolveImports(enabled bool) CompilerConfigOption {
	return func(c *CompilerConfig) {
		c.ResolveImports = enabled
	}
}

// WithFailFast sets whether batch compilation stops at the first failing file
func WithFailFast(failFast bool) CompilerConfigOption {
	return func(c *CompilerConfig) {
		c.FailFast = failFast
	}
}

// WithWorkers sets the number of files compiled concurrently
func WithWorkers(n int) CompilerConfigOption {
	return func(c *CompilerConfig) {
		c.Workers = n
	}
}

// WithLogger sets the logger used by batch compilation
func WithLogger(logger *slog.Logger) CompilerConfigOption {
	return func(c *CompilerConfig) {
		c.Logger = logger
	}
}

// ProcessorNames returns the effective post-processor order.
func (c *CompilerConfig) ProcessorNames() []string {
	names := append([]string(nil), c.PostProcessors...)
	if c.PreserveWhitespaces {
		return names
	}
	for _, n := range names {
		if n == "whitespace" {
			return names
		}
	}
	return append([]string{"whitespace"}, names...)
}

// Validate checks the configuration before any file is compiled.
func (c *CompilerConfig) Validate() error {
	if _, err := htmlindex.Get(c.Charset); err != nil {
		return fmt.Errorf("charset %q: %w", c.Charset, err)
	}
	if err := module.CheckImportPath(c.RuntimeImport); err != nil {
		return fmt.Errorf("runtime import: %w", err)
	}
	if c.PackageName != "" && (!token.IsIdentifier(c.PackageName) || c.PackageName == "_") {
		return fmt.Errorf("package name %q is not a valid identifier", c.PackageName)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("at least one template extension is required")
	}
	return nil
}
