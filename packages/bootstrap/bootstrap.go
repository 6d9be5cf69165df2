// Package bootstrap resolves template paths to compiled definitions, either
// once per process or with modification-time driven recompilation.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	compiler "tplc-go/packages/compiler/src"
)

// Template is a compiled template definition.
type Template struct {
	// Path is the slash separated template path relative to the input root.
	Path string
	// Output is the generated file.
	Output string
	// ModTime is the template modification time the definition was built from.
	ModTime time.Time
	// Generation counts the compilations of Path, starting at 1.
	Generation int
}

// Bootstrap resolves a template path to its compiled definition.
type Bootstrap interface {
	Resolve(path string) (*Template, error)
}

// ReloadCallback is called after a template was recompiled, or failed to.
type ReloadCallback func(path string, template *Template, err error)

type source struct {
	compiler  *compiler.Compiler
	inputDir  string
	outputDir string
}

func (s source) compile(path string, generation int) (*Template, error) {
	info, err := os.Stat(filepath.Join(s.inputDir, filepath.FromSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("stat template %q: %w", path, err)
	}
	res, err := s.compiler.CompileFile(s.inputDir, path, s.outputDir)
	if err != nil {
		return nil, err
	}
	return &Template{Path: res.Template, Output: res.Output, ModTime: info.ModTime(), Generation: generation}, nil
}

// LoadOnce compiles each template the first time it is resolved and keeps
// that definition for the life of the process.
type LoadOnce struct {
	src    source
	mu     sync.Mutex
	loaded map[string]*Template
}

var _ Bootstrap = (*LoadOnce)(nil)

// NewLoadOnce creates a LoadOnce compiling templates from inputDir into outputDir.
func NewLoadOnce(c *compiler.Compiler, inputDir, outputDir string) *LoadOnce {
	return &LoadOnce{
		src:    source{compiler: c, inputDir: inputDir, outputDir: outputDir},
		loaded: make(map[string]*Template),
	}
}

// Resolve returns the definition of path, compiling it on first use.
func (l *LoadOnce) Resolve(path string) (*Template, error) {
	path = filepath.ToSlash(path)
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.loaded[path]; ok {
		return t, nil
	}
	t, err := l.src.compile(path, 1)
	if err != nil {
		return nil, err
	}
	l.loaded[path] = t
	return t, nil
}

// Reloading recompiles a template when its modification time moves past
// the one its current definition was built from, and swaps the new
// definition in. A failed recompilation keeps the previous definition.
type Reloading struct {
	src       source
	logger    *slog.Logger
	mu        sync.RWMutex
	watched   map[string]*Template
	callbacks []ReloadCallback
}

var _ Bootstrap = (*Reloading)(nil)

// NewReloading creates a Reloading compiling templates from inputDir into outputDir.
func NewReloading(c *compiler.Compiler, inputDir, outputDir string) *Reloading {
	logger := c.Config().Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reloading{
		src:     source{compiler: c, inputDir: inputDir, outputDir: outputDir},
		logger:  logger,
		watched: make(map[string]*Template),
	}
}

// AddCallback adds a callback to be called when templates are reloaded
func (r *Reloading) AddCallback(callback ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, callback)
}

// Resolve returns the current definition of path, recompiling it first
// when the template changed on disk.
func (r *Reloading) Resolve(path string) (*Template, error) {
	path = filepath.ToSlash(path)
	info, err := os.Stat(filepath.Join(r.src.inputDir, filepath.FromSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("stat template %q: %w", path, err)
	}

	r.mu.RLock()
	current, ok := r.watched[path]
	r.mu.RUnlock()
	if ok && !info.ModTime().After(current.ModTime) {
		return current, nil
	}
	t, _, err := r.reload(path)
	return t, err
}

// reload recompiles path. On failure the previous definition, if any, is
// returned next to the error.
func (r *Reloading) reload(path string) (*Template, bool, error) {
	r.mu.Lock()
	current := r.watched[path]
	generation := 1
	if current != nil {
		generation = current.Generation + 1
	}
	r.mu.Unlock()

	t, err := r.src.compile(path, generation)

	r.mu.Lock()
	if err == nil {
		r.watched[path] = t
	}
	callbacks := append([]ReloadCallback(nil), r.callbacks...)
	r.mu.Unlock()

	for _, callback := range callbacks {
		callback(path, t, err)
	}
	if err != nil {
		r.logger.Error("template reload failed", "file", path, "error", err)
		return current, false, err
	}
	r.logger.Info("template reloaded", "file", path, "output", t.Output, "generation", t.Generation)
	return t, true, nil
}

// Check discovers the templates under the input directory, recompiles the
// new and modified ones and forgets removed ones. It returns the paths
// that were recompiled, and the joined recompilation errors.
func (r *Reloading) Check() ([]string, error) {
	files, err := r.src.compiler.DiscoverFiles(r.src.inputDir)
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(files))
	var reloaded []string
	var errs []error
	for _, path := range files {
		present[path] = true
		info, err := os.Stat(filepath.Join(r.src.inputDir, filepath.FromSlash(path)))
		if err != nil {
			// Removed between discovery and stat; the next check drops it.
			continue
		}
		r.mu.RLock()
		current, ok := r.watched[path]
		r.mu.RUnlock()
		if ok && !info.ModTime().After(current.ModTime) {
			continue
		}
		if _, changed, err := r.reload(path); err != nil {
			errs = append(errs, err)
		} else if changed {
			reloaded = append(reloaded, path)
		}
	}

	r.mu.Lock()
	for path := range r.watched {
		if !present[path] {
			delete(r.watched, path)
		}
	}
	r.mu.Unlock()
	return reloaded, errors.Join(errs...)
}

// Watch runs Check every interval until ctx is done.
func (r *Reloading) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Check(); err != nil {
				r.logger.Warn("watch check finished with errors", "error", err)
			}
		}
	}
}
