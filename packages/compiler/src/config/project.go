package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ProjectFile is the on-disk form of a compile invocation (tplc.json).
type ProjectFile struct {
	Input           string          `json:"input"`
	Output          string          `json:"output"`
	CompilerOptions CompilerOptions `json:"compilerOptions"`
}

// CompilerOptions mirrors the CompilerConfig fields that may be set from a project file.
type CompilerOptions struct {
	Charset             string   `json:"charset,omitempty"`
	ContentType         string   `json:"contentType,omitempty"`
	PreserveWhitespaces *bool    `json:"preserveWhitespaces,omitempty"`
	PostProcessors      []string `json:"postProcessors,omitempty"`
	PackageName         string   `json:"packageName,omitempty"`
	RuntimeImport       string   `json:"runtimeImport,omitempty"`
	Extensions          []string `json:"extensions,omitempty"`
	LineDirectives      bool     `json:"lineDirectives,omitempty"`
	SourceMaps          bool     `json:"sourceMaps,omitempty"`
	FailFast            *bool    `json:"failFast,omitempty"`
}

// ParseProjectFile reads and parses a project file
func ParseProjectFile(path string) (*ProjectFile, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	var project ProjectFile
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to parse project file: %w", err)
	}

	root := filepath.Dir(absPath)
	if project.Input != "" && !filepath.IsAbs(project.Input) {
		project.Input = filepath.Join(root, project.Input)
	}
	if project.Output != "" && !filepath.IsAbs(project.Output) {
		project.Output = filepath.Join(root, project.Output)
	}
	return &project, nil
}

// Options converts the project file settings into config options.
func (p *ProjectFile) Options() ([]CompilerConfigOption, error) {
	o := p.CompilerOptions
	var opts []CompilerConfigOption
	if o.Charset != "" {
		opts = append(opts, WithCharset(o.Charset))
	}
	if o.ContentType != "" {
		ct, err := ParseContentType(o.ContentType)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithContentType(ct))
	}
	if o.PreserveWhitespaces != nil {
		opts = append(opts, WithPreserveWhitespaces(*o.PreserveWhitespaces))
	}
	if o.PostProcessors != nil {
		opts = append(opts, WithPostProcessors(o.PostProcessors...))
	}
	if o.PackageName != "" {
		opts = append(opts, WithPackageName(o.PackageName))
	}
	if o.RuntimeImport != "" {
		opts = append(opts, WithRuntimeImport(o.RuntimeImport))
	}
	if len(o.Extensions) > 0 {
		opts = append(opts, WithExtensions(o.Extensions...))
	}
	if o.LineDirectives {
		opts = append(opts, WithLineDirectives(true))
	}
	if o.SourceMaps {
		opts = append(opts, WithSourceMaps(true))
	}
	if o.FailFast != nil {
		opts = append(opts, WithFailFast(*o.FailFast))
	}
	return opts, nil
}
