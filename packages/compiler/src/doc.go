// Package compiler compiles text templates into Go source files that render
// them through the tplc-go runtime.
//
// A template is plain text with embedded directives introduced by '@':
// argument declarations, imports, conditionals, loops, scoped bindings,
// named content blocks and includes of other templates. Every template
// becomes one generated file declaring a <Name>Template struct with a
// New<Name>Template constructor, a Bind method and Render/RenderTo methods.
//
// Main sub-packages:
//
//   - lexer: tokenizes template text into literal text, values and directives
//   - statement: parses directive argument groups (declarations, for, with)
//   - parser: builds the template model and checks block structure
//   - ast: the template model and its visitor
//   - postprocess: ordered text transformations (whitespace, macros)
//   - output: lowers the model to formatted Go source and source maps
//   - config: compiler configuration and tplc.json project files
//   - util: source spans and typed compile errors
//
// Compile runs a whole directory tree concurrently; CompileFile and
// CompileSource compile a single template.
package compiler
