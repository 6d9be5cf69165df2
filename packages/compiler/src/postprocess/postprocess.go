package postprocess

import (
	"fmt"

	"tplc-go/packages/compiler/src/ast"
	"tplc-go/packages/compiler/src/config"
	"tplc-go/packages/compiler/src/util"
)

// Processor transforms the literal text of a model. index is the
// processor's position in the pipeline.
type Processor func(model *ast.TemplateModel, index int) (*ast.TemplateModel, error)

// Named pairs a processor with its configuration name.
type Named struct {
	Name string
	Run  Processor
}

var processors = map[string]Processor{
	"whitespace": Whitespace,
	"macro":      Macro,
}

// Lookup returns the processor registered under name.
func Lookup(name string) (Processor, error) {
	p, ok := processors[name]
	if !ok {
		return nil, fmt.Errorf("unknown post-processor %q", name)
	}
	return p, nil
}

// NewPipeline resolves the configured processor order.
func NewPipeline(cfg *config.CompilerConfig) ([]Named, error) {
	names := cfg.ProcessorNames()
	pipeline := make([]Named, 0, len(names))
	for _, name := range names {
		p, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		pipeline = append(pipeline, Named{Name: name, Run: p})
	}
	return pipeline, nil
}

// Run applies the pipeline in order and then merges adjacent text units.
func Run(model *ast.TemplateModel, pipeline []Named) (*ast.TemplateModel, error) {
	for i, p := range pipeline {
		next, err := p.Run(model, i)
		if err != nil {
			return nil, err
		}
		model = next
	}
	units, err := ast.TransformLists(model.Units, MergeText)
	if err != nil {
		return nil, err
	}
	return model.WithUnits(units), nil
}

// MergeText joins runs of textually adjacent PlainText units and drops
// empty ones.
func MergeText(units []ast.Unit) ([]ast.Unit, error) {
	out := make([]ast.Unit, 0, len(units))
	for _, unit := range units {
		text, ok := unit.(*ast.PlainText)
		if ok && text.Text == "" {
			continue
		}
		if ok && len(out) > 0 {
			if prev, isText := out[len(out)-1].(*ast.PlainText); isText && prev.Span != nil && prev.Span.Adjacent(text.Span) {
				span, err := prev.Span.Combine(text.Span)
				if err != nil {
					return nil, err
				}
				out[len(out)-1] = ast.NewPlainText(prev.Text+text.Text, span)
				continue
			}
		}
		out = append(out, unit)
	}
	return out, nil
}

// transform rewrites every text unit of the model with fn.
func transform(model *ast.TemplateModel, fn func(*ast.PlainText) (*ast.PlainText, error)) (*ast.TemplateModel, error) {
	units, err := ast.TransformText(model.Units, fn)
	if err != nil {
		return nil, err
	}
	return model.WithUnits(units), nil
}

func processError(name string, index int, span *util.ParseSourceSpan, format string, args ...any) *util.ParseError {
	return util.Errorf(util.PostProcessError, span, "%s (post-processor #%d %s)", fmt.Sprintf(format, args...), index, name)
}
