package output

import (
	"fmt"
	"strings"

	"tplc-go/packages/compiler/src/core"
)

// builtinTypes maps declared scalar type names to Go types.
var builtinTypes = map[string]string{
	"String":           "string",
	"java.lang.String": "string",
	"CharSequence":     "string",
	"Integer":          "int",
	"int":              "int",
	"Short":            "int16",
	"short":            "int16",
	"Byte":             "byte",
	"byte":             "byte",
	"Long":             "int64",
	"long":             "int64",
	"Double":           "float64",
	"double":           "float64",
	"Float":            "float32",
	"float":            "float32",
	"Boolean":          "bool",
	"boolean":          "bool",
	"Character":        "rune",
	"char":             "rune",
	"Object":           "any",
}

// listTypes and mapTypes are generic containers lowered to slices and maps.
var (
	listTypes = map[string]bool{"List": true, "ArrayList": true, "LinkedList": true, "Collection": true, "Iterable": true}
	mapTypes  = map[string]bool{"Map": true, "HashMap": true, "LinkedHashMap": true, "TreeMap": true}
)

// GoType lowers a normalized declared type to Go. An empty type is any;
// Go spellings ("[]string", "*User", "map[string]int") pass through.
func GoType(declared string) (string, error) {
	if declared == "" {
		return "any", nil
	}
	if isGoSpelling(declared) {
		return declared, nil
	}
	p := &typeParser{src: declared}
	t, err := p.parseType()
	if err != nil {
		return "", err
	}
	if p.pos != len(p.src) {
		return "", fmt.Errorf("unexpected %q in type %q", p.src[p.pos:], declared)
	}
	return t, nil
}

func isGoSpelling(t string) bool {
	for _, prefix := range []string{"[", "*", "map[", "func", "chan", "interface{", "struct{"} {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	// Go generic instantiation such as "pkg.Set[int]".
	i := strings.IndexByte(t, '[')
	return i > 0 && i+1 < len(t) && t[i+1] != ']'
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) parseType() (string, error) {
	start := p.pos
	for p.pos < len(p.src) && (core.IsIdentPart(rune(p.src[p.pos])) || p.src[p.pos] == '.' || p.src[p.pos] >= 0x80) {
		p.pos++
	}
	name := p.src[start:p.pos]
	if name == "" {
		return "", fmt.Errorf("missing type name in %q", p.src)
	}

	var args []string
	if p.pos < len(p.src) && p.src[p.pos] == '<' {
		p.pos++
		for {
			arg, err := p.parseType()
			if err != nil {
				return "", err
			}
			args = append(args, arg)
			if p.pos >= len(p.src) {
				return "", fmt.Errorf("unterminated generic in %q", p.src)
			}
			c := p.src[p.pos]
			p.pos++
			if c == '>' {
				break
			}
			if c != ',' {
				return "", fmt.Errorf("unexpected %q in generic arguments of %q", c, p.src)
			}
		}
	}

	dims := 0
	for strings.HasPrefix(p.src[p.pos:], "[]") {
		dims++
		p.pos += 2
	}

	t, err := lowerNamed(name, args)
	if err != nil {
		return "", err
	}
	return strings.Repeat("[]", dims) + t, nil
}

func lowerNamed(name string, args []string) (string, error) {
	switch {
	case listTypes[name]:
		if len(args) != 1 {
			return "", fmt.Errorf("%s takes one type argument, got %d", name, len(args))
		}
		return "[]" + args[0], nil
	case mapTypes[name]:
		if len(args) != 2 {
			return "", fmt.Errorf("%s takes two type arguments, got %d", name, len(args))
		}
		return "map[" + args[0] + "]" + args[1], nil
	case len(args) > 0:
		return name + "[" + strings.Join(args, ", ") + "]", nil
	}
	if t, ok := builtinTypes[name]; ok {
		return t, nil
	}
	return name, nil
}
