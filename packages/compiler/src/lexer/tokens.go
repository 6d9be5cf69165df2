package lexer

import (
	"fmt"

	"tplc-go/packages/compiler/src/util"
)

// TokenType represents the type of a token
type TokenType int

const (
	TokenTypeTEXT TokenType = iota
	TokenTypeVALUE
	TokenTypeDIRECTIVE
	TokenTypeBLOCK_CLOSE
	TokenTypeCOMMENT
	TokenTypeEOF
)

var tokenTypeNames = map[TokenType]string{
	TokenTypeTEXT:        "TEXT",
	TokenTypeVALUE:       "VALUE",
	TokenTypeDIRECTIVE:   "DIRECTIVE",
	TokenTypeBLOCK_CLOSE: "BLOCK_CLOSE",
	TokenTypeCOMMENT:     "COMMENT",
	TokenTypeEOF:         "EOF",
}

func (t TokenType) String() string {
	if name, ok := tokenTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Directive names produced by the tokenizer.
const (
	DirectiveArgs     = "args"
	DirectiveImport   = "import"
	DirectiveIf       = "if"
	DirectiveElseIf   = "elseif"
	DirectiveElse     = "else"
	DirectiveElseWith = "elsewith"
	DirectiveFor      = "for"
	DirectiveWith     = "with"
	DirectiveContent  = "content"
	DirectiveInclude  = "include"
)

// Token is one scanned element of a template.
//
// For TEXT tokens Value holds the unescaped literal text; for VALUE tokens
// the raw expression; for COMMENT tokens the comment body. DIRECTIVE tokens
// carry the directive Name, an optional Target (content closure name or
// include path), the raw argument text between the parentheses in Args and
// whether the directive opened a block.
type Token struct {
	Type       TokenType
	Name       string
	Target     string
	Value      string
	Args       string
	HasArgs    bool
	ArgsSpan   *util.ParseSourceSpan
	Block      bool
	SourceSpan *util.ParseSourceSpan
}

func (t *Token) String() string {
	switch t.Type {
	case TokenTypeDIRECTIVE:
		return fmt.Sprintf("%s(@%s %q %q block=%t)", t.Type, t.Name, t.Target, t.Args, t.Block)
	case TokenTypeTEXT, TokenTypeVALUE, TokenTypeCOMMENT:
		return fmt.Sprintf("%s(%q)", t.Type, t.Value)
	}
	return t.Type.String()
}
