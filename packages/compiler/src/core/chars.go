package core

import "unicode"

// Character constants used by the template scanners.
const (
	CharEOF       rune = -1
	CharTAB       rune = '\t'
	CharLF        rune = '\n'
	CharCR        rune = '\r'
	CharSPACE     rune = ' '
	CharDQ        rune = '"'
	CharSQ        rune = '\''
	CharBT        rune = '`'
	CharLPAREN    rune = '('
	CharRPAREN    rune = ')'
	CharSTAR      rune = '*'
	CharCOMMA     rune = ','
	CharPERIOD    rune = '.'
	CharCOLON     rune = ':'
	CharSEMICOLON rune = ';'
	CharLT        rune = '<'
	CharEQ        rune = '='
	CharGT        rune = '>'
	CharAT        rune = '@'
	CharLBRACKET  rune = '['
	CharBACKSLASH rune = '\\'
	CharRBRACKET  rune = ']'
	CharLBRACE    rune = '{'
	CharRBRACE    rune = '}'
	CharBANG      rune = '!'
)

// IsWhitespace reports whether r is a space, tab, or line break.
func IsWhitespace(r rune) bool {
	return r == CharSPACE || r == CharTAB || r == CharLF || r == CharCR || r == '\f' || r == '\v'
}

// IsHorizontalSpace reports whether r is a space or a tab.
func IsHorizontalSpace(r rune) bool {
	return r == CharSPACE || r == CharTAB
}

// IsDigit checks if a character represents a digit
func IsDigit(r rune) bool {
	return '0' <= r && r <= '9'
}

// IsAsciiLetter checks if a character represents an ASCII letter
func IsAsciiLetter(r rune) bool {
	return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

// IsIdentStart reports whether r may start a Go identifier.
func IsIdentStart(r rune) bool {
	return IsAsciiLetter(r) || r == '_' || r > 0x7f && unicode.IsLetter(r)
}

// IsIdentPart reports whether r may continue a Go identifier.
func IsIdentPart(r rune) bool {
	return IsIdentStart(r) || IsDigit(r)
}

// IsQuote reports whether r opens a Go string or rune literal.
func IsQuote(r rune) bool {
	return r == CharDQ || r == CharSQ || r == CharBT
}
