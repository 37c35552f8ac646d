package assembler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the assembly lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenNewline

	// Words
	TokenIdentifier // ldi, r0, loop
	TokenLabel      // .loop (Literal holds the name without the dot)
	TokenSigil      // $, $$, //, /=, @, ...

	// Literals
	TokenInteger   // 42, -7, 0xFF, 0b1010, 0o17, 1_000
	TokenCharacter // 'A', '\n'
	TokenTyped     // i32$42, -i8$5, u64$0xFF

	// Delimiters
	TokenComma // ,
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenNewline:    "NEWLINE",
	TokenIdentifier: "IDENTIFIER",
	TokenLabel:      "LABEL",
	TokenSigil:      "SIGIL",
	TokenInteger:    "INTEGER",
	TokenCharacter:  "CHARACTER",
	TokenTyped:      "TYPED",
	TokenComma:      ",",
}

// String returns the string representation of a token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", t)
}

// Position represents a location in source code.
type Position struct {
	Offset int // byte offset from start
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}

// String returns a string representation of the token.
func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenNewline:
		return "NEWLINE"
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	default:
		return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
	}
}
