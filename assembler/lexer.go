package assembler

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for assembly source
// ---------------------------------------------------------------------------

const eof rune = -1

// sigilChars are the characters that make up operator-style mnemonics.
const sigilChars = "$%@:/=!<>+-*&|^"

// Lexer tokenizes assembly source. Newlines are significant and are
// returned as TokenNewline; blanks and comments are skipped.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // column of ch (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	l.col++

	if l.readPos >= len(l.input) {
		l.ch = eof
		l.pos = len(l.input)
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return eof
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

// NextToken returns the next token. After TokenEOF every call returns TokenEOF.
func (l *Lexer) NextToken() Token {
	l.skipBlanksAndComments()

	pos := l.position()

	switch {
	case l.ch == eof:
		return Token{Type: TokenEOF, Pos: pos}

	case l.ch == '\n':
		l.readChar()
		return Token{Type: TokenNewline, Literal: "\n", Pos: pos}

	case l.ch == ',':
		l.readChar()
		return Token{Type: TokenComma, Literal: ",", Pos: pos}

	case l.ch == '.':
		l.readChar()
		if !isIdentStart(l.ch) {
			return Token{Type: TokenError, Literal: "expected label name after '.'", Pos: pos}
		}
		return Token{Type: TokenLabel, Literal: l.readIdentifier(), Pos: pos}

	case isIdentStart(l.ch):
		ident := l.readIdentifier()
		if l.ch == '$' && isImmediateType(ident) {
			return Token{Type: TokenTyped, Literal: ident + l.readTypedValue(), Pos: pos}
		}
		return Token{Type: TokenIdentifier, Literal: ident, Pos: pos}

	case isDigit(l.ch):
		return Token{Type: TokenInteger, Literal: l.readNumber(), Pos: pos}

	case l.ch == '-' && isDigit(l.peekChar()):
		l.readChar()
		return Token{Type: TokenInteger, Literal: "-" + l.readNumber(), Pos: pos}

	case l.ch == '-' && l.typedAhead():
		l.readChar()
		ident := l.readIdentifier()
		return Token{Type: TokenTyped, Literal: "-" + ident + l.readTypedValue(), Pos: pos}

	case l.ch == '\'':
		return l.readCharacter(pos)

	case isSigil(l.ch):
		return Token{Type: TokenSigil, Literal: l.readSigil(), Pos: pos}
	}

	ch := l.ch
	l.readChar()
	return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character %q", ch), Pos: pos}
}

// Tokenize returns all tokens up to and including TokenEOF.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}

func (l *Lexer) skipBlanksAndComments() {
	for {
		switch l.ch {
		case ' ', '\t', '\r':
			l.readChar()
		case ';', '#':
			for l.ch != '\n' && l.ch != eof {
				l.readChar()
			}
		default:
			return
		}
	}
}

func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readNumber consumes a digit run including radix prefixes and underscores.
// Validation is left to the parser so malformed literals report as operands.
func (l *Lexer) readNumber() string {
	start := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readTypedValue consumes the "$value" part of a typed immediate. The value
// may carry a sign and a fraction; the parser range-checks it.
func (l *Lexer) readTypedValue() string {
	start := l.pos
	l.readChar() // '$'
	if l.ch == '-' {
		l.readChar()
	}
	for isIdentPart(l.ch) || (l.ch == '.' && isDigit(l.peekChar())) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// typedAhead reports whether the input after the current '-' is a typed
// immediate such as "i8$5".
func (l *Lexer) typedAhead() bool {
	end := l.readPos
	for end < len(l.input) && isIdentPart(rune(l.input[end])) {
		end++
	}
	return end < len(l.input) && l.input[end] == '$' && isImmediateType(l.input[l.readPos:end])
}

func (l *Lexer) readSigil() string {
	start := l.pos
	for isSigil(l.ch) {
		// "$-5" and "$-i8$5" are PUSH with a negative operand, not a "$-" mnemonic.
		if l.ch == '-' && l.pos > start && (isDigit(l.peekChar()) || l.typedAhead()) {
			break
		}
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readCharacter reads a quoted character literal. The token literal is the
// decoded character.
func (l *Lexer) readCharacter(pos Position) Token {
	l.readChar() // opening quote

	var value rune
	switch l.ch {
	case eof, '\n', '\'':
		return Token{Type: TokenError, Literal: "empty character literal", Pos: pos}
	case '\\':
		l.readChar()
		switch l.ch {
		case 'n':
			value = '\n'
		case 't':
			value = '\t'
		case 'r':
			value = '\r'
		case '0':
			value = 0
		case '\\', '\'':
			value = l.ch
		default:
			return Token{Type: TokenError, Literal: fmt.Sprintf("unknown escape \\%c", l.ch), Pos: pos}
		}
	default:
		value = l.ch
	}
	l.readChar()

	if l.ch != '\'' {
		return Token{Type: TokenError, Literal: "unterminated character literal", Pos: pos}
	}
	l.readChar()
	return Token{Type: TokenCharacter, Literal: string(value), Pos: pos}
}

func isIdentStart(ch rune) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isSigil(ch rune) bool {
	return ch != eof && strings.ContainsRune(sigilChars, ch)
}
