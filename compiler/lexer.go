package compiler

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for tape language source
// ---------------------------------------------------------------------------

// LexError reports a character outside the command alphabet.
type LexError struct {
	Char rune
}

func (e *LexError) Error() string {
	return fmt.Sprintf("invalid token found: %c", e.Char)
}

// Lexer tokenizes tape language source code.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	eof     bool
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = l.readPos
		l.eof = true
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// skipWhitespace skips every rune classified as whitespace.
func (l *Lexer) skipWhitespace() {
	for !l.eof && unicode.IsSpace(l.ch) {
		l.readChar()
	}
}

// NextToken returns the next token. ok is false at end of input. A
// non-command character yields a *LexError and leaves the lexer positioned
// on that character.
func (l *Lexer) NextToken() (tok Token, ok bool, err error) {
	l.skipWhitespace()
	if l.eof {
		return Token{}, false, nil
	}

	t, known := LookupCommand(l.ch)
	if !known {
		return Token{}, false, &LexError{Char: l.ch}
	}
	l.readChar()
	return Token{Type: t}, true, nil
}

// Tokenize converts program text into its token sequence. Lexing stops at
// the first unrecognized character; no partial sequence is returned.
func Tokenize(text string) ([]Token, error) {
	l := NewLexer(text)
	var tokens []Token
	for {
		tok, ok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		if !ok {
			return tokens, nil
		}
		tokens = append(tokens, tok)
	}
}
