package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the tape language lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token. The set is closed: one type per
// command character.
type TokenType int

const (
	TokenAdvance   TokenType = iota // >
	TokenRecede                     // <
	TokenIncrement                  // +
	TokenDecrement                  // -
	TokenShow                       // .
	TokenRead                       // ,
	TokenStartLoop                  // [
	TokenStopLoop                   // ]
)

var tokenNames = map[TokenType]string{
	TokenAdvance:   "ADVANCE",
	TokenRecede:    "RECEDE",
	TokenIncrement: "INCREMENT",
	TokenDecrement: "DECREMENT",
	TokenShow:      "SHOW",
	TokenRead:      "READ",
	TokenStartLoop: "START_LOOP",
	TokenStopLoop:  "STOP_LOOP",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token. Tokens carry no payload beyond their
// type.
type Token struct {
	Type TokenType
}

func (t Token) String() string {
	return t.Type.String()
}

// commandChars maps each command character to its token type.
var commandChars = map[rune]TokenType{
	'>': TokenAdvance,
	'<': TokenRecede,
	'+': TokenIncrement,
	'-': TokenDecrement,
	'.': TokenShow,
	',': TokenRead,
	'[': TokenStartLoop,
	']': TokenStopLoop,
}

// LookupCommand returns the token type for a command character.
func LookupCommand(r rune) (TokenType, bool) {
	t, ok := commandChars[r]
	return t, ok
}

// IsCommandChar returns true if r is one of the eight command characters.
func IsCommandChar(r rune) bool {
	_, ok := commandChars[r]
	return ok
}
