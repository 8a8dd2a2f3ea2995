package compiler

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Parser: builds the instruction tree from a token sequence
// ---------------------------------------------------------------------------

var (
	// ErrMismatchedLoop is matched by parse errors for a ']' with no open loop.
	ErrMismatchedLoop = errors.New("mismatched loop closing")
	// ErrUnclosedLoop is matched by parse errors for input ending inside a loop.
	ErrUnclosedLoop = errors.New("unclosed loop")
)

// ParseErrorKind distinguishes the two structural parse failures.
type ParseErrorKind int

const (
	Mismatched ParseErrorKind = iota
	Unclosed
)

func (k ParseErrorKind) String() string {
	switch k {
	case Mismatched:
		return "mismatched"
	case Unclosed:
		return "unclosed"
	}
	return fmt.Sprintf("ParseErrorKind(%d)", k)
}

// ParseError reports unbalanced loop delimiters. Fragment is a textual
// reconstruction of the offending instructions: for Mismatched, the root
// sequence built so far followed by the stray ']'; for Unclosed, the
// innermost open loop without its closing ']'.
type ParseError struct {
	Kind     ParseErrorKind
	Fragment string
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case Mismatched:
		return fmt.Sprintf("mismatched loop closing in: %s", e.Fragment)
	default:
		return fmt.Sprintf("unclosed loop in: %s", e.Fragment)
	}
}

// Unwrap lets callers match the kind with errors.Is.
func (e *ParseError) Unwrap() error {
	if e.Kind == Mismatched {
		return ErrMismatchedLoop
	}
	return ErrUnclosedLoop
}

// Parser turns tokens into an instruction tree. It holds an explicit stack
// of open sequences; levels[0] is the program root and every deeper level
// is a loop body under construction.
type Parser struct {
	levels [][]Instruction
}

// NewParser creates a parser ready to parse a program from scratch.
func NewParser() *Parser {
	return &Parser{levels: [][]Instruction{nil}}
}

// Depth returns the number of currently open sequences, root included.
func (p *Parser) Depth() int {
	return len(p.levels)
}

// Feed consumes one token.
func (p *Parser) Feed(tok Token) error {
	switch tok.Type {
	case TokenStartLoop:
		p.levels = append(p.levels, nil)
		return nil
	case TokenStopLoop:
		return p.stopLoop()
	default:
		p.push(instructionFor(tok.Type))
		return nil
	}
}

// stopLoop closes the innermost open loop and appends it to its enclosing
// sequence.
func (p *Parser) stopLoop() error {
	if len(p.levels) <= 1 {
		return &ParseError{
			Kind:     Mismatched,
			Fragment: Program(p.levels[0]).String() + "]",
		}
	}
	top := len(p.levels) - 1
	body := p.levels[top]
	p.levels[top] = nil
	p.levels = p.levels[:top]
	p.push(Loop(body))
	return nil
}

// push appends an instruction to the sequence currently being built.
func (p *Parser) push(in Instruction) {
	top := len(p.levels) - 1
	p.levels[top] = append(p.levels[top], in)
}

// Finish returns the completed program, failing if any loop is still open.
func (p *Parser) Finish() (Program, error) {
	if len(p.levels) > 1 {
		inner := p.levels[len(p.levels)-1]
		return nil, &ParseError{
			Kind:     Unclosed,
			Fragment: "[" + Program(inner).String(),
		}
	}
	return Program(p.levels[0]), nil
}

// Parse converts a token sequence into a program. On failure no partial
// tree is returned.
func Parse(tokens []Token) (Program, error) {
	p := NewParser()
	for _, tok := range tokens {
		if err := p.Feed(tok); err != nil {
			return nil, err
		}
	}
	return p.Finish()
}

// Compile tokenizes and parses program text.
func Compile(text string) (Program, error) {
	tokens, err := Tokenize(text)
	if err != nil {
		return nil, err
	}
	return Parse(tokens)
}
