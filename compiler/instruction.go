package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Instruction tree
// ---------------------------------------------------------------------------

// Op identifies the kind of an instruction.
type Op uint8

const (
	OpAdvance Op = iota
	OpRecede
	OpIncrement
	OpDecrement
	OpShow
	OpRead
	OpLoop
)

var opNames = [...]string{
	OpAdvance:   "advance",
	OpRecede:    "recede",
	OpIncrement: "increment",
	OpDecrement: "decrement",
	OpShow:      "show",
	OpRead:      "read",
	OpLoop:      "loop",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", op)
}

// Instruction is one node of the instruction tree. Body is only populated
// for OpLoop. Instructions are not modified after the parser builds them.
type Instruction struct {
	Op   Op
	Body []Instruction
}

// Program is the root instruction sequence. The root is not itself a loop.
type Program []Instruction

// Loop returns a loop instruction owning body.
func Loop(body []Instruction) Instruction {
	return Instruction{Op: OpLoop, Body: body}
}

// instructionFor maps a plain token to its instruction. It must not be
// called with loop delimiters.
func instructionFor(t TokenType) Instruction {
	switch t {
	case TokenAdvance:
		return Instruction{Op: OpAdvance}
	case TokenRecede:
		return Instruction{Op: OpRecede}
	case TokenIncrement:
		return Instruction{Op: OpIncrement}
	case TokenDecrement:
		return Instruction{Op: OpDecrement}
	case TokenShow:
		return Instruction{Op: OpShow}
	case TokenRead:
		return Instruction{Op: OpRead}
	}
	panic(fmt.Sprintf("compiler: no plain instruction for %s", t))
}

var opChars = [...]byte{
	OpAdvance:   '>',
	OpRecede:    '<',
	OpIncrement: '+',
	OpDecrement: '-',
	OpShow:      '.',
	OpRead:      ',',
}

// String renders the instruction back to source text.
func (in Instruction) String() string {
	var b strings.Builder
	in.render(&b)
	return b.String()
}

func (in Instruction) render(b *strings.Builder) {
	if in.Op == OpLoop {
		b.WriteByte('[')
		renderSeq(b, in.Body)
		b.WriteByte(']')
		return
	}
	if int(in.Op) < len(opChars) {
		b.WriteByte(opChars[in.Op])
	}
}

func renderSeq(b *strings.Builder, seq []Instruction) {
	for _, in := range seq {
		in.render(b)
	}
}

// String renders the program back to canonical source text (no whitespace).
func (p Program) String() string {
	var b strings.Builder
	renderSeq(&b, p)
	return b.String()
}

// CommandCount returns the number of plain commands in the tree, ignoring
// loop wrappers.
func (p Program) CommandCount() int {
	return countCommands(p)
}

func countCommands(seq []Instruction) int {
	n := 0
	for _, in := range seq {
		if in.Op == OpLoop {
			n += countCommands(in.Body)
		} else {
			n++
		}
	}
	return n
}

// MaxDepth returns the deepest loop nesting in the program. A program with
// no loops has depth 0.
func (p Program) MaxDepth() int {
	return maxDepth(p)
}

func maxDepth(seq []Instruction) int {
	depth := 0
	for _, in := range seq {
		if in.Op != OpLoop {
			continue
		}
		if d := 1 + maxDepth(in.Body); d > depth {
			depth = d
		}
	}
	return depth
}
