package compiler

import (
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// FuzzCompile: lexing and parsing are total. Every input either compiles or
// yields exactly one of the typed errors, and compiled programs render back
// to their command characters.
// ---------------------------------------------------------------------------

func FuzzCompile(f *testing.F) {
	seeds := []string{
		``, ` `, "\t\n\r",
		`+`, `-`, `<`, `>`, `.`, `,`, `[`, `]`,
		`[]`, `][`, `[[]`, `[]]`,
		`+[-]`, `,[.,]`, `+[>,.<-]`,
		"++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++.",
		`hello`, `+ # comment`, `é`, "\xff",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		prog, err := Compile(input)
		if err != nil {
			var lexErr *LexError
			var parseErr *ParseError
			if !errors.As(err, &lexErr) && !errors.As(err, &parseErr) {
				t.Fatalf("unexpected error type %T: %v", err, err)
			}
			if prog != nil {
				t.Fatalf("error with non-nil program for %q", input)
			}
			return
		}

		again, err := Compile(prog.String())
		if err != nil {
			t.Fatalf("rendered program %q does not compile: %v", prog.String(), err)
		}
		if again.String() != prog.String() {
			t.Fatalf("render not stable: %q vs %q", again.String(), prog.String())
		}
	})
}
