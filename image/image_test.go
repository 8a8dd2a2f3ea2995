package image

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/tapevm/compiler"
	"github.com/chazu/tapevm/vm"
)

func mustCompile(t *testing.T, src string) compiler.Program {
	t.Helper()
	prog, err := compiler.Compile(src)
	if err != nil {
		t.Fatalf("Compile(%q) error: %v", src, err)
	}
	return prog
}

func TestImageRoundTrip(t *testing.T) {
	prog := mustCompile(t, "++[>+++[>+<-]<-]>>.")
	var out bytes.Buffer
	m := vm.New(vm.WithOutput(&out), vm.WithTapeSize(16))
	if err := m.Execute(prog); err != nil {
		t.Fatal(err)
	}

	data, err := Marshal(Capture(prog, m))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !bytes.HasPrefix(data, Magic[:]) {
		t.Fatalf("image does not start with magic")
	}

	img, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if img.Program.String() != prog.String() {
		t.Errorf("program = %q, want %q", img.Program.String(), prog.String())
	}
	if img.Pointer != m.Pointer() || img.Steps != m.Steps() {
		t.Errorf("pointer/steps = %d/%d, want %d/%d", img.Pointer, img.Steps, m.Pointer(), m.Steps())
	}
	if !bytes.Equal(img.Tape, m.Tape()) {
		t.Errorf("tape = %v, want %v", img.Tape, m.Tape())
	}

	restored := img.Machine()
	if restored.TapeSize() != 16 || restored.Pointer() != 2 || restored.Cell() != 6 {
		t.Errorf("restored machine size=%d ptr=%d cell=%d", restored.TapeSize(), restored.Pointer(), restored.Cell())
	}
}

func TestImageCanonical(t *testing.T) {
	prog := mustCompile(t, "+[-]")
	a, err := Marshal(FromProgram(prog))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Marshal(FromProgram(mustCompile(t, " + [ - ] ")))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("equal programs produced different images")
	}
}

func TestImageRejectsBadMagic(t *testing.T) {
	if _, err := Unmarshal([]byte("NOPE")); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("error = %v, want ErrInvalidMagic", err)
	}
	if _, err := Unmarshal(nil); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("error = %v, want ErrInvalidMagic", err)
	}
}

func TestImageRejectsTamperedProgram(t *testing.T) {
	img := FromProgram(mustCompile(t, "+++"))
	img.Program = mustCompile(t, "---")
	data, err := Marshal(img)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("error = %v, want ErrHashMismatch", err)
	}
}

func TestImageRejectsVersion(t *testing.T) {
	img := FromProgram(mustCompile(t, "+"))
	img.Version = 99
	data, err := Marshal(img)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); !errors.Is(err, ErrVersion) {
		t.Errorf("error = %v, want ErrVersion", err)
	}
}

func TestImageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.tpi")
	prog := mustCompile(t, ",[.,]")
	if err := WriteFile(path, FromProgram(prog)); err != nil {
		t.Fatal(err)
	}
	img, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	m := img.Machine(vm.WithInput(bytes.NewReader([]byte("hi"))), vm.WithOutput(&out))
	if err := m.Execute(img.Program); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hi" {
		t.Errorf("output = %q, want %q", out.String(), "hi")
	}
}

func TestImageDeepNesting(t *testing.T) {
	for _, depth := range []int{15, 32, 5000} {
		src := strings.Repeat("[", depth) + "+" + strings.Repeat("]", depth)
		prog := mustCompile(t, src)

		data, err := Marshal(FromProgram(prog))
		if err != nil {
			t.Fatalf("depth %d: Marshal failed: %v", depth, err)
		}
		img, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("depth %d: Unmarshal failed: %v", depth, err)
		}
		if img.Program.MaxDepth() != depth {
			t.Errorf("depth %d: MaxDepth = %d", depth, img.Program.MaxDepth())
		}
		if img.Program.String() != src {
			t.Errorf("depth %d: program does not round trip", depth)
		}
	}
}

// encodeRaw writes an image body without going through Marshal, so the
// source and hash can disagree with a valid program.
func encodeRaw(t *testing.T, img *Image) []byte {
	t.Helper()
	body, err := encMode.Marshal(img)
	if err != nil {
		t.Fatal(err)
	}
	return append(append([]byte{}, Magic[:]...), body...)
}

func TestImageRejectsInvalidSource(t *testing.T) {
	src := "+x"
	data := encodeRaw(t, &Image{
		Version: Version,
		Hash:    sha256.Sum256([]byte(src)),
		Source:  src,
	})
	_, err := Unmarshal(data)
	var lexErr *compiler.LexError
	if !errors.As(err, &lexErr) {
		t.Errorf("error = %v, want a lex error", err)
	}
}

func TestImageProgramRebuiltFromSource(t *testing.T) {
	// A non-canonical spelling of "+[.]" still hashes to the canonical form.
	prog := mustCompile(t, "+[.]")
	data := encodeRaw(t, &Image{
		Version: Version,
		Hash:    Hash(prog),
		Source:  " + [ . ] ",
	})
	img, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(img.Program) != 2 || img.Program[0].Op != compiler.OpIncrement || img.Program[1].Op != compiler.OpLoop {
		t.Errorf("program = %v", img.Program)
	}

	// The hash of "+" does not vouch for "+[.]".
	data = encodeRaw(t, &Image{
		Version: Version,
		Hash:    Hash(mustCompile(t, "+")),
		Source:  "+[.]",
	})
	if _, err := Unmarshal(data); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("error = %v, want ErrHashMismatch", err)
	}
}

func TestImageRejectsOversizedTape(t *testing.T) {
	img := FromProgram(mustCompile(t, "+"))
	img.Tape = make([]byte, vm.DefaultTapeSize+1)
	data, err := Marshal(img)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); !errors.Is(err, ErrTapeSize) {
		t.Errorf("error = %v, want ErrTapeSize", err)
	}

	img.Tape = make([]byte, vm.DefaultTapeSize)
	data, err = Marshal(img)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); err != nil {
		t.Errorf("full-size tape rejected: %v", err)
	}
}
