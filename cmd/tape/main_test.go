package main

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chazu/tapevm/compiler"
	"github.com/chazu/tapevm/manifest"
	"github.com/chazu/tapevm/store"
	"github.com/chazu/tapevm/vm"
)

func TestReadSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "echo.tp")
	if err := os.WriteFile(path, []byte(",[.,]"), 0644); err != nil {
		t.Fatal(err)
	}

	src, err := readSource([]string{path})
	if err != nil {
		t.Fatalf("readSource: %v", err)
	}
	if src != ",[.,]" {
		t.Errorf("source = %q", src)
	}

	if _, err := readSource(nil); err == nil || err.Error() != "no file given" {
		t.Errorf("no args: err = %v", err)
	}

	missing := filepath.Join(dir, "missing.tp")
	if _, err := readSource([]string{missing}); err == nil || err.Error() != "file not found: "+missing {
		t.Errorf("missing file: err = %v", err)
	}

	if _, err := readSource([]string{dir}); err == nil || err.Error() != "failed to read file content" {
		t.Errorf("directory: err = %v", err)
	}
}

func TestCheckAndFormat(t *testing.T) {
	tests := []struct {
		source string
		check  string
		format string
	}{
		{"+ [ - ]\n", "ok", "+[-]"},
		{"+q", "invalid token found: q", "invalid token found: q"},
		{"+]", "mismatched loop closing in: +]", "mismatched loop closing in: +]"},
		{"[>", "unclosed loop in: [>", "unclosed loop in: [>"},
	}
	for _, tt := range tests {
		if got := check(tt.source); got != tt.check {
			t.Errorf("check(%q) = %q, want %q", tt.source, got, tt.check)
		}
		if got := formatSource(tt.source); got != tt.format {
			t.Errorf("formatSource(%q) = %q, want %q", tt.source, got, tt.format)
		}
	}
}

func TestLoadManifest_Explicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), manifest.FileName)
	content := "[machine]\ntape-size = 16\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := loadManifest(path)
	if err != nil {
		t.Fatalf("loadManifest: %v", err)
	}
	if m.Machine.TapeSize != 16 {
		t.Errorf("tape-size = %d, want 16", m.Machine.TapeSize)
	}
}

func TestDumpMachine(t *testing.T) {
	prog, err := compiler.Compile("+++>++>")
	if err != nil {
		t.Fatal(err)
	}
	m := vm.New(vm.WithTapeSize(8))
	if err := m.Execute(prog); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	dumpMachine(&buf, m)
	want := "pointer: 2\nsteps: 7\ncell[0] = 3\ncell[1] = 2\n"
	if buf.String() != want {
		t.Errorf("dump = %q, want %q", buf.String(), want)
	}
}

func TestCaptureWriter(t *testing.T) {
	var sink bytes.Buffer
	w := &captureWriter{Writer: bufio.NewWriter(&sink)}

	prog, err := compiler.Compile("++++++++[>++++++++<-]>+.+.")
	if err != nil {
		t.Fatal(err)
	}
	m := vm.New(vm.WithOutput(w))
	if err := m.Execute(prog); err != nil {
		t.Fatal(err)
	}

	if sink.String() != "AB" {
		t.Errorf("sink = %q, want AB", sink.String())
	}
	if w.buf.String() != "AB" {
		t.Errorf("captured = %q, want AB", w.buf.String())
	}
}

func TestCaptureReader(t *testing.T) {
	r := &captureReader{r: bufio.NewReader(strings.NewReader("xyz"))}

	prog, err := compiler.Compile(",,")
	if err != nil {
		t.Fatal(err)
	}
	m := vm.New(vm.WithInput(r))
	if err := m.Execute(prog); err != nil {
		t.Fatal(err)
	}

	if r.buf.String() != "xy" {
		t.Errorf("captured = %q, want xy", r.buf.String())
	}
	if m.Cell() != 'y' {
		t.Errorf("cell = %d, want %d", m.Cell(), 'y')
	}
}

func TestWriteRuns(t *testing.T) {
	runs := []store.Run{
		{
			ID:          "run-1",
			ProgramHash: strings.Repeat("ab", 32),
			Status:      store.StatusOK,
			Output:      []byte("hi"),
			Steps:       12,
			CreatedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{ID: "run-2", Status: store.StatusParseError},
	}

	var buf bytes.Buffer
	if err := writeRuns(&buf, runs); err != nil {
		t.Fatalf("writeRuns: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"STATUS", "run-1", "2024-01-02 03:04:05", strings.Repeat("ab", 32), "2 bytes", "run-2", store.StatusParseError} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRecordRun(t *testing.T) {
	dir := t.TempDir()
	m := manifest.Default()
	m.Dir = dir

	prog, err := compiler.Compile("+.")
	if err != nil {
		t.Fatal(err)
	}
	if err := recordRun(m, prog, &store.Run{Status: store.StatusOK, Output: []byte{1}, Steps: 2}); err != nil {
		t.Fatalf("recordRun: %v", err)
	}
	if err := recordRun(m, nil, &store.Run{Status: store.StatusLexError, Error: "invalid token found: x"}); err != nil {
		t.Fatalf("recordRun: %v", err)
	}

	var buf bytes.Buffer
	if err := printHistory(&buf, m, 10); err != nil {
		t.Fatalf("printHistory: %v", err)
	}
	if !strings.Contains(buf.String(), store.StatusLexError) || !strings.Contains(buf.String(), store.StatusOK) {
		t.Errorf("history:\n%s", buf.String())
	}
	if _, err := os.Stat(filepath.Join(dir, ".tape", "history.db")); err != nil {
		t.Errorf("history database not created: %v", err)
	}
}

func TestLoadRecorded(t *testing.T) {
	m := manifest.Default()
	m.Dir = t.TempDir()

	prog, err := compiler.Compile("+ [ - ] .")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := recordRun(m, prog, &store.Run{Status: store.StatusOK, Steps: 3}); err != nil {
			t.Fatalf("recordRun: %v", err)
		}
	}

	got, runs, err := loadRecorded(m, store.HashString(prog))
	if err != nil {
		t.Fatalf("loadRecorded: %v", err)
	}
	if got.String() != "+[-]." {
		t.Errorf("program = %q, want %q", got.String(), "+[-].")
	}
	if runs != 2 {
		t.Errorf("runs = %d, want 2", runs)
	}

	if _, _, err := loadRecorded(m, "missing"); !errors.Is(err, store.ErrProgramNotFound) {
		t.Errorf("error = %v, want ErrProgramNotFound", err)
	}
}
