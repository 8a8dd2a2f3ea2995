package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"

	"github.com/chazu/tapevm/compiler"
	"github.com/chazu/tapevm/image"
	"github.com/chazu/tapevm/manifest"
	"github.com/chazu/tapevm/store"
	"github.com/chazu/tapevm/vm"
)

// runOptions collects the flags that affect a single run.
type runOptions struct {
	dump     bool
	imageOut string
	record   bool
}

// readSource loads the program text named by the first argument.
func readSource(args []string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("no file given")
	}
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", errors.New("failed to read file content")
	}
	return string(data), nil
}

// check reports whether source lexes and parses.
func check(source string) string {
	if _, err := compiler.Compile(source); err != nil {
		return err.Error()
	}
	return "ok"
}

// formatSource renders source in canonical form, or the compile error.
func formatSource(source string) string {
	prog, err := compiler.Compile(source)
	if err != nil {
		return err.Error()
	}
	return prog.String()
}

// runSource compiles and runs source against stdin and stdout. Lex and
// parse errors are printed to stdout and are not failures of the command.
func runSource(m *manifest.Manifest, source string, opts runOptions) error {
	prog, err := compiler.Compile(source)
	if err != nil {
		fmt.Println(err)
		if opts.record {
			return recordRun(m, nil, &store.Run{Status: store.StatusOf(err), Error: err.Error()})
		}
		return nil
	}
	return runProgram(m, prog, image.FromProgram(prog), opts)
}

// runImage runs the program held in an image file on the image's saved
// machine state.
func runImage(m *manifest.Manifest, path string, opts runOptions) error {
	img, err := image.ReadFile(path)
	if err != nil {
		return err
	}
	log.Infof("loaded image %s (%d commands)", path, img.Program.CommandCount())
	return runProgram(m, img.Program, img, opts)
}

func runProgram(m *manifest.Manifest, prog compiler.Program, img *image.Image, opts runOptions) error {
	in := &captureReader{r: bufio.NewReader(os.Stdin)}
	out := &captureWriter{Writer: bufio.NewWriter(os.Stdout)}

	machine := img.Machine(
		vm.WithTapeSize(m.Machine.TapeSize),
		vm.WithMaxSteps(uint64(m.Machine.MaxSteps)),
		vm.WithInput(in),
		vm.WithOutput(out),
	)

	runErr := execute(machine, prog, m.Machine.MaxSteps > 0)
	if err := out.Flush(); err != nil && runErr == nil {
		runErr = err
	}

	if opts.dump {
		dumpMachine(os.Stderr, machine)
	}
	if opts.imageOut != "" {
		if err := image.WriteFile(opts.imageOut, image.Capture(prog, machine)); err != nil {
			return err
		}
		log.Infof("wrote image %s", opts.imageOut)
	}
	if opts.record {
		run := &store.Run{
			Status: store.StatusOf(runErr),
			Input:  in.buf.Bytes(),
			Output: out.buf.Bytes(),
			Steps:  machine.Steps(),
		}
		if runErr != nil {
			run.Error = runErr.Error()
		}
		if err := recordRun(m, prog, run); err != nil {
			return err
		}
	}
	return runErr
}

// execute runs prog unbounded, or with the step limit and interrupt
// handling when bounded is set.
func execute(machine *vm.VM, prog compiler.Program, bounded bool) error {
	if !bounded {
		return machine.Execute(prog)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return machine.Run(ctx, prog)
}

// recordRun saves run, and prog when it compiled, in the history store.
func recordRun(m *manifest.Manifest, prog compiler.Program, run *store.Run) error {
	st, err := store.Open(m.Store.Driver, m.StorePath())
	if err != nil {
		return err
	}
	defer st.Close()

	if prog != nil {
		hash, err := st.SaveProgram(prog)
		if err != nil {
			return err
		}
		run.ProgramHash = hash
	}
	if err := st.RecordRun(run); err != nil {
		return err
	}
	log.Infof("recorded run %s", run.ID)
	return nil
}

// dumpMachine prints the pointer and every non-zero cell.
func dumpMachine(w io.Writer, machine *vm.VM) {
	fmt.Fprintf(w, "pointer: %d\n", machine.Pointer())
	fmt.Fprintf(w, "steps: %d\n", machine.Steps())
	for i, c := range machine.Tape() {
		if c != 0 {
			fmt.Fprintf(w, "cell[%d] = %d\n", i, c)
		}
	}
}

// captureReader keeps a copy of every byte the program consumes.
type captureReader struct {
	r   *bufio.Reader
	buf bytes.Buffer
}

func (c *captureReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.buf.Write(p[:n])
	return n, err
}

func (c *captureReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.buf.WriteByte(b)
	}
	return b, err
}

// captureWriter keeps a copy of everything the program shows.
type captureWriter struct {
	*bufio.Writer
	buf bytes.Buffer
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.buf.Write(p)
	return c.Writer.Write(p)
}

func (c *captureWriter) WriteByte(b byte) error {
	c.buf.WriteByte(b)
	return c.Writer.WriteByte(b)
}
