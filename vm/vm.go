package vm

import (
	"context"
	"errors"

	"github.com/chazu/tapevm/compiler"
)

// ---------------------------------------------------------------------------
// VM: the tape machine
// ---------------------------------------------------------------------------

// DefaultTapeSize is the canonical number of cells on the tape.
const DefaultTapeSize = 256

// ErrStepLimit is returned by Run when the configured step budget is spent.
var ErrStepLimit = errors.New("vm: step limit exceeded")

// VM executes instruction trees against a private tape. A VM is not safe
// for concurrent use; each run owns its own machine.
type VM struct {
	tape []byte
	ptr  int

	in  *input
	out *output

	steps    uint64
	maxSteps uint64

	// Set only during Run.
	done <-chan struct{}
	ctx  context.Context
}

// New creates a machine with a zeroed tape and the pointer at cell 0.
func New(opts ...Option) *VM {
	cfg := config{tapeSize: DefaultTapeSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tapeSize <= 0 {
		cfg.tapeSize = DefaultTapeSize
	}
	return &VM{
		tape:     make([]byte, cfg.tapeSize),
		in:       newInput(cfg.in),
		out:      newOutput(cfg.out),
		maxSteps: cfg.maxSteps,
	}
}

// Execute runs prog to completion. It has no cancellation: a program whose
// loop never zeroes its check cell never returns. The returned error is the
// first failure of the output sink, if any; the tape semantics never fail.
func (v *VM) Execute(prog compiler.Program) error {
	v.done = nil
	v.ctx = nil
	v.execSeq(prog)
	return v.out.finish()
}

// Run is Execute bounded by ctx and by the configured step limit. Both are
// checked between instructions, so a run stops at an instruction boundary.
func (v *VM) Run(ctx context.Context, prog compiler.Program) error {
	v.ctx = ctx
	v.done = ctx.Done()
	defer func() {
		v.ctx = nil
		v.done = nil
	}()

	err := v.runSeq(prog)
	if ferr := v.out.finish(); err == nil {
		err = ferr
	}
	return err
}

// execSeq is the unbounded interpreter loop.
func (v *VM) execSeq(seq []compiler.Instruction) {
	for i := range seq {
		in := &seq[i]
		if in.Op == compiler.OpLoop {
			for v.test() {
				v.execSeq(in.Body)
			}
			continue
		}
		v.step(in.Op)
	}
}

// runSeq mirrors execSeq with budget and cancellation checks.
func (v *VM) runSeq(seq []compiler.Instruction) error {
	for i := range seq {
		if err := v.check(); err != nil {
			return err
		}
		in := &seq[i]
		if in.Op == compiler.OpLoop {
			for v.test() {
				if err := v.runSeq(in.Body); err != nil {
					return err
				}
				// An empty body never reaches the per-instruction check.
				if err := v.check(); err != nil {
					return err
				}
			}
			continue
		}
		v.step(in.Op)
	}
	return nil
}

func (v *VM) check() error {
	if v.maxSteps > 0 && v.steps >= v.maxSteps {
		return ErrStepLimit
	}
	if v.done != nil {
		select {
		case <-v.done:
			return v.ctx.Err()
		default:
		}
	}
	return nil
}

// test evaluates a loop condition. Each evaluation counts as a step.
func (v *VM) test() bool {
	v.steps++
	return v.tape[v.ptr] != 0
}

// step applies one plain instruction.
func (v *VM) step(op compiler.Op) {
	v.steps++
	switch op {
	case compiler.OpAdvance:
		v.ptr++
		if v.ptr == len(v.tape) {
			v.ptr = 0
		}
	case compiler.OpRecede:
		if v.ptr == 0 {
			v.ptr = len(v.tape)
		}
		v.ptr--
	case compiler.OpIncrement:
		v.tape[v.ptr]++
	case compiler.OpDecrement:
		v.tape[v.ptr]--
	case compiler.OpShow:
		v.out.writeByte(v.tape[v.ptr])
	case compiler.OpRead:
		v.out.flush()
		v.tape[v.ptr] = v.in.readByte()
	}
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// Tape returns a copy of the tape.
func (v *VM) Tape() []byte {
	out := make([]byte, len(v.tape))
	copy(out, v.tape)
	return out
}

// Cell returns the value of the cell under the pointer.
func (v *VM) Cell() byte {
	return v.tape[v.ptr]
}

// Pointer returns the current pointer position.
func (v *VM) Pointer() int {
	return v.ptr
}

// TapeSize returns the number of cells on the tape.
func (v *VM) TapeSize() int {
	return len(v.tape)
}

// Steps returns the number of plain instructions executed plus the number
// of loop conditions evaluated.
func (v *VM) Steps() uint64 {
	return v.steps
}

// Restore loads a previously captured tape and pointer, e.g. from an image.
// The tape is copied; a pointer outside the tape is wrapped onto it.
func (v *VM) Restore(tape []byte, ptr int) {
	if len(tape) > 0 {
		v.tape = make([]byte, len(tape))
		copy(v.tape, tape)
	}
	ptr %= len(v.tape)
	if ptr < 0 {
		ptr += len(v.tape)
	}
	v.ptr = ptr
}
