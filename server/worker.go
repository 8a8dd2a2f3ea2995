package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/chazu/tapevm/compiler"
	"github.com/chazu/tapevm/store"
	"github.com/chazu/tapevm/vm"
)

// Job is a program submitted for execution.
type Job struct {
	Source string
	Input  []byte
}

// Result is the outcome of a Job. Status is one of the store.Status*
// values; Error carries the lex, parse or run error text.
type Result struct {
	Status      string
	Output      []byte
	Steps       uint64
	Pointer     int
	ProgramHash string
	Error       string
}

// Limits bounds every run executed by a Worker.
type Limits struct {
	TapeSize int
	MaxSteps uint64
}

// workRequest represents a unit of work to be executed on the worker goroutine.
type workRequest struct {
	ctx  context.Context
	job  Job
	done chan workResult
}

// workResult holds the return value from a run.
type workResult struct {
	value *Result
	err   error
}

// Worker serializes all program runs through a single goroutine. The
// machine is single-threaded; RPC handlers go through the worker so runs
// never interleave.
type Worker struct {
	limits   Limits
	history  *store.Store
	requests chan workRequest
	quit     chan struct{}
}

// NewWorker creates a Worker and starts the processing goroutine. history
// may be nil, in which case runs are not recorded.
func NewWorker(limits Limits, history *store.Store) *Worker {
	w := &Worker{
		limits:   limits,
		history:  history,
		requests: make(chan workRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.ctx, req.job)
		case <-w.quit:
			return
		}
	}
}

// execute runs a job, recovering from panics.
func (w *Worker) execute(ctx context.Context, job Job) (result workResult) {
	defer func() {
		if r := recover(); r != nil {
			result.err = fmt.Errorf("%v", r)
		}
	}()
	prog, res := w.run(ctx, job)
	result.value = res
	if w.history != nil {
		if err := w.record(job, prog, res); err != nil {
			log.Errorf("recording run: %s", err)
		}
	}
	return result
}

// run compiles and executes a job. prog is nil when the source did not
// compile.
func (w *Worker) run(ctx context.Context, job Job) (compiler.Program, *Result) {
	prog, err := compiler.Compile(job.Source)
	if err != nil {
		return nil, &Result{Status: store.StatusOf(err), Error: err.Error()}
	}

	var out bytes.Buffer
	m := vm.New(
		vm.WithTapeSize(w.limits.TapeSize),
		vm.WithMaxSteps(w.limits.MaxSteps),
		vm.WithInput(bytes.NewReader(job.Input)),
		vm.WithOutput(&out),
	)
	err = m.Run(ctx, prog)

	res := &Result{
		Status:      store.StatusOf(err),
		Output:      out.Bytes(),
		Steps:       m.Steps(),
		Pointer:     m.Pointer(),
		ProgramHash: store.HashString(prog),
	}
	if err != nil {
		res.Error = err.Error()
	}
	log.Debugf("run finished: %s after %d steps", res.Status, res.Steps)
	return prog, res
}

// record saves the compiled program, if the job compiled, and the run.
func (w *Worker) record(job Job, prog compiler.Program, res *Result) error {
	if res.ProgramHash != "" {
		if _, err := w.history.SaveProgram(prog); err != nil {
			return err
		}
	}
	return w.history.RecordRun(&store.Run{
		ProgramHash: res.ProgramHash,
		Status:      res.Status,
		Input:       job.Input,
		Output:      res.Output,
		Steps:       res.Steps,
		Error:       res.Error,
	})
}

// Do submits a job and blocks until it completes or ctx is done before the
// worker picks it up. Errors are panics or cancellation while queued; run
// outcomes are reported in the Result.
func (w *Worker) Do(ctx context.Context, job Job) (*Result, error) {
	req := workRequest{
		ctx:  ctx,
		job:  job,
		done: make(chan workResult, 1),
	}
	select {
	case w.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.quit:
		return nil, errors.New("worker stopped")
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, errors.New("worker stopped")
	}
}

// Stop shuts down the worker goroutine.
func (w *Worker) Stop() {
	close(w.quit)
}
