package vm

import (
	"bufio"
	"io"
)

// ---------------------------------------------------------------------------
// Byte-level I/O
// ---------------------------------------------------------------------------

// input adapts the caller's reader to single-byte reads. Once the source
// reports any error it is treated as exhausted for the rest of the run.
type input struct {
	r         io.ByteReader
	exhausted bool
}

func newInput(r io.Reader) *input {
	switch r := r.(type) {
	case nil:
		return &input{exhausted: true}
	case io.ByteReader:
		return &input{r: r}
	default:
		return &input{r: bufio.NewReaderSize(r, 1)}
	}
}

// readByte returns the next input byte, or 0 when input is exhausted.
func (in *input) readByte() byte {
	if in.exhausted {
		return 0
	}
	b, err := in.r.ReadByte()
	if err != nil {
		in.exhausted = true
		return 0
	}
	return b
}

type flusher interface {
	Flush() error
}

// output writes single bytes to the caller's sink, keeping the first write
// error and dropping everything after it.
type output struct {
	w   io.Writer
	bw  io.ByteWriter
	buf [1]byte
	err error
}

func newOutput(w io.Writer) *output {
	o := &output{w: w}
	if bw, ok := w.(io.ByteWriter); ok {
		o.bw = bw
	}
	return o
}

func (o *output) writeByte(b byte) {
	if o.w == nil || o.err != nil {
		return
	}
	if o.bw != nil {
		o.err = o.bw.WriteByte(b)
		return
	}
	o.buf[0] = b
	_, o.err = o.w.Write(o.buf[:])
}

// flush pushes buffered output before the machine blocks on input.
func (o *output) flush() {
	if o.err != nil {
		return
	}
	if f, ok := o.w.(flusher); ok {
		o.err = f.Flush()
	}
}

// finish flushes and reports the first sink error.
func (o *output) finish() error {
	o.flush()
	return o.err
}
