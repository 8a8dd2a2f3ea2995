package vm

import "io"

type config struct {
	tapeSize int
	maxSteps uint64
	in       io.Reader
	out      io.Writer
}

// Option configures a VM.
type Option func(*config)

// WithTapeSize sets the number of cells. Non-positive sizes fall back to
// DefaultTapeSize.
func WithTapeSize(n int) Option {
	return func(c *config) { c.tapeSize = n }
}

// WithInput sets the byte source consumed by read instructions. Without
// one, every read stores 0.
func WithInput(r io.Reader) Option {
	return func(c *config) { c.in = r }
}

// WithOutput sets the sink for show instructions. Without one, output is
// discarded.
func WithOutput(w io.Writer) Option {
	return func(c *config) { c.out = w }
}

// WithMaxSteps bounds Run to n steps. Zero means unbounded. Execute ignores
// the limit.
func WithMaxSteps(n uint64) Option {
	return func(c *config) { c.maxSteps = n }
}
