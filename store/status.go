package store

import (
	"context"
	"errors"

	"github.com/chazu/tapevm/compiler"
	"github.com/chazu/tapevm/vm"
)

// StatusOf maps a compile or run error to the status recorded for it.
func StatusOf(err error) string {
	var lexErr *compiler.LexError
	var parseErr *compiler.ParseError
	switch {
	case err == nil:
		return StatusOK
	case errors.As(err, &lexErr):
		return StatusLexError
	case errors.As(err, &parseErr):
		return StatusParseError
	case errors.Is(err, vm.ErrStepLimit):
		return StatusStepLimit
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	default:
		return StatusOutputError
	}
}
