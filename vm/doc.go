// Package vm implements the tape machine that executes compiled programs.
//
// This package contains:
//   - The byte tape and its circular pointer
//   - A tree-walking interpreter over compiler.Program
//   - Byte-level input and output plumbing
//
// All arithmetic wraps: cells are bytes and the pointer is taken modulo the
// tape size. Reading past the end of input stores 0 in the current cell.
// Execution itself never fails; the only errors surfaced are failures of the
// caller's output sink and, for Run, cancellation or an exhausted step
// budget.
package vm
