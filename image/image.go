// Package image stores programs, optionally with a captured machine state,
// as canonical CBOR. The program is kept as its canonical source and rebuilt
// by the compiler on load, so any nesting depth survives a round trip.
package image

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/tapevm/compiler"
	"github.com/chazu/tapevm/vm"
)

// Magic identifies a tape image file.
var Magic = [4]byte{'T', 'A', 'P', 'I'}

// Version of the image layout.
// v1: instruction tree, tape, pointer, step count
// v2: canonical source replaces the instruction tree
const Version = 2

var (
	ErrInvalidMagic = errors.New("image: invalid magic number: expected TAPI")
	ErrVersion      = errors.New("image: unsupported version")
	ErrHashMismatch = errors.New("image: program hash mismatch")
	ErrTapeSize     = errors.New("image: tape too large")
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Image is a compiled program plus, when captured after a run, the tape and
// pointer it left behind.
type Image struct {
	Version int      `cbor:"1,keyasint"`
	Hash    [32]byte `cbor:"2,keyasint"`
	Source  string   `cbor:"3,keyasint"`
	Tape    []byte   `cbor:"4,keyasint,omitempty"`
	Pointer int      `cbor:"5,keyasint"`
	Steps   uint64   `cbor:"6,keyasint"`

	// Program is compiled from Source by Unmarshal.
	Program compiler.Program `cbor:"-"`
}

// Hash returns the content hash of a program: SHA-256 over its canonical
// source rendering.
func Hash(prog compiler.Program) [32]byte {
	return sha256.Sum256([]byte(prog.String()))
}

// FromProgram builds an image holding only a program.
func FromProgram(prog compiler.Program) *Image {
	return &Image{
		Version: Version,
		Hash:    Hash(prog),
		Source:  prog.String(),
		Program: prog,
	}
}

// Capture builds an image of prog together with the machine's state.
func Capture(prog compiler.Program, m *vm.VM) *Image {
	img := FromProgram(prog)
	img.Tape = m.Tape()
	img.Pointer = m.Pointer()
	img.Steps = m.Steps()
	return img
}

// Machine returns a VM configured with opts whose tape and pointer are
// restored from the image, if it holds any.
func (img *Image) Machine(opts ...vm.Option) *vm.VM {
	if len(img.Tape) > 0 {
		opts = append(opts, vm.WithTapeSize(len(img.Tape)))
	}
	m := vm.New(opts...)
	if len(img.Tape) > 0 {
		m.Restore(img.Tape, img.Pointer)
	}
	return m
}

// Marshal serializes an image: the magic number followed by canonical CBOR.
// Source is taken from Program when one is set.
func Marshal(img *Image) ([]byte, error) {
	wire := *img
	if wire.Program != nil {
		wire.Source = wire.Program.String()
	}
	body, err := encMode.Marshal(&wire)
	if err != nil {
		return nil, fmt.Errorf("image: marshal: %w", err)
	}
	out := make([]byte, 0, len(Magic)+len(body))
	out = append(out, Magic[:]...)
	return append(out, body...), nil
}

// Unmarshal parses and verifies an image. The program is recompiled from
// its source and must match the recorded hash.
func Unmarshal(data []byte) (*Image, error) {
	if len(data) < len(Magic) || !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, ErrInvalidMagic
	}
	var img Image
	if err := cbor.Unmarshal(data[len(Magic):], &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, img.Version)
	}
	if len(img.Tape) > vm.DefaultTapeSize {
		return nil, fmt.Errorf("%w: %d cells", ErrTapeSize, len(img.Tape))
	}
	prog, err := compiler.Compile(img.Source)
	if err != nil {
		return nil, fmt.Errorf("image: program: %w", err)
	}
	if Hash(prog) != img.Hash {
		return nil, ErrHashMismatch
	}
	img.Program = prog
	return &img, nil
}

// WriteFile writes an image to path.
func WriteFile(path string, img *Image) error {
	data, err := Marshal(img)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadFile reads and verifies the image at path.
func ReadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
