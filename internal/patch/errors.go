package patch

import (
	"errors"
	"fmt"
)

var (
	// ErrBadWidth means a serialization width below 1 was requested.
	ErrBadWidth = errors.New("serialization width must be at least 1")
	// ErrOddWideWidth means a UTF-16-style serialization was requested with
	// an odd byte width.
	ErrOddWideWidth = errors.New("wide serialization width must be even")
)

// UnsupportedDriverError means the flash driver name matched no entry in the
// vector-table checksum rule table. This is non-fatal unless the caller
// explicitly requested CRP or serialization.
type UnsupportedDriverError struct {
	// Driver is the flash driver name that matched no rule
	Driver string
}

func (e *UnsupportedDriverError) Error() string {
	return fmt.Sprintf("no vector-table checksum rule for driver %q", e.Driver)
}

// NotPreparedError means the word at the CRP offset is not one of the known
// placeholder values, so the image was not built with CRP in mind and
// overwriting it would corrupt code.
type NotPreparedError struct {
	// Existing is the word currently at the CRP offset
	Existing uint32
}

func (e *NotPreparedError) Error() string {
	return fmt.Sprintf("image not prepared for CRP: word at CRP offset is 0x%08X, not a known placeholder", e.Existing)
}

// PatternNotFoundError means a PatternMatch serialization found no occurrence
// of the compiled needle in any loaded section.
type PatternNotFoundError struct {
	// Pattern is the textual pattern as configured
	Pattern string
}

func (e *PatternNotFoundError) Error() string {
	return fmt.Sprintf("serialization pattern %q not found in any section", e.Pattern)
}

// EscapeError means a textual pattern contained a malformed escape sequence.
type EscapeError struct {
	// Pattern is the full textual pattern
	Pattern string
	// Pos is the byte offset of the offending escape
	Pos int
}

func (e *EscapeError) Error() string {
	return fmt.Sprintf("malformed escape sequence at offset %d in pattern %q", e.Pos, e.Pattern)
}

// RangeError means a serialization address or patch span fell outside the
// loaded sections.
type RangeError struct {
	// Address is the requested target address
	Address uint32
	// Size is the number of bytes to write
	Size int
	// Underlying error from the image span lookup
	Err error
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("cannot patch %d bytes at 0x%08X: %v", e.Size, e.Address, e.Err)
}

func (e *RangeError) Unwrap() error {
	return e.Err
}
