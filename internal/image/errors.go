package image

import (
	"errors"
	"fmt"
)

// Sentinel errors for span lookups.
var (
	// ErrSpanNotFound means no loaded section contains the requested address.
	ErrSpanNotFound = errors.New("address not covered by any loaded section")
	// ErrSpanCrossesBoundary means the span starts inside a section but does
	// not end inside the same one.
	ErrSpanCrossesBoundary = errors.New("byte span crosses a section boundary")
	// ErrNoEOFRecord means a HEX file ended without a type-1 record.
	ErrNoEOFRecord = errors.New("intel hex file has no end-of-file record")
	// ErrNotELF means a named-section lookup was attempted on a non-ELF image.
	ErrNotELF = errors.New("named-section lookup requires an ELF image")
)

// LoadError wraps any failure to load an image file. It carries the path so
// the session log can report which file was rejected.
type LoadError struct {
	// Path is the image file that failed to load
	Path string
	// Underlying error
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load image %q: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// HexRecordError describes a malformed Intel HEX record.
type HexRecordError struct {
	// Line is the 1-based line number of the bad record
	Line int
	// Reason describes what was wrong
	Reason string
}

func (e *HexRecordError) Error() string {
	return fmt.Sprintf("intel hex record at line %d: %s", e.Line, e.Reason)
}
