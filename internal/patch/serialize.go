package patch

import (
	"bytes"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/muurk/burnmate/internal/image"
	"github.com/muurk/burnmate/internal/logging"
)

// Mode selects how the serialization target location is found.
type Mode int

const (
	// ModeNone disables serialization.
	ModeNone Mode = iota
	// ModeAddress writes the serial at a fixed address, optionally relative
	// to a named ELF section base.
	ModeAddress
	// ModePattern writes the serial wherever a byte pattern matches.
	ModePattern
)

// String returns the config-file name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeAddress:
		return "address"
	case ModePattern:
		return "pattern"
	default:
		return "none"
	}
}

// OutputFormat selects how the serial number is rendered into bytes.
type OutputFormat int

const (
	// FormatBinary renders the value little-endian at a fixed byte width.
	FormatBinary OutputFormat = iota
	// FormatASCII renders zero-padded decimal digits. A value with more
	// digits than the width keeps only the low-order digits.
	FormatASCII
	// FormatWide renders zero-padded decimal digits as (digit, 0x00) byte
	// pairs. The width counts bytes and must be even.
	FormatWide
)

// String returns the config-file name of the format.
func (f OutputFormat) String() string {
	switch f {
	case FormatASCII:
		return "ascii"
	case FormatWide:
		return "wide"
	default:
		return "binary"
	}
}

// SerializeConfig describes one serialization operation.
type SerializeConfig struct {
	Mode Mode

	// Address-based mode
	Address uint32
	// Section, when non-empty, names an ELF section whose base address is
	// added to Address.
	Section string

	// Pattern-based mode
	Pattern string
	// Prefix bytes written before the serial data at each match.
	Prefix []byte

	// Width is the rendered serial size in bytes.
	Width int
	// Format selects the rendering.
	Format OutputFormat
}

// SerializeResult reports what Apply did.
type SerializeResult struct {
	// Matches is the number of locations patched (always 1 in address mode).
	Matches int
	// Value is the serial number that was written.
	Value uint64
}

// FormatSerial renders a serial number at the given byte width.
// ASCII and wide formats deliberately truncate high-order digits when the
// value overflows the width: width 2, value 12345 renders "45". This mirrors
// long-standing field behavior that downstream labeling relies on.
func FormatSerial(value uint64, width int, format OutputFormat) ([]byte, error) {
	if width < 1 {
		return nil, ErrBadWidth
	}

	switch format {
	case FormatBinary:
		out := make([]byte, width)
		for i := 0; i < width && i < 8; i++ {
			out[i] = byte(value >> (8 * i))
		}
		return out, nil

	case FormatASCII:
		return asciiDigits(value, width), nil

	case FormatWide:
		if width%2 != 0 {
			return nil, ErrOddWideWidth
		}
		digits := asciiDigits(value, width/2)
		out := make([]byte, width)
		for i, d := range digits {
			out[2*i] = d
		}
		return out, nil

	default:
		return nil, fmt.Errorf("invalid serialization format %d", format)
	}
}

// asciiDigits renders value as exactly n decimal digits, zero-padded on the
// left and truncated to the low-order digits on overflow.
func asciiDigits(value uint64, n int) []byte {
	s := strconv.FormatUint(value, 10)
	if len(s) > n {
		s = s[len(s)-n:]
	}
	out := bytes.Repeat([]byte{'0'}, n)
	copy(out[n-len(s):], s)
	return out
}

// Serialize stamps the serial number into the image according to cfg.
// In pattern mode every match is patched; more than one match is reported
// through the result so the caller can log a warning, zero matches is an
// error.
func Serialize(img *image.Image, cfg SerializeConfig, value uint64) (*SerializeResult, error) {
	data, err := FormatSerial(value, cfg.Width, cfg.Format)
	if err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case ModeAddress:
		addr := cfg.Address
		if cfg.Section != "" {
			base, err := img.NamedSectionBase(cfg.Section)
			if err != nil {
				return nil, err
			}
			addr += base
		}
		span, err := img.FindSpan(addr, uint32(len(data)))
		if err != nil {
			return nil, &RangeError{Address: addr, Size: len(data), Err: err}
		}
		copy(span, data)
		logging.Debug("serial written at address",
			zap.Uint32("address", addr),
			zap.Uint64("value", value),
			zap.Int("width", len(data)),
		)
		return &SerializeResult{Matches: 1, Value: value}, nil

	case ModePattern:
		needle, err := CompilePattern(cfg.Pattern)
		if err != nil {
			return nil, err
		}
		replacement := append(append([]byte{}, cfg.Prefix...), data...)

		matches := 0
		for i := 0; i < img.NumSections(); i++ {
			sec := img.Section(i)
			for off := 0; ; {
				idx := bytes.Index(sec.Data[off:], needle)
				if idx < 0 {
					break
				}
				at := off + idx
				if at+len(replacement) > len(sec.Data) {
					return nil, &RangeError{
						Address: sec.Address + uint32(at),
						Size:    len(replacement),
						Err:     image.ErrSpanCrossesBoundary,
					}
				}
				copy(sec.Data[at:], replacement)
				matches++
				off = at + len(needle)
			}
		}
		if matches == 0 {
			return nil, &PatternNotFoundError{Pattern: cfg.Pattern}
		}
		logging.Debug("serial written at pattern matches",
			zap.Int("matches", matches),
			zap.Uint64("value", value),
		)
		return &SerializeResult{Matches: matches, Value: value}, nil

	default:
		return nil, fmt.Errorf("serialization mode %v cannot be applied", cfg.Mode)
	}
}
