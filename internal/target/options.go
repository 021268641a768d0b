// Package target persists per-target-file flash options.
//
// Options live beside the image in an INI file named <targetfile>.bmcfg with
// sections Settings, Flash and Serialize. Serialization fields are packed as
// colon-separated composites, matching the long-standing on-disk format:
//
//	[Serialize]
//	mode   = address
//	target = .serialnum:0x10      ; section:offset
//	serial = 1000:4:ascii:1       ; value:size:format:increment
//
// Pattern mode instead packs "match = pattern:prefix"; a literal colon in
// the pattern must be escaped as \58.
package target

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/muurk/burnmate/internal/patch"
)

// Options are the per-session settings persisted to the .bmcfg file.
type Options struct {
	// Settings section
	Probe             string // probe selector (serial, name, or empty = first)
	Driver            string // flash driver name, selects checksum rules
	ConnectUnderReset bool
	TargetPower       bool

	// Flash section
	FullErase bool
	CRPLevel  int    // 0 = do not inject
	Base      uint32 // relocation base for BIN images

	// Serialize section
	Serialize patch.SerializeConfig
	// SerialValue is a literal counter or a counter-file path (see
	// internal/serial).
	SerialValue string
	// SerialStep is the counter increment, minimum 1.
	SerialStep uint64
	// PrefixPattern is the textual (escaped) form of Serialize.Prefix.
	PrefixPattern string
}

// DefaultOptions returns the options used when no .bmcfg exists yet.
func DefaultOptions() *Options {
	return &Options{
		SerialValue: "1",
		SerialStep:  1,
		Serialize:   patch.SerializeConfig{Mode: patch.ModeNone, Width: 4, Format: patch.FormatBinary},
	}
}

// packTarget renders the address descriptor composite "section:offset".
func (o *Options) packTarget() string {
	return fmt.Sprintf("%s:0x%X", o.Serialize.Section, o.Serialize.Address)
}

// unpackTarget parses "section:offset"; an empty section part means the
// offset is an absolute address.
func (o *Options) unpackTarget(s string) error {
	idx := strings.LastIndex(s, ":")
	section, offset := "", s
	if idx >= 0 {
		section, offset = s[:idx], s[idx+1:]
	}
	addr, err := strconv.ParseUint(offset, 0, 32)
	if err != nil {
		return fmt.Errorf("bad serialization offset %q: %w", offset, err)
	}
	o.Serialize.Section = section
	o.Serialize.Address = uint32(addr)
	return nil
}

// packMatch renders the pattern descriptor composite "pattern:prefix".
func (o *Options) packMatch() string {
	return o.Serialize.Pattern + ":" + o.PrefixPattern
}

// unpackMatch parses "pattern:prefix". The split is on the first colon;
// escaped patterns may still embed \58 for a literal colon.
func (o *Options) unpackMatch(s string) error {
	parts := strings.SplitN(s, ":", 2)
	o.Serialize.Pattern = parts[0]
	o.PrefixPattern = ""
	if len(parts) == 2 {
		o.PrefixPattern = parts[1]
	}
	prefix, err := patch.CompilePattern(o.PrefixPattern)
	if err != nil {
		return fmt.Errorf("bad serialization prefix: %w", err)
	}
	o.Serialize.Prefix = prefix
	return nil
}

// packSerial renders "value:size:format:increment".
func (o *Options) packSerial() string {
	return fmt.Sprintf("%s:%d:%s:%d",
		o.SerialValue, o.Serialize.Width, o.Serialize.Format, o.SerialStep)
}

// unpackSerial parses "value:size:format:increment". The value may itself
// contain colons (a Windows counter-file path), so the composite is split
// from the right.
func (o *Options) unpackSerial(s string) error {
	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return fmt.Errorf("serial composite %q needs value:size:format:increment", s)
	}
	n := len(parts)
	o.SerialValue = strings.Join(parts[:n-3], ":")

	width, err := strconv.Atoi(parts[n-3])
	if err != nil {
		return fmt.Errorf("bad serial width %q: %w", parts[n-3], err)
	}
	o.Serialize.Width = width

	format, err := parseFormat(parts[n-2])
	if err != nil {
		return err
	}
	o.Serialize.Format = format

	step, err := strconv.ParseUint(parts[n-1], 10, 64)
	if err != nil {
		return fmt.Errorf("bad serial increment %q: %w", parts[n-1], err)
	}
	o.SerialStep = step
	return nil
}

// ParseSerializeAddress fills the serialization target from a command-line
// address descriptor: "section:offset" or a bare offset.
func ParseSerializeAddress(o *Options, s string) error {
	return o.unpackTarget(s)
}

// ParseSerializeFormat parses a serialization format name from the command
// line.
func ParseSerializeFormat(s string) (patch.OutputFormat, error) {
	return parseFormat(s)
}

func parseFormat(s string) (patch.OutputFormat, error) {
	switch strings.ToLower(s) {
	case "binary", "bin":
		return patch.FormatBinary, nil
	case "ascii":
		return patch.FormatASCII, nil
	case "wide", "utf16":
		return patch.FormatWide, nil
	}
	return 0, fmt.Errorf("unknown serialization format %q", s)
}

func parseMode(s string) (patch.Mode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return patch.ModeNone, nil
	case "address":
		return patch.ModeAddress, nil
	case "pattern":
		return patch.ModePattern, nil
	}
	return 0, fmt.Errorf("unknown serialization mode %q", s)
}
