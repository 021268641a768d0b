package image

import "fmt"

// Format identifies the on-disk file format an image was loaded from.
type Format int

const (
	FormatBIN Format = iota
	FormatHEX
	FormatELF
)

// String returns the conventional name of the format.
func (f Format) String() string {
	switch f {
	case FormatELF:
		return "ELF"
	case FormatHEX:
		return "HEX"
	default:
		return "BIN"
	}
}

// Kind classifies what a section holds. ELF segments whose virtual and
// physical addresses coincide are code; segments loaded elsewhere (typically
// initialized data copied to RAM at startup) are data. HEX and BIN carry no
// such distinction.
type Kind int

const (
	KindUnknown Kind = iota
	KindCode
	KindData
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// Section is one contiguous run of image bytes at a target address.
// Sections own their buffer; patch operations write into it in place.
type Section struct {
	// Address is the target memory address of the first byte.
	Address uint32
	// Data is the owned byte buffer.
	Data []byte
	// FileOffset is where the bytes came from in the source file, for
	// diagnostics. Meaningless for HEX records.
	FileOffset int64
	// Kind classifies the section content.
	Kind Kind
}

// Size returns the section length in bytes.
func (s *Section) Size() uint32 {
	return uint32(len(s.Data))
}

// End returns the address one past the last byte.
func (s *Section) End() uint32 {
	return s.Address + s.Size()
}

// Contains reports whether addr falls inside the section. The subtraction
// form stays correct for a section ending at the top of the address space,
// where End wraps to zero.
func (s *Section) Contains(addr uint32) bool {
	return addr-s.Address < s.Size()
}

func (s *Section) String() string {
	return fmt.Sprintf("%s section 0x%08X-0x%08X (%d bytes)",
		s.Kind, s.Address, s.End(), s.Size())
}
