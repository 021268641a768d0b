package image

import (
	"os"

	"go.uber.org/zap"

	"github.com/muurk/burnmate/internal/logging"
)

// Image is an ordered list of disjoint memory sections loaded from one file.
// The list is immutable in shape after Load: only Relocate changes addresses
// and only patch code writes into section buffers.
type Image struct {
	// Path is the source file the image was loaded from.
	Path string
	// Format is the detected file format.
	Format Format

	sections []Section
}

// Load reads and parses an image file. Format detection order:
//  1. valid 32-bit ELF magic -> ELF
//  2. syntactically valid first Intel HEX record -> HEX
//  3. anything else -> raw BIN at address 0
//
// A failed load returns a *LoadError and no partial image.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return Parse(data, path)
}

// Parse builds an image from raw file bytes. Exposed separately from Load so
// tests and in-memory callers can skip the filesystem.
func Parse(data []byte, path string) (*Image, error) {
	img := &Image{Path: path}

	switch {
	case isELF32(data):
		img.Format = FormatELF
		img.sections = nil
		secs, err := parseELF(data)
		if err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
		img.sections = secs

	case isHexRecord(firstLine(data)):
		img.Format = FormatHEX
		secs, err := parseHex(data)
		if err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
		img.sections = secs

	default:
		img.Format = FormatBIN
		buf := make([]byte, len(data))
		copy(buf, data)
		img.sections = []Section{{Address: 0, Data: buf, Kind: KindUnknown}}
	}

	logging.Debug("image loaded",
		zap.String("path", path),
		zap.String("format", img.Format.String()),
		zap.Int("sections", len(img.sections)),
		zap.Uint32("total_bytes", img.TotalSize()),
	)
	return img, nil
}

// NumSections returns the number of loaded sections.
func (im *Image) NumSections() int {
	return len(im.sections)
}

// Section returns the i-th section, or nil if out of range. Sections are in
// file order, not necessarily sorted by address.
func (im *Image) Section(i int) *Section {
	if i < 0 || i >= len(im.sections) {
		return nil
	}
	return &im.sections[i]
}

// Sections returns the section slice. Callers must not reorder it.
func (im *Image) Sections() []Section {
	return im.sections
}

// TotalSize returns the sum of all section sizes.
func (im *Image) TotalSize() uint32 {
	var total uint32
	for i := range im.sections {
		total += im.sections[i].Size()
	}
	return total
}

// Relocate adds offset to every section address. Used for BIN files, which
// carry no base address of their own.
func (im *Image) Relocate(offset uint32) {
	for i := range im.sections {
		im.sections[i].Address += offset
	}
}

// FindSpan returns the byte range [addr, addr+size) if it lies entirely
// inside exactly one section. The returned slice aliases the section buffer,
// so writes through it patch the loaded image.
func (im *Image) FindSpan(addr, size uint32) ([]byte, error) {
	for i := range im.sections {
		s := &im.sections[i]
		if !s.Contains(addr) {
			continue
		}
		off := addr - s.Address
		if size > s.Size()-off {
			return nil, ErrSpanCrossesBoundary
		}
		return s.Data[off : off+size], nil
	}
	return nil, ErrSpanNotFound
}

// firstLine returns the bytes up to the first newline.
func firstLine(data []byte) []byte {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return data[:i]
		}
	}
	return data
}
