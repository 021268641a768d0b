package image

import (
	"bytes"
	"debug/elf"
	"fmt"
)

// isELF32 reports whether data begins with a 32-bit ELF identification.
// 64-bit ELF images are not valid flash images for the supported targets and
// fall through to format detection as BIN.
func isELF32(data []byte) bool {
	if len(data) < elf.EI_NIDENT {
		return false
	}
	if data[0] != 0x7F || data[1] != 'E' || data[2] != 'L' || data[3] != 'F' {
		return false
	}
	return elf.Class(data[elf.EI_CLASS]) == elf.ELFCLASS32
}

// parseELF extracts loadable program-header segments. Each segment with a
// nonzero file size becomes one section at its physical load address. A
// segment whose virtual address equals its physical address is code running
// in place; anything else is data staged for copy at startup.
func parseELF(data []byte) ([]Section, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid ELF: %w", err)
	}
	defer f.Close()

	var sections []Section
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Filesz == 0 {
			continue
		}
		if prog.Off+prog.Filesz > uint64(len(data)) {
			return nil, fmt.Errorf("segment at 0x%X extends past end of file", prog.Paddr)
		}

		buf := make([]byte, prog.Filesz)
		copy(buf, data[prog.Off:prog.Off+prog.Filesz])

		kind := KindData
		if prog.Vaddr == prog.Paddr {
			kind = KindCode
		}
		sections = append(sections, Section{
			Address:    uint32(prog.Paddr),
			Data:       buf,
			FileOffset: int64(prog.Off),
			Kind:       kind,
		})
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("ELF has no loadable segments with file content")
	}
	return sections, nil
}

// NamedSectionBase looks up the load address of a named ELF section (for
// example ".text" or ".serialnum") in the original image file. Serialization
// offsets in the target config may be given relative to such a base.
func (im *Image) NamedSectionBase(name string) (uint32, error) {
	if im.Format != FormatELF {
		return 0, ErrNotELF
	}
	f, err := elf.Open(im.Path)
	if err != nil {
		return 0, &LoadError{Path: im.Path, Err: err}
	}
	defer f.Close()

	sec := f.Section(name)
	if sec == nil {
		return 0, fmt.Errorf("ELF section %q not found in %s", name, im.Path)
	}
	return uint32(sec.Addr), nil
}
