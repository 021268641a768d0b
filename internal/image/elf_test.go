package image

import (
	"encoding/binary"
	"errors"
	"testing"
)

// buildELF32 assembles a minimal little-endian 32-bit ARM ELF executable with
// the given loadable segments. Segment payloads are placed back to back after
// the program header table.
type elfSeg struct {
	vaddr, paddr uint32
	data         []byte
}

func buildELF32(segs []elfSeg) []byte {
	const (
		ehSize = 52
		phSize = 32
	)
	le := binary.LittleEndian
	dataOff := uint32(ehSize + phSize*len(segs))

	var out []byte
	// e_ident
	out = append(out, 0x7F, 'E', 'L', 'F', 1 /*ELFCLASS32*/, 1 /*LSB*/, 1 /*EV_CURRENT*/, 0)
	out = append(out, make([]byte, 8)...)

	u16 := func(v uint16) {
		var b [2]byte
		le.PutUint16(b[:], v)
		out = append(out, b[:]...)
	}
	u32 := func(v uint32) {
		var b [4]byte
		le.PutUint32(b[:], v)
		out = append(out, b[:]...)
	}

	u16(2)  // e_type = ET_EXEC
	u16(40) // e_machine = EM_ARM
	u32(1)  // e_version
	u32(0)  // e_entry
	u32(ehSize)
	u32(0) // e_shoff
	u32(0) // e_flags
	u16(ehSize)
	u16(phSize)
	u16(uint16(len(segs)))
	u16(40) // e_shentsize
	u16(0)  // e_shnum
	u16(0)  // e_shstrndx

	off := dataOff
	for _, s := range segs {
		u32(1) // p_type = PT_LOAD
		u32(off)
		u32(s.vaddr)
		u32(s.paddr)
		u32(uint32(len(s.data)))
		u32(uint32(len(s.data)))
		u32(5) // p_flags = R+X
		u32(4) // p_align
		off += uint32(len(s.data))
	}
	for _, s := range segs {
		out = append(out, s.data...)
	}
	return out
}

func TestELFDetection(t *testing.T) {
	data := buildELF32([]elfSeg{{vaddr: 0, paddr: 0, data: []byte{1, 2, 3, 4}}})
	img, err := Parse(data, "fw.elf")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if img.Format != FormatELF {
		t.Fatalf("format = %v, want ELF", img.Format)
	}
}

func TestELFSegmentsAndKinds(t *testing.T) {
	code := []byte{0x00, 0x20, 0x70, 0x47} // movs r0, #0; bx lr
	init := []byte{0xAA, 0xBB}
	data := buildELF32([]elfSeg{
		{vaddr: 0x0000, paddr: 0x0000, data: code},
		{vaddr: 0x10000000, paddr: 0x0100, data: init}, // RAM data, flash LMA
	})

	img, err := Parse(data, "fw.elf")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if img.NumSections() != 2 {
		t.Fatalf("sections = %d, want 2", img.NumSections())
	}

	s0 := img.Section(0)
	if s0.Kind != KindCode || s0.Address != 0 || len(s0.Data) != len(code) {
		t.Errorf("segment 0 = %v", s0)
	}
	s1 := img.Section(1)
	if s1.Kind != KindData {
		t.Errorf("segment 1 kind = %v, want data (vaddr != paddr)", s1.Kind)
	}
	if s1.Address != 0x0100 {
		t.Errorf("segment 1 loaded at 0x%X, want physical address 0x100", s1.Address)
	}
	if s1.Data[0] != 0xAA || s1.Data[1] != 0xBB {
		t.Errorf("segment 1 data = %v", s1.Data)
	}
}

func TestELF64FallsThroughToBin(t *testing.T) {
	data := buildELF32([]elfSeg{{data: []byte{1}}})
	data[4] = 2 // ELFCLASS64
	img, err := Parse(data, "fw.elf")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if img.Format != FormatBIN {
		t.Errorf("format = %v, want BIN fallback for 64-bit ELF", img.Format)
	}
}

func TestELFTruncatedSegment(t *testing.T) {
	data := buildELF32([]elfSeg{{data: []byte{1, 2, 3, 4}}})
	_, err := Parse(data[:len(data)-2], "fw.elf")
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("err = %v, want *LoadError", err)
	}
}

func TestNamedSectionBaseRequiresELF(t *testing.T) {
	img, _ := Parse([]byte{1, 2, 3}, "blob.bin")
	if _, err := img.NamedSectionBase(".text"); !errors.Is(err, ErrNotELF) {
		t.Errorf("err = %v, want ErrNotELF", err)
	}
}
