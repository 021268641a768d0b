package image

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// hexLine builds a valid Intel HEX record with a correct checksum.
func hexLine(addr uint16, typ byte, data []byte) string {
	sum := byte(len(data)) + byte(addr>>8) + byte(addr) + typ
	for _, b := range data {
		sum += b
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, ":%02X%04X%02X", len(data), addr, typ)
	for _, b := range data {
		fmt.Fprintf(&sb, "%02X", b)
	}
	fmt.Fprintf(&sb, "%02X", byte(-sum))
	return sb.String()
}

const eofLine = ":00000001FF"

func TestHexContiguousRecords(t *testing.T) {
	src := strings.Join([]string{
		hexLine(0x0000, 0, []byte{0x01, 0x02, 0x03, 0x04}),
		hexLine(0x0004, 0, []byte{0x05, 0x06}),
		eofLine,
	}, "\n")

	img, err := Parse([]byte(src), "test.hex")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if img.Format != FormatHEX {
		t.Fatalf("format = %v, want HEX", img.Format)
	}
	if img.NumSections() != 1 {
		t.Fatalf("sections = %d, want 1", img.NumSections())
	}
	s := img.Section(0)
	if s.Address != 0 || len(s.Data) != 6 {
		t.Fatalf("section = %v", s)
	}
	want := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	for i, b := range want {
		if s.Data[i] != b {
			t.Fatalf("byte %d = 0x%02X, want 0x%02X", i, s.Data[i], b)
		}
	}
}

func TestHexAddressGapSplitsSections(t *testing.T) {
	src := strings.Join([]string{
		hexLine(0x0000, 0, []byte{0xAA, 0xBB}),
		hexLine(0x0100, 0, []byte{0xCC}),   // gap
		hexLine(0x0050, 0, []byte{0xDD}),   // backward jump
		eofLine,
	}, "\n")

	img, err := Parse([]byte(src), "test.hex")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if img.NumSections() != 3 {
		t.Fatalf("sections = %d, want 3", img.NumSections())
	}
	if img.Section(1).Address != 0x100 || img.Section(2).Address != 0x50 {
		t.Errorf("section addresses = 0x%X, 0x%X", img.Section(1).Address, img.Section(2).Address)
	}
}

func TestHexExtendedLinearAddress(t *testing.T) {
	src := strings.Join([]string{
		hexLine(0x0000, 4, []byte{0x00, 0x01}), // base = 0x00010000
		hexLine(0x0010, 0, []byte{0x42}),
		eofLine,
	}, "\n")

	img, err := Parse([]byte(src), "test.hex")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := img.Section(0).Address; got != 0x00010010 {
		t.Errorf("address = 0x%X, want 0x10010", got)
	}
}

func TestHexExtendedSegmentAddress(t *testing.T) {
	src := strings.Join([]string{
		hexLine(0x0000, 2, []byte{0x10, 0x00}), // base = 0x1000 << 4 = 0x10000
		hexLine(0x0000, 0, []byte{0x99}),
		eofLine,
	}, "\n")

	img, err := Parse([]byte(src), "test.hex")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := img.Section(0).Address; got != 0x10000 {
		t.Errorf("address = 0x%X, want 0x10000", got)
	}
}

func TestHexBaseChangeContinuity(t *testing.T) {
	// A base record that keeps addresses contiguous must not split sections.
	src := strings.Join([]string{
		hexLine(0xFFFE, 0, []byte{0x01, 0x02}),
		hexLine(0x0000, 4, []byte{0x00, 0x01}),
		hexLine(0x0000, 0, []byte{0x03, 0x04}),
		eofLine,
	}, "\n")

	img, err := Parse([]byte(src), "test.hex")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if img.NumSections() != 1 {
		t.Fatalf("sections = %d, want 1", img.NumSections())
	}
	if img.Section(0).Size() != 4 {
		t.Errorf("size = %d, want 4", img.Section(0).Size())
	}
}

func TestHexBadChecksumFailsLoad(t *testing.T) {
	good := hexLine(0x0002, 0, []byte{0x03})
	// Corrupt the checksum digit pair of the second record; the first stays
	// valid so format sniffing still selects HEX.
	bad := good[:len(good)-2] + "00"
	src := strings.Join([]string{hexLine(0x0000, 0, []byte{0x01, 0x02}), bad, eofLine}, "\n")

	_, err := Parse([]byte(src), "test.hex")
	if err == nil {
		t.Fatal("expected checksum error")
	}
	var recErr *HexRecordError
	if !errors.As(err, &recErr) {
		t.Fatalf("error = %v, want *HexRecordError", err)
	}
	if recErr.Line != 2 {
		t.Errorf("line = %d, want 2", recErr.Line)
	}
}

func TestHexMissingEOFRecord(t *testing.T) {
	src := hexLine(0x0000, 0, []byte{0x01, 0x02})
	_, err := Parse([]byte(src), "test.hex")
	if !errors.Is(err, ErrNoEOFRecord) {
		t.Fatalf("error = %v, want ErrNoEOFRecord", err)
	}
}

func TestHexStartAddressRecordsIgnored(t *testing.T) {
	src := strings.Join([]string{
		hexLine(0x0000, 0, []byte{0x01}),
		hexLine(0x0000, 5, []byte{0x00, 0x00, 0x00, 0x01}), // start linear
		hexLine(0x0001, 0, []byte{0x02}),
		eofLine,
	}, "\n")

	img, err := Parse([]byte(src), "test.hex")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if img.NumSections() != 1 || img.Section(0).Size() != 2 {
		t.Errorf("sections = %d, size = %d", img.NumSections(), img.Section(0).Size())
	}
}

func TestHexUnknownRecordType(t *testing.T) {
	src := hexLine(0x0000, 9, nil) + "\n" + eofLine
	_, err := Parse([]byte(src), "test.hex")
	var recErr *HexRecordError
	if !errors.As(err, &recErr) {
		t.Fatalf("error = %v, want *HexRecordError", err)
	}
}
