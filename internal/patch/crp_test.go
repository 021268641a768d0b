package patch

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/muurk/burnmate/internal/image"
)

// crpImage builds a BIN image large enough to contain the CRP word, with the
// given placeholder at the CRP offset.
func crpImage(t *testing.T, placeholder uint32) *image.Image {
	t.Helper()
	buf := make([]byte, 0x400)
	binary.LittleEndian.PutUint32(buf[CRPOffset:], placeholder)
	img, err := image.Parse(buf, "crp.bin")
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func TestInjectAndReadBackCRPLevels(t *testing.T) {
	for _, level := range []int{CRPLevel1, CRPLevel2, CRPLevel3} {
		img := crpImage(t, 0xFFFFFFFF)
		if err := InjectCRP(img, level); err != nil {
			t.Fatalf("InjectCRP(%d): %v", level, err)
		}
		if got := ReadCRP(img); got != level {
			t.Errorf("ReadCRP after inject %d = %d", level, got)
		}
	}
}

func TestInjectCRPNoneReadsBackZero(t *testing.T) {
	img := crpImage(t, 0x12345678)
	if err := InjectCRP(img, CRPLevelNone); err != nil {
		t.Fatalf("InjectCRP(none): %v", err)
	}
	if got := ReadCRP(img); got != 0 {
		t.Errorf("ReadCRP = %d, want 0 after clearing protection", got)
	}
}

func TestInjectCRPNotPrepared(t *testing.T) {
	img := crpImage(t, 0x00001234) // arbitrary application code
	err := InjectCRP(img, CRPLevel1)
	var notPrep *NotPreparedError
	if !errors.As(err, &notPrep) {
		t.Fatalf("err = %v, want *NotPreparedError", err)
	}
	if notPrep.Existing != 0x00001234 {
		t.Errorf("Existing = 0x%08X", notPrep.Existing)
	}
	// The image must be untouched on failure.
	if got := binary.LittleEndian.Uint32(img.Section(0).Data[CRPOffset:]); got != 0x00001234 {
		t.Error("failed injection modified the image")
	}
}

func TestInjectCRPInvalidLevel(t *testing.T) {
	img := crpImage(t, 0xFFFFFFFF)
	if err := InjectCRP(img, 4); err == nil {
		t.Error("expected error for level 4")
	}
}

func TestInjectCRPImageTooSmall(t *testing.T) {
	img, _ := image.Parse(make([]byte, 0x100), "small.bin")
	err := InjectCRP(img, CRPLevel1)
	var rangeErr *RangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("err = %v, want *RangeError", err)
	}
}

func TestReadCRPUnrecognized(t *testing.T) {
	img := crpImage(t, 0xCAFEBABE)
	if got := ReadCRP(img); got != 0 {
		t.Errorf("ReadCRP = %d, want 0 for unrecognized word", got)
	}
}

func TestValidCRPLevel(t *testing.T) {
	for _, level := range []int{1, 2, 3, 9} {
		if !ValidCRPLevel(level) {
			t.Errorf("ValidCRPLevel(%d) = false", level)
		}
	}
	for _, level := range []int{0, 4, 8, 10} {
		if ValidCRPLevel(level) {
			t.Errorf("ValidCRPLevel(%d) = true", level)
		}
	}
}
