package patch

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/muurk/burnmate/internal/image"
	"github.com/muurk/burnmate/internal/logging"
)

// CRPOffset is the fixed image offset of the code-read-protection word.
const CRPOffset = 0x2FC

// CRP levels. Levels 1-3 progressively restrict debug and ISP access;
// CRPLevelNone (9) disables protection.
const (
	CRPLevel1    = 1
	CRPLevel2    = 2
	CRPLevel3    = 3
	CRPLevelNone = 9
)

// crpMagic maps each level to the magic word the boot ROM looks for.
// The erased-flash word stands in for "no protection".
var crpMagic = map[int]uint32{
	CRPLevel1:    0x12345678,
	CRPLevel2:    0x87654321,
	CRPLevel3:    0x43218765,
	CRPLevelNone: 0xFFFFFFFF,
}

// ValidCRPLevel reports whether level is a member of the supported set.
func ValidCRPLevel(level int) bool {
	_, ok := crpMagic[level]
	return ok
}

// InjectCRP writes the protection magic for the requested level at the CRP
// offset. The existing word must already be one of the known placeholders:
// an image built without a reserved CRP slot is rejected rather than
// corrupted.
func InjectCRP(img *image.Image, level int) error {
	magic, ok := crpMagic[level]
	if !ok {
		return fmt.Errorf("invalid CRP level %d (valid: 1, 2, 3, 9)", level)
	}

	span, err := img.FindSpan(CRPOffset, 4)
	if err != nil {
		return &RangeError{Address: CRPOffset, Size: 4, Err: err}
	}

	existing := binary.LittleEndian.Uint32(span)
	if !knownCRPWord(existing) {
		return &NotPreparedError{Existing: existing}
	}

	logging.Debug("injecting CRP level",
		zap.Int("level", level),
		zap.Uint32("old", existing),
		zap.Uint32("magic", magic),
	)
	binary.LittleEndian.PutUint32(span, magic)
	return nil
}

// ReadCRP returns the protection level currently encoded in the image, or 0
// if the word at the CRP offset is not a recognized protection magic. Note
// that the "none" placeholder also reads back as 0.
func ReadCRP(img *image.Image) int {
	span, err := img.FindSpan(CRPOffset, 4)
	if err != nil {
		return 0
	}
	word := binary.LittleEndian.Uint32(span)
	for level, magic := range crpMagic {
		if level != CRPLevelNone && magic == word {
			return level
		}
	}
	return 0
}

func knownCRPWord(word uint32) bool {
	for _, magic := range crpMagic {
		if word == magic {
			return true
		}
	}
	return false
}
