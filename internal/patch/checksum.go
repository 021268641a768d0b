package patch

import (
	"encoding/binary"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/burnmate/internal/image"
	"github.com/muurk/burnmate/internal/logging"
)

// vectorTableWords is the number of words covered by the boot checksum.
const vectorTableWords = 8

// checksumRule maps a flash driver name pattern to the vector-table word
// index holding the boot checksum. Patterns are shell-style wildcards,
// matched case-insensitively against the driver name. Cortex-M parts keep
// the checksum in the reserved slot at word 7; ARM7 parts use word 5.
type checksumRule struct {
	pattern string
	slot    int
}

var checksumRules = []checksumRule{
	{"lpc8*", 7},
	{"lpc11*", 7},
	{"lpc12*", 7},
	{"lpc13*", 7},
	{"lpc15*", 7},
	{"lpc17*", 7},
	{"lpc18*", 7},
	{"lpc40*", 7},
	{"lpc43*", 7},
	{"lpc5*", 7},
	{"lpc2*", 5},
}

// ChecksumSlot returns the vector-table word index holding the boot checksum
// for the given flash driver name, or an *UnsupportedDriverError if the
// driver needs no repair or is unknown.
func ChecksumSlot(driver string) (int, error) {
	name := strings.ToLower(strings.TrimSpace(driver))
	for _, rule := range checksumRules {
		if ok, _ := path.Match(rule.pattern, name); ok {
			return rule.slot, nil
		}
	}
	return 0, &UnsupportedDriverError{Driver: driver}
}

// ChecksumResult reports what RepairVectorChecksum did.
type ChecksumResult int

const (
	// ChecksumRepaired means the checksum word was rewritten.
	ChecksumRepaired ChecksumResult = iota
	// ChecksumAlreadyCorrect means the existing word was already valid and
	// nothing was written.
	ChecksumAlreadyCorrect
)

// RepairVectorChecksum recomputes the boot vector-table checksum for an image
// with a vector table at address 0. The checksum word is the two's complement
// of the sum of the other seven words, so that all eight sum to zero. The
// repair is idempotent: a second call reports ChecksumAlreadyCorrect.
func RepairVectorChecksum(img *image.Image, driver string) (ChecksumResult, error) {
	slot, err := ChecksumSlot(driver)
	if err != nil {
		return 0, err
	}

	span, err := img.FindSpan(0, vectorTableWords*4)
	if err != nil {
		return 0, &RangeError{Address: 0, Size: vectorTableWords * 4, Err: err}
	}

	var words [vectorTableWords]uint32
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(span[i*4:])
	}

	var sum uint32
	for i, w := range words {
		if i != slot {
			sum += w
		}
	}
	want := -sum // two's complement negate

	if words[slot] == want {
		logging.Debug("vector-table checksum already correct",
			zap.String("driver", driver),
			zap.Int("slot", slot),
			zap.Uint32("value", want),
		)
		return ChecksumAlreadyCorrect, nil
	}

	logging.Debug("repairing vector-table checksum",
		zap.String("driver", driver),
		zap.Int("slot", slot),
		zap.Uint32("old", words[slot]),
		zap.Uint32("new", want),
	)
	binary.LittleEndian.PutUint32(span[slot*4:], want)
	return ChecksumRepaired, nil
}
