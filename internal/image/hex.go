package image

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
)

// Intel HEX record types.
const (
	hexRecData         = 0 // data payload
	hexRecEOF          = 1 // end of file, terminates parsing
	hexRecExtSegment   = 2 // base address = value << 4
	hexRecStartSegment = 3 // ignored (start address)
	hexRecExtLinear    = 4 // base address = value << 16
	hexRecStartLinear  = 5 // ignored (start address)
	hexMinRecordDigits = 10
)

// hexRecord is one decoded record.
type hexRecord struct {
	length  byte
	address uint16
	typ     byte
	data    []byte
}

// decodeHexRecord parses and validates a single record line, enforcing the
// record checksum: the sum of length, address, type, data and checksum bytes
// must be 0 mod 256.
func decodeHexRecord(line []byte, lineNo int) (*hexRecord, error) {
	if len(line) < 1 || line[0] != ':' {
		return nil, &HexRecordError{Line: lineNo, Reason: "missing ':' start code"}
	}
	digits := line[1:]
	if len(digits) < hexMinRecordDigits || len(digits)%2 != 0 {
		return nil, &HexRecordError{Line: lineNo, Reason: "truncated record"}
	}

	raw := make([]byte, len(digits)/2)
	if _, err := hex.Decode(raw, digits); err != nil {
		return nil, &HexRecordError{Line: lineNo, Reason: "non-hex character"}
	}

	rec := &hexRecord{
		length:  raw[0],
		address: uint16(raw[1])<<8 | uint16(raw[2]),
		typ:     raw[3],
		data:    raw[4 : len(raw)-1],
	}
	if int(rec.length) != len(rec.data) {
		return nil, &HexRecordError{Line: lineNo, Reason: "length field does not match payload"}
	}

	var sum byte
	for _, b := range raw {
		sum += b
	}
	if sum != 0 {
		return nil, &HexRecordError{Line: lineNo, Reason: "bad checksum"}
	}
	return rec, nil
}

// isHexRecord reports whether line is a syntactically valid Intel HEX record,
// including a correct checksum. Used for format sniffing.
func isHexRecord(line []byte) bool {
	line = bytes.TrimRight(line, "\r\n \t")
	_, err := decodeHexRecord(line, 0)
	return err == nil
}

// parseHex parses a whole Intel HEX file into sections. Consecutive data
// records accumulate in one growable buffer; any address discontinuity (gap
// or backward jump) flushes the buffer into a finished section and starts a
// new one. A single bad checksum fails the whole load, as does a file that
// ends without an end-of-file record.
func parseHex(data []byte) ([]Section, error) {
	var (
		sections []Section
		buf      []byte
		bufAddr  uint32 // target address of buf[0]
		next     uint32 // expected address of the next data byte
		base     uint32 // from extended segment/linear records
		sawEOF   bool
	)

	flush := func() {
		if len(buf) > 0 {
			sections = append(sections, Section{
				Address: bufAddr,
				Data:    buf,
				Kind:    KindUnknown,
			})
			buf = nil
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 1024), 64*1024)
	lineNo := 0
	for scanner.Scan() && !sawEOF {
		lineNo++
		line := bytes.TrimRight(scanner.Bytes(), "\r \t")
		if len(line) == 0 {
			continue
		}
		rec, err := decodeHexRecord(line, lineNo)
		if err != nil {
			return nil, err
		}

		switch rec.typ {
		case hexRecData:
			addr := base + uint32(rec.address)
			if len(buf) == 0 {
				bufAddr = addr
			} else if addr != next {
				flush()
				bufAddr = addr
			}
			buf = append(buf, rec.data...)
			next = addr + uint32(len(rec.data))

		case hexRecEOF:
			sawEOF = true

		case hexRecExtSegment:
			if len(rec.data) != 2 {
				return nil, &HexRecordError{Line: lineNo, Reason: "extended segment record needs 2 data bytes"}
			}
			base = uint32(rec.data[0])<<12 | uint32(rec.data[1])<<4

		case hexRecExtLinear:
			if len(rec.data) != 2 {
				return nil, &HexRecordError{Line: lineNo, Reason: "extended linear record needs 2 data bytes"}
			}
			base = uint32(rec.data[0])<<24 | uint32(rec.data[1])<<16

		case hexRecStartSegment, hexRecStartLinear:
			// Start addresses are meaningless for flash content.

		default:
			return nil, &HexRecordError{Line: lineNo, Reason: fmt.Sprintf("unknown record type %d", rec.typ)}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !sawEOF {
		return nil, ErrNoEOFRecord
	}
	flush()
	return sections, nil
}
