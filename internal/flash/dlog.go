package flash

import (
	"bytes"
	"fmt"
	"os"
	"time"
)

// cksumPoly is the CRC-32 polynomial used by POSIX cksum (MSB-first, no
// reflection).
const cksumPoly = 0x04C11DB7

var cksumTable = makeCksumTable()

func makeCksumTable() [256]uint32 {
	var table [256]uint32
	for i := range table {
		c := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if c&0x80000000 != 0 {
				c = c<<1 ^ cksumPoly
			} else {
				c <<= 1
			}
		}
		table[i] = c
	}
	return table
}

// Cksum computes the POSIX cksum CRC of data: a table-driven CRC-32 over the
// bytes, then over the byte length rendered least-significant byte first,
// finally complemented. Matches the cksum(1) utility, so log entries can be
// cross-checked from a shell.
func Cksum(data []byte) uint32 {
	var c uint32
	for _, b := range data {
		c = c<<8 ^ cksumTable[byte(c>>24)^b]
	}
	for n := len(data); n != 0; n >>= 8 {
		c = c<<8 ^ cksumTable[byte(c>>24)^byte(n)]
	}
	return ^c
}

// identMarker introduces an embedded identification string, the SCCS
// what-string convention.
var identMarker = []byte("@(#)")

// extractIdent returns the first embedded identification string in data:
// the printable run following the "@(#)" marker, or "" if none.
func extractIdent(data []byte) string {
	idx := bytes.Index(data, identMarker)
	if idx < 0 {
		return ""
	}
	rest := data[idx+len(identMarker):]
	end := 0
	for end < len(rest) && rest[end] >= 0x20 && rest[end] <= 0x7E && rest[end] != '"' {
		end++
	}
	return string(rest[:end])
}

// appendDownloadLog appends one CSV line to <targetFile>.log recording a
// completed download: download timestamp, file modification timestamp, file
// size, POSIX cksum CRC, embedded identification string (may be empty), and
// the serial number or "-" when serialization is off.
func appendDownloadLog(targetFile, serialNo string, now time.Time) error {
	data, err := os.ReadFile(targetFile)
	if err != nil {
		return fmt.Errorf("failed to read target for log entry: %w", err)
	}
	info, err := os.Stat(targetFile)
	if err != nil {
		return fmt.Errorf("failed to stat target for log entry: %w", err)
	}

	if serialNo == "" {
		serialNo = "-"
	}
	line := fmt.Sprintf("%s,%s,%d,%d,%s,%s\n",
		now.Format(time.RFC3339),
		info.ModTime().Format(time.RFC3339),
		len(data),
		Cksum(data),
		extractIdent(data),
		serialNo,
	)

	f, err := os.OpenFile(targetFile+".log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open download log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to append download log: %w", err)
	}
	return nil
}
