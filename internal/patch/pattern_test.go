package patch

import (
	"bytes"
	"errors"
	"testing"
)

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    []byte
	}{
		{"plain", "SER#", []byte("SER#")},
		{"backslash", `a\\b`, []byte(`a\b`)},
		{"hex", `\x7F\x00\xff`, []byte{0x7F, 0x00, 0xFF}},
		{"decimal", `\0\9\255`, []byte{0, 9, 255}},
		{"decimal stops at non-digit", `\12x`, []byte{12, 'x'}},
		{"wide marker", `\U*AB`, []byte{'A', 0, 'B', 0}},
		{"wide then narrow", `\U*A\A*B`, []byte{'A', 0, 'B'}},
		{"wide applies to escapes", `\U*\x41`, []byte{0x41, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CompilePattern(tt.pattern)
			if err != nil {
				t.Fatalf("CompilePattern(%q): %v", tt.pattern, err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("CompilePattern(%q) = %v, want %v", tt.pattern, got, tt.want)
			}
		})
	}
}

func TestCompilePatternMalformed(t *testing.T) {
	bad := []string{
		`trailing\`,
		`\x`,
		`\x4`,
		`\xGG`,
		`\256`,
		`\q`,
		`\A`,  // marker without *
		`\Ux`, // marker without *
	}
	for _, pattern := range bad {
		_, err := CompilePattern(pattern)
		var escErr *EscapeError
		if !errors.As(err, &escErr) {
			t.Errorf("CompilePattern(%q): err = %v, want *EscapeError", pattern, err)
		}
	}
}
