package patch

// CompilePattern translates a textual serialization pattern into the raw byte
// needle searched for in the image. Supported escapes:
//
//	\\     a literal backslash
//	\xNN   a byte from two hex digits
//	\NNN   a byte from one to three decimal digits (max 255)
//	\A*    subsequent literals are narrow bytes (the default)
//	\U*    subsequent literals are wide: each byte is followed by 0x00
//
// Any other escape, or a decimal value above 255, is a malformed pattern.
func CompilePattern(pattern string) ([]byte, error) {
	var out []byte
	wide := false

	emit := func(b byte) {
		out = append(out, b)
		if wide {
			out = append(out, 0)
		}
	}

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '\\' {
			emit(c)
			continue
		}

		start := i
		if i+1 >= len(pattern) {
			return nil, &EscapeError{Pattern: pattern, Pos: start}
		}
		i++
		switch pattern[i] {
		case '\\':
			emit('\\')

		case 'x':
			if i+2 >= len(pattern) {
				return nil, &EscapeError{Pattern: pattern, Pos: start}
			}
			hi, ok1 := hexDigit(pattern[i+1])
			lo, ok2 := hexDigit(pattern[i+2])
			if !ok1 || !ok2 {
				return nil, &EscapeError{Pattern: pattern, Pos: start}
			}
			emit(hi<<4 | lo)
			i += 2

		case 'A', 'U':
			if i+1 >= len(pattern) || pattern[i+1] != '*' {
				return nil, &EscapeError{Pattern: pattern, Pos: start}
			}
			wide = pattern[i] == 'U'
			i++

		case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
			val := 0
			digits := 0
			for ; i < len(pattern) && digits < 3; i, digits = i+1, digits+1 {
				d := pattern[i]
				if d < '0' || d > '9' {
					break
				}
				val = val*10 + int(d-'0')
			}
			i-- // loop overshoots by one
			if val > 255 {
				return nil, &EscapeError{Pattern: pattern, Pos: start}
			}
			emit(byte(val))

		default:
			return nil, &EscapeError{Pattern: pattern, Pos: start}
		}
	}
	return out, nil
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
