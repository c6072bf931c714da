package snapshot

// quoteBareKeys rewrites a JavaScript object literal so that unquoted
// identifier and numeric keys ({docnames:[...]}, {1950:1}) become JSON
// strings. String contents are copied untouched, and words not followed by
// a colon (numbers, true, false, null) are left alone.
func quoteBareKeys(src []byte) []byte {
	out := make([]byte, 0, len(src)+len(src)/8)
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '"':
			j := skipString(src, i)
			out = append(out, src[i:j]...)
			i = j
		case isDigit(c) || c == '-' || c == '.':
			j := i + 1
			for j < len(src) && isNumberByte(src[j]) {
				j++
			}
			out = appendWord(out, src, i, j)
			i = j
		case isIdentStart(c):
			j := i + 1
			for j < len(src) && isIdentByte(src[j]) {
				j++
			}
			out = appendWord(out, src, i, j)
			i = j
		default:
			out = append(out, c)
			i++
		}
	}
	return out
}

// appendWord copies src[i:j], quoting it when the next non-space byte is a
// colon. Numeric keys such as 1950: take this path too.
func appendWord(out, src []byte, i, j int) []byte {
	k := j
	for k < len(src) && isSpace(src[k]) {
		k++
	}
	if k < len(src) && src[k] == ':' {
		out = append(out, '"')
		out = append(out, src[i:j]...)
		return append(out, '"')
	}
	return append(out, src[i:j]...)
}

// skipString returns the index just past the string literal starting at i.
// An unterminated string runs to the end of input and is left for the JSON
// decoder to reject.
func skipString(src []byte, i int) int {
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case '"':
			return j + 1
		}
	}
	return len(src)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isNumberByte(c byte) bool {
	return isDigit(c) || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentByte(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
