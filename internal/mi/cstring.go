package mi

import (
	"strings"
)

// Quote returns s as an MI C string: enclosed in double quotes, with
// quotes, backslashes and control characters escaped. Control characters
// without a short escape are written as three-digit octal escapes, which is
// how GDB itself emits them.
func Quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		case '\f':
			sb.WriteString(`\f`)
		case '\b':
			sb.WriteString(`\b`)
		case '\a':
			sb.WriteString(`\a`)
		case '\v':
			sb.WriteString(`\v`)
		default:
			if c < 0x20 || c == 0x7f {
				sb.WriteByte('\\')
				sb.WriteByte('0' + c>>6)
				sb.WriteByte('0' + (c>>3)&7)
				sb.WriteByte('0' + c&7)
				continue
			}
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// Unquote decodes an MI C string, quotes included, into its bytes.
func Unquote(s string) (string, error) {
	b, n, err := unquoteBytes(s, 0)
	if err != nil {
		return "", err
	}
	if n != len(s) {
		return "", &SyntaxError{Line: s, Offset: n, Msg: "trailing data after string"}
	}
	return string(b), nil
}

// unquoteBytes decodes the C string starting at s[pos] and returns its
// bytes and the offset just past the closing quote.
func unquoteBytes(s string, pos int) ([]byte, int, error) {
	if pos >= len(s) || s[pos] != '"' {
		return nil, pos, &SyntaxError{Line: s, Offset: pos, Msg: "expected '\"'"}
	}
	out := make([]byte, 0, 16)
	i := pos + 1
	for i < len(s) {
		c := s[i]
		switch c {
		case '"':
			return out, i + 1, nil
		case '\\':
			i++
			if i >= len(s) {
				return nil, i, &SyntaxError{Line: s, Offset: i, Msg: "dangling escape"}
			}
			e := s[i]
			switch e {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			case 'f':
				out = append(out, '\f')
			case 'b':
				out = append(out, '\b')
			case 'a':
				out = append(out, '\a')
			case 'v':
				out = append(out, '\v')
			case 'e':
				out = append(out, 0x1b)
			case '0', '1', '2', '3', '4', '5', '6', '7':
				v := 0
				j := 0
				for ; j < 3 && i+j < len(s) && s[i+j] >= '0' && s[i+j] <= '7'; j++ {
					v = v*8 + int(s[i+j]-'0')
				}
				out = append(out, byte(v))
				i += j - 1
			default:
				// \" \\ and unknown escapes stand for the character itself.
				out = append(out, e)
			}
			i++
		default:
			out = append(out, c)
			i++
		}
	}
	return nil, i, &SyntaxError{Line: s, Offset: pos, Msg: "unterminated string"}
}
