package partitionkey

import (
	"maps"
	"slices"
	"strconv"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

// MarshalJSON returns the canonical text of v. It never fails.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.appendCanonical(nil), nil
}

// String returns the canonical text of v: compact JSON with object keys in
// byte order.
func (v Value) String() string {
	return string(v.appendCanonical(nil))
}

func (v Value) appendCanonical(b []byte) []byte {
	switch v.kind {
	case KindBool:
		return strconv.AppendBool(b, v.truth)
	case KindNumber:
		return append(b, v.text...)
	case KindString:
		return appendString(b, v.text)
	case KindArray:
		b = append(b, '[')
		for i, item := range v.items {
			if i > 0 {
				b = append(b, ',')
			}
			b = item.appendCanonical(b)
		}
		return append(b, ']')
	case KindObject:
		b = append(b, '{')
		for i, k := range slices.Sorted(maps.Keys(v.fields)) {
			if i > 0 {
				b = append(b, ',')
			}
			b = appendString(b, k)
			b = append(b, ':')
			b = v.fields[k].appendCanonical(b)
		}
		return append(b, '}')
	}
	return append(b, "null"...)
}

// appendString quotes s the way JSON.stringify does: only quotes, backslashes
// and control characters are escaped. Invalid UTF-8 becomes U+FFFD.
func appendString(b []byte, s string) []byte {
	b = append(b, '"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch c {
			case '"', '\\':
				b = append(b, '\\', c)
			case '\b':
				b = append(b, '\\', 'b')
			case '\f':
				b = append(b, '\\', 'f')
			case '\n':
				b = append(b, '\\', 'n')
			case '\r':
				b = append(b, '\\', 'r')
			case '\t':
				b = append(b, '\\', 't')
			default:
				if c < 0x20 {
					b = append(b, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xF])
				} else {
					b = append(b, c)
				}
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b = utf8.AppendRune(b, utf8.RuneError)
		} else {
			b = append(b, s[i:i+size]...)
		}
		i += size
	}
	return append(b, '"')
}

// keyLength counts s in UTF-16 code units, the unit partition key limits
// have always been measured in.
func keyLength(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}
