package digest

import (
	"bytes"
	"fmt"
	"slices"
	"unicode/utf8"
)

// Canonical serializes m as a JSON object with keys in code point order.
//
// The layout follows Python's json.dumps(m, sort_keys=True):
//
//	{"/a": "sha256=...", "/b": "symlink=..."}
//
// Output is pure ASCII. Characters outside the printable ASCII range are
// written as lowercase \uXXXX escapes (surrogate pairs above U+FFFF) and
// bytes that are not valid UTF-8 as \udcXX, the way Python decodes them
// from the filesystem.
func (m Map) Canonical() []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)

	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		writeString(&b, k)
		b.WriteString(": ")
		writeString(&b, m[k])
	}
	b.WriteByte('}')
	return b.Bytes()
}

// compareKeys orders keys by code point, with each invalid byte counted as
// the lone surrogate it is escaped as. Byte order differs from this once
// such bytes meet characters at U+E000 and above.
func compareKeys(a, b string) int {
	return slices.Compare(codePoints(a), codePoints(b))
}

func codePoints(s string) []rune {
	out := make([]rune, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			r = 0xdc00 + rune(s[i])
		}
		out = append(out, r)
		i += size
	}
	return out
}

func writeString(b *bytes.Buffer, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			fmt.Fprintf(b, `\u%04x`, 0xdc00+int(s[i]))
			i++
			continue
		}
		i += size

		switch {
		case r == '"':
			b.WriteString(`\"`)
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\b':
			b.WriteString(`\b`)
		case r == '\f':
			b.WriteString(`\f`)
		case r >= 0x20 && r <= 0x7e:
			b.WriteRune(r)
		case r > 0xffff:
			r -= 0x10000
			fmt.Fprintf(b, `\u%04x\u%04x`, 0xd800+(r>>10), 0xdc00+(r&0x3ff))
		default:
			fmt.Fprintf(b, `\u%04x`, r)
		}
	}
	b.WriteByte('"')
}
