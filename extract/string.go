// CLAUDE:SUMMARY Byte decoding that never fails: declared charset, strict UTF-8, then Latin-1 with scrub.
// CLAUDE:EXPORTS SafeDecode
package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// SafeDecode converts arbitrary bytes to text. It never fails: a declared
// charset is tried first, then strict UTF-8, then a permissive Latin-1
// decode with non-printable scrubbing. Valid UTF-8 input round-trips
// exactly.
func SafeDecode(data []byte, charset string) string {
	if len(data) == 0 {
		return ""
	}

	if enc := lookupCharset(charset); enc != nil {
		if out, err := enc.NewDecoder().Bytes(data); err == nil {
			s := string(out)
			if !strings.ContainsRune(s, utf8.RuneError) {
				return s
			}
		}
	}

	if utf8.Valid(data) {
		return string(data)
	}

	// Latin-1 maps every byte, so this decode is total. Bytes that land on
	// unprintable non-ASCII code points are dropped rather than surfaced.
	out, _ := charmap.ISO8859_1.NewDecoder().Bytes(data)
	return scrubUnprintable(string(out))
}

func lookupCharset(name string) encoding.Encoding {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "":
		return nil
	case "latin-1", "latin1", "iso-8859-1", "iso8859-1":
		return charmap.ISO8859_1
	}
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc
	}
	if enc, err := htmlindex.Get(name); err == nil {
		return enc
	}
	return nil
}

func scrubUnprintable(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r < 128 || unicode.IsPrint(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
