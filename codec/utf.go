// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"unicode/utf16"
	"unicode/utf8"
)

// ModifiedUTF8Len returns the encoded length of s in modified UTF-8 and whether
// every character fits the single-byte range 0x01..0x7F.
//
// Modified UTF-8 encodes U+0000 as two bytes and characters outside the BMP as
// a surrogate pair of three-byte sequences.
func ModifiedUTF8Len(s string) (int, bool) {
	n := 0
	ascii := true
	for _, r := range s {
		switch {
		case r >= 0x01 && r <= 0x7F:
			n++
		case r == 0 || r <= 0x7FF:
			n += 2
			ascii = false
		case r > 0xFFFF:
			n += 6
			ascii = false
		default:
			n += 3
			ascii = false
		}
	}
	return n, ascii
}

// AppendModifiedUTF8 appends the modified UTF-8 encoding of s to dst. It
// fails with ErrMalformedString if s is not valid UTF-8.
func AppendModifiedUTF8(dst []byte, s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return dst, ErrMalformedString
	}
	for _, r := range s {
		if r > 0xFFFF {
			hi, lo := utf16.EncodeRune(r)
			dst = appendUnit(dst, uint16(hi))
			dst = appendUnit(dst, uint16(lo))
			continue
		}
		dst = appendUnit(dst, uint16(r))
	}
	return dst, nil
}

func appendUnit(dst []byte, c uint16) []byte {
	switch {
	case c >= 0x01 && c <= 0x7F:
		return append(dst, byte(c))
	case c <= 0x7FF:
		return append(dst, byte(0xC0|(c>>6)&0x1F), byte(0x80|c&0x3F))
	default:
		return append(dst, byte(0xE0|(c>>12)&0x0F), byte(0x80|(c>>6)&0x3F), byte(0x80|c&0x3F))
	}
}

// DecodeModifiedUTF8 decodes b, failing on truncated or malformed sequences.
func DecodeModifiedUTF8(b []byte) (string, error) {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c>>5 == 0x06:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", ErrMalformedString
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c>>4 == 0x0E:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", ErrMalformedString
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", ErrMalformedString
		}
	}
	return string(utf16.Decode(units)), nil
}
