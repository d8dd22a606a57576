package filters

import (
	"bytes"
	"fmt"
)

// ASCIIHexDecode decodes hexadecimal encoded data. Pairs of hex digits
// become bytes, whitespace between digits is ignored, and > ends the
// data. A final odd digit reads as if a zero followed it. Input that
// runs out before the > marker is accepted.
func ASCIIHexDecode(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data)/2)
	var hi byte
	haveHi := false

	for _, c := range data {
		if isWhitespace(c) {
			continue
		}
		if c == '>' {
			break
		}

		v, err := hexDigitToByte(c)
		if err != nil {
			return nil, err
		}
		if haveHi {
			out = append(out, hi|v)
			haveHi = false
		} else {
			hi = v << 4
			haveHi = true
		}
	}

	if haveHi {
		out = append(out, hi)
	}
	return out, nil
}

// ASCII85Decode decodes base-85 encoded data. Five characters drawn from
// ! through u encode four bytes; z alone stands for four zero bytes; the
// sequence ~> ends the data. A partial final group of n characters yields
// n-1 bytes after padding with u, the highest digit.
func ASCII85Decode(data []byte) ([]byte, error) {
	var out bytes.Buffer
	var group [5]byte
	n := 0

	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case isWhitespace(c):

		case c == '~':
			if i+1 < len(data) && data[i+1] != '>' {
				return nil, fmt.Errorf("invalid ASCII85 end marker at offset %d", i)
			}
			i = len(data)

		case c == 'z' && n == 0:
			out.Write([]byte{0, 0, 0, 0})

		case c >= '!' && c <= 'u':
			group[n] = c - '!'
			n++
			if n == 5 {
				if err := writeASCII85Group(&out, group, 4); err != nil {
					return nil, err
				}
				n = 0
			}

		default:
			return nil, fmt.Errorf("invalid ASCII85 character: %c", c)
		}
	}

	switch {
	case n == 1:
		return nil, fmt.Errorf("ASCII85 data ends with a single trailing digit")
	case n > 1:
		for j := n; j < 5; j++ {
			group[j] = 84 // 'u'
		}
		if err := writeASCII85Group(&out, group, n-1); err != nil {
			return nil, err
		}
	}

	return out.Bytes(), nil
}

// writeASCII85Group converts one five-digit group to its 32-bit value and
// appends the first count bytes, big-endian. Groups that overflow 32 bits
// are invalid; the largest legal group is s8W-! for 0xFFFFFFFF.
func writeASCII85Group(out *bytes.Buffer, group [5]byte, count int) error {
	var value uint64
	for _, d := range group {
		value = value*85 + uint64(d)
	}
	if value > 0xFFFFFFFF {
		return fmt.Errorf("ASCII85 group out of range")
	}

	for j := 0; j < count; j++ {
		out.WriteByte(byte(value >> (24 - j*8)))
	}
	return nil
}

// hexDigitToByte converts one hex character to its value.
func hexDigitToByte(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit: %c", c)
	}
}

// isWhitespace reports whether c is one of the six whitespace characters,
// which are insignificant inside the ASCII filter encodings.
func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}
