package pdfdoc

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// decodeTextString converts a PDF text string to UTF-8. A BOM selects
// UTF-16 or UTF-8; everything else is treated as PDFDocEncoding, which
// Windows-1252 matches across the printable range.
func decodeTextString(b []byte) string {
	switch {
	case len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF:
		return decodeUTF16(b[2:], unicode.BigEndian)
	case len(b) >= 2 && b[0] == 0xFF && b[1] == 0xFE:
		return decodeUTF16(b[2:], unicode.LittleEndian)
	case len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF:
		return string(b[3:])
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// decodeUTF16BE decodes big-endian UTF-16 without a BOM, the form
// ToUnicode CMaps and composite font fallbacks use.
func decodeUTF16BE(b []byte) string {
	return decodeUTF16(b, unicode.BigEndian)
}

// decodeUTF16 decodes without a BOM; the caller already consumed it.
// Decoders are stateful, so each call builds its own.
func decodeUTF16(b []byte, endian unicode.Endianness) string {
	dec := unicode.UTF16(endian, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// parsePDFDate parses a D:YYYYMMDDHHmmSS date with an optional zone
// suffix. Fields may be truncated from the right; anything shorter
// than a year comes back as the zero time.
func parsePDFDate(s string) time.Time {
	s = strings.TrimPrefix(s, "D:")

	loc := time.UTC
	if i := strings.IndexAny(s, "Z+-"); i >= 0 {
		zone := strings.ReplaceAll(s[i:], "'", "")
		s = s[:i]
		if len(zone) >= 3 && (zone[0] == '+' || zone[0] == '-') {
			sign := 1
			if zone[0] == '-' {
				sign = -1
			}
			hh, err := strconv.Atoi(zone[1:3])
			if err == nil {
				mm := 0
				if len(zone) >= 5 {
					mm, _ = strconv.Atoi(zone[3:5])
				}
				loc = time.FixedZone("", sign*(hh*3600+mm*60))
			}
		}
	}

	field := func(start, width, def int) int {
		if len(s) < start+width {
			return def
		}
		v, err := strconv.Atoi(s[start : start+width])
		if err != nil {
			return def
		}
		return v
	}

	if len(s) < 4 {
		return time.Time{}
	}
	year := field(0, 4, 0)
	if year == 0 {
		return time.Time{}
	}
	month := field(4, 2, 1)
	if month < 1 || month > 12 {
		month = 1
	}
	day := field(6, 2, 1)
	if day < 1 || day > 31 {
		day = 1
	}
	hour := field(8, 2, 0)
	minute := field(10, 2, 0)
	second := field(12, 2, 0)
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
}
