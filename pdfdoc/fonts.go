package pdfdoc

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// fontInfo carries what text extraction needs from a font resource:
// how string bytes map to Unicode and how far each glyph advances.
// Widths are kept in glyph space, thousandths of the em.
type fontInfo struct {
	subtype   string
	twoByte   bool // composite font stepping two bytes per code
	toUnicode *cmap
	encoding  string

	firstChar int
	widths    []float64
	missing   float64

	cidWidths  map[int]float64
	cidDefault float64
}

// defaultFont stands in when a Tf names a resource the page does not
// carry. Advances fall back to half an em.
var defaultFont = &fontInfo{missing: 500, cidDefault: 1000}

// loadFont builds a fontInfo from a /Font resource entry.
func (d *Document) loadFont(obj Object) *fontInfo {
	dict, ok := d.resolve(obj).(Dict)
	if !ok {
		return defaultFont
	}
	f := &fontInfo{missing: 500, cidDefault: 1000}
	if sub, ok := dict.GetName("Subtype"); ok {
		f.subtype = string(sub)
	}

	switch enc := d.resolve(dict.Get("Encoding")).(type) {
	case Name:
		f.encoding = string(enc)
	case Dict:
		if base, ok := enc.GetName("BaseEncoding"); ok {
			f.encoding = string(base)
		}
	}

	if stm, ok := d.resolve(dict.Get("ToUnicode")).(*Stream); ok {
		if data, err := stm.Decoded(); err == nil {
			f.toUnicode = parseCMap(data)
		}
	}

	if f.subtype == "Type0" {
		f.twoByte = true
		d.loadCIDWidths(dict, f)
		return f
	}

	if fc, ok := toNumber(d.resolve(dict.Get("FirstChar"))); ok {
		f.firstChar = int(fc)
	}
	if arr, ok := d.resolve(dict.Get("Widths")).(Array); ok {
		f.widths = make([]float64, len(arr))
		for i := range arr {
			if w, ok := toNumber(d.resolve(arr.Get(i))); ok {
				f.widths[i] = w
			}
		}
	}
	if desc, ok := d.resolve(dict.Get("FontDescriptor")).(Dict); ok {
		if mw, ok := toNumber(d.resolve(desc.Get("MissingWidth"))); ok {
			f.missing = mw
		}
	}
	return f
}

// loadCIDWidths reads the descendant CID font's /DW default and /W
// runs. /W entries are either "first [w w ...]" or "first last w".
func (d *Document) loadCIDWidths(dict Dict, f *fontInfo) {
	desc, ok := d.resolve(dict.Get("DescendantFonts")).(Array)
	if !ok || len(desc) == 0 {
		return
	}
	cid, ok := d.resolve(desc.Get(0)).(Dict)
	if !ok {
		return
	}
	if dw, ok := toNumber(d.resolve(cid.Get("DW"))); ok {
		f.cidDefault = dw
	}
	w, ok := d.resolve(cid.Get("W")).(Array)
	if !ok {
		return
	}
	f.cidWidths = make(map[int]float64)
	i := 0
	for i < len(w) {
		first, ok := toNumber(d.resolve(w.Get(i)))
		if !ok {
			return
		}
		switch next := d.resolve(w.Get(i + 1)).(type) {
		case Array:
			for j := range next {
				if wv, ok := toNumber(d.resolve(next.Get(j))); ok {
					f.cidWidths[int(first)+j] = wv
				}
			}
			i += 2
		default:
			last, ok1 := toNumber(next)
			wv, ok2 := toNumber(d.resolve(w.Get(i + 2)))
			if !ok1 || !ok2 || last < first || last-first > 65535 {
				return
			}
			for c := int(first); c <= int(last); c++ {
				f.cidWidths[c] = wv
			}
			i += 3
		}
	}
}

// decode maps string bytes to UTF-8 text. ToUnicode entries win;
// composite fonts without one are read as UTF-16BE, and simple fonts
// fall through to their named single-byte encoding.
func (f *fontInfo) decode(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if f.toUnicode == nil && f.twoByte {
		return norm.NFC.String(decodeUTF16BE(b))
	}

	var sb strings.Builder
	i := 0
	for i < len(b) {
		if f.toUnicode != nil {
			if s, n, ok := f.toUnicode.lookup(b[i:]); ok {
				sb.WriteString(s)
				i += n
				continue
			}
		}
		if f.twoByte && i+2 <= len(b) {
			sb.WriteRune(rune(uint32(b[i])<<8 | uint32(b[i+1])))
			i += 2
			continue
		}
		sb.WriteRune(f.byteToRune(b[i]))
		i++
	}
	return norm.NFC.String(sb.String())
}

func (f *fontInfo) byteToRune(b byte) rune {
	switch f.encoding {
	case "MacRomanEncoding":
		return charmap.Macintosh.DecodeByte(b)
	default:
		// WinAnsiEncoding, and a workable stand-in for standard
		// encodings across the printable range.
		return charmap.Windows1252.DecodeByte(b)
	}
}

// advance returns the text-space width of the string in ems, before
// font size scaling.
func (f *fontInfo) advance(b []byte) float64 {
	var total float64
	if f.twoByte {
		for i := 0; i+1 < len(b); i += 2 {
			cid := int(b[i])<<8 | int(b[i+1])
			if w, ok := f.cidWidths[cid]; ok {
				total += w
			} else {
				total += f.cidDefault
			}
		}
		if len(b)%2 == 1 {
			total += f.cidDefault
		}
		return total / 1000
	}
	for _, c := range b {
		idx := int(c) - f.firstChar
		if idx >= 0 && idx < len(f.widths) && f.widths[idx] > 0 {
			total += f.widths[idx]
		} else {
			total += f.missing
		}
	}
	return total / 1000
}

// codeUnits returns how many codes the string holds, used to spread TJ
// adjustments and spacing.
func (f *fontInfo) codeUnits(b []byte) int {
	if f.twoByte {
		return (len(b) + 1) / 2
	}
	return len(b)
}

// ===== ToUnicode CMaps =====

// cmap holds bfchar and bfrange mappings from a ToUnicode stream. Keys
// are raw code bytes, one or two of them.
type cmap struct {
	single map[string]string
	ranges []cmapRange
}

// cmapRange maps a run of codes. values holds the array form; base
// holds the UTF-16BE start value for the increment form.
type cmapRange struct {
	lo, hi uint32
	size   int
	base   []byte
	values []string
}

// lookup tries the longest code first: two bytes, then one.
func (c *cmap) lookup(b []byte) (string, int, bool) {
	if len(b) >= 2 {
		if s, ok := c.single[string(b[:2])]; ok {
			return s, 2, true
		}
		code := uint32(b[0])<<8 | uint32(b[1])
		for i := range c.ranges {
			if r := &c.ranges[i]; r.size == 2 && code >= r.lo && code <= r.hi {
				return r.value(code), 2, true
			}
		}
	}
	if len(b) >= 1 {
		if s, ok := c.single[string(b[:1])]; ok {
			return s, 1, true
		}
		code := uint32(b[0])
		for i := range c.ranges {
			if r := &c.ranges[i]; r.size == 1 && code >= r.lo && code <= r.hi {
				return r.value(code), 1, true
			}
		}
	}
	return "", 0, false
}

// value resolves one code inside the range. The increment form adds
// the offset to the last UTF-16 unit of the base value.
func (r *cmapRange) value(code uint32) string {
	off := int(code - r.lo)
	if r.values != nil {
		if off < len(r.values) {
			return r.values[off]
		}
		return ""
	}
	if len(r.base) < 2 {
		return ""
	}
	dst := make([]byte, len(r.base))
	copy(dst, r.base)
	last := len(dst) - 2
	unit := (int(dst[last])<<8 | int(dst[last+1])) + off
	dst[last] = byte(unit >> 8)
	dst[last+1] = byte(unit)
	return decodeUTF16BE(dst)
}

// parseCMap scans a ToUnicode stream for bfchar and bfrange blocks.
// Anything else in the CMap program is ignored.
func parseCMap(data []byte) *cmap {
	c := &cmap{single: make(map[string]string)}
	lex := newLexer(bytes.NewReader(data))
	for {
		t, err := lex.next()
		if err != nil || t.kind == tokenEOF {
			break
		}
		if t.kind != tokenKeyword {
			continue
		}
		switch string(t.value) {
		case "beginbfchar":
			parseBFChar(lex, c)
		case "beginbfrange":
			parseBFRange(lex, c)
		}
	}
	if len(c.single) == 0 && len(c.ranges) == 0 {
		return nil
	}
	return c
}

func parseBFChar(lex *lexer, c *cmap) {
	for {
		src, ok := nextHex(lex, "endbfchar")
		if !ok {
			return
		}
		dst, ok := nextHex(lex, "endbfchar")
		if !ok {
			return
		}
		c.single[string(src)] = decodeUTF16BE(dst)
	}
}

func parseBFRange(lex *lexer, c *cmap) {
	for {
		lo, ok := nextHex(lex, "endbfrange")
		if !ok {
			return
		}
		hi, ok := nextHex(lex, "endbfrange")
		if !ok {
			return
		}
		if len(lo) == 0 || len(lo) > 2 || len(hi) != len(lo) {
			return
		}
		r := cmapRange{
			lo:   bytesToCode(lo),
			hi:   bytesToCode(hi),
			size: len(lo),
		}

		t, err := lex.next()
		if err != nil {
			return
		}
		switch t.kind {
		case tokenHexString:
			dst, err := decodeHexString(t.value)
			if err != nil {
				return
			}
			r.base = []byte(string(dst))
		case tokenArrayOpen:
			for {
				el, err := lex.next()
				if err != nil || el.kind == tokenEOF {
					return
				}
				if el.kind == tokenArrayClose {
					break
				}
				if el.kind != tokenHexString {
					continue
				}
				dst, err := decodeHexString(el.value)
				if err != nil {
					return
				}
				r.values = append(r.values, decodeUTF16BE([]byte(string(dst))))
			}
		default:
			return
		}
		c.ranges = append(c.ranges, r)
	}
}

// nextHex reads the next hex string token, reporting false at the
// closing keyword or on anything unexpected.
func nextHex(lex *lexer, end string) ([]byte, bool) {
	t, err := lex.next()
	if err != nil || t.kind == tokenEOF {
		return nil, false
	}
	if t.kind == tokenKeyword && string(t.value) == end {
		return nil, false
	}
	if t.kind != tokenHexString {
		return nil, false
	}
	s, err := decodeHexString(t.value)
	if err != nil {
		return nil, false
	}
	return []byte(string(s)), true
}

func bytesToCode(b []byte) uint32 {
	var v uint32
	for _, x := range b {
		v = v<<8 | uint32(x)
	}
	return v
}
