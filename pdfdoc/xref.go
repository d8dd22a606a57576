package pdfdoc

import (
	"bytes"
	"fmt"
	"strconv"
)

// xrefEntryType says how an object is stored.
type xrefEntryType int

const (
	xrefFree xrefEntryType = iota
	xrefUncompressed
	xrefCompressed
)

// xrefEntry locates one object. Uncompressed entries carry a byte
// offset; compressed entries name the object stream holding them and
// the index inside it.
type xrefEntry struct {
	typ       xrefEntryType
	offset    int64
	gen       int
	streamNum int
	streamIdx int
}

// xrefSection is one cross-reference section together with its trailer
// dictionary. For xref streams the stream dictionary doubles as the
// trailer.
type xrefSection struct {
	entries map[int]xrefEntry
	trailer Dict
}

// startXRefWindow bounds the tail scan for the startxref keyword.
const startXRefWindow = 1024

// findStartXRef locates the last startxref keyword near the end of the
// file and returns the offset it points at.
func findStartXRef(data []byte) (int64, error) {
	tail := data
	base := 0
	if len(tail) > startXRefWindow {
		base = len(data) - startXRefWindow
		tail = data[base:]
	}
	i := bytes.LastIndex(tail, []byte("startxref"))
	if i < 0 {
		return 0, fmt.Errorf("startxref keyword not found")
	}
	rest := tail[i+len("startxref"):]
	j := 0
	for j < len(rest) && isWhitespace(rest[j]) {
		j++
	}
	k := j
	for k < len(rest) && isDigit(rest[k]) {
		k++
	}
	if k == j {
		return 0, fmt.Errorf("startxref is not followed by an offset")
	}
	off, err := strconv.ParseInt(string(rest[j:k]), 10, 64)
	if err != nil {
		return 0, err
	}
	if off < 0 || off >= int64(len(data)) {
		return 0, fmt.Errorf("startxref offset %d out of range", off)
	}
	return off, nil
}

// loadXRef walks the cross-reference chain from the startxref offset
// and merges all sections. Sections are visited newest first and an
// entry already present is never replaced, so the newest version of
// each object wins. Hybrid files list an /XRefStm next to the classic
// trailer; its entries shadow the classic section they accompany.
func loadXRef(data []byte) (map[int]xrefEntry, Dict, error) {
	start, err := findStartXRef(data)
	if err != nil {
		return nil, nil, err
	}

	entries := make(map[int]xrefEntry)
	trailer := Dict{}
	seen := make(map[int64]bool)

	offset := start
	for offset >= 0 {
		if seen[offset] {
			return nil, nil, fmt.Errorf("cross-reference chain loops at offset %d", offset)
		}
		seen[offset] = true

		section, err := parseXRefSection(data, offset)
		if err != nil {
			return nil, nil, fmt.Errorf("cross-reference section at %d: %w", offset, err)
		}

		if stmOff, ok := section.trailer.GetInt("XRefStm"); ok && !seen[int64(stmOff)] {
			seen[int64(stmOff)] = true
			hybrid, err := parseXRefSection(data, int64(stmOff))
			if err != nil {
				return nil, nil, fmt.Errorf("hybrid cross-reference stream at %d: %w", stmOff, err)
			}
			mergeSection(entries, trailer, hybrid)
		}
		mergeSection(entries, trailer, section)

		prev, ok := section.trailer.GetInt("Prev")
		if !ok {
			break
		}
		offset = int64(prev)
	}
	return entries, trailer, nil
}

// mergeSection folds a section into the accumulated table, keeping
// whatever is already there.
func mergeSection(entries map[int]xrefEntry, trailer Dict, section *xrefSection) {
	for num, e := range section.entries {
		if _, ok := entries[num]; !ok {
			entries[num] = e
		}
	}
	for key, val := range section.trailer {
		if _, ok := trailer[key]; !ok {
			trailer[key] = val
		}
	}
}

// parseXRefSection reads the section at offset, dispatching on whether
// it starts with the xref keyword (classic table) or an indirect
// object header (xref stream).
func parseXRefSection(data []byte, offset int64) (*xrefSection, error) {
	if offset < 0 || offset >= int64(len(data)) {
		return nil, fmt.Errorf("offset %d out of range", offset)
	}
	rest := data[offset:]
	i := 0
	for i < len(rest) && isWhitespace(rest[i]) {
		i++
	}
	if bytes.HasPrefix(rest[i:], []byte("xref")) {
		return parseClassicXRef(rest)
	}
	return parseStreamXRef(rest)
}

// parseClassicXRef reads an "xref" table: subsection headers of the
// form "start count" followed by count entries, then the trailer
// dictionary.
func parseClassicXRef(data []byte) (*xrefSection, error) {
	lex := newLexer(bytes.NewReader(data))
	t, err := lex.next()
	if err != nil {
		return nil, err
	}
	if t.kind != tokenKeyword || string(t.value) != "xref" {
		return nil, fmt.Errorf("missing xref keyword")
	}

	section := &xrefSection{entries: make(map[int]xrefEntry)}
	for {
		t, err = lex.next()
		if err != nil {
			return nil, err
		}
		if t.kind == tokenKeyword && string(t.value) == "trailer" {
			break
		}
		if t.kind != tokenInteger {
			return nil, fmt.Errorf("expected subsection start at offset %d", t.pos)
		}
		start, err := strconv.Atoi(string(t.value))
		if err != nil {
			return nil, err
		}
		t, err = lex.next()
		if err != nil {
			return nil, err
		}
		if t.kind != tokenInteger {
			return nil, fmt.Errorf("expected subsection count at offset %d", t.pos)
		}
		count, err := strconv.Atoi(string(t.value))
		if err != nil {
			return nil, err
		}
		if start < 0 || count < 0 {
			return nil, fmt.Errorf("negative subsection header %d %d", start, count)
		}
		for i := 0; i < count; i++ {
			entry, err := parseClassicEntry(lex)
			if err != nil {
				return nil, err
			}
			section.entries[start+i] = entry
		}
	}

	// The trailer dictionary follows the trailer keyword.
	p := &parser{lex: lex}
	if err := p.refill(); err != nil {
		return nil, err
	}
	obj, err := p.parseObject()
	if err != nil {
		return nil, fmt.Errorf("trailer: %w", err)
	}
	dict, ok := obj.(Dict)
	if !ok {
		return nil, fmt.Errorf("trailer is not a dictionary")
	}
	section.trailer = dict
	return section, nil
}

// parseClassicEntry reads one "offset generation n|f" entry.
func parseClassicEntry(lex *lexer) (xrefEntry, error) {
	t, err := lex.next()
	if err != nil {
		return xrefEntry{}, err
	}
	if t.kind != tokenInteger {
		return xrefEntry{}, fmt.Errorf("expected entry offset at offset %d", t.pos)
	}
	off, err := strconv.ParseInt(string(t.value), 10, 64)
	if err != nil {
		return xrefEntry{}, err
	}
	t, err = lex.next()
	if err != nil {
		return xrefEntry{}, err
	}
	if t.kind != tokenInteger {
		return xrefEntry{}, fmt.Errorf("expected entry generation at offset %d", t.pos)
	}
	gen, err := strconv.Atoi(string(t.value))
	if err != nil {
		return xrefEntry{}, err
	}
	t, err = lex.next()
	if err != nil {
		return xrefEntry{}, err
	}
	if t.kind != tokenKeyword {
		return xrefEntry{}, fmt.Errorf("expected entry type at offset %d", t.pos)
	}
	switch string(t.value) {
	case "n":
		return xrefEntry{typ: xrefUncompressed, offset: off, gen: gen}, nil
	case "f":
		return xrefEntry{typ: xrefFree, gen: gen}, nil
	}
	return xrefEntry{}, fmt.Errorf("bad entry type %q at offset %d", t.value, t.pos)
}

// parseStreamXRef reads a cross-reference stream: an indirect stream
// object whose decoded payload holds fixed-width binary entries laid
// out by /W over the ranges named by /Index.
func parseStreamXRef(data []byte) (*xrefSection, error) {
	p, err := newParser(bytes.NewReader(data), nil)
	if err != nil {
		return nil, err
	}
	_, obj, err := p.parseAnyIndirect()
	if err != nil {
		return nil, err
	}
	stm, ok := obj.(*Stream)
	if !ok {
		return nil, fmt.Errorf("cross-reference section is not a stream")
	}
	if typ, ok := stm.Dict.GetName("Type"); !ok || typ != "XRef" {
		return nil, fmt.Errorf("stream /Type is not /XRef")
	}
	return decodeXRefStream(stm)
}

func decodeXRefStream(stm *Stream) (*xrefSection, error) {
	size, ok := stm.Dict.GetInt("Size")
	if !ok {
		return nil, fmt.Errorf("cross-reference stream has no /Size")
	}
	widths, err := xrefFieldWidths(stm.Dict)
	if err != nil {
		return nil, err
	}
	index, err := xrefIndexPairs(stm.Dict, int(size))
	if err != nil {
		return nil, err
	}

	payload, err := stm.Decoded()
	if err != nil {
		return nil, fmt.Errorf("decoding cross-reference stream: %w", err)
	}

	section := &xrefSection{entries: make(map[int]xrefEntry), trailer: stm.Dict}
	rowSize := widths[0] + widths[1] + widths[2]
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			if pos+rowSize > len(payload) {
				return nil, fmt.Errorf("cross-reference stream truncated at entry %d", start+j)
			}
			entry, err := parseXRefStreamEntry(payload[pos:pos+rowSize], widths)
			if err != nil {
				return nil, err
			}
			section.entries[start+j] = entry
			pos += rowSize
		}
	}
	return section, nil
}

// parseXRefStreamEntry decodes one fixed-width entry. A zero-width
// type field defaults the type to 1 (uncompressed).
func parseXRefStreamEntry(row []byte, widths [3]int) (xrefEntry, error) {
	typ := int64(1)
	if widths[0] > 0 {
		typ = readBigEndianInt(row[:widths[0]])
	}
	f2 := readBigEndianInt(row[widths[0] : widths[0]+widths[1]])
	f3 := readBigEndianInt(row[widths[0]+widths[1]:])

	switch typ {
	case 0:
		return xrefEntry{typ: xrefFree, gen: int(f3)}, nil
	case 1:
		return xrefEntry{typ: xrefUncompressed, offset: f2, gen: int(f3)}, nil
	case 2:
		return xrefEntry{typ: xrefCompressed, streamNum: int(f2), streamIdx: int(f3)}, nil
	}
	return xrefEntry{}, fmt.Errorf("unknown cross-reference entry type %d", typ)
}

// readBigEndianInt folds up to eight bytes into an integer.
func readBigEndianInt(b []byte) int64 {
	var v int64
	for _, x := range b {
		v = v<<8 | int64(x)
	}
	return v
}

func xrefFieldWidths(dict Dict) ([3]int, error) {
	arr, ok := dict.GetArray("W")
	if !ok || len(arr) < 3 {
		return [3]int{}, fmt.Errorf("cross-reference stream /W is missing or short")
	}
	var widths [3]int
	for i := 0; i < 3; i++ {
		n, ok := arr.Number(i)
		if !ok || n < 0 || n > 8 {
			return [3]int{}, fmt.Errorf("cross-reference stream /W[%d] out of range", i)
		}
		widths[i] = int(n)
	}
	if widths[1] == 0 {
		return [3]int{}, fmt.Errorf("cross-reference stream /W has a zero-width second field")
	}
	return widths, nil
}

func xrefIndexPairs(dict Dict, size int) ([]int, error) {
	arr, ok := dict.GetArray("Index")
	if !ok {
		return []int{0, size}, nil
	}
	if len(arr)%2 != 0 {
		return nil, fmt.Errorf("cross-reference stream /Index has odd length")
	}
	pairs := make([]int, len(arr))
	for i := range arr {
		n, ok := arr.Number(i)
		if !ok || n < 0 {
			return nil, fmt.Errorf("cross-reference stream /Index[%d] is not a valid number", i)
		}
		pairs[i] = int(n)
	}
	return pairs, nil
}
