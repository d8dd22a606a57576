package pdfdoc

import (
	"bytes"
	"fmt"
	"testing"
)

// TestFindStartXRef tests locating the startxref pointer in the file tail
func TestFindStartXRef(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		expected int64
		wantErr  bool
	}{
		{"simple", "0123456789startxref\n5\n%%EOF", 5, false},
		{"crlf", "0123456789startxref\r\n7\r\n%%EOF", 7, false},
		{"last one wins", "startxref\n1\n%%EOF startxref\n9\n%%EOF junk", 9, false},
		{"missing keyword", "0123456789%%EOF", 0, true},
		{"no offset", "0123456789startxref\n%%EOF", 0, true},
		{"offset out of range", "startxref\n99999\n%%EOF", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := findStartXRef([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("wantErr=%v, got error: %v", tt.wantErr, err)
			}
			if !tt.wantErr && got != tt.expected {
				t.Errorf("findStartXRef() = %d, want %d", got, tt.expected)
			}
		})
	}
}

// TestParseClassicXRef tests parsing a classic xref table with multiple
// subsections
func TestParseClassicXRef(t *testing.T) {
	data := "xref\n" +
		"0 2\n" +
		"0000000000 65535 f \n" +
		"0000000017 00000 n \n" +
		"10 1\n" +
		"0000000205 00003 n \n" +
		"trailer\n" +
		"<< /Size 11 /Root 1 0 R >>\n"

	section, err := parseClassicXRef([]byte(data))
	if err != nil {
		t.Fatalf("parseClassicXRef failed: %v", err)
	}

	if len(section.entries) != 3 {
		t.Fatalf("entry count = %d, want 3", len(section.entries))
	}
	if e := section.entries[0]; e.typ != xrefFree || e.gen != 65535 {
		t.Errorf("entry 0 = %+v, want free gen 65535", e)
	}
	if e := section.entries[1]; e.typ != xrefUncompressed || e.offset != 17 {
		t.Errorf("entry 1 = %+v, want offset 17", e)
	}
	if e := section.entries[10]; e.typ != xrefUncompressed || e.offset != 205 || e.gen != 3 {
		t.Errorf("entry 10 = %+v, want offset 205 gen 3", e)
	}
	if size, _ := section.trailer.GetInt("Size"); size != 11 {
		t.Errorf("trailer /Size = %d, want 11", size)
	}
	if root, ok := section.trailer.GetRef("Root"); !ok || root.Num != 1 {
		t.Errorf("trailer /Root = %v, want 1 0 R", section.trailer.Get("Root"))
	}
}

// TestParseClassicXRefErrors tests malformed classic tables
func TestParseClassicXRefErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing xref keyword", "0 1\n0000000000 65535 f \ntrailer\n<< >>\n"},
		{"bad entry type", "xref\n0 1\n0000000000 65535 x \ntrailer\n<< >>\n"},
		{"negative subsection", "xref\n-1 1\n0000000000 65535 f \ntrailer\n<< >>\n"},
		{"trailer not a dict", "xref\n0 1\n0000000000 65535 f \ntrailer\n42\n"},
		{"truncated entries", "xref\n0 5\n0000000000 65535 f \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseClassicXRef([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// TestXRefStream tests decoding a cross-reference stream with all three
// entry types
func TestXRefStream(t *testing.T) {
	payload := []byte{
		0, 0x00, 0x00, 0xFF, // object 0: free
		1, 0x01, 0x02, 0x00, // object 1: uncompressed at offset 0x0102
		2, 0x00, 0x05, 0x03, // object 2: in object stream 5, index 3
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "4 0 obj\n<< /Type /XRef /Size 3 /W [1 2 1] /Length %d >>\nstream\n", len(payload))
	buf.Write(payload)
	buf.WriteString("\nendstream\nendobj")

	section, err := parseXRefSection(buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("parseXRefSection failed: %v", err)
	}

	if len(section.entries) != 3 {
		t.Fatalf("entry count = %d, want 3", len(section.entries))
	}
	if e := section.entries[0]; e.typ != xrefFree || e.gen != 0xFF {
		t.Errorf("entry 0 = %+v, want free gen 255", e)
	}
	if e := section.entries[1]; e.typ != xrefUncompressed || e.offset != 0x0102 {
		t.Errorf("entry 1 = %+v, want offset 258", e)
	}
	if e := section.entries[2]; e.typ != xrefCompressed || e.streamNum != 5 || e.streamIdx != 3 {
		t.Errorf("entry 2 = %+v, want stream 5 index 3", e)
	}
	if size, _ := section.trailer.GetInt("Size"); size != 3 {
		t.Errorf("trailer /Size = %d, want 3", size)
	}
}

// TestXRefStreamIndex tests the /Index ranges and the implied default
func TestXRefStreamIndex(t *testing.T) {
	payload := []byte{
		1, 0x00, 0x0A, 0x00, // object 7
		1, 0x00, 0x14, 0x00, // object 8
		1, 0x00, 0x1E, 0x00, // object 20
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "4 0 obj\n<< /Type /XRef /Size 21 /Index [7 2 20 1] /W [1 2 1] /Length %d >>\nstream\n", len(payload))
	buf.Write(payload)
	buf.WriteString("\nendstream\nendobj")

	section, err := parseXRefSection(buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("parseXRefSection failed: %v", err)
	}

	want := map[int]int64{7: 10, 8: 20, 20: 30}
	if len(section.entries) != len(want) {
		t.Fatalf("entry count = %d, want %d", len(section.entries), len(want))
	}
	for num, off := range want {
		if e := section.entries[num]; e.offset != off {
			t.Errorf("entry %d offset = %d, want %d", num, e.offset, off)
		}
	}
}

// TestXRefStreamZeroTypeWidth tests that a zero-width first field
// defaults every entry to uncompressed
func TestXRefStreamZeroTypeWidth(t *testing.T) {
	payload := []byte{
		0x00, 0x40, 0x00, // object 0: offset 64
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "4 0 obj\n<< /Type /XRef /Size 1 /W [0 2 1] /Length %d >>\nstream\n", len(payload))
	buf.Write(payload)
	buf.WriteString("\nendstream\nendobj")

	section, err := parseXRefSection(buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("parseXRefSection failed: %v", err)
	}
	if e := section.entries[0]; e.typ != xrefUncompressed || e.offset != 64 {
		t.Errorf("entry 0 = %+v, want uncompressed offset 64", e)
	}
}

// TestXRefStreamErrors tests malformed cross-reference streams
func TestXRefStreamErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not a stream", "4 0 obj 42 endobj"},
		{"wrong type", "4 0 obj\n<< /Type /Font /Length 0 >>\nstream\n\nendstream\nendobj"},
		{"no size", "4 0 obj\n<< /Type /XRef /W [1 2 1] /Length 0 >>\nstream\n\nendstream\nendobj"},
		{"missing W", "4 0 obj\n<< /Type /XRef /Size 1 /Length 0 >>\nstream\n\nendstream\nendobj"},
		{"short W", "4 0 obj\n<< /Type /XRef /Size 1 /W [1 2] /Length 0 >>\nstream\n\nendstream\nendobj"},
		{"zero width offset field", "4 0 obj\n<< /Type /XRef /Size 1 /W [1 0 1] /Length 0 >>\nstream\n\nendstream\nendobj"},
		{"odd index", "4 0 obj\n<< /Type /XRef /Size 1 /W [1 2 1] /Index [0] /Length 0 >>\nstream\n\nendstream\nendobj"},
		{"truncated payload", "4 0 obj\n<< /Type /XRef /Size 2 /W [1 2 1] /Length 4 >>\nstream\n\x01\x00\x10\x00\nendstream\nendobj"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseXRefSection([]byte(tt.data), 0); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// TestLoadXRefClassic tests walking a single classic section from
// startxref
func TestLoadXRefClassic(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	xrefOff := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 2\n0000000000 65535 f \n0000000009 00000 n \ntrailer\n<< /Size 2 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF", xrefOff)

	entries, trailer, err := loadXRef(buf.Bytes())
	if err != nil {
		t.Fatalf("loadXRef failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entry count = %d, want 2", len(entries))
	}
	if e := entries[1]; e.typ != xrefUncompressed || e.offset != 9 {
		t.Errorf("entry 1 = %+v, want offset 9", e)
	}
	if root, ok := trailer.GetRef("Root"); !ok || root.Num != 1 {
		t.Errorf("trailer /Root = %v, want 1 0 R", trailer.Get("Root"))
	}
}

// TestLoadXRefPrevChain tests that the newest section shadows older ones
func TestLoadXRefPrevChain(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	oldOff := buf.Len()
	buf.WriteString("xref\n1 1\n0000000111 00000 n \n3 1\n0000000333 00000 n \ntrailer\n<< /Size 4 /Root 9 0 R >>\n")
	newOff := buf.Len()
	fmt.Fprintf(&buf, "xref\n1 1\n0000000999 00000 n \ntrailer\n<< /Size 5 /Prev %d >>\nstartxref\n%d\n%%%%EOF", oldOff, newOff)

	entries, trailer, err := loadXRef(buf.Bytes())
	if err != nil {
		t.Fatalf("loadXRef failed: %v", err)
	}

	if e := entries[1]; e.offset != 999 {
		t.Errorf("entry 1 offset = %d, want 999 from the newest section", e.offset)
	}
	if e := entries[3]; e.offset != 333 {
		t.Errorf("entry 3 offset = %d, want 333 carried from the old section", e.offset)
	}
	if size, _ := trailer.GetInt("Size"); size != 5 {
		t.Errorf("trailer /Size = %d, want 5 from the newest trailer", size)
	}
	if root, ok := trailer.GetRef("Root"); !ok || root.Num != 9 {
		t.Errorf("trailer /Root = %v, want 9 0 R filled from the old trailer", trailer.Get("Root"))
	}
}

// TestLoadXRefLoop tests that a Prev cycle is detected
func TestLoadXRefLoop(t *testing.T) {
	data := "xref\n0 1\n0000000000 65535 f \ntrailer\n<< /Size 1 /Prev 0 >>\nstartxref\n0\n%%EOF"
	if _, _, err := loadXRef([]byte(data)); err == nil {
		t.Error("expected error for cross-reference loop")
	}
}

// TestLoadXRefHybrid tests that an /XRefStm shadows the classic section
// next to it
func TestLoadXRefHybrid(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")

	stmOff := buf.Len()
	payload := []byte{2, 0x00, 0x07, 0x00} // object 2: in object stream 7
	fmt.Fprintf(&buf, "5 0 obj\n<< /Type /XRef /Size 6 /Index [2 1] /W [1 2 1] /Length %d >>\nstream\n", len(payload))
	buf.Write(payload)
	buf.WriteString("\nendstream\nendobj\n")

	classicOff := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 3\n0000000000 65535 f \n0000000100 00000 n \n0000000200 00000 n \ntrailer\n<< /Size 6 /Root 1 0 R /XRefStm %d >>\nstartxref\n%d\n%%%%EOF", stmOff, classicOff)

	entries, trailer, err := loadXRef(buf.Bytes())
	if err != nil {
		t.Fatalf("loadXRef failed: %v", err)
	}

	if e := entries[2]; e.typ != xrefCompressed || e.streamNum != 7 {
		t.Errorf("entry 2 = %+v, want compressed in stream 7 from the hybrid stream", e)
	}
	if e := entries[1]; e.typ != xrefUncompressed || e.offset != 100 {
		t.Errorf("entry 1 = %+v, want offset 100 from the classic table", e)
	}
	if root, ok := trailer.GetRef("Root"); !ok || root.Num != 1 {
		t.Errorf("trailer /Root = %v, want 1 0 R", trailer.Get("Root"))
	}
}

// TestReadBigEndianInt tests byte folding for stream entry fields
func TestReadBigEndianInt(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected int64
	}{
		{"empty", nil, 0},
		{"one byte", []byte{0x7F}, 127},
		{"two bytes", []byte{0x01, 0x02}, 258},
		{"four bytes", []byte{0x00, 0x01, 0x00, 0x00}, 65536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := readBigEndianInt(tt.data); got != tt.expected {
				t.Errorf("readBigEndianInt(%v) = %d, want %d", tt.data, got, tt.expected)
			}
		})
	}
}
