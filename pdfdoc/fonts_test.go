package pdfdoc

import (
	"fmt"
	"testing"
)

// TestParseCMapBFChar tests single-code mappings
func TestParseCMapBFChar(t *testing.T) {
	data := `
/CIDInit /ProcSet findresource begin
12 dict begin
begincmap
2 beginbfchar
<41> <0058>
<0042> <0059>
endbfchar
endcmap
`
	c := parseCMap([]byte(data))
	if c == nil {
		t.Fatal("parseCMap returned nil")
	}

	s, n, ok := c.lookup([]byte{0x41})
	if !ok || s != "X" || n != 1 {
		t.Errorf("lookup(41) = %q %d %v, want X 1 true", s, n, ok)
	}
	s, n, ok = c.lookup([]byte{0x00, 0x42})
	if !ok || s != "Y" || n != 2 {
		t.Errorf("lookup(0042) = %q %d %v, want Y 2 true", s, n, ok)
	}
	if _, _, ok := c.lookup([]byte{0x7F}); ok {
		t.Error("lookup(7F) reported ok for an unmapped code")
	}
}

// TestParseCMapBFRangeIncrement tests the base-value range form
func TestParseCMapBFRangeIncrement(t *testing.T) {
	data := `
1 beginbfrange
<41> <43> <0061>
endbfrange
`
	c := parseCMap([]byte(data))
	if c == nil {
		t.Fatal("parseCMap returned nil")
	}

	for code, want := range map[byte]string{0x41: "a", 0x42: "b", 0x43: "c"} {
		s, _, ok := c.lookup([]byte{code})
		if !ok || s != want {
			t.Errorf("lookup(%02X) = %q %v, want %q", code, s, ok, want)
		}
	}
	if _, _, ok := c.lookup([]byte{0x44}); ok {
		t.Error("lookup(44) reported ok past the range end")
	}
}

// TestParseCMapBFRangeArray tests the explicit array range form
func TestParseCMapBFRangeArray(t *testing.T) {
	data := `
1 beginbfrange
<0001> <0003> [<0058> <0059> <005A>]
endbfrange
`
	c := parseCMap([]byte(data))
	if c == nil {
		t.Fatal("parseCMap returned nil")
	}

	for i, want := range []string{"X", "Y", "Z"} {
		s, n, ok := c.lookup([]byte{0x00, byte(i + 1)})
		if !ok || s != want || n != 2 {
			t.Errorf("lookup(%04X) = %q %d %v, want %q 2 true", i+1, s, n, ok, want)
		}
	}
}

// TestParseCMapSurrogates tests mappings outside the basic plane
func TestParseCMapSurrogates(t *testing.T) {
	// 1F600 as a UTF-16BE surrogate pair D83D DE00.
	data := `
1 beginbfchar
<01> <D83DDE00>
endbfchar
`
	c := parseCMap([]byte(data))
	if c == nil {
		t.Fatal("parseCMap returned nil")
	}
	s, _, ok := c.lookup([]byte{0x01})
	if !ok || s != "\U0001F600" {
		t.Errorf("lookup(01) = %q %v, want the emoji", s, ok)
	}
}

// TestParseCMapEmpty tests that a stream with no mappings yields nil
func TestParseCMapEmpty(t *testing.T) {
	if c := parseCMap([]byte("/Nothing here 1 0 obj")); c != nil {
		t.Errorf("parseCMap = %+v, want nil", c)
	}
}

// TestFontDecode tests byte-to-text mapping across font flavors
func TestFontDecode(t *testing.T) {
	tests := []struct {
		name     string
		font     *fontInfo
		input    []byte
		expected string
	}{
		{
			"simple winansi",
			&fontInfo{},
			[]byte{'H', 'i', 0xE9},
			"Hié",
		},
		{
			"simple winansi smart quote",
			&fontInfo{encoding: "WinAnsiEncoding"},
			[]byte{0x92},
			"’",
		},
		{
			"macroman bullet",
			&fontInfo{encoding: "MacRomanEncoding"},
			[]byte{0xA5},
			"•",
		},
		{
			"composite utf16 fallback",
			&fontInfo{twoByte: true},
			[]byte{0x00, 'H', 0x00, 'i'},
			"Hi",
		},
		{
			"tounicode wins",
			&fontInfo{toUnicode: &cmap{single: map[string]string{"H": "X"}}},
			[]byte("Hi"),
			"Xi",
		},
		{
			"composite code without mapping",
			&fontInfo{twoByte: true, toUnicode: &cmap{single: map[string]string{"\x00\x01": "Q"}}},
			[]byte{0x00, 0x01, 0x00, 0x41},
			"QA",
		},
		{
			"empty input",
			&fontInfo{},
			nil,
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.font.decode(tt.input); got != tt.expected {
				t.Errorf("decode(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

// TestFontAdvance tests glyph advance accumulation
func TestFontAdvance(t *testing.T) {
	t.Run("simple widths", func(t *testing.T) {
		f := &fontInfo{firstChar: 65, widths: []float64{500, 0, 700}, missing: 250}
		// A=500, B has no width so missing, C=700, Z outside so missing.
		if got := f.advance([]byte("ABCZ")); got != (500+250+700+250)/1000.0 {
			t.Errorf("advance = %v, want 1.7", got)
		}
	})

	t.Run("cid widths", func(t *testing.T) {
		f := &fontInfo{twoByte: true, cidWidths: map[int]float64{0x48: 600}, cidDefault: 1000}
		// 0048 mapped, 0049 defaulted.
		if got := f.advance([]byte{0x00, 0x48, 0x00, 0x49}); got != 1.6 {
			t.Errorf("advance = %v, want 1.6", got)
		}
	})

	t.Run("cid odd trailing byte", func(t *testing.T) {
		f := &fontInfo{twoByte: true, cidDefault: 800}
		if got := f.advance([]byte{0x00}); got != 0.8 {
			t.Errorf("advance = %v, want 0.8", got)
		}
	})

	t.Run("default font", func(t *testing.T) {
		if got := defaultFont.advance([]byte("ab")); got != 1.0 {
			t.Errorf("advance = %v, want 1.0 from the half-em fallback", got)
		}
	})
}

// TestCodeUnits tests code counting for both stepping modes
func TestCodeUnits(t *testing.T) {
	simple := &fontInfo{}
	composite := &fontInfo{twoByte: true}

	if n := simple.codeUnits([]byte("abc")); n != 3 {
		t.Errorf("simple codeUnits = %d, want 3", n)
	}
	if n := composite.codeUnits([]byte{1, 2, 3, 4}); n != 2 {
		t.Errorf("composite codeUnits = %d, want 2", n)
	}
	if n := composite.codeUnits([]byte{1, 2, 3}); n != 2 {
		t.Errorf("composite codeUnits with odd length = %d, want 2", n)
	}
}

// TestLoadFont tests building font info from document objects
func TestLoadFont(t *testing.T) {
	toUnicode := "1 beginbfchar\n<41> <0061>\nendbfchar\n"
	b := newPDFBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 100 100] >>")
	b.add(3, "<< /Type /Page /Parent 2 0 R >>")
	b.add(4, "<< /Type /Font /Subtype /TrueType /FirstChar 65 /Widths [500 600] "+
		"/Encoding /WinAnsiEncoding /FontDescriptor << /MissingWidth 333 >> /ToUnicode 7 0 R >>")
	b.add(5, "<< /Type /Font /Subtype /Type0 /Encoding /Identity-H /DescendantFonts [6 0 R] >>")
	b.add(6, "<< /Type /Font /Subtype /CIDFontType2 /DW 800 /W [72 [600 700] 100 102 500] >>")
	b.addStream(7, "", []byte(toUnicode))

	doc, err := Open(b.bytes(1), "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer doc.Close()

	t.Run("simple font", func(t *testing.T) {
		f := doc.loadFont(Ref{Num: 4})
		if f.subtype != "TrueType" || f.twoByte {
			t.Errorf("font = subtype %q twoByte %v, want TrueType false", f.subtype, f.twoByte)
		}
		if f.firstChar != 65 || len(f.widths) != 2 {
			t.Errorf("firstChar %d widths %v, want 65 and two entries", f.firstChar, f.widths)
		}
		if f.missing != 333 {
			t.Errorf("missing = %v, want 333 from the descriptor", f.missing)
		}
		if f.encoding != "WinAnsiEncoding" {
			t.Errorf("encoding = %q, want WinAnsiEncoding", f.encoding)
		}
		if got := f.decode([]byte{0x41}); got != "a" {
			t.Errorf("decode(A) = %q, want a through ToUnicode", got)
		}
	})

	t.Run("composite font", func(t *testing.T) {
		f := doc.loadFont(Ref{Num: 5})
		if !f.twoByte {
			t.Fatal("Type0 font did not step two bytes")
		}
		if f.cidDefault != 800 {
			t.Errorf("cidDefault = %v, want 800", f.cidDefault)
		}
		want := map[int]float64{72: 600, 73: 700, 100: 500, 101: 500, 102: 500}
		for cid, w := range want {
			if got := f.cidWidths[cid]; got != w {
				t.Errorf("cidWidths[%d] = %v, want %v", cid, got, w)
			}
		}
	})

	t.Run("missing resource", func(t *testing.T) {
		if f := doc.loadFont(Ref{Num: 99}); f != defaultFont {
			t.Errorf("loadFont(99 0 R) = %+v, want the shared default", f)
		}
	})
}

// TestLoadFontEncodingDict tests /Encoding given as a dictionary
func TestLoadFontEncodingDict(t *testing.T) {
	b := newPDFBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 100 100] >>")
	b.add(3, "<< /Type /Page /Parent 2 0 R >>")
	b.add(4, "<< /Type /Font /Subtype /Type1 /Encoding << /BaseEncoding /MacRomanEncoding >> >>")

	doc, err := Open(b.bytes(1), "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer doc.Close()

	f := doc.loadFont(Ref{Num: 4})
	if f.encoding != "MacRomanEncoding" {
		t.Errorf("encoding = %q, want MacRomanEncoding from /BaseEncoding", f.encoding)
	}
}

func BenchmarkCMapLookup(b *testing.B) {
	data := fmt.Sprintf("1 beginbfrange\n<0000> <%04X> <0041>\nendbfrange\n", 0x2000)
	c := parseCMap([]byte(data))
	if c == nil {
		b.Fatal("parseCMap returned nil")
	}
	code := []byte{0x10, 0x42}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.lookup(code)
	}
}
