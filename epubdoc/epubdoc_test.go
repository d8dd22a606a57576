package epubdoc

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tsawler/lectern/geom"
	"github.com/tsawler/lectern/source"
)

type zipEntry struct {
	name string
	body string
}

// epubBytes assembles an EPUB archive in memory.
func epubBytes(t *testing.T, entries []zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("create %s: %v", e.name, err)
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			t.Fatalf("write %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return buf.Bytes()
}

const containerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const lighthouseOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>The Lighthouse Logs</dc:title>
    <dc:creator>R. Alvarez</dc:creator>
    <dc:creator>M. Chen</dc:creator>
    <dc:description>Notes from a year of keeping the light.</dc:description>
    <dc:subject>Memoir</dc:subject>
    <dc:subject>Sea</dc:subject>
    <dc:publisher>Harbor Press</dc:publisher>
    <dc:date>2019-03-14</dc:date>
    <meta property="dcterms:modified">2020-06-01T12:00:00Z</meta>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="c1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="c3" href="text/ch3.xhtml" media-type="application/xhtml+xml"/>
    <item id="cover" href="cover.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="c1"/>
    <itemref idref="c2"/>
    <itemref idref="c3"/>
    <itemref idref="cover" linear="no"/>
  </spine>
</package>`

const lighthouseNav = `<html xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Contents</title></head>
<body>
<nav epub:type="toc">
<h1>Contents</h1>
<ol>
  <li><a href="ch1.xhtml">Arrival</a></li>
  <li><a href="ch2.xhtml">Stormwatch</a>
    <ol><li><a href="text/ch3.xhtml#log">The Long Night</a></li></ol>
  </li>
  <li><span>Appendices</span></li>
</ol>
</nav>
</body>
</html>`

const chapterOne = `<html><head><title>Arrival</title></head><body>
<h1>Arrival</h1>
<p>The tender dropped us at the jetty before dawn.</p>
<p>See the <a href="ch2.xhtml">storm log</a> for what came after.</p>
</body></html>`

const chapterTwo = `<html><head><title>Stormwatch</title></head><body>
<h1>Stormwatch</h1>
<p>Wind at forty knots by nightfall.</p>
<p>The society's <a href="https://example.org/light">records</a> hold the full readings.</p>
</body></html>`

const chapterThree = `<html><head><title>The Long Night</title></head><body>
<h1>The Long Night</h1>
<p>Back to <a href="../ch1.xhtml">the arrival</a>.</p>
</body></html>`

// lighthouseEntries is a three-chapter book with an EPUB 3 nav
// document and one non-linear spine entry.
func lighthouseEntries() []zipEntry {
	return []zipEntry{
		{"mimetype", "application/epub+zip"},
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", lighthouseOPF},
		{"OEBPS/nav.xhtml", lighthouseNav},
		{"OEBPS/ch1.xhtml", chapterOne},
		{"OEBPS/ch2.xhtml", chapterTwo},
		{"OEBPS/text/ch3.xhtml", chapterThree},
		{"OEBPS/cover.xhtml", "<html><body><p>Cover art</p></body></html>"},
	}
}

func openLighthouse(t *testing.T) *Document {
	t.Helper()
	doc, err := Open(epubBytes(t, lighthouseEntries()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return doc
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestOpenBasic verifies the spine becomes the page list, with
// non-linear entries excluded, and the package metadata mapped onto
// the common shape.
func TestOpenBasic(t *testing.T) {
	doc := openLighthouse(t)
	defer doc.Close()

	if got := doc.PageCount(); got != 3 {
		t.Fatalf("PageCount() = %d, want 3", got)
	}

	meta := doc.Metadata()
	if meta.Title != "The Lighthouse Logs" {
		t.Errorf("Title = %q, want %q", meta.Title, "The Lighthouse Logs")
	}
	if meta.Author != "R. Alvarez, M. Chen" {
		t.Errorf("Author = %q, want %q", meta.Author, "R. Alvarez, M. Chen")
	}
	if meta.Subject != "Notes from a year of keeping the light." {
		t.Errorf("Subject = %q", meta.Subject)
	}
	if meta.Keywords != "Memoir, Sea" {
		t.Errorf("Keywords = %q, want %q", meta.Keywords, "Memoir, Sea")
	}
	if meta.Producer != "Harbor Press" {
		t.Errorf("Producer = %q, want %q", meta.Producer, "Harbor Press")
	}
	wantCreated := time.Date(2019, 3, 14, 0, 0, 0, 0, time.UTC)
	if !meta.Created.Equal(wantCreated) {
		t.Errorf("Created = %v, want %v", meta.Created, wantCreated)
	}
	wantModified := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	if !meta.Modified.Equal(wantModified) {
		t.Errorf("Modified = %v, want %v", meta.Modified, wantModified)
	}
}

// TestOutlineNav reads the navigation tree from the EPUB 3 nav
// document, resolving entries to page indices.
func TestOutlineNav(t *testing.T) {
	doc := openLighthouse(t)
	defer doc.Close()

	want := []source.OutlineItem{
		{Title: "Arrival", Page: 1},
		{Title: "Stormwatch", Page: 2, Children: []source.OutlineItem{
			{Title: "The Long Night", Page: 3},
		}},
		{Title: "Appendices", Page: -1},
	}
	if diff := cmp.Diff(want, doc.Outline()); diff != "" {
		t.Errorf("Outline() mismatch (-want +got):\n%s", diff)
	}
}

// TestOutlineNCX falls back to the EPUB 2 NCX when no nav document is
// present.
func TestOutlineNCX(t *testing.T) {
	opf := strings.ReplaceAll(lighthouseOPF,
		`<item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>`,
		`<item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>`)
	ncx := `<?xml version="1.0"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="n1"><navLabel><text>Arrival</text></navLabel><content src="ch1.xhtml"/></navPoint>
    <navPoint id="n2"><navLabel><text>Stormwatch</text></navLabel><content src="ch2.xhtml"/>
      <navPoint id="n3"><navLabel><text>The Long Night</text></navLabel><content src="text/ch3.xhtml#log"/></navPoint>
    </navPoint>
  </navMap>
</ncx>`

	entries := []zipEntry{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", opf},
		{"OEBPS/toc.ncx", ncx},
		{"OEBPS/ch1.xhtml", chapterOne},
		{"OEBPS/ch2.xhtml", chapterTwo},
		{"OEBPS/text/ch3.xhtml", chapterThree},
		{"OEBPS/cover.xhtml", "<html><body><p>Cover art</p></body></html>"},
	}
	doc, err := Open(epubBytes(t, entries))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer doc.Close()

	want := []source.OutlineItem{
		{Title: "Arrival", Page: 1},
		{Title: "Stormwatch", Page: 2, Children: []source.OutlineItem{
			{Title: "The Long Night", Page: 3},
		}},
	}
	if diff := cmp.Diff(want, doc.Outline()); diff != "" {
		t.Errorf("Outline() mismatch (-want +got):\n%s", diff)
	}
}

// TestOutlineSpineFallback generates a flat outline from chapter
// titles when the book carries no navigation at all.
func TestOutlineSpineFallback(t *testing.T) {
	opf := strings.ReplaceAll(lighthouseOPF,
		`<item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>`, "")

	entries := []zipEntry{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", opf},
		{"OEBPS/ch1.xhtml", chapterOne},
		{"OEBPS/ch2.xhtml", chapterTwo},
		{"OEBPS/text/ch3.xhtml", chapterThree},
		{"OEBPS/cover.xhtml", "<html><body><p>Cover art</p></body></html>"},
	}
	doc, err := Open(epubBytes(t, entries))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer doc.Close()

	want := []source.OutlineItem{
		{Title: "Arrival", Page: 1},
		{Title: "Stormwatch", Page: 2},
		{Title: "The Long Night", Page: 3},
	}
	if diff := cmp.Diff(want, doc.Outline()); diff != "" {
		t.Errorf("Outline() mismatch (-want +got):\n%s", diff)
	}
}

// TestPageGeometry checks the fixed synthetic page box.
func TestPageGeometry(t *testing.T) {
	doc := openLighthouse(t)
	defer doc.Close()

	p, err := doc.Page(context.Background(), 1)
	if err != nil {
		t.Fatalf("Page(1) error = %v", err)
	}
	defer p.Release()

	if got := p.Size(); got.W != 612 || got.H != 792 {
		t.Errorf("Size() = %v, want 612x792", got)
	}
	if got := p.Rotate(); got != geom.Rotate0 {
		t.Errorf("Rotate() = %v, want Rotate0", got)
	}
}

// TestPageText lays the first chapter out and checks span content,
// sizes and baseline positions.
func TestPageText(t *testing.T) {
	doc := openLighthouse(t)
	defer doc.Close()

	p, err := doc.Page(context.Background(), 1)
	if err != nil {
		t.Fatalf("Page(1) error = %v", err)
	}
	defer p.Release()

	spans, err := p.Text(context.Background())
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if len(spans) != 3 {
		t.Fatalf("Text() returned %d spans, want 3", len(spans))
	}

	if spans[0].Text != "Arrival" || spans[0].FontSize != 24 {
		t.Errorf("spans[0] = %q size %v, want %q size 24", spans[0].Text, spans[0].FontSize, "Arrival")
	}
	if got := spans[0].M.Transform(geom.Point{}); !near(got.X, 72) || !near(got.Y, 96) {
		t.Errorf("spans[0] origin = %v, want (72, 96)", got)
	}

	if spans[1].Text != "The tender dropped us at the jetty before dawn." {
		t.Errorf("spans[1].Text = %q", spans[1].Text)
	}
	headingAdvance := 24*1.4 + 12.0
	if got := spans[1].M.Transform(geom.Point{}); !near(got.Y, 72+headingAdvance+12) {
		t.Errorf("spans[1] baseline = %v, want %v", got.Y, 72+headingAdvance+12)
	}

	// The link text is part of the flowed paragraph.
	if spans[2].Text != "See the storm log for what came after." {
		t.Errorf("spans[2].Text = %q", spans[2].Text)
	}
	if spans[2].FontSize != 12 {
		t.Errorf("spans[2].FontSize = %v, want 12", spans[2].FontSize)
	}
}

// TestPageTextWrapping wraps a long paragraph at the body width.
func TestPageTextWrapping(t *testing.T) {
	body := "<html><body><p>" + strings.TrimSpace(strings.Repeat("abcdefghij ", 20)) + "</p></body></html>"
	entries := []zipEntry{
		{"META-INF/container.xml", `<container><rootfiles><rootfile full-path="content.opf" media-type="application/oebps-package+xml"/></rootfiles></container>`},
		{"content.opf", `<package version="3.0"><metadata><title>Solo</title></metadata>
<manifest><item id="c1" href="ch1.xhtml" media-type="application/xhtml+xml"/></manifest>
<spine><itemref idref="c1"/></spine></package>`},
		{"ch1.xhtml", body},
	}
	doc, err := Open(epubBytes(t, entries))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer doc.Close()

	p, err := doc.Page(context.Background(), 1)
	if err != nil {
		t.Fatalf("Page(1) error = %v", err)
	}
	spans, err := p.Text(context.Background())
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}

	// 78 characters fit a 12pt body line; ten-character words pack
	// seven to a line.
	if len(spans) != 3 {
		t.Fatalf("Text() returned %d spans, want 3", len(spans))
	}
	wantLens := []int{76, 76, 65}
	for i, s := range spans {
		if len(s.Text) != wantLens[i] {
			t.Errorf("spans[%d] length = %d, want %d", i, len(s.Text), wantLens[i])
		}
		wantY := 84 + float64(i)*12*1.4
		if got := s.M.Transform(geom.Point{}); !near(got.Y, wantY) {
			t.Errorf("spans[%d] baseline = %v, want %v", i, got.Y, wantY)
		}
	}
}

// TestNativeAnnotationsLinks surfaces chapter hyperlinks: internal
// ones resolve to page indices, external ones keep their URI.
func TestNativeAnnotationsLinks(t *testing.T) {
	doc := openLighthouse(t)
	defer doc.Close()
	ctx := context.Background()

	t.Run("internal", func(t *testing.T) {
		p, err := doc.Page(ctx, 1)
		if err != nil {
			t.Fatalf("Page(1) error = %v", err)
		}
		anns, err := p.NativeAnnotations(ctx)
		if err != nil {
			t.Fatalf("NativeAnnotations() error = %v", err)
		}
		if len(anns) != 1 {
			t.Fatalf("got %d annotations, want 1", len(anns))
		}
		a := anns[0]
		if a.Subtype != "Link" || a.Contents != "storm log" {
			t.Errorf("annotation = %+v, want Link %q", a, "storm log")
		}
		if a.DestPage != 2 || a.URI != "" {
			t.Errorf("DestPage = %d URI = %q, want 2 and empty", a.DestPage, a.URI)
		}
		blockTop := 72 + (24*1.4 + 12.0) + (12*1.4 + 6.0)
		if !near(a.Rect.X, 72) || !near(a.Rect.Y, blockTop) || !near(a.Rect.W, 468) || !near(a.Rect.H, 12*1.4) {
			t.Errorf("Rect = %+v, want {72 %v 468 %v}", a.Rect, blockTop, 12*1.4)
		}
	})

	t.Run("external", func(t *testing.T) {
		p, err := doc.Page(ctx, 2)
		if err != nil {
			t.Fatalf("Page(2) error = %v", err)
		}
		anns, err := p.NativeAnnotations(ctx)
		if err != nil {
			t.Fatalf("NativeAnnotations() error = %v", err)
		}
		if len(anns) != 1 {
			t.Fatalf("got %d annotations, want 1", len(anns))
		}
		a := anns[0]
		if a.URI != "https://example.org/light" || a.DestPage != -1 {
			t.Errorf("URI = %q DestPage = %d, want external link", a.URI, a.DestPage)
		}
	})

	t.Run("relative path up", func(t *testing.T) {
		p, err := doc.Page(ctx, 3)
		if err != nil {
			t.Fatalf("Page(3) error = %v", err)
		}
		anns, err := p.NativeAnnotations(ctx)
		if err != nil {
			t.Fatalf("NativeAnnotations() error = %v", err)
		}
		if len(anns) != 1 {
			t.Fatalf("got %d annotations, want 1", len(anns))
		}
		if anns[0].DestPage != 1 {
			t.Errorf("DestPage = %d, want 1", anns[0].DestPage)
		}
	})
}

// TestRenderBase paints the page background; EPUB has no rasterizer.
func TestRenderBase(t *testing.T) {
	doc := openLighthouse(t)
	defer doc.Close()

	p, err := doc.Page(context.Background(), 1)
	if err != nil {
		t.Fatalf("Page(1) error = %v", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, 40, 40))
	vp := geom.PageViewport(p.Size(), 1, geom.Rotate0)
	if err := p.Render(context.Background(), dst, vp); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if c := dst.RGBAAt(5, 5); c.R != 255 || c.G != 255 || c.B != 255 {
		t.Errorf("pixel (5,5) = %v, want white", c)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Render(cancelled, dst, vp); !errors.Is(err, context.Canceled) {
		t.Errorf("Render(cancelled) error = %v, want context.Canceled", err)
	}
}

// TestDRM rejects protected books but tolerates font obfuscation.
func TestDRM(t *testing.T) {
	t.Run("rights file", func(t *testing.T) {
		entries := append(lighthouseEntries(), zipEntry{"META-INF/rights.xml", "<rights/>"})
		_, err := Open(epubBytes(t, entries))
		if !errors.Is(err, ErrDRMProtected) {
			t.Fatalf("Open() error = %v, want ErrDRMProtected", err)
		}
		if !errors.Is(err, source.ErrUnsupported) {
			t.Errorf("error does not unwrap to ErrUnsupported")
		}
	})

	t.Run("encrypted content", func(t *testing.T) {
		enc := `<encryption>
  <EncryptedData>
    <EncryptionMethod Algorithm="http://www.w3.org/2001/04/xmlenc#aes128-cbc"/>
    <CipherData><CipherReference URI="OEBPS/ch1.xhtml"/></CipherData>
  </EncryptedData>
</encryption>`
		entries := append(lighthouseEntries(), zipEntry{"META-INF/encryption.xml", enc})
		if _, err := Open(epubBytes(t, entries)); !errors.Is(err, ErrDRMProtected) {
			t.Fatalf("Open() error = %v, want ErrDRMProtected", err)
		}
	})

	t.Run("font obfuscation only", func(t *testing.T) {
		enc := `<encryption>
  <EncryptedData>
    <EncryptionMethod Algorithm="http://www.idpf.org/2008/embedding"/>
    <CipherData><CipherReference URI="OEBPS/fonts/serif.otf"/></CipherData>
  </EncryptedData>
</encryption>`
		entries := append(lighthouseEntries(), zipEntry{"META-INF/encryption.xml", enc})
		doc, err := Open(epubBytes(t, entries))
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer doc.Close()
		if got := doc.PageCount(); got != 3 {
			t.Errorf("PageCount() = %d, want 3", got)
		}
	})
}

// TestOpenErrors maps structural failures to the corruption error.
func TestOpenErrors(t *testing.T) {
	badSpineOPF := strings.Replace(lighthouseOPF, `<itemref idref="c1"/>`, "", 1)
	badSpineOPF = strings.Replace(badSpineOPF, `<itemref idref="c2"/>`, "", 1)
	badSpineOPF = strings.Replace(badSpineOPF, `<itemref idref="c3"/>`, "", 1)
	badSpineOPF = strings.Replace(badSpineOPF, `<itemref idref="cover" linear="no"/>`, "", 1)

	tests := []struct {
		name    string
		entries []zipEntry
		raw     []byte
	}{
		{name: "not an archive", raw: []byte("this is not a zip file")},
		{name: "missing container", entries: []zipEntry{{"mimetype", "application/epub+zip"}}},
		{name: "missing package", entries: []zipEntry{{"META-INF/container.xml", containerXML}}},
		{name: "malformed package", entries: []zipEntry{
			{"META-INF/container.xml", containerXML},
			{"OEBPS/content.opf", "<package><manifest"},
		}},
		{name: "empty spine", entries: []zipEntry{
			{"META-INF/container.xml", containerXML},
			{"OEBPS/content.opf", badSpineOPF},
		}},
		{name: "no readable chapters", entries: []zipEntry{
			{"META-INF/container.xml", containerXML},
			{"OEBPS/content.opf", lighthouseOPF},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.raw
			if data == nil {
				data = epubBytes(t, tt.entries)
			}
			_, err := Open(data)
			if !errors.Is(err, source.ErrCorrupt) {
				t.Errorf("Open() error = %v, want ErrCorrupt", err)
			}
		})
	}
}

// TestPageErrors covers index bounds, cancellation and use after
// Close.
func TestPageErrors(t *testing.T) {
	doc := openLighthouse(t)
	ctx := context.Background()

	for _, idx := range []int{-1, 0, 4} {
		_, err := doc.Page(ctx, idx)
		var pe *source.PageError
		if !errors.As(err, &pe) || pe.Op != "load" {
			t.Errorf("Page(%d) error = %v, want load PageError", idx, err)
		}
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := doc.Page(cancelled, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Page(cancelled) error = %v, want context.Canceled", err)
	}

	doc.Close()
	if _, err := doc.Page(ctx, 1); err == nil {
		t.Error("Page() after Close succeeded, want error")
	}
}

// TestParseDate reads the loose date forms package metadata uses.
func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2020-06-01T12:00:00Z", time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)},
		{"2019-03-14", time.Date(2019, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"2019-03", time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2019", time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"  2019  ", time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"when the tide turned", time.Time{}},
		{"", time.Time{}},
	}
	for _, tt := range tests {
		if got := parseDate(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
