package format

import (
	"archive/zip"
	"bytes"
	"testing"
)

func TestFormat_String(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{PDF, "PDF"},
		{EPUB, "EPUB"},
		{CBZ, "CBZ"},
		{Image, "Image"},
		{Unknown, "Unknown"},
		{Format(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.format.String(); got != tt.want {
			t.Errorf("Format(%d).String() = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestFormat_Extension(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{PDF, ".pdf"},
		{EPUB, ".epub"},
		{CBZ, ".cbz"},
		{Image, ".png"},
		{Unknown, ""},
	}

	for _, tt := range tests {
		if got := tt.format.Extension(); got != tt.want {
			t.Errorf("Format(%d).Extension() = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
	}{
		{"document.pdf", PDF},
		{"document.PDF", PDF},
		{"document.Pdf", PDF},
		{"book.epub", EPUB},
		{"book.EPUB", EPUB},
		{"comic.cbz", CBZ},
		{"comic.CBZ", CBZ},
		{"scan.png", Image},
		{"scan.jpg", Image},
		{"scan.jpeg", Image},
		{"scan.gif", Image},
		{"scan.bmp", Image},
		{"scan.tif", Image},
		{"scan.tiff", Image},
		{"scan.webp", Image},
		{"document.txt", Unknown},
		{"document", Unknown},
		{"", Unknown},
		{"/path/to/file.pdf", PDF},
		{"/path/to/file.epub", EPUB},
		{"/path/to/file.cbz", CBZ},
		{"/path/to/file.png", Image},
	}

	for _, tt := range tests {
		if got := Detect(tt.filename); got != tt.want {
			t.Errorf("Detect(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}

func TestDetectFromMagic(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{
			name: "PDF magic bytes",
			data: []byte("%PDF-1.4"),
			want: PDF,
		},
		{
			name: "PDF minimal",
			data: []byte("%PDF"),
			want: PDF,
		},
		{
			name: "ZIP magic bytes (EPUB/CBZ)",
			data: []byte{0x50, 0x4B, 0x03, 0x04, 0x00, 0x00, 0x00, 0x00},
			want: Unknown, // ZIP needs further inspection
		},
		{
			name: "PNG",
			data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0DIHDR"),
			want: Image,
		},
		{
			name: "JPEG",
			data: []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46, 0x00, 0x01},
			want: Image,
		},
		{
			name: "GIF",
			data: []byte("GIF89a\x01\x00\x01\x00\x00\x00"),
			want: Image,
		},
		{
			name: "BMP",
			data: []byte("BM\x36\x00\x00\x00\x00\x00\x00\x00\x36\x00"),
			want: Image,
		},
		{
			name: "TIFF little endian",
			data: []byte("II*\x00\x08\x00\x00\x00\x00\x00\x00\x00"),
			want: Image,
		},
		{
			name: "TIFF big endian",
			data: []byte("MM\x00*\x00\x00\x00\x08\x00\x00\x00\x00"),
			want: Image,
		},
		{
			name: "WebP",
			data: []byte("RIFF\x24\x00\x00\x00WEBPVP8 "),
			want: Image,
		},
		{
			name: "empty data",
			data: []byte{},
			want: Unknown,
		},
		{
			name: "short data",
			data: []byte{0x50, 0x4B},
			want: Unknown,
		},
		{
			name: "random data",
			data: []byte{0x01, 0x02, 0x03, 0x04, 0x05},
			want: Unknown,
		},
		{
			name: "text file",
			data: []byte("Hello, World! This is plain text padding."),
			want: Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFromMagic(tt.data); got != tt.want {
				t.Errorf("DetectFromMagic() = %v, want %v", got, tt.want)
			}
		})
	}
}

// buildZIP assembles an in-memory ZIP archive from name/content pairs.
func buildZIP(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create %q: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %q: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestDetectBytes_PDF(t *testing.T) {
	data := []byte("%PDF-1.4\n%%EOF")
	if got := DetectBytes(data); got != PDF {
		t.Errorf("DetectBytes() = %v, want PDF", got)
	}
}

func TestDetectBytes_EPUB(t *testing.T) {
	data := buildZIP(t, map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": "<container/>",
		"OEBPS/content.opf":      "<package/>",
	})
	if got := DetectBytes(data); got != EPUB {
		t.Errorf("DetectBytes() = %v, want EPUB", got)
	}
}

func TestDetectBytes_EPUBWithoutMimetype(t *testing.T) {
	data := buildZIP(t, map[string]string{
		"META-INF/container.xml": "<container/>",
		"OEBPS/content.opf":      "<package/>",
	})
	if got := DetectBytes(data); got != EPUB {
		t.Errorf("DetectBytes() = %v, want EPUB", got)
	}
}

func TestDetectBytes_CBZ(t *testing.T) {
	data := buildZIP(t, map[string]string{
		"page001.png": "fake image bytes",
		"page002.jpg": "fake image bytes",
	})
	if got := DetectBytes(data); got != CBZ {
		t.Errorf("DetectBytes() = %v, want CBZ", got)
	}
}

func TestDetectBytes_ZIPWithoutImages(t *testing.T) {
	data := buildZIP(t, map[string]string{
		"readme.txt": "not a document",
	})
	if got := DetectBytes(data); got != Unknown {
		t.Errorf("DetectBytes() = %v, want Unknown", got)
	}
}

func TestDetectBytes_Image(t *testing.T) {
	data := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0DIHDR padding")
	if got := DetectBytes(data); got != Image {
		t.Errorf("DetectBytes() = %v, want Image", got)
	}
}

func TestDetectBytes_Unknown(t *testing.T) {
	data := []byte("Hello, World! This is plain text.")
	if got := DetectBytes(data); got != Unknown {
		t.Errorf("DetectBytes() = %v, want Unknown", got)
	}
}

func TestDetectBytes_Truncated(t *testing.T) {
	// A ZIP header with no valid directory behind it.
	data := []byte{0x50, 0x4B, 0x03, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	if got := DetectBytes(data); got != Unknown {
		t.Errorf("DetectBytes() = %v, want Unknown", got)
	}
}
