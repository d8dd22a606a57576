// Package format provides file format detection for the lectern engine.
package format

import (
	"archive/zip"
	"bytes"
	"io"
	"path/filepath"
	"strings"
)

// Format represents a supported document format.
type Format int

const (
	// Unknown indicates an unrecognized format.
	Unknown Format = iota
	// PDF indicates a PDF document.
	PDF
	// EPUB indicates an EPUB publication.
	EPUB
	// CBZ indicates a comic book archive (ZIP of page images).
	CBZ
	// Image indicates a single raster image (PNG, JPEG, GIF, BMP, TIFF, WebP).
	Image
)

// String returns the string representation of the format.
func (f Format) String() string {
	switch f {
	case PDF:
		return "PDF"
	case EPUB:
		return "EPUB"
	case CBZ:
		return "CBZ"
	case Image:
		return "Image"
	default:
		return "Unknown"
	}
}

// Extension returns the typical file extension for the format.
func (f Format) Extension() string {
	switch f {
	case PDF:
		return ".pdf"
	case EPUB:
		return ".epub"
	case CBZ:
		return ".cbz"
	case Image:
		return ".png"
	default:
		return ""
	}
}

// imageExts covers the raster formats the image backend can decode.
var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// Detect determines file format from filename extension.
func Detect(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".pdf":
		return PDF
	case ext == ".epub":
		return EPUB
	case ext == ".cbz":
		return CBZ
	case imageExts[ext]:
		return Image
	default:
		return Unknown
	}
}

// DetectFromMagic checks file magic bytes to determine format.
// This provides more reliable detection than extension-based detection.
// Returns Unknown for ZIP archives, because EPUB and CBZ can only be told
// apart by inspecting the archive contents; use DetectBytes for that.
func DetectFromMagic(data []byte) Format {
	if len(data) < 4 {
		return Unknown
	}

	// PDF magic: %PDF
	if data[0] == '%' && data[1] == 'P' && data[2] == 'D' && data[3] == 'F' {
		return PDF
	}

	// ZIP magic (EPUB and CBZ are ZIP archives): PK\x03\x04
	if isZIPMagic(data) {
		return Unknown
	}

	if detectImageMagic(data) {
		return Image
	}

	return Unknown
}

func isZIPMagic(data []byte) bool {
	return len(data) >= 4 && data[0] == 0x50 && data[1] == 0x4B && data[2] == 0x03 && data[3] == 0x04
}

// detectImageMagic checks for the signatures of the supported raster formats.
func detectImageMagic(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return true
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return true // JPEG
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return true
	case bytes.HasPrefix(data, []byte("BM")):
		return true // BMP
	case bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")):
		return true // TIFF
	case bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return true
	}
	return false
}

// DetectBytes inspects the content to determine format. This is more
// reliable than extension-based detection and can distinguish between
// the ZIP-based formats (EPUB, CBZ).
func DetectBytes(data []byte) Format {
	f, err := DetectFromReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Unknown
	}
	return f
}

// DetectFromReader inspects the content to determine format.
func DetectFromReader(r io.ReaderAt, size int64) (Format, error) {
	magic := make([]byte, 16)
	n, err := r.ReadAt(magic, 0)
	if err != nil && err != io.EOF {
		return Unknown, err
	}
	magic = magic[:n]

	if len(magic) >= 4 && magic[0] == '%' && magic[1] == 'P' && magic[2] == 'D' && magic[3] == 'F' {
		return PDF, nil
	}

	if isZIPMagic(magic) {
		return detectZIPFormat(r, size)
	}

	if detectImageMagic(magic) {
		return Image, nil
	}

	return Unknown, nil
}

// detectZIPFormat inspects a ZIP archive to determine whether it is an
// EPUB or a comic book archive.
func detectZIPFormat(r io.ReaderAt, size int64) (Format, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return Unknown, err
	}

	// EPUB carries a mimetype entry, conventionally stored first.
	for _, f := range zr.File {
		if f.Name == "mimetype" {
			rc, err := f.Open()
			if err == nil {
				data := make([]byte, 256)
				n, _ := rc.Read(data)
				rc.Close()
				if strings.Contains(string(data[:n]), "application/epub+zip") {
					return EPUB, nil
				}
			}
		}
	}

	// Some producers omit the mimetype entry but keep the OCF layout.
	hasImages := false
	for _, f := range zr.File {
		if f.Name == "META-INF/container.xml" {
			return EPUB, nil
		}
		if imageExts[strings.ToLower(filepath.Ext(f.Name))] {
			hasImages = true
		}
	}

	// A ZIP of page images is a comic book archive regardless of how
	// the file is named.
	if hasImages {
		return CBZ, nil
	}

	return Unknown, nil
}
