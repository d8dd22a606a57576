// Package imagedoc serves raster images as documents. A single image
// becomes a one-page document; a ZIP of images (a comic book archive)
// becomes one page per entry, ordered the way people number files, so
// "page2" comes before "page10". One image pixel maps to one content
// point at zoom 1.
//
// PNG, JPEG and GIF decode through the standard library; BMP, TIFF and
// WebP through golang.org/x/image.
package imagedoc

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/tsawler/lectern/geom"
	"github.com/tsawler/lectern/source"
)

// Recognizer turns an encoded page image into text. Image pages carry
// no embedded text, so Text returns nothing unless a recognizer is
// attached. *ocr.Client satisfies it.
type Recognizer interface {
	RecognizeImage(imageData []byte) (string, error)
}

// entry is one page image waiting to be decoded.
type entry struct {
	name string
	open func() (io.ReadCloser, error)
}

// Document is an open image-backed document.
type Document struct {
	entries []entry
	title   string
	closer  io.Closer // archive file handle, when opened from disk

	recognizer Recognizer

	mu     sync.Mutex
	dims   map[int]geom.Size
	closed bool
}

// pageExts covers the raster formats the registered decoders handle.
var pageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// Open builds a document from bytes holding either a ZIP of page images
// or a single raster image.
func Open(data []byte) (*Document, error) {
	if len(data) >= 4 && data[0] == 'P' && data[1] == 'K' && data[2] == 3 && data[3] == 4 {
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, &source.CorruptError{Path: "archive", Err: err}
		}
		return fromArchive(zr, nil)
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("imagedoc: %v: %w", err, source.ErrUnsupported)
	}
	doc := newDocument()
	doc.entries = []entry{{
		name: "image",
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}}
	return doc, nil
}

// OpenArchive opens a comic book archive (ZIP of page images) from a
// file path.
func OpenArchive(filename string) (*Document, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return nil, &source.CorruptError{Path: filename, Err: err}
		}
		return nil, fmt.Errorf("imagedoc: open %s: %w", filename, err)
	}
	doc, err := fromArchive(&zr.Reader, zr)
	if err != nil {
		zr.Close()
		return nil, err
	}
	return doc, nil
}

// OpenFiles builds a document whose pages are the given image files, one
// page per path, in the order given.
func OpenFiles(paths ...string) (*Document, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("imagedoc: no pages: %w", source.ErrUnsupported)
	}
	doc := newDocument()
	for _, p := range paths {
		p := p // capture per iteration; required while go.mod declares go < 1.22
		doc.entries = append(doc.entries, entry{
			name: filepath.Base(p),
			open: func() (io.ReadCloser, error) { return os.Open(p) },
		})
	}
	return doc, nil
}

func newDocument() *Document {
	return &Document{dims: make(map[int]geom.Size)}
}

// fromArchive collects the archive's image entries in natural name
// order. Directories, resource-fork droppings and hidden files are
// skipped.
func fromArchive(zr *zip.Reader, closer io.Closer) (*Document, error) {
	doc := newDocument()
	doc.closer = closer
	doc.title = strings.TrimSpace(zr.Comment)

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		if strings.HasPrefix(path.Base(f.Name), ".") {
			continue
		}
		if !pageExts[strings.ToLower(path.Ext(f.Name))] {
			continue
		}
		doc.entries = append(doc.entries, entry{
			name: f.Name,
			open: f.Open,
		})
	}
	if len(doc.entries) == 0 {
		return nil, &source.CorruptError{Path: "archive", Err: fmt.Errorf("no page images")}
	}

	sort.SliceStable(doc.entries, func(i, j int) bool {
		return naturalLess(doc.entries[i].name, doc.entries[j].name)
	})
	return doc, nil
}

// SetRecognizer attaches a text recognizer consulted by Page.Text.
func (d *Document) SetRecognizer(r Recognizer) {
	d.mu.Lock()
	d.recognizer = r
	d.mu.Unlock()
}

// PageCount returns the number of page images.
func (d *Document) PageCount() int {
	return len(d.entries)
}

// Dimensions reports a page's size without decoding pixel data. The
// index is a 1-based original page number. Results are cached for the
// life of the document.
func (d *Document) Dimensions(original int) (geom.Size, error) {
	if original < 1 || original > len(d.entries) {
		return geom.Size{}, &source.PageError{Page: original, Op: "load", Err: fmt.Errorf("page out of range")}
	}
	d.mu.Lock()
	if sz, ok := d.dims[original]; ok {
		d.mu.Unlock()
		return sz, nil
	}
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return geom.Size{}, &source.PageError{Page: original, Op: "load", Err: fmt.Errorf("document closed")}
	}

	ent := d.entries[original-1]
	rc, err := ent.open()
	if err != nil {
		return geom.Size{}, &source.PageError{Page: original, Op: "load", Err: err}
	}
	defer rc.Close()

	cfg, _, err := image.DecodeConfig(rc)
	if err != nil {
		return geom.Size{}, &source.PageError{Page: original, Op: "load", Err: pageDecodeErr(ent.name, err)}
	}
	sz := geom.Size{W: float64(cfg.Width), H: float64(cfg.Height)}
	d.mu.Lock()
	d.dims[original] = sz
	d.mu.Unlock()
	return sz, nil
}

// Page decodes the page image and returns its handle. The index is a
// 1-based original page number. Decoding happens here so concurrent
// fetches parallelize the expensive part.
func (d *Document) Page(ctx context.Context, original int) (source.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if original < 1 || original > len(d.entries) {
		return nil, &source.PageError{Page: original, Op: "load", Err: fmt.Errorf("page out of range")}
	}
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, &source.PageError{Page: original, Op: "load", Err: fmt.Errorf("document closed")}
	}

	ent := d.entries[original-1]
	rc, err := ent.open()
	if err != nil {
		return nil, &source.PageError{Page: original, Op: "load", Err: err}
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, &source.PageError{Page: original, Op: "load", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &source.PageError{Page: original, Op: "load", Err: pageDecodeErr(ent.name, err)}
	}

	b := img.Bounds()
	sz := geom.Size{W: float64(b.Dx()), H: float64(b.Dy())}
	d.mu.Lock()
	d.dims[original] = sz
	d.mu.Unlock()

	return &page{doc: d, index: original, img: img, encoded: data}, nil
}

// pageDecodeErr distinguishes an unknown format from a broken one.
func pageDecodeErr(name string, err error) error {
	if err == image.ErrFormat {
		return fmt.Errorf("%s: %v: %w", name, err, source.ErrUnsupported)
	}
	return &source.CorruptError{Path: name, Err: err}
}

// Metadata carries the archive comment as the title when one is set.
// Image files have nothing else to report.
func (d *Document) Metadata() source.Metadata {
	return source.Metadata{Title: d.title}
}

// Outline returns nil; image stacks have no navigation tree.
func (d *Document) Outline() []source.OutlineItem {
	return nil
}

// Close releases the archive handle. Pages obtained earlier become
// invalid.
func (d *Document) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}
