// Package epubdoc serves EPUB publications as paged documents. An EPUB
// is a ZIP container: META-INF/container.xml names a package document
// (OPF) carrying metadata, a manifest of files and a spine giving the
// reading order. Each spine chapter becomes one page with a fixed
// synthetic content box; chapter XHTML is reduced to text blocks for
// extraction and search. There is no rasterizer, so rendering paints
// the page base only.
//
// DRM-locked books are rejected at open.
package epubdoc

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/tsawler/lectern/source"
)

// ErrDRMProtected reports a book whose content files are encrypted.
// errors.Is(err, source.ErrUnsupported) is true for it.
var ErrDRMProtected = fmt.Errorf("epub: drm-protected content: %w", source.ErrUnsupported)

// chapter is one spine entry with its extracted text blocks.
type chapter struct {
	id     string
	href   string // archive path of the XHTML file
	title  string
	blocks []block
}

// Document is an open EPUB.
type Document struct {
	chapters []*chapter
	meta     source.Metadata
	outline  []source.OutlineItem

	mu     sync.Mutex
	closed bool
}

// Open parses an EPUB held in memory and builds its page list. Chapter
// content is extracted up front; EPUB text is small next to the rasters
// other backends carry.
func Open(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &source.CorruptError{Path: "epub", Err: err}
	}
	if err := checkDRM(zr); err != nil {
		return nil, err
	}

	opfPath, err := locateOPF(zr)
	if err != nil {
		return nil, &source.CorruptError{Path: "epub", Err: err}
	}
	pkg, baseDir, err := parsePackage(zr, opfPath)
	if err != nil {
		return nil, &source.CorruptError{Path: opfPath, Err: err}
	}

	doc := &Document{meta: pkg.meta.toSource()}
	for _, idref := range pkg.spine {
		item, ok := pkg.manifest[idref]
		if !ok {
			continue
		}
		href := resolveHref(baseDir, item.href)
		content, err := readFile(zr, href)
		if err != nil {
			// A missing chapter file drops that page, not the book.
			continue
		}
		blocks, title, err := parseChapter(content)
		if err != nil {
			continue
		}
		doc.chapters = append(doc.chapters, &chapter{
			id:     item.id,
			href:   href,
			title:  title,
			blocks: blocks,
		})
	}
	if len(doc.chapters) == 0 {
		return nil, &source.CorruptError{Path: opfPath, Err: fmt.Errorf("no readable spine content")}
	}

	doc.outline = buildOutline(zr, pkg, baseDir, doc.chapters)
	return doc, nil
}

// PageCount returns the number of spine chapters.
func (d *Document) PageCount() int {
	return len(d.chapters)
}

// Page returns the handle for one chapter. Original indices are
// 1-based.
func (d *Document) Page(ctx context.Context, original int) (source.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if original < 1 || original > len(d.chapters) {
		return nil, &source.PageError{Page: original, Op: "load", Err: fmt.Errorf("page out of range")}
	}
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, &source.PageError{Page: original, Op: "load", Err: fmt.Errorf("document closed")}
	}
	return &page{doc: d, index: original, ch: d.chapters[original-1]}, nil
}

// Metadata returns the package metadata mapped onto the common shape.
func (d *Document) Metadata() source.Metadata {
	return d.meta
}

// Outline returns the navigation tree with targets resolved to page
// indices.
func (d *Document) Outline() []source.OutlineItem {
	return d.outline
}

// Close marks the document closed. The archive bytes are owned by the
// caller; there is no handle to release.
func (d *Document) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// readFile returns the named archive entry's contents.
func readFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("%s: no such entry", name)
}

// resolveHref joins a manifest href onto the package document's
// directory, undoing URL escaping first.
func resolveHref(baseDir, href string) string {
	if decoded, err := url.QueryUnescape(href); err == nil {
		href = decoded
	}
	if baseDir == "" {
		return href
	}
	return path.Join(baseDir, href)
}

// parseDate reads the loose date forms EPUB metadata uses.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
