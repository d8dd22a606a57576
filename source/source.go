// Package source defines the contract between the viewing engine and the
// document backends that feed it. A backend turns a file format into a
// Document whose pages report their geometry, render into a raster, and
// expose text and embedded annotations. The engine never touches file
// formats directly; everything flows through these interfaces.
package source

import (
	"context"
	"image/draw"
	"time"

	"github.com/tsawler/lectern/geom"
)

// Document is one open document. Implementations must tolerate concurrent
// Page calls; the engine fetches several pages at once.
type Document interface {
	// PageCount returns the number of pages in original order.
	PageCount() int

	// Page loads the page with the given original (pre-reorder) index.
	// Original indices are 1-based: 1..PageCount. The returned handle
	// stays valid until Release is called on it.
	Page(ctx context.Context, original int) (Page, error)

	// Metadata returns whatever document information the format carries.
	// Missing fields are zero values.
	Metadata() Metadata

	// Outline returns the document's navigation tree, or nil when the
	// format has none.
	Outline() []OutlineItem

	// Close releases the underlying file. Pages obtained earlier become
	// invalid.
	Close() error
}

// Page is a loaded page handle.
type Page interface {
	// Size returns the unrotated content box dimensions in points at
	// zoom 1.
	Size() geom.Size

	// Rotate returns the page's intrinsic rotation, as stored in the
	// file. View rotation is applied on top of it.
	Rotate() geom.Rotation

	// Render draws the page into dst under the given viewport. The
	// implementation honours ctx cancellation between work units and
	// renders whatever its format allows; backends without a rasterizer
	// paint the page base only.
	Render(ctx context.Context, dst draw.Image, vp geom.Viewport) error

	// Text returns the page's text runs with their placement transforms,
	// in reading order as stored in the file.
	Text(ctx context.Context) ([]TextSpan, error)

	// NativeAnnotations returns annotations embedded in the file, such
	// as links and highlights. They are read-only.
	NativeAnnotations(ctx context.Context) ([]NativeAnnotation, error)

	// Release frees resources held by the handle. The handle must not be
	// used afterwards.
	Release()
}

// TextSpan is one run of text with the transform placing it on the
// unrotated page.
type TextSpan struct {
	Text     string
	M        geom.Matrix
	FontSize float64
}

// Bounds approximates the span's content-space bounding box from its
// transform and font size. Width is estimated when the backend did not
// measure glyphs.
func (s TextSpan) Bounds() geom.Rect {
	origin := s.M.Transform(geom.Point{})
	h := s.FontSize
	if h <= 0 {
		h = 12
	}
	w := float64(len([]rune(s.Text))) * h * 0.5
	return geom.Rect{X: origin.X, Y: origin.Y - h, W: w, H: h}
}

// NativeAnnotation is an annotation read from the file itself.
type NativeAnnotation struct {
	Subtype  string    // format-specific kind, e.g. "Link", "Highlight"
	Rect     geom.Rect // content-space bounds on the unrotated page
	Contents string
	URI      string // external link target, if any
	DestPage int    // internal link target, 1-based original index, -1 when none
}

// Metadata is the document information dictionary, normalized across
// formats.
type Metadata struct {
	Title    string
	Author   string
	Subject  string
	Keywords string
	Creator  string
	Producer string
	Created  time.Time
	Modified time.Time
}

// OutlineItem is one entry of a document's navigation tree.
type OutlineItem struct {
	Title    string
	Page     int // 1-based original index, -1 when the entry has no target
	Children []OutlineItem
}
