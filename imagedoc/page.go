package imagedoc

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/tsawler/lectern/geom"
	"github.com/tsawler/lectern/ocr"
	"github.com/tsawler/lectern/source"
)

// page is one decoded page image.
type page struct {
	doc     *Document
	index   int
	img     image.Image
	encoded []byte // original bytes, handed to the recognizer as-is
}

// Size maps one pixel to one content point.
func (p *page) Size() geom.Size {
	if p.img == nil {
		return geom.Size{}
	}
	b := p.img.Bounds()
	return geom.Size{W: float64(b.Dx()), H: float64(b.Dy())}
}

// Rotate returns Rotate0; image files carry no stored rotation.
func (p *page) Rotate() geom.Rotation {
	return geom.Rotate0
}

// Render scales the page image into dst under the viewport transform,
// over a white base. Rotation and zoom both come from the matrix.
func (p *page) Render(ctx context.Context, dst draw.Image, vp geom.Viewport) error {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.img == nil {
		return &source.PageError{Page: p.index, Op: "render", Err: errors.New("page released")}
	}

	// Content space is the image's own pixel grid, so the viewport
	// matrix maps source pixels straight to destination pixels.
	m := vp.Matrix()
	xdraw.ApproxBiLinear.Transform(dst,
		f64.Aff3{m[0], m[2], m[4], m[1], m[3], m[5]},
		p.img, p.img.Bounds(), xdraw.Over, nil)
	return nil
}

// Text returns recognized text when a recognizer is attached, else
// nothing. The whole page comes back as a single span; recognition
// reports no glyph geometry.
func (p *page) Text(ctx context.Context) ([]source.TextSpan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.doc.mu.Lock()
	rec := p.doc.recognizer
	p.doc.mu.Unlock()
	if rec == nil || p.encoded == nil {
		return nil, nil
	}

	text, err := rec.RecognizeImage(p.encoded)
	if err != nil {
		if errors.Is(err, ocr.ErrOCRNotEnabled) {
			return nil, nil
		}
		return nil, &source.PageError{Page: p.index, Op: "text", Err: err}
	}
	if text == "" {
		return nil, nil
	}
	return []source.TextSpan{{
		Text:     text,
		M:        geom.Translate(0, 12),
		FontSize: 12,
	}}, nil
}

// NativeAnnotations returns nil; image files embed no annotations.
func (p *page) NativeAnnotations(ctx context.Context) ([]source.NativeAnnotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

// Release drops the decoded raster.
func (p *page) Release() {
	p.img = nil
	p.encoded = nil
}
