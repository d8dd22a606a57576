package pdfdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/tsawler/lectern/geom"
	"github.com/tsawler/lectern/source"
)

// Render paints the page into dst under the viewport: a white page
// base, then every image XObject the content stream places, scaled
// into position. Vector drawing operators are not rasterized.
func (p *page) Render(ctx context.Context, dst draw.Image, vp geom.Viewport) error {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := p.contentData()
	if err != nil {
		return nil // page base only
	}
	iw := &imageWalker{
		doc:  p.doc,
		dst:  dst,
		full: p.flipMatrix().Multiply(vp.Matrix()),
		cur:  geom.Identity(),
	}
	if err := iw.walk(ctx, data, p.node.resources, 0); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &source.PageError{Page: p.index, Op: "render", Err: err}
	}
	return nil
}

// imageWalker tracks the transform stack and blits image XObjects.
type imageWalker struct {
	doc   *Document
	dst   draw.Image
	full  geom.Matrix // content space to destination pixels
	cur   geom.Matrix // current transformation matrix
	stack []geom.Matrix
	ops   int
}

func (iw *imageWalker) walk(ctx context.Context, data []byte, res Dict, depth int) error {
	if depth > 8 {
		return nil
	}
	cp := newContentParser(data)
	for {
		op, err := cp.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		iw.ops++
		if iw.ops%512 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		switch op.op {
		case "q":
			iw.stack = append(iw.stack, iw.cur)
		case "Q":
			if n := len(iw.stack); n > 0 {
				iw.cur = iw.stack[n-1]
				iw.stack = iw.stack[:n-1]
			}
		case "cm":
			if m, ok := opMatrix(op.operands); ok {
				iw.cur = geom.Matrix(m).Multiply(iw.cur)
			}
		case "Do":
			name, ok := opName(op.operands, 0)
			if !ok {
				continue
			}
			if err := iw.doXObject(ctx, res, name, depth); err != nil {
				return err
			}
		}
	}
}

func (iw *imageWalker) doXObject(ctx context.Context, res Dict, name string, depth int) error {
	xobjs, ok := iw.doc.resolve(res.Get("XObject")).(Dict)
	if !ok {
		return nil
	}
	stm, ok := iw.doc.resolve(xobjs.Get(name)).(*Stream)
	if !ok {
		return nil
	}
	sub, _ := stm.Dict.GetName("Subtype")
	switch sub {
	case "Image":
		if err := ctx.Err(); err != nil {
			return err
		}
		iw.drawImage(stm, res)
		return nil
	case "Form":
		data, err := stm.Decoded()
		if err != nil {
			return nil
		}
		saved := iw.cur
		if arr, ok := iw.doc.resolve(stm.Dict.Get("Matrix")).(Array); ok && len(arr) >= 6 {
			var m geom.Matrix
			good := true
			for i := 0; i < 6; i++ {
				n, ok := arr.Number(i)
				if !ok {
					good = false
					break
				}
				m[i] = n
			}
			if good {
				iw.cur = m.Multiply(iw.cur)
			}
		}
		formRes := res
		if own, ok := iw.doc.resolve(stm.Dict.Get("Resources")).(Dict); ok {
			formRes = own
		}
		err = iw.walk(ctx, data, formRes, depth+1)
		iw.cur = saved
		return err
	}
	return nil
}

// drawImage decodes the image and scales it into the rectangle the
// unit square lands on. Images that fail to decode are skipped; a
// partly drawn page beats no page.
func (iw *imageWalker) drawImage(stm *Stream, res Dict) {
	img, err := iw.doc.decodeImage(stm, res)
	if err != nil || img == nil {
		return
	}
	m := iw.cur.Multiply(iw.full)
	r := m.TransformRect(geom.Rect{W: 1, H: 1})
	target := image.Rect(
		int(math.Floor(r.X)),
		int(math.Floor(r.Y)),
		int(math.Ceil(r.X+r.W)),
		int(math.Ceil(r.Y+r.H)),
	)
	if target.Dx() < 1 || target.Dy() < 1 {
		return
	}
	if !target.Overlaps(iw.dst.Bounds()) {
		return
	}
	xdraw.ApproxBiLinear.Scale(iw.dst, target, img, img.Bounds(), xdraw.Over, nil)
}

// ===== Image decoding =====

// decodeImage turns an image XObject into a Go image. JPEG payloads
// decode directly; everything else is unpacked from raw samples.
func (d *Document) decodeImage(stm *Stream, res Dict) (image.Image, error) {
	switch stm.ImageFilter() {
	case "DCTDecode", "DCT":
		data, err := stm.Decoded()
		if err != nil {
			return nil, err
		}
		return jpeg.Decode(bytes.NewReader(data))
	case "JPXDecode":
		return nil, fmt.Errorf("JPEG 2000 image: %w", source.ErrUnsupported)
	}

	data, err := stm.Decoded()
	if err != nil {
		return nil, err
	}
	w, _ := toNumber(d.resolve(stm.Dict.Get("Width")))
	h, _ := toNumber(d.resolve(stm.Dict.Get("Height")))
	width, height := int(w), int(h)

	bpc := 8
	if b, ok := toNumber(d.resolve(stm.Dict.Get("BitsPerComponent"))); ok {
		bpc = int(b)
	}
	mask := false
	if im, ok := stm.Dict.GetBool("ImageMask"); ok && bool(im) {
		mask = true
		bpc = 1
	}
	cs := colorSpace{comps: 1}
	if !mask {
		cs = d.parseColorSpace(stm.Dict.Get("ColorSpace"), res)
	}

	// Sample 0 is black for gray data and paints ink for stencils, so
	// no inversion is needed unless /Decode flips the range.
	invert := false
	if arr, ok := d.resolve(stm.Dict.Get("Decode")).(Array); ok && len(arr) >= 2 && !cs.indexed {
		d0, ok1 := toNumber(d.resolve(arr.Get(0)))
		d1, ok2 := toNumber(d.resolve(arr.Get(1)))
		if ok1 && ok2 && d0 > d1 {
			invert = !invert
		}
	}
	return buildRaster(data, width, height, bpc, cs, invert)
}

// colorSpace is the slice of PDF color space semantics sample
// unpacking needs.
type colorSpace struct {
	comps     int
	indexed   bool
	baseComps int
	lookup    []byte
}

// parseColorSpace resolves a color space object, following named
// resources, ICCBased streams and Indexed tables.
func (d *Document) parseColorSpace(obj Object, res Dict) colorSpace {
	switch o := d.resolve(obj).(type) {
	case Name:
		switch o {
		case "DeviceGray", "CalGray", "G":
			return colorSpace{comps: 1}
		case "DeviceRGB", "CalRGB", "RGB":
			return colorSpace{comps: 3}
		case "DeviceCMYK", "CMYK":
			return colorSpace{comps: 4}
		}
		// A name otherwise points into the resource dictionary.
		if spaces, ok := d.resolve(res.Get("ColorSpace")).(Dict); ok {
			if inner := spaces.Get(string(o)); inner != nil {
				return d.parseColorSpace(inner, Dict{})
			}
		}
		return colorSpace{comps: 1}
	case Array:
		name, _ := d.resolve(o.Get(0)).(Name)
		switch name {
		case "ICCBased":
			if stm, ok := d.resolve(o.Get(1)).(*Stream); ok {
				if n, ok := toNumber(d.resolve(stm.Dict.Get("N"))); ok {
					switch int(n) {
					case 3:
						return colorSpace{comps: 3}
					case 4:
						return colorSpace{comps: 4}
					}
				}
			}
			return colorSpace{comps: 1}
		case "Indexed", "I":
			base := d.parseColorSpace(o.Get(1), res)
			cs := colorSpace{comps: 1, indexed: true, baseComps: base.comps}
			switch table := d.resolve(o.Get(3)).(type) {
			case String:
				cs.lookup = []byte(string(table))
			case *Stream:
				if data, err := table.Decoded(); err == nil {
					cs.lookup = data
				}
			}
			return cs
		case "CalRGB", "Lab":
			return colorSpace{comps: 3}
		case "CalGray", "Separation":
			return colorSpace{comps: 1}
		case "DeviceN":
			if names, ok := d.resolve(o.Get(1)).(Array); ok {
				return colorSpace{comps: len(names)}
			}
		}
	}
	return colorSpace{comps: 1}
}

// buildRaster unpacks packed samples into an RGBA image. Rows are byte
// aligned; samples up to 16 bits are scaled into 8.
func buildRaster(data []byte, width, height, bpc int, cs colorSpace, invert bool) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("image has no extent")
	}
	switch bpc {
	case 1, 2, 4, 8, 16:
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", bpc)
	}
	comps := cs.comps
	if comps < 1 || comps > 4 {
		return nil, fmt.Errorf("unsupported component count %d", comps)
	}
	rowBytes := (width*bpc*comps + 7) / 8
	if len(data) < rowBytes*height {
		return nil, fmt.Errorf("image data truncated: have %d bytes, need %d", len(data), rowBytes*height)
	}
	maxVal := (1 << bpc) - 1

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	var samples [4]int
	for y := 0; y < height; y++ {
		br := bitReader{data: data[y*rowBytes : (y+1)*rowBytes]}
		for x := 0; x < width; x++ {
			for c := 0; c < comps; c++ {
				samples[c] = br.read(bpc)
			}
			out.SetRGBA(x, y, samplePixel(samples, comps, maxVal, cs, invert))
		}
	}
	return out, nil
}

func samplePixel(samples [4]int, comps, maxVal int, cs colorSpace, invert bool) color.RGBA {
	scale := func(v int) uint8 {
		if invert {
			v = maxVal - v
		}
		if maxVal == 255 {
			return uint8(v)
		}
		return uint8(v * 255 / maxVal)
	}

	if cs.indexed {
		base := cs.baseComps
		idx := samples[0] * base
		if idx < 0 || idx+base > len(cs.lookup) {
			return color.RGBA{A: 255}
		}
		switch base {
		case 1:
			g := cs.lookup[idx]
			return color.RGBA{R: g, G: g, B: g, A: 255}
		case 3:
			return color.RGBA{R: cs.lookup[idx], G: cs.lookup[idx+1], B: cs.lookup[idx+2], A: 255}
		case 4:
			r, g, b := color.CMYKToRGB(cs.lookup[idx], cs.lookup[idx+1], cs.lookup[idx+2], cs.lookup[idx+3])
			return color.RGBA{R: r, G: g, B: b, A: 255}
		}
		return color.RGBA{A: 255}
	}

	switch comps {
	case 1:
		g := scale(samples[0])
		return color.RGBA{R: g, G: g, B: g, A: 255}
	case 3:
		return color.RGBA{R: scale(samples[0]), G: scale(samples[1]), B: scale(samples[2]), A: 255}
	case 4:
		r, g, b := color.CMYKToRGB(scale(samples[0]), scale(samples[1]), scale(samples[2]), scale(samples[3]))
		return color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return color.RGBA{A: 255}
}

// bitReader pulls big-endian bit fields from one image row.
type bitReader struct {
	data []byte
	pos  int // in bits
}

func (b *bitReader) read(n int) int {
	var v int
	for i := 0; i < n; i++ {
		byteIdx := b.pos >> 3
		if byteIdx >= len(b.data) {
			return v << (n - i - 1)
		}
		bit := (b.data[byteIdx] >> (7 - uint(b.pos&7))) & 1
		v = v<<1 | int(bit)
		b.pos++
	}
	return v
}
