package pdfdoc

import (
	"context"
	"errors"
	"io"
	"math"

	"github.com/tsawler/lectern/geom"
	"github.com/tsawler/lectern/source"
)

// page is a loaded page handle. It is a thin view over the document;
// object data stays in the document caches, so Release has nothing to
// free.
type page struct {
	doc   *Document
	node  *pageNode
	index int
}

// Size returns the unrotated crop box dimensions in points.
func (p *page) Size() geom.Size {
	return geom.Size{W: p.node.box.width(), H: p.node.box.height()}
}

// Rotate returns the page's stored /Rotate value.
func (p *page) Rotate() geom.Rotation {
	return p.node.rotate
}

// Release is a no-op; the handle holds no resources of its own.
func (p *page) Release() {}

// flipMatrix maps PDF coordinates (origin bottom-left, y up) to
// content coordinates (origin at the crop box top-left, y down).
func (p *page) flipMatrix() geom.Matrix {
	return geom.Matrix{1, 0, 0, -1, -p.node.box.x0, p.node.box.y1}
}

// contentData concatenates the page's content streams. A page with no
// /Contents is valid and renders blank.
func (p *page) contentData() ([]byte, error) {
	obj := p.doc.resolve(p.node.dict.Get("Contents"))
	switch o := obj.(type) {
	case *Stream:
		return o.Decoded()
	case Array:
		var out []byte
		for i := range o {
			stm, ok := p.doc.resolve(o.Get(i)).(*Stream)
			if !ok {
				continue
			}
			data, err := stm.Decoded()
			if err != nil {
				return nil, err
			}
			out = append(out, data...)
			out = append(out, '\n')
		}
		return out, nil
	}
	return nil, nil
}

// Text walks the content streams and returns the page's text runs in
// stream order. Placement transforms are in content space, y down.
func (p *page) Text(ctx context.Context) ([]source.TextSpan, error) {
	data, err := p.contentData()
	if err != nil {
		return nil, &source.PageError{Page: p.index, Op: "text", Err: err}
	}
	w := &textWalker{
		doc:  p.doc,
		flip: p.flipMatrix(),
	}
	w.cur = newGState()
	if err := w.walk(ctx, data, p.node.resources, 0); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		// Trailing garbage in a content stream should not cost the
		// page the text already walked.
		if len(w.spans) > 0 {
			return w.spans, nil
		}
		return nil, &source.PageError{Page: p.index, Op: "text", Err: err}
	}
	return w.spans, nil
}

// gstate is the slice of PDF graphics state the walkers track. Text
// state parameters live in the graphics state and are saved by q; the
// text matrices are not, they reset at BT.
type gstate struct {
	ctm      geom.Matrix
	font     *fontInfo
	fontSize float64
	charSp   float64
	wordSp   float64
	horiz    float64
	leading  float64
	rise     float64
}

func newGState() gstate {
	return gstate{ctm: geom.Identity(), font: defaultFont, horiz: 1}
}

// textWalker accumulates text spans while interpreting content
// operations.
type textWalker struct {
	doc   *Document
	flip  geom.Matrix
	spans []source.TextSpan

	cur    gstate
	stack  []gstate
	tm     geom.Matrix
	tlm    geom.Matrix
	inText bool
	ops    int
}

// walk interprets one content stream. Form XObjects recurse with their
// own resources and placement matrix.
func (w *textWalker) walk(ctx context.Context, data []byte, res Dict, depth int) error {
	if depth > 8 {
		return nil
	}
	fonts := make(map[string]*fontInfo)
	cp := newContentParser(data)
	for {
		op, err := cp.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		w.ops++
		if w.ops%512 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		switch op.op {
		case "q":
			w.stack = append(w.stack, w.cur)
		case "Q":
			if n := len(w.stack); n > 0 {
				w.cur = w.stack[n-1]
				w.stack = w.stack[:n-1]
			}
		case "cm":
			if m, ok := opMatrix(op.operands); ok {
				w.cur.ctm = geom.Matrix(m).Multiply(w.cur.ctm)
			}
		case "BT":
			w.tm = geom.Identity()
			w.tlm = geom.Identity()
			w.inText = true
		case "ET":
			w.inText = false
		case "Tf":
			name, ok := opName(op.operands, 0)
			size, ok2 := opNumber(op.operands, 1)
			if ok && ok2 {
				w.cur.font = w.lookupFont(fonts, res, name)
				w.cur.fontSize = size
			}
		case "Tc":
			if v, ok := opNumber(op.operands, 0); ok {
				w.cur.charSp = v
			}
		case "Tw":
			if v, ok := opNumber(op.operands, 0); ok {
				w.cur.wordSp = v
			}
		case "Tz":
			if v, ok := opNumber(op.operands, 0); ok {
				w.cur.horiz = v / 100
			}
		case "TL":
			if v, ok := opNumber(op.operands, 0); ok {
				w.cur.leading = v
			}
		case "Ts":
			if v, ok := opNumber(op.operands, 0); ok {
				w.cur.rise = v
			}
		case "Td":
			w.moveLine(op.operands)
		case "TD":
			if ty, ok := opNumber(op.operands, 1); ok {
				w.cur.leading = -ty
			}
			w.moveLine(op.operands)
		case "Tm":
			if m, ok := opMatrix(op.operands); ok {
				w.tm = geom.Matrix(m)
				w.tlm = w.tm
			}
		case "T*":
			w.nextLine()
		case "Tj":
			if s, ok := opString(op.operands, 0); ok {
				w.show(s)
			}
		case "'":
			w.nextLine()
			if s, ok := opString(op.operands, 0); ok {
				w.show(s)
			}
		case "\"":
			if aw, ok := opNumber(op.operands, 0); ok {
				w.cur.wordSp = aw
			}
			if ac, ok := opNumber(op.operands, 1); ok {
				w.cur.charSp = ac
			}
			w.nextLine()
			if s, ok := opString(op.operands, 2); ok {
				w.show(s)
			}
		case "TJ":
			w.showArray(op.operands)
		case "Do":
			if name, ok := opName(op.operands, 0); ok {
				if err := w.doForm(ctx, res, name, depth); err != nil {
					return err
				}
			}
		}
	}
}

func (w *textWalker) moveLine(operands []Object) {
	tx, ok1 := opNumber(operands, 0)
	ty, ok2 := opNumber(operands, 1)
	if !ok1 || !ok2 {
		return
	}
	w.tlm = geom.Translate(tx, ty).Multiply(w.tlm)
	w.tm = w.tlm
}

func (w *textWalker) nextLine() {
	w.tlm = geom.Translate(0, -w.cur.leading).Multiply(w.tlm)
	w.tm = w.tlm
}

// show emits a span for the string and advances the text matrix by the
// string's width plus spacing.
func (w *textWalker) show(s []byte) {
	if !w.inText || len(s) == 0 {
		return
	}
	f := w.cur.font
	text := f.decode(s)
	combined := w.tm.Multiply(w.cur.ctm)
	if text != "" {
		placed := combined
		if w.cur.rise != 0 {
			placed = geom.Translate(0, w.cur.rise).Multiply(combined)
		}
		w.spans = append(w.spans, source.TextSpan{
			Text:     text,
			M:        placed.Multiply(w.flip),
			FontSize: w.cur.fontSize * math.Max(math.Abs(combined[0]), math.Abs(combined[3])),
		})
	}

	units := f.codeUnits(s)
	spaces := 0
	if !f.twoByte {
		for _, c := range s {
			if c == ' ' {
				spaces++
			}
		}
	}
	tx := (f.advance(s)*w.cur.fontSize +
		float64(units)*w.cur.charSp +
		float64(spaces)*w.cur.wordSp) * w.cur.horiz
	w.tm = geom.Translate(tx, 0).Multiply(w.tm)
}

// showArray handles TJ: strings show, numbers pull the pen back by
// thousandths of the font size.
func (w *textWalker) showArray(operands []Object) {
	if len(operands) == 0 {
		return
	}
	arr, ok := operands[0].(Array)
	if !ok {
		return
	}
	for _, el := range arr {
		switch v := el.(type) {
		case String:
			w.show([]byte(string(v)))
		default:
			if n, ok := toNumber(v); ok {
				tx := -n / 1000 * w.cur.fontSize * w.cur.horiz
				w.tm = geom.Translate(tx, 0).Multiply(w.tm)
			}
		}
	}
}

func (w *textWalker) lookupFont(cache map[string]*fontInfo, res Dict, name string) *fontInfo {
	if f, ok := cache[name]; ok {
		return f
	}
	f := defaultFont
	if fonts, ok := w.doc.resolve(res.Get("Font")).(Dict); ok {
		f = w.doc.loadFont(fonts.Get(name))
	}
	cache[name] = f
	return f
}

// doForm recurses into a form XObject, applying its placement matrix
// and switching to its resource dictionary.
func (w *textWalker) doForm(ctx context.Context, res Dict, name string, depth int) error {
	xobjs, ok := w.doc.resolve(res.Get("XObject")).(Dict)
	if !ok {
		return nil
	}
	stm, ok := w.doc.resolve(xobjs.Get(name)).(*Stream)
	if !ok {
		return nil
	}
	if sub, _ := stm.Dict.GetName("Subtype"); sub != "Form" {
		return nil
	}
	data, err := stm.Decoded()
	if err != nil {
		return nil
	}

	saved := w.cur
	if arr, ok := w.doc.resolve(stm.Dict.Get("Matrix")).(Array); ok && len(arr) >= 6 {
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
			w.cur.ctm = m.Multiply(w.cur.ctm)
		}
	}
	formRes := res
	if own, ok := w.doc.resolve(stm.Dict.Get("Resources")).(Dict); ok {
		formRes = own
	}
	err = w.walk(ctx, data, formRes, depth+1)
	w.cur = saved
	return err
}

// NativeAnnotations reads the page's /Annots entries. Rectangles come
// back in content space; link targets resolve to original page indices
// or URIs.
func (p *page) NativeAnnotations(ctx context.Context) ([]source.NativeAnnotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	annots, ok := p.doc.resolve(p.node.dict.Get("Annots")).(Array)
	if !ok {
		return nil, nil
	}
	var out []source.NativeAnnotation
	for i := range annots {
		dict, ok := p.doc.resolve(annots.Get(i)).(Dict)
		if !ok {
			continue
		}
		sub, _ := dict.GetName("Subtype")
		if sub == "Popup" {
			continue
		}
		na := source.NativeAnnotation{
			Subtype:  string(sub),
			DestPage: -1,
		}
		if arr, ok := p.doc.resolve(dict.Get("Rect")).(Array); ok {
			if r, ok := p.doc.rectFromArray(arr); ok {
				na.Rect = geom.Rect{
					X: r.x0 - p.node.box.x0,
					Y: p.node.box.y1 - r.y1,
					W: r.width(),
					H: r.height(),
				}
			}
		}
		if s, ok := dict.GetString("Contents"); ok {
			na.Contents = decodeTextString([]byte(string(s)))
		}
		if action, ok := p.doc.resolve(dict.Get("A")).(Dict); ok {
			if s, _ := action.GetName("S"); s == "URI" {
				if uri, ok := action.GetString("URI"); ok {
					na.URI = string(uri)
				}
			}
		}
		if na.URI == "" {
			na.DestPage = p.doc.destPage(dict)
		}
		out = append(out, na)
	}
	return out, nil
}
