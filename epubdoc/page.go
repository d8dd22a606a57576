package epubdoc

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"net/url"
	"strings"

	"github.com/tsawler/lectern/geom"
	"github.com/tsawler/lectern/source"
)

// Synthetic page geometry. Reflowable content has no intrinsic page
// box, so every chapter is laid out on a US Letter page with one-inch
// margins. Long chapters run past the bottom edge; spans keep their
// positions so search and selection still work below the fold.
const (
	pageWidth   = 612.0
	pageHeight  = 792.0
	pageMargin  = 72.0
	bodyWidth   = pageWidth - 2*pageMargin
	lineSpacing = 1.4
)

// page is one spine chapter presented as a fixed-size page.
type page struct {
	doc   *Document
	index int
	ch    *chapter
}

func (p *page) Size() geom.Size {
	return geom.Size{W: pageWidth, H: pageHeight}
}

func (p *page) Rotate() geom.Rotation {
	return geom.Rotate0
}

// Render paints the page base. There is no text rasterizer; the text
// itself reaches the viewer through Text spans.
func (p *page) Render(ctx context.Context, dst draw.Image, vp geom.Viewport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return nil
}

// Text lays the chapter's blocks out top to bottom and returns one
// span per wrapped line.
func (p *page) Text(ctx context.Context) ([]source.TextSpan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var spans []source.TextSpan
	for _, lb := range layoutChapter(p.ch) {
		lh := lb.size * lineSpacing
		for i, line := range lb.lines {
			baseline := lb.top + lb.size + float64(i)*lh
			spans = append(spans, source.TextSpan{
				Text:     line,
				M:        geom.Translate(pageMargin, baseline),
				FontSize: lb.size,
			})
		}
	}
	return spans, nil
}

// NativeAnnotations surfaces the chapter's hyperlinks. External links
// carry their URI; internal ones resolve to the target chapter's page
// index. The rect covers the owning block, since the synthetic layout
// does not track glyph positions within it.
func (p *page) NativeAnnotations(ctx context.Context) ([]source.NativeAnnotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var anns []source.NativeAnnotation
	for _, lb := range layoutChapter(p.ch) {
		if len(lb.blk.links) == 0 {
			continue
		}
		rect := geom.Rect{
			X: pageMargin,
			Y: lb.top,
			W: bodyWidth,
			H: float64(len(lb.lines)) * lb.size * lineSpacing,
		}
		for _, ln := range lb.blk.links {
			ann := source.NativeAnnotation{
				Subtype:  "Link",
				Rect:     rect,
				Contents: ln.text,
				DestPage: -1,
			}
			if u, err := url.Parse(ln.href); err == nil && u.Scheme != "" {
				ann.URI = ln.href
			} else {
				target := p.doc.chapterIndexFor(p.ch, ln.href)
				if target < 0 {
					continue
				}
				ann.DestPage = target
			}
			anns = append(anns, ann)
		}
	}
	return anns, nil
}

// Release is a no-op; chapter data lives for the document's lifetime.
func (p *page) Release() {}

// layoutBlock is a block with its computed vertical extent.
type layoutBlock struct {
	blk   *block
	top   float64
	size  float64
	lines []string
}

// layoutChapter assigns each block a font size from its heading level,
// wraps its text and stacks the blocks downward from the top margin.
func layoutChapter(ch *chapter) []layoutBlock {
	y := pageMargin
	out := make([]layoutBlock, 0, len(ch.blocks))
	for i := range ch.blocks {
		blk := &ch.blocks[i]
		f := fontSizeFor(blk.level)
		lines := wrapText(blk.text, int(bodyWidth/(f*0.5)))
		out = append(out, layoutBlock{blk: blk, top: y, size: f, lines: lines})
		y += float64(len(lines))*f*lineSpacing + f*0.5
	}
	return out
}

func fontSizeFor(level int) float64 {
	switch level {
	case 1:
		return 24
	case 2:
		return 18
	case 3:
		return 16
	case 4, 5, 6:
		return 14
	default:
		return 12
	}
}

// wrapText breaks text into lines of at most maxChars runes, splitting
// on word boundaries. A single word longer than the limit keeps its
// own line.
func wrapText(s string, maxChars int) []string {
	if maxChars < 1 {
		maxChars = 1
	}
	var lines []string
	var cur strings.Builder
	curLen := 0
	for _, w := range strings.Fields(s) {
		wlen := len([]rune(w))
		switch {
		case curLen == 0:
			cur.WriteString(w)
			curLen = wlen
		case curLen+1+wlen > maxChars:
			lines = append(lines, cur.String())
			cur.Reset()
			cur.WriteString(w)
			curLen = wlen
		default:
			cur.WriteString(" ")
			cur.WriteString(w)
			curLen += 1 + wlen
		}
	}
	if curLen > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

// chapterIndexFor resolves an internal href, relative to the linking
// chapter's directory, to a 1-based page index. Returns -1 when no
// chapter matches.
func (d *Document) chapterIndexFor(from *chapter, href string) int {
	if strings.HasPrefix(href, "#") {
		// Fragment-only links stay within the chapter.
		for i, ch := range d.chapters {
			if ch == from {
				return i + 1
			}
		}
		return -1
	}
	return resolveTarget(from.href, href, d.chapters)
}
