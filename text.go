package lectern

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"math"
	"strings"

	"github.com/tsawler/lectern/geom"
	"github.com/tsawler/lectern/source"
)

// ocrZoom is the raster scale for pages rendered into the recognizer.
// Recognition wants around 300dpi; page units are 72dpi points.
const ocrZoom = 4.0

// textSource adapts the session to the search coordinator's text
// provider. It prefers the cached handle and falls back to a one-off
// fetch, so a search does not disturb the view's load window.
type textSource struct{ s *Session }

func (t textSource) PageText(ctx context.Context, original int) (string, error) {
	s := t.s
	page, cached := s.cache.Get(original)
	if !cached {
		p, err := s.doc.Page(ctx, original)
		if err != nil {
			return "", err
		}
		defer p.Release()
		page = p
	}

	spans, err := page.Text(ctx)
	if err != nil {
		return "", err
	}
	if text := joinSpans(spans); text != "" {
		return text, nil
	}
	if s.recognizer == nil {
		return "", nil
	}
	return s.recognizeText(ctx, page)
}

// recognizeText rasterizes a page and runs it through the configured
// recognizer. Used for scanned pages that carry no text layer.
func (s *Session) recognizeText(ctx context.Context, page source.Page) (string, error) {
	vp := geom.PageViewport(page.Size(), ocrZoom, page.Rotate())
	w := int(math.Ceil(vp.W))
	h := int(math.Ceil(vp.H))
	if w < 1 || h < 1 {
		return "", nil
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := page.Render(ctx, img, vp); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	text, err := s.recognizer.RecognizeImage(buf.Bytes())
	if err != nil {
		return "", err
	}
	s.log.Debug("ocr fallback", "image_bytes", buf.Len(), "text_runes", len([]rune(text)))
	return text, nil
}

// baselineSlack is how far two span baselines may differ and still
// count as the same line.
const baselineSlack = 0.5

// joinSpans flattens extracted spans into one page string. Spans on the
// same baseline are joined with a space unless one already provides the
// separation; a baseline move starts a new line.
func joinSpans(spans []source.TextSpan) string {
	var b strings.Builder
	lastY := 0.0
	var lastByte byte
	for _, sp := range spans {
		if sp.Text == "" {
			continue
		}
		if b.Len() > 0 {
			switch {
			case math.Abs(sp.M[5]-lastY) > baselineSlack:
				b.WriteByte('\n')
			case lastByte != ' ' && lastByte != '\n' && sp.Text[0] != ' ':
				b.WriteByte(' ')
			}
		}
		b.WriteString(sp.Text)
		lastY = sp.M[5]
		lastByte = sp.Text[len(sp.Text)-1]
	}
	return b.String()
}
