// Package report renders a document's annotations as a shareable
// report, grouped by visual page. Write produces GitHub-flavored
// markdown; WriteHTML converts the same markdown to a standalone HTML
// page.
package report

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tsawler/lectern/annotations"
	"github.com/tsawler/lectern/pageorder"
	"github.com/tsawler/lectern/source"
)

// Info identifies the document the report covers.
type Info struct {
	Filename string
	Meta     source.Metadata
}

// Options adjusts report output.
type Options struct {
	Title string           // heading override; default is the document title or filename
	Now   func() time.Time // export timestamp source; nil means time.Now
}

// Write renders the markdown report.
func Write(w io.Writer, info Info, store *annotations.Store, order *pageorder.Model) error {
	return WriteWithOptions(w, info, store, order, Options{})
}

// WriteWithOptions renders the markdown report with the given options.
func WriteWithOptions(w io.Writer, info Info, store *annotations.Store, order *pageorder.Model, opts Options) error {
	_, err := w.Write(render(info, store, order, opts))
	return err
}

// WriteHTML renders the report as a standalone HTML document.
func WriteHTML(w io.Writer, info Info, store *annotations.Store, order *pageorder.Model) error {
	return WriteHTMLWithOptions(w, info, store, order, Options{})
}

// WriteHTMLWithOptions renders HTML with the given options.
func WriteHTMLWithOptions(w io.Writer, info Info, store *annotations.Store, order *pageorder.Model, opts Options) error {
	src := render(info, store, order, opts)

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var body bytes.Buffer
	if err := md.Convert(src, &body); err != nil {
		return fmt.Errorf("rendering report html: %w", err)
	}

	if _, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>%s</title></head>\n<body>\n",
		html.EscapeString(title(info, opts))); err != nil {
		return err
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return err
	}
	_, err := io.WriteString(w, "</body>\n</html>\n")
	return err
}

func title(info Info, opts Options) string {
	switch {
	case opts.Title != "":
		return opts.Title
	case info.Meta.Title != "":
		return info.Meta.Title
	case info.Filename != "":
		return info.Filename
	}
	return "Document"
}

func render(info Info, store *annotations.Store, order *pageorder.Model, opts Options) []byte {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	caser := cases.Title(language.English)

	all := store.All()
	pagesAnnotated := make(map[int]bool)
	for _, a := range all {
		pagesAnnotated[a.PageNumber] = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Annotation Report: %s\n\n", title(info, opts))
	if info.Filename != "" {
		fmt.Fprintf(&b, "- Document: %s\n", info.Filename)
	}
	if info.Meta.Author != "" {
		fmt.Fprintf(&b, "- Author: %s\n", info.Meta.Author)
	}
	fmt.Fprintf(&b, "- Annotations: %d across %d pages\n", len(all), len(pagesAnnotated))
	fmt.Fprintf(&b, "- Exported: %s\n", stamp(now().UnixMilli()))

	// One section per visual page that carries annotations.
	for visual := 1; visual <= order.Len(); visual++ {
		original, err := order.ToOriginal(visual)
		if err != nil {
			continue
		}
		list := store.ByPage(original)
		if len(list) == 0 {
			continue
		}
		if original == visual {
			fmt.Fprintf(&b, "\n## Page %d\n\n", visual)
		} else {
			fmt.Fprintf(&b, "\n## Page %d (original %d)\n\n", visual, original)
		}
		b.WriteString("| Kind | Content | Color | Created |\n")
		b.WriteString("| --- | --- | --- | --- |\n")
		for _, a := range list {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				caser.String(string(a.Type)), cell(a.Content), cell(a.Color), stamp(a.Timestamp))
		}
	}

	// Annotations whose page was removed from the order still exist in
	// the store; list them so the report stays complete.
	var removed []annotations.Annotation
	for _, a := range all {
		if _, err := order.ToVisual(a.PageNumber); err != nil {
			removed = append(removed, a)
		}
	}
	if len(removed) > 0 {
		b.WriteString("\n## Removed pages\n\n")
		b.WriteString("| Original page | Kind | Content | Color | Created |\n")
		b.WriteString("| --- | --- | --- | --- | --- |\n")
		for _, a := range removed {
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
				a.PageNumber, caser.String(string(a.Type)), cell(a.Content), cell(a.Color), stamp(a.Timestamp))
		}
	}

	return []byte(b.String())
}

// cell makes a value safe inside a markdown table row.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.TrimSpace(s)
}

// stamp formats an epoch-milliseconds timestamp for display.
func stamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04 MST")
}
