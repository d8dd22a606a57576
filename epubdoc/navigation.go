package epubdoc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"github.com/tsawler/lectern/source"
)

// buildOutline assembles the navigation tree. An EPUB 3 nav document
// takes priority, then the EPUB 2 NCX, then a flat list generated from
// the spine.
func buildOutline(zr *zip.Reader, pkg *packageDoc, baseDir string, chapters []*chapter) []source.OutlineItem {
	if item, ok := itemWithProperty(pkg, "nav"); ok {
		navPath := resolveHref(baseDir, item.href)
		if content, err := readFile(zr, navPath); err == nil {
			if items := parseNavDoc(content, navPath, chapters); len(items) > 0 {
				return items
			}
		}
	}
	if item, ok := itemWithMediaType(pkg, "application/x-dtbncx+xml"); ok {
		ncxPath := resolveHref(baseDir, item.href)
		if content, err := readFile(zr, ncxPath); err == nil {
			if items := parseNCX(content, ncxPath, chapters); len(items) > 0 {
				return items
			}
		}
	}
	return spineOutline(chapters)
}

func itemWithProperty(pkg *packageDoc, prop string) (manifestItem, bool) {
	for _, item := range pkg.manifest {
		for _, p := range item.properties {
			if p == prop {
				return item, true
			}
		}
	}
	return manifestItem{}, false
}

func itemWithMediaType(pkg *packageDoc, mediaType string) (manifestItem, bool) {
	for _, item := range pkg.manifest {
		if item.mediaType == mediaType {
			return item, true
		}
	}
	return manifestItem{}, false
}

// parseNavDoc reads an EPUB 3 nav document: XHTML holding a nav
// element marked epub:type="toc" with a nested ol structure.
func parseNavDoc(content []byte, navPath string, chapters []*chapter) []source.OutlineItem {
	root, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil
	}
	nav := findTOCNav(root)
	if nav == nil {
		return nil
	}
	ol := findElement(nav, "ol")
	if ol == nil {
		return nil
	}
	return listItems(ol, navPath, chapters)
}

func findTOCNav(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "nav" {
		for _, a := range n.Attr {
			if (a.Key == "epub:type" || a.Key == "type") && strings.Contains(a.Val, "toc") {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findTOCNav(c); found != nil {
			return found
		}
	}
	return nil
}

// listItems converts an ol's direct li children to outline entries.
// Each li holds an anchor (or bare span) and optionally a nested ol of
// children.
func listItems(ol *html.Node, navPath string, chapters []*chapter) []source.OutlineItem {
	var items []source.OutlineItem
	for c := ol.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "li" {
			continue
		}
		item := source.OutlineItem{Page: -1}
		for g := c.FirstChild; g != nil; g = g.NextSibling {
			if g.Type != html.ElementNode {
				continue
			}
			switch g.Data {
			case "a":
				item.Title = normalize(textOf(g))
				if href := attrVal(g, "href"); href != "" {
					item.Page = resolveTarget(navPath, href, chapters)
				}
			case "span":
				if item.Title == "" {
					item.Title = normalize(textOf(g))
				}
			case "ol":
				item.Children = listItems(g, navPath, chapters)
			}
		}
		if item.Title != "" || len(item.Children) > 0 {
			items = append(items, item)
		}
	}
	return items
}

// ncxFile mirrors the EPUB 2 NCX navigation document.
type ncxFile struct {
	XMLName xml.Name `xml:"ncx"`
	NavMap  struct {
		Points []ncxPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type ncxPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxPoint `xml:"navPoint"`
}

func parseNCX(content []byte, ncxPath string, chapters []*chapter) []source.OutlineItem {
	var ncx ncxFile
	if err := xml.Unmarshal(content, &ncx); err != nil {
		return nil
	}
	return ncxItems(ncx.NavMap.Points, ncxPath, chapters)
}

func ncxItems(points []ncxPoint, ncxPath string, chapters []*chapter) []source.OutlineItem {
	if len(points) == 0 {
		return nil
	}
	items := make([]source.OutlineItem, 0, len(points))
	for _, pt := range points {
		item := source.OutlineItem{
			Title:    strings.TrimSpace(pt.Label),
			Page:     -1,
			Children: ncxItems(pt.Children, ncxPath, chapters),
		}
		if pt.Content.Src != "" {
			item.Page = resolveTarget(ncxPath, pt.Content.Src, chapters)
		}
		items = append(items, item)
	}
	return items
}

// spineOutline is the fallback: one flat entry per chapter, titled
// from the chapter's own head title or its manifest id.
func spineOutline(chapters []*chapter) []source.OutlineItem {
	items := make([]source.OutlineItem, 0, len(chapters))
	for i, ch := range chapters {
		title := ch.title
		if title == "" {
			title = ch.id
		}
		items = append(items, source.OutlineItem{Title: title, Page: i + 1})
	}
	return items
}

// resolveTarget maps an href, relative to the referencing file's
// directory, to the matching chapter's 1-based page index. Returns -1
// when no chapter matches.
func resolveTarget(fromPath, href string, chapters []*chapter) int {
	target := href
	if i := strings.IndexByte(target, '#'); i >= 0 {
		target = target[:i]
	}
	if target == "" {
		return -1
	}
	if decoded, err := url.QueryUnescape(target); err == nil {
		target = decoded
	}
	target = path.Join(path.Dir(fromPath), target)
	for i, ch := range chapters {
		if ch.href == target {
			return i + 1
		}
	}
	return -1
}
