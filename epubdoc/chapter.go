package epubdoc

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// block is one paragraph-level run of chapter text. Headings carry
// their level (1-6); body text uses level 0. Links found inside the
// block are kept so they can surface as annotations.
type block struct {
	text  string
	level int
	links []link
}

// link is an anchor found in chapter content.
type link struct {
	text string
	href string
}

// parseChapter extracts paragraph-level blocks from one content
// document. The head title is returned separately for outline use.
func parseChapter(content []byte) ([]block, string, error) {
	root, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, "", err
	}

	title := headTitle(root)

	body := findElement(root, "body")
	if body == nil {
		body = root
	}

	var blocks []block
	walkBlocks(body, &blocks)
	return blocks, title, nil
}

// walkBlocks flattens the DOM into blocks. Block elements emit their
// direct inline content first and then recurse, so a list item keeps
// its own text ahead of any nested sublist.
func walkBlocks(n *html.Node, out *[]block) {
	if n.Type == html.ElementNode {
		if skipTag(n.Data) {
			return
		}
		if lvl, ok := headingLevel(n.Data); ok {
			b := collectInline(n)
			b.level = lvl
			if b.text != "" {
				*out = append(*out, b)
			}
			return
		}
		if blockTag(n.Data) {
			b := collectInline(n)
			if b.text != "" {
				*out = append(*out, b)
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walkBlocks(c, out)
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkBlocks(c, out)
	}
}

// collectInline gathers the direct inline content of a block element,
// stopping at nested block elements.
func collectInline(n *html.Node) block {
	var sb strings.Builder
	var links []link
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		inlineText(c, &sb, &links)
	}
	return block{text: normalize(sb.String()), links: links}
}

func inlineText(n *html.Node, sb *strings.Builder, links *[]link) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipTag(n.Data) || blockTag(n.Data) || containerTag(n.Data) {
			return
		}
		if _, ok := headingLevel(n.Data); ok {
			return
		}
		if n.Data == "br" {
			sb.WriteString(" ")
			return
		}
		if n.Data == "a" {
			if href := attrVal(n, "href"); href != "" {
				*links = append(*links, link{text: normalize(textOf(n)), href: href})
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		inlineText(c, sb, links)
	}
}

// headTitle returns the head element's title text, if any.
func headTitle(root *html.Node) string {
	head := findElement(root, "head")
	if head == nil {
		return ""
	}
	t := findElement(head, "title")
	if t == nil {
		return ""
	}
	return normalize(textOf(t))
}

// findElement finds the first element with the given tag name.
func findElement(n *html.Node, tagName string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tagName {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tagName); found != nil {
			return found
		}
	}
	return nil
}

// textOf extracts all descendant text from a node.
func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// normalize collapses runs of whitespace to single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func skipTag(name string) bool {
	switch name {
	case "script", "style", "noscript", "template", "svg", "math", "iframe", "object", "embed", "head":
		return true
	}
	return false
}

func blockTag(name string) bool {
	switch name {
	case "p", "div", "li", "blockquote", "pre", "td", "th", "dt", "dd", "figcaption", "caption":
		return true
	}
	return false
}

// containerTag lists elements that only group blocks; their text is
// collected from the blocks inside, never inline.
func containerTag(name string) bool {
	switch name {
	case "ul", "ol", "dl", "table", "thead", "tbody", "tfoot", "tr",
		"section", "article", "aside", "nav", "header", "footer", "figure", "main":
		return true
	}
	return false
}

func headingLevel(name string) (int, bool) {
	if len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6' {
		return int(name[1] - '0'), true
	}
	return 0, false
}
