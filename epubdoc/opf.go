package epubdoc

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/tsawler/lectern/source"
)

// packageDoc is the parsed OPF package document.
type packageDoc struct {
	version  string
	meta     metaInfo
	manifest map[string]manifestItem // keyed by id
	spine    []string                // idrefs in reading order
}

// manifestItem is one file the package declares.
type manifestItem struct {
	id         string
	href       string
	mediaType  string
	properties []string // "nav", "cover-image", ...
}

// metaInfo is the Dublin Core metadata the viewer cares about.
type metaInfo struct {
	title       string
	authors     []string
	description string
	subjects    []string
	publisher   string
	date        string
	modified    time.Time
}

// toSource maps package metadata onto the cross-format shape. The
// publisher lands in Producer, the description in Subject and the
// subject terms in Keywords.
func (m metaInfo) toSource() source.Metadata {
	return source.Metadata{
		Title:    m.title,
		Author:   strings.Join(m.authors, ", "),
		Subject:  m.description,
		Keywords: strings.Join(m.subjects, ", "),
		Producer: m.publisher,
		Created:  parseDate(m.date),
		Modified: m.modified,
	}
}

// ocfContainer mirrors META-INF/container.xml.
type ocfContainer struct {
	XMLName   xml.Name `xml:"container"`
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

// locateOPF reads container.xml and returns the package document path.
func locateOPF(zr *zip.Reader) (string, error) {
	data, err := readFile(zr, "META-INF/container.xml")
	if err != nil {
		return "", fmt.Errorf("missing container.xml: %w", err)
	}
	var c ocfContainer
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", fmt.Errorf("invalid container.xml: %w", err)
	}

	for _, rf := range c.Rootfiles {
		if rf.FullPath != "" && (rf.MediaType == "application/oebps-package+xml" || rf.MediaType == "") {
			return rf.FullPath, nil
		}
	}
	if len(c.Rootfiles) > 0 && c.Rootfiles[0].FullPath != "" {
		return c.Rootfiles[0].FullPath, nil
	}
	return "", fmt.Errorf("container.xml names no rootfile")
}

// opfXML mirrors the OPF package document.
type opfXML struct {
	XMLName  xml.Name `xml:"package"`
	Version  string   `xml:"version,attr"`
	Metadata struct {
		Title       []string `xml:"title"`
		Creator     []string `xml:"creator"`
		Description []string `xml:"description"`
		Subject     []string `xml:"subject"`
		Publisher   []string `xml:"publisher"`
		Date        []string `xml:"date"`
		Meta        []struct {
			Property string `xml:"property,attr"`
			Value    string `xml:",chardata"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID         string `xml:"id,attr"`
			Href       string `xml:"href,attr"`
			MediaType  string `xml:"media-type,attr"`
			Properties string `xml:"properties,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []struct {
			IDRef  string `xml:"idref,attr"`
			Linear string `xml:"linear,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// parsePackage reads and converts the OPF. The returned base directory
// is the OPF's own, which manifest hrefs are relative to.
func parsePackage(zr *zip.Reader, opfPath string) (*packageDoc, string, error) {
	data, err := readFile(zr, opfPath)
	if err != nil {
		return nil, "", fmt.Errorf("missing package document: %w", err)
	}
	var opf opfXML
	if err := xml.Unmarshal(data, &opf); err != nil {
		return nil, "", fmt.Errorf("invalid package document: %w", err)
	}

	baseDir := path.Dir(opfPath)
	if baseDir == "." {
		baseDir = ""
	}

	pkg := &packageDoc{
		version:  opf.Version,
		manifest: make(map[string]manifestItem, len(opf.Manifest.Items)),
	}

	m := &pkg.meta
	if len(opf.Metadata.Title) > 0 {
		m.title = strings.TrimSpace(opf.Metadata.Title[0])
	}
	for _, c := range opf.Metadata.Creator {
		if s := strings.TrimSpace(c); s != "" {
			m.authors = append(m.authors, s)
		}
	}
	if len(opf.Metadata.Description) > 0 {
		m.description = strings.TrimSpace(opf.Metadata.Description[0])
	}
	for _, s := range opf.Metadata.Subject {
		if subj := strings.TrimSpace(s); subj != "" {
			m.subjects = append(m.subjects, subj)
		}
	}
	if len(opf.Metadata.Publisher) > 0 {
		m.publisher = strings.TrimSpace(opf.Metadata.Publisher[0])
	}
	if len(opf.Metadata.Date) > 0 {
		m.date = strings.TrimSpace(opf.Metadata.Date[0])
	}
	for _, mt := range opf.Metadata.Meta {
		if mt.Property == "dcterms:modified" {
			if t, err := time.Parse(time.RFC3339, strings.TrimSpace(mt.Value)); err == nil {
				m.modified = t
			}
		}
	}

	for _, item := range opf.Manifest.Items {
		mi := manifestItem{
			id:        item.ID,
			href:      item.Href,
			mediaType: item.MediaType,
		}
		if item.Properties != "" {
			mi.properties = strings.Fields(item.Properties)
		}
		pkg.manifest[item.ID] = mi
	}

	for _, ref := range opf.Spine.ItemRefs {
		// linear="no" marks auxiliary content outside the main
		// reading order.
		if ref.IDRef != "" && ref.Linear != "no" {
			pkg.spine = append(pkg.spine, ref.IDRef)
		}
	}
	if len(pkg.spine) == 0 {
		return nil, "", fmt.Errorf("empty spine")
	}

	return pkg, baseDir, nil
}
