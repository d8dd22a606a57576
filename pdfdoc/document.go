package pdfdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tsawler/lectern/geom"
	"github.com/tsawler/lectern/source"
)

// headerWindow bounds the scan for the %PDF marker. Some files carry
// junk bytes before it; offsets in the file are relative to the marker.
const headerWindow = 1024

// Document is an open PDF. It implements [source.Document]. Objects
// are parsed on demand and cached; the cache and loader are guarded so
// pages can be fetched from several goroutines at once.
type Document struct {
	mu         sync.Mutex
	data       []byte
	xref       map[int]xrefEntry
	trailer    Dict
	catalog    Dict
	crypt      *decryptor
	encryptNum int
	cache      map[int]Object
	loading    map[int]bool
	objStms    map[int]*objectStream
	pages      []*pageNode
	pageIndex  map[int]int // page object number -> 1-based original index
	closed     bool
}

// pageNode is one leaf of the page tree with its inheritable
// attributes already resolved.
type pageNode struct {
	ref       Ref
	dict      Dict
	box       pdfRect // effective crop box in PDF coordinates
	rotate    geom.Rotation
	resources Dict
}

// pdfRect is a normalized rectangle in PDF space, y growing upward.
type pdfRect struct {
	x0, y0, x1, y1 float64
}

func (r pdfRect) width() float64  { return r.x1 - r.x0 }
func (r pdfRect) height() float64 { return r.y1 - r.y0 }

func (r pdfRect) intersect(other pdfRect) pdfRect {
	out := pdfRect{
		x0: maxf(r.x0, other.x0),
		y0: maxf(r.y0, other.y0),
		x1: minf(r.x1, other.x1),
		y1: minf(r.y1, other.y1),
	}
	if out.x1 <= out.x0 || out.y1 <= out.y0 {
		return r
	}
	return out
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// letterBox stands in when a page tree carries no media box at all.
var letterBox = pdfRect{x1: 612, y1: 792}

// Open parses a PDF held in memory. The password may be empty; if the
// file is encrypted and the empty password does not grant access, Open
// returns [source.ErrPasswordRequired]. A non-empty password that does
// not verify yields [source.ErrPasswordIncorrect].
func Open(data []byte, password string) (*Document, error) {
	probe := data
	if len(probe) > headerWindow {
		probe = probe[:headerWindow]
	}
	idx := bytes.Index(probe, []byte("%PDF-"))
	if idx < 0 {
		return nil, &source.CorruptError{Err: errors.New("missing %PDF header")}
	}
	data = data[idx:]

	entries, trailer, err := loadXRef(data)
	if err != nil {
		return nil, &source.CorruptError{Err: err}
	}

	d := &Document{
		data:       data,
		xref:       entries,
		trailer:    trailer,
		encryptNum: -1,
		cache:      make(map[int]Object),
		loading:    make(map[int]bool),
		objStms:    make(map[int]*objectStream),
		pageIndex:  make(map[int]int),
	}

	if err := d.setupEncryption(password); err != nil {
		return nil, err
	}

	root := d.resolve(trailer.Get("Root"))
	catalog, ok := root.(Dict)
	if !ok {
		return nil, &source.CorruptError{Err: errors.New("missing document catalog")}
	}
	d.catalog = catalog

	pagesObj := catalog.Get("Pages")
	if pagesObj == nil {
		return nil, &source.CorruptError{Err: errors.New("catalog has no page tree")}
	}
	if err := d.walkPages(pagesObj, pageAttrs{}, make(map[int]bool), 0); err != nil {
		return nil, &source.CorruptError{Err: err}
	}
	if len(d.pages) == 0 {
		return nil, &source.CorruptError{Err: errors.New("document has no pages")}
	}
	return d, nil
}

// setupEncryption reads /Encrypt and authenticates. The encryption
// dictionary itself is stored unencrypted, so it loads before the
// decryptor exists.
func (d *Document) setupEncryption(password string) error {
	encObj := d.trailer.Get("Encrypt")
	if encObj == nil {
		return nil
	}
	if _, isNull := encObj.(Null); isNull {
		return nil
	}
	if ref, ok := encObj.(Ref); ok {
		d.encryptNum = ref.Num
	}
	enc, ok := d.resolve(encObj).(Dict)
	if !ok {
		return &source.CorruptError{Err: errors.New("/Encrypt is not a dictionary")}
	}

	var docID []byte
	if ids, ok := d.trailer.GetArray("ID"); ok {
		if s, ok := ids.Get(0).(String); ok {
			docID = []byte(string(s))
		}
	}

	crypt, err := newDecryptor(enc, docID, password)
	if err != nil {
		if errors.Is(err, source.ErrPasswordRequired) ||
			errors.Is(err, source.ErrPasswordIncorrect) ||
			errors.Is(err, source.ErrUnsupported) {
			return err
		}
		return &source.CorruptError{Err: err}
	}
	d.crypt = crypt
	return nil
}

// pageAttrs carries the attributes a page inherits from its ancestors
// in the page tree.
type pageAttrs struct {
	resources Dict
	mediaBox  Array
	cropBox   Array
	rotate    int
	rotateSet bool
}

// walkPages flattens the page tree into original order, resolving
// inheritable attributes along the way. Reference cycles and runaway
// depth abort the walk.
func (d *Document) walkPages(obj Object, attrs pageAttrs, visited map[int]bool, depth int) error {
	if depth > 64 {
		return errors.New("page tree too deep")
	}
	var ref Ref
	if r, ok := obj.(Ref); ok {
		if visited[r.Num] {
			return fmt.Errorf("page tree cycle through object %d", r.Num)
		}
		visited[r.Num] = true
		ref = r
	}
	node, ok := d.resolve(obj).(Dict)
	if !ok {
		return errors.New("page tree node is not a dictionary")
	}

	if res, ok := d.resolve(node.Get("Resources")).(Dict); ok {
		attrs.resources = res
	}
	if mb := d.resolveRectArray(node.Get("MediaBox")); mb != nil {
		attrs.mediaBox = mb
	}
	if cb := d.resolveRectArray(node.Get("CropBox")); cb != nil {
		attrs.cropBox = cb
	}
	if rot, ok := toNumber(d.resolve(node.Get("Rotate"))); ok {
		attrs.rotate = int(rot)
		attrs.rotateSet = true
	}

	kids, hasKids := d.resolve(node.Get("Kids")).(Array)
	if typ, _ := node.GetName("Type"); typ == "Pages" || (typ == "" && hasKids) {
		for i := range kids {
			if err := d.walkPages(kids[i], attrs, visited, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	// Leaf page.
	media := letterBox
	if r, ok := d.rectFromArray(attrs.mediaBox); ok {
		media = r
	}
	box := media
	if r, ok := d.rectFromArray(attrs.cropBox); ok {
		box = r.intersect(media)
	}
	rotate := geom.Rotate0
	if attrs.rotateSet {
		rotate = geom.NormalizeRotation(attrs.rotate)
	}

	d.pageIndex[ref.Num] = len(d.pages) + 1
	d.pages = append(d.pages, &pageNode{
		ref:       ref,
		dict:      node,
		box:       box,
		rotate:    rotate,
		resources: attrs.resources,
	})
	return nil
}

// resolveRectArray resolves obj to an array if it is one.
func (d *Document) resolveRectArray(obj Object) Array {
	if obj == nil {
		return nil
	}
	if arr, ok := d.resolve(obj).(Array); ok {
		return arr
	}
	return nil
}

// rectFromArray builds a normalized rectangle from a 4-number array,
// resolving any indirect elements.
func (d *Document) rectFromArray(arr Array) (pdfRect, bool) {
	if len(arr) < 4 {
		return pdfRect{}, false
	}
	var nums [4]float64
	for i := 0; i < 4; i++ {
		n, ok := toNumber(d.resolve(arr.Get(i)))
		if !ok {
			return pdfRect{}, false
		}
		nums[i] = n
	}
	r := pdfRect{
		x0: minf(nums[0], nums[2]),
		y0: minf(nums[1], nums[3]),
		x1: maxf(nums[0], nums[2]),
		y1: maxf(nums[1], nums[3]),
	}
	if r.width() <= 0 || r.height() <= 0 {
		return pdfRect{}, false
	}
	return r, true
}

// ===== Object loading =====

// getObject loads the object behind ref, from the cache when possible.
func (d *Document) getObject(ref Ref) (Object, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("document is closed")
	}
	return d.load(ref.Num)
}

// resolve follows reference chains to a direct object, swallowing load
// failures into Null. Strict callers use getObject.
func (d *Document) resolve(obj Object) Object {
	for i := 0; i < 32; i++ {
		ref, ok := obj.(Ref)
		if !ok {
			return obj
		}
		next, err := d.getObject(ref)
		if err != nil {
			return Null{}
		}
		obj = next
	}
	return Null{}
}

// load fetches one object by number. Callers hold d.mu; recursion for
// indirect lengths and object stream containers re-enters here
// directly, with the loading set breaking reference cycles.
func (d *Document) load(num int) (Object, error) {
	if obj, ok := d.cache[num]; ok {
		return obj, nil
	}
	entry, ok := d.xref[num]
	if !ok {
		// Referencing an undefined object is not an error; it reads
		// as null.
		return Null{}, nil
	}
	if d.loading[num] {
		return nil, fmt.Errorf("object %d references itself while loading", num)
	}
	d.loading[num] = true
	defer delete(d.loading, num)

	var (
		obj Object
		err error
	)
	switch entry.typ {
	case xrefFree:
		obj = Null{}
	case xrefUncompressed:
		obj, err = d.loadUncompressed(num, entry)
	case xrefCompressed:
		obj, err = d.loadCompressed(num, entry)
	}
	if err != nil {
		return nil, err
	}
	d.cache[num] = obj
	return obj, nil
}

func (d *Document) loadUncompressed(num int, entry xrefEntry) (Object, error) {
	if entry.offset < 0 || entry.offset >= int64(len(d.data)) {
		return nil, &source.CorruptError{Pos: entry.offset, Err: fmt.Errorf("object %d offset out of range", num)}
	}
	p, err := newParser(bytes.NewReader(d.data[entry.offset:]), func(r Ref) (Object, error) {
		return d.load(r.Num)
	})
	if err != nil {
		return nil, &source.CorruptError{Pos: entry.offset, Err: err}
	}
	obj, err := p.parseIndirectObject(Ref{Num: num, Gen: entry.gen})
	if err != nil {
		return nil, &source.CorruptError{Pos: entry.offset, Err: err}
	}
	if d.crypt != nil && num != d.encryptNum {
		obj = d.decryptTree(Ref{Num: num, Gen: entry.gen}, obj)
	}
	return obj, nil
}

// loadCompressed pulls an object out of its /ObjStm container. The
// container stream was decrypted when it loaded, so its contents are
// already clear.
func (d *Document) loadCompressed(num int, entry xrefEntry) (Object, error) {
	ostm, ok := d.objStms[entry.streamNum]
	if !ok {
		container, err := d.load(entry.streamNum)
		if err != nil {
			return nil, err
		}
		stm, isStream := container.(*Stream)
		if !isStream {
			return nil, &source.CorruptError{Err: fmt.Errorf("object %d names object stream %d, which is not a stream", num, entry.streamNum)}
		}
		ostm, err = newObjectStream(stm)
		if err != nil {
			return nil, &source.CorruptError{Err: err}
		}
		d.objStms[entry.streamNum] = ostm
	}
	gotNum, obj, err := ostm.object(entry.streamIdx)
	if err != nil {
		return nil, &source.CorruptError{Err: err}
	}
	if gotNum != num {
		return nil, &source.CorruptError{Err: fmt.Errorf("object stream %d entry %d holds object %d, want %d", entry.streamNum, entry.streamIdx, gotNum, num)}
	}
	return obj, nil
}

// decryptTree decrypts every string and stream payload reachable from
// obj with the owning object's key.
func (d *Document) decryptTree(ref Ref, obj Object) Object {
	switch o := obj.(type) {
	case String:
		dec, err := d.crypt.decryptString(ref, []byte(string(o)))
		if err != nil {
			return o
		}
		return String(dec)
	case Array:
		for i := range o {
			o[i] = d.decryptTree(ref, o[i])
		}
		return o
	case Dict:
		for k, v := range o {
			o[k] = d.decryptTree(ref, v)
		}
		return o
	case *Stream:
		for k, v := range o.Dict {
			o.Dict[k] = d.decryptTree(ref, v)
		}
		dec, err := d.crypt.decryptStream(ref, o.Raw)
		if err == nil {
			o.Raw = dec
		}
		return o
	}
	return obj
}

// ===== source.Document =====

// PageCount returns the number of pages in original order.
func (d *Document) PageCount() int {
	return len(d.pages)
}

// Page loads the page with the given 1-based original index.
func (d *Document) Page(ctx context.Context, original int) (source.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if original < 1 || original > len(d.pages) {
		return nil, &source.PageError{
			Page: original,
			Op:   "load",
			Err:  fmt.Errorf("index out of range, document has %d pages", len(d.pages)),
		}
	}
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, &source.PageError{Page: original, Op: "load", Err: errors.New("document is closed")}
	}
	return &page{doc: d, node: d.pages[original-1], index: original}, nil
}

// Metadata reads the document information dictionary. Missing or
// malformed fields come back as zero values.
func (d *Document) Metadata() source.Metadata {
	info, ok := d.resolve(d.trailer.Get("Info")).(Dict)
	if !ok {
		return source.Metadata{}
	}
	text := func(key string) string {
		s, ok := info.GetString(key)
		if !ok {
			return ""
		}
		return decodeTextString([]byte(string(s)))
	}
	m := source.Metadata{
		Title:    text("Title"),
		Author:   text("Author"),
		Subject:  text("Subject"),
		Keywords: text("Keywords"),
		Creator:  text("Creator"),
		Producer: text("Producer"),
	}
	if s, ok := info.GetString("CreationDate"); ok {
		m.Created = parsePDFDate(string(s))
	}
	if s, ok := info.GetString("ModDate"); ok {
		m.Modified = parsePDFDate(string(s))
	}
	return m
}

// Outline walks the document outline tree. Items whose destination
// cannot be resolved to a page keep -1 as their target.
func (d *Document) Outline() []source.OutlineItem {
	outlines, ok := d.resolve(d.catalog.Get("Outlines")).(Dict)
	if !ok {
		return nil
	}
	return d.walkOutline(outlines.Get("First"), make(map[int]bool), 0)
}

func (d *Document) walkOutline(obj Object, visited map[int]bool, depth int) []source.OutlineItem {
	if depth > 32 {
		return nil
	}
	var items []source.OutlineItem
	for obj != nil {
		if ref, ok := obj.(Ref); ok {
			if visited[ref.Num] {
				break
			}
			visited[ref.Num] = true
		}
		node, ok := d.resolve(obj).(Dict)
		if !ok {
			break
		}
		item := source.OutlineItem{Page: -1}
		if s, ok := node.GetString("Title"); ok {
			item.Title = decodeTextString([]byte(string(s)))
		}
		item.Page = d.destPage(node)
		if first := node.Get("First"); first != nil {
			item.Children = d.walkOutline(first, visited, depth+1)
		}
		items = append(items, item)
		obj = node.Get("Next")
	}
	return items
}

// destPage resolves an outline entry's target page: /Dest directly, or
// a GoTo action's /D.
func (d *Document) destPage(node Dict) int {
	dest := node.Get("Dest")
	if dest == nil {
		if action, ok := d.resolve(node.Get("A")).(Dict); ok {
			if s, _ := action.GetName("S"); s == "GoTo" {
				dest = action.Get("D")
			}
		}
	}
	return d.resolveDest(dest, 0)
}

// resolveDest turns a destination (explicit array, named destination
// string or name) into a 1-based original page index, -1 when it
// cannot.
func (d *Document) resolveDest(obj Object, depth int) int {
	if obj == nil || depth > 8 {
		return -1
	}
	switch o := d.resolve(obj).(type) {
	case Array:
		first := o.Get(0)
		if ref, ok := first.(Ref); ok {
			if idx, ok := d.pageIndex[ref.Num]; ok {
				return idx
			}
			return -1
		}
		// Remote-style destinations count pages from zero.
		if n, ok := toNumber(first); ok {
			idx := int(n)
			if idx >= 0 && idx < len(d.pages) {
				return idx + 1
			}
		}
		return -1
	case String:
		return d.resolveDest(d.namedDest(string(o)), depth+1)
	case Name:
		return d.resolveDest(d.namedDest(string(o)), depth+1)
	case Dict:
		// A named destination may point at a dictionary wrapping the
		// real array in /D.
		return d.resolveDest(o.Get("D"), depth+1)
	}
	return -1
}

// namedDest looks a destination name up in the catalog's name tree,
// falling back to the older /Dests dictionary.
func (d *Document) namedDest(name string) Object {
	if names, ok := d.resolve(d.catalog.Get("Names")).(Dict); ok {
		if tree, ok := d.resolve(names.Get("Dests")).(Dict); ok {
			if obj := d.searchNameTree(tree, name, 0); obj != nil {
				return obj
			}
		}
	}
	if dests, ok := d.resolve(d.catalog.Get("Dests")).(Dict); ok {
		return dests.Get(name)
	}
	return nil
}

// searchNameTree scans a name tree node for a key. Leaf /Names arrays
// alternate keys and values.
func (d *Document) searchNameTree(node Dict, name string, depth int) Object {
	if depth > 32 {
		return nil
	}
	if pairs, ok := node.GetArray("Names"); ok {
		for i := 0; i+1 < len(pairs); i += 2 {
			if key, ok := d.resolve(pairs.Get(i)).(String); ok && string(key) == name {
				return pairs.Get(i + 1)
			}
		}
	}
	if kids, ok := node.GetArray("Kids"); ok {
		for i := range kids {
			kid, ok := d.resolve(kids.Get(i)).(Dict)
			if !ok {
				continue
			}
			if obj := d.searchNameTree(kid, name, depth+1); obj != nil {
				return obj
			}
		}
	}
	return nil
}

// Close drops the object caches and marks the document unusable. Page
// handles obtained earlier fail on their next load.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cache = nil
	d.objStms = nil
	return nil
}
