// Package pdfdoc opens PDF files as viewable documents.
//
// The package parses a PDF from memory and exposes it through the source
// contract: pages report their geometry and intrinsic rotation, render
// their embedded raster content, and surface text runs and native
// annotations for the viewing engine.
//
// # Opening
//
// [Open] parses the cross-reference data and prepares the page tree
// without touching page content:
//
//	doc, err := pdfdoc.Open(data, "")
//	if errors.Is(err, source.ErrPasswordRequired) {
//	    doc, err = pdfdoc.Open(data, password)
//	}
//
// Page content is parsed lazily when a page handle is requested, so
// opening a large file stays cheap.
//
// # File structure support
//
// Both classic cross-reference tables and cross-reference streams
// (PDF 1.5+) are understood, including incremental-update /Prev chains,
// hybrid files carrying /XRefStm, and objects packed into object
// streams. Streams pass through the standard decompression filters.
//
// # Encryption
//
// The standard security handler is supported for RC4 (40 to 128 bit),
// AES-128 and AES-256 revisions. [Open] verifies the supplied password
// against the user and owner password records and reports
// [source.ErrPasswordRequired] or [source.ErrPasswordIncorrect] so the
// caller can prompt accordingly.
//
// # Text and annotations
//
// Page text comes from walking the content stream text operators with
// the graphics and text state machines, decoding character codes through
// ToUnicode maps or the declared simple-font encodings. Link and markup
// annotations are read from /Annots with their targets resolved to
// original page indices.
package pdfdoc
