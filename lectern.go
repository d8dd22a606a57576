// Package lectern coordinates the view state of a paginated document:
// which page handles are loaded, how wheel and touch input move the
// current page, where annotations sit at any zoom and rotation, and
// what a running text search has found so far.
//
// Basic usage:
//
//	session, err := lectern.Open("report.pdf")
//	if err != nil {
//	    // handle error
//	}
//	defer session.Close()
//
//	session.SetViewportSize(geom.Size{W: 1280, H: 960})
//	session.GoToPage(1)
//
// With options:
//
//	session, err := lectern.Open("locked.pdf",
//	    lectern.WithPassword("hunter2"),
//	    lectern.WithMode(scrollsync.ModeContinuous),
//	    lectern.WithLogger(logger))
//
// Every open document gets its own Session with its own page order,
// cache, annotation store, scroll state and search coordinator, so any
// number of documents can be open at once.
package lectern

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tsawler/lectern/epubdoc"
	"github.com/tsawler/lectern/format"
	"github.com/tsawler/lectern/imagedoc"
	"github.com/tsawler/lectern/pdfdoc"
	"github.com/tsawler/lectern/source"
)

// Open reads a document file and builds a viewing session for it. The
// format is sniffed from the content, not the file name. The session
// must be closed when done.
//
// Example:
//
//	session, err := lectern.Open("document.pdf")
func Open(filename string, opts ...Option) (*Session, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	s, err := OpenBytes(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(filename), err)
	}
	if s.name == "" {
		s.name = filepath.Base(filename)
	}
	return s, nil
}

// OpenBytes builds a viewing session for a document held in memory.
func OpenBytes(data []byte, opts ...Option) (*Session, error) {
	var (
		doc source.Document
		err error
	)
	pre := newSession(opts)
	switch format.DetectBytes(data) {
	case format.PDF:
		doc, err = pdfdoc.Open(data, pre.password)
	case format.EPUB:
		doc, err = epubdoc.Open(data)
	case format.CBZ, format.Image:
		doc, err = imagedoc.Open(data)
	default:
		return nil, fmt.Errorf("detect format: %w", source.ErrUnsupported)
	}
	if err != nil {
		return nil, err
	}
	pre.fingerprint = fingerprint(data)
	pre.attach(doc)
	return pre, nil
}

// OpenDocument builds a viewing session around an already-open page
// source. The session takes ownership and closes the source with it.
func OpenDocument(doc source.Document, opts ...Option) (*Session, error) {
	if doc == nil {
		return nil, fmt.Errorf("open document: %w", source.ErrUnsupported)
	}
	s := newSession(opts)
	s.attach(doc)
	return s, nil
}

// fingerprint derives a stable content identity for an open document,
// used to key persisted view state.
func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// Must is a helper that wraps a call to a function returning (T, error)
// and panics if the error is non-nil. It is intended for use in scripts
// or tests where error handling would be cumbersome.
//
// Example:
//
//	session := lectern.Must(lectern.Open("document.pdf"))
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}
