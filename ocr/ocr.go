//go:build ocr

// Package ocr recognizes text in rendered page images. Image-backed
// documents have no embedded text, and scanned PDFs carry nothing but a
// raster per page; this package turns such page images into searchable
// text.
//
// It wraps the Tesseract engine via gosseract and requires Tesseract to
// be installed on the system. On macOS, install via:
//
//	brew install tesseract
//
// On Ubuntu/Debian:
//
//	apt-get install tesseract-ocr
package ocr

import (
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// PageSegMode controls how Tesseract analyzes the page layout.
type PageSegMode = gosseract.PageSegMode

// Page segmentation modes.
const (
	PSM_OSD_ONLY               = gosseract.PSM_OSD_ONLY
	PSM_AUTO_OSD               = gosseract.PSM_AUTO_OSD
	PSM_AUTO_ONLY              = gosseract.PSM_AUTO_ONLY
	PSM_AUTO                   = gosseract.PSM_AUTO
	PSM_SINGLE_COLUMN          = gosseract.PSM_SINGLE_COLUMN
	PSM_SINGLE_BLOCK_VERT_TEXT = gosseract.PSM_SINGLE_BLOCK_VERT_TEXT
	PSM_SINGLE_BLOCK           = gosseract.PSM_SINGLE_BLOCK
	PSM_SINGLE_LINE            = gosseract.PSM_SINGLE_LINE
	PSM_SINGLE_WORD            = gosseract.PSM_SINGLE_WORD
	PSM_CIRCLE_WORD            = gosseract.PSM_CIRCLE_WORD
	PSM_SINGLE_CHAR            = gosseract.PSM_SINGLE_CHAR
	PSM_SPARSE_TEXT            = gosseract.PSM_SPARSE_TEXT
	PSM_SPARSE_TEXT_OSD        = gosseract.PSM_SPARSE_TEXT_OSD
	PSM_RAW_LINE               = gosseract.PSM_RAW_LINE
)

// Client wraps Tesseract for OCR operations.
type Client struct {
	client *gosseract.Client
}

// New creates a new OCR client. The client should be closed when no
// longer needed to release resources.
func New() (*Client, error) {
	client := gosseract.NewClient()
	return &Client{client: client}, nil
}

// Close releases OCR resources.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// RecognizeImage performs OCR on encoded image data (PNG, TIFF, JPEG,
// etc.). Returns the recognized text with surrounding whitespace
// trimmed.
func (c *Client) RecognizeImage(imageData []byte) (string, error) {
	if err := c.client.SetImageFromBytes(imageData); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := c.client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}

	return strings.TrimSpace(text), nil
}

// SetLanguage sets the language(s) for recognition. Multiple languages
// can be specified as a "+" separated string (e.g., "eng+fra"). Default
// is "eng" (English).
func (c *Client) SetLanguage(lang string) error {
	return c.client.SetLanguage(lang)
}

// SetPageSegMode sets the page segmentation mode.
func (c *Client) SetPageSegMode(mode PageSegMode) error {
	return c.client.SetPageSegMode(mode)
}
