package filters

import (
	"bytes"
	"compress/lzw"
	"fmt"
	"io"

	tifflzw "golang.org/x/image/tiff/lzw"
)

// LZWDecode decompresses LZW data. The format packs variable-width codes
// most significant bit first with 8-bit literals, the same layout TIFF
// uses. The EarlyChange parameter (default 1) says whether the code width
// grows one code earlier than plain LZW; the default matches TIFF's
// off-by-one variant, while EarlyChange 0 is the textbook algorithm.
// Each value needs its own decoder, since the two diverge once the code
// table grows past the first width boundary.
//
// A predictor named in the decode parameters is undone afterwards, as
// with FlateDecode.
func LZWDecode(data []byte, params Params) ([]byte, error) {
	var reader io.ReadCloser
	if getIntParam(params, "EarlyChange", 1) == 0 {
		reader = lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	} else {
		reader = tifflzw.NewReader(bytes.NewReader(data), tifflzw.MSB, 8)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		// Streams are sometimes written with cruft after the end-of-data
		// code. Whatever decoded cleanly before the error is kept.
		if buf.Len() == 0 {
			return nil, fmt.Errorf("lzw decompression failed: %w", err)
		}
	}

	return applyPredictor(buf.Bytes(), params)
}
