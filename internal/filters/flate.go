package filters

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// FlateDecode decompresses Flate (zlib/deflate) data, by far the most
// common stream filter. When the decode parameters name a predictor the
// prediction step is undone after decompression.
func FlateDecode(data []byte, params Params) ([]byte, error) {
	decompressed, err := zlibDecompress(data)
	if err != nil {
		return nil, fmt.Errorf("zlib decompression failed: %w", err)
	}
	return applyPredictor(decompressed, params)
}

// zlibDecompress inflates a zlib stream. Writers sometimes leave junk
// after the compressed body, so a decode error that arrives after some
// output was produced keeps the output.
func zlibDecompress(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib reader: %w", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		if buf.Len() > 0 {
			return buf.Bytes(), nil
		}
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}

	return buf.Bytes(), nil
}
