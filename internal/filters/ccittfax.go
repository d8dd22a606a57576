package filters

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/image/ccitt"
)

// CCITTFaxDecode decodes CCITT Group 3 or Group 4 fax data, the usual
// encoding for scanned bi-level images. The K parameter selects the
// coding scheme: negative is pure Group 4, zero is one-dimensional
// Group 3, and positive is mixed two-dimensional Group 3. Columns
// defaults to 1728 per the fax standards; when Rows is absent the
// height is detected from the data. BlackIs1 false, the default, means
// black pixels decode to 0 bits, and EncodedByteAlign pads each coded
// row to a byte boundary.
func CCITTFaxDecode(data []byte, params Params) ([]byte, error) {
	columns := getIntParam(params, "Columns", 1728)
	rows := getIntParam(params, "Rows", 0)
	k := getIntParam(params, "K", 0)

	sf := ccitt.Group3
	if k < 0 {
		sf = ccitt.Group4
	}
	if rows <= 0 {
		rows = ccitt.AutoDetectHeight
	}

	opts := &ccitt.Options{
		Invert: getBoolParam(params, "BlackIs1", false),
		Align:  getBoolParam(params, "EncodedByteAlign", false),
	}

	r := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, sf, columns, rows, opts)
	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ccitt decode failed: %w", err)
	}
	return decoded, nil
}
