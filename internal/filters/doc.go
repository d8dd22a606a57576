// Package filters implements the stream decoding filters: FlateDecode,
// LZWDecode, ASCIIHexDecode, ASCII85Decode, RunLengthDecode and
// CCITTFaxDecode.
//
// Filters that take decode parameters receive them as a flat Params map
// of plain Go values:
//
//	params := filters.Params{
//	    "Predictor": 12,
//	    "Columns":   4,
//	}
//	decoded, err := filters.FlateDecode(data, params)
//
// FlateDecode and LZWDecode both honor the Predictor parameter, undoing
// TIFF Predictor 2 or the PNG filter set after decompression. The PNG
// predictors support component depths of 1 through 16 bits; cross
// reference streams, which are always predicted, use 8.
//
// The filters are deliberately forgiving about trailing garbage. Real
// files frequently carry stray bytes between the end of the encoded data
// and the stream boundary, and a filter that decoded useful output does
// not fail over what follows it.
package filters
